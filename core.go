package armcore

import (
	"context"

	"github.com/pkg/errors"
)

// Core wires the whole motion stack together from a Config: driver,
// state store, command queue, intent register, executor and telemetry.
type Core struct {
	Config    *Config
	Driver    Driver
	Store     *StateStore
	Queue     *CommandQueue
	Intents   *IntentRegister
	Executor  *Executor
	Telemetry *TelemetryPublisher
}

// New validates cfg, builds the configured driver variant and assembles
// the execution core. Nothing runs until Start.
func New(cfg *Config) (*Core, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var driver Driver
	switch cfg.Driver {
	case DriverSim:
		driver = NewSimDriver(cfg.Limits(), cfg.Logger)
	case DriverHardware:
		cal, err := LoadCalibration(cfg.CalibrationFile)
		if err != nil {
			return nil, err
		}
		driver = NewFeetechDriver(cfg, cal)
	default:
		return nil, errors.Errorf("unknown driver %q", cfg.Driver)
	}

	store := NewStateStore()
	queue := NewCommandQueue(cfg.QueueSize, cfg.Limits())
	intents := NewIntentRegister()
	return &Core{
		Config:    cfg,
		Driver:    driver,
		Store:     store,
		Queue:     queue,
		Intents:   intents,
		Executor:  NewExecutor(cfg, driver, store, queue, intents),
		Telemetry: NewTelemetryPublisher(cfg, store),
	}, nil
}

// Start brings the driver up and launches the execution and telemetry
// loops.
func (c *Core) Start(ctx context.Context) error {
	if err := c.Executor.Start(ctx); err != nil {
		return err
	}
	c.Telemetry.Start()
	return nil
}

// Close stops both loops and releases the driver.
func (c *Core) Close() error {
	c.Telemetry.Close()
	return c.Executor.Close()
}
