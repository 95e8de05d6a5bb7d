package armcore

import (
	"encoding/json"
	"math"
	"os"
	"time"

	"github.com/pkg/errors"

	"go.viam.com/rdk/logging"
)

const (
	DriverSim      = "sim"
	DriverHardware = "feetech"

	defaultBaudRate          = 1000000
	defaultLoopHz            = 50
	defaultTelemetryHz       = 10
	defaultQueueSize         = 32
	defaultMaxJointSpeed     = 1.5 // rad/s at full teleop deflection
	defaultGripperSpeed      = 1.0 // normalized units/s
	defaultFaultThreshold    = 5
	defaultTimeout           = 5 * time.Second
	defaultHomeTimeout       = 10 * time.Second
	defaultDeadzoneMargin    = 0.05
	defaultTriggerHysteresis = 0.1
)

// DefaultServoIDs is the bus layout the arm ships with: joints on IDs 1
// through 6, gripper on 7.
var DefaultServoIDs = []int{1, 2, 3, 4, 5, 6}

// Config selects the driver variant and tunes the execution core.
type Config struct {
	Driver         string  `json:"driver"`
	Port           string  `json:"port,omitempty"`
	BaudRate       int     `json:"baud_rate,omitempty"`
	ServoIDs       []int   `json:"servo_ids,omitempty"`
	GripperServoID int     `json:"gripper_servo_id,omitempty"`
	LoopHz         int     `json:"loop_hz,omitempty"`
	TelemetryHz    int     `json:"telemetry_hz,omitempty"`
	QueueSize      int     `json:"queue_size,omitempty"`
	MaxJointSpeed  float64 `json:"max_joint_speed,omitempty"`
	GripperSpeed   float64 `json:"gripper_speed,omitempty"`
	FaultThreshold int     `json:"fault_threshold,omitempty"`

	// JointLimits are [min, max] radians per joint; empty means the
	// factory limits.
	JointLimits [][2]float64 `json:"joint_limits,omitempty"`

	Timeout     time.Duration `json:"timeout,omitempty"`
	HomeTimeout time.Duration `json:"home_timeout,omitempty"`

	DeadzoneMargin    float64 `json:"deadzone_margin,omitempty"`
	TriggerHysteresis float64 `json:"trigger_hysteresis,omitempty"`

	GestureConfigFile string `json:"gesture_config_file,omitempty"`
	CalibrationFile   string `json:"calibration_file,omitempty"`

	Logger logging.Logger `json:"-"`
}

// defaultJointLimits mirror the factory servo travel: a full turn on the
// base and wrist roll, half travel elsewhere.
func defaultJointLimits() [NumJoints][2]float64 {
	return [NumJoints][2]float64{
		{-math.Pi, math.Pi},
		{-math.Pi / 2, math.Pi / 2},
		{-math.Pi / 2, math.Pi / 2},
		{-math.Pi / 2, math.Pi / 2},
		{-math.Pi, math.Pi},
		{-math.Pi / 2, math.Pi / 2},
	}
}

// Validate fills defaults and rejects configurations the executor cannot
// run with.
func (c *Config) Validate() error {
	switch c.Driver {
	case "":
		c.Driver = DriverSim
	case DriverSim, DriverHardware:
	default:
		return errors.Errorf("unknown driver %q", c.Driver)
	}
	if c.Driver == DriverHardware && c.Port == "" {
		return errors.New("port is required for the hardware driver")
	}
	if c.BaudRate == 0 {
		c.BaudRate = defaultBaudRate
	}
	if len(c.ServoIDs) == 0 {
		c.ServoIDs = append([]int(nil), DefaultServoIDs...)
	}
	if len(c.ServoIDs) != NumJoints {
		return errors.Errorf("expected %d servo ids, got %d", NumJoints, len(c.ServoIDs))
	}
	if c.GripperServoID == 0 {
		c.GripperServoID = 7
	}
	if c.LoopHz == 0 {
		c.LoopHz = defaultLoopHz
	}
	if c.LoopHz < 1 || c.LoopHz > 200 {
		return errors.Errorf("loop_hz %d outside [1, 200]", c.LoopHz)
	}
	if c.TelemetryHz == 0 {
		c.TelemetryHz = defaultTelemetryHz
	}
	if c.TelemetryHz < 1 || c.TelemetryHz > c.LoopHz {
		return errors.Errorf("telemetry_hz %d outside [1, loop_hz]", c.TelemetryHz)
	}
	if c.QueueSize == 0 {
		c.QueueSize = defaultQueueSize
	}
	if c.QueueSize < 1 {
		return errors.Errorf("queue_size %d must be positive", c.QueueSize)
	}
	if c.MaxJointSpeed == 0 {
		c.MaxJointSpeed = defaultMaxJointSpeed
	}
	if c.MaxJointSpeed <= 0 {
		return errors.New("max_joint_speed must be positive")
	}
	if c.GripperSpeed == 0 {
		c.GripperSpeed = defaultGripperSpeed
	}
	if c.FaultThreshold == 0 {
		c.FaultThreshold = defaultFaultThreshold
	}
	if len(c.JointLimits) == 0 {
		def := defaultJointLimits()
		c.JointLimits = make([][2]float64, NumJoints)
		copy(c.JointLimits, def[:])
	}
	if len(c.JointLimits) != NumJoints {
		return errors.Errorf("expected %d joint limit pairs, got %d", NumJoints, len(c.JointLimits))
	}
	for i, lim := range c.JointLimits {
		if lim[0] >= lim[1] {
			return errors.Errorf("joint %d limits inverted: [%f, %f]", i, lim[0], lim[1])
		}
	}
	if c.Timeout == 0 {
		c.Timeout = defaultTimeout
	}
	if c.HomeTimeout == 0 {
		c.HomeTimeout = defaultHomeTimeout
	}
	if c.DeadzoneMargin == 0 {
		c.DeadzoneMargin = defaultDeadzoneMargin
	}
	if c.TriggerHysteresis == 0 {
		c.TriggerHysteresis = defaultTriggerHysteresis
	}
	if c.Logger == nil {
		c.Logger = logging.NewLogger("armcore")
	}
	return nil
}

// Limits returns the configured joint limits as a fixed array. Call after
// Validate.
func (c *Config) Limits() [NumJoints][2]float64 {
	var out [NumJoints][2]float64
	copy(out[:], c.JointLimits)
	return out
}

// LoadConfig reads and validates a JSON config file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read config")
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrap(err, "parse config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
