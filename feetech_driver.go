package armcore

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/hipsterbrown/feetech-servo/feetech"
	"github.com/pkg/errors"
	goutils "go.viam.com/utils"

	"go.viam.com/rdk/logging"
)

const (
	// estopTimeout bounds the torque cut issued by EStop, which cannot
	// inherit a caller context.
	estopTimeout = 500 * time.Millisecond

	// homeToleranceTicks is how close a joint must settle to its center
	// for homing to count as done.
	homeToleranceTicks = 20

	homePollInterval = 50 * time.Millisecond
)

// FeetechDriver actuates the arm over an STS servo bus. The bus only
// accepts position goals, so motion profiles are shaped by the caller
// re-issuing interpolated targets; this driver is a thin codec plus the
// safety latch.
type FeetechDriver struct {
	mu        sync.Mutex
	cfg       *Config
	cal       ArmCalibration
	logger    logging.Logger
	bus       *feetech.Bus
	group     *feetech.ServoGroup
	connected bool
	enabled   bool
	estopped  bool
	homed     [NumJoints]bool

	// lastCommanded raw goal per servo ID, for encoder error reporting.
	lastCommanded map[int]int
}

func NewFeetechDriver(cfg *Config, cal ArmCalibration) *FeetechDriver {
	return &FeetechDriver{
		cfg:           cfg,
		cal:           cal,
		logger:        cfg.Logger,
		lastCommanded: make(map[int]int),
	}
}

func (d *FeetechDriver) Connect(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.connected {
		return nil
	}
	bus, err := sharedBuses.Acquire(d.cfg.Port, d.cfg.BaudRate)
	if err != nil {
		return err
	}
	ids := make([]int, 0, NumJoints+1)
	for _, jc := range d.cal.Joints {
		ids = append(ids, jc.ID)
	}
	ids = append(ids, d.cal.Gripper.ID)
	d.bus = bus
	d.group = feetech.NewServoGroupByIDs(bus, ids...)
	d.connected = true
	d.logger.Infof("servo bus open on %s at %d baud, %d servos", d.cfg.Port, d.cfg.BaudRate, len(ids))
	return nil
}

func (d *FeetechDriver) Enable(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.connected {
		return ErrNotConnected
	}
	if err := d.group.EnableAll(ctx); err != nil {
		return &DriverFault{Op: "enable", Joint: -1, Err: err}
	}
	d.enabled = true
	d.estopped = false
	return nil
}

func (d *FeetechDriver) Disable(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.connected {
		return ErrNotConnected
	}
	d.enabled = false
	if err := d.group.DisableAll(ctx); err != nil {
		return &DriverFault{Op: "disable", Joint: -1, Err: err}
	}
	return nil
}

// Home centers each requested joint and waits for it to settle. Joints
// that fail, or do not settle before the context expires, report an error
// and stay unhomed.
func (d *FeetechDriver) Home(ctx context.Context, indices []int) map[int]error {
	if len(indices) == 0 {
		indices = allJoints()
	}
	results := make(map[int]error, len(indices))
	for _, i := range indices {
		if i < 0 || i >= NumJoints {
			results[i] = &ValidationError{Joint: i, Reason: "unknown joint index"}
			continue
		}
		results[i] = d.homeJoint(ctx, i)
		d.mu.Lock()
		d.homed[i] = results[i] == nil
		d.mu.Unlock()
	}
	return results
}

func (d *FeetechDriver) homeJoint(ctx context.Context, joint int) error {
	d.mu.Lock()
	if !d.connected {
		d.mu.Unlock()
		return ErrNotConnected
	}
	if d.estopped {
		d.mu.Unlock()
		return ErrEStopAsserted
	}
	jc := d.cal.Joints[joint]
	group := d.group
	d.mu.Unlock()

	target := jc.Denormalize(0)
	if err := group.SetPositions(ctx, feetech.PositionMap{jc.ID: target}); err != nil {
		return &DriverFault{Op: "home", Joint: joint, Err: err}
	}
	d.mu.Lock()
	d.lastCommanded[jc.ID] = target
	d.mu.Unlock()

	for {
		if !goutils.SelectContextOrWait(ctx, homePollInterval) {
			return &DriverFault{Op: "home", Joint: joint, Err: ctx.Err()}
		}
		positions, err := group.Positions(ctx)
		if err != nil {
			return &DriverFault{Op: "home", Joint: joint, Err: err}
		}
		raw, ok := positions[jc.ID]
		if !ok {
			return &DriverFault{Op: "home", Joint: joint, Err: errors.New("servo missing from sync read")}
		}
		if abs(raw-target) <= homeToleranceTicks {
			return nil
		}
	}
}

func (d *FeetechDriver) SendJointTargets(ctx context.Context, q [NumJoints]float64, duration time.Duration) error {
	d.mu.Lock()
	if !d.connected {
		d.mu.Unlock()
		return ErrNotConnected
	}
	if d.estopped {
		d.mu.Unlock()
		return ErrEStopAsserted
	}
	if !d.enabled {
		d.mu.Unlock()
		return errors.New("torque not enabled")
	}
	group := d.group
	goals := make(feetech.PositionMap, NumJoints)
	for i, jc := range d.cal.Joints {
		raw := jc.Denormalize(q[i])
		goals[jc.ID] = raw
		d.lastCommanded[jc.ID] = raw
	}
	d.mu.Unlock()

	if err := group.SetPositions(ctx, goals); err != nil {
		return &DriverFault{Op: "send_joint_targets", Joint: -1, Err: err}
	}
	return nil
}

func (d *FeetechDriver) SetGripper(ctx context.Context, position float64) error {
	d.mu.Lock()
	if !d.connected {
		d.mu.Unlock()
		return ErrNotConnected
	}
	if d.estopped {
		d.mu.Unlock()
		return ErrEStopAsserted
	}
	gc := d.cal.Gripper
	group := d.group
	raw := gc.RangeMin + int(math.Round(clamp(position, 0, 1)*float64(gc.RangeMax-gc.RangeMin)))
	d.lastCommanded[gc.ID] = raw
	d.mu.Unlock()

	if err := group.SetPositions(ctx, feetech.PositionMap{gc.ID: raw}); err != nil {
		return &DriverFault{Op: "set_gripper", Joint: -1, Err: err}
	}
	return nil
}

func (d *FeetechDriver) Feedback(ctx context.Context) ([NumJoints]JointState, error) {
	d.mu.Lock()
	if !d.connected {
		d.mu.Unlock()
		return [NumJoints]JointState{}, ErrNotConnected
	}
	group := d.group
	d.mu.Unlock()

	positions, err := group.Positions(ctx)
	if err != nil {
		return [NumJoints]JointState{}, &DriverFault{Op: "feedback", Joint: -1, Err: err}
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	var out [NumJoints]JointState
	for i, jc := range d.cal.Joints {
		raw, ok := positions[jc.ID]
		if !ok {
			return out, &DriverFault{Op: "feedback", Joint: i, Err: errors.New("servo missing from sync read")}
		}
		bottom, top := jc.AtLimits(raw)
		encErr := 0
		if goal, commanded := d.lastCommanded[jc.ID]; commanded {
			encErr = raw - goal
		}
		out[i] = JointState{
			Position:     jc.Normalize(raw),
			EncoderError: encErr,
			LimitTop:     top,
			LimitBottom:  bottom,
			Homed:        d.homed[i],
		}
	}
	return out, nil
}

// EStop latches the stop flag first so concurrent sends are refused, then
// cuts torque bus-wide.
func (d *FeetechDriver) EStop() error {
	d.mu.Lock()
	d.estopped = true
	d.enabled = false
	connected := d.connected
	group := d.group
	d.mu.Unlock()

	if !connected {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), estopTimeout)
	defer cancel()
	if err := group.DisableAll(ctx); err != nil {
		return &DriverFault{Op: "estop", Joint: -1, Err: err}
	}
	return nil
}

// SaveOffsets rewrites the homing offset of each given joint so its
// current position reads as zero radians, then persists the calibration
// file when one is configured.
func (d *FeetechDriver) SaveOffsets(ctx context.Context, indices []int) error {
	d.mu.Lock()
	group := d.group
	connected := d.connected
	d.mu.Unlock()
	if !connected {
		return ErrNotConnected
	}
	if len(indices) == 0 {
		indices = allJoints()
	}

	positions, err := group.Positions(ctx)
	if err != nil {
		return &DriverFault{Op: "save_offset", Joint: -1, Err: err}
	}

	d.mu.Lock()
	for _, i := range indices {
		if i < 0 || i >= NumJoints {
			d.mu.Unlock()
			return &ValidationError{Joint: i, Reason: "unknown joint index"}
		}
		jc := &d.cal.Joints[i]
		raw, ok := positions[jc.ID]
		if !ok {
			d.mu.Unlock()
			return &DriverFault{Op: "save_offset", Joint: i, Err: errors.New("servo missing from sync read")}
		}
		jc.HomingOffset = raw - (jc.RangeMin+jc.RangeMax)/2
	}
	cal := d.cal
	d.mu.Unlock()

	if d.cfg.CalibrationFile == "" {
		d.logger.Warnf("no calibration file configured, offsets kept in memory only")
		return nil
	}
	return cal.Save(d.cfg.CalibrationFile)
}

func (d *FeetechDriver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.connected {
		return nil
	}
	d.connected = false
	d.group = nil
	d.bus = nil
	return sharedBuses.Release(d.cfg.Port)
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
