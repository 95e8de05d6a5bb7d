package armcore

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/pkg/errors"

	"go.viam.com/rdk/logging"
)

const limitEpsilon = 1e-9

// SimDriver integrates joint motion analytically, advancing the model
// whenever it is observed or commanded. It reproduces the hardware
// variant's contract exactly: latched estop, per-joint homing results,
// limit flags at the configured hard stops.
type SimDriver struct {
	mu         sync.Mutex
	logger     logging.Logger
	limits     [NumJoints][2]float64
	connected  bool
	enabled    bool
	estopped   bool
	q          [NumJoints]float64
	target     [NumJoints]float64
	rate       [NumJoints]float64
	homed      [NumJoints]bool
	gripper    float64
	lastUpdate time.Time

	// test hooks
	now         func() time.Time
	feedbackErr error
	homeErrs    map[int]error
}

func NewSimDriver(limits [NumJoints][2]float64, logger logging.Logger) *SimDriver {
	return &SimDriver{
		limits: limits,
		logger: logger,
		now:    time.Now,
	}
}

func (d *SimDriver) Connect(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.connected {
		d.connected = true
		d.lastUpdate = d.now()
		d.logger.Infof("simulation driver connected")
	}
	return nil
}

func (d *SimDriver) Enable(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.connected {
		return ErrNotConnected
	}
	d.enabled = true
	d.estopped = false
	return nil
}

func (d *SimDriver) Disable(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.enabled = false
	d.stopInPlaceLocked()
	return nil
}

func (d *SimDriver) Home(ctx context.Context, indices []int) map[int]error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.advanceLocked()
	if len(indices) == 0 {
		indices = allJoints()
	}
	results := make(map[int]error, len(indices))
	for _, i := range indices {
		if err, ok := d.homeErrs[i]; ok && err != nil {
			results[i] = err
			d.homed[i] = false
			continue
		}
		d.q[i] = clamp(0, d.limits[i][0], d.limits[i][1])
		d.target[i] = d.q[i]
		d.rate[i] = 0
		d.homed[i] = true
		results[i] = nil
	}
	return results
}

func (d *SimDriver) SendJointTargets(ctx context.Context, q [NumJoints]float64, duration time.Duration) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.connected {
		return ErrNotConnected
	}
	if d.estopped {
		return ErrEStopAsserted
	}
	if !d.enabled {
		return errors.New("torque not enabled")
	}
	if duration <= 0 {
		return errors.New("duration must be positive")
	}
	d.advanceLocked()
	secs := duration.Seconds()
	for i := range q {
		d.target[i] = clamp(q[i], d.limits[i][0], d.limits[i][1])
		d.rate[i] = math.Abs(d.target[i]-d.q[i]) / secs
	}
	return nil
}

func (d *SimDriver) SetGripper(ctx context.Context, position float64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.connected {
		return ErrNotConnected
	}
	if d.estopped {
		return ErrEStopAsserted
	}
	d.gripper = clamp(position, 0, 1)
	return nil
}

func (d *SimDriver) Feedback(ctx context.Context) ([NumJoints]JointState, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.feedbackErr; err != nil {
		return [NumJoints]JointState{}, err
	}
	if !d.connected {
		return [NumJoints]JointState{}, ErrNotConnected
	}
	d.advanceLocked()
	var out [NumJoints]JointState
	for i := range out {
		out[i] = JointState{
			Position:    d.q[i],
			LimitTop:    d.q[i] >= d.limits[i][1]-limitEpsilon,
			LimitBottom: d.q[i] <= d.limits[i][0]+limitEpsilon,
			Homed:       d.homed[i],
		}
	}
	return out, nil
}

func (d *SimDriver) EStop() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.estopped = true
	d.enabled = false
	d.stopInPlaceLocked()
	return nil
}

func (d *SimDriver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.connected = false
	return nil
}

// Gripper reports the simulated gripper position.
func (d *SimDriver) Gripper() float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.gripper
}

// SetClock replaces the wall clock for deterministic tests.
func (d *SimDriver) SetClock(now func() time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.now = now
	d.lastUpdate = now()
}

// InjectFeedbackError makes every Feedback call fail until cleared with nil.
func (d *SimDriver) InjectFeedbackError(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.feedbackErr = err
}

// InjectHomeError makes homing the given joint fail.
func (d *SimDriver) InjectHomeError(joint int, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.homeErrs == nil {
		d.homeErrs = make(map[int]error)
	}
	d.homeErrs[joint] = err
}

func (d *SimDriver) advanceLocked() {
	now := d.now()
	dt := now.Sub(d.lastUpdate).Seconds()
	d.lastUpdate = now
	if dt <= 0 {
		return
	}
	for i := range d.q {
		delta := d.target[i] - d.q[i]
		step := d.rate[i] * dt
		if math.Abs(delta) <= step {
			d.q[i] = d.target[i]
			d.rate[i] = 0
			continue
		}
		if delta > 0 {
			d.q[i] += step
		} else {
			d.q[i] -= step
		}
	}
}

func (d *SimDriver) stopInPlaceLocked() {
	d.advanceLocked()
	for i := range d.q {
		d.target[i] = d.q[i]
		d.rate[i] = 0
	}
}

func allJoints() []int {
	out := make([]int, NumJoints)
	for i := range out {
		out[i] = i
	}
	return out
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
