package armcore

import (
	"context"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"go.viam.com/rdk/logging"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type harness struct {
	cfg      *Config
	clock    *fakeClock
	driver   *SimDriver
	store    *StateStore
	queue    *CommandQueue
	intents  *IntentRegister
	executor *Executor
}

// newHarness assembles an executor over the simulation driver with a
// fake clock; ticks are driven by hand instead of the background loop.
func newHarness(t *testing.T) *harness {
	t.Helper()
	cfg := &Config{Logger: logging.NewTestLogger(t)}
	require.NoError(t, cfg.Validate())

	clock := newFakeClock()
	driver := NewSimDriver(cfg.Limits(), cfg.Logger)
	driver.SetClock(clock.Now)

	ctx := context.Background()
	require.NoError(t, driver.Connect(ctx))
	require.NoError(t, driver.Enable(ctx))

	store := NewStateStore()
	queue := NewCommandQueue(cfg.QueueSize, cfg.Limits())
	intents := NewIntentRegister()
	exec := NewExecutor(cfg, driver, store, queue, intents)
	exec.now = clock.Now
	exec.enabled = true
	store.SetState(StateReady)

	return &harness{cfg: cfg, clock: clock, driver: driver, store: store, queue: queue, intents: intents, executor: exec}
}

// step advances the clock one loop period and runs one tick.
func (h *harness) step(ctx context.Context) {
	h.clock.Advance(h.executor.period)
	h.executor.tick(ctx)
}

func TestExecutorJointTarget(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	target := [NumJoints]float64{0.5, -0.3, 0.2, 0, 0.8, -0.1}
	require.NoError(t, h.executor.Submit(JointTarget(target, 2*time.Second)))

	h.executor.tick(ctx)
	require.Equal(t, StateExecuting, h.store.State())

	// two seconds of ticks plus settle time
	steps := int(2*time.Second/h.executor.period) + 5
	for i := 0; i < steps; i++ {
		h.step(ctx)
	}

	require.Equal(t, StateReady, h.store.State())
	q := h.store.Positions()
	for i := range target {
		require.InDelta(t, target[i], q[i], 0.05, "joint %d", i)
	}
}

func TestExecutorMidpointInterpolation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	target := [NumJoints]float64{1.0}
	require.NoError(t, h.executor.Submit(JointTarget(target, 2*time.Second)))
	h.executor.tick(ctx)

	steps := int(time.Second / h.executor.period)
	for i := 0; i < steps; i++ {
		h.step(ctx)
	}

	require.Equal(t, StateExecuting, h.store.State())
	q := h.store.Positions()
	require.InDelta(t, 0.5, q[0], 0.1)
}

func TestExecutorEStop(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, h.executor.Submit(JointTarget([NumJoints]float64{0.1}, time.Second)))
	}
	h.executor.tick(ctx)
	require.Equal(t, StateExecuting, h.store.State())

	require.NoError(t, h.executor.Submit(EStopCommand()))

	t.Run("latched and flushed", func(t *testing.T) {
		require.Equal(t, StateEStopped, h.store.State())
		require.Equal(t, 0, h.queue.Len())
	})

	t.Run("no motion after latch", func(t *testing.T) {
		before := h.store.Positions()
		for i := 0; i < 10; i++ {
			h.step(ctx)
		}
		require.Equal(t, StateEStopped, h.store.State())
		after := h.store.Positions()
		for i := range before {
			require.InDelta(t, before[i], after[i], 1e-9)
		}
	})

	t.Run("submissions refused", func(t *testing.T) {
		err := h.executor.Submit(GripperTarget(0.5))
		require.ErrorIs(t, err, ErrEStopAsserted)
	})

	t.Run("recover to idle then ready", func(t *testing.T) {
		require.NoError(t, h.executor.Recover(ctx))
		require.Equal(t, StateIdle, h.store.State())
		h.step(ctx)
		require.Equal(t, StateReady, h.store.State())
	})
}

func TestExecutorTeleopSynthesis(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.executor.tick(ctx) // initial feedback poll
	h.intents.SetJoint(0, 1)
	h.intents.SetJoint(1, -0.5)

	for i := 0; i < 50; i++ {
		h.step(ctx)
	}

	require.Equal(t, StateReady, h.store.State(), "teleop motion must not enter EXECUTING")
	q := h.store.Positions()
	// one second of integration at MaxJointSpeed, minus one tick of lag
	require.InDelta(t, h.cfg.MaxJointSpeed, q[0], 0.1)
	require.InDelta(t, -0.5*h.cfg.MaxJointSpeed, q[1], 0.1)

	t.Run("release stops motion", func(t *testing.T) {
		h.intents.ZeroAll()
		h.step(ctx)
		h.step(ctx)
		before := h.store.Positions()
		for i := 0; i < 10; i++ {
			h.step(ctx)
		}
		after := h.store.Positions()
		require.InDelta(t, before[0], after[0], 1e-6)
	})
}

func TestExecutorTeleopClampedToLimits(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.executor.tick(ctx)
	h.intents.SetJoint(1, 1)

	// far longer than needed to reach the limit at full speed
	steps := int(4 * math.Pi / h.cfg.MaxJointSpeed * float64(h.cfg.LoopHz))
	for i := 0; i < steps; i++ {
		h.step(ctx)
	}

	q := h.store.Positions()
	require.LessOrEqual(t, q[1], h.cfg.JointLimits[1][1]+1e-9)
}

func TestExecutorHomePartialFailure(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.driver.InjectHomeError(2, errors.New("limit switch never triggered"))
	require.NoError(t, h.executor.Submit(HomeJoints(0, 2)))

	h.executor.tick(ctx)
	require.Equal(t, StateReady, h.store.State())

	h.step(ctx)
	joints := h.store.Joints()
	require.True(t, joints[0].Homed)
	require.False(t, joints[2].Homed)

	report := h.store.LastError()
	require.NotNil(t, report)
	require.Equal(t, 2, report.Joint)
	var fault *DriverFault
	require.ErrorAs(t, report.Err, &fault)
}

func TestExecutorFeedbackFaultThreshold(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.driver.InjectFeedbackError(errors.New("bus timeout"))

	for i := 0; i < h.cfg.FaultThreshold-1; i++ {
		h.step(ctx)
		require.Equal(t, StateReady, h.store.State(), "below threshold must not fault")
	}
	h.step(ctx)
	require.Equal(t, StateError, h.store.State())

	report := h.store.LastError()
	require.NotNil(t, report)
	require.Equal(t, -1, report.Joint)

	t.Run("single success resets the count", func(t *testing.T) {
		h.driver.InjectFeedbackError(nil)
		require.NoError(t, h.executor.Recover(ctx))
		h.step(ctx)
		require.Equal(t, StateReady, h.store.State())

		h.driver.InjectFeedbackError(errors.New("bus timeout"))
		for i := 0; i < h.cfg.FaultThreshold-1; i++ {
			h.step(ctx)
		}
		h.driver.InjectFeedbackError(nil)
		h.step(ctx)
		require.Equal(t, StateReady, h.store.State())
	})
}

func TestExecutorLimitAbortsActiveCommand(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	// the physical switch on joint 1 sits inside the configured soft
	// range, as it would with a misaligned hard stop
	hardStops := h.cfg.Limits()
	hardStops[1][1] = 1.0
	h.driver = NewSimDriver(hardStops, h.cfg.Logger)
	h.driver.SetClock(h.clock.Now)
	require.NoError(t, h.driver.Connect(ctx))
	require.NoError(t, h.driver.Enable(ctx))
	h.executor.driver = h.driver

	h.executor.tick(ctx)

	top := h.cfg.JointLimits[1][1]
	require.NoError(t, h.executor.Submit(JointTarget([NumJoints]float64{0, top}, time.Second)))
	h.executor.tick(ctx)
	require.Equal(t, StateExecuting, h.store.State())

	steps := int(time.Second/h.executor.period) + 10
	for i := 0; i < steps; i++ {
		h.step(ctx)
		if h.store.State() != StateExecuting {
			break
		}
	}

	require.Equal(t, StateReady, h.store.State(), "limit trip aborts, does not cascade to ERROR")
	report := h.store.LastError()
	require.NotNil(t, report)
	require.Equal(t, 1, report.Joint)
	var limitErr *LimitError
	require.ErrorAs(t, report.Err, &limitErr)
	require.True(t, limitErr.Top)
}

func TestExecutorPauseResume(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	require.NoError(t, h.executor.Submit(JointTarget([NumJoints]float64{0.5}, time.Second)))
	h.executor.tick(ctx)

	quarter := int(time.Second/h.executor.period) / 4
	for i := 0; i < quarter; i++ {
		h.step(ctx)
	}

	h.executor.Pause()
	require.Equal(t, StatePaused, h.store.State())

	// the model coasts to the last issued target within a tick, then
	// must hold still
	h.step(ctx)
	h.step(ctx)
	pausedAt := h.store.Positions()
	for i := 0; i < 20; i++ {
		h.step(ctx)
	}
	require.InDelta(t, pausedAt[0], h.store.Positions()[0], 1e-6, "no motion while paused")

	h.executor.Resume()
	require.Equal(t, StateExecuting, h.store.State())

	steps := int(time.Second/h.executor.period) + 10
	for i := 0; i < steps; i++ {
		h.step(ctx)
	}
	require.Equal(t, StateReady, h.store.State())
	require.InDelta(t, 0.5, h.store.Positions()[0], 0.05)
}

func TestExecutorGripperCommand(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	require.NoError(t, h.executor.Submit(GripperTarget(0.7)))
	h.executor.tick(ctx)

	require.Equal(t, StateReady, h.store.State(), "gripper commands complete immediately")
	require.InDelta(t, 0.7, h.store.Gripper(), 1e-9)
	require.InDelta(t, 0.7, h.driver.Gripper(), 1e-9)
}

func TestExecutorZeroAll(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.intents.SetJoint(0, 1)
	for i := 0; i < 25; i++ {
		h.step(ctx)
	}
	require.Greater(t, h.store.Positions()[0], 0.1)

	h.executor.ZeroAll()
	require.True(t, h.intents.Snapshot().IsZero())

	steps := int(zeroAllDuration/h.executor.period) + 10
	for i := 0; i < steps; i++ {
		h.step(ctx)
	}
	require.InDelta(t, 0, h.store.Positions()[0], 0.05)
}
