package armcore

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"go.viam.com/rdk/logging"
)

func newTestSim(t *testing.T) (*SimDriver, *fakeClock) {
	t.Helper()
	clock := newFakeClock()
	d := NewSimDriver(defaultJointLimits(), logging.NewTestLogger(t))
	d.SetClock(clock.Now)
	ctx := context.Background()
	require.NoError(t, d.Connect(ctx))
	require.NoError(t, d.Enable(ctx))
	return d, clock
}

func TestSimDriverIntegration(t *testing.T) {
	d, clock := newTestSim(t)
	ctx := context.Background()

	target := [NumJoints]float64{1.0, -0.5}
	require.NoError(t, d.SendJointTargets(ctx, target, time.Second))

	t.Run("halfway at half time", func(t *testing.T) {
		clock.Advance(500 * time.Millisecond)
		joints, err := d.Feedback(ctx)
		require.NoError(t, err)
		require.InDelta(t, 0.5, joints[0].Position, 1e-6)
		require.InDelta(t, -0.25, joints[1].Position, 1e-6)
	})

	t.Run("settles at target", func(t *testing.T) {
		clock.Advance(2 * time.Second)
		joints, err := d.Feedback(ctx)
		require.NoError(t, err)
		require.InDelta(t, 1.0, joints[0].Position, 1e-6)
		require.InDelta(t, -0.5, joints[1].Position, 1e-6)
	})

	t.Run("does not overshoot", func(t *testing.T) {
		clock.Advance(time.Hour)
		joints, err := d.Feedback(ctx)
		require.NoError(t, err)
		require.InDelta(t, 1.0, joints[0].Position, 1e-6)
	})
}

func TestSimDriverRetarget(t *testing.T) {
	d, clock := newTestSim(t)
	ctx := context.Background()

	require.NoError(t, d.SendJointTargets(ctx, [NumJoints]float64{1.0}, time.Second))
	clock.Advance(500 * time.Millisecond)

	// preempt with a new profile from wherever the joint is now
	require.NoError(t, d.SendJointTargets(ctx, [NumJoints]float64{0}, time.Second))
	clock.Advance(time.Second)

	joints, err := d.Feedback(ctx)
	require.NoError(t, err)
	require.InDelta(t, 0, joints[0].Position, 1e-6)
}

func TestSimDriverEStopLatch(t *testing.T) {
	d, clock := newTestSim(t)
	ctx := context.Background()

	require.NoError(t, d.SendJointTargets(ctx, [NumJoints]float64{1.0}, time.Second))
	clock.Advance(250 * time.Millisecond)
	require.NoError(t, d.EStop())

	t.Run("stops in place", func(t *testing.T) {
		joints, err := d.Feedback(ctx)
		require.NoError(t, err)
		frozen := joints[0].Position
		require.InDelta(t, 0.25, frozen, 1e-6)

		clock.Advance(time.Hour)
		joints, err = d.Feedback(ctx)
		require.NoError(t, err)
		require.InDelta(t, frozen, joints[0].Position, 1e-9)
	})

	t.Run("sends refused while latched", func(t *testing.T) {
		err := d.SendJointTargets(ctx, [NumJoints]float64{0.5}, time.Second)
		require.ErrorIs(t, err, ErrEStopAsserted)
		require.ErrorIs(t, d.SetGripper(ctx, 0.5), ErrEStopAsserted)
	})

	t.Run("enable clears the latch", func(t *testing.T) {
		require.NoError(t, d.Enable(ctx))
		require.NoError(t, d.SendJointTargets(ctx, [NumJoints]float64{0.5}, time.Second))
	})
}

func TestSimDriverLimitFlags(t *testing.T) {
	d, clock := newTestSim(t)
	ctx := context.Background()

	limits := defaultJointLimits()
	require.NoError(t, d.SendJointTargets(ctx, [NumJoints]float64{0, limits[1][1]}, time.Second))
	clock.Advance(2 * time.Second)

	joints, err := d.Feedback(ctx)
	require.NoError(t, err)
	require.True(t, joints[1].LimitTop)
	require.False(t, joints[1].LimitBottom)
	require.False(t, joints[0].LimitTop)
}

func TestSimDriverHoming(t *testing.T) {
	d, _ := newTestSim(t)
	ctx := context.Background()

	d.InjectHomeError(3, errors.New("switch stuck"))
	results := d.Home(ctx, []int{0, 3})

	require.NoError(t, results[0])
	require.Error(t, results[3])

	joints, err := d.Feedback(ctx)
	require.NoError(t, err)
	require.True(t, joints[0].Homed)
	require.False(t, joints[3].Homed)
	require.InDelta(t, 0, joints[0].Position, 1e-9)
}

func TestSimDriverHomeAllByDefault(t *testing.T) {
	d, _ := newTestSim(t)
	results := d.Home(context.Background(), nil)
	require.Len(t, results, NumJoints)
	for i, err := range results {
		require.NoError(t, err, "joint %d", i)
	}
}

func TestSimDriverNotConnected(t *testing.T) {
	d := NewSimDriver(defaultJointLimits(), logging.NewTestLogger(t))
	ctx := context.Background()
	require.ErrorIs(t, d.Enable(ctx), ErrNotConnected)
	require.ErrorIs(t, d.SendJointTargets(ctx, [NumJoints]float64{}, time.Second), ErrNotConnected)
	_, err := d.Feedback(ctx)
	require.ErrorIs(t, err, ErrNotConnected)
}
