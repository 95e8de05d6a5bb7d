package armcore

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func testLimits() [NumJoints][2]float64 {
	return defaultJointLimits()
}

func TestQueueFIFO(t *testing.T) {
	q := NewCommandQueue(8, testLimits())

	for i := 1; i <= 3; i++ {
		cmd := JointTarget([NumJoints]float64{float64(i) * 0.1}, time.Second)
		require.NoError(t, q.Enqueue(cmd))
	}
	require.Equal(t, 3, q.Len())

	for i := 1; i <= 3; i++ {
		cmd, ok := q.Dequeue()
		require.True(t, ok)
		require.InDelta(t, float64(i)*0.1, cmd.Target[0], 1e-9)
	}
	_, ok := q.Dequeue()
	require.False(t, ok)
}

func TestQueueCapacity(t *testing.T) {
	q := NewCommandQueue(2, testLimits())

	require.NoError(t, q.Enqueue(GripperTarget(0.1)))
	require.NoError(t, q.Enqueue(GripperTarget(0.2)))
	err := q.Enqueue(GripperTarget(0.3))
	require.ErrorIs(t, err, ErrQueueFull)
	require.Equal(t, 2, q.Len())
}

func TestQueueValidation(t *testing.T) {
	q := NewCommandQueue(8, testLimits())

	t.Run("target outside limits", func(t *testing.T) {
		cmd := JointTarget([NumJoints]float64{0, math.Pi}, time.Second)
		err := q.Enqueue(cmd)
		var verr *ValidationError
		require.ErrorAs(t, err, &verr)
		require.Equal(t, 1, verr.Joint)
		require.Equal(t, 0, q.Len(), "rejected commands never enter the queue")
	})

	t.Run("non-positive duration", func(t *testing.T) {
		err := q.Enqueue(JointTarget([NumJoints]float64{}, 0))
		var verr *ValidationError
		require.ErrorAs(t, err, &verr)
	})

	t.Run("gripper out of range", func(t *testing.T) {
		err := q.Enqueue(GripperTarget(1.5))
		var verr *ValidationError
		require.ErrorAs(t, err, &verr)
	})

	t.Run("unknown joint index", func(t *testing.T) {
		err := q.Enqueue(HomeJoints(0, NumJoints))
		var verr *ValidationError
		require.ErrorAs(t, err, &verr)
		require.Equal(t, NumJoints, verr.Joint)
	})

	t.Run("estop never queues", func(t *testing.T) {
		err := q.Enqueue(EStopCommand())
		var verr *ValidationError
		require.ErrorAs(t, err, &verr)
	})
}

func TestQueueFlush(t *testing.T) {
	q := NewCommandQueue(8, testLimits())
	for i := 0; i < 5; i++ {
		require.NoError(t, q.Enqueue(GripperTarget(0.5)))
	}
	require.Equal(t, 5, q.Flush())
	require.Equal(t, 0, q.Len())
	require.Equal(t, 0, q.Flush())
}
