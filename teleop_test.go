package armcore

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIntentRegisterClamping(t *testing.T) {
	r := NewIntentRegister()

	r.SetJoint(0, 2.5)
	require.InDelta(t, 1.0, r.Snapshot().Joints[0], 1e-9)

	r.SetJoint(0, -7)
	require.InDelta(t, -1.0, r.Snapshot().Joints[0], 1e-9)

	r.SetGripper(3)
	require.InDelta(t, 1.0, r.Snapshot().Gripper, 1e-9)
}

func TestIntentRegisterIgnoresBadIndex(t *testing.T) {
	r := NewIntentRegister()
	r.SetJoint(-1, 1)
	r.SetJoint(NumJoints, 1)
	require.True(t, r.Snapshot().IsZero())
}

func TestIntentRegisterZeroAll(t *testing.T) {
	r := NewIntentRegister()
	for i := 0; i < NumJoints; i++ {
		r.SetJoint(i, 0.5)
	}
	r.SetGripper(-0.5)
	require.False(t, r.Snapshot().IsZero())

	r.ZeroAll()
	require.True(t, r.Snapshot().IsZero())
}

func TestIntentRegisterLastWriterWins(t *testing.T) {
	r := NewIntentRegister()
	r.SetJoint(2, 0.3)
	r.SetJoint(2, -0.8)
	require.InDelta(t, -0.8, r.Snapshot().Joints[2], 1e-9)
}

func TestIntentRegisterConcurrentWriters(t *testing.T) {
	r := NewIntentRegister()
	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(v float64) {
			defer wg.Done()
			for i := 0; i < 1000; i++ {
				r.SetJoint(0, v)
				r.Snapshot()
			}
		}(float64(w%3) - 1)
	}
	wg.Wait()

	v := r.Snapshot().Joints[0]
	require.GreaterOrEqual(t, v, -1.0)
	require.LessOrEqual(t, v, 1.0)
}
