package armcore

import (
	"testing"

	"github.com/stretchr/testify/require"

	"go.viam.com/rdk/logging"
)

func TestKeyboardJointKeys(t *testing.T) {
	intents := NewIntentRegister()
	kb := NewKeyboardAdapter(intents, func() {}, logging.NewTestLogger(t))

	tests := []struct {
		key   string
		joint int
		want  float64
	}{
		{"a", 0, -1}, {"d", 0, 1},
		{"w", 1, 1}, {"s", 1, -1},
		{"j", 2, -1}, {"l", 2, 1},
		{"i", 3, 1}, {"k", 3, -1},
		{"u", 4, -1}, {"o", 4, 1},
		{"q", 5, -1}, {"e", 5, 1},
	}
	for _, tc := range tests {
		t.Run(tc.key, func(t *testing.T) {
			kb.KeyDown(tc.key)
			require.InDelta(t, tc.want, intents.Snapshot().Joints[tc.joint], 1e-9)

			kb.KeyUp(tc.key)
			require.InDelta(t, 0, intents.Snapshot().Joints[tc.joint], 1e-9)
		})
	}
}

func TestKeyboardGripperKeys(t *testing.T) {
	intents := NewIntentRegister()
	kb := NewKeyboardAdapter(intents, func() {}, logging.NewTestLogger(t))

	kb.KeyDown("z")
	require.InDelta(t, 1, intents.Snapshot().Gripper, 1e-9)
	kb.KeyUp("z")
	require.InDelta(t, 0, intents.Snapshot().Gripper, 1e-9)

	kb.KeyDown("x")
	require.InDelta(t, -1, intents.Snapshot().Gripper, 1e-9)
	kb.KeyUp("x")
	require.InDelta(t, 0, intents.Snapshot().Gripper, 1e-9)
}

func TestKeyboardEStopKey(t *testing.T) {
	intents := NewIntentRegister()
	stopped := false
	kb := NewKeyboardAdapter(intents, func() { stopped = true }, logging.NewTestLogger(t))

	kb.KeyDown("d")
	kb.KeyDown("w")
	kb.KeyDown(" ")

	require.True(t, stopped)
	require.True(t, intents.Snapshot().IsZero(), "estop zeroes every axis")
}

func TestKeyboardUnmappedKeysIgnored(t *testing.T) {
	intents := NewIntentRegister()
	kb := NewKeyboardAdapter(intents, func() { t.Fatal("estop must not fire") }, logging.NewTestLogger(t))

	kb.KeyDown("g")
	kb.KeyUp("g")
	kb.KeyDown("enter")
	require.True(t, intents.Snapshot().IsZero())
}
