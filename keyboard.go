package armcore

import (
	"go.viam.com/rdk/logging"
)

// keyBinding maps a key to one velocity axis. Gripper bindings use
// joint == gripperAxis.
type keyBinding struct {
	joint int
	scale float64
}

const gripperAxis = -1

// defaultKeymap pairs keys per joint: left hand rows drive the shoulder
// side, right hand rows the wrist side.
var defaultKeymap = map[string]keyBinding{
	"a": {0, -1}, "d": {0, 1},
	"w": {1, 1}, "s": {1, -1},
	"j": {2, -1}, "l": {2, 1},
	"i": {3, 1}, "k": {3, -1},
	"u": {4, -1}, "o": {4, 1},
	"q": {5, -1}, "e": {5, 1},
	"z": {gripperAxis, 1}, "x": {gripperAxis, -1},
}

const estopKey = " "

// KeyboardAdapter converts key press/release events into level-held
// velocity intents. Holding a key keeps the axis deflected; releasing it
// zeroes the axis. The space bar zeroes everything and raises an
// emergency stop.
type KeyboardAdapter struct {
	intents *IntentRegister
	estop   func()
	keymap  map[string]keyBinding
	logger  logging.Logger
}

func NewKeyboardAdapter(intents *IntentRegister, estop func(), logger logging.Logger) *KeyboardAdapter {
	return &KeyboardAdapter{
		intents: intents,
		estop:   estop,
		keymap:  defaultKeymap,
		logger:  logger,
	}
}

// KeyDown handles a key press. Unmapped keys are ignored.
func (k *KeyboardAdapter) KeyDown(key string) {
	if key == estopKey {
		k.intents.ZeroAll()
		k.logger.Warnf("emergency stop from keyboard")
		k.estop()
		return
	}
	b, ok := k.keymap[key]
	if !ok {
		return
	}
	if b.joint == gripperAxis {
		k.intents.SetGripper(b.scale)
		return
	}
	k.intents.SetJoint(b.joint, b.scale)
}

// KeyUp handles a key release, zeroing the axis the key was driving.
func (k *KeyboardAdapter) KeyUp(key string) {
	b, ok := k.keymap[key]
	if !ok {
		return
	}
	if b.joint == gripperAxis {
		k.intents.SetGripper(0)
		return
	}
	k.intents.SetJoint(b.joint, 0)
}
