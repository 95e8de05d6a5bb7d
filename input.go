package armcore

import "time"

// Control identifies one axis or button on an input device. The names
// follow the Linux gamepad convention: sticks are AbsoluteX/Y and
// AbsoluteRX/RY, analog triggers AbsoluteZ/RZ, bumpers ButtonLT/RT.
type Control string

const (
	AbsoluteX  Control = "AbsoluteX"
	AbsoluteY  Control = "AbsoluteY"
	AbsoluteRX Control = "AbsoluteRX"
	AbsoluteRY Control = "AbsoluteRY"
	AbsoluteZ  Control = "AbsoluteZ"
	AbsoluteRZ Control = "AbsoluteRZ"

	ButtonSouth Control = "ButtonSouth"
	ButtonEast  Control = "ButtonEast"
	ButtonWest  Control = "ButtonWest"
	ButtonNorth Control = "ButtonNorth"
	ButtonLT    Control = "ButtonLT"
	ButtonRT    Control = "ButtonRT"
	ButtonStart Control = "ButtonStart"
)

// EventType classifies what happened on a Control.
type EventType string

const (
	// PositionChangeAbs reports a new absolute axis position in [-1, 1]
	// for sticks and [0, 1] for triggers.
	PositionChangeAbs EventType = "PositionChangeAbs"
	// ButtonPress and ButtonRelease report digital buttons; Value is 1
	// on press and 0 on release.
	ButtonPress   EventType = "ButtonPress"
	ButtonRelease EventType = "ButtonRelease"
)

// Event is one input sample delivered to an adapter.
type Event struct {
	Time    time.Time
	Event   EventType
	Control Control
	Value   float64
}
