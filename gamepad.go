package armcore

import (
	"math"
	"sync"

	"go.viam.com/rdk/logging"
)

const triggerThreshold = 0.5

// GamepadAdapter converts gamepad events into velocity intents. Sticks
// drive joints 0 through 3, the analog triggers joint 4, the bumpers
// joint 5, and the south/east buttons the gripper.
//
// Instead of a fixed stick deadzone, the adapter samples the sticks at
// rest during a short calibration window and sets each axis deadzone to
// the observed drift plus a configured margin, so a worn controller never
// leaks motion while centered.
type GamepadAdapter struct {
	mu          sync.Mutex
	intents     *IntentRegister
	estop       func()
	logger      logging.Logger
	margin      float64
	hysteresis  float64
	deadzone    map[Control]float64
	calibrating bool
	restDrift   map[Control]float64
	triggerOn   map[Control]bool
}

var stickJoints = map[Control]struct {
	joint int
	scale float64
}{
	AbsoluteX:  {0, 1},
	AbsoluteY:  {1, -1}, // stick up reads negative, joint up is positive
	AbsoluteRX: {2, 1},
	AbsoluteRY: {3, -1},
}

func NewGamepadAdapter(intents *IntentRegister, estop func(), cfg *Config) *GamepadAdapter {
	return &GamepadAdapter{
		intents:    intents,
		estop:      estop,
		logger:     cfg.Logger,
		margin:     cfg.DeadzoneMargin,
		hysteresis: cfg.TriggerHysteresis,
		deadzone:   make(map[Control]float64),
		triggerOn:  make(map[Control]bool),
	}
}

// StartCalibration begins sampling stick drift. The controller must be at
// rest until FinishCalibration.
func (g *GamepadAdapter) StartCalibration() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calibrating = true
	g.restDrift = make(map[Control]float64)
	g.intents.ZeroAll()
}

// FinishCalibration locks in per-axis deadzones from the sampled drift.
func (g *GamepadAdapter) FinishCalibration() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calibrating = false
	for control := range stickJoints {
		g.deadzone[control] = g.restDrift[control] + g.margin
	}
	g.restDrift = nil
	g.logger.Infof("gamepad deadzones calibrated: %v", g.deadzone)
}

// HandleEvent consumes one input event.
func (g *GamepadAdapter) HandleEvent(ev Event) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.calibrating {
		if ev.Event == PositionChangeAbs {
			if drift := math.Abs(ev.Value); drift > g.restDrift[ev.Control] {
				g.restDrift[ev.Control] = drift
			}
		}
		return
	}

	switch ev.Event {
	case PositionChangeAbs:
		if m, ok := stickJoints[ev.Control]; ok {
			g.intents.SetJoint(m.joint, g.applyDeadzone(ev.Control, ev.Value)*m.scale)
			return
		}
		switch ev.Control {
		case AbsoluteZ:
			g.handleTrigger(ev.Control, ev.Value, -1)
		case AbsoluteRZ:
			g.handleTrigger(ev.Control, ev.Value, 1)
		}
	case ButtonPress:
		g.handleButton(ev.Control, true)
	case ButtonRelease:
		g.handleButton(ev.Control, false)
	}
}

// applyDeadzone zeroes values inside the calibrated deadzone and rescales
// the rest so deflection just past the deadzone starts from zero.
func (g *GamepadAdapter) applyDeadzone(control Control, value float64) float64 {
	dz := g.deadzone[control]
	if dz == 0 {
		dz = g.margin
	}
	abs := math.Abs(value)
	if abs <= dz {
		return 0
	}
	scaled := (abs - dz) / (1 - dz)
	if value < 0 {
		return -scaled
	}
	return scaled
}

// handleTrigger treats an analog trigger as a switch with release
// hysteresis so a trigger held near the threshold does not chatter.
func (g *GamepadAdapter) handleTrigger(control Control, value, direction float64) {
	on := g.triggerOn[control]
	if !on && value >= triggerThreshold {
		g.triggerOn[control] = true
		g.intents.SetJoint(4, direction)
	} else if on && value < triggerThreshold-g.hysteresis {
		g.triggerOn[control] = false
		g.intents.SetJoint(4, 0)
	}
}

func (g *GamepadAdapter) handleButton(control Control, pressed bool) {
	switch control {
	case ButtonLT:
		g.setHeld(5, -1, pressed)
	case ButtonRT:
		g.setHeld(5, 1, pressed)
	case ButtonSouth:
		if pressed {
			g.intents.SetGripper(1)
		} else {
			g.intents.SetGripper(0)
		}
	case ButtonEast:
		if pressed {
			g.intents.SetGripper(-1)
		} else {
			g.intents.SetGripper(0)
		}
	case ButtonStart:
		if pressed {
			g.intents.ZeroAll()
			g.logger.Warnf("emergency stop from gamepad")
			g.estop()
		}
	}
}

func (g *GamepadAdapter) setHeld(joint int, direction float64, pressed bool) {
	if pressed {
		g.intents.SetJoint(joint, direction)
	} else {
		g.intents.SetJoint(joint, 0)
	}
}
