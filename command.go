package armcore

import (
	"time"
)

// CommandKind discriminates MotionCommand variants.
type CommandKind int

const (
	CommandJointTarget CommandKind = iota
	CommandGripperTarget
	CommandHomeJoints
	CommandSaveOffset
	CommandEStop
)

func (k CommandKind) String() string {
	switch k {
	case CommandJointTarget:
		return "joint"
	case CommandGripperTarget:
		return "gripper"
	case CommandHomeJoints:
		return "home"
	case CommandSaveOffset:
		return "save_offset"
	case CommandEStop:
		return "estop"
	default:
		return "unknown"
	}
}

// MotionCommand is one unit of work for the execution loop. Target and
// Duration apply to joint commands, GripperPosition to gripper commands,
// Joints to home and save-offset commands (nil means all joints).
type MotionCommand struct {
	Kind            CommandKind
	Target          [NumJoints]float64
	Duration        time.Duration
	GripperPosition float64
	Joints          []int
}

// JointTarget builds a full-arm position command reached over duration.
func JointTarget(target [NumJoints]float64, duration time.Duration) MotionCommand {
	return MotionCommand{Kind: CommandJointTarget, Target: target, Duration: duration}
}

// GripperTarget builds a gripper position command; position is normalized
// to [0, 1] where 0 is fully open.
func GripperTarget(position float64) MotionCommand {
	return MotionCommand{Kind: CommandGripperTarget, GripperPosition: position}
}

// HomeJoints builds a homing command for the given joints, or all joints
// when indices is empty.
func HomeJoints(indices ...int) MotionCommand {
	return MotionCommand{Kind: CommandHomeJoints, Joints: indices}
}

// SaveOffset builds a command that records the current position of the
// given joints as their homing offset.
func SaveOffset(indices ...int) MotionCommand {
	return MotionCommand{Kind: CommandSaveOffset, Joints: indices}
}

// EStopCommand builds an emergency stop. It never enters the queue; Submit
// applies it immediately.
func EStopCommand() MotionCommand {
	return MotionCommand{Kind: CommandEStop}
}

// validate checks a command against joint limits before it can be queued.
func (c MotionCommand) validate(limits [NumJoints][2]float64) error {
	switch c.Kind {
	case CommandJointTarget:
		if c.Duration <= 0 {
			return &ValidationError{Joint: -1, Reason: "duration must be positive"}
		}
		for i, q := range c.Target {
			if q < limits[i][0] || q > limits[i][1] {
				return &ValidationError{Joint: i, Reason: "target outside joint limits"}
			}
		}
	case CommandGripperTarget:
		if c.GripperPosition < 0 || c.GripperPosition > 1 {
			return &ValidationError{Joint: -1, Reason: "gripper position outside [0, 1]"}
		}
	case CommandHomeJoints, CommandSaveOffset:
		for _, j := range c.Joints {
			if j < 0 || j >= NumJoints {
				return &ValidationError{Joint: j, Reason: "unknown joint index"}
			}
		}
	case CommandEStop:
		return &ValidationError{Joint: -1, Reason: "estop bypasses the queue"}
	default:
		return &ValidationError{Joint: -1, Reason: "unknown command kind"}
	}
	return nil
}
