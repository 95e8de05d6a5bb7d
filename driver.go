package armcore

import (
	"context"
	"time"
)

// Driver is the actuation boundary. The simulation and hardware variants
// implement identical semantics so the execution loop cannot tell them
// apart. All blocking operations honor their context; callers bound them
// with a deadline, typically one polling period.
//
// EStop latches: after it returns, SendJointTargets and SetGripper are
// refused with ErrEStopAsserted until Enable runs again. EStop must be
// callable from any goroutine, concurrently with in-flight operations.
type Driver interface {
	// Connect opens the transport. Idempotent.
	Connect(ctx context.Context) error

	// Enable powers joint actuation and clears a latched estop.
	Enable(ctx context.Context) error

	// Disable cuts actuation power without latching an estop.
	Disable(ctx context.Context) error

	// Home drives the given joints to their reference position and
	// reports a per-joint result. Joints that fail stay unhomed.
	Home(ctx context.Context, indices []int) map[int]error

	// SendJointTargets issues a motion profile toward q reached over
	// duration. Re-issuing with a new target preempts the old profile.
	SendJointTargets(ctx context.Context, q [NumJoints]float64, duration time.Duration) error

	// SetGripper commands the gripper to a normalized position in [0, 1].
	SetGripper(ctx context.Context, position float64) error

	// Feedback decodes the latest joint telemetry.
	Feedback(ctx context.Context) ([NumJoints]JointState, error)

	// EStop asserts an immediate stop independent of normal command flow.
	EStop() error

	// Close releases the transport.
	Close() error
}
