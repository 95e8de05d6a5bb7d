package armcore

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrQueueFull is returned by Enqueue when the queue is at capacity.
	ErrQueueFull = errors.New("command queue full")

	// ErrEStopAsserted is returned by drivers and the executor while an
	// emergency stop is latched. Enable clears the latch.
	ErrEStopAsserted = errors.New("emergency stop asserted")

	// ErrNotConnected is returned by driver operations before Connect.
	ErrNotConnected = errors.New("driver not connected")
)

// ValidationError rejects a command at enqueue time. Joint is -1 when the
// problem is not attributable to a single joint.
type ValidationError struct {
	Joint  int
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Joint >= 0 {
		return fmt.Sprintf("invalid command: joint %d: %s", e.Joint, e.Reason)
	}
	return fmt.Sprintf("invalid command: %s", e.Reason)
}

// DriverFault wraps a failed driver operation. Joint is -1 when the fault
// is bus-wide rather than joint-attributed.
type DriverFault struct {
	Op    string
	Joint int
	Err   error
}

func (e *DriverFault) Error() string {
	if e.Joint >= 0 {
		return fmt.Sprintf("driver fault during %s on joint %d: %v", e.Op, e.Joint, e.Err)
	}
	return fmt.Sprintf("driver fault during %s: %v", e.Op, e.Err)
}

func (e *DriverFault) Unwrap() error { return e.Err }

// LimitError records a limit switch tripping while a command was in flight.
type LimitError struct {
	Joint int
	Top   bool
}

func (e *LimitError) Error() string {
	side := "bottom"
	if e.Top {
		side = "top"
	}
	return fmt.Sprintf("joint %d hit %s limit switch", e.Joint, side)
}
