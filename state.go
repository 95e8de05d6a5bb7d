package armcore

import (
	"sync"
	"time"
)

// NumJoints is the number of arm joints, not counting the gripper.
const NumJoints = 6

// SystemState is the execution loop's state machine value.
type SystemState int32

const (
	StateIdle SystemState = iota
	StateHoming
	StateReady
	StateExecuting
	StatePaused
	StateEStopped
	StateError
)

func (s SystemState) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateHoming:
		return "HOMING"
	case StateReady:
		return "READY"
	case StateExecuting:
		return "EXECUTING"
	case StatePaused:
		return "PAUSED"
	case StateEStopped:
		return "ESTOPPED"
	case StateError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// JointState is one joint's feedback sample. Drivers are the only writers;
// adapters and the telemetry publisher only ever read copies.
type JointState struct {
	Position     float64
	EncoderError int
	LimitTop     bool
	LimitBottom  bool
	Homed        bool
}

// ErrorReport attributes the most recent failure to a joint. Joint is -1
// for bus-wide faults.
type ErrorReport struct {
	Joint int
	Err   error
	When  time.Time
}

// StateStore holds the latest driver feedback and the system state. The
// executor is the sole writer of the system state and the error report;
// joint samples come only from driver feedback polls.
type StateStore struct {
	mu      sync.RWMutex
	joints  [NumJoints]JointState
	gripper float64
	state   SystemState
	lastErr *ErrorReport
}

func NewStateStore() *StateStore {
	return &StateStore{state: StateIdle}
}

// SetJoints replaces the joint snapshot with fresh driver feedback.
func (s *StateStore) SetJoints(joints [NumJoints]JointState) {
	s.mu.Lock()
	s.joints = joints
	s.mu.Unlock()
}

// Joints returns a copy of the latest joint snapshot.
func (s *StateStore) Joints() [NumJoints]JointState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.joints
}

// Positions returns just the joint positions in radians.
func (s *StateStore) Positions() [NumJoints]float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var q [NumJoints]float64
	for i := range s.joints {
		q[i] = s.joints[i].Position
	}
	return q
}

func (s *StateStore) SetGripper(position float64) {
	s.mu.Lock()
	s.gripper = position
	s.mu.Unlock()
}

func (s *StateStore) Gripper() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.gripper
}

func (s *StateStore) SetState(state SystemState) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

func (s *StateStore) State() SystemState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *StateStore) SetLastError(joint int, err error) {
	s.mu.Lock()
	s.lastErr = &ErrorReport{Joint: joint, Err: err, When: time.Now()}
	s.mu.Unlock()
}

// LastError returns the most recent error report, or nil.
func (s *StateStore) LastError() *ErrorReport {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.lastErr == nil {
		return nil
	}
	cp := *s.lastErr
	return &cp
}

func (s *StateStore) ClearLastError() {
	s.mu.Lock()
	s.lastErr = nil
	s.mu.Unlock()
}
