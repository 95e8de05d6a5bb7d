package armcore

import "sync"

// Intent is one snapshot of the teleop velocity register: per-joint
// normalized velocities in [-1, 1] plus a gripper velocity.
type Intent struct {
	Joints  [NumJoints]float64
	Gripper float64
}

// IsZero reports whether no axis is deflected.
func (in Intent) IsZero() bool {
	for _, v := range in.Joints {
		if v != 0 {
			return false
		}
	}
	return in.Gripper == 0
}

// IntentRegister is the shared register teleop adapters write and the
// execution loop snapshots each tick. Writes are last-writer-wins; only
// one adapter is expected to be active at a time.
type IntentRegister struct {
	mu     sync.RWMutex
	intent Intent
}

func NewIntentRegister() *IntentRegister {
	return &IntentRegister{}
}

// SetJoint writes one joint's velocity, clamped to [-1, 1]. Releasing an
// input zeroes the axis by writing 0.
func (r *IntentRegister) SetJoint(joint int, velocity float64) {
	if joint < 0 || joint >= NumJoints {
		return
	}
	r.mu.Lock()
	r.intent.Joints[joint] = clamp(velocity, -1, 1)
	r.mu.Unlock()
}

// SetGripper writes the gripper velocity, clamped to [-1, 1].
func (r *IntentRegister) SetGripper(velocity float64) {
	r.mu.Lock()
	r.intent.Gripper = clamp(velocity, -1, 1)
	r.mu.Unlock()
}

// ZeroAll clears every axis.
func (r *IntentRegister) ZeroAll() {
	r.mu.Lock()
	r.intent = Intent{}
	r.mu.Unlock()
}

// Snapshot returns the current register contents.
func (r *IntentRegister) Snapshot() Intent {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.intent
}
