package armcore

import "sync"

// CommandQueue is a bounded FIFO. Producers enqueue from any goroutine;
// the execution loop is the only consumer. Enqueue validates against the
// configured joint limits and never blocks.
type CommandQueue struct {
	mu       sync.Mutex
	commands []MotionCommand
	capacity int
	limits   [NumJoints][2]float64
}

func NewCommandQueue(capacity int, limits [NumJoints][2]float64) *CommandQueue {
	return &CommandQueue{
		commands: make([]MotionCommand, 0, capacity),
		capacity: capacity,
		limits:   limits,
	}
}

// Enqueue appends cmd, rejecting invalid commands with a ValidationError
// and returning ErrQueueFull at capacity.
func (q *CommandQueue) Enqueue(cmd MotionCommand) error {
	if err := cmd.validate(q.limits); err != nil {
		return err
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.commands) >= q.capacity {
		return ErrQueueFull
	}
	q.commands = append(q.commands, cmd)
	return nil
}

// Dequeue pops the oldest command, reporting false when the queue is empty.
func (q *CommandQueue) Dequeue() (MotionCommand, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.commands) == 0 {
		return MotionCommand{}, false
	}
	cmd := q.commands[0]
	q.commands = q.commands[1:]
	return cmd, true
}

// Flush drops every queued command and returns how many were dropped.
func (q *CommandQueue) Flush() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := len(q.commands)
	q.commands = q.commands[:0]
	return n
}

func (q *CommandQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.commands)
}
