package armcore

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	goutils "go.viam.com/utils"

	"go.viam.com/rdk/logging"
)

// zeroAllDuration is how long the synthesized move-to-zero from the
// gesture zero-all action takes.
const zeroAllDuration = 2 * time.Second

// activeCommand is a joint-target command in flight, interpolated linearly
// from the positions captured when it started.
type activeCommand struct {
	cmd    MotionCommand
	start  time.Time
	startQ [NumJoints]float64
}

// OffsetSaver is implemented by drivers that can persist the current
// position as a homing offset.
type OffsetSaver interface {
	SaveOffsets(ctx context.Context, indices []int) error
}

// Executor owns the fixed-cadence execution loop: the single consumer of
// the command queue, the single writer of the system state, and the only
// component that talks to the driver apart from EStop.
type Executor struct {
	mu      sync.Mutex
	cfg     *Config
	driver  Driver
	store   *StateStore
	queue   *CommandQueue
	intents *IntentRegister
	logger  logging.Logger
	limits  [NumJoints][2]float64
	period  time.Duration

	enabled           bool
	active            *activeCommand
	pausedAt          time.Time
	resumeState       SystemState
	consecutiveFaults int
	prevLimits        [NumJoints][2]bool

	now func() time.Time

	cancelCtx               context.Context
	cancel                  context.CancelFunc
	activeBackgroundWorkers sync.WaitGroup
}

func NewExecutor(cfg *Config, driver Driver, store *StateStore, queue *CommandQueue, intents *IntentRegister) *Executor {
	cancelCtx, cancel := context.WithCancel(context.Background())
	return &Executor{
		cfg:       cfg,
		driver:    driver,
		store:     store,
		queue:     queue,
		intents:   intents,
		logger:    cfg.Logger,
		limits:    cfg.Limits(),
		period:    time.Second / time.Duration(cfg.LoopHz),
		now:       time.Now,
		cancelCtx: cancelCtx,
		cancel:    cancel,
	}
}

// Start connects and enables the driver, then launches the tick loop.
func (e *Executor) Start(ctx context.Context) error {
	connectCtx, connectCancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer connectCancel()
	if err := e.driver.Connect(connectCtx); err != nil {
		return errors.Wrap(err, "connect driver")
	}
	if err := e.driver.Enable(connectCtx); err != nil {
		return errors.Wrap(err, "enable driver")
	}
	e.mu.Lock()
	e.enabled = true
	e.store.SetState(StateReady)
	e.mu.Unlock()

	e.activeBackgroundWorkers.Add(1)
	goutils.PanicCapturingGo(func() {
		defer e.activeBackgroundWorkers.Done()
		ticker := time.NewTicker(e.period)
		defer ticker.Stop()
		e.logger.Infof("execution loop running at %d Hz", e.cfg.LoopHz)
		for {
			select {
			case <-e.cancelCtx.Done():
				return
			case <-ticker.C:
				e.tick(e.cancelCtx)
			}
		}
	})
	return nil
}

// Close stops the loop and releases the driver.
func (e *Executor) Close() error {
	e.cancel()
	e.activeBackgroundWorkers.Wait()
	return e.driver.Close()
}

// Submit routes a command: EStop applies immediately from the calling
// goroutine, everything else goes through the queue. Submissions are
// refused while estopped.
func (e *Executor) Submit(cmd MotionCommand) error {
	if cmd.Kind == CommandEStop {
		e.EStop()
		return nil
	}
	if e.store.State() == StateEStopped {
		return ErrEStopAsserted
	}
	return e.queue.Enqueue(cmd)
}

// EStop stops the arm immediately: driver-level stop, queue flush, intent
// clear, state latch. Safe from any goroutine, including concurrently
// with a running tick.
func (e *Executor) EStop() {
	if err := e.driver.EStop(); err != nil {
		e.logger.Errorf("driver estop: %v", err)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	dropped := e.queue.Flush()
	e.active = nil
	e.enabled = false
	e.intents.ZeroAll()
	e.store.SetState(StateEStopped)
	e.logger.Warnf("emergency stop latched, %d queued commands dropped", dropped)
}

// Pause suspends dequeuing and interpolation. Feedback polling continues.
func (e *Executor) Pause() {
	e.mu.Lock()
	defer e.mu.Unlock()
	state := e.store.State()
	if state != StateReady && state != StateExecuting {
		return
	}
	e.resumeState = state
	e.pausedAt = e.now()
	e.store.SetState(StatePaused)
	e.logger.Infof("execution paused")
}

// Resume continues from a pause, shifting any in-flight command's deadline
// by the time spent paused.
func (e *Executor) Resume() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.store.State() != StatePaused {
		return
	}
	if e.active != nil {
		e.active.start = e.active.start.Add(e.now().Sub(e.pausedAt))
	}
	e.store.SetState(e.resumeState)
	e.logger.Infof("execution resumed")
}

// ZeroAll clears teleop intent and queues a move to the all-zero pose.
func (e *Executor) ZeroAll() {
	e.intents.ZeroAll()
	var zero [NumJoints]float64
	for i := range zero {
		zero[i] = clamp(0, e.limits[i][0], e.limits[i][1])
	}
	if err := e.queue.Enqueue(JointTarget(zero, zeroAllDuration)); err != nil {
		e.logger.Warnf("zero-all not queued: %v", err)
	}
}

// Recover clears an ERROR or ESTOPPED latch: re-enables the driver and
// returns to IDLE. The loop promotes IDLE to READY on its next tick.
func (e *Executor) Recover(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	state := e.store.State()
	if state != StateError && state != StateEStopped {
		return errors.Errorf("cannot recover from %s", state)
	}
	enableCtx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()
	if err := e.driver.Enable(enableCtx); err != nil {
		return errors.Wrap(err, "re-enable driver")
	}
	e.enabled = true
	e.consecutiveFaults = 0
	e.active = nil
	e.queue.Flush()
	e.store.ClearLastError()
	e.store.SetState(StateIdle)
	e.logger.Infof("recovered to IDLE")
	return nil
}

// tick runs one cycle: command processing, then a feedback poll with
// fault counting and limit-switch abort handling.
func (e *Executor) tick(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch e.store.State() {
	case StateEStopped, StateError:
		// latched; nothing moves, but keep observing the arm
		e.pollFeedback(ctx)
		return
	case StateIdle:
		if e.enabled {
			e.store.SetState(StateReady)
		}
		e.pollFeedback(ctx)
		return
	case StatePaused:
		e.pollFeedback(ctx)
		return
	}

	if e.active == nil {
		if cmd, ok := e.queue.Dequeue(); ok {
			e.beginCommand(ctx, cmd)
		} else {
			e.synthesizeTeleop(ctx)
		}
	}
	if e.active != nil {
		e.stepActive(ctx)
	}

	e.pollFeedback(ctx)
}

func (e *Executor) beginCommand(ctx context.Context, cmd MotionCommand) {
	switch cmd.Kind {
	case CommandJointTarget:
		e.active = &activeCommand{cmd: cmd, start: e.now(), startQ: e.store.Positions()}
		e.store.SetState(StateExecuting)
	case CommandGripperTarget:
		sendCtx, cancel := context.WithTimeout(ctx, e.period)
		defer cancel()
		if err := e.driver.SetGripper(sendCtx, cmd.GripperPosition); err != nil {
			e.logger.Warnf("gripper command failed: %v", err)
			e.store.SetLastError(-1, &DriverFault{Op: "set_gripper", Joint: -1, Err: err})
			return
		}
		e.store.SetGripper(cmd.GripperPosition)
	case CommandHomeJoints:
		e.runHoming(ctx, cmd.Joints)
	case CommandSaveOffset:
		e.runSaveOffset(ctx, cmd.Joints)
	}
}

// runHoming blocks the loop for the duration of the homing sequence; no
// other motion is meaningful while joints are seeking their reference.
func (e *Executor) runHoming(ctx context.Context, indices []int) {
	e.store.SetState(StateHoming)
	homeCtx, cancel := context.WithTimeout(ctx, e.cfg.HomeTimeout)
	defer cancel()
	results := e.driver.Home(homeCtx, indices)
	failed := 0
	for joint, err := range results {
		if err != nil {
			failed++
			e.logger.Warnf("homing joint %d failed: %v", joint, err)
			e.store.SetLastError(joint, &DriverFault{Op: "home", Joint: joint, Err: err})
		}
	}
	if failed == 0 {
		e.logger.Infof("homed %d joints", len(results))
	}
	e.store.SetState(StateReady)
}

func (e *Executor) runSaveOffset(ctx context.Context, indices []int) {
	saver, ok := e.driver.(OffsetSaver)
	if !ok {
		e.logger.Warnf("driver does not persist homing offsets")
		return
	}
	saveCtx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()
	if err := saver.SaveOffsets(saveCtx, indices); err != nil {
		e.logger.Warnf("save offsets failed: %v", err)
		e.store.SetLastError(-1, &DriverFault{Op: "save_offset", Joint: -1, Err: err})
	}
}

// stepActive re-issues the interpolated target for the in-flight command.
func (e *Executor) stepActive(ctx context.Context) {
	cmd := e.active.cmd
	elapsed := e.now().Sub(e.active.start)
	frac := float64(elapsed) / float64(cmd.Duration)

	var target [NumJoints]float64
	done := frac >= 1
	if done {
		target = cmd.Target
	} else {
		for i := range target {
			target[i] = e.active.startQ[i] + (cmd.Target[i]-e.active.startQ[i])*frac
		}
	}

	sendCtx, cancel := context.WithTimeout(ctx, e.period)
	defer cancel()
	if err := e.driver.SendJointTargets(sendCtx, target, e.period); err != nil {
		e.logger.Warnf("send targets failed: %v", err)
		e.store.SetLastError(-1, &DriverFault{Op: "send_joint_targets", Joint: -1, Err: err})
		e.active = nil
		e.store.SetState(StateError)
		return
	}
	if done {
		e.active = nil
		e.store.SetState(StateReady)
	}
}

// synthesizeTeleop integrates the intent register over one tick when the
// queue is idle, clamping the result to the joint limits.
func (e *Executor) synthesizeTeleop(ctx context.Context) {
	intent := e.intents.Snapshot()
	if intent.IsZero() {
		return
	}
	dt := e.period.Seconds()
	q := e.store.Positions()
	for i := range q {
		q[i] = clamp(q[i]+intent.Joints[i]*e.cfg.MaxJointSpeed*dt, e.limits[i][0], e.limits[i][1])
	}
	sendCtx, cancel := context.WithTimeout(ctx, e.period)
	defer cancel()
	if err := e.driver.SendJointTargets(sendCtx, q, e.period); err != nil {
		e.logger.Warnf("teleop step failed: %v", err)
		e.store.SetLastError(-1, &DriverFault{Op: "send_joint_targets", Joint: -1, Err: err})
		e.store.SetState(StateError)
		return
	}
	if intent.Gripper != 0 {
		pos := clamp(e.store.Gripper()+intent.Gripper*e.cfg.GripperSpeed*dt, 0, 1)
		if err := e.driver.SetGripper(sendCtx, pos); err != nil {
			e.logger.Warnf("teleop gripper step failed: %v", err)
			return
		}
		e.store.SetGripper(pos)
	}
}

// pollFeedback refreshes the joint state store, counting consecutive
// failures toward the fault threshold and aborting the active command
// when a limit switch trips.
func (e *Executor) pollFeedback(ctx context.Context) {
	fbCtx, cancel := context.WithTimeout(ctx, e.period)
	defer cancel()
	joints, err := e.driver.Feedback(fbCtx)
	if err != nil {
		e.consecutiveFaults++
		if e.consecutiveFaults >= e.cfg.FaultThreshold {
			fault := &DriverFault{Op: "feedback", Joint: -1, Err: err}
			e.logger.Errorf("feedback failed %d consecutive ticks: %v", e.consecutiveFaults, err)
			e.store.SetLastError(-1, fault)
			e.active = nil
			e.store.SetState(StateError)
		}
		return
	}
	e.consecutiveFaults = 0
	e.store.SetJoints(joints)

	for i := range joints {
		trippedTop := joints[i].LimitTop && !e.prevLimits[i][0]
		trippedBottom := joints[i].LimitBottom && !e.prevLimits[i][1]
		e.prevLimits[i][0] = joints[i].LimitTop
		e.prevLimits[i][1] = joints[i].LimitBottom
		if (trippedTop || trippedBottom) && e.active != nil {
			limitErr := &LimitError{Joint: i, Top: trippedTop}
			e.logger.Warnf("aborting active command: %v", limitErr)
			e.store.SetLastError(i, limitErr)
			e.active = nil
			e.store.SetState(StateReady)
		}
	}
}
