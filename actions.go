package armcore

import (
	"encoding/json"
	"os"
	"sync"
	"time"

	"github.com/pkg/errors"

	"go.viam.com/rdk/logging"
)

// Actions a recognized gesture can trigger.
const (
	ActionZeroAll = "zero_all_joints"
	ActionPause   = "teleop_pause"
	ActionResume  = "teleop_resume"
)

// neutralLabel is the classifier's rest class and is never actionable,
// regardless of what a bindings file says.
const neutralLabel = "neutral"

// sampleStaleness is how long a label streak survives without a fresh
// sample before it is considered released.
const sampleStaleness = 300 * time.Millisecond

// ActionSink receives the recognizer's outputs. The executor implements
// it.
type ActionSink interface {
	ZeroAll()
	Pause()
	Resume()
}

// GestureSample is one scored classification from the gesture pipeline.
type GestureSample struct {
	Label      string
	Confidence float64
	Hand       string
	Time       time.Time
}

// ActionBinding maps a gesture label to an action, gated by a confidence
// floor and a hold duration.
type ActionBinding struct {
	Action        string  `json:"action"`
	MinConfidence float64 `json:"min_confidence"`
	MinDurationS  float64 `json:"min_duration_s"`
}

func (b ActionBinding) minDuration() time.Duration {
	return time.Duration(b.MinDurationS * float64(time.Second))
}

// DefaultActionBindings is the shipped gesture vocabulary.
var DefaultActionBindings = map[string]ActionBinding{
	"rock_and_roll": {Action: ActionZeroAll, MinConfidence: 0.8, MinDurationS: 0.6},
	"thumbs_up":     {Action: ActionResume, MinConfidence: 0.7, MinDurationS: 0.5},
	"peace_sign":    {Action: ActionPause, MinConfidence: 0.7, MinDurationS: 0.5},
}

// labelStreak tracks how long one label has been held continuously.
type labelStreak struct {
	since time.Time
	last  time.Time
	fired bool
}

// ActionRecognizer debounces the gesture label stream into discrete
// actions. A label must stay above its confidence floor for its hold
// duration before its action fires, and it fires only once until the
// label is released or goes stale. Low-confidence and unmapped labels are
// dropped silently.
type ActionRecognizer struct {
	mu       sync.Mutex
	sink     ActionSink
	logger   logging.Logger
	path     string
	bindings map[string]ActionBinding
	streaks  map[string]*labelStreak
}

// NewActionRecognizer loads bindings from path, or uses the defaults when
// path is empty.
func NewActionRecognizer(sink ActionSink, path string, logger logging.Logger) (*ActionRecognizer, error) {
	r := &ActionRecognizer{
		sink:    sink,
		logger:  logger,
		path:    path,
		streaks: make(map[string]*labelStreak),
	}
	if err := r.Reload(); err != nil {
		return nil, err
	}
	return r, nil
}

// Reload re-reads the bindings file, swapping the mapping atomically with
// respect to Observe. Hot reload only happens on this explicit call.
func (r *ActionRecognizer) Reload() error {
	bindings := DefaultActionBindings
	if r.path != "" {
		data, err := os.ReadFile(r.path)
		if err != nil {
			return errors.Wrap(err, "read gesture bindings")
		}
		loaded := make(map[string]ActionBinding)
		if err := json.Unmarshal(data, &loaded); err != nil {
			return errors.Wrap(err, "parse gesture bindings")
		}
		for label, b := range loaded {
			switch b.Action {
			case ActionZeroAll, ActionPause, ActionResume:
			default:
				return errors.Errorf("label %q binds unknown action %q", label, b.Action)
			}
		}
		bindings = loaded
	}
	r.mu.Lock()
	r.bindings = bindings
	r.streaks = make(map[string]*labelStreak)
	r.mu.Unlock()
	r.logger.Infof("gesture bindings loaded: %d labels", len(bindings))
	return nil
}

// Observe consumes one classified sample.
func (r *ActionRecognizer) Observe(sample GestureSample) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := sample.Time
	if now.IsZero() {
		now = time.Now()
	}

	// Any sample of a different label releases the streaks it interrupts.
	for label, streak := range r.streaks {
		if label != sample.Label && now.Sub(streak.last) > sampleStaleness {
			delete(r.streaks, label)
		}
	}

	if sample.Label == neutralLabel {
		delete(r.streaks, sample.Label)
		return
	}
	binding, ok := r.bindings[sample.Label]
	if !ok || sample.Confidence < binding.MinConfidence {
		return
	}

	streak, ok := r.streaks[sample.Label]
	if !ok || now.Sub(streak.last) > sampleStaleness {
		r.streaks[sample.Label] = &labelStreak{since: now, last: now}
		return
	}
	streak.last = now
	if streak.fired || now.Sub(streak.since) < binding.minDuration() {
		return
	}
	streak.fired = true
	r.logger.Infof("gesture %q held, firing %s", sample.Label, binding.Action)
	r.dispatch(binding.Action)
}

func (r *ActionRecognizer) dispatch(action string) {
	switch action {
	case ActionZeroAll:
		r.sink.ZeroAll()
	case ActionPause:
		r.sink.Pause()
	case ActionResume:
		r.sink.Resume()
	}
}
