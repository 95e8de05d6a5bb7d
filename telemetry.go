package armcore

import (
	"context"
	"sync"
	"time"

	goutils "go.viam.com/utils"

	"go.viam.com/rdk/logging"
)

// Frame is one telemetry sample, shaped for JSON transport.
type Frame struct {
	State  string             `json:"state"`
	Q      [NumJoints]float64 `json:"q"`
	Error  [NumJoints]int     `json:"error"`
	Limits [NumJoints][2]bool `json:"limits"`
}

// TelemetryPublisher snapshots the state store on its own cadence,
// decoupled from the control tick, and fans frames out to subscribers.
// Delivery drops the oldest frame when a subscriber lags; a slow consumer
// always sees fresh state, never a backlog.
type TelemetryPublisher struct {
	mu     sync.Mutex
	store  *StateStore
	logger logging.Logger
	period time.Duration
	subs   []chan Frame

	cancelCtx               context.Context
	cancel                  context.CancelFunc
	activeBackgroundWorkers sync.WaitGroup
}

func NewTelemetryPublisher(cfg *Config, store *StateStore) *TelemetryPublisher {
	cancelCtx, cancel := context.WithCancel(context.Background())
	return &TelemetryPublisher{
		store:     store,
		logger:    cfg.Logger,
		period:    time.Second / time.Duration(cfg.TelemetryHz),
		cancelCtx: cancelCtx,
		cancel:    cancel,
	}
}

// Subscribe registers a new frame channel. The channel is closed by Close.
func (p *TelemetryPublisher) Subscribe() <-chan Frame {
	ch := make(chan Frame, 1)
	p.mu.Lock()
	p.subs = append(p.subs, ch)
	p.mu.Unlock()
	return ch
}

// Start launches the publish loop.
func (p *TelemetryPublisher) Start() {
	p.activeBackgroundWorkers.Add(1)
	goutils.PanicCapturingGo(func() {
		defer p.activeBackgroundWorkers.Done()
		ticker := time.NewTicker(p.period)
		defer ticker.Stop()
		for {
			select {
			case <-p.cancelCtx.Done():
				return
			case <-ticker.C:
				p.publish(p.Snapshot())
			}
		}
	})
}

// Close stops the loop and closes every subscriber channel.
func (p *TelemetryPublisher) Close() {
	p.cancel()
	p.activeBackgroundWorkers.Wait()
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, ch := range p.subs {
		close(ch)
	}
	p.subs = nil
}

// Snapshot builds a frame from the current store contents without
// mutating anything.
func (p *TelemetryPublisher) Snapshot() Frame {
	joints := p.store.Joints()
	frame := Frame{State: p.store.State().String()}
	for i, j := range joints {
		frame.Q[i] = j.Position
		frame.Error[i] = j.EncoderError
		frame.Limits[i] = [2]bool{j.LimitBottom, j.LimitTop}
	}
	return frame
}

func (p *TelemetryPublisher) publish(frame Frame) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, ch := range p.subs {
		select {
		case ch <- frame:
		default:
			// subscriber lagging; replace the stale frame
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- frame:
			default:
			}
		}
	}
}
