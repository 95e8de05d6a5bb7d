package armcore

import (
	"math"
	"time"

	"github.com/golang/geo/r3"

	"go.viam.com/rdk/logging"
)

const (
	sliderGain      = 2.0
	sliderDeadzone  = 0.05
	sliderSmoothing = 0.3

	// referenceUpdateInterval and referenceAlpha govern the slow drift
	// correction that keeps a long-held grip from saturating as the
	// whole hand wanders.
	referenceUpdateInterval = time.Second
	referenceAlpha          = 0.35
)

// Joints whose axes run opposite the hand's natural motion on this arm.
var (
	invertedVerticalJoints   = map[int]bool{2: true}
	invertedHorizontalJoints = map[int]bool{3: true, 5: true}
)

// sliderPair binds one fingertip to a horizontal and a vertical joint.
// The pinky drives the gripper instead (gripperAxis sentinel).
type sliderPair struct {
	name       string
	tip        int
	horizontal int
	vertical   int
}

var sliderPairs = [...]sliderPair{
	{"index", landmarkIndexTip, 0, 1},
	{"middle", landmarkMiddleTip, 3, 2},
	{"ring", landmarkRingTip, 5, 4},
	{"pinky", landmarkPinkyTip, gripperAxis, gripperAxis},
}

// gripSession tracks one held pinch: the reference point displacement is
// measured from, and the smoothed output velocities.
type gripSession struct {
	active   bool
	ref      r3.Vector
	smoothed [2]float64
}

// GestureSliderAdapter turns held pinches into proportional joint
// velocities. Pinching opens a grip session anchored at the pinch point;
// moving the pinched fingers displaces a virtual slider whose horizontal
// and vertical throw drive a joint pair each. Releasing, or re-pinching,
// re-anchors at the current position so the slider always starts centered.
type GestureSliderAdapter struct {
	intents      *IntentRegister
	logger       logging.Logger
	sessions     [len(sliderPairs)]gripSession
	lastRecenter time.Time
}

func NewGestureSliderAdapter(intents *IntentRegister, logger logging.Logger) *GestureSliderAdapter {
	return &GestureSliderAdapter{intents: intents, logger: logger}
}

// Process consumes one hand frame.
func (g *GestureSliderAdapter) Process(frame HandFrame) {
	if len(frame.Landmarks) != numLandmarks {
		return
	}
	span := frame.palmSpan()
	if span <= 0 {
		return
	}
	threshold := span * pinchRatio
	thumb := frame.Landmarks[landmarkThumbTip]

	recenter := false
	if !frame.Time.IsZero() {
		if g.lastRecenter.IsZero() {
			g.lastRecenter = frame.Time
		} else if frame.Time.Sub(g.lastRecenter) >= referenceUpdateInterval {
			recenter = true
			g.lastRecenter = frame.Time
		}
	}

	for i, pair := range sliderPairs {
		tip := frame.Landmarks[pair.tip]
		pinchPoint := thumb.Add(tip).Mul(0.5)
		pinched := thumb.Distance(tip) < threshold
		session := &g.sessions[i]

		switch {
		case pinched && !session.active:
			session.active = true
			session.ref = pinchPoint
			session.smoothed = [2]float64{}
			g.logger.Debugf("%s grip engaged", pair.name)
		case !pinched && session.active:
			session.active = false
			g.releasePair(pair)
			continue
		case !pinched:
			continue
		}

		if recenter {
			session.ref = session.ref.Mul(1 - referenceAlpha).Add(pinchPoint.Mul(referenceAlpha))
		}

		// Displacement in palm spans keeps throw independent of how far
		// the hand is from the camera. Image y grows downward.
		dx := (pinchPoint.X - session.ref.X) / span
		dy := (session.ref.Y - pinchPoint.Y) / span

		h := applySliderShaping(dx * sliderGain)
		v := applySliderShaping(dy * sliderGain)
		session.smoothed[0] = sliderSmoothing*h + (1-sliderSmoothing)*session.smoothed[0]
		session.smoothed[1] = sliderSmoothing*v + (1-sliderSmoothing)*session.smoothed[1]

		g.applyPair(pair, frame.Hand, session.smoothed[0], session.smoothed[1])
	}
}

// ForceRecenter snaps every active grip reference to its current pinch
// point, for when the operator wants a clean zero immediately.
func (g *GestureSliderAdapter) ForceRecenter(frame HandFrame) {
	if len(frame.Landmarks) != numLandmarks {
		return
	}
	thumb := frame.Landmarks[landmarkThumbTip]
	for i, pair := range sliderPairs {
		session := &g.sessions[i]
		if !session.active {
			continue
		}
		session.ref = thumb.Add(frame.Landmarks[pair.tip]).Mul(0.5)
		session.smoothed = [2]float64{}
		g.releasePair(pair)
	}
}

// Reset drops every session and zeroes the driven axes.
func (g *GestureSliderAdapter) Reset() {
	for i, pair := range sliderPairs {
		if g.sessions[i].active {
			g.sessions[i] = gripSession{}
			g.releasePair(pair)
		}
	}
}

func (g *GestureSliderAdapter) applyPair(pair sliderPair, hand string, h, v float64) {
	if pair.horizontal == gripperAxis {
		g.intents.SetGripper(v)
		return
	}
	if invertedHorizontalJoints[pair.horizontal] {
		h = -h
	}
	if hand == HandLeft {
		h = -h
	}
	if invertedVerticalJoints[pair.vertical] {
		v = -v
	}
	g.intents.SetJoint(pair.horizontal, h)
	g.intents.SetJoint(pair.vertical, v)
}

func (g *GestureSliderAdapter) releasePair(pair sliderPair) {
	if pair.horizontal == gripperAxis {
		g.intents.SetGripper(0)
		return
	}
	g.intents.SetJoint(pair.horizontal, 0)
	g.intents.SetJoint(pair.vertical, 0)
}

// applySliderShaping applies the deadzone and clamps to unit velocity.
func applySliderShaping(v float64) float64 {
	if math.Abs(v) < sliderDeadzone {
		return 0
	}
	return clamp(v, -1, 1)
}
