package armcore

import (
	"time"

	"github.com/golang/geo/r3"

	"go.viam.com/rdk/logging"
)

// Hand landmark indices in the 21-point topology the tracking pipeline
// emits.
const (
	landmarkWrist     = 0
	landmarkThumbTip  = 4
	landmarkIndexMCP  = 5
	landmarkIndexTip  = 8
	landmarkMiddleMCP = 9
	landmarkMiddleTip = 12
	landmarkRingMCP   = 13
	landmarkRingTip   = 16
	landmarkPinkyMCP  = 17
	landmarkPinkyTip  = 20

	numLandmarks = 21
)

const (
	HandLeft  = "Left"
	HandRight = "Right"
)

// HandFrame is one tracked hand sample: 21 landmarks in normalized image
// space plus which hand it is.
type HandFrame struct {
	Hand      string
	Landmarks []r3.Vector
	Time      time.Time
}

// palmSpan is the wrist to middle-knuckle distance, used to scale pinch
// thresholds so detection is invariant to how far the hand is from the
// camera.
func (f HandFrame) palmSpan() float64 {
	return f.Landmarks[landmarkWrist].Distance(f.Landmarks[landmarkMiddleMCP])
}

const (
	// pinchRatio scales the palm span into a thumb-to-fingertip pinch
	// threshold.
	pinchRatio = 0.25

	// toggleScale is the velocity magnitude a held pinch applies.
	toggleScale = 0.5
)

// touchFinger is one pinchable fingertip and the joint it drives.
type touchFinger struct {
	name  string
	tip   int
	joint int
}

var touchFingers = [...]touchFinger{
	{"index", landmarkIndexTip, 0},
	{"middle", landmarkMiddleTip, 1},
	{"ring", landmarkRingTip, 2},
	{"pinky", landmarkPinkyTip, 3},
}

// GestureToggleAdapter drives joints from thumb-to-fingertip pinches.
// Pinching a finger holds a constant velocity on its joint; the right
// hand moves positive, the left negative. Releasing the pinch zeroes the
// joint.
type GestureToggleAdapter struct {
	intents *IntentRegister
	logger  logging.Logger
	pinched [len(touchFingers)]bool
}

func NewGestureToggleAdapter(intents *IntentRegister, logger logging.Logger) *GestureToggleAdapter {
	return &GestureToggleAdapter{intents: intents, logger: logger}
}

// Process consumes one hand frame. Frames without a full landmark set are
// dropped.
func (g *GestureToggleAdapter) Process(frame HandFrame) {
	if len(frame.Landmarks) != numLandmarks {
		return
	}
	threshold := frame.palmSpan() * pinchRatio
	direction := toggleScale
	if frame.Hand == HandLeft {
		direction = -toggleScale
	}
	thumb := frame.Landmarks[landmarkThumbTip]
	for i, finger := range touchFingers {
		pinched := thumb.Distance(frame.Landmarks[finger.tip]) < threshold
		if pinched == g.pinched[i] {
			continue
		}
		g.pinched[i] = pinched
		if pinched {
			g.logger.Debugf("%s pinch on joint %d", finger.name, finger.joint)
			g.intents.SetJoint(finger.joint, direction)
		} else {
			g.intents.SetJoint(finger.joint, 0)
		}
	}
}

// Reset releases every held pinch, zeroing the joints this adapter drives.
func (g *GestureToggleAdapter) Reset() {
	for i, finger := range touchFingers {
		if g.pinched[i] {
			g.pinched[i] = false
			g.intents.SetJoint(finger.joint, 0)
		}
	}
}
