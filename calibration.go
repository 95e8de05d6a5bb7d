package armcore

import (
	"encoding/json"
	"math"
	"os"

	"github.com/pkg/errors"
)

// ticksPerTurn is the STS servo encoder resolution.
const ticksPerTurn = 4096

// limitMarginTicks is how close to a calibrated range bound the encoder
// must read before the limit flag asserts.
const limitMarginTicks = 8

// JointCalibration maps one servo's raw encoder range onto radians.
// HomingOffset shifts the zero reference and is what SaveOffset rewrites.
type JointCalibration struct {
	ID           int `json:"id"`
	HomingOffset int `json:"homing_offset"`
	RangeMin     int `json:"range_min"`
	RangeMax     int `json:"range_max"`
}

// center is the raw tick value that reads as zero radians.
func (c JointCalibration) center() int {
	return (c.RangeMin+c.RangeMax)/2 + c.HomingOffset
}

// Normalize converts a raw encoder reading to radians.
func (c JointCalibration) Normalize(raw int) float64 {
	return float64(raw-c.center()) * (2 * math.Pi / ticksPerTurn)
}

// Denormalize converts radians to a raw goal position, clamped to the
// calibrated range.
func (c JointCalibration) Denormalize(radians float64) int {
	raw := c.center() + int(math.Round(radians*(ticksPerTurn/(2*math.Pi))))
	if raw < c.RangeMin {
		raw = c.RangeMin
	}
	if raw > c.RangeMax {
		raw = c.RangeMax
	}
	return raw
}

// AtLimits reports whether raw sits at the bottom or top of the calibrated
// range.
func (c JointCalibration) AtLimits(raw int) (bottom, top bool) {
	return raw <= c.RangeMin+limitMarginTicks, raw >= c.RangeMax-limitMarginTicks
}

// ArmCalibration covers every joint plus the gripper.
type ArmCalibration struct {
	Joints  [NumJoints]JointCalibration `json:"joints"`
	Gripper JointCalibration            `json:"gripper"`
}

// DefaultCalibration assumes centered, full-travel servos on the default
// bus IDs. Real arms should be calibrated and the result saved.
func DefaultCalibration() ArmCalibration {
	var cal ArmCalibration
	for i := range cal.Joints {
		cal.Joints[i] = JointCalibration{ID: i + 1, RangeMin: 0, RangeMax: ticksPerTurn - 1}
	}
	cal.Gripper = JointCalibration{ID: NumJoints + 1, RangeMin: 1500, RangeMax: 2800}
	return cal
}

// LoadCalibration reads a calibration file, falling back to defaults when
// the path is empty.
func LoadCalibration(path string) (ArmCalibration, error) {
	if path == "" {
		return DefaultCalibration(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return ArmCalibration{}, errors.Wrap(err, "read calibration")
	}
	var cal ArmCalibration
	if err := json.Unmarshal(data, &cal); err != nil {
		return ArmCalibration{}, errors.Wrap(err, "parse calibration")
	}
	for i, jc := range cal.Joints {
		if jc.RangeMin >= jc.RangeMax {
			return ArmCalibration{}, errors.Errorf("joint %d calibration range inverted", i)
		}
	}
	return cal, nil
}

// Save writes the calibration as indented JSON.
func (a ArmCalibration) Save(path string) error {
	data, err := json.MarshalIndent(a, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encode calibration")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.Wrap(err, "write calibration")
	}
	return nil
}
