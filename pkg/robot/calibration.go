package robot

import (
	"fmt"
	"math"
)

// Default calibration constants. A ±90° logical joint range maps onto ±300 servo
// units around each role's neutral position.
const (
	DefaultScale                = 300
	DefaultSpan                 = 90.0
	DefaultForearmOffset        = 512
	DefaultBaseOffset           = 212
	DefaultSingularityThreshold = 1e-5
)

// JointCalibration holds the linear mapping from a joint angle to a servo position.
type JointCalibration struct {
	Scale  float64 `json:"scale"`  // servo units per Span degrees
	Span   float64 `json:"span"`   // degrees covered by Scale units
	Offset float64 `json:"offset"` // servo position at 0°
}

// Calibration holds the calibration for both joint roles plus the solver's
// singularity threshold.
type Calibration struct {
	Forearm              JointCalibration `json:"forearm"`
	Base                 JointCalibration `json:"base"`
	SingularityThreshold float64          `json:"singularity_threshold"`
}

// DefaultCalibration returns the calibration for the stock servos.
func DefaultCalibration() Calibration {
	return Calibration{
		Forearm: JointCalibration{
			Scale:  DefaultScale,
			Span:   DefaultSpan,
			Offset: DefaultForearmOffset,
		},
		Base: JointCalibration{
			Scale:  DefaultScale,
			Span:   DefaultSpan,
			Offset: DefaultBaseOffset,
		},
		SingularityThreshold: DefaultSingularityThreshold,
	}
}

// Role returns the calibration for a joint role.
func (c Calibration) Role(role JointRole) JointCalibration {
	if role == Forearm {
		return c.Forearm
	}
	return c.Base
}

// Validate checks that every mapping is usable.
func (c Calibration) Validate() error {
	for _, role := range AllJoints() {
		jc := c.Role(role)
		if jc.Span == 0 {
			return fmt.Errorf("%s calibration: span must be non-zero", role)
		}
		if jc.Scale == 0 {
			return fmt.Errorf("%s calibration: scale must be non-zero", role)
		}
	}
	if c.SingularityThreshold < 0 {
		return fmt.Errorf("singularity threshold must not be negative")
	}
	return nil
}

// Encode converts a joint angle in degrees to a servo position, rounding half
// away from zero. Out of range results are returned as is.
func (c JointCalibration) Encode(degrees float64) int {
	return int(math.Round(degrees/c.Span*c.Scale + c.Offset))
}
