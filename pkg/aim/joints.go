package aim

import (
	"math"

	"github.com/theaterbots/lightarm/pkg/robot"
)

// Degrees converts radians to degrees.
func Degrees(radians float64) float64 {
	return radians * 180 / math.Pi
}

// MapToJoints converts a bearing into joint-local angles. Both joints turn
// against the bearing, so each angle is the negated bearing angle in degrees.
func MapToJoints(b Bearing) robot.Joints {
	return robot.Joints{
		Forearm: -Degrees(b.Declination),
		Base:    -Degrees(b.Azimuth),
	}
}
