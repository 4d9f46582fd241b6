// Package aim turns target poses into servo commands: bearing solve, joint
// mapping, position encoding and the per-tick dispatch of one batch.
package aim

import (
	"errors"
	"fmt"
	"math"

	"github.com/golang/geo/r3"
	"github.com/samber/lo"
)

// ErrDegenerateGeometry is returned when the direction to the target is undefined.
var ErrDegenerateGeometry = errors.New("degenerate geometry")

// FallbackAzimuth is reported when the direction is too close to the
// declination axis for the azimuth to be computed.
const FallbackAzimuth = math.Pi / 2

// Frame names the axes used to decompose a direction. Declination is measured
// along Declination and azimuth from Reference. Lateral completes the basis. Up
// is the vertical axis: a target above the arm snaps the azimuth.
type Frame struct {
	Declination r3.Vector
	Reference   r3.Vector
	Lateral     r3.Vector
	Up          r3.Vector
}

var (
	// DefaultFrame treats Z as up and as the declination axis, Y as straight ahead.
	DefaultFrame = Frame{
		Declination: r3.Vector{Z: 1},
		Reference:   r3.Vector{Y: 1},
		Lateral:     r3.Vector{X: 1},
		Up:          r3.Vector{Z: 1},
	}
	// SceneFrame matches the theater scene, where arm models face along X and Z is up.
	SceneFrame = Frame{
		Declination: r3.Vector{X: 1},
		Reference:   r3.Vector{Y: 1},
		Lateral:     r3.Vector{Z: 1},
		Up:          r3.Vector{Z: 1},
	}
)

// Bearing is the direction an arm must point, in radians.
type Bearing struct {
	Declination float64
	Azimuth     float64
	Lateral     float64 // signed angle toward the lateral axis, diagnostics only
	Singular    bool // azimuth is the fallback value
	Snapped     bool // azimuth was snapped to 0 or π
}

func clamp1(x float64) float64 {
	return lo.Clamp(x, -1, 1)
}

// Solve computes the bearing from arm to target. Near the declination axis,
// where cos(declination) is not above threshold, the azimuth falls back to π/2
// and is never snapped. Otherwise a target above the arm snaps the azimuth to
// 0 or π; level and lower targets keep the computed azimuth.
func Solve(arm, target r3.Vector, frame Frame, threshold float64) (Bearing, error) {
	delta := target.Sub(arm)
	norm := delta.Norm()
	if norm == 0 || math.IsNaN(norm) || math.IsInf(norm, 0) {
		return Bearing{}, fmt.Errorf("%w: direction from %v to %v", ErrDegenerateGeometry, arm, target)
	}
	d := delta.Mul(1 / norm)

	var b Bearing
	b.Declination = math.Asin(clamp1(d.Dot(frame.Declination)))

	cosDec := math.Cos(b.Declination)
	if cosDec > threshold {
		b.Lateral = math.Asin(clamp1(d.Dot(frame.Lateral) / cosDec))
		b.Azimuth = math.Acos(clamp1(d.Dot(frame.Reference) / cosDec))
	} else {
		b.Lateral = FallbackAzimuth
		b.Azimuth = FallbackAzimuth
		b.Singular = true
	}

	if !b.Singular && d.Dot(frame.Up) > 0 {
		b.Snapped = true
		if b.Azimuth < math.Pi/2 {
			b.Azimuth = 0
		} else {
			b.Azimuth = math.Pi
		}
	}

	return b, nil
}
