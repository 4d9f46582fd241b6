// Package pose provides the entity poses read by the aiming loop.
package pose

import (
	"errors"
	"fmt"
	"math"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/num/quat"
)

// ErrPoseUnavailable is returned when an entity has no current pose.
var ErrPoseUnavailable = errors.New("pose unavailable")

// Pose is a position plus an orientation.
type Pose struct {
	Position    r3.Vector
	Orientation quat.Number
}

// Provider supplies entity positions on demand.
type Provider interface {
	Position(entity string) (r3.Vector, error)
}

// At returns a pose at p with identity orientation.
func At(x, y, z float64) Pose {
	return Pose{
		Position:    r3.Vector{X: x, Y: y, Z: z},
		Orientation: quat.Number{Real: 1},
	}
}

// FromHPR builds an orientation from heading, pitch and roll in degrees. Heading
// rotates about Z, pitch about X and roll about Y, applied in that order.
func FromHPR(h, p, r float64) quat.Number {
	return quat.Mul(quat.Mul(axisAngle(r3.Vector{Z: 1}, h), axisAngle(r3.Vector{X: 1}, p)), axisAngle(r3.Vector{Y: 1}, r))
}

// ToHPR recovers heading, pitch and roll in degrees from an orientation built
// the way FromHPR builds it. At ±90° pitch heading and roll share one axis and
// roll is reported as 0.
func ToHPR(q quat.Number) [3]float64 {
	if n := quat.Abs(q); n > 0 {
		q = quat.Scale(1/n, q)
	} else {
		return [3]float64{}
	}
	w, x, y, z := q.Real, q.Imag, q.Jmag, q.Kmag

	sp := 2 * (y*z + w*x)
	pitch := math.Asin(math.Max(-1, math.Min(1, sp)))
	var heading, roll float64
	if math.Abs(sp) < 1-1e-12 {
		heading = math.Atan2(-2*(x*y-w*z), 1-2*(x*x+z*z))
		roll = math.Atan2(-2*(x*z-w*y), 1-2*(x*x+y*y))
	} else {
		heading = math.Atan2(2*(x*y+w*z), 1-2*(y*y+z*z))
	}
	return [3]float64{heading * 180 / math.Pi, pitch * 180 / math.Pi, roll * 180 / math.Pi}
}

// HPR returns the orientation of p as heading, pitch and roll in degrees.
func (p Pose) HPR() [3]float64 {
	return ToHPR(p.Orientation)
}

func axisAngle(axis r3.Vector, degrees float64) quat.Number {
	half := degrees * math.Pi / 360
	s := math.Sin(half)
	return quat.Number{Real: math.Cos(half), Imag: axis.X * s, Jmag: axis.Y * s, Kmag: axis.Z * s}
}

// Rotate applies the orientation q to v.
func Rotate(q quat.Number, v r3.Vector) r3.Vector {
	p := quat.Number{Imag: v.X, Jmag: v.Y, Kmag: v.Z}
	out := quat.Mul(quat.Mul(q, p), quat.Conj(q))
	return r3.Vector{X: out.Imag, Y: out.Jmag, Z: out.Kmag}
}

func unavailable(entity, reason string) error {
	return fmt.Errorf("%w: %s: %s", ErrPoseUnavailable, entity, reason)
}

// Static serves fixed positions. It is safe for concurrent reads only.
type Static map[string]r3.Vector

// Position implements Provider.
func (s Static) Position(entity string) (r3.Vector, error) {
	p, ok := s[entity]
	if !ok {
		return r3.Vector{}, unavailable(entity, "unknown entity")
	}
	return p, nil
}
