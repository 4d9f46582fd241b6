package pose

import (
	"math"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/golang/geo/r3"
)

// Orbit moves one entity around a horizontal circle and delegates every other
// entity to a fallback provider. It stands in for a scene when none is attached.
type Orbit struct {
	Entity string
	Center r3.Vector
	Radius float64
	Period time.Duration

	clock    clock.Clock
	start    time.Time
	fallback Provider
}

// NewOrbit creates an orbit starting now on clk.
func NewOrbit(clk clock.Clock, entity string, center r3.Vector, radius float64, period time.Duration, fallback Provider) *Orbit {
	if clk == nil {
		clk = clock.New()
	}
	return &Orbit{
		Entity:   entity,
		Center:   center,
		Radius:   radius,
		Period:   period,
		clock:    clk,
		start:    clk.Now(),
		fallback: fallback,
	}
}

// Position implements Provider.
func (o *Orbit) Position(entity string) (r3.Vector, error) {
	if entity != o.Entity {
		if o.fallback == nil {
			return r3.Vector{}, unavailable(entity, "unknown entity")
		}
		return o.fallback.Position(entity)
	}
	var phase float64
	if o.Period > 0 {
		elapsed := o.clock.Since(o.start)
		phase = 2 * math.Pi * float64(elapsed%o.Period) / float64(o.Period)
	}
	return o.Center.Add(r3.Vector{
		X: o.Radius * math.Cos(phase),
		Y: o.Radius * math.Sin(phase),
	}), nil
}
