package agent

import (
	"context"
	"math"

	"github.com/urbandriving/engine/internal/object"
	"github.com/urbandriving/engine/internal/shape"
	"github.com/urbandriving/engine/internal/state"
	"github.com/urbandriving/engine/pkg/core"
)

// Signals further than this from a crosswalk do not control it.
const signalRange = 150.0

// Pedestrian walks its route point by point and waits at the kerb while the
// crosswalk ahead shows red.
type Pedestrian struct {
	ref  state.Ref
	next int
}

func NewPedestrian(ref state.Ref) *Pedestrian {
	return &Pedestrian{ref: ref}
}

func (p *Pedestrian) EvalPolicy(_ context.Context, req Request) (core.Action, error) {
	o, err := lookup(req.State, p.ref)
	if err != nil {
		return core.Action{}, err
	}
	t := o.Trajectory
	if t.Empty() || !t.Has('x') || !t.Has('y') {
		return core.Null(), nil
	}
	for ; p.next < t.NPoints(); p.next++ {
		x, _ := t.Field(p.next, 'x')
		y, _ := t.Field(p.next, 'y')
		if shape.Distance(o.Shape.X, o.Shape.Y, x, y) > 1e-6 {
			break
		}
	}
	if p.next >= t.NPoints() {
		return core.Null(), nil
	}

	x, _ := t.Field(p.next, 'x')
	y, _ := t.Field(p.next, 'y')
	vel, ok := t.Field(p.next, 'v')
	if !ok {
		vel = object.PedestrianMaxVel
	}
	if !req.Simplified && mustWait(req.State, o, x, y, vel) {
		return core.Null(), nil
	}
	return core.Waypoint(x, y, vel), nil
}

// mustWait reports whether the next step enters a crosswalk whose signal is not
// showing walk.
func mustWait(s *state.State, o object.Object, x, y, vel float64) bool {
	ahead := o.Shape
	ahead.Angle = shape.Heading(o.Shape.X, o.Shape.Y, x, y)
	step := math.Min(math.Max(vel, 0), shape.Distance(o.Shape.X, o.Shape.Y, x, y))
	sin, cos := math.Sincos(ahead.Angle)
	ahead.X += step * cos
	ahead.Y -= step * sin

	for _, i := range s.StaticsOf(object.Crosswalk) {
		cw := s.Statics[i].Shape
		if o.Shape.Intersects(cw) || !ahead.Intersects(cw) {
			continue
		}
		if signal, ok := nearestSignal(s, cw); ok && signal.Light != core.LightWhite {
			return true
		}
	}
	return false
}

func nearestSignal(s *state.State, cw shape.Shape) (object.Object, bool) {
	var best object.Object
	bestDist := signalRange
	found := false
	for _, o := range s.Objects[state.TrafficLights] {
		if o.Kind != object.CrosswalkLight {
			continue
		}
		if d := shape.Distance(o.Shape.X, o.Shape.Y, cw.X, cw.Y); d <= bestDist {
			best, bestDist, found = o, d, true
		}
	}
	return best, found
}
