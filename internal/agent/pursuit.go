package agent

import (
	"context"
	"math"

	"github.com/urbandriving/engine/internal/object"
	"github.com/urbandriving/engine/internal/shape"
	"github.com/urbandriving/engine/internal/state"
	"github.com/urbandriving/engine/pkg/core"
)

const (
	lookahead    = 20.0
	brakeMargin  = 15.0
	facingCutoff = math.Pi / 4
)

// Pursuit follows the car's route, braking for obstacles and for lights that are
// not green.
type Pursuit struct {
	ref  state.Ref
	next int
}

func NewPursuit(ref state.Ref) *Pursuit {
	return &Pursuit{ref: ref}
}

func (p *Pursuit) EvalPolicy(_ context.Context, req Request) (core.Action, error) {
	o, err := lookup(req.State, p.ref)
	if err != nil {
		return core.Action{}, err
	}
	t := o.Trajectory
	if t.Empty() || !t.Has('x') || !t.Has('y') {
		return core.Velocity(0), nil
	}

	n := t.NPoints()
	for p.next < n && p.reached(o, p.next) {
		p.next++
	}
	i := min(p.next, n-1)
	vel, ok := t.Field(i, 'v')
	if !ok {
		vel = object.CarMaxVel
	}
	if !req.Simplified && mustBrake(req.State, p.ref, o) {
		vel = 0
	}
	if p.next == n {
		// Past the end of the route: hold course.
		return core.SteeringVel(0, vel), nil
	}
	x, _ := t.Field(i, 'x')
	y, _ := t.Field(i, 'y')
	return core.Waypoint(x, y, vel), nil
}

// reached reports whether route point i is within the lookahead or already behind
// the car.
func (p *Pursuit) reached(o object.Object, i int) bool {
	x, _ := o.Trajectory.Field(i, 'x')
	y, _ := o.Trajectory.Field(i, 'y')
	if shape.Distance(o.Shape.X, o.Shape.Y, x, y) < lookahead {
		return true
	}
	return shape.Point(x, y).Relative(o.Shape.Frame()).X < 0
}

// mustBrake probes the stopping distance ahead of the car for other road users and
// for lights facing the car that are not green.
func mustBrake(s *state.State, self state.Ref, o object.Object) bool {
	probe := brakeProbe(o)
	for ref, other := range s.All() {
		if ref == self || !probe.Intersects(other.Shape) {
			continue
		}
		switch other.Kind {
		case object.Car, object.Pedestrian:
			return true
		case object.TrafficLight:
			facing := math.Abs(shape.Normalize(other.Shape.Angle-o.Shape.Angle)) < facingCutoff
			if facing && other.Light != core.LightGreen {
				return true
			}
		}
	}
	return false
}

func brakeProbe(o object.Object) shape.Shape {
	length := o.Vel*o.Vel/(2*object.CarMaxAccel) + brakeMargin
	local := shape.New(o.Shape.XDim+length/2, 0, length/2, o.Shape.YDim, 0)
	return local.Absolute(o.Shape.Frame())
}
