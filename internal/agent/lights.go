package agent

import (
	"context"
	"math"

	"github.com/urbandriving/engine/internal/object"
	"github.com/urbandriving/engine/internal/state"
	"github.com/urbandriving/engine/pkg/core"
)

// Traffic light phase lengths in ticks. Red lasts as long as green and yellow
// together so that opposing arms alternate.
const (
	GreenTicks  = 120
	YellowTicks = 20
	RedTicks    = GreenTicks + YellowTicks

	cycleTicks = GreenTicks + YellowTicks + RedTicks
)

// TrafficLight cycles green, yellow, red as a function of world time, starting
// from the colour the light had when the agent was built.
type TrafficLight struct {
	offset int
}

func NewTrafficLight(initial core.LightColor) *TrafficLight {
	switch initial {
	case core.LightYellow:
		return &TrafficLight{offset: GreenTicks}
	case core.LightRed:
		return &TrafficLight{offset: GreenTicks + YellowTicks}
	default:
		return &TrafficLight{}
	}
}

func (l *TrafficLight) EvalPolicy(_ context.Context, req Request) (core.Action, error) {
	return core.Light(l.Color(req.State.Time)), nil
}

// Color is the light's colour at tick t.
func (l *TrafficLight) Color(t int) core.LightColor {
	switch phase := (t + l.offset) % cycleTicks; {
	case phase < GreenTicks:
		return core.LightGreen
	case phase < GreenTicks+YellowTicks:
		return core.LightYellow
	default:
		return core.LightRed
	}
}

// CrosswalkLight shows walk while a traffic light parallel to the crosswalk is
// green.
type CrosswalkLight struct {
	ref state.Ref
}

func NewCrosswalkLight(ref state.Ref) *CrosswalkLight {
	return &CrosswalkLight{ref: ref}
}

func (c *CrosswalkLight) EvalPolicy(_ context.Context, req Request) (core.Action, error) {
	self, err := lookup(req.State, c.ref)
	if err != nil {
		return core.Action{}, err
	}
	for _, o := range req.State.Objects[state.TrafficLights] {
		if o.Kind != object.TrafficLight || o.Light != core.LightGreen {
			continue
		}
		if math.Abs(math.Sin(o.Shape.Angle-self.Shape.Angle)) < 0.5 {
			return core.Light(core.LightWhite), nil
		}
	}
	return core.Light(core.LightRed), nil
}
