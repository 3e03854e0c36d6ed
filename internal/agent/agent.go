// Package agent defines the policy contract and the built-in policies.
//
// An agent maps a read-only world snapshot to one action for the object it was
// built for. Agents may keep private memory (a route cursor, say) but never
// write to the state they are given; that is what makes concurrent evaluation of
// background agents safe.
package agent

import (
	"context"
	"fmt"
	"math"

	"github.com/urbandriving/engine/internal/object"
	"github.com/urbandriving/engine/internal/state"
	"github.com/urbandriving/engine/pkg/core"
)

// Request is the input to one policy evaluation.
type Request struct {
	// State is the pre-tick snapshot. It must be treated as read-only.
	State *state.State
	// Input is the caller-supplied action for a controlled object, nil otherwise.
	Input *core.Action
	// Simplified asks background policies to skip their expensive queries.
	Simplified bool
}

// Agent evaluates a policy for one object.
type Agent interface {
	EvalPolicy(ctx context.Context, req Request) (core.Action, error)
}

// Factory builds the agent for the object at ref.
type Factory func(ref state.Ref, obj object.Object) Agent

// Binding pairs a ref with its agent.
type Binding struct {
	Ref   state.Ref
	Agent Agent
}

// Registry maps object kinds to agent factories.
type Registry struct {
	factories  map[object.Kind]Factory
	controlled Factory
}

// NewRegistry returns a registry that gives every object a Null agent and every
// controlled car a Control agent.
func NewRegistry() *Registry {
	return &Registry{
		factories:  make(map[object.Kind]Factory),
		controlled: func(ref state.Ref, _ object.Object) Agent { return NewControl(ref) },
	}
}

// DefaultRegistry wires the built-in policies.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(object.Car, carFactory)
	r.Register(object.Pedestrian, func(ref state.Ref, _ object.Object) Agent { return NewPedestrian(ref) })
	r.Register(object.TrafficLight, func(_ state.Ref, obj object.Object) Agent { return NewTrafficLight(obj.Light) })
	r.Register(object.CrosswalkLight, func(ref state.Ref, _ object.Object) Agent { return NewCrosswalkLight(ref) })
	return r
}

// Register sets the background factory for a kind.
func (r *Registry) Register(k object.Kind, f Factory) {
	r.factories[k] = f
}

// RegisterControlled sets the factory used for controlled cars.
func (r *Registry) RegisterControlled(f Factory) {
	r.controlled = f
}

// For builds the agent for one object.
func (r *Registry) For(ref state.Ref, obj object.Object) Agent {
	if ref.Group == state.ControlledCars {
		return r.controlled(ref, obj)
	}
	if f, ok := r.factories[obj.Kind]; ok {
		return f(ref, obj)
	}
	return Null{}
}

// Build creates one agent per dynamic object, in canonical ref order.
func (r *Registry) Build(s *state.State) []Binding {
	var out []Binding
	for ref, o := range s.All() {
		out = append(out, Binding{Ref: ref, Agent: r.For(ref, *o)})
	}
	return out
}

// carFactory replays recorded steering/velocity streams and follows routes
// otherwise.
func carFactory(ref state.Ref, obj object.Object) Agent {
	if t := obj.Trajectory; t != nil && t.Has('s') && t.Has('v') && !t.Has('x') {
		return NewReplay(t)
	}
	return NewPursuit(ref)
}

// Null always returns the null action.
type Null struct{}

func (Null) EvalPolicy(context.Context, Request) (core.Action, error) {
	return core.Null(), nil
}

// Control validates the caller's action for a controlled car. Without input the
// last valid action is repeated.
type Control struct {
	ref state.Ref
}

func NewControl(ref state.Ref) *Control {
	return &Control{ref: ref}
}

func (c *Control) EvalPolicy(_ context.Context, req Request) (core.Action, error) {
	if req.Input == nil {
		return core.LastValid(), nil
	}
	a := *req.Input
	if a.Kind == core.ActionLight {
		return core.Action{}, fmt.Errorf("%w: %s cannot execute %s", core.ErrActionShape, c.ref, a.Kind)
	}
	for _, v := range a.Array() {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return core.Action{}, fmt.Errorf("%w: %s got non-finite %s", core.ErrActionShape, c.ref, a.Kind)
		}
	}
	return a, nil
}

func lookup(s *state.State, ref state.Ref) (object.Object, error) {
	o, ok := s.Get(ref)
	if !ok {
		return object.Object{}, fmt.Errorf("%w: %s", state.ErrUnknownRef, ref)
	}
	return o, nil
}
