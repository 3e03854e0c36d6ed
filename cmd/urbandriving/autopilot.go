package main

import (
	"context"
	"fmt"

	"github.com/urbandriving/engine/internal/agent"
	"github.com/urbandriving/engine/internal/state"
	"github.com/urbandriving/engine/pkg/core"
)

// autopilot drives the controlled cars from the command line: each one follows
// its route with the same pursuit policy the background cars use.
type autopilot struct {
	pilots []*agent.Pursuit
}

func newAutopilot(s *state.State) *autopilot {
	n := s.Count(state.ControlledCars)
	a := &autopilot{pilots: make([]*agent.Pursuit, n)}
	for i := range n {
		a.pilots[i] = agent.NewPursuit(state.Ref{Group: state.ControlledCars, Index: i})
	}
	return a
}

// Actions returns one action per controlled car for the given pre-tick state.
func (a *autopilot) Actions(ctx context.Context, s *state.State) ([]core.Action, error) {
	actions := make([]core.Action, len(a.pilots))
	for i, p := range a.pilots {
		act, err := p.EvalPolicy(ctx, agent.Request{State: s})
		if err != nil {
			return nil, fmt.Errorf("autopilot for controlled car %d: %w", i, err)
		}
		actions[i] = act
	}
	return actions, nil
}
