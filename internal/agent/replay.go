package agent

import (
	"context"

	"github.com/urbandriving/engine/internal/trajectory"
	"github.com/urbandriving/engine/pkg/core"
)

// Replay plays back a recorded steering/velocity stream, one point per tick of
// world time. Once the recording runs out the last action is repeated.
type Replay struct {
	actions *trajectory.Trajectory
}

// NewReplay copies the recording, which must carry 's' and 'v' fields.
func NewReplay(t *trajectory.Trajectory) *Replay {
	return &Replay{actions: t.Clone()}
}

func (r *Replay) EvalPolicy(_ context.Context, req Request) (core.Action, error) {
	i := req.State.Time
	steer, ok := r.actions.Field(i, 's')
	if !ok {
		return core.LastValid(), nil
	}
	vel, _ := r.actions.Field(i, 'v')
	return core.SteeringVel(steer, vel), nil
}
