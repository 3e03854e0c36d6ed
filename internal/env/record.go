package env

import (
	"time"

	"github.com/urbandriving/engine/internal/state"
	"github.com/urbandriving/engine/pkg/core"
)

func newEpisodeRecord(s *state.State, name string, seed int64, maxTime int) *core.Episode {
	ep := &core.Episode{
		Name:      name,
		StartTime: time.Now(),
		Seed:      seed,
		MaxTime:   maxTime,
		Width:     s.Width,
		Height:    s.Height,
		Statics:   make([]core.StaticRecord, len(s.Statics)),
	}
	for i, st := range s.Statics {
		ep.Statics[i] = core.StaticRecord{
			Index: i,
			Kind:  st.Kind.String(),
			X:     st.Shape.X,
			Y:     st.Shape.Y,
			XDim:  st.Shape.XDim,
			YDim:  st.Shape.YDim,
			Angle: st.Shape.Angle,
		}
	}
	for ref, o := range s.All() {
		ep.Objects = append(ep.Objects, core.ObjectRecord{
			Group: ref.Group.String(),
			Index: ref.Index,
			Kind:  o.Kind.String(),
			XDim:  o.Shape.XDim,
			YDim:  o.Shape.YDim,
		})
	}
	return ep
}

// tickRecord captures the post-tick poses of every object. Objects that were not
// stepped this tick record a Null action.
func tickRecord(id uint, s *state.State, refs []state.Ref, applied []core.Action, cols state.Collisions, reward float64, done bool) *core.TickRecord {
	byRef := make(map[state.Ref]core.Action, len(refs))
	for i, r := range refs {
		byRef[r] = applied[i]
	}

	rec := &core.TickRecord{
		EpisodeID: id,
		Time:      s.Time,
		Reward:    reward,
		Done:      done,
	}
	for ref, o := range s.All() {
		a, ok := byRef[ref]
		if !ok {
			a = core.Null()
		}
		rec.Actions = append(rec.Actions, a)
		rec.States = append(rec.States, core.ObjectState{
			Group: ref.Group.String(),
			Index: ref.Index,
			X:     o.Shape.X,
			Y:     o.Shape.Y,
			Angle: o.Shape.Angle,
			Vel:   o.Vel,
			Light: o.Light,
		})
	}
	for _, c := range cols.Dynamic {
		rec.Collisions = append(rec.Collisions, core.CollisionRecord{
			GroupA: c.A.Group.String(),
			IndexA: c.A.Index,
			GroupB: c.B.Group.String(),
			IndexB: c.B.Index,
			Static: -1,
		})
	}
	for _, c := range cols.Static {
		rec.Collisions = append(rec.Collisions, core.CollisionRecord{
			GroupA: c.Ref.Group.String(),
			IndexA: c.Ref.Index,
			Static: c.Static,
		})
	}
	return rec
}
