// Package convert provides functions to convert between GORM models and core models
package convert

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"

	"github.com/urbandriving/engine/internal/geo"
	"github.com/urbandriving/engine/internal/model"
	"github.com/urbandriving/engine/internal/shape"
	"github.com/urbandriving/engine/pkg/core"
)

// tagsToJSON converts tags to datatypes.JSON for DB storage.
func tagsToJSON(tags map[string]string) datatypes.JSON {
	if len(tags) == 0 {
		return datatypes.JSON("{}")
	}
	data, _ := json.Marshal(tags)
	return datatypes.JSON(data)
}

// CoreToEpisode converts a core.Episode with its statics and objects to GORM
// models. core.Episode.ID is not copied; the database assigns its own.
func CoreToEpisode(e core.Episode) model.Episode {
	ep := model.Episode{
		Name:      e.Name,
		StartTime: e.StartTime,
		Seed:      e.Seed,
		MaxTime:   e.MaxTime,
		Width:     e.Width,
		Height:    e.Height,
		Bounds:    geo.Bounds(e.Width, e.Height).AsGeometry(),
		Tags:      tagsToJSON(e.Tags),
		Statics:   make([]model.StaticGeometry, 0, len(e.Statics)),
		Objects:   make([]model.EpisodeObject, 0, len(e.Objects)),
	}
	for _, s := range e.Statics {
		ep.Statics = append(ep.Statics, model.StaticGeometry{
			Index:     s.Index,
			Kind:      s.Kind,
			X:         s.X,
			Y:         s.Y,
			XDim:      s.XDim,
			YDim:      s.YDim,
			Angle:     s.Angle,
			Footprint: geo.Geometry(shape.New(s.X, s.Y, s.XDim, s.YDim, s.Angle)),
		})
	}
	for _, o := range e.Objects {
		ep.Objects = append(ep.Objects, model.EpisodeObject{
			Group: o.Group,
			Index: o.Index,
			Kind:  o.Kind,
			XDim:  o.XDim,
			YDim:  o.YDim,
		})
	}
	return ep
}

// CoreToTick converts a tick into its tick row, per-object state rows and
// collision rows, all stamped with episodeID.
func CoreToTick(t core.TickRecord, episodeID uint, now time.Time) (model.Tick, []model.ObjectState, []model.Collision) {
	tick := model.Tick{
		Time:      now,
		EpisodeID: episodeID,
		Frame:     t.Time,
		Reward:    t.Reward,
		Done:      t.Done,
	}

	states := make([]model.ObjectState, len(t.States))
	for i, s := range t.States {
		action := datatypes.JSON("null")
		if i < len(t.Actions) {
			if data, err := json.Marshal(t.Actions[i]); err == nil {
				action = data
			}
		}
		states[i] = model.ObjectState{
			EpisodeID: episodeID,
			Frame:     t.Time,
			Group:     s.Group,
			Index:     s.Index,
			Position:  geo.Point(s.X, s.Y),
			Angle:     s.Angle,
			Vel:       s.Vel,
			Light:     s.Light.String(),
			Action:    action,
		}
	}

	cols := make([]model.Collision, len(t.Collisions))
	for i, c := range t.Collisions {
		cols[i] = model.Collision{
			EpisodeID: episodeID,
			Frame:     t.Time,
			GroupA:    c.GroupA,
			IndexA:    c.IndexA,
			GroupB:    c.GroupB,
			IndexB:    c.IndexB,
			Static:    c.Static,
		}
	}
	return tick, states, cols
}

// SummaryUpdates returns the episode columns set when an episode ends.
func SummaryUpdates(s core.EpisodeSummary) map[string]any {
	return map[string]any{
		"end_time":     s.EndTime,
		"ticks":        s.Ticks,
		"total_reward": s.TotalReward,
		"collisions":   s.Collisions,
		"reason":       string(s.Reason),
	}
}

// EpisodeToCore converts a stored episode with its preloaded statics and objects
// back to a core.Episode. The row ID becomes the episode ID.
func EpisodeToCore(m model.Episode) core.Episode {
	e := core.Episode{
		ID:        m.ID,
		Name:      m.Name,
		StartTime: m.StartTime,
		Seed:      m.Seed,
		MaxTime:   m.MaxTime,
		Width:     m.Width,
		Height:    m.Height,
		Statics:   make([]core.StaticRecord, len(m.Statics)),
		Objects:   make([]core.ObjectRecord, len(m.Objects)),
	}
	if len(m.Tags) > 0 {
		var tags map[string]string
		if json.Unmarshal(m.Tags, &tags) == nil && len(tags) > 0 {
			e.Tags = tags
		}
	}
	for i, s := range m.Statics {
		e.Statics[i] = core.StaticRecord{
			Index: s.Index,
			Kind:  s.Kind,
			X:     s.X,
			Y:     s.Y,
			XDim:  s.XDim,
			YDim:  s.YDim,
			Angle: s.Angle,
		}
	}
	for i, o := range m.Objects {
		e.Objects[i] = core.ObjectRecord{
			Group: o.Group,
			Index: o.Index,
			Kind:  o.Kind,
			XDim:  o.XDim,
			YDim:  o.YDim,
		}
	}
	return e
}

// SummaryFromEpisode returns the summary stored on an ended episode, or false
// while it is still running.
func SummaryFromEpisode(m model.Episode) (core.EpisodeSummary, bool) {
	if m.EndTime == nil {
		return core.EpisodeSummary{}, false
	}
	return core.EpisodeSummary{
		EpisodeID:   m.ID,
		EndTime:     *m.EndTime,
		Ticks:       m.Ticks,
		TotalReward: m.TotalReward,
		Collisions:  m.Collisions,
		Reason:      core.Termination(m.Reason),
	}, true
}

// CollisionToCore converts a stored collision row.
func CollisionToCore(m model.Collision) core.CollisionRecord {
	return core.CollisionRecord{
		GroupA: m.GroupA,
		IndexA: m.IndexA,
		GroupB: m.GroupB,
		IndexB: m.IndexB,
		Static: m.Static,
	}
}

// ObjectStateToCore converts a stored state row back to a core.ObjectState.
func ObjectStateToCore(m model.ObjectState) core.ObjectState {
	pos := geo.Position(m.Position)
	var light core.LightColor
	_ = light.UnmarshalText([]byte(m.Light))
	return core.ObjectState{
		Group: m.Group,
		Index: m.Index,
		X:     pos.X,
		Y:     pos.Y,
		Angle: m.Angle,
		Vel:   m.Vel,
		Light: light,
	}
}

// ActionFromJSON decodes a stored action. Missing or invalid actions are Null.
func ActionFromJSON(data datatypes.JSON) core.Action {
	var a core.Action
	if len(data) == 0 || json.Unmarshal(data, &a) != nil {
		return core.Null()
	}
	return a
}
