package v1

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/urbandriving/engine/pkg/core"
)

// EpisodeData contains all the data needed to build an export
type EpisodeData struct {
	Episode *core.Episode
	Ticks   []core.TickRecord
	Summary *core.EpisodeSummary // nil while the episode is still running
}

type entityKey struct {
	group string
	index int
}

// Build creates an Export from the episode data
func Build(data *EpisodeData) Export {
	ep := data.Episode
	export := Export{
		FormatVersion: FormatVersion,
		EpisodeID:     ep.ID,
		EpisodeName:   ep.Name,
		Seed:          ep.Seed,
		StartTime:     ep.StartTime.UTC().Format(time.RFC3339Nano),
		MaxTime:       ep.MaxTime,
		Width:         ep.Width,
		Height:        ep.Height,
		Tags:          formatTags(ep.Tags),
		Statics:       make([][]any, 0, len(ep.Statics)),
		Entities:      make([]Entity, 0, len(ep.Objects)),
		Events:        make([][]any, 0),
		Rewards:       make([]float64, 0, len(data.Ticks)),
	}

	// Format: [kind, [x, y], [xdim, ydim], angle]
	for _, s := range ep.Statics {
		export.Statics = append(export.Statics, []any{
			s.Kind,
			[]float64{s.X, s.Y},
			[]float64{s.XDim, s.YDim},
			s.Angle,
		})
	}

	// Entity ID is the position in the registration order, so entities[id] works
	// for consumers.
	ids := make(map[entityKey]int, len(ep.Objects))
	for _, o := range ep.Objects {
		id := len(export.Entities)
		ids[entityKey{o.Group, o.Index}] = id
		export.Entities = append(export.Entities, Entity{
			ID:        id,
			Group:     o.Group,
			Index:     o.Index,
			Kind:      o.Kind,
			XDim:      o.XDim,
			YDim:      o.YDim,
			Positions: make([][]any, 0, len(data.Ticks)),
		})
	}

	for _, tick := range data.Ticks {
		for j, st := range tick.States {
			id, ok := ids[entityKey{st.Group, st.Index}]
			if !ok {
				continue
			}
			action := core.ActionNull
			if j < len(tick.Actions) {
				action = tick.Actions[j].Kind
			}
			export.Entities[id].Positions = append(export.Entities[id].Positions, []any{
				[]float64{st.X, st.Y},
				st.Angle,
				st.Vel,
				st.Light.String(),
				action.String(),
			})
		}

		// Format: [frameNum, "collision", entityA, entityB, staticIndex]
		// entityB is -1 for a static hit, staticIndex is -1 for a pair of objects.
		for _, c := range tick.Collisions {
			other := -1
			if c.Static < 0 {
				if id, ok := ids[entityKey{c.GroupB, c.IndexB}]; ok {
					other = id
				}
			}
			a, ok := ids[entityKey{c.GroupA, c.IndexA}]
			if !ok {
				continue
			}
			export.Events = append(export.Events, []any{
				tick.Time,
				"collision",
				a,
				other,
				c.Static,
			})
		}

		export.Rewards = append(export.Rewards, tick.Reward)
		export.TotalReward += tick.Reward
		if tick.Time > export.EndFrame {
			export.EndFrame = tick.Time
		}
	}

	if s := data.Summary; s != nil {
		export.EndTime = s.EndTime.UTC().Format(time.RFC3339Nano)
		export.Reason = string(s.Reason)
		export.Events = append(export.Events, []any{
			export.EndFrame,
			"endEpisode",
			export.Reason,
		})
	}

	return export
}

// formatTags renders tags as "k=v" pairs sorted by key.
func formatTags(tags map[string]string) string {
	if len(tags) == 0 {
		return ""
	}
	keys := make([]string, 0, len(tags))
	for k := range tags {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%s", k, tags[k])
	}
	return strings.Join(parts, ",")
}
