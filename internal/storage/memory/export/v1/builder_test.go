package v1

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/urbandriving/engine/pkg/core"
)

func episode() *core.Episode {
	return &core.Episode{
		ID:        3,
		Name:      "episode-3",
		StartTime: time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC),
		Seed:      42,
		MaxTime:   500,
		Width:     1000,
		Height:    1000,
		Statics: []core.StaticRecord{
			{Index: 0, Kind: "street", X: 500, Y: 500, XDim: 1000, YDim: 200},
		},
		Objects: []core.ObjectRecord{
			{Group: "controlled_cars", Index: 0, Kind: "car", XDim: 50, YDim: 25},
			{Group: "background_cars", Index: 0, Kind: "car", XDim: 50, YDim: 25},
			{Group: "traffic_lights", Index: 0, Kind: "traffic_light", XDim: 5, YDim: 20},
		},
		Tags: map[string]string{"scenario": "intersection", "agent": "ppo"},
	}
}

func TestFormatTags(t *testing.T) {
	assert.Equal(t, "", formatTags(nil))
	assert.Equal(t, "a=1,b=2", formatTags(map[string]string{"b": "2", "a": "1"}))
}

func TestBuildEmptyEpisode(t *testing.T) {
	ep := episode()
	ep.Objects = nil
	ep.Statics = nil
	ep.Tags = nil

	export := Build(&EpisodeData{Episode: ep})

	assert.Equal(t, FormatVersion, export.FormatVersion)
	assert.Equal(t, "episode-3", export.EpisodeName)
	assert.Equal(t, 0, export.EndFrame)
	assert.Empty(t, export.Entities)
	assert.Empty(t, export.Events)
	assert.Empty(t, export.EndTime)

	// Empty collections encode as arrays, not null.
	raw, err := json.Marshal(export)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"entities":[]`)
	assert.Contains(t, string(raw), `"events":[]`)
}

func TestBuildEntitiesAndPositions(t *testing.T) {
	ticks := []core.TickRecord{
		{
			EpisodeID: 3, Time: 1, Reward: 1,
			Actions: []core.Action{core.SteeringAcc(0.1, 1), core.Null(), core.Light(core.LightGreen)},
			States: []core.ObjectState{
				{Group: "controlled_cars", Index: 0, X: 101, Y: 500, Angle: 0.1, Vel: 1},
				{Group: "background_cars", Index: 0, X: 800, Y: 500, Angle: 3.14},
				{Group: "traffic_lights", Index: 0, X: 450, Y: 450, Light: core.LightGreen},
			},
		},
		{
			EpisodeID: 3, Time: 2, Reward: 0.5,
			Actions: []core.Action{core.SteeringAcc(0, 1), core.Null(), core.Light(core.LightGreen)},
			States: []core.ObjectState{
				{Group: "controlled_cars", Index: 0, X: 103, Y: 500, Vel: 2},
				{Group: "background_cars", Index: 0, X: 800, Y: 500},
				{Group: "traffic_lights", Index: 0, X: 450, Y: 450, Light: core.LightGreen},
				{Group: "pedestrians", Index: 9},
			},
		},
	}

	export := Build(&EpisodeData{Episode: episode(), Ticks: ticks})

	require.Len(t, export.Entities, 3)
	for i, e := range export.Entities {
		assert.Equal(t, i, e.ID)
		assert.Len(t, e.Positions, 2, "unknown refs are skipped")
	}
	assert.Equal(t, "background_cars", export.Entities[1].Group)

	first := export.Entities[0].Positions[0]
	assert.Equal(t, []float64{101, 500}, first[0])
	assert.Equal(t, 0.1, first[1])
	assert.Equal(t, 1.0, first[2])
	assert.Equal(t, "red", first[3])
	assert.Equal(t, "steering_acc", first[4])

	assert.Equal(t, "green", export.Entities[2].Positions[1][3])
	assert.Equal(t, 2, export.EndFrame)
	assert.Equal(t, []float64{1, 0.5}, export.Rewards)
	assert.Equal(t, 1.5, export.TotalReward)
	assert.Equal(t, "agent=ppo,scenario=intersection", export.Tags)
	assert.Equal(t, []any{"street", []float64{500, 500}, []float64{1000, 200}, 0.0}, export.Statics[0])
}

func TestBuildCollisionEvents(t *testing.T) {
	ticks := []core.TickRecord{{
		EpisodeID: 3, Time: 7,
		Collisions: []core.CollisionRecord{
			{GroupA: "controlled_cars", IndexA: 0, GroupB: "background_cars", IndexB: 0, Static: -1},
			{GroupA: "background_cars", IndexA: 0, Static: 4},
		},
	}}
	summary := &core.EpisodeSummary{
		EpisodeID: 3,
		EndTime:   time.Date(2024, 1, 15, 10, 31, 0, 0, time.UTC),
		Reason:    core.TerminationCollision,
	}

	export := Build(&EpisodeData{Episode: episode(), Ticks: ticks, Summary: summary})

	require.Len(t, export.Events, 3)
	assert.Equal(t, []any{7, "collision", 0, 1, -1}, export.Events[0])
	assert.Equal(t, []any{7, "collision", 1, -1, 4}, export.Events[1])
	assert.Equal(t, []any{7, "endEpisode", "collision"}, export.Events[2])
	assert.Equal(t, "collision", export.Reason)
	assert.Equal(t, "2024-01-15T10:31:00Z", export.EndTime)
}
