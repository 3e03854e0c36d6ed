package convert

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	"github.com/urbandriving/engine/pkg/core"
)

func TestTagsToJSON(t *testing.T) {
	assert.Equal(t, datatypes.JSON("{}"), tagsToJSON(nil))

	var got map[string]string
	require.NoError(t, json.Unmarshal(tagsToJSON(map[string]string{"a": "b"}), &got))
	assert.Equal(t, map[string]string{"a": "b"}, got)
}

func TestCoreToEpisode(t *testing.T) {
	e := core.Episode{
		ID:        9,
		Name:      "episode-9",
		StartTime: time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC),
		Seed:      5,
		MaxTime:   500,
		Width:     1000,
		Height:    1000,
		Statics: []core.StaticRecord{
			{Index: 0, Kind: "street", X: 500, Y: 500, XDim: 500, YDim: 100},
			{Index: 1, Kind: "crosswalk", X: 300, Y: 300},
		},
		Objects: []core.ObjectRecord{{Group: "controlled_cars", Index: 0, Kind: "car", XDim: 25, YDim: 12.5}},
	}

	ep := CoreToEpisode(e)

	assert.Zero(t, ep.ID, "database assigns IDs")
	assert.Equal(t, "episode-9", ep.Name)
	assert.Equal(t, int64(5), ep.Seed)
	require.Len(t, ep.Statics, 2)
	assert.True(t, ep.Statics[0].Footprint.IsPolygon())
	assert.InDelta(t, 1000*200, ep.Statics[0].Footprint.Area(), 1e-6)
	assert.True(t, ep.Statics[1].Footprint.IsPoint(), "zero extent statics are points")
	require.Len(t, ep.Objects, 1)
	assert.Equal(t, "controlled_cars", ep.Objects[0].Group)
	assert.InDelta(t, 1000*1000, ep.Bounds.Area(), 1e-6)
}

func TestCoreToTick(t *testing.T) {
	now := time.Date(2024, 1, 15, 10, 30, 1, 0, time.UTC)
	rec := core.TickRecord{
		EpisodeID: 1,
		Time:      12,
		Reward:    1,
		Done:      true,
		Actions:   []core.Action{core.SteeringAcc(0.5, -1), core.Light(core.LightGreen)},
		States: []core.ObjectState{
			{Group: "controlled_cars", Index: 0, X: 100, Y: 200, Angle: 0.5, Vel: 3},
			{Group: "traffic_lights", Index: 0, X: 450, Y: 450, Light: core.LightGreen},
		},
		Collisions: []core.CollisionRecord{
			{GroupA: "controlled_cars", IndexA: 0, Static: 3},
		},
	}

	tick, states, cols := CoreToTick(rec, 42, now)

	assert.Equal(t, uint(42), tick.EpisodeID)
	assert.Equal(t, 12, tick.Frame)
	assert.Equal(t, now, tick.Time)
	assert.True(t, tick.Done)

	require.Len(t, states, 2)
	for _, s := range states {
		assert.Equal(t, uint(42), s.EpisodeID)
		assert.Equal(t, 12, s.Frame)
	}
	assert.Equal(t, "green", states[1].Light)
	assert.Equal(t, core.SteeringAcc(0.5, -1), ActionFromJSON(states[0].Action))

	back := ObjectStateToCore(states[0])
	assert.Equal(t, rec.States[0], back)
	assert.Equal(t, rec.States[1], ObjectStateToCore(states[1]))

	require.Len(t, cols, 1)
	assert.Equal(t, 3, cols[0].Static)
	assert.Equal(t, uint(42), cols[0].EpisodeID)
}

func TestCoreToTick_MissingActions(t *testing.T) {
	rec := core.TickRecord{States: []core.ObjectState{{Group: "pedestrians"}}}
	_, states, _ := CoreToTick(rec, 1, time.Now())
	assert.Equal(t, core.Null(), ActionFromJSON(states[0].Action))
}

func TestActionFromJSON_Invalid(t *testing.T) {
	assert.Equal(t, core.Null(), ActionFromJSON(nil))
	assert.Equal(t, core.Null(), ActionFromJSON(datatypes.JSON(`{"kind":"bogus"}`)))
}

func TestSummaryUpdates(t *testing.T) {
	end := time.Date(2024, 1, 15, 10, 35, 0, 0, time.UTC)
	u := SummaryUpdates(core.EpisodeSummary{EndTime: end, Ticks: 40, TotalReward: 39, Collisions: 1, Reason: core.TerminationCollision})
	assert.Equal(t, end, u["end_time"])
	assert.Equal(t, 40, u["ticks"])
	assert.Equal(t, "collision", u["reason"])
}

func TestEpisodeToCore_RoundTrip(t *testing.T) {
	e := core.Episode{
		Name:      "episode-2",
		StartTime: time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC),
		Seed:      3,
		MaxTime:   200,
		Width:     1000,
		Height:    1000,
		Tags:      map[string]string{"scenario": "intersection"},
		Statics:   []core.StaticRecord{{Index: 0, Kind: "street", X: 500, Y: 500, XDim: 500, YDim: 100, Angle: 0.5}},
		Objects:   []core.ObjectRecord{{Group: "background_cars", Index: 1, Kind: "car", XDim: 25, YDim: 12.5}},
	}

	m := CoreToEpisode(e)
	m.ID = 41
	got := EpisodeToCore(m)

	e.ID = 41
	assert.Equal(t, e, got)
}

func TestEpisodeToCore_EmptyTags(t *testing.T) {
	got := EpisodeToCore(CoreToEpisode(core.Episode{Name: "x"}))
	assert.Nil(t, got.Tags)
	assert.Empty(t, got.Statics)
}

func TestSummaryFromEpisode(t *testing.T) {
	ep := CoreToEpisode(core.Episode{Name: "x"})
	_, ok := SummaryFromEpisode(ep)
	assert.False(t, ok, "running episodes have no summary")

	end := time.Date(2024, 1, 15, 11, 0, 0, 0, time.UTC)
	ep.ID = 4
	ep.EndTime = &end
	ep.Ticks = 12
	ep.Reason = "collision"

	s, ok := SummaryFromEpisode(ep)
	require.True(t, ok)
	assert.Equal(t, core.EpisodeSummary{EpisodeID: 4, EndTime: end, Ticks: 12, Reason: core.TerminationCollision}, s)
}
