package gormstorage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	v1 "github.com/urbandriving/engine/internal/storage/memory/export/v1"
	"github.com/urbandriving/engine/pkg/core"
)

func TestLoadEpisode(t *testing.T) {
	b := newSQLiteBackend(t)

	require.NoError(t, b.StartEpisode(testEpisode()))
	for i := 1; i <= 3; i++ {
		require.NoError(t, b.RecordTick(testTick(i)))
	}
	last := testTick(4)
	last.Collisions = []core.CollisionRecord{{GroupA: "controlled_cars", IndexA: 0, Static: 0}}
	require.NoError(t, b.RecordTick(last))
	require.NoError(t, b.EndEpisode(&core.EpisodeSummary{
		EpisodeID: 1, EndTime: time.Now(), Ticks: 4, Collisions: 1, Reason: core.TerminationCollision,
	}))

	eps, err := ListEpisodes(b.DB())
	require.NoError(t, err)
	require.Len(t, eps, 1)

	data, err := LoadEpisode(b.DB(), eps[0].ID)
	require.NoError(t, err)
	assert.Equal(t, "episode-1", data.Episode.Name)
	require.Len(t, data.Episode.Statics, 1)
	assert.Equal(t, 500.0, data.Episode.Statics[0].XDim)
	require.Len(t, data.Ticks, 4)
	assert.Equal(t, 1, data.Ticks[0].Time)
	require.Len(t, data.Ticks[2].States, 2)
	assert.Equal(t, 103.0, data.Ticks[2].States[0].X)
	assert.Equal(t, core.SteeringAcc(0, 1), data.Ticks[2].Actions[0])
	require.Len(t, data.Ticks[3].Collisions, 1)
	require.NotNil(t, data.Summary)
	assert.Equal(t, core.TerminationCollision, data.Summary.Reason)

	export := v1.Build(data)
	assert.Len(t, export.Entities, 2)
	assert.Len(t, export.Rewards, 4)
	assert.Equal(t, "collision", export.Reason)
}

func TestLoadEpisode_Running(t *testing.T) {
	b := newSQLiteBackend(t)
	require.NoError(t, b.StartEpisode(testEpisode()))
	require.NoError(t, b.RecordTick(testTick(1)))
	require.NoError(t, b.flush())

	eps, err := ListEpisodes(b.DB())
	require.NoError(t, err)
	require.Len(t, eps, 1)

	data, err := LoadEpisode(b.DB(), eps[0].ID)
	require.NoError(t, err)
	assert.Nil(t, data.Summary)
	assert.Len(t, data.Ticks, 1)
}

func TestLoadEpisode_NotFound(t *testing.T) {
	b := newSQLiteBackend(t)
	_, err := LoadEpisode(b.DB(), 99)
	assert.ErrorIs(t, err, ErrEpisodeNotFound)
}
