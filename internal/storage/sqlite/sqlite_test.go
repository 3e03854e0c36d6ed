package sqlitestorage

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/urbandriving/engine/internal/config"
	"github.com/urbandriving/engine/internal/database"
	"github.com/urbandriving/engine/internal/model"
	"github.com/urbandriving/engine/internal/storage"
	"github.com/urbandriving/engine/pkg/core"
)

var _ storage.Backend = (*Backend)(nil)

func episode() *core.Episode {
	return &core.Episode{
		ID:        1,
		Name:      "episode-1",
		StartTime: time.Now(),
		Width:     1000,
		Height:    1000,
		Objects:   []core.ObjectRecord{{Group: "controlled_cars", Index: 0, Kind: "car"}},
	}
}

func tick(frame int) *core.TickRecord {
	return &core.TickRecord{
		EpisodeID: 1,
		Time:      frame,
		Actions:   []core.Action{core.Null()},
		States:    []core.ObjectState{{Group: "controlled_cars", Index: 0, X: float64(frame)}},
	}
}

func TestEndEpisodeDumpsToDisk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "episodes.db")
	b, err := New(config.SQLiteConfig{Path: path, DumpInterval: time.Hour}, nil)
	require.NoError(t, err)
	require.NoError(t, b.Init())
	defer b.Close()

	require.NoError(t, b.StartEpisode(episode()))
	require.NoError(t, b.RecordTick(tick(1)))
	require.NoError(t, b.RecordTick(tick(2)))
	require.NoError(t, b.EndEpisode(&core.EpisodeSummary{EpisodeID: 1, Ticks: 2, Reason: core.TerminationTimeout}))

	disk, err := database.OpenSQLite(path)
	require.NoError(t, err)
	var n int64
	require.NoError(t, disk.Model(&model.Tick{}).Count(&n).Error)
	assert.Equal(t, int64(2), n)

	var ep model.Episode
	require.NoError(t, disk.First(&ep).Error)
	assert.Equal(t, "timeout", ep.Reason)
}

func TestPeriodicDump(t *testing.T) {
	path := filepath.Join(t.TempDir(), "periodic.db")
	b, err := New(config.SQLiteConfig{Path: path, DumpInterval: 20 * time.Millisecond}, nil)
	require.NoError(t, err)
	require.NoError(t, b.Init())
	defer b.Close()

	require.NoError(t, b.StartEpisode(episode()))

	require.Eventually(t, func() bool {
		_, err := os.Stat(path)
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)
}

func TestNoPathKeepsMemoryOnly(t *testing.T) {
	b, err := New(config.SQLiteConfig{}, nil)
	require.NoError(t, err)
	require.NoError(t, b.Init())

	require.NoError(t, b.StartEpisode(episode()))
	require.NoError(t, b.EndEpisode(&core.EpisodeSummary{EpisodeID: 1}))
	require.NoError(t, b.Close())
	require.NoError(t, b.Close())
}
