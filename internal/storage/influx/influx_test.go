package influxstorage

import (
	"compress/gzip"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/urbandriving/engine/internal/config"
	"github.com/urbandriving/engine/internal/storage"
	"github.com/urbandriving/engine/pkg/core"
)

var _ storage.Backend = (*Backend)(nil)

func TestEpisodeToBackupFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "backup.lp.gz")
	b := New(config.InfluxConfig{
		Host:       "127.0.0.1",
		Port:       "1",
		Protocol:   "http",
		Org:        "urbandriving",
		Bucket:     "episodes",
		BackupPath: path,
	}, zerolog.Nop())
	require.NoError(t, b.Init())

	assert.ErrorIs(t, b.RecordTick(&core.TickRecord{Time: 1}), ErrNoEpisode)

	start := time.Unix(1700000000, 0)
	require.NoError(t, b.StartEpisode(&core.Episode{Name: "ep", StartTime: start}))
	for frame := 1; frame <= 3; frame++ {
		require.NoError(t, b.RecordTick(&core.TickRecord{
			Time:    frame,
			Actions: []core.Action{core.Null()},
			States:  []core.ObjectState{{Group: "controlled_cars"}},
		}))
	}
	require.NoError(t, b.EndEpisode(&core.EpisodeSummary{Ticks: 3, Reason: core.TerminationTimeout}))
	assert.ErrorIs(t, b.EndEpisode(&core.EpisodeSummary{}), ErrNoEpisode)
	require.NoError(t, b.Close())

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	gz, err := gzip.NewReader(f)
	require.NoError(t, err)
	raw, err := io.ReadAll(gz)
	require.NoError(t, err)

	body := string(raw)
	assert.Equal(t, 3, strings.Count(body, "tick,"))
	assert.Equal(t, 3, strings.Count(body, "object_state,"))
	assert.Equal(t, 1, strings.Count(body, "episode,"))
	assert.Contains(t, body, " 1700000000003000000")
}

func TestInitUnavailable(t *testing.T) {
	b := New(config.InfluxConfig{Host: "127.0.0.1", Port: "1", Protocol: "http"}, zerolog.Nop())
	assert.Error(t, b.Init())
	assert.NoError(t, b.Close())
}
