package influx

import (
	"bufio"
	"compress/gzip"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/urbandriving/engine/internal/config"
	"github.com/urbandriving/engine/pkg/core"
)

func unreachable(backup string) config.InfluxConfig {
	return config.InfluxConfig{
		Host:       "127.0.0.1",
		Port:       "1",
		Protocol:   "http",
		Token:      "token",
		Org:        "urbandriving",
		Bucket:     "episodes",
		BackupPath: backup,
	}
}

func readBackup(t *testing.T, path string) []string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	gz, err := gzip.NewReader(f)
	require.NoError(t, err)
	defer gz.Close()

	var lines []string
	sc := bufio.NewScanner(gz)
	for sc.Scan() {
		if sc.Text() != "" {
			lines = append(lines, sc.Text())
		}
	}
	require.NoError(t, sc.Err())
	return lines
}

func TestURL(t *testing.T) {
	m := NewManager(zerolog.Nop(), unreachable(""))
	assert.Equal(t, "http://127.0.0.1:1", m.URL())
}

func TestConnectUnavailableWithoutBackup(t *testing.T) {
	m := NewManager(zerolog.Nop(), unreachable(""))
	err := m.Connect(context.Background())
	require.ErrorIs(t, err, ErrUnavailable)
	assert.False(t, m.IsValid)
}

func TestBackupFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "influx.lp.gz")
	m := NewManager(zerolog.Nop(), unreachable(path))
	require.NoError(t, m.Connect(context.Background()))
	assert.False(t, m.IsValid)

	tick := &core.TickRecord{
		Time:    3,
		Reward:  -1,
		Actions: []core.Action{core.SteeringAcc(0, 1), core.Null()},
		States: []core.ObjectState{
			{Group: "controlled_cars", Index: 0, X: 10, Y: 20, Vel: 2},
			{Group: "traffic_lights", Index: 1, Light: core.LightGreen},
		},
		Collisions: []core.CollisionRecord{{GroupA: "controlled_cars", IndexA: 0, Static: 2}},
	}
	ts := time.Unix(1700000000, 0)
	require.NoError(t, m.WritePoints(TickPoints("ep one", tick, ts)...))
	require.NoError(t, m.WritePoints(SummaryPoint("ep one", &core.EpisodeSummary{Ticks: 3, Reason: core.TerminationCollision})))
	require.NoError(t, m.Flush())
	require.NoError(t, m.Close())
	require.NoError(t, m.Close())

	lines := readBackup(t, path)
	require.Len(t, lines, 5)
	assert.True(t, strings.HasPrefix(lines[0], `tick,episode=ep\ one `))
	assert.Contains(t, lines[0], "frame=3i")
	assert.True(t, strings.HasSuffix(lines[0], " 1700000000000000000"))
	assert.Contains(t, lines[1], "object_state,")
	assert.Contains(t, lines[1], `action="steering_acc"`)
	assert.NotContains(t, lines[1], "light=")
	assert.Contains(t, lines[2], `light="green"`)
	assert.Contains(t, lines[3], "collision,")
	assert.Contains(t, lines[3], "static=2i")
	assert.Contains(t, lines[4], "reason=collision")
}

func TestWriteWithoutConnect(t *testing.T) {
	m := NewManager(zerolog.Nop(), unreachable(""))
	assert.Error(t, m.WritePoints(SummaryPoint("x", &core.EpisodeSummary{})))
	assert.NoError(t, m.Flush())
	assert.NoError(t, m.Close())
}

func TestTickPointsDynamicCollision(t *testing.T) {
	tick := &core.TickRecord{
		Time: 1,
		Collisions: []core.CollisionRecord{
			{GroupA: "controlled_cars", IndexA: 0, GroupB: "background_cars", IndexB: 2, Static: -1},
		},
	}
	points := TickPoints("ep", tick, time.Now())
	require.Len(t, points, 2)
	assert.Equal(t, MeasurementTick, points[0].Name())
	assert.Equal(t, MeasurementCollision, points[1].Name())

	tags := map[string]string{}
	for _, tag := range points[1].TagList() {
		tags[tag.Key] = tag.Value
	}
	assert.Equal(t, "background_cars", tags["group_b"])
}
