// Package influxstorage records episodes as InfluxDB time series: one point per
// tick, per object state and per collision, plus an episode summary point.
package influxstorage

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/urbandriving/engine/internal/config"
	"github.com/urbandriving/engine/internal/influx"
	"github.com/urbandriving/engine/pkg/core"
)

var ErrNoEpisode = errors.New("no episode started")

const connectTimeout = 5 * time.Second

// Backend implements storage.Backend on an influx.Manager.
type Backend struct {
	manager *influx.Manager
	log     zerolog.Logger

	mu      sync.Mutex
	episode string
	start   time.Time
}

// New creates a backend; Init connects.
func New(cfg config.InfluxConfig, log zerolog.Logger) *Backend {
	return &Backend{
		manager: influx.NewManager(log, cfg),
		log:     log,
	}
}

func (b *Backend) Init() error {
	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	return b.manager.Connect(ctx)
}

func (b *Backend) Close() error {
	return b.manager.Close()
}

// StartEpisode tags the following points with the episode name.
func (b *Backend) StartEpisode(e *core.Episode) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.episode = e.Name
	b.start = e.StartTime
	if b.start.IsZero() {
		b.start = time.Now()
	}
	b.log.Debug().Str("episode", e.Name).Msg("Recording episode to InfluxDB")
	return nil
}

// RecordTick writes the tick's points. Each tick is stamped one millisecond
// after the previous one, starting at the episode's start time, so frames
// never collide.
func (b *Backend) RecordTick(t *core.TickRecord) error {
	b.mu.Lock()
	name, start := b.episode, b.start
	b.mu.Unlock()
	if name == "" {
		return ErrNoEpisode
	}
	ts := start.Add(time.Duration(t.Time) * time.Millisecond)
	return b.manager.WritePoints(influx.TickPoints(name, t, ts)...)
}

// EndEpisode writes the summary point and flushes.
func (b *Backend) EndEpisode(s *core.EpisodeSummary) error {
	b.mu.Lock()
	name := b.episode
	b.episode = ""
	b.mu.Unlock()
	if name == "" {
		return ErrNoEpisode
	}
	if err := b.manager.WritePoints(influx.SummaryPoint(name, s)); err != nil {
		return err
	}
	return b.manager.Flush()
}
