// internal/storage/memory/memory.go
package memory

import (
	"errors"
	"sync"

	"github.com/urbandriving/engine/internal/config"
	"github.com/urbandriving/engine/pkg/core"
)

var (
	ErrNoEpisode       = errors.New("no episode started")
	ErrEpisodeMismatch = errors.New("record belongs to another episode")
)

// Backend stores episode data in memory and exports to JSON when the episode ends
type Backend struct {
	cfg     config.MemoryConfig
	episode *core.Episode
	ticks   []core.TickRecord

	lastExportPath string
	mu             sync.RWMutex
}

// New creates a new memory backend
func New(cfg config.MemoryConfig) *Backend {
	return &Backend{cfg: cfg}
}

// Init initializes the backend
func (b *Backend) Init() error {
	return nil
}

// Close cleans up resources
func (b *Backend) Close() error {
	return nil
}

// StartEpisode begins recording a new episode, dropping any unfinished one
func (b *Backend) StartEpisode(e *core.Episode) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.episode = e
	b.ticks = make([]core.TickRecord, 0, max(e.MaxTime, 0))
	return nil
}

// RecordTick appends a tick to the running episode
func (b *Backend) RecordTick(t *core.TickRecord) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.episode == nil {
		return ErrNoEpisode
	}
	if t.EpisodeID != b.episode.ID {
		return ErrEpisodeMismatch
	}
	b.ticks = append(b.ticks, *t)
	return nil
}

// EndEpisode finalizes and exports the episode data
func (b *Backend) EndEpisode(s *core.EpisodeSummary) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.episode == nil {
		return ErrNoEpisode
	}
	if s.EpisodeID != b.episode.ID {
		return ErrEpisodeMismatch
	}
	err := b.exportJSON(s)
	b.episode = nil
	b.ticks = nil
	return err
}

// Episode returns the running episode
func (b *Backend) Episode() (*core.Episode, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.episode, b.episode != nil
}

// Ticks returns a copy of the ticks recorded so far
func (b *Backend) Ticks() []core.TickRecord {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]core.TickRecord, len(b.ticks))
	copy(out, b.ticks)
	return out
}

// ExportedFilePath returns the path of the last exported file
func (b *Backend) ExportedFilePath() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lastExportPath
}
