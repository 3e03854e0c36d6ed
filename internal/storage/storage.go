// internal/storage/storage.go
package storage

import "github.com/urbandriving/engine/pkg/core"

// Backend is the interface all storage implementations must satisfy
type Backend interface {
	// Lifecycle
	Init() error
	Close() error

	// Episode management
	StartEpisode(e *core.Episode) error
	EndEpisode(s *core.EpisodeSummary) error

	// Per-tick recording
	RecordTick(t *core.TickRecord) error
}

// Exporter is an optional interface for storage backends that write each
// finished episode to a file.
type Exporter interface {
	ExportedFilePath() string
}
