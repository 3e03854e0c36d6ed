// Package sqlitestorage implements the storage.Backend interface using an in-memory
// SQLite database with periodic disk dumps via VACUUM INTO.
// It wraps the GORM backend; the SQLite-specific concerns are creating the
// in-memory DB and dumping it to disk periodically and after every episode.
package sqlitestorage

import (
	"fmt"
	"log/slog"
	"time"

	"gorm.io/gorm"

	"github.com/urbandriving/engine/internal/config"
	"github.com/urbandriving/engine/internal/database"
	gormstorage "github.com/urbandriving/engine/internal/storage/gorm"
	"github.com/urbandriving/engine/pkg/core"
)

// Backend wraps the GORM backend for SQLite-specific behavior.
type Backend struct {
	*gormstorage.Backend
	cfg      config.SQLiteConfig
	log      *slog.Logger
	stopChan chan struct{}
	done     chan struct{}
	started  bool
}

// New creates a new SQLite storage backend. cfg.Path is where dumps go; an empty
// path keeps the database in memory only.
func New(cfg config.SQLiteConfig, log *slog.Logger) (*Backend, error) {
	db, err := database.OpenSQLite("")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory SQLite DB: %w", err)
	}
	if log == nil {
		log = slog.Default()
	}

	return &Backend{
		Backend: gormstorage.New(gormstorage.Dependencies{
			DB:     db,
			Logger: log,
		}),
		cfg:      cfg,
		log:      log,
		stopChan: make(chan struct{}),
		done:     make(chan struct{}),
	}, nil
}

// Init initializes the embedded GORM backend and starts the dump goroutine.
func (b *Backend) Init() error {
	if err := b.Backend.Init(); err != nil {
		return err
	}

	b.started = true
	if b.cfg.Path != "" && b.cfg.DumpInterval > 0 {
		go b.dumpLoop()
	} else {
		close(b.done)
	}

	return nil
}

// Close stops the dump goroutine, closes the embedded GORM backend and writes a
// final dump.
func (b *Backend) Close() error {
	select {
	case <-b.stopChan:
		return nil
	default:
	}
	close(b.stopChan)
	if b.started {
		<-b.done
	}
	if err := b.Backend.Close(); err != nil {
		return err
	}
	return b.Dump()
}

// EndEpisode finalizes the episode and dumps the database.
func (b *Backend) EndEpisode(s *core.EpisodeSummary) error {
	if err := b.Backend.EndEpisode(s); err != nil {
		return err
	}
	return b.Dump()
}

// Dump writes a point-in-time snapshot to the configured path. It does nothing
// without a path.
func (b *Backend) Dump() error {
	if b.cfg.Path == "" {
		return nil
	}
	start := time.Now()
	err := b.WithDB(func(db *gorm.DB) error {
		return database.DumpMemoryDBToDisk(db, b.cfg.Path)
	})
	if err != nil {
		b.log.Error("Error dumping to disk", "path", b.cfg.Path, "error", err)
		return err
	}
	b.log.Debug("Dumped to disk", "path", b.cfg.Path, "duration", time.Since(start))
	return nil
}

// dumpLoop periodically dumps the in-memory SQLite database to disk via VACUUM INTO.
func (b *Backend) dumpLoop() {
	defer close(b.done)
	ticker := time.NewTicker(b.cfg.DumpInterval)
	defer ticker.Stop()

	for {
		select {
		case <-b.stopChan:
			return
		case <-ticker.C:
			_ = b.Dump()
		}
	}
}
