// Package postgres implements the storage.Backend interface on a PostgreSQL
// server. Writes go through the GORM backend's queues and writer goroutine.
package postgres

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/urbandriving/engine/internal/config"
	"github.com/urbandriving/engine/internal/database"
	gormstorage "github.com/urbandriving/engine/internal/storage/gorm"
	"github.com/urbandriving/engine/pkg/core"
)

const maxOpenConns = 10

// Backend records episodes into Postgres.
type Backend struct {
	cfg  config.PostgresConfig
	log  *slog.Logger
	gorm *gormstorage.Backend
}

// New creates a Postgres backend. No connection is made until Init.
func New(cfg config.PostgresConfig, log *slog.Logger) *Backend {
	if log == nil {
		log = slog.Default()
	}
	return &Backend{cfg: cfg, log: log}
}

// Init connects, pings the server and migrates the schema.
func (b *Backend) Init() error {
	db, err := database.OpenPostgres(b.cfg)
	if err != nil {
		return fmt.Errorf("failed to open postgres at %s:%s: %w", b.cfg.Host, b.cfg.Port, err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to access sql interface: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return fmt.Errorf("failed to reach postgres at %s:%s: %w", b.cfg.Host, b.cfg.Port, err)
	}
	sqlDB.SetMaxOpenConns(maxOpenConns)
	sqlDB.SetConnMaxIdleTime(5 * time.Minute)

	b.log.Info("Connected to database", "host", b.cfg.Host, "database", b.cfg.Database)
	b.gorm = gormstorage.New(gormstorage.Dependencies{DB: db, Logger: b.log})
	return b.gorm.Init()
}

// Close flushes the queues and closes the connection pool.
func (b *Backend) Close() error {
	if b.gorm == nil {
		return nil
	}
	err := b.gorm.Close()
	if sqlDB, dbErr := b.gorm.DB().DB(); dbErr == nil {
		_ = sqlDB.Close()
	}
	b.gorm = nil
	return err
}

func (b *Backend) StartEpisode(e *core.Episode) error {
	if b.gorm == nil {
		return gormstorage.ErrNoEpisode
	}
	return b.gorm.StartEpisode(e)
}

func (b *Backend) EndEpisode(s *core.EpisodeSummary) error {
	if b.gorm == nil {
		return gormstorage.ErrNoEpisode
	}
	return b.gorm.EndEpisode(s)
}

func (b *Backend) RecordTick(t *core.TickRecord) error {
	if b.gorm == nil {
		return gormstorage.ErrNoEpisode
	}
	return b.gorm.RecordTick(t)
}
