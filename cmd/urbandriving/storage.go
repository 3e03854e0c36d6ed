package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/urbandriving/engine/internal/config"
	"github.com/urbandriving/engine/internal/storage"
	influxstorage "github.com/urbandriving/engine/internal/storage/influx"
	"github.com/urbandriving/engine/internal/storage/memory"
	"github.com/urbandriving/engine/internal/storage/postgres"
	sqlitestorage "github.com/urbandriving/engine/internal/storage/sqlite"
	wsstorage "github.com/urbandriving/engine/internal/storage/websocket"
)

// createStorageBackend builds the recorder selected by storageCfg.Type. A nil
// backend with no error means recording is off.
func createStorageBackend(storageCfg config.StorageConfig) (storage.Backend, error) {
	switch storageCfg.Type {
	case "none", "":
		return nil, nil
	case "memory":
		return memory.New(storageCfg.Memory), nil
	case "sqlite":
		cfg := storageCfg.SQLite
		if cfg.Path == "" {
			cfg.Path = filepath.Join(storageCfg.Memory.OutputDir,
				fmt.Sprintf("%s_%s.db", AppName, SessionStartTime.Format("20060102_150405")))
		}
		if err := os.MkdirAll(filepath.Dir(cfg.Path), 0755); err != nil {
			return nil, fmt.Errorf("creating sqlite directory: %w", err)
		}
		b, err := sqlitestorage.New(cfg, Logger)
		if err != nil {
			return nil, err
		}
		return b, nil
	case "postgres":
		return postgres.New(storageCfg.Postgres, Logger), nil
	case "websocket":
		return wsstorage.New(storageCfg.WebSocket, Logger), nil
	case "influx":
		return influxstorage.New(storageCfg.Influx, SlogManager.Zerolog("influx")), nil
	default:
		return nil, fmt.Errorf("unknown storage type: %s", storageCfg.Type)
	}
}
