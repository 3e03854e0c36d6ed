package main

import (
	"errors"
	"fmt"
	"strconv"

	"gorm.io/gorm"

	"github.com/urbandriving/engine/internal/config"
	"github.com/urbandriving/engine/internal/database"
	gormstorage "github.com/urbandriving/engine/internal/storage/gorm"
	"github.com/urbandriving/engine/internal/storage/memory"
)

// setupDB migrates the schema of the configured database.
func setupDB() error {
	m := database.NewManager(SlogManager.Zerolog("database"))
	if err := m.Connect(config.GetStorageConfig()); err != nil {
		return err
	}
	defer m.Close()
	if err := m.Setup(); err != nil {
		return err
	}
	if m.ShouldSaveLocal && m.SqliteFilePath != "" {
		return m.DumpMemoryToDisk()
	}
	return nil
}

// openRecordings opens the database episodes were recorded into: Postgres when it
// is the storage type, else the SQLite dump file.
func openRecordings(cfg config.StorageConfig) (*gorm.DB, func() error, error) {
	if cfg.Type == "postgres" {
		m := database.NewManager(SlogManager.Zerolog("database"))
		if err := m.Connect(cfg); err != nil {
			return nil, nil, err
		}
		if m.ShouldSaveLocal {
			m.Close()
			return nil, nil, errors.New("postgres is unreachable")
		}
		return m.DB, m.Close, nil
	}
	if cfg.SQLite.Path == "" {
		return nil, nil, errors.New("storage.sqlite.path is required to export from SQLite")
	}
	db, err := database.OpenSQLite(cfg.SQLite.Path)
	if err != nil {
		return nil, nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, nil, err
	}
	return db, sqlDB.Close, nil
}

// exportEpisodes writes the given episode ids, or every stored episode, as JSON
// files into the memory output directory.
func exportEpisodes(args []string) error {
	cfg := config.GetStorageConfig()
	db, closeDB, err := openRecordings(cfg)
	if err != nil {
		return fmt.Errorf("opening recordings: %w", err)
	}
	defer closeDB()

	ids, err := parseIDs(args)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		eps, err := gormstorage.ListEpisodes(db)
		if err != nil {
			return err
		}
		for _, ep := range eps {
			ids = append(ids, ep.ID)
		}
	}

	for _, id := range ids {
		data, err := gormstorage.LoadEpisode(db, id)
		if err != nil {
			return fmt.Errorf("episode %d: %w", id, err)
		}
		path, err := memory.WriteExport(cfg.Memory, data)
		if err != nil {
			return fmt.Errorf("episode %d: %w", id, err)
		}
		Logger.Info("Exported episode", "id", id, "path", path)
	}
	return nil
}

func parseIDs(args []string) ([]uint, error) {
	ids := make([]uint, 0, len(args))
	for _, a := range args {
		n, err := strconv.ParseUint(a, 10, 0)
		if err != nil {
			return nil, fmt.Errorf("invalid episode id %q", a)
		}
		ids = append(ids, uint(n))
	}
	return ids, nil
}
