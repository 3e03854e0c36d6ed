// internal/storage/memory/export.go
package memory

import (
	"compress/gzip"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/urbandriving/engine/internal/config"
	v1 "github.com/urbandriving/engine/internal/storage/memory/export/v1"
	"github.com/urbandriving/engine/pkg/core"
)

// exportJSON writes the running episode to a JSON file, gzipped when configured
func (b *Backend) exportJSON(s *core.EpisodeSummary) error {
	path, err := WriteExport(b.cfg, &v1.EpisodeData{
		Episode: b.episode,
		Ticks:   b.ticks,
		Summary: s,
	})
	if err != nil {
		return err
	}
	b.lastExportPath = path
	return nil
}

// WriteExport builds the export of data and writes it into cfg.OutputDir. The
// file is named after the episode and its start time. It returns the path
// written.
func WriteExport(cfg config.MemoryConfig, data *v1.EpisodeData) (string, error) {
	export := v1.Build(data)

	// Build filename
	name := strings.ReplaceAll(data.Episode.Name, " ", "_")
	name = strings.ReplaceAll(name, ":", "_")
	timestamp := data.Episode.StartTime.Format("20060102_150405")

	var filename string
	if cfg.CompressOutput {
		filename = fmt.Sprintf("%s_%s.json.gz", name, timestamp)
	} else {
		filename = fmt.Sprintf("%s_%s.json", name, timestamp)
	}

	outputPath := filepath.Join(cfg.OutputDir, filename)

	// Ensure output directory exists
	if err := os.MkdirAll(cfg.OutputDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}

	write := writeJSON
	if cfg.CompressOutput {
		write = writeGzipJSON
	}
	if err := write(outputPath, export); err != nil {
		return "", err
	}
	return outputPath, nil
}

func writeJSON(path string, data v1.Export) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer f.Close()

	encoder := json.NewEncoder(f)
	return encoder.Encode(data)
}

func writeGzipJSON(path string, data v1.Export) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer f.Close()

	gzWriter := gzip.NewWriter(f)
	defer gzWriter.Close()

	encoder := json.NewEncoder(gzWriter)
	return encoder.Encode(data)
}
