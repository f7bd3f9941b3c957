// Package logging sets up the process logger: structured JSON, optionally
// mirrored into a size-rotated log file for unattended scheduled runs.
package logging

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// Rotation defaults for the file sink. Scheduled ingestion produces modest
// log volume; five 50MB generations cover weeks of history.
const (
	defaultMaxSizeMB  = 50
	defaultMaxBackups = 5
)

// ParseLevel converts a configuration string to a slog.Level. Unknown
// values fall back to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Setup builds the process logger and installs it as the slog default.
// Output always goes to stdout; when filePath is non-empty it is mirrored
// into a rotating file as well.
func Setup(level, filePath string) (*slog.Logger, error) {
	var writer io.Writer = os.Stdout

	if filePath != "" {
		if err := os.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
			return nil, err
		}
		fileWriter, err := NewRotatingFileWriter(filePath, defaultMaxSizeMB*1024*1024, defaultMaxBackups)
		if err != nil {
			return nil, err
		}
		writer = io.MultiWriter(os.Stdout, fileWriter)
	}

	handler := slog.NewJSONHandler(writer, &slog.HandlerOptions{
		Level: ParseLevel(level),
	})

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger, nil
}

// ForRun returns a logger carrying the source and run identity. Every log
// line of one ingestion run shares these attributes.
func ForRun(logger *slog.Logger, sourceID, runID string) *slog.Logger {
	return logger.With("source", sourceID, "run_id", runID)
}
