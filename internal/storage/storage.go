package storage

import (
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/IshaanNene/bookharvest/internal/config"
	"github.com/IshaanNene/bookharvest/internal/types"
)

// Storage is the interface for all storage backends.
type Storage interface {
	// Store persists a batch of records.
	Store(records []types.BookRecord) error

	// Close flushes pending writes and releases resources. File backends
	// only make their output visible on Close.
	Close() error

	// Name returns the storage backend identifier.
	Name() string
}

// FileExtension returns the file extension used by a file format.
func FileExtension(format string) string {
	switch format {
	case "csv":
		return "csv"
	case "jsonl":
		return "jsonl"
	default:
		return ""
	}
}

// CheckpointPath returns the file a checkpoint is written to, for example
// data/raw_data/book_data_initial.csv.
func CheckpointPath(cfg *config.StorageConfig, checkpoint, format string) string {
	name := checkpoint + "." + FileExtension(format)
	if cfg.FilePrefix != "" {
		name = cfg.FilePrefix + "_" + name
	}
	return filepath.Join(cfg.OutputPath, name)
}

// New opens the backend for format, scoped to one checkpoint.
func New(format, checkpoint string, cfg *config.StorageConfig, logger *slog.Logger) (Storage, error) {
	switch format {
	case "csv":
		return NewCSVStorage(CheckpointPath(cfg, checkpoint, format), logger)
	case "jsonl":
		return NewJSONLStorage(CheckpointPath(cfg, checkpoint, format), logger)
	case "mongodb":
		return NewMongoStorage(cfg.Mongo, checkpoint, logger)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", format)
	}
}
