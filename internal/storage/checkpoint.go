package storage

import (
	"fmt"
	"log/slog"

	"github.com/IshaanNene/bookharvest/internal/config"
	"github.com/IshaanNene/bookharvest/internal/types"
)

// Checkpoint names written by a scrape run.
const (
	CheckpointInitial = "initial"
	CheckpointFinal   = "final"
)

// Checkpointer persists complete table snapshots to every configured backend.
type Checkpointer struct {
	cfg    *config.StorageConfig
	logger *slog.Logger

	// open is replaceable in tests.
	open func(format, checkpoint string, cfg *config.StorageConfig, logger *slog.Logger) (Storage, error)
}

// NewCheckpointer creates a Checkpointer for cfg.
func NewCheckpointer(cfg *config.StorageConfig, logger *slog.Logger) *Checkpointer {
	return &Checkpointer{
		cfg:    cfg,
		logger: logger.With("component", "checkpointer"),
		open:   New,
	}
}

// Save writes the table under the checkpoint name. A failing backend does
// not prevent the others from being written; the first failure is returned.
func (c *Checkpointer) Save(checkpoint string, table types.Table) error {
	backends := make([]Storage, 0, len(c.cfg.Formats))
	var openErr error
	for _, format := range c.cfg.Formats {
		s, err := c.open(format, checkpoint, c.cfg, c.logger)
		if err != nil {
			c.logger.Error("open storage failed", "format", format, "checkpoint", checkpoint, "error", err)
			if openErr == nil {
				openErr = &types.StorageError{Backend: format, Err: err}
			}
			continue
		}
		backends = append(backends, s)
	}

	multi := NewMultiStorage(backends, c.logger)
	storeErr := multi.Store(table.Records())
	closeErr := multi.Close()

	for _, err := range []error{openErr, storeErr, closeErr} {
		if err != nil {
			return fmt.Errorf("save checkpoint %q: %w", checkpoint, err)
		}
	}

	c.logger.Info("checkpoint saved", "checkpoint", checkpoint, "rows", table.Len(), "backends", len(backends))
	return nil
}

// Paths returns the files Save writes for checkpoint.
func (c *Checkpointer) Paths(checkpoint string) []string {
	var paths []string
	for _, format := range c.cfg.Formats {
		if FileExtension(format) != "" {
			paths = append(paths, CheckpointPath(c.cfg, checkpoint, format))
		}
	}
	return paths
}
