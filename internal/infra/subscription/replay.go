package subscription

import (
	"context"
	"fmt"
	"log/slog"
	"os"
)

// Replay delivers blocks read from JSON files, in order, then returns.
type Replay struct {
	paths []string
	log   *slog.Logger
}

// NewReplay creates a subscriber over the given block files.
func NewReplay(log *slog.Logger, paths ...string) *Replay {
	if log == nil {
		log = slog.Default()
	}
	return &Replay{
		paths: paths,
		log:   log.With("component", "subscription", "type", "replay"),
	}
}

// Subscribe delivers every file's block and returns once all are handled.
func (r *Replay) Subscribe(ctx context.Context, handler Handler) error {
	for _, path := range r.paths {
		if ctx.Err() != nil {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read block file: %w", err)
		}
		r.log.Info("Replaying block", "file", path)
		deliver(ctx, r.log, "file", data, handler)
	}
	return nil
}
