package storage

import (
	"context"
	"time"
)

// AwaitGeneration blocks until idx reports a generation of at least token,
// polling every interval. It returns ctx.Err() if ctx ends first, or the
// index error if a poll fails.
func AwaitGeneration(ctx context.Context, idx VectorIndex, token uint64, interval time.Duration) error {
	if interval <= 0 {
		interval = 50 * time.Millisecond
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		gen, err := idx.Generation(ctx)
		if err != nil {
			return err
		}
		if gen >= token {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
