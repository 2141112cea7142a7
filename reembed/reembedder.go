// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package reembed

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/poiesic/guarded/ai"
	"github.com/poiesic/guarded/core"
	"github.com/poiesic/guarded/storage"
)

// Store is the part of the index a reembedding run needs.
type Store interface {
	storage.ChunkScanner
	Count(ctx context.Context) (int, error)
}

// Config holds configuration for the reembedding operation.
type Config struct {
	// BatchSize is the number of chunks to process in each batch
	BatchSize int

	// Backoff controls retries of failed embedding calls
	Backoff ai.Backoff

	// Dimension, when positive, is enforced on every new vector
	Dimension int
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		BatchSize: DefaultBatchSize,
		Backoff:   ai.Backoff{MaxAttempts: 3, BaseDelay: time.Second, MaxDelay: 30 * time.Second},
	}
}

// Stats summarizes a completed run.
type Stats struct {
	Total    int
	Updated  int
	Duration time.Duration
}

// Reembedder orchestrates the reembedding of all chunks in an index.
type Reembedder struct {
	store     Store
	config    *Config
	reporter  Reporter
	processor *BatchProcessor
	iterator  *ChunkIterator
	logger    *slog.Logger
}

// NewReembedder creates a new reembedder. A nil reporter discards progress.
func NewReembedder(store Store, embedder ai.Embedder, config *Config, reporter Reporter) (*Reembedder, error) {
	if store == nil {
		return nil, ErrStoreRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}
	if config == nil {
		config = DefaultConfig()
	}
	if config.Backoff.MaxAttempts < 1 {
		return nil, ai.ErrInvalidMaxAttempts
	}
	if reporter == nil {
		reporter = nopReporter{}
	}

	return &Reembedder{
		store:     store,
		config:    config,
		reporter:  reporter,
		processor: NewBatchProcessor(store, embedder, config.Backoff, config.Dimension),
		iterator:  NewChunkIterator(store, config.BatchSize),
		logger:    slog.Default().With("component", "reembedder"),
	}, nil
}

// Run re-embeds every chunk in the index.
func (r *Reembedder) Run(ctx context.Context) (*Stats, error) {
	start := time.Now()
	total, err := r.store.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count chunks: %w", err)
	}

	stats := &Stats{Total: total}
	if total == 0 {
		r.logger.Info("no chunks to reembed")
		return stats, nil
	}

	r.logger.Info("starting reembedding", "chunks", total, "batch_size", r.config.BatchSize)
	r.reporter.Start(total)

	err = r.iterator.ForEach(ctx, func(chunks []*core.DocumentChunk) error {
		updated, err := r.processor.Process(ctx, chunks)
		if err != nil {
			return fmt.Errorf("failed to process batch: %w", err)
		}
		stats.Updated += updated
		r.reporter.Add(len(chunks))
		return nil
	})
	if err != nil {
		r.logger.Error("reembedding stopped", "updated", stats.Updated, "total", total, "err", err)
		return stats, err
	}

	r.reporter.Finish()
	stats.Duration = time.Since(start)
	r.logger.Info("reembedding complete",
		"chunks", stats.Updated,
		"duration", stats.Duration.Round(time.Millisecond))
	return stats, nil
}
