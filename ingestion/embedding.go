package ingestion

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/guarded/ai"
	"github.com/poiesic/guarded/core"
	"github.com/poiesic/guarded/partition"
)

// embeddingProcessor drains a partition sequence and embeds each element on a worker pool.
type embeddingProcessor struct {
	embedder ai.Embedder
	pool     *ants.Pool
	logger   *slog.Logger
}

// batch is the outcome of processing one document.
type batch struct {
	chunks  []*core.DocumentChunk
	skipped []SkippedChunk
}

// newEmbeddingProcessor creates a new embedding processor.
func newEmbeddingProcessor(embedder ai.Embedder, pool *ants.Pool, logger *slog.Logger) (*embeddingProcessor, error) {
	if embedder == nil {
		return nil, fmt.Errorf("embedder required")
	}
	if pool == nil {
		return nil, fmt.Errorf("worker pool required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &embeddingProcessor{
		embedder: embedder,
		pool:     pool,
		logger:   logger.With("processor", "embeddings"),
	}, nil
}

// process embeds every element of elements. Elements are numbered in
// sequence order, including the ones that fail to partition, so ordinals stay
// stable when a segment is skipped. A non-nil error means the document as a
// whole could not be processed.
func (ep *embeddingProcessor) process(ctx context.Context, sourceID string, epoch int64, metadata map[string]any, elements iter.Seq2[partition.Element, error]) (*batch, error) {
	var (
		mu       sync.Mutex
		wg       sync.WaitGroup
		out      = &batch{}
		fatalErr error
	)
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	fail := func(err error) {
		mu.Lock()
		if fatalErr == nil {
			fatalErr = err
		}
		mu.Unlock()
		cancel()
	}

	ordinal := 0
	for elem, err := range elements {
		current := ordinal
		ordinal++

		if err != nil {
			if partition.IsFatal(err) {
				fail(err)
				break
			}
			ep.logger.Warn("skipping segment", "source", sourceID, "ordinal", current, "err", err)
			mu.Lock()
			out.skipped = append(out.skipped, SkippedChunk{Ordinal: current, Stage: StagePartition, Err: err})
			mu.Unlock()
			continue
		}
		if strings.TrimSpace(elem.Text) == "" {
			continue
		}

		wg.Add(1)
		submitErr := ep.pool.Submit(func() {
			defer wg.Done()
			vec, err := ep.embedder.EmbedText(ctx, elem.Text)
			if err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
					fail(err)
					return
				}
				ep.logger.Warn("skipping chunk after embedding failure", "source", sourceID, "ordinal", current, "err", err)
				mu.Lock()
				out.skipped = append(out.skipped, SkippedChunk{Ordinal: current, Stage: StageEmbed, Err: err})
				mu.Unlock()
				return
			}

			chunk := &core.DocumentChunk{
				ID:       core.ChunkID(sourceID, current, elem.Text),
				SourceID: sourceID,
				Ordinal:  current,
				Text:     elem.Text,
				Vector:   vec,
				Metadata: chunkMetadata(metadata, elem.Metadata),
				Epoch:    epoch,
			}
			mu.Lock()
			out.chunks = append(out.chunks, chunk)
			mu.Unlock()
		})
		if submitErr != nil {
			wg.Done()
			if errors.Is(submitErr, ants.ErrPoolClosed) {
				submitErr = ErrPipelineReleased
			}
			fail(submitErr)
			break
		}
	}
	wg.Wait()

	if fatalErr != nil {
		return nil, fatalErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	slices.SortFunc(out.chunks, func(a, b *core.DocumentChunk) int { return cmp.Compare(a.Ordinal, b.Ordinal) })
	slices.SortFunc(out.skipped, func(a, b SkippedChunk) int { return cmp.Compare(a.Ordinal, b.Ordinal) })
	ep.logger.Debug("embedded document", "source", sourceID, "chunks", len(out.chunks), "skipped", len(out.skipped))
	return out, nil
}
