package reembed

import (
	"context"
	"fmt"

	"github.com/poiesic/guarded/ai"
	"github.com/poiesic/guarded/core"
	"github.com/poiesic/guarded/storage"
)

// BatchProcessor generates new embeddings for batches of chunks.
type BatchProcessor struct {
	scanner   storage.ChunkScanner
	embedder  ai.Embedder
	backoff   ai.Backoff
	dimension int
}

// NewBatchProcessor creates a new batch processor.
// dimension, when positive, is the required length of every new vector.
func NewBatchProcessor(scanner storage.ChunkScanner, embedder ai.Embedder, backoff ai.Backoff, dimension int) *BatchProcessor {
	return &BatchProcessor{
		scanner:   scanner,
		embedder:  embedder,
		backoff:   backoff,
		dimension: dimension,
	}
}

// Process embeds the text of every chunk and replaces the stored vectors.
// Vectors are normalized after embedding to ensure compatibility with cosine similarity.
// It returns how many chunks were updated.
func (bp *BatchProcessor) Process(ctx context.Context, chunks []*core.DocumentChunk) (int, error) {
	if len(chunks) == 0 {
		return 0, nil
	}

	texts := make([]string, len(chunks))
	for i, chunk := range chunks {
		texts[i] = chunk.Text
	}

	var embeddings [][]float32
	err := ai.RetryWithBackoff(ctx, bp.backoff, func(ctx context.Context) error {
		var err error
		embeddings, err = bp.embedder.EmbedTexts(ctx, texts)
		if err != nil {
			return err
		}
		if len(embeddings) != len(chunks) {
			return fmt.Errorf("%w: expected %d, got %d", ErrEmbeddingCountMismatch, len(chunks), len(embeddings))
		}
		for _, e := range embeddings {
			if bp.dimension > 0 && len(e) != bp.dimension {
				return ai.Permanent(fmt.Errorf("%w: expected %d, got %d", core.ErrDimensionMismatch, bp.dimension, len(e)))
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to generate embeddings after %d attempts: %w", bp.backoff.MaxAttempts, err)
	}

	vectors := make(map[string][]float32, len(chunks))
	for i, chunk := range chunks {
		vectors[chunk.ID] = ai.NormalizeVector(embeddings[i])
	}

	updated, err := bp.scanner.ReplaceVectors(ctx, vectors)
	if err != nil {
		return 0, fmt.Errorf("failed to update chunks: %w", err)
	}
	return updated, nil
}
