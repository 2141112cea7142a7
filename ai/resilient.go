package ai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/poiesic/guarded/core"
)

// ResilientEmbedder wraps an Embedder with retries, unit normalization and a
// dimension check. Failures that survive the retry budget wrap
// core.ErrEmbeddingUnavailable; context errors pass through unchanged.
type ResilientEmbedder struct {
	inner     Embedder
	backoff   Backoff
	dimension int
	logger    *slog.Logger
}

var _ Embedder = (*ResilientEmbedder)(nil)

// NewResilientEmbedder wraps inner. A dimension of zero disables the length check.
func NewResilientEmbedder(inner Embedder, backoff Backoff, dimension int) *ResilientEmbedder {
	return &ResilientEmbedder{
		inner:     inner,
		backoff:   backoff,
		dimension: dimension,
		logger:    slog.Default().With("component", "resilient-embedder"),
	}
}

// Resilient returns e if it already retries, otherwise wraps it with backoff
// and no dimension check.
func Resilient(e Embedder, backoff Backoff) *ResilientEmbedder {
	if r, ok := e.(*ResilientEmbedder); ok {
		return r
	}
	return NewResilientEmbedder(e, backoff, 0)
}

// Dimension returns the enforced vector length, or zero.
func (r *ResilientEmbedder) Dimension() int {
	return r.dimension
}

// EmbedText embeds a single text.
func (r *ResilientEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	var vec []float32
	err := RetryWithBackoff(ctx, r.backoff, func(ctx context.Context) error {
		v, err := r.inner.EmbedText(ctx, text)
		if err != nil {
			return err
		}
		vec, err = r.finish(v)
		return err
	})
	if err != nil {
		return nil, r.classify(ctx, err)
	}
	return vec, nil
}

// EmbedTexts embeds a batch. The whole batch is retried on failure.
func (r *ResilientEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	var out [][]float32
	err := RetryWithBackoff(ctx, r.backoff, func(ctx context.Context) error {
		vecs, err := r.inner.EmbedTexts(ctx, texts)
		if err != nil {
			return err
		}
		if len(vecs) != len(texts) {
			return fmt.Errorf("provider returned %d embeddings for %d texts", len(vecs), len(texts))
		}
		out = make([][]float32, len(vecs))
		for i, v := range vecs {
			if out[i], err = r.finish(v); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, r.classify(ctx, err)
	}
	return out, nil
}

func (r *ResilientEmbedder) finish(v []float32) ([]float32, error) {
	if len(v) == 0 {
		return nil, ErrEmptyEmbedding
	}
	if r.dimension > 0 && len(v) != r.dimension {
		return nil, Permanent(fmt.Errorf("%w: got %d, want %d", core.ErrDimensionMismatch, len(v), r.dimension))
	}
	return NormalizeVector(v), nil
}

func (r *ResilientEmbedder) classify(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
		return err
	}
	if errors.Is(err, core.ErrDimensionMismatch) {
		r.logger.Error("embedding dimension mismatch", "err", err)
	} else {
		r.logger.Warn("embedding failed after retries", "attempts", r.backoff.MaxAttempts, "err", err)
	}
	return fmt.Errorf("%w: %w", core.ErrEmbeddingUnavailable, err)
}
