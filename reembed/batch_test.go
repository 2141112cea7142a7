package reembed

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/poiesic/guarded/ai"
	"github.com/poiesic/guarded/core"
	"github.com/poiesic/guarded/storage/badger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockEmbedder for testing
type mockEmbedder struct {
	embedTextsFunc func(ctx context.Context, texts []string) ([][]float32, error)
	calls          atomic.Int64
}

func (m *mockEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	vecs, err := m.EmbedTexts(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (m *mockEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	m.calls.Add(1)
	if m.embedTextsFunc != nil {
		return m.embedTextsFunc(ctx, texts)
	}
	// Default: return unnormalized vectors for each text
	result := make([][]float32, len(texts))
	for i := range texts {
		result[i] = []float32{1.0, 2.0, 2.0} // magnitude = 3.0
	}
	return result, nil
}

func quickBackoff(attempts int) ai.Backoff {
	return ai.Backoff{MaxAttempts: attempts, BaseDelay: time.Millisecond}
}

func setupTestIndex(t *testing.T, n int) *badger.ChunkIndex {
	t.Helper()
	index, err := badger.NewMemoryIndex()
	require.NoError(t, err)
	t.Cleanup(func() { _ = index.Close() })

	chunks := make([]*core.DocumentChunk, n)
	for i := range n {
		source := fmt.Sprintf("doc-%d", i%3)
		text := fmt.Sprintf("chunk text %d", i)
		chunks[i] = &core.DocumentChunk{
			ID:       core.ChunkID(source, i, text),
			SourceID: source,
			Ordinal:  i,
			Text:     text,
			Vector:   []float32{1, 0},
			Epoch:    1,
		}
	}
	if n > 0 {
		require.NoError(t, index.UpsertChunks(context.Background(), chunks...))
	}
	return index
}

func allChunks(t *testing.T, index *badger.ChunkIndex) []*core.DocumentChunk {
	t.Helper()
	var out []*core.DocumentChunk
	err := NewChunkIterator(index, 7).ForEach(context.Background(), func(chunks []*core.DocumentChunk) error {
		out = append(out, chunks...)
		return nil
	})
	require.NoError(t, err)
	return out
}

func TestBatchProcessor_Process(t *testing.T) {
	index := setupTestIndex(t, 4)
	ctx := context.Background()
	chunks := allChunks(t, index)

	processor := NewBatchProcessor(index, &mockEmbedder{}, quickBackoff(3), 0)
	updated, err := processor.Process(ctx, chunks)
	require.NoError(t, err)
	assert.Equal(t, 4, updated)
	assert.Equal(t, 3, index.Dimension())

	for _, chunk := range allChunks(t, index) {
		require.Len(t, chunk.Vector, 3)
		assert.InDelta(t, 1.0, ai.Magnitude(chunk.Vector), 1e-5, "vector should be normalized")
		assert.InDelta(t, 1.0/3.0, chunk.Vector[0], 1e-5)
	}
}

func TestBatchProcessor_EmptyBatch(t *testing.T) {
	index := setupTestIndex(t, 0)
	embedder := &mockEmbedder{}
	processor := NewBatchProcessor(index, embedder, quickBackoff(3), 0)

	updated, err := processor.Process(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 0, updated)
	assert.Equal(t, int64(0), embedder.calls.Load())
}

func TestBatchProcessor_RetriesThenSucceeds(t *testing.T) {
	index := setupTestIndex(t, 2)
	chunks := allChunks(t, index)

	var attempts atomic.Int64
	embedder := &mockEmbedder{embedTextsFunc: func(_ context.Context, texts []string) ([][]float32, error) {
		if attempts.Add(1) < 3 {
			return nil, errors.New("temporary failure")
		}
		out := make([][]float32, len(texts))
		for i := range texts {
			out[i] = []float32{0, 1}
		}
		return out, nil
	}}

	updated, err := NewBatchProcessor(index, embedder, quickBackoff(3), 0).Process(context.Background(), chunks)
	require.NoError(t, err)
	assert.Equal(t, 2, updated)
	assert.Equal(t, int64(3), attempts.Load())
}

func TestBatchProcessor_Failures(t *testing.T) {
	tests := []struct {
		name      string
		embed     func(context.Context, []string) ([][]float32, error)
		dimension int
		wantErr   error
		wantCalls int64
	}{
		{
			name:      "exhausted",
			embed:     func(context.Context, []string) ([][]float32, error) { return nil, errors.New("down") },
			wantCalls: 2,
		},
		{
			name:      "count mismatch",
			embed:     func(context.Context, []string) ([][]float32, error) { return [][]float32{{1}}, nil },
			wantErr:   ErrEmbeddingCountMismatch,
			wantCalls: 2,
		},
		{
			name: "dimension mismatch is not retried",
			embed: func(_ context.Context, texts []string) ([][]float32, error) {
				out := make([][]float32, len(texts))
				for i := range texts {
					out[i] = []float32{1, 2, 3, 4}
				}
				return out, nil
			},
			dimension: 3,
			wantErr:   core.ErrDimensionMismatch,
			wantCalls: 1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			index := setupTestIndex(t, 2)
			chunks := allChunks(t, index)
			embedder := &mockEmbedder{embedTextsFunc: tt.embed}

			_, err := NewBatchProcessor(index, embedder, quickBackoff(2), tt.dimension).Process(context.Background(), chunks)
			require.Error(t, err)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}
			assert.Equal(t, tt.wantCalls, embedder.calls.Load())

			// Vectors untouched
			for _, chunk := range allChunks(t, index) {
				assert.Equal(t, []float32{1, 0}, chunk.Vector)
			}
		})
	}
}
