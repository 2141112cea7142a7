package reembed

import (
	"context"
	"errors"
	"testing"

	"github.com/poiesic/guarded/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunkIterator_ForEach(t *testing.T) {
	tests := []struct {
		name      string
		chunks    int
		batchSize int
		wantPages []int
	}{
		{"empty", 0, 10, nil},
		{"single page", 5, 10, []int{5}},
		{"exact pages", 20, 10, []int{10, 10}},
		{"partial last page", 25, 10, []int{10, 10, 5}},
		{"default batch size", 150, 0, []int{100, 50}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			index := setupTestIndex(t, tt.chunks)

			var pages []int
			seen := map[string]bool{}
			err := NewChunkIterator(index, tt.batchSize).ForEach(context.Background(), func(chunks []*core.DocumentChunk) error {
				pages = append(pages, len(chunks))
				for _, c := range chunks {
					assert.False(t, seen[c.ID], "chunk visited twice")
					seen[c.ID] = true
				}
				return nil
			})
			require.NoError(t, err)
			assert.Equal(t, tt.wantPages, pages)
			assert.Len(t, seen, tt.chunks)
		})
	}
}

func TestChunkIterator_StopsOnError(t *testing.T) {
	index := setupTestIndex(t, 30)
	boom := errors.New("boom")

	calls := 0
	err := NewChunkIterator(index, 10).ForEach(context.Background(), func([]*core.DocumentChunk) error {
		calls++
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
}

func TestChunkIterator_ContextCanceled(t *testing.T) {
	index := setupTestIndex(t, 30)
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	err := NewChunkIterator(index, 10).ForEach(ctx, func([]*core.DocumentChunk) error {
		calls++
		cancel()
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}
