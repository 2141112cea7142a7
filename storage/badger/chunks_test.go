package badger

import (
	"context"
	"fmt"
	"testing"

	"github.com/poiesic/guarded/core"
	"github.com/poiesic/guarded/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestIndex(t *testing.T, opts ...IndexOption) *ChunkIndex {
	t.Helper()
	index, err := NewMemoryIndex(opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = index.Close() })
	return index
}

func chunk(sourceID string, ordinal int, text string, epoch int64, vec ...float32) *core.DocumentChunk {
	return &core.DocumentChunk{
		ID:       core.ChunkID(sourceID, ordinal, text),
		SourceID: sourceID,
		Ordinal:  ordinal,
		Text:     text,
		Vector:   vec,
		Epoch:    epoch,
	}
}

func tuple(subject, object string) core.VisibilityTuple {
	return core.ViewerTuple(subject, object)
}

func TestChunkIndex_UpsertAndQuery(t *testing.T) {
	index := newTestIndex(t)
	ctx := context.Background()

	require.NoError(t, index.UpsertChunks(ctx,
		chunk("a.txt", 0, "north", 1, 1, 0),
		chunk("a.txt", 1, "east", 1, 0, 1),
		chunk("b.txt", 0, "north-east", 1, 1, 1),
	))
	assert.Equal(t, 2, index.Dimension())

	hits, err := index.Query(ctx, []float32{1, 0}, 2)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "north", hits[0].Chunk.Text)
	assert.InDelta(t, 1.0, hits[0].Score, 1e-6)
	assert.Equal(t, "north-east", hits[1].Chunk.Text)
	assert.False(t, hits[0].Chunk.InsertedAt.IsZero())

	all, err := index.Query(ctx, []float32{1, 0}, 10)
	require.NoError(t, err)
	assert.Len(t, all, 3, "fewer than k results means the index is exhausted")

	count, err := index.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestChunkIndex_QueryTieBreakIsStable(t *testing.T) {
	index := newTestIndex(t)
	ctx := context.Background()

	var chunks []*core.DocumentChunk
	for i := range 5 {
		chunks = append(chunks, chunk(fmt.Sprintf("s%d", i), 0, "same", 1, 1, 0))
	}
	require.NoError(t, index.UpsertChunks(ctx, chunks...))

	first, err := index.Query(ctx, []float32{1, 0}, 5)
	require.NoError(t, err)
	for range 3 {
		again, err := index.Query(ctx, []float32{1, 0}, 5)
		require.NoError(t, err)
		for i := range first {
			assert.Equal(t, first[i].Chunk.ID, again[i].Chunk.ID)
		}
	}
	for i := 1; i < len(first); i++ {
		assert.Less(t, first[i-1].Chunk.ID, first[i].Chunk.ID, "ties ordered by ID")
	}
}

func TestChunkIndex_UpsertReplacesSameID(t *testing.T) {
	index := newTestIndex(t)
	ctx := context.Background()

	require.NoError(t, index.UpsertChunks(ctx, chunk("a.txt", 0, "text", 1, 1, 0)))
	require.NoError(t, index.UpsertChunks(ctx, chunk("a.txt", 0, "text", 2, 1, 0)))

	chunks, err := index.ChunksForSource(ctx, "a.txt")
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, int64(2), chunks[0].Epoch)
}

func TestChunkIndex_Validation(t *testing.T) {
	index := newTestIndex(t, WithDimension(2))
	ctx := context.Background()

	err := index.UpsertChunks(ctx, chunk("a.txt", 0, "ok", 1, 1, 0), chunk("a.txt", 1, "bad", 1, 1, 0, 0))
	assert.ErrorIs(t, err, core.ErrInvalidChunk)
	assert.ErrorIs(t, err, core.ErrDimensionMismatch)

	count, err := index.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, count, "nothing written when any chunk is invalid")

	_, err = index.Query(ctx, []float32{1, 0, 0}, 1)
	assert.ErrorIs(t, err, core.ErrDimensionMismatch)
	_, err = index.Query(ctx, []float32{1, 0}, 0)
	assert.ErrorIs(t, err, storage.ErrInvalidQuery)
}

func TestChunkIndex_DeleteScopedToSource(t *testing.T) {
	index := newTestIndex(t)
	ctx := context.Background()

	require.NoError(t, index.UpsertChunks(ctx,
		chunk("a.txt", 0, "old a", 1, 1, 0),
		chunk("a.txt", 1, "new a", 2, 1, 0),
		chunk("b.txt", 0, "b", 1, 0, 1),
	))

	removed, err := index.DeleteStaleForSource(ctx, "a.txt", 2)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	chunks, err := index.ChunksForSource(ctx, "a.txt")
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "new a", chunks[0].Text)

	removed, err = index.DeleteAllForSource(ctx, "a.txt")
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	count, err := index.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count, "other sources untouched")

	_, err = index.DeleteAllForSource(ctx, "")
	assert.ErrorIs(t, err, core.ErrEmptySourceID)
}

func TestChunkIndex_ChunksForSourceOrdered(t *testing.T) {
	index := newTestIndex(t)
	ctx := context.Background()

	require.NoError(t, index.UpsertChunks(ctx,
		chunk("a.txt", 2, "third", 1, 1, 0),
		chunk("a.txt", 0, "first", 1, 1, 0),
		chunk("a.txt", 1, "second", 1, 1, 0),
	))

	chunks, err := index.ChunksForSource(ctx, "a.txt")
	require.NoError(t, err)
	require.Len(t, chunks, 3)
	assert.Equal(t, []string{"first", "second", "third"}, []string{chunks[0].Text, chunks[1].Text, chunks[2].Text})
}

func TestChunkIndex_GenerationAndHealth(t *testing.T) {
	index := newTestIndex(t)
	ctx := context.Background()

	require.NoError(t, index.HealthCheck(ctx))
	before, err := index.Generation(ctx)
	require.NoError(t, err)

	require.NoError(t, index.UpsertChunks(ctx, chunk("a.txt", 0, "x", 1, 1)))
	after, err := index.Generation(ctx)
	require.NoError(t, err)
	assert.Greater(t, after, before)

	require.NoError(t, storage.AwaitGeneration(ctx, index, after, 0))

	require.NoError(t, index.Close())
	err = index.HealthCheck(ctx)
	assert.ErrorIs(t, err, core.ErrVectorIndexUnavailable)
	_, err = index.Query(ctx, []float32{1}, 1)
	assert.ErrorIs(t, err, core.ErrVectorIndexUnavailable)
}

func TestChunkIndex_DimensionPersists(t *testing.T) {
	dir := t.TempDir()
	index, err := NewIndex(dir)
	require.NoError(t, err)
	require.NoError(t, index.UpsertChunks(context.Background(), chunk("a.txt", 0, "x", 1, 1, 0, 0)))
	require.NoError(t, index.Close())

	reopened, err := NewIndex(dir)
	require.NoError(t, err)
	assert.Equal(t, 3, reopened.Dimension())
	require.NoError(t, reopened.Close())

	_, err = NewIndex(dir, WithDimension(4))
	assert.ErrorIs(t, err, core.ErrDimensionMismatch)
}

func TestChunkIndex_ScanAndReplaceVectors(t *testing.T) {
	index := newTestIndex(t)
	ctx := context.Background()

	var chunks []*core.DocumentChunk
	for i := range 5 {
		chunks = append(chunks, chunk("a.txt", i, fmt.Sprintf("t%d", i), 1, 1, 0))
	}
	require.NoError(t, index.UpsertChunks(ctx, chunks...))

	var scanned []*core.DocumentChunk
	cursor := ""
	pages := 0
	for {
		page, next, err := index.ScanChunks(ctx, cursor, 2)
		require.NoError(t, err)
		scanned = append(scanned, page...)
		pages++
		if next == "" {
			break
		}
		cursor = next
	}
	assert.Len(t, scanned, 5)
	assert.Equal(t, 3, pages)

	vectors := map[string][]float32{}
	for _, c := range scanned {
		vectors[c.ID] = []float32{0, 0, 1}
	}
	vectors["missing"] = []float32{1, 1, 1}

	replaced, err := index.ReplaceVectors(ctx, vectors)
	require.NoError(t, err)
	assert.Equal(t, 5, replaced)
	assert.Equal(t, 3, index.Dimension())

	hits, err := index.Query(ctx, []float32{0, 0, 1}, 1)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.InDelta(t, 1.0, hits[0].Score, 1e-6)

	_, err = index.ReplaceVectors(ctx, map[string][]float32{"a": {1}, "b": {1, 2}})
	assert.ErrorIs(t, err, core.ErrDimensionMismatch)
}
