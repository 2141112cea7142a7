package storage

import (
	"context"

	"github.com/poiesic/guarded/core"
)

// VectorIndex stores embedded chunks and answers nearest-neighbour queries.
// Implementations must be thread-safe and support concurrent access.
// Failures to read or write wrap core.ErrVectorIndexUnavailable.
type VectorIndex interface {
	// UpsertChunks writes chunks, replacing any chunk with the same ID.
	// Chunks are validated before anything is written; an invalid chunk
	// fails the whole call with core.ErrInvalidChunk.
	UpsertChunks(ctx context.Context, chunks ...*core.DocumentChunk) error

	// DeleteAllForSource removes every chunk of sourceID and returns how many were removed.
	DeleteAllForSource(ctx context.Context, sourceID string) (int, error)

	// DeleteStaleForSource removes chunks of sourceID whose Epoch differs from keepEpoch.
	DeleteStaleForSource(ctx context.Context, sourceID string, keepEpoch int64) (int, error)

	// Query returns up to k chunks ordered by similarity to vector, highest
	// first. Ties are broken by chunk ID so the order is total and stable.
	// Fewer than k results means the index has no more chunks.
	Query(ctx context.Context, vector []float32, k int) ([]*core.ScoredChunk, error)

	// ChunksForSource returns the chunks of sourceID ordered by Ordinal.
	ChunksForSource(ctx context.Context, sourceID string) ([]*core.DocumentChunk, error)

	// Count returns the number of stored chunks.
	Count(ctx context.Context) (int, error)

	// HealthCheck verifies the index can serve reads.
	HealthCheck(ctx context.Context) error

	// Generation returns a counter that increases with every committed write.
	// A reader that observes Generation >= t sees every write that returned t.
	Generation(ctx context.Context) (uint64, error)

	// Close closes the index and releases resources.
	Close() error
}

// ChunkScanner walks every stored chunk in key order. Used for bulk maintenance.
type ChunkScanner interface {
	// ScanChunks returns up to limit chunks whose ID sorts after cursor, and
	// the cursor for the next page. An empty cursor starts from the beginning;
	// an empty returned cursor means the scan is complete.
	ScanChunks(ctx context.Context, cursor string, limit int) ([]*core.DocumentChunk, string, error)

	// ReplaceVectors overwrites the vectors of existing chunks in one transaction.
	// Chunks that no longer exist are skipped.
	ReplaceVectors(ctx context.Context, vectors map[string][]float32) (int, error)
}

// ManifestRepository records the last successful ingestion of each source.
type ManifestRepository interface {
	// SaveManifest stores m, replacing any previous manifest for the source.
	SaveManifest(ctx context.Context, m *core.SourceManifest) error

	// LoadManifest returns the manifest for sourceID or ErrNotFound.
	LoadManifest(ctx context.Context, sourceID string) (*core.SourceManifest, error)

	// DeleteManifest removes the manifest. Missing manifests are not an error.
	DeleteManifest(ctx context.Context, sourceID string) error

	// ListManifests returns all manifests ordered by source ID.
	ListManifests(ctx context.Context) ([]*core.SourceManifest, error)
}
