package badger

import (
	"bytes"
	"cmp"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/guarded/ai"
	"github.com/poiesic/guarded/core"
	"github.com/poiesic/guarded/storage"
)

// deleteBatchSize bounds the keys removed per transaction to stay below badger's txn size limit.
const deleteBatchSize = 1000

// ChunkIndex implements storage.VectorIndex for BadgerDB with an exact
// brute-force cosine scan.
type ChunkIndex struct {
	backend     *Backend
	ownsBackend bool
	dim         atomic.Int64
	logger      *slog.Logger
}

var (
	_ storage.VectorIndex  = (*ChunkIndex)(nil)
	_ storage.ChunkScanner = (*ChunkIndex)(nil)
)

// IndexOption configures a ChunkIndex.
type IndexOption func(*ChunkIndex) error

// WithDimension fixes the vector dimension. Zero learns it from the first write.
func WithDimension(dim int) IndexOption {
	return func(c *ChunkIndex) error {
		if dim < 0 {
			return ErrInvalidDimension
		}
		c.dim.Store(int64(dim))
		return nil
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) IndexOption {
	return func(c *ChunkIndex) error {
		c.logger = logger.With("component", "chunk-index")
		return nil
	}
}

// NewChunkIndex creates an index on a shared backend. Close does not close the backend.
func NewChunkIndex(backend *Backend, opts ...IndexOption) (*ChunkIndex, error) {
	if backend == nil {
		return nil, ErrBackendRequired
	}
	c := &ChunkIndex{
		backend: backend,
		logger:  slog.Default().With("component", "chunk-index"),
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	if err := c.loadDimension(); err != nil {
		return nil, err
	}
	return c, nil
}

// NewIndex opens a BadgerDB at path and creates an index that owns it.
func NewIndex(path string, opts ...IndexOption) (*ChunkIndex, error) {
	backend, err := OpenBackend(path, false)
	if err != nil {
		return nil, err
	}
	c, err := NewChunkIndex(backend, opts...)
	if err != nil {
		backend.Close()
		return nil, err
	}
	c.ownsBackend = true
	return c, nil
}

// Dimension returns the enforced vector length, or zero if none is known yet.
func (c *ChunkIndex) Dimension() int {
	return int(c.dim.Load())
}

// loadDimension reconciles the configured dimension with the stored one.
func (c *ChunkIndex) loadDimension() error {
	var stored int64
	err := c.backend.WithTx(func(tx *badger.Txn) error {
		item, err := tx.Get([]byte(dimensionKey))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			if len(val) != 8 {
				return storage.ErrTruncatedData
			}
			stored = int64(binary.BigEndian.Uint64(val))
			return nil
		})
	}, false)
	if err != nil {
		return unavailable(err)
	}

	configured := c.dim.Load()
	switch {
	case stored == 0:
		return nil
	case configured == 0:
		c.dim.Store(stored)
	case configured != stored:
		return fmt.Errorf("%w: index holds %d-dimensional vectors, configured %d", core.ErrDimensionMismatch, stored, configured)
	}
	return nil
}

// UpsertChunks validates then writes all chunks in one transaction.
func (c *ChunkIndex) UpsertChunks(ctx context.Context, chunks ...*core.DocumentChunk) error {
	if len(chunks) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	dim := c.Dimension()
	if dim == 0 && chunks[0] != nil {
		dim = len(chunks[0].Vector)
	}
	values := make([][]byte, len(chunks))
	for i, chunk := range chunks {
		if err := core.ValidateChunk(chunk, dim); err != nil {
			return err
		}
		if chunk.InsertedAt.IsZero() {
			chunk.InsertedAt = time.Now().UTC()
		}
		value, err := storage.MarshalChunk(chunk)
		if err != nil {
			return err
		}
		values[i] = value
	}

	_, err := c.backend.Update(func(tx *badger.Txn) error {
		if c.Dimension() == 0 {
			buf := make([]byte, 8)
			binary.BigEndian.PutUint64(buf, uint64(dim))
			if err := tx.Set([]byte(dimensionKey), buf); err != nil {
				return err
			}
		}
		for i, chunk := range chunks {
			if err := tx.Set(makeChunkKey(chunk.SourceID, chunk.ID), values[i]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return unavailable(err)
	}
	c.dim.CompareAndSwap(0, int64(dim))

	c.logger.Debug("upserted chunks", "count", len(chunks), "source", chunks[0].SourceID)
	return nil
}

// DeleteAllForSource removes every chunk of sourceID.
func (c *ChunkIndex) DeleteAllForSource(ctx context.Context, sourceID string) (int, error) {
	return c.deleteWhere(ctx, sourceID, func(*core.DocumentChunk) bool { return true })
}

// DeleteStaleForSource removes chunks of sourceID written by an epoch other than keepEpoch.
func (c *ChunkIndex) DeleteStaleForSource(ctx context.Context, sourceID string, keepEpoch int64) (int, error) {
	return c.deleteWhere(ctx, sourceID, func(chunk *core.DocumentChunk) bool {
		return chunk.Epoch != keepEpoch
	})
}

func (c *ChunkIndex) deleteWhere(ctx context.Context, sourceID string, match func(*core.DocumentChunk) bool) (int, error) {
	if err := core.ValidateSourceID(sourceID); err != nil {
		return 0, err
	}

	chunks, keys, err := c.readSource(ctx, sourceID)
	if err != nil {
		return 0, err
	}

	var doomed [][]byte
	for i, chunk := range chunks {
		if match(chunk) {
			doomed = append(doomed, keys[i])
		}
	}

	for start := 0; start < len(doomed); start += deleteBatchSize {
		if err := ctx.Err(); err != nil {
			return start, err
		}
		batch := doomed[start:min(start+deleteBatchSize, len(doomed))]
		_, err := c.backend.Update(func(tx *badger.Txn) error {
			for _, key := range batch {
				if err := tx.Delete(key); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return start, unavailable(err)
		}
	}

	if len(doomed) > 0 {
		c.logger.Debug("deleted chunks", "source", sourceID, "count", len(doomed))
	}
	return len(doomed), nil
}

// Query scans every vector and returns the k most similar chunks.
func (c *ChunkIndex) Query(ctx context.Context, vector []float32, k int) ([]*core.ScoredChunk, error) {
	if k <= 0 {
		return nil, fmt.Errorf("%w: k must be positive", storage.ErrInvalidQuery)
	}
	if len(vector) == 0 {
		return nil, fmt.Errorf("%w: empty query vector", storage.ErrInvalidQuery)
	}
	if dim := c.Dimension(); dim > 0 && len(vector) != dim {
		return nil, fmt.Errorf("%w: query has %d dimensions, index %d", core.ErrDimensionMismatch, len(vector), dim)
	}

	type hit struct {
		key   []byte
		id    string
		score float32
	}
	var hits []hit
	var results []*core.ScoredChunk

	err := c.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(chunkPrefix)
		iter := tx.NewIterator(opts)
		defer iter.Close()

		scanned := 0
		for iter.Rewind(); iter.Valid(); iter.Next() {
			scanned++
			if scanned%256 == 0 {
				if err := ctx.Err(); err != nil {
					return err
				}
			}

			item := iter.Item()
			var score float32
			err := item.Value(func(val []byte) error {
				vec, err := storage.UnmarshalChunkVector(val)
				if err != nil {
					return err
				}
				score = ai.CosineSimilarity(vector, vec)
				return nil
			})
			if err != nil {
				return err
			}
			key := item.KeyCopy(nil)
			hits = append(hits, hit{key: key, id: chunkIDFromKey(key), score: score})
		}

		slices.SortFunc(hits, func(a, b hit) int {
			if d := cmp.Compare(b.score, a.score); d != 0 {
				return d
			}
			return cmp.Compare(a.id, b.id)
		})
		if len(hits) > k {
			hits = hits[:k]
		}

		results = make([]*core.ScoredChunk, 0, len(hits))
		for _, h := range hits {
			chunk, err := readChunk(tx, h.key)
			if err != nil {
				return err
			}
			results = append(results, &core.ScoredChunk{Chunk: chunk, Score: h.score})
		}
		return nil
	}, false)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
			return nil, err
		}
		return nil, unavailable(err)
	}
	return results, nil
}

// ChunksForSource returns the chunks of sourceID ordered by Ordinal.
func (c *ChunkIndex) ChunksForSource(ctx context.Context, sourceID string) ([]*core.DocumentChunk, error) {
	if err := core.ValidateSourceID(sourceID); err != nil {
		return nil, err
	}
	chunks, _, err := c.readSource(ctx, sourceID)
	if err != nil {
		return nil, err
	}
	slices.SortFunc(chunks, func(a, b *core.DocumentChunk) int {
		if d := cmp.Compare(a.Ordinal, b.Ordinal); d != 0 {
			return d
		}
		return cmp.Compare(a.Epoch, b.Epoch)
	})
	return chunks, nil
}

// Count returns the number of stored chunks.
func (c *ChunkIndex) Count(ctx context.Context) (int, error) {
	count := 0
	err := c.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(chunkPrefix)
		opts.PrefetchValues = false
		iter := tx.NewIterator(opts)
		defer iter.Close()
		for iter.Rewind(); iter.Valid(); iter.Next() {
			count++
		}
		return ctx.Err()
	}, false)
	if err != nil {
		return 0, unavailable(err)
	}
	return count, nil
}

// HealthCheck verifies the database is open and readable.
func (c *ChunkIndex) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := c.backend.Generation(); err != nil {
		return unavailable(err)
	}
	return nil
}

// Generation returns the write generation of the underlying backend.
func (c *ChunkIndex) Generation(ctx context.Context) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	gen, err := c.backend.Generation()
	if err != nil {
		return 0, unavailable(err)
	}
	return gen, nil
}

// ScanChunks pages through all chunks in key order. The cursor is the last key returned.
func (c *ChunkIndex) ScanChunks(ctx context.Context, cursor string, limit int) ([]*core.DocumentChunk, string, error) {
	if limit <= 0 {
		return nil, "", fmt.Errorf("%w: limit must be positive", storage.ErrInvalidQuery)
	}

	var (
		chunks []*core.DocumentChunk
		next   string
	)
	err := c.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(chunkPrefix)
		iter := tx.NewIterator(opts)
		defer iter.Close()

		start := []byte(chunkPrefix)
		if cursor != "" {
			start = []byte(cursor)
		}
		var lastKey []byte
		more := false
		for iter.Seek(start); iter.Valid(); iter.Next() {
			item := iter.Item()
			if cursor != "" && bytes.Equal(item.Key(), []byte(cursor)) {
				continue
			}
			if len(chunks) == limit {
				more = true
				break
			}
			chunk, err := decodeItem(item)
			if err != nil {
				return err
			}
			chunks = append(chunks, chunk)
			lastKey = item.KeyCopy(nil)
		}
		if more {
			next = string(lastKey)
		}
		return ctx.Err()
	}, false)
	if err != nil {
		return nil, "", unavailable(err)
	}
	return chunks, next, nil
}

// ReplaceVectors overwrites the vectors of existing chunks, keyed by chunk ID.
// All vectors must share one dimension, which becomes the index dimension.
func (c *ChunkIndex) ReplaceVectors(ctx context.Context, vectors map[string][]float32) (int, error) {
	if len(vectors) == 0 {
		return 0, nil
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	dim := -1
	for _, v := range vectors {
		if dim == -1 {
			dim = len(v)
		}
		if len(v) == 0 || len(v) != dim {
			return 0, fmt.Errorf("%w: replacement vectors must share one non-zero dimension", core.ErrDimensionMismatch)
		}
	}

	replaced := 0
	_, err := c.backend.Update(func(tx *badger.Txn) error {
		type update struct {
			key   []byte
			chunk *core.DocumentChunk
		}
		var updates []update
		err := func() error {
			opts := badger.DefaultIteratorOptions
			opts.Prefix = []byte(chunkPrefix)
			iter := tx.NewIterator(opts)
			defer iter.Close()

			for iter.Rewind(); iter.Valid(); iter.Next() {
				item := iter.Item()
				v, ok := vectors[chunkIDFromKey(item.Key())]
				if !ok {
					continue
				}
				chunk, err := decodeItem(item)
				if err != nil {
					return err
				}
				chunk.Vector = v
				updates = append(updates, update{key: item.KeyCopy(nil), chunk: chunk})
			}
			return nil
		}()
		if err != nil {
			return err
		}

		for _, u := range updates {
			value, err := storage.MarshalChunk(u.chunk)
			if err != nil {
				return err
			}
			if err := tx.Set(u.key, value); err != nil {
				return err
			}
		}
		buf := make([]byte, 8)
		binary.BigEndian.PutUint64(buf, uint64(dim))
		if err := tx.Set([]byte(dimensionKey), buf); err != nil {
			return err
		}
		replaced = len(updates)
		return nil
	})
	if err != nil {
		return 0, unavailable(err)
	}
	c.dim.Store(int64(dim))
	return replaced, nil
}

// Close releases the backend if the index owns it.
func (c *ChunkIndex) Close() error {
	if c.ownsBackend {
		return c.backend.Close()
	}
	return nil
}

func (c *ChunkIndex) readSource(ctx context.Context, sourceID string) ([]*core.DocumentChunk, [][]byte, error) {
	var (
		chunks []*core.DocumentChunk
		keys   [][]byte
	)
	err := c.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = makeSourcePrefix(sourceID)
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			chunk, err := decodeItem(iter.Item())
			if err != nil {
				return err
			}
			// Guard against SourceKey collisions between distinct sources
			if chunk.SourceID != sourceID {
				continue
			}
			chunks = append(chunks, chunk)
			keys = append(keys, iter.Item().KeyCopy(nil))
		}
		return ctx.Err()
	}, false)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
			return nil, nil, err
		}
		return nil, nil, unavailable(err)
	}
	return chunks, keys, nil
}

func readChunk(tx *badger.Txn, key []byte) (*core.DocumentChunk, error) {
	item, err := tx.Get(key)
	if err != nil {
		return nil, err
	}
	return decodeItem(item)
}

func decodeItem(item *badger.Item) (*core.DocumentChunk, error) {
	var chunk *core.DocumentChunk
	err := item.Value(func(val []byte) error {
		var err error
		chunk, err = storage.UnmarshalChunk(val)
		return err
	})
	return chunk, err
}

// chunkIDFromKey extracts the chunk ID from chunk:<16 hex>:<id>.
func chunkIDFromKey(key []byte) string {
	offset := len(chunkPrefix) + 17
	if len(key) <= offset {
		return ""
	}
	return string(key[offset:])
}

func unavailable(err error) error {
	if errors.Is(err, core.ErrVectorIndexUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %w", core.ErrVectorIndexUnavailable, err)
}
