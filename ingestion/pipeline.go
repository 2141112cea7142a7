package ingestion

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"runtime"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/guarded/ai"
	"github.com/poiesic/guarded/authz"
	"github.com/poiesic/guarded/core"
	"github.com/poiesic/guarded/partition"
	"github.com/poiesic/guarded/storage"
)

// upsertBatchSize bounds the chunks written per index transaction.
const upsertBatchSize = 256

// Pipeline orchestrates partitioning, embedding, indexing and tuple
// registration for source documents.
type Pipeline struct {
	index       storage.VectorIndex
	manifests   storage.ManifestRepository
	tuples      authz.TupleWriter
	provider    ai.AIProvider
	partitioner partition.Partitioner
	backoff     ai.Backoff
	embedPool   *ants.Pool
	embedProc   *embeddingProcessor
	locks       *keyedMutex
	logger      *slog.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline) error

// WithPoolSize sets the worker pool size for concurrent embedding.
// Default is runtime.NumCPU() / 2, with a minimum of 1.
func WithPoolSize(size int) Option {
	return func(p *Pipeline) error {
		if size < 1 {
			size = 1
		}

		// Release old pool
		if p.embedPool != nil {
			p.embedPool.Release()
		}

		pool, err := ants.NewPool(size)
		if err != nil {
			return err
		}
		p.embedPool = pool
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) error {
		if logger == nil {
			logger = slog.Default()
		}
		p.logger = logger.With("component", "ingestion")
		return nil
	}
}

// WithPartitioner sets the default partitioner. Default is partition.NewText().
func WithPartitioner(partitioner partition.Partitioner) Option {
	return func(p *Pipeline) error {
		if partitioner != nil {
			p.partitioner = partitioner
		}
		return nil
	}
}

// WithRetry sets the per-chunk embedding backoff. It only applies when the
// provider's embedder does not already retry.
func WithRetry(backoff ai.Backoff) Option {
	return func(p *Pipeline) error {
		if backoff.MaxAttempts < 1 {
			return ai.ErrInvalidMaxAttempts
		}
		p.backoff = backoff
		return nil
	}
}

// NewPipeline creates a new ingestion pipeline.
func NewPipeline(
	index storage.VectorIndex,
	manifests storage.ManifestRepository,
	tuples authz.TupleWriter,
	provider ai.AIProvider,
	opts ...Option,
) (*Pipeline, error) {
	if index == nil {
		return nil, ErrVectorIndexRequired
	}
	if manifests == nil {
		return nil, ErrManifestRepositoryRequired
	}
	if tuples == nil {
		return nil, ErrTupleWriterRequired
	}
	if provider == nil {
		return nil, ErrAIProviderRequired
	}

	// Default pool size
	poolSize := runtime.NumCPU() / 2
	if poolSize < 1 {
		poolSize = 1
	}
	embedPool, err := ants.NewPool(poolSize)
	if err != nil {
		return nil, err
	}

	p := &Pipeline{
		index:       index,
		manifests:   manifests,
		tuples:      tuples,
		provider:    provider,
		partitioner: partition.NewText(),
		backoff:     ai.DefaultBackoff(),
		embedPool:   embedPool,
		locks:       newKeyedMutex(),
		logger:      slog.Default().With("component", "ingestion"),
	}

	// Apply options (may override defaults)
	for _, opt := range opts {
		if optErr := opt(p); optErr != nil {
			p.Release()
			return nil, optErr
		}
	}

	// Create the processor after options are applied so it gets the final config
	embedProc, err := newEmbeddingProcessor(ai.Resilient(provider.Embedder(), p.backoff), p.embedPool, p.logger)
	if err != nil {
		p.Release()
		return nil, err
	}
	p.embedProc = embedProc

	return p, nil
}

// Ingest partitions, embeds and indexes the document read from r, then grants
// every owner the viewer relation on sourceID.
//
// Segments that cannot be partitioned or embedded are skipped and listed in
// the result; call Result.Err to turn them into an error. Failures that stop
// the document are returned as *core.SourceError. When no chunk could be
// written no tuples are registered and the error wraps core.ErrPartialIngestion.
func (p *Pipeline) Ingest(ctx context.Context, r io.Reader, sourceID string, owners []string, opts *IngestOptions) (*Result, error) {
	if err := core.ValidateSourceID(sourceID); err != nil {
		return nil, err
	}
	if len(owners) == 0 {
		return nil, ErrOwnersRequired
	}
	tuples := make([]core.VisibilityTuple, len(owners))
	for i, owner := range owners {
		tuples[i] = core.ViewerTuple(owner, sourceID)
		if err := core.ValidateTuple(tuples[i]); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrOwnersRequired, err)
		}
	}
	if opts == nil {
		opts = &IngestOptions{}
	}
	if err := core.ValidateMetadata(opts.Metadata); err != nil {
		return nil, err
	}
	partitioner := p.partitioner
	if opts.Partitioner != nil {
		partitioner = opts.Partitioner
	}

	unlock := p.locks.lock(sourceID)
	defer unlock()

	logger := p.logger.With("source", sourceID, "replace", opts.Replace.String())
	start := time.Now()

	previous, err := p.manifests.LoadManifest(ctx, sourceID)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		logger.Warn("could not load previous manifest", "err", err)
	}
	epoch := time.Now().UnixNano()
	if previous != nil && epoch <= previous.Epoch {
		epoch = previous.Epoch + 1
	}
	result := &Result{SourceID: sourceID, Epoch: epoch}

	if opts.Replace == ReplaceUpfront {
		deleted, err := p.index.DeleteAllForSource(ctx, sourceID)
		if err != nil {
			return result, core.NewSourceError("delete", sourceID, err)
		}
		result.Deleted = deleted
	}

	hasher := core.NewContentHasher()
	elements := partitioner.Partition(ctx, io.TeeReader(r, hasher))
	processed, err := p.embedProc.process(ctx, sourceID, epoch, opts.Metadata, elements)
	if err != nil {
		return result, core.NewSourceError("partition", sourceID, err)
	}
	result.Skipped = processed.skipped

	if len(processed.chunks) == 0 {
		logger.Warn("no chunks produced, leaving visibility unchanged", "skipped", len(processed.skipped))
		return result, core.NewSourceError("ingest", sourceID,
			fmt.Errorf("%w: no chunk could be indexed", core.ErrPartialIngestion))
	}

	for i := 0; i < len(processed.chunks); i += upsertBatchSize {
		batch := processed.chunks[i:min(i+upsertBatchSize, len(processed.chunks))]
		if err := p.index.UpsertChunks(ctx, batch...); err != nil {
			return result, core.NewSourceError("upsert", sourceID, err)
		}
		result.ChunkCount += len(batch)
	}

	if opts.Replace == ReplaceDeferred {
		deleted, err := p.index.DeleteStaleForSource(ctx, sourceID, epoch)
		if err != nil {
			return result, core.NewSourceError("delete-stale", sourceID, err)
		}
		result.Deleted = deleted
	}

	if err := p.tuples.WriteTuples(ctx, tuples...); err != nil {
		if !errors.Is(err, core.ErrAuthzWrite) {
			err = fmt.Errorf("%w: %w", core.ErrAuthzWrite, err)
		}
		logger.Error("failed to register owners", "owners", len(owners), "err", err)
		return result, core.NewSourceError("authorize", sourceID, err)
	}

	if gen, err := p.index.Generation(ctx); err != nil {
		logger.Warn("could not read index generation", "err", err)
	} else {
		result.Generation = gen
	}

	recorded := owners
	if previous != nil {
		recorded = mergeSubjects(previous.Owners, owners)
	}
	manifest := &core.SourceManifest{
		SourceID:    sourceID,
		ChunkCount:  result.ChunkCount,
		ContentHash: hex.EncodeToString(hasher.Sum(nil)),
		Owners:      recorded,
		Epoch:       epoch,
	}
	if err := p.manifests.SaveManifest(ctx, manifest); err != nil {
		return result, core.NewSourceError("manifest", sourceID, err)
	}

	attrs := []any{
		"chunks", result.ChunkCount,
		"skipped", len(result.Skipped),
		"deleted", result.Deleted,
		"generation", result.Generation,
		"duration", time.Since(start),
	}
	if previous != nil {
		attrs = append(attrs, "previous_chunks", previous.ChunkCount, "content_changed", previous.ContentHash != manifest.ContentHash)
	}
	logger.Info("ingested source", attrs...)
	return result, nil
}

// Release releases resources including the worker pool.
// The pipeline should not be used after calling Release.
func (p *Pipeline) Release() {
	if p.embedPool != nil {
		p.embedPool.Release()
	}
}
