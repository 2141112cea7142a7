package ingestion

import (
	"errors"
	"fmt"
	"maps"

	"github.com/poiesic/guarded/core"
	"github.com/poiesic/guarded/partition"
)

// ReplaceMode controls how existing chunks of a source are replaced.
type ReplaceMode int

const (
	// ReplaceDeferred writes the new chunks first and then deletes chunks of
	// earlier epochs. A failed run leaves the previous version searchable.
	ReplaceDeferred ReplaceMode = iota

	// ReplaceUpfront deletes every chunk of the source before writing. A
	// failed run leaves the source empty until it is ingested again.
	ReplaceUpfront
)

func (m ReplaceMode) String() string {
	if m == ReplaceUpfront {
		return "upfront"
	}
	return "deferred"
}

// Stage names the step at which a chunk was skipped.
type Stage string

const (
	StagePartition Stage = "partition"
	StageEmbed     Stage = "embed"
)

// IngestOptions holds optional parameters for ingestion.
type IngestOptions struct {
	Partitioner partition.Partitioner // Overrides the pipeline's partitioner
	Replace     ReplaceMode
	Metadata    map[string]any // Copied onto every chunk; element metadata wins on conflict. See core.ValidateMetadata
}

// SkippedChunk records a segment that was not indexed.
type SkippedChunk struct {
	Ordinal int
	Stage   Stage
	Err     error
}

// Result summarizes one ingestion run.
type Result struct {
	SourceID   string
	Epoch      int64
	ChunkCount int
	Skipped    []SkippedChunk
	Deleted    int    // Chunks of earlier versions removed
	Generation uint64 // Index generation after the run; see storage.AwaitGeneration
}

// Err returns an error wrapping core.ErrPartialIngestion if any chunk was
// skipped, or nil.
func (r *Result) Err() error {
	if r == nil || len(r.Skipped) == 0 {
		return nil
	}
	errs := make([]error, len(r.Skipped))
	for i, s := range r.Skipped {
		errs[i] = fmt.Errorf("chunk %d (%s): %w", s.Ordinal, s.Stage, s.Err)
	}
	return fmt.Errorf("%w: source %s: %d of %d chunks skipped: %w",
		core.ErrPartialIngestion, r.SourceID, len(r.Skipped), len(r.Skipped)+r.ChunkCount, errors.Join(errs...))
}

func chunkMetadata(base, element map[string]any) map[string]any {
	if len(base) == 0 && len(element) == 0 {
		return nil
	}
	out := make(map[string]any, len(base)+len(element))
	maps.Copy(out, base)
	maps.Copy(out, element)
	return out
}
