package ingestion

import "errors"

var (
	// ErrVectorIndexRequired is returned when a vector index is not provided.
	ErrVectorIndexRequired = errors.New("vector index required")

	// ErrManifestRepositoryRequired is returned when a manifest repository is not provided.
	ErrManifestRepositoryRequired = errors.New("manifest repository required")

	// ErrTupleWriterRequired is returned when a tuple writer is not provided.
	ErrTupleWriterRequired = errors.New("tuple writer required")

	// ErrAIProviderRequired is returned when an AI provider is not provided.
	ErrAIProviderRequired = errors.New("AI provider required")

	// ErrOwnersRequired is returned when a document is ingested without owners.
	ErrOwnersRequired = errors.New("at least one owner required")

	// ErrSubjectsRequired is returned when Grant or Revoke is called without subjects.
	ErrSubjectsRequired = errors.New("at least one subject required")

	// ErrPipelineReleased is returned when work is submitted after Release.
	ErrPipelineReleased = errors.New("pipeline released")
)
