package reembed

import "errors"

var (
	// ErrStoreRequired is returned when no chunk store is provided.
	ErrStoreRequired = errors.New("chunk store required")

	// ErrEmbedderRequired is returned when no embedder is provided.
	ErrEmbedderRequired = errors.New("embedder required")

	// ErrEmbeddingCountMismatch is returned when the provider returns a different number of vectors than texts.
	ErrEmbeddingCountMismatch = errors.New("embedding count mismatch")
)
