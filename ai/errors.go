package ai

import "errors"

// ErrInvalidMaxAttempts is returned when a Backoff allows no attempts.
var ErrInvalidMaxAttempts = errors.New("maxAttempts must be greater than 0")

// ErrEmptyEmbedding is returned when a provider answers with no vector.
var ErrEmptyEmbedding = errors.New("provider returned an empty embedding")
