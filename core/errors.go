// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package core

import (
	"errors"
	"fmt"
)

// Upstream failure taxonomy
var (
	// ErrEmbeddingUnavailable indicates the embedding provider failed after retries.
	ErrEmbeddingUnavailable = errors.New("embedding unavailable")

	// ErrVectorIndexUnavailable indicates the vector index could not serve a read or write.
	ErrVectorIndexUnavailable = errors.New("vector index unavailable")

	// ErrAuthzUnavailable indicates an authorization check could not be completed.
	// Callers must treat it as a denial.
	ErrAuthzUnavailable = errors.New("authorization service unavailable")

	// ErrAuthzWrite indicates a visibility tuple could not be written or deleted.
	ErrAuthzWrite = errors.New("authorization tuple write failed")

	// ErrAuthorizationIndeterminate indicates every check in a batch failed.
	ErrAuthorizationIndeterminate = errors.New("authorization indeterminate")

	// ErrTimeout indicates the query-level deadline expired.
	ErrTimeout = errors.New("operation timed out")

	// ErrPartialIngestion indicates some chunks of a document were skipped.
	ErrPartialIngestion = errors.New("partial ingestion")
)

// Domain validation errors
var (
	// ErrInvalidChunk indicates a DocumentChunk failed validation.
	ErrInvalidChunk = errors.New("invalid chunk")

	// ErrInvalidTuple indicates a VisibilityTuple failed validation.
	ErrInvalidTuple = errors.New("invalid visibility tuple")

	// ErrEmptySourceID indicates the source ID is empty.
	ErrEmptySourceID = errors.New("source id cannot be empty")

	// ErrInvalidSourceID indicates the source ID contains a NUL byte.
	ErrInvalidSourceID = errors.New("source id cannot contain NUL bytes")

	// ErrEmptyText indicates the chunk text is empty.
	ErrEmptyText = errors.New("text cannot be empty")

	// ErrEmptySubject indicates a tuple subject is empty.
	ErrEmptySubject = errors.New("subject cannot be empty")

	// ErrInvalidRelation indicates an unknown relation.
	ErrInvalidRelation = errors.New("invalid relation")

	// ErrDimensionMismatch indicates a vector does not match the configured dimension.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")

	// ErrInvalidMetadata indicates a metadata value of a type that cannot be stored.
	ErrInvalidMetadata = errors.New("unsupported metadata value")
)

// SourceError reports a whole-document failure with enough context to retry it.
type SourceError struct {
	Op       string
	SourceID string
	Err      error
}

func (e *SourceError) Error() string {
	return fmt.Sprintf("%s [source=%s]: %v", e.Op, e.SourceID, e.Err)
}

func (e *SourceError) Unwrap() error {
	return e.Err
}

// NewSourceError wraps err with the operation and source it failed on.
func NewSourceError(op, sourceID string, err error) *SourceError {
	return &SourceError{Op: op, SourceID: sourceID, Err: err}
}
