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
	"fmt"
	"strings"
)

// ValidateSourceID checks that a source ID is usable as an index and tuple key.
func ValidateSourceID(sourceID string) error {
	if sourceID == "" {
		return ErrEmptySourceID
	}
	if strings.ContainsRune(sourceID, 0) {
		return ErrInvalidSourceID
	}
	return nil
}

// ValidateChunk validates a DocumentChunk according to domain rules.
//
// Validation rules:
//   - ID and SourceID must not be empty
//   - Text must not be empty
//   - Vector must be present and, when dim > 0, have exactly dim elements
//   - Metadata values must pass ValidateMetadata
func ValidateChunk(chunk *DocumentChunk, dim int) error {
	if chunk == nil {
		return fmt.Errorf("%w: chunk is nil", ErrInvalidChunk)
	}

	if chunk.ID == "" {
		return fmt.Errorf("%w: id is empty", ErrInvalidChunk)
	}

	if err := ValidateSourceID(chunk.SourceID); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidChunk, err)
	}

	if strings.TrimSpace(chunk.Text) == "" {
		return fmt.Errorf("%w: %w", ErrInvalidChunk, ErrEmptyText)
	}

	if len(chunk.Vector) == 0 {
		return fmt.Errorf("%w: vector is empty", ErrInvalidChunk)
	}

	if dim > 0 && len(chunk.Vector) != dim {
		return fmt.Errorf("%w: %w: expected %d, got %d", ErrInvalidChunk, ErrDimensionMismatch, dim, len(chunk.Vector))
	}

	if err := ValidateMetadata(chunk.Metadata); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidChunk, err)
	}

	return nil
}

// ValidateMetadata checks that every value is a string, bool, int, int64 or
// float64. These are the types the index stores and returns unchanged.
func ValidateMetadata(meta map[string]any) error {
	for k, v := range meta {
		switch v.(type) {
		case string, bool, int, int64, float64:
		default:
			return fmt.Errorf("%w: %q is %T", ErrInvalidMetadata, k, v)
		}
	}
	return nil
}

// ValidateRelation checks that r is a known relation.
func ValidateRelation(r Relation) error {
	switch r {
	case RelationViewer, RelationOwner:
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrInvalidRelation, string(r))
	}
}

// ValidateTuple validates a VisibilityTuple.
func ValidateTuple(t VisibilityTuple) error {
	if t.Subject == "" {
		return fmt.Errorf("%w: %w", ErrInvalidTuple, ErrEmptySubject)
	}
	if strings.ContainsRune(t.Subject, 0) {
		return fmt.Errorf("%w: subject contains NUL byte", ErrInvalidTuple)
	}
	if err := ValidateRelation(t.Relation); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidTuple, err)
	}
	if err := ValidateSourceID(t.Object); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidTuple, err)
	}
	return nil
}
