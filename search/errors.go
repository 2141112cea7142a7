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

package search

import "errors"

var (
	// ErrVectorIndexRequired is returned when a vector index is not provided.
	ErrVectorIndexRequired = errors.New("vector index required")

	// ErrCheckerRequired is returned when an authorization checker is not provided.
	ErrCheckerRequired = errors.New("authorization checker required")

	// ErrAIProviderRequired is returned when an AI provider is not provided.
	ErrAIProviderRequired = errors.New("AI provider required")

	// ErrInvalidLimit is returned when the requested result count is not positive.
	ErrInvalidLimit = errors.New("limit must be positive")

	// ErrEmptyQuery is returned for blank queries.
	ErrEmptyQuery = errors.New("query cannot be empty")

	// ErrInvalidOverfetch is returned for an overfetch factor below 1 or above the maximum.
	ErrInvalidOverfetch = errors.New("invalid overfetch factor")

	// ErrInvalidGrowth is returned for a backfill growth factor below 2.
	ErrInvalidGrowth = errors.New("growth factor must be at least 2")

	// ErrInvalidMaxCandidates is returned when the candidate ceiling is not positive.
	ErrInvalidMaxCandidates = errors.New("max candidates must be positive")

	// ErrInvalidBatchSize is returned when the check batch size is not positive.
	ErrInvalidBatchSize = errors.New("batch size must be positive")
)
