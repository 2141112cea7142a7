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

// Package search provides authorization-aware semantic search.
//
// The Searcher embeds a query, over-fetches nearest-neighbour candidates from
// the vector index and checks each candidate's source document against the
// authorization service before it can appear in a result:
//   - Candidates are admitted strictly in similarity order
//   - Checks for a batch run concurrently on a worker pool
//   - Decisions are memoized per source for the duration of one query
//   - A failed check counts as a denial
//
// When too few candidates are authorized the index is queried again with a
// geometrically larger window, bounded by a maximum factor and an absolute
// candidate ceiling. A short result is returned as-is rather than as an error.
//
// Results never say how many candidates were withheld. Operators can observe
// that through a SearchMonitor.
package search
