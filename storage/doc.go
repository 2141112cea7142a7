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

// Package storage defines the persistence contracts for guarded.
//
// VectorIndex holds embedded document chunks and answers ordered
// nearest-neighbour queries. ManifestRepository records the last successful
// ingestion of each source. ChunkScanner supports bulk maintenance such as
// re-embedding with a new model.
//
// The badger sub-package implements all three on an embedded BadgerDB
// instance, and additionally provides an embedded authorization tuple store.
//
//	index, err := badger.NewIndex("/path/to/db")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer index.Close()
//
// Tests use in-memory storage:
//
//	index, err := badger.NewMemoryIndex()
//
// # Readiness
//
// Writes advance a generation counter. Callers that must observe their own
// writes (for example a search directly after ingestion) wait with
// AwaitGeneration instead of sleeping:
//
//	res, _ := pipeline.Ingest(ctx, r, "demo.pdf", owners, nil)
//	err := storage.AwaitGeneration(ctx, index, res.Generation, 50*time.Millisecond)
//
// All implementations must be thread-safe. Every method accepts a
// context.Context for cancellation.
package storage
