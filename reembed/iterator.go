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

package reembed

import (
	"context"

	"github.com/poiesic/guarded/core"
	"github.com/poiesic/guarded/storage"
)

const (
	// DefaultBatchSize is the default number of chunks to fetch in each batch
	DefaultBatchSize = 100
)

// ChunkIterator pages through every stored chunk.
type ChunkIterator struct {
	scanner   storage.ChunkScanner
	batchSize int
}

// NewChunkIterator creates a new chunk iterator.
// batchSize: number of chunks to fetch in each page (defaults when <= 0)
func NewChunkIterator(scanner storage.ChunkScanner, batchSize int) *ChunkIterator {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	return &ChunkIterator{
		scanner:   scanner,
		batchSize: batchSize,
	}
}

// ForEach calls fn for each page of chunks in key order.
// Iteration stops on first error from fn or when all chunks are processed.
// Context cancellation is checked between pages.
func (it *ChunkIterator) ForEach(ctx context.Context, fn func([]*core.DocumentChunk) error) error {
	cursor := ""
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		chunks, next, err := it.scanner.ScanChunks(ctx, cursor, it.batchSize)
		if err != nil {
			return err
		}
		if len(chunks) > 0 {
			if err := fn(chunks); err != nil {
				return err
			}
		}
		if next == "" {
			return nil
		}
		cursor = next
	}
}
