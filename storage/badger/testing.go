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

package badger

// MemoryStores bundles in-memory repositories sharing one backend, for tests.
type MemoryStores struct {
	Backend   *Backend
	Index     *ChunkIndex
	Manifests *ManifestRepository
	Tuples    *TupleRepository
}

// Close releases the shared backend.
func (m *MemoryStores) Close() error {
	return m.Backend.Close()
}

// NewMemoryStores creates in-memory repositories for testing.
// Caller must Close the result when done.
func NewMemoryStores(opts ...IndexOption) (*MemoryStores, error) {
	backend, err := OpenBackend("", true)
	if err != nil {
		return nil, err
	}

	index, err := NewChunkIndex(backend, opts...)
	if err != nil {
		backend.Close()
		return nil, err
	}
	manifests, err := NewManifestRepository(backend)
	if err != nil {
		backend.Close()
		return nil, err
	}
	tuples, err := NewTupleRepository(backend)
	if err != nil {
		backend.Close()
		return nil, err
	}

	return &MemoryStores{
		Backend:   backend,
		Index:     index,
		Manifests: manifests,
		Tuples:    tuples,
	}, nil
}

// NewMemoryIndex creates an in-memory index that owns its backend.
func NewMemoryIndex(opts ...IndexOption) (*ChunkIndex, error) {
	backend, err := OpenBackend("", true)
	if err != nil {
		return nil, err
	}
	index, err := NewChunkIndex(backend, opts...)
	if err != nil {
		backend.Close()
		return nil, err
	}
	index.ownsBackend = true
	return index, nil
}
