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

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/guarded/core"
	"github.com/poiesic/guarded/storage"
)

// ManifestRepository implements storage.ManifestRepository for BadgerDB.
type ManifestRepository struct {
	backend *Backend
}

var _ storage.ManifestRepository = (*ManifestRepository)(nil)

// NewManifestRepository creates a new ManifestRepository.
func NewManifestRepository(backend *Backend) (*ManifestRepository, error) {
	if backend == nil {
		return nil, ErrBackendRequired
	}
	return &ManifestRepository{
		backend: backend,
	}, nil
}

// SaveManifest persists the manifest for a source.
func (r *ManifestRepository) SaveManifest(ctx context.Context, m *core.SourceManifest) error {
	if err := core.ValidateSourceID(m.SourceID); err != nil {
		return err
	}
	if m.IngestedAt.IsZero() {
		m.IngestedAt = time.Now().UTC()
	}
	value := storage.MarshalManifest(m)
	_, err := r.backend.Update(func(tx *badger.Txn) error {
		return tx.Set(makeManifestKey(m.SourceID), value)
	})
	if err != nil {
		return fmt.Errorf("save manifest %s: %w", m.SourceID, err)
	}
	return nil
}

// LoadManifest retrieves the manifest for a source.
// Returns storage.ErrNotFound if no manifest exists.
func (r *ManifestRepository) LoadManifest(ctx context.Context, sourceID string) (*core.SourceManifest, error) {
	var manifest *core.SourceManifest
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		item, err := tx.Get(makeManifestKey(sourceID))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return storage.ErrNotFound
			}
			return err
		}

		return item.Value(func(val []byte) error {
			var unmarshalErr error
			manifest, unmarshalErr = storage.UnmarshalManifest(val)
			return unmarshalErr
		})
	}, false)

	return manifest, err
}

// DeleteManifest removes the manifest for a source.
func (r *ManifestRepository) DeleteManifest(ctx context.Context, sourceID string) error {
	_, err := r.backend.Update(func(tx *badger.Txn) error {
		return tx.Delete(makeManifestKey(sourceID))
	})
	return err
}

// ListManifests returns every manifest in source ID order.
func (r *ManifestRepository) ListManifests(ctx context.Context) ([]*core.SourceManifest, error) {
	var manifests []*core.SourceManifest
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(manifestPrefix)
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			err := iter.Item().Value(func(val []byte) error {
				m, err := storage.UnmarshalManifest(val)
				if err != nil {
					return err
				}
				manifests = append(manifests, m)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return ctx.Err()
	}, false)
	return manifests, err
}
