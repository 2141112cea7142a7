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

// Package guarded wires the vector index, the authorization service and the
// embedding provider into ingestion pipelines and secure searchers.
package guarded

import (
	"context"
	"errors"
	"log/slog"

	"github.com/poiesic/guarded/ai"
	"github.com/poiesic/guarded/ai/openai"
	"github.com/poiesic/guarded/authz"
	"github.com/poiesic/guarded/authz/openfga"
	"github.com/poiesic/guarded/ingestion"
	"github.com/poiesic/guarded/reembed"
	"github.com/poiesic/guarded/search"
	"github.com/poiesic/guarded/storage"
	"github.com/poiesic/guarded/storage/badger"
)

// Database owns the badger store and the clients that ingestion and search
// share. Create one with NewDatabase and Close it when done.
type Database struct {
	backend     *badger.Backend
	index       *badger.ChunkIndex
	manifests   *badger.ManifestRepository
	authzClient authz.Client
	provider    ai.AIProvider
	ownsAuthz   bool
	ownsAI      bool
	logger      *slog.Logger
}

// DatabaseOption configures a Database.
type DatabaseOption func(*databaseOptions)

type databaseOptions struct {
	aiConfig    *ai.Config
	authzConfig *authz.Config
	provider    ai.AIProvider
	authzClient authz.Client
	dimension   int
	logger      *slog.Logger
}

// WithAIConfig sets the embedding provider configuration.
func WithAIConfig(cfg *ai.Config) DatabaseOption {
	return func(o *databaseOptions) {
		if cfg != nil {
			o.aiConfig = cfg
		}
	}
}

// WithAuthzConfig sets the remote authorization service configuration.
// Without an API URL the embedded tuple store is used.
func WithAuthzConfig(cfg *authz.Config) DatabaseOption {
	return func(o *databaseOptions) { o.authzConfig = cfg }
}

// WithProvider injects an embedding provider. The Database does not close it.
func WithProvider(provider ai.AIProvider) DatabaseOption {
	return func(o *databaseOptions) { o.provider = provider }
}

// WithAuthzClient injects an authorization client. The Database does not close it.
func WithAuthzClient(client authz.Client) DatabaseOption {
	return func(o *databaseOptions) { o.authzClient = client }
}

// WithDimension pins the vector dimension of the index.
func WithDimension(dim int) DatabaseOption {
	return func(o *databaseOptions) { o.dimension = dim }
}

// WithLogger sets the logger handed to the stores and clients.
func WithLogger(logger *slog.Logger) DatabaseOption {
	return func(o *databaseOptions) { o.logger = logger }
}

// NewDatabase opens or creates the store at filePath. Unless clients are
// injected it connects to the configured authorization service, or the
// embedded tuple store when none is set, and builds the embedding provider.
func NewDatabase(filePath string, opts ...DatabaseOption) (*Database, error) {
	options := &databaseOptions{
		aiConfig: ai.DefaultConfig(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(options)
	}

	backend, err := badger.OpenBackend(filePath, false)
	if err != nil {
		return nil, err
	}

	db := &Database{backend: backend, logger: options.logger}

	indexOpts := []badger.IndexOption{badger.WithLogger(options.logger)}
	if options.dimension > 0 {
		indexOpts = append(indexOpts, badger.WithDimension(options.dimension))
	}
	if db.index, err = badger.NewChunkIndex(backend, indexOpts...); err != nil {
		backend.Close()
		return nil, err
	}
	if db.manifests, err = badger.NewManifestRepository(backend); err != nil {
		backend.Close()
		return nil, err
	}

	switch {
	case options.authzClient != nil:
		db.authzClient = options.authzClient
	case options.authzConfig.Enabled():
		client, err := openfga.NewClient(options.authzConfig, openfga.WithLogger(options.logger))
		if err != nil {
			backend.Close()
			return nil, err
		}
		db.authzClient = client
		db.ownsAuthz = true
	default:
		tuples, err := badger.NewTupleRepository(backend)
		if err != nil {
			backend.Close()
			return nil, err
		}
		db.authzClient = tuples
		db.logger.Debug("using embedded tuple store for authorization")
	}

	if options.provider != nil {
		db.provider = options.provider
	} else {
		provider, err := openai.NewProvider(options.aiConfig)
		if err != nil {
			db.closeAuthz()
			backend.Close()
			return nil, err
		}
		db.provider = provider
		db.ownsAI = true
	}

	return db, nil
}

// Close releases the store and every client the Database created itself.
func (db *Database) Close() error {
	var errs []error
	if db.ownsAI {
		if err := db.provider.Close(); err != nil {
			db.logger.Error("error closing AI provider", "err", err)
			errs = append(errs, err)
		}
	}
	if err := db.closeAuthz(); err != nil {
		db.logger.Error("error closing authorization client", "err", err)
		errs = append(errs, err)
	}
	if err := db.backend.Close(); err != nil {
		db.logger.Error("error closing backend storage", "err", err)
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (db *Database) closeAuthz() error {
	if !db.ownsAuthz {
		return nil
	}
	return db.authzClient.Close()
}

// VectorIndex returns the chunk index.
func (db *Database) VectorIndex() storage.VectorIndex {
	return db.index
}

// Manifests returns the source manifest store.
func (db *Database) Manifests() storage.ManifestRepository {
	return db.manifests
}

// AuthzClient returns the client that answers access checks.
func (db *Database) AuthzClient() authz.Client {
	return db.authzClient
}

// Provider returns the embedding provider.
func (db *Database) Provider() ai.AIProvider {
	return db.provider
}

// HealthCheck reports whether the index is readable.
func (db *Database) HealthCheck(ctx context.Context) error {
	return db.index.HealthCheck(ctx)
}

// NewIngestionPipeline returns a pipeline writing to this database.
func (db *Database) NewIngestionPipeline(opts ...ingestion.Option) (*ingestion.Pipeline, error) {
	return ingestion.NewPipeline(db.index, db.manifests, db.authzClient, db.provider, opts...)
}

// NewSearcher returns a searcher reading from this database.
func (db *Database) NewSearcher(opts ...search.Option) (*search.Searcher, error) {
	return search.NewSearcher(db.index, db.authzClient, db.provider, opts...)
}

// NewReembedder re-embeds the whole index with the database's provider.
func (db *Database) NewReembedder(config *reembed.Config, reporter reembed.Reporter) (*reembed.Reembedder, error) {
	return reembed.NewReembedder(db.index, db.provider.Embedder(), config, reporter)
}
