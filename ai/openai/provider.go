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

package openai

import (
	"log/slog"

	"github.com/poiesic/guarded/ai"
)

// Provider implements ai.AIProvider using an OpenAI-compatible service.
type Provider struct {
	config   *ai.Config
	embedder *ai.ResilientEmbedder
	logger   *slog.Logger
}

// NewProvider creates a provider. The config is validated and normalized before use.
//
// Returns ai.AIProvider so callers do not couple to this implementation.
func NewProvider(config *ai.Config) (ai.AIProvider, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	raw, err := newEmbedder(config)
	if err != nil {
		return nil, err
	}

	return &Provider{
		config:   config,
		embedder: ai.NewResilientEmbedder(raw, config.Backoff(), config.Dimension),
		logger:   slog.Default().With("component", "openai-provider"),
	}, nil
}

// Embedder returns the resilient embedding service.
func (p *Provider) Embedder() ai.Embedder {
	return p.embedder
}

// Close releases resources held by the provider.
// The underlying HTTP client needs no explicit cleanup.
func (p *Provider) Close() error {
	p.logger.Debug("closing OpenAI provider", "host", p.config.EmbeddingHost)
	return nil
}
