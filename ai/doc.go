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

// Package ai provides the embedding abstraction used for ingestion and search.
//
// Embedder turns text into vectors. AIProvider owns an Embedder and its
// underlying client. Two implementations ship with the package:
//
//   - ai/openai: OpenAI-compatible APIs (OpenAI, Azure OpenAI, Ollama, vLLM) via langchaingo
//   - ai/mock: deterministic test doubles
//
// ResilientEmbedder layers retries with exponential backoff, unit
// normalization and a dimension check over any Embedder. Callers that only
// see the ai.Embedder interface get vectors that are directly comparable by
// cosine similarity.
//
// Public constructors (openai.NewProvider, openai.NewEmbedder) return
// interface types. Test constructors (mock.NewMockEmbedder) return concrete
// types so tests can inject behaviour and read call counts.
//
//	provider, err := openai.NewProvider(ai.NewConfig(ai.WithDimension(1536)))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer provider.Close()
//
//	vec, err := provider.Embedder().EmbedText(ctx, "quarterly revenue")
package ai
