package mock

import (
	"context"
	"hash/fnv"
	"math"
	"sync"
	"sync/atomic"
)

// DefaultDimension is the vector length produced by the default mock behaviour.
const DefaultDimension = 16

// MockEmbedder is a test double for ai.Embedder.
// It allows custom behavior injection via function fields and is safe for
// concurrent use, since ingestion embeds chunks from a worker pool.
type MockEmbedder struct {
	// EmbedTextFunc is called by EmbedText if set.
	// If nil, uses Vectors then the default deterministic behavior.
	EmbedTextFunc func(ctx context.Context, text string) ([]float32, error)

	// EmbedTextsFunc is called by EmbedTexts if set.
	// If nil, each text goes through EmbedText's resolution order.
	EmbedTextsFunc func(ctx context.Context, texts []string) ([][]float32, error)

	// Dimension is the length of generated vectors. Zero means DefaultDimension.
	Dimension int

	mu        sync.RWMutex
	vectors   map[string][]float32
	callCount atomic.Int64
}

// NewMockEmbedder creates a mock embedder with default deterministic behavior.
// Returns the concrete type so tests can inject behaviour and read call counts.
func NewMockEmbedder() *MockEmbedder {
	return &MockEmbedder{}
}

// SetVector pins the vector returned for an exact text.
func (m *MockEmbedder) SetVector(text string, vec []float32) *MockEmbedder {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.vectors == nil {
		m.vectors = make(map[string][]float32)
	}
	m.vectors[text] = vec
	return m
}

// EmbedText returns a pinned vector or a deterministic one derived from the text hash.
func (m *MockEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	m.callCount.Add(1)

	if m.EmbedTextFunc != nil {
		return m.EmbedTextFunc(ctx, text)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return m.lookup(text), nil
}

// EmbedTexts embeds each text in order.
func (m *MockEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	m.callCount.Add(1)

	if m.EmbedTextsFunc != nil {
		return m.EmbedTextsFunc(ctx, texts)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := make([][]float32, len(texts))
	for i, text := range texts {
		if m.EmbedTextFunc != nil {
			v, err := m.EmbedTextFunc(ctx, text)
			if err != nil {
				return nil, err
			}
			out[i] = v
			continue
		}
		out[i] = m.lookup(text)
	}
	return out, nil
}

// CallCount returns the number of times any method was called.
func (m *MockEmbedder) CallCount() int {
	return int(m.callCount.Load())
}

// Reset clears the call count, pinned vectors and injected functions.
func (m *MockEmbedder) Reset() {
	m.callCount.Store(0)
	m.mu.Lock()
	m.vectors = nil
	m.mu.Unlock()
	m.EmbedTextFunc = nil
	m.EmbedTextsFunc = nil
}

func (m *MockEmbedder) lookup(text string) []float32 {
	m.mu.RLock()
	v, ok := m.vectors[text]
	m.mu.RUnlock()
	if ok {
		out := make([]float32, len(v))
		copy(out, v)
		return out
	}
	dim := m.Dimension
	if dim <= 0 {
		dim = DefaultDimension
	}
	return DeterministicVector(text, dim)
}

// DeterministicVector creates a unit-length vector from an FNV hash of text.
// The same text always produces the same vector.
func DeterministicVector(text string, dim int) []float32 {
	h := fnv.New32a()
	h.Write([]byte(text))
	seed := h.Sum32()

	vector := make([]float32, dim)
	var sumSquares float64
	for i := range dim {
		seed = seed*1664525 + 1013904223 // LCG constants
		vector[i] = float32(seed%1000)/1000.0 + 0.001
		sumSquares += float64(vector[i]) * float64(vector[i])
	}

	norm := float32(1 / math.Sqrt(sumSquares))
	for i := range vector {
		vector[i] *= norm
	}
	return vector
}
