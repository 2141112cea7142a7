// Package mock provides a scripted authz.Client for tests.
package mock

import (
	"context"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"github.com/poiesic/guarded/authz"
	"github.com/poiesic/guarded/core"
)

// MockClient is an in-memory authz.Client. By default it answers checks from
// the tuples written to it. Function fields override each operation.
type MockClient struct {
	// CheckFunc replaces the default tuple lookup if set.
	CheckFunc func(ctx context.Context, subject string, relation core.Relation, object string) (bool, error)

	// WriteFunc is called before tuples are stored; a non-nil error aborts the write.
	WriteFunc func(ctx context.Context, tuples ...core.VisibilityTuple) error

	// DeleteFunc is called before tuples are removed; a non-nil error aborts the delete.
	DeleteFunc func(ctx context.Context, tuples ...core.VisibilityTuple) error

	// MaxLatency adds a random delay in [0, MaxLatency) to every check.
	MaxLatency time.Duration

	mu         sync.RWMutex
	tuples     map[core.VisibilityTuple]struct{}
	checks     atomic.Int64
	inFlight   atomic.Int64
	peakFlight atomic.Int64
	checked    []string
	closed     bool
}

var _ authz.Client = (*MockClient)(nil)

// NewMockClient creates an empty client.
func NewMockClient() *MockClient {
	return &MockClient{tuples: make(map[core.VisibilityTuple]struct{})}
}

// Check answers from CheckFunc or the stored tuples.
func (m *MockClient) Check(ctx context.Context, subject string, relation core.Relation, object string) (bool, error) {
	m.checks.Add(1)
	cur := m.inFlight.Add(1)
	defer m.inFlight.Add(-1)
	for {
		peak := m.peakFlight.Load()
		if cur <= peak || m.peakFlight.CompareAndSwap(peak, cur) {
			break
		}
	}

	m.mu.Lock()
	m.checked = append(m.checked, object)
	m.mu.Unlock()

	if m.MaxLatency > 0 {
		timer := time.NewTimer(rand.N(m.MaxLatency))
		select {
		case <-ctx.Done():
			timer.Stop()
			return false, ctx.Err()
		case <-timer.C:
		}
	}

	if m.CheckFunc != nil {
		return m.CheckFunc(ctx, subject, relation, object)
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return m.Has(core.VisibilityTuple{Subject: subject, Relation: relation, Object: object}), nil
}

// WriteTuples stores tuples.
func (m *MockClient) WriteTuples(ctx context.Context, tuples ...core.VisibilityTuple) error {
	if m.WriteFunc != nil {
		if err := m.WriteFunc(ctx, tuples...); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range tuples {
		m.tuples[t] = struct{}{}
	}
	return nil
}

// DeleteTuples removes tuples.
func (m *MockClient) DeleteTuples(ctx context.Context, tuples ...core.VisibilityTuple) error {
	if m.DeleteFunc != nil {
		if err := m.DeleteFunc(ctx, tuples...); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range tuples {
		delete(m.tuples, t)
	}
	return nil
}

// Close marks the client closed.
func (m *MockClient) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}

// Has reports whether tuple is stored.
func (m *MockClient) Has(tuple core.VisibilityTuple) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.tuples[tuple]
	return ok
}

// Tuples returns the number of stored tuples.
func (m *MockClient) Tuples() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.tuples)
}

// CheckCount returns how many checks were issued.
func (m *MockClient) CheckCount() int {
	return int(m.checks.Load())
}

// PeakConcurrency returns the largest number of checks observed in flight at once.
func (m *MockClient) PeakConcurrency() int {
	return int(m.peakFlight.Load())
}

// Checked returns the objects checked, in arrival order.
func (m *MockClient) Checked() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, len(m.checked))
	copy(out, m.checked)
	return out
}

// Closed reports whether Close was called.
func (m *MockClient) Closed() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.closed
}

// Reset clears tuples, counters and injected functions.
func (m *MockClient) Reset() {
	m.mu.Lock()
	m.tuples = make(map[core.VisibilityTuple]struct{})
	m.checked = nil
	m.mu.Unlock()
	m.checks.Store(0)
	m.peakFlight.Store(0)
	m.CheckFunc = nil
	m.WriteFunc = nil
	m.DeleteFunc = nil
	m.MaxLatency = 0
}
