package search

import (
	"sync"

	"github.com/poiesic/guarded/core"
)

// AuthorizationStats summarizes the checks of one batch.
type AuthorizationStats struct {
	Candidates int // Candidates in the batch
	Checks     int // Checks issued; memoized sources are not re-checked
	Allowed    int
	Denied     int
	Failed     int // Checks that errored and were treated as denials
}

// SearchMonitor provides hooks to observe the search process.
// Implement this interface to track intermediate steps and results during search.
// Monitors see denial counts that are never returned to callers, so they
// belong to operators, not end users.
type SearchMonitor interface {
	Start(queryID, query, subject string)
	AfterEmbedding(dimension int)
	AfterCandidateFetch(requested, returned int)
	AfterAuthorization(stats AuthorizationStats)
	Hit(candidate *core.SearchCandidate, verbatim bool)
	Finish(result *core.RetrievalResult)
}

// noopMonitor is a no-op implementation of SearchMonitor
type noopMonitor struct{}

var _ SearchMonitor = (*noopMonitor)(nil)

func (n *noopMonitor) Start(_, _, _ string)                    {}
func (n *noopMonitor) AfterEmbedding(_ int)                    {}
func (n *noopMonitor) AfterCandidateFetch(_, _ int)            {}
func (n *noopMonitor) AfterAuthorization(_ AuthorizationStats) {}
func (n *noopMonitor) Hit(_ *core.SearchCandidate, _ bool)     {}
func (n *noopMonitor) Finish(_ *core.RetrievalResult)          {}

// RecordingMonitor keeps everything it observes. Safe for concurrent use.
type RecordingMonitor struct {
	mu       sync.Mutex
	QueryID  string
	Fetches  [][2]int // requested, returned
	Batches  []AuthorizationStats
	Verbatim int
	Result   *core.RetrievalResult
}

var _ SearchMonitor = (*RecordingMonitor)(nil)

func (r *RecordingMonitor) Start(queryID, _, _ string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.QueryID = queryID
}

func (r *RecordingMonitor) AfterEmbedding(_ int) {}

func (r *RecordingMonitor) AfterCandidateFetch(requested, returned int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Fetches = append(r.Fetches, [2]int{requested, returned})
}

func (r *RecordingMonitor) AfterAuthorization(stats AuthorizationStats) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Batches = append(r.Batches, stats)
}

func (r *RecordingMonitor) Hit(_ *core.SearchCandidate, verbatim bool) {
	if !verbatim {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Verbatim++
}

func (r *RecordingMonitor) Finish(result *core.RetrievalResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Result = result
}

// Totals sums the recorded batches.
func (r *RecordingMonitor) Totals() AuthorizationStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	var total AuthorizationStats
	for _, b := range r.Batches {
		total.Candidates += b.Candidates
		total.Checks += b.Checks
		total.Allowed += b.Allowed
		total.Denied += b.Denied
		total.Failed += b.Failed
	}
	return total
}
