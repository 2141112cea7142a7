package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/guarded/ai"
	"github.com/poiesic/guarded/authz"
	"github.com/poiesic/guarded/core"
	"github.com/poiesic/guarded/storage"
)

// Defaults for candidate over-fetching.
const (
	DefaultOverfetch     = 6
	DefaultGrowthFactor  = 4
	DefaultMaxOverfetch  = 96
	DefaultMaxCandidates = 1000
	DefaultBatchSize     = 16
	DefaultPoolSize      = 16
	DefaultQueryTimeout  = 30 * time.Second
)

// Searcher answers semantic queries with results the subject is allowed to see.
type Searcher struct {
	index                storage.VectorIndex
	checker              authz.Checker
	embedder             ai.Embedder
	backoff              ai.Backoff
	pool                 *ants.Pool
	poolSize             int
	overfetch            int
	growth               int
	maxOverfetch         int
	maxCandidates        int
	batchSize            int
	queryTimeout         time.Duration
	surfaceIndeterminate bool
	logger               *slog.Logger
}

// Option configures a Searcher.
type Option func(*Searcher) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Searcher) error {
		if logger == nil {
			logger = slog.Default()
		}
		s.logger = logger.With("component", "search")
		return nil
	}
}

// WithOverfetch sets how many candidates are fetched per requested result
// on the first index query. Must be at least 1.
func WithOverfetch(factor int) Option {
	return func(s *Searcher) error {
		if factor < 1 {
			return ErrInvalidOverfetch
		}
		s.overfetch = factor
		return nil
	}
}

// WithGrowthFactor sets the multiplier applied to the overfetch factor on each backfill round.
func WithGrowthFactor(factor int) Option {
	return func(s *Searcher) error {
		if factor < 2 {
			return ErrInvalidGrowth
		}
		s.growth = factor
		return nil
	}
}

// WithMaxOverfetch caps the overfetch factor reached by backfilling.
func WithMaxOverfetch(factor int) Option {
	return func(s *Searcher) error {
		if factor < 1 {
			return ErrInvalidOverfetch
		}
		s.maxOverfetch = factor
		return nil
	}
}

// WithMaxCandidates caps the number of candidates fetched for one query.
func WithMaxCandidates(n int) Option {
	return func(s *Searcher) error {
		if n < 1 {
			return ErrInvalidMaxCandidates
		}
		s.maxCandidates = n
		return nil
	}
}

// WithBatchSize sets how many candidates are authorized together.
func WithBatchSize(n int) Option {
	return func(s *Searcher) error {
		if n < 1 {
			return ErrInvalidBatchSize
		}
		s.batchSize = n
		return nil
	}
}

// WithPoolSize sets the number of concurrent authorization checks across all queries.
func WithPoolSize(size int) Option {
	return func(s *Searcher) error {
		if size < 1 {
			size = 1
		}
		s.poolSize = size
		return nil
	}
}

// WithQueryTimeout bounds each query. Zero disables the timeout.
func WithQueryTimeout(d time.Duration) Option {
	return func(s *Searcher) error {
		if d < 0 {
			d = 0
		}
		s.queryTimeout = d
		return nil
	}
}

// WithSurfaceIndeterminate makes Search fail with
// core.ErrAuthorizationIndeterminate when every check of a batch errored,
// instead of treating them all as denials.
func WithSurfaceIndeterminate(surface bool) Option {
	return func(s *Searcher) error {
		s.surfaceIndeterminate = surface
		return nil
	}
}

// WithRetry sets the query embedding backoff. It only applies when the
// provider's embedder does not already retry.
func WithRetry(backoff ai.Backoff) Option {
	return func(s *Searcher) error {
		if backoff.MaxAttempts < 1 {
			return ai.ErrInvalidMaxAttempts
		}
		s.backoff = backoff
		return nil
	}
}

// NewSearcher creates a new searcher.
func NewSearcher(
	index storage.VectorIndex,
	checker authz.Checker,
	provider ai.AIProvider,
	opts ...Option,
) (*Searcher, error) {
	if index == nil {
		return nil, ErrVectorIndexRequired
	}
	if checker == nil {
		return nil, ErrCheckerRequired
	}
	if provider == nil {
		return nil, ErrAIProviderRequired
	}

	s := &Searcher{
		index:         index,
		checker:       checker,
		backoff:       ai.DefaultBackoff(),
		poolSize:      DefaultPoolSize,
		overfetch:     DefaultOverfetch,
		growth:        DefaultGrowthFactor,
		maxOverfetch:  DefaultMaxOverfetch,
		maxCandidates: DefaultMaxCandidates,
		batchSize:     DefaultBatchSize,
		queryTimeout:  DefaultQueryTimeout,
		logger:        slog.Default().With("component", "search"),
	}

	// Apply options
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	if s.maxOverfetch < s.overfetch {
		return nil, fmt.Errorf("%w: max overfetch %d below overfetch %d", ErrInvalidOverfetch, s.maxOverfetch, s.overfetch)
	}

	pool, err := ants.NewPool(s.poolSize)
	if err != nil {
		return nil, err
	}
	s.pool = pool
	s.embedder = ai.Resilient(provider.Embedder(), s.backoff)

	return s, nil
}

// Search returns up to limit chunks similar to query that subject may view,
// in similarity order.
func (s *Searcher) Search(ctx context.Context, query, subject string, limit int) (*core.RetrievalResult, error) {
	return s.SearchWithMonitor(ctx, query, subject, limit, nil)
}

// SearchWithMonitor is Search with a monitor receiving callbacks at each stage.
func (s *Searcher) SearchWithMonitor(ctx context.Context, query, subject string, limit int, monitor SearchMonitor) (*core.RetrievalResult, error) {
	if limit <= 0 {
		return nil, ErrInvalidLimit
	}
	if strings.TrimSpace(query) == "" {
		return nil, ErrEmptyQuery
	}
	if strings.TrimSpace(subject) == "" {
		return nil, core.ErrEmptySubject
	}
	// Use noop monitor if none provided
	if monitor == nil {
		monitor = &noopMonitor{}
	}

	if s.queryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.queryTimeout)
		defer cancel()
	}

	queryID := uuid.NewString()
	logger := s.logger.With("query_id", queryID)
	monitor.Start(queryID, query, subject)
	start := time.Now()

	vector, err := s.embedder.EmbedText(ctx, query)
	if err != nil {
		logger.Error("error generating embedding for query", "err", err)
		return nil, queryError(ctx, err)
	}
	monitor.AfterEmbedding(len(vector))

	q := &queryState{
		searcher: s,
		subject:  subject,
		limit:    limit,
		memo:     make(map[string]core.Decision),
		seen:     make(map[string]struct{}),
		verbatim: newVerbatimMatcher(query),
		monitor:  monitor,
		logger:   logger,
	}

	factor := s.overfetch
	rounds := 0
	for {
		rounds++
		k := cappedProduct(factor, limit, s.maxCandidates)
		scored, err := s.index.Query(ctx, vector, k)
		if err != nil {
			logger.Error("error querying vector index", "k", k, "err", err)
			return nil, queryError(ctx, err)
		}
		monitor.AfterCandidateFetch(k, len(scored))

		if err := q.admit(ctx, scored); err != nil {
			return nil, err
		}

		switch {
		case len(q.hits) >= limit:
		case len(scored) < k:
			logger.Debug("index exhausted", "candidates", len(scored))
		case k >= s.maxCandidates:
			logger.Debug("candidate ceiling reached", "candidates", k)
		case factor >= s.maxOverfetch:
			logger.Debug("max overfetch reached", "factor", factor)
		default:
			factor = cappedProduct(factor, s.growth, s.maxOverfetch)
			continue
		}
		break
	}

	result := &core.RetrievalResult{Hits: q.hits}
	logger.Debug("search complete",
		"hits", result.Len(),
		"limit", limit,
		"rounds", rounds,
		"checks", q.checks,
		"duration", time.Since(start))
	monitor.Finish(result)
	return result, nil
}

// cappedProduct returns min(a*b, ceiling) for positive a and b without
// overflowing.
func cappedProduct(a, b, ceiling int) int {
	if a > ceiling/b {
		return ceiling
	}
	return min(a*b, ceiling)
}

// Release releases the worker pool. The searcher should not be used afterwards.
func (s *Searcher) Release() {
	if s.pool != nil {
		s.pool.Release()
	}
}

// queryState is the per-query accumulation of decisions and hits.
type queryState struct {
	searcher *Searcher
	subject  string
	limit    int
	memo     map[string]core.Decision
	seen     map[string]struct{}
	hits     []*core.SearchCandidate
	checks   int
	verbatim verbatimMatcher
	monitor  SearchMonitor
	logger   *slog.Logger
}

// admit authorizes unseen candidates in rank order, batch by batch, until the
// limit is reached.
func (q *queryState) admit(ctx context.Context, scored []*core.ScoredChunk) error {
	var fresh []*core.SearchCandidate
	for rank, sc := range scored {
		if _, ok := q.seen[sc.Chunk.ID]; ok {
			continue
		}
		q.seen[sc.Chunk.ID] = struct{}{}
		fresh = append(fresh, &core.SearchCandidate{Chunk: sc.Chunk, Score: sc.Score, Rank: rank})
	}

	for start := 0; start < len(fresh) && len(q.hits) < q.limit; start += q.searcher.batchSize {
		batch := fresh[start:min(start+q.searcher.batchSize, len(fresh))]
		stats, err := q.authorize(ctx, batch)
		if err != nil {
			return err
		}
		q.monitor.AfterAuthorization(stats)

		if stats.Checks > 0 && stats.Failed == stats.Checks && q.searcher.surfaceIndeterminate {
			q.logger.Warn("every authorization check in batch failed", "checks", stats.Checks)
			return fmt.Errorf("%w: %d checks failed", core.ErrAuthorizationIndeterminate, stats.Checks)
		}

		for _, c := range batch {
			c.Decision = q.memo[c.Chunk.SourceID]
			if c.Decision != core.DecisionAllow {
				continue
			}
			q.hits = append(q.hits, c)
			q.monitor.Hit(c, q.verbatim.matches(c.Chunk.Text))
			if len(q.hits) == q.limit {
				break
			}
		}
	}
	return nil
}

// authorize checks every source in batch that has no memoized decision.
// Checks run concurrently; the decisions are recorded in q.memo.
func (q *queryState) authorize(ctx context.Context, batch []*core.SearchCandidate) (AuthorizationStats, error) {
	stats := AuthorizationStats{Candidates: len(batch)}

	var pending []string
	for _, c := range batch {
		source := c.Chunk.SourceID
		if _, ok := q.memo[source]; ok {
			continue
		}
		q.memo[source] = core.DecisionUnknown
		pending = append(pending, source)
	}
	if len(pending) == 0 {
		return stats, nil
	}

	type outcome struct {
		source  string
		allowed bool
		err     error
	}
	outcomes := make([]outcome, len(pending))
	var wg sync.WaitGroup
	for i, source := range pending {
		wg.Add(1)
		err := q.searcher.pool.Submit(func() {
			defer wg.Done()
			allowed, err := q.searcher.checker.Check(ctx, q.subject, core.RelationViewer, source)
			outcomes[i] = outcome{source: source, allowed: allowed, err: err}
		})
		if err != nil {
			wg.Done()
			outcomes[i] = outcome{source: source, err: err}
		}
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return stats, queryError(ctx, err)
	}

	stats.Checks = len(pending)
	q.checks += len(pending)
	for _, o := range outcomes {
		switch {
		case o.err != nil:
			// Fail closed
			q.logger.Warn("authorization check failed, treating as deny", "source", o.source, "err", o.err)
			q.memo[o.source] = core.DecisionDeny
			stats.Failed++
		case o.allowed:
			q.memo[o.source] = core.DecisionAllow
			stats.Allowed++
		default:
			q.memo[o.source] = core.DecisionDeny
			stats.Denied++
		}
	}
	q.logger.Debug("authorized batch",
		"candidates", stats.Candidates,
		"checks", stats.Checks,
		"allowed", stats.Allowed,
		"denied", stats.Denied,
		"failed", stats.Failed)
	return stats, nil
}

// queryError maps a failure to the query-level taxonomy. An expired deadline
// becomes core.ErrTimeout; cancellation passes through unchanged.
func queryError(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", core.ErrTimeout, ctx.Err())
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return err
}
