package discovery

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fentz26/artifactory-cleaner/internal/artifactory"
	"github.com/fentz26/artifactory-cleaner/internal/bucket"
	"github.com/fentz26/artifactory-cleaner/internal/clock"
	"github.com/fentz26/artifactory-cleaner/internal/metrics"
	"github.com/fentz26/artifactory-cleaner/internal/models"
	"go.uber.org/zap"
)

// ErrMissingFrom is returned for a query without a start time.
var ErrMissingFrom = errors.New("discovery: query start time is required")

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *metrics.Collector) Option {
	return func(c *Controller) { c.metrics = m }
}

// WithClock sets the clock used for retry delays, default end times and
// artifact ages.
func WithClock(clk clock.Clock) Option {
	return func(c *Controller) {
		if clk != nil {
			c.clock = clk
		}
	}
}

// Controller discovers artifacts on the remote service.
//
// A Controller holds no per-run state; concurrent calls each get their own
// worker pool.
type Controller struct {
	svc     artifactory.Service
	cfg     Config
	logger  *zap.Logger
	metrics *metrics.Collector
	clock   clock.Clock
}

// New creates a controller. A nil cfg uses DefaultConfig.
func New(svc artifactory.Service, cfg *Config, opts ...Option) (*Controller, error) {
	if svc == nil {
		return nil, fmt.Errorf("discovery: service is required")
	}
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	c := &Controller{
		svc:    svc,
		cfg:    *cfg,
		logger: zap.NewNop(),
		clock:  clock.Real(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With(zap.String("component", "discovery"))
	return c, nil
}

// Query selects the artifacts to discover.
type Query struct {
	// From is the start of the range. Required.
	From time.Time
	// To is the end of the range; zero means now.
	To time.Time
	// Repos restricts the search; empty means every repository.
	Repos []string
	// ChunkSize is the width of each search window when iterating; zero
	// uses the configured chunk size.
	ChunkSize time.Duration
	// Concurrency bounds the resolutions in flight; zero uses the
	// configured concurrency.
	Concurrency int
}

func (c *Controller) normalize(q Query) (Query, error) {
	if q.From.IsZero() {
		return q, ErrMissingFrom
	}
	if q.To.IsZero() {
		q.To = c.clock.Now()
	}
	if q.To.Before(q.From) {
		return q, fmt.Errorf("discovery: range end %s is before start %s",
			q.To.Format(time.RFC3339), q.From.Format(time.RFC3339))
	}
	if q.ChunkSize <= 0 {
		q.ChunkSize = c.cfg.ChunkSize()
	}
	if q.Concurrency <= 0 {
		q.Concurrency = c.cfg.Concurrency
	}
	return q, nil
}

// ResolveFailure is a search hit that could not be resolved.
type ResolveFailure struct {
	URI string
	Err error
}

func (f ResolveFailure) Error() string {
	return fmt.Sprintf("%s: %v", f.URI, f.Err)
}

func (f ResolveFailure) Unwrap() error { return f.Err }

// SearchResult is the outcome of one search.
type SearchResult struct {
	Artifacts []*models.Artifact
	Failures  []ResolveFailure
}

// DiscoverRepos lists repositories grouped by class.
func (c *Controller) DiscoverRepos(ctx context.Context) (map[models.RepoClass][]models.Repository, error) {
	var repos []models.Repository
	err := c.retry(ctx, "list repositories", func(ctx context.Context) error {
		var err error
		repos, err = c.svc.ListRepositories(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}
	grouped := make(map[models.RepoClass][]models.Repository)
	for _, r := range repos {
		grouped[r.Class] = append(grouped[r.Class], r)
	}
	return grouped, nil
}

// search runs one date search. A not-found answer means no results.
func (c *Controller) search(ctx context.Context, from, to time.Time, repos []string) ([]models.SearchHit, error) {
	start := c.clock.Now()
	var hits []models.SearchHit
	err := c.retry(ctx, "search dates", func(ctx context.Context) error {
		var err error
		hits, err = c.svc.SearchDates(ctx, from, to, repos)
		return err
	})
	elapsed := c.clock.Now().Sub(start)

	switch {
	case artifactory.IsNotFound(err):
		c.logger.Debug("search returned not found, assuming no artifacts",
			zap.Time("from", from), zap.Time("to", to))
		c.metrics.RecordSearch("empty", elapsed)
		return nil, nil
	case err != nil:
		c.metrics.RecordSearch("error", elapsed)
		return nil, fmt.Errorf("search %s to %s: %w", from.Format(time.RFC3339), to.Format(time.RFC3339), err)
	}

	result := "ok"
	if len(hits) == 0 {
		result = "empty"
	}
	c.metrics.RecordSearch(result, elapsed)
	c.logger.Debug("search complete",
		zap.Time("from", from),
		zap.Time("to", to),
		zap.Int("hits", len(hits)),
		zap.Duration("elapsed", elapsed))
	return hits, nil
}

// SearchInRange runs one search over the query range and resolves every hit
// on at most q.Concurrency workers. Hits that no longer exist are skipped.
// Hits that fail to resolve are reported in the result's Failures. The error
// is non-nil only when the search itself fails or ctx is cancelled.
func (c *Controller) SearchInRange(ctx context.Context, q Query) (*SearchResult, error) {
	q, err := c.normalize(q)
	if err != nil {
		return nil, err
	}
	hits, err := c.search(ctx, q.From, q.To, q.Repos)
	if err != nil {
		return nil, err
	}
	result := &SearchResult{}
	if len(hits) == 0 {
		return result, nil
	}

	p := c.newPool(ctx, min(q.Concurrency, len(hits)))
	defer p.stop()
	p.submit(hits)

	for pending := len(hits); pending > 0; pending-- {
		out, err := p.next()
		if err != nil {
			return result, err
		}
		switch out.kind {
		case outcomeResolved:
			result.Artifacts = append(result.Artifacts, out.artifact)
		case outcomeFailed:
			result.Failures = append(result.Failures, ResolveFailure{URI: out.uri, Err: out.err})
		}
	}
	if err := ctx.Err(); err != nil {
		return result, err
	}
	return result, nil
}

// Bucketize sorts every artifact in the query range into a bucket collection
// built from boundaries, or from the default boundaries when none are given.
// Hits that failed to resolve are returned alongside the collection.
func (c *Controller) Bucketize(ctx context.Context, q Query, boundaries []bucket.Limit) (*bucket.Collection, []ResolveFailure, error) {
	col, err := bucket.NewCollection(boundaries, bucket.WithClock(c.clock))
	if err != nil {
		return nil, nil, err
	}
	it, err := c.IterateInRange(ctx, q)
	if err != nil {
		return nil, nil, err
	}
	defer it.Close()

	for it.Next() {
		if err := col.Add(it.Artifact()); err != nil {
			return col, it.Failures(), err
		}
	}
	return col, it.Failures(), it.Err()
}

// Delete removes the artifact from the remote service. A not-found answer to
// a retried delete means an earlier attempt went through and is not an error.
func (c *Controller) Delete(ctx context.Context, a *models.Artifact) error {
	c.logger.Info("deleting artifact", zap.Stringer("artifact", a), zap.String("uri", a.URI))
	attempts := 0
	err := c.retry(ctx, "delete "+a.URI, func(ctx context.Context) error {
		attempts++
		return c.svc.Delete(ctx, a)
	})
	if err != nil && attempts > 1 && artifactory.IsNotFound(err) {
		c.logger.Warn("artifact already deleted by an earlier attempt",
			zap.Stringer("artifact", a),
			zap.Int("attempts", attempts))
		return nil
	}
	if err != nil {
		return fmt.Errorf("delete %s: %w", a, err)
	}
	return nil
}
