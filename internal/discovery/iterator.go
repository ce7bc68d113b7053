package discovery

import (
	"context"
	"time"

	"github.com/fentz26/artifactory-cleaner/internal/models"
	"go.uber.org/zap"
)

// Iterator walks the artifacts of a date range. It searches the range in
// chunks, newest first, and yields each artifact as soon as a worker has
// resolved it. Artifacts within a chunk arrive in no particular order.
//
// An Iterator is used by a single goroutine and cannot be restarted:
//
//	it, err := ctrl.IterateInRange(ctx, q)
//	if err != nil { ... }
//	defer it.Close()
//	for it.Next() {
//		a := it.Artifact()
//	}
//	if err := it.Err(); err != nil { ... }
type Iterator struct {
	ctrl *Controller
	ctx  context.Context
	q    Query
	pool *pool

	cursor   time.Time
	pending  int
	current  *models.Artifact
	failures []ResolveFailure
	err      error
	done     bool
}

// IterateInRange returns an iterator over the query range. Nothing is
// searched until the first call to Next. All chunks share one pool of at
// most q.Concurrency workers.
func (c *Controller) IterateInRange(ctx context.Context, q Query) (*Iterator, error) {
	q, err := c.normalize(q)
	if err != nil {
		return nil, err
	}
	return &Iterator{
		ctrl:   c,
		ctx:    ctx,
		q:      q,
		pool:   c.newPool(ctx, q.Concurrency),
		cursor: q.To,
	}, nil
}

// Next advances to the next artifact. It returns false when the range is
// exhausted or an error stopped the iteration.
func (it *Iterator) Next() bool {
	it.current = nil
	for !it.done {
		if err := it.ctx.Err(); err != nil {
			it.fail(err)
			return false
		}
		if it.pending > 0 {
			out, err := it.pool.next()
			if err != nil {
				it.fail(err)
				return false
			}
			it.pending--
			switch out.kind {
			case outcomeResolved:
				it.current = out.artifact
				return true
			case outcomeFailed:
				if err := it.ctx.Err(); err != nil {
					it.fail(err)
					return false
				}
				it.failures = append(it.failures, ResolveFailure{URI: out.uri, Err: out.err})
			}
			continue
		}
		it.advance()
	}
	return false
}

// advance searches the next chunk and queues its hits.
func (it *Iterator) advance() {
	if !it.cursor.After(it.q.From) {
		it.finish()
		return
	}
	end := it.cursor
	start := end.Add(-it.q.ChunkSize)
	if start.Before(it.q.From) {
		start = it.q.From
	}

	hits, err := it.ctrl.search(it.ctx, start, end, it.q.Repos)
	if err != nil {
		it.fail(err)
		return
	}
	it.cursor = start
	if len(hits) == 0 {
		return
	}
	it.ctrl.logger.Debug("queueing chunk",
		zap.Time("from", start),
		zap.Time("to", end),
		zap.Int("hits", len(hits)))
	it.pending = len(hits)
	it.pool.submit(hits)
}

// Artifact returns the artifact Next advanced to.
func (it *Iterator) Artifact() *models.Artifact { return it.current }

// Err returns the error that stopped the iteration, if any. Per-hit
// resolution failures are not errors; see Failures.
func (it *Iterator) Err() error { return it.err }

// Failures returns the hits that could not be resolved so far.
func (it *Iterator) Failures() []ResolveFailure { return it.failures }

// Close stops the workers. It is safe to call more than once and after the
// iterator is exhausted.
func (it *Iterator) Close() error {
	it.finish()
	return nil
}

func (it *Iterator) fail(err error) {
	it.err = err
	it.finish()
}

func (it *Iterator) finish() {
	if it.done {
		return
	}
	it.done = true
	it.pending = 0
	it.pool.stop()
}
