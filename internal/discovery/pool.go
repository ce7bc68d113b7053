package discovery

import (
	"context"
	"sync/atomic"

	"github.com/fentz26/artifactory-cleaner/internal/artifactory"
	"github.com/fentz26/artifactory-cleaner/internal/metrics"
	"github.com/fentz26/artifactory-cleaner/internal/models"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type outcomeKind int

const (
	outcomeResolved outcomeKind = iota
	outcomeFailed
	outcomeDropped
)

// outcome is what a worker reports for exactly one search hit.
type outcome struct {
	kind     outcomeKind
	uri      string
	artifact *models.Artifact
	err      error
}

// pool resolves search hits on up to size workers. Workers are started on
// demand as hits are submitted. A pool lives for one search or one iteration
// run and is shut down by stop, which cancels in-flight requests and joins
// every worker.
type pool struct {
	ctrl *Controller
	size int

	ctx    context.Context
	cancel context.CancelFunc
	group  *errgroup.Group

	incoming chan models.SearchHit
	results  chan outcome

	workers  atomic.Int32
	inflight atomic.Int64
}

func (c *Controller) newPool(parent context.Context, size int) *pool {
	ctx, cancel := context.WithCancel(parent)
	group, gctx := errgroup.WithContext(ctx)
	return &pool{
		ctrl:     c,
		size:     size,
		ctx:      gctx,
		cancel:   cancel,
		group:    group,
		incoming: make(chan models.SearchHit),
		results:  make(chan outcome, size),
	}
}

// submit feeds hits to the workers on a goroutine joined by the pool's group,
// so stop never waits while a worker is still being started.
func (p *pool) submit(hits []models.SearchHit) {
	p.group.Go(func() error {
		p.feed(hits)
		return nil
	})
}

// feed hands hits to the workers, starting workers as needed. It returns
// early if the pool is stopped.
func (p *pool) feed(hits []models.SearchHit) {
	for _, hit := range hits {
		p.spawn()
		select {
		case p.incoming <- hit:
		case <-p.ctx.Done():
			return
		}
	}
}

// spawn starts one more worker if the pool is below its size.
func (p *pool) spawn() {
	for {
		n := p.workers.Load()
		if int(n) >= p.size || p.ctx.Err() != nil {
			return
		}
		if p.workers.CompareAndSwap(n, n+1) {
			p.ctrl.logger.Debug("worker started", zap.Int32("worker", n+1))
			p.group.Go(p.work)
			return
		}
	}
}

// next blocks until one outcome is available or the pool is stopped.
func (p *pool) next() (outcome, error) {
	select {
	case out := <-p.results:
		return out, nil
	case <-p.ctx.Done():
		return outcome{}, p.ctx.Err()
	}
}

// stop cancels every in-flight request and waits for the workers to exit.
func (p *pool) stop() {
	p.cancel()
	_ = p.group.Wait()
}

func (p *pool) work() error {
	for {
		select {
		case <-p.ctx.Done():
			return nil
		case hit := <-p.incoming:
			p.ctrl.metrics.SetInFlight(p.inflight.Add(1))
			out := p.resolve(hit)
			p.ctrl.metrics.SetInFlight(p.inflight.Add(-1))

			select {
			case p.results <- out:
			case <-p.ctx.Done():
				return nil
			}
		}
	}
}

// resolve fetches the artifact behind one hit, retrying per the controller's
// policy.
func (p *pool) resolve(hit models.SearchHit) outcome {
	c := p.ctrl
	var a *models.Artifact
	err := c.retry(p.ctx, "fetch "+hit.URI, func(ctx context.Context) error {
		var err error
		a, err = c.svc.FetchArtifact(ctx, hit.URI)
		return err
	})

	switch {
	case err == nil:
		a.AttachLastDownloaded(hit.LastDownloaded)
		c.metrics.RecordResolution(metrics.OutcomeResolved)
		return outcome{kind: outcomeResolved, uri: hit.URI, artifact: a}
	case artifactory.IsNotFound(err):
		c.logger.Warn("artifact not found, skipping", zap.String("uri", hit.URI))
		c.metrics.RecordResolution(metrics.OutcomeDropped)
		return outcome{kind: outcomeDropped, uri: hit.URI}
	default:
		if p.ctx.Err() == nil {
			c.logger.Error("failed to resolve artifact", zap.String("uri", hit.URI), zap.Error(err))
			c.metrics.RecordResolution(metrics.OutcomeFailed)
		}
		return outcome{kind: outcomeFailed, uri: hit.URI, err: err}
	}
}
