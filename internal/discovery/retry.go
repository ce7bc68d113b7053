package discovery

import (
	"context"

	"github.com/fentz26/artifactory-cleaner/internal/artifactory"
	"go.uber.org/zap"
)

// Retry reasons reported to metrics.
const (
	retryTransient   = "transient"
	retryRemoteError = "remote_error"
)

// retry runs fn until it succeeds or the attempt budget is spent.
//
// Transient connection failures cost one attempt and wait cfg.RetryDelay
// before the next one; no wait follows the final attempt. Not-found is
// returned at once. Any other failure leaves at most one further attempt.
func (c *Controller) retry(ctx context.Context, op string, fn func(context.Context) error) error {
	remaining := c.cfg.MaxAttempts
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		remaining--
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		switch {
		case artifactory.IsNotFound(err):
			return err

		case artifactory.IsTransient(err):
			if remaining <= 0 {
				return err
			}
			c.logger.Warn("connection failure, retrying",
				zap.String("op", op),
				zap.Int("attempts_left", remaining),
				zap.Duration("delay", c.cfg.RetryDelay),
				zap.Error(err))
			c.metrics.RecordRetry(retryTransient)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-c.clock.After(c.cfg.RetryDelay):
			}

		default:
			remaining = min(remaining, 1)
			if remaining <= 0 {
				return err
			}
			c.logger.Warn("remote error, retrying once",
				zap.String("op", op),
				zap.Error(err))
			c.metrics.RecordRetry(retryRemoteError)
		}
	}
}
