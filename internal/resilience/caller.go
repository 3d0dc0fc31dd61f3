package resilience

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/okian/listenproof/pkg/logger"
	"github.com/okian/listenproof/pkg/metrics"
)

// Caller executes an operation under a Policy.
type Caller struct {
	name   string
	policy Policy
	log    logger.Logger
}

// CallerOption configures a Caller.
type CallerOption func(*Caller)

// WithLogger sets the logger used for retry warnings.
func WithLogger(l logger.Logger) CallerOption {
	return func(c *Caller) {
		if l != nil {
			c.log = l
		}
	}
}

// NewCaller creates a Caller named after the operation it protects; the name
// is used as a metrics label.
func NewCaller(name string, p Policy, opts ...CallerOption) *Caller {
	c := &Caller{
		name:   name,
		policy: p.Normalize(),
		log:    logger.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Policy returns the effective policy.
func (c *Caller) Policy() Policy { return c.policy }

// Call runs fn until it succeeds, fails permanently, or the policy runs out
// of attempts. Only errors for which IsTransient is true are retried.
// Exhaustion returns an error wrapping both ErrExhausted and the last failure.
func (c *Caller) Call(ctx context.Context, fn func(ctx context.Context) error) error {
	var (
		attempt int
		lastErr error
	)

	backoff := retry.BackoffFunc(func() (time.Duration, bool) {
		if attempt >= c.policy.MaxAttempts {
			return 0, true
		}
		d := c.policy.delayWithHint(attempt, retryAfter(lastErr))
		metrics.RecordRetry(c.name)
		c.log.Warn(ctx, "transient failure, retrying",
			logger.String("operation", c.name),
			logger.Int("attempt", attempt),
			logger.Duration("delay", d),
			logger.Error(lastErr),
		)
		return d, false
	})

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err
		if IsTransient(err) {
			return retry.RetryableError(err)
		}
		return err
	})

	switch {
	case err == nil:
		return nil
	case ctx.Err() != nil && errors.Is(err, ctx.Err()):
		return fmt.Errorf("%s: %w", c.name, err)
	case IsTransient(err):
		return fmt.Errorf("%s: %w after %d attempts: %w", c.name, ErrExhausted, attempt, err)
	default:
		return err
	}
}
