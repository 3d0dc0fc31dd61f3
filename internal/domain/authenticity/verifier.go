package authenticity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/okian/listenproof/internal/adapters/provider"
	"github.com/okian/listenproof/internal/domain/model"
	"github.com/okian/listenproof/internal/resilience"
	"github.com/okian/listenproof/pkg/logger"
	"github.com/okian/listenproof/pkg/metrics"
)

// Defaults for reconciliation.
const (
	DefaultThreshold = 0.9
	DefaultTolerance = 2 * time.Minute
)

// Result is the authenticity outcome for one contribution.
type Result struct {
	Reconciliation
	Validated bool
	// Failure wraps model.ErrAuthenticityFailure when Validated is false.
	Failure error
}

// Verifier reconciles contributions against the provider.
type Verifier struct {
	provider  provider.Provider
	policy    resilience.Policy
	caller    *resilience.Caller
	threshold float64
	tolerance time.Duration
	log       logger.Logger
}

// Option configures a Verifier.
type Option func(*Verifier)

// WithThreshold sets the minimum confirmed share for validation.
func WithThreshold(t float64) Option {
	return func(v *Verifier) {
		if t >= 0 && t <= 1 {
			v.threshold = t
		}
	}
}

// WithTolerance sets the clock-skew tolerance for timestamp matching.
func WithTolerance(d time.Duration) Option {
	return func(v *Verifier) {
		if d >= 0 {
			v.tolerance = d
		}
	}
}

// WithRetryPolicy sets the retry policy for provider calls.
func WithRetryPolicy(p resilience.Policy) Option {
	return func(v *Verifier) {
		v.policy = p
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(v *Verifier) {
		if l != nil {
			v.log = l
		}
	}
}

// NewVerifier creates a Verifier over p.
func NewVerifier(p provider.Provider, opts ...Option) *Verifier {
	v := &Verifier{
		provider:  p,
		policy:    resilience.DefaultPolicy(),
		threshold: DefaultThreshold,
		tolerance: DefaultTolerance,
		log:       logger.Nop(),
	}
	for _, opt := range opts {
		opt(v)
	}
	v.caller = resilience.NewCaller("provider.fetch_history", v.policy, resilience.WithLogger(v.log))
	return v
}

// Verify fetches the reference history covering c's events and reconciles.
// A rejected credential returns an error wrapping model.ErrOwnershipFailure;
// an unreachable provider returns one wrapping model.ErrProviderUnavailable.
func (v *Verifier) Verify(ctx context.Context, c model.Contribution, cred model.Credential) (Result, error) {
	if len(c.Events) == 0 {
		return Result{
			Failure: fmt.Errorf("%w: no events submitted", model.ErrAuthenticityFailure),
		}, nil
	}

	r := FetchRange(c.Events, v.tolerance)
	var reference []model.ListenEvent
	err := v.caller.Call(ctx, func(ctx context.Context) error {
		var err error
		reference, err = v.provider.FetchListeningHistory(ctx, cred, r)
		return err
	})
	if err != nil {
		return Result{}, classify(ctx, err)
	}

	rec := Reconcile(c.Events, reference, v.tolerance)
	metrics.RecordAuthenticity(rec.Score)

	res := Result{Reconciliation: rec, Validated: rec.Score >= v.threshold}
	if !res.Validated {
		res.Failure = fmt.Errorf("%w: %d of %d events confirmed (%.2f < %.2f)",
			model.ErrAuthenticityFailure, rec.Confirmed, rec.Submitted, rec.Score, v.threshold)
	}
	v.log.Debug(ctx, "reconciled contribution",
		logger.Int("submitted", rec.Submitted),
		logger.Int("confirmed", rec.Confirmed),
		logger.Int("reference", len(reference)),
		logger.Bool("validated", res.Validated),
	)
	return res, nil
}

func classify(ctx context.Context, err error) error {
	switch {
	case errors.Is(err, provider.ErrAuth):
		return fmt.Errorf("authenticity: %w: %w", model.ErrOwnershipFailure, err)
	case ctx.Err() != nil:
		return fmt.Errorf("authenticity: %w", err)
	case errors.Is(err, provider.ErrHistoryTruncated):
		return fmt.Errorf("authenticity: %w: reference history incomplete: %w", model.ErrProviderUnavailable, err)
	default:
		return fmt.Errorf("authenticity: %w: %w", model.ErrProviderUnavailable, err)
	}
}
