// Package ownership checks that a credential belongs to the account the
// contributor claims.
package ownership

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/okian/listenproof/internal/adapters/provider"
	"github.com/okian/listenproof/internal/domain/model"
	"github.com/okian/listenproof/internal/resilience"
	"github.com/okian/listenproof/pkg/logger"
)

// Result is the ownership outcome. Credential is the one to use for the rest
// of the run: the refreshed credential when a refresh happened.
type Result struct {
	Score      float64
	Credential model.Credential
	Refreshed  bool
	// Reason wraps model.ErrOwnershipFailure when Score is 0.
	Reason error
}

// Verifier checks ownership through the provider.
type Verifier struct {
	provider  provider.Provider
	refresher provider.Refresher
	policy    resilience.Policy
	caller    *resilience.Caller
	now       func() time.Time
	log       logger.Logger
}

// Option configures a Verifier.
type Option func(*Verifier)

// WithRetryPolicy sets the retry policy for transient provider failures.
func WithRetryPolicy(p resilience.Policy) Option {
	return func(v *Verifier) { v.policy = p }
}

// WithClock overrides the clock used for expiry checks.
func WithClock(now func() time.Time) Option {
	return func(v *Verifier) {
		if now != nil {
			v.now = now
		}
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

// NewVerifier creates a Verifier. refresher may be nil, in which case
// expired credentials fail ownership.
func NewVerifier(p provider.Provider, refresher provider.Refresher, opts ...Option) *Verifier {
	v := &Verifier{
		provider:  p,
		refresher: refresher,
		policy:    resilience.DefaultPolicy(),
		now:       time.Now,
		log:       logger.Nop(),
	}
	for _, opt := range opts {
		opt(v)
	}
	v.caller = resilience.NewCaller("provider.current_account", v.policy, resilience.WithLogger(v.log))
	return v
}

// Verify asks the provider who owns cred and compares it with claimedAccountID.
// An expired or rejected credential is refreshed at most once. Only provider
// unavailability is returned as an error.
func (v *Verifier) Verify(ctx context.Context, claimedAccountID string, cred model.Credential) (Result, error) {
	res := Result{Credential: cred}

	if cred.Expired(v.now()) {
		if err := v.refresh(ctx, &res); err != nil {
			return res, err
		}
		if res.Reason != nil {
			return res, nil
		}
	}

	acc, err := v.currentAccount(ctx, res.Credential)
	if errors.Is(err, provider.ErrAuth) && !res.Refreshed {
		if err := v.refresh(ctx, &res); err != nil {
			return res, err
		}
		if res.Reason != nil {
			return res, nil
		}
		acc, err = v.currentAccount(ctx, res.Credential)
	}
	switch {
	case err == nil:
	case errors.Is(err, provider.ErrAuth):
		res.Reason = fmt.Errorf("%w: credential rejected: %w", model.ErrOwnershipFailure, err)
		return res, nil
	case ctx.Err() != nil:
		return res, fmt.Errorf("ownership: %w", err)
	default:
		return res, fmt.Errorf("ownership: %w: %w", model.ErrProviderUnavailable, err)
	}

	if acc.ID != strings.TrimSpace(claimedAccountID) {
		res.Reason = fmt.Errorf("%w: credential belongs to a different account", model.ErrOwnershipFailure)
		return res, nil
	}
	res.Score = 1
	return res, nil
}

func (v *Verifier) currentAccount(ctx context.Context, cred model.Credential) (provider.Account, error) {
	var acc provider.Account
	err := v.caller.Call(ctx, func(ctx context.Context) error {
		var err error
		acc, err = v.provider.CurrentAccount(ctx, cred)
		return err
	})
	return acc, err
}

// refresh performs the single allowed refresh. A refused refresh sets
// res.Reason; an unreachable token endpoint is returned as an error.
func (v *Verifier) refresh(ctx context.Context, res *Result) error {
	if v.refresher == nil || !res.Credential.CanRefresh() {
		res.Reason = fmt.Errorf("%w: credential expired and cannot be refreshed", model.ErrOwnershipFailure)
		return nil
	}

	cred, err := v.refresher.Refresh(ctx, res.Credential)
	res.Refreshed = true
	switch {
	case err == nil:
		res.Credential = cred
		v.log.Info(ctx, "credential refreshed")
		return nil
	case errors.Is(err, provider.ErrAuth):
		res.Reason = fmt.Errorf("%w: refresh refused: %w", model.ErrOwnershipFailure, err)
		return nil
	case ctx.Err() != nil:
		return fmt.Errorf("ownership: refresh: %w", err)
	default:
		return fmt.Errorf("ownership: refresh: %w: %w", model.ErrProviderUnavailable, err)
	}
}
