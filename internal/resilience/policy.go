// Package resilience holds the bounded retry policy used for calls that may
// fail transiently (provider API, ledger contention).
package resilience

import (
	"errors"
	"math"
	"time"
)

// Default policy values.
const (
	defaultMaxAttempts = 5
	defaultBaseDelay   = 500 * time.Millisecond
	defaultMaxDelay    = 8 * time.Second
	defaultMultiplier  = 2.0
)

// Policy is a bounded exponential backoff. It has no state; Delay is a pure
// function of the retry number.
type Policy struct {
	MaxAttempts int           // total attempts including the first one
	BaseDelay   time.Duration // delay before the first retry
	MaxDelay    time.Duration // upper bound for any single delay
	Multiplier  float64       // growth factor between retries
}

// DefaultPolicy returns the provider retry defaults.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: defaultMaxAttempts,
		BaseDelay:   defaultBaseDelay,
		MaxDelay:    defaultMaxDelay,
		Multiplier:  defaultMultiplier,
	}
}

// Normalize fills zero or invalid fields with defaults.
func (p Policy) Normalize() Policy {
	d := DefaultPolicy()
	if p.MaxAttempts < 1 {
		p.MaxAttempts = d.MaxAttempts
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = d.BaseDelay
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = d.MaxDelay
	}
	if p.MaxDelay < p.BaseDelay {
		p.MaxDelay = p.BaseDelay
	}
	if p.Multiplier < 1 {
		p.Multiplier = d.Multiplier
	}
	return p
}

// Delay returns how long to wait before retry number retry (1-based):
// BaseDelay * Multiplier^(retry-1), capped at MaxDelay.
func (p Policy) Delay(retry int) time.Duration {
	if retry < 1 {
		return 0
	}
	d := float64(p.BaseDelay) * math.Pow(p.Multiplier, float64(retry-1))
	if d > float64(p.MaxDelay) || math.IsInf(d, 1) {
		return p.MaxDelay
	}
	return time.Duration(d)
}

// delayWithHint honours a server-provided hint (e.g. Retry-After) when it asks for a
// longer wait than the policy, still bounded by MaxDelay.
func (p Policy) delayWithHint(retry int, hint time.Duration) time.Duration {
	d := p.Delay(retry)
	if hint > d {
		d = hint
	}
	if d > p.MaxDelay {
		d = p.MaxDelay
	}
	return d
}

// Transient is implemented by errors that are worth retrying.
type Transient interface {
	Temporary() bool
}

// RetryAfterHint is implemented by errors that carry a server wait hint.
type RetryAfterHint interface {
	RetryAfter() time.Duration
}

// IsTransient reports whether any error in err's chain is temporary.
func IsTransient(err error) bool {
	var t Transient
	return errors.As(err, &t) && t.Temporary()
}

func retryAfter(err error) time.Duration {
	var h RetryAfterHint
	if errors.As(err, &h) {
		return h.RetryAfter()
	}
	return 0
}
