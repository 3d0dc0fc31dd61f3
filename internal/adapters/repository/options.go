package repository

import "time"

// Option applies a configuration option to a store.
type Option func(*options)

type options struct {
	lockWait time.Duration
}

func defaultOptions() options {
	return options{lockWait: 5 * time.Second}
}

// WithLockWait bounds how long a section waits for a held entry before
// failing with ErrContention.
func WithLockWait(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.lockWait = d
		}
	}
}
