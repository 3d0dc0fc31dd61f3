package resilience

import "errors"

// ErrExhausted is returned when every allowed attempt failed transiently.
var ErrExhausted = errors.New("retries exhausted")
