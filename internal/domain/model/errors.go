package model

import "errors"

// Error kinds shared by the verification stages. ErrProviderUnavailable is
// fatal for a run; the two check failures only invalidate the proof.
var (
	ErrProviderUnavailable = errors.New("provider unavailable")
	ErrAuthenticityFailure = errors.New("authenticity check failed")
	ErrOwnershipFailure    = errors.New("ownership check failed")
)
