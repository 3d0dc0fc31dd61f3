package service

import (
	"errors"

	"github.com/okian/listenproof/internal/adapters/input"
	"github.com/okian/listenproof/internal/domain/identity"
	"github.com/okian/listenproof/internal/domain/ledger"
	"github.com/okian/listenproof/internal/domain/model"
	"github.com/okian/listenproof/internal/domain/quality"
)

// Sentinel kinds for service errors.
var (
	ErrRunTimeout = errors.New("run exceeded its time budget")
	ErrNotStarted = errors.New("service not started")
	ErrExport     = errors.New("export failed")
)

// Error kinds reported to callers for fatal run failures.
const (
	KindInvalidIdentity       = "invalid_identity"
	KindMalformedContribution = "malformed_contribution"
	KindProviderUnavailable   = "provider_unavailable"
	KindLedgerContention      = "ledger_contention"
	KindTimeout               = "timeout"
	KindNoInput               = "no_input"
	KindInternal              = "internal"
)

// Kind classifies a fatal run error.
func Kind(err error) string {
	switch {
	case errors.Is(err, identity.ErrInvalidIdentity):
		return KindInvalidIdentity
	case errors.Is(err, quality.ErrMalformedContribution):
		return KindMalformedContribution
	case errors.Is(err, ErrRunTimeout):
		return KindTimeout
	case errors.Is(err, model.ErrProviderUnavailable):
		return KindProviderUnavailable
	case errors.Is(err, ledger.ErrLedgerContention):
		return KindLedgerContention
	case errors.Is(err, input.ErrNoInput):
		return KindNoInput
	default:
		return KindInternal
	}
}
