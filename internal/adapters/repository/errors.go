package repository

import "errors"

// Sentinel kinds for ledger store errors.
var (
	ErrContention = errors.New("ledger entry is locked by another run")
	ErrClosed     = errors.New("ledger store closed")
	ErrStore      = errors.New("ledger store failure")
)
