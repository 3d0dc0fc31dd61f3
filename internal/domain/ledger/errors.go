package ledger

import "errors"

// Sentinel kinds for ledger errors.
var (
	ErrLedgerContention = errors.New("ledger contention")
	ErrCommitBeforeRead = errors.New("ledger commit before read")
	ErrAlreadyCommitted = errors.New("ledger session already committed")
)
