package scoring

import "errors"

// ErrInvalidTable is returned when a tier table is not strictly ascending.
var ErrInvalidTable = errors.New("invalid tier table")
