package identity

import "errors"

// ErrInvalidIdentity is returned for empty or malformed raw account identifiers.
var ErrInvalidIdentity = errors.New("invalid identity")
