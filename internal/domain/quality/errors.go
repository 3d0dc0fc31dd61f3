package quality

import "errors"

// ErrMalformedContribution marks structurally invalid input data.
var ErrMalformedContribution = errors.New("malformed contribution")
