package input

import "errors"

// Sentinel kinds for input errors.
var (
	ErrNoInput = errors.New("no contribution file in input directory")
)
