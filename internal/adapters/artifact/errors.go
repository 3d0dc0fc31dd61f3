package artifact

import "errors"

// Sentinel kinds for export errors.
var (
	ErrSeal     = errors.New("seal contribution failed")
	ErrOpen     = errors.New("open sealed contribution failed")
	ErrLocation = errors.New("invalid export location")
	ErrUpload   = errors.New("upload sealed contribution failed")
)
