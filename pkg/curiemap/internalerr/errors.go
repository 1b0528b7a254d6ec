package internalerr

import "errors"

// Sentinel errors for common cases
var (
	ErrNotFound           = errors.New("not found")
	ErrParse              = errors.New("unparseable record")
	ErrInvalidConfig      = errors.New("invalid configuration")
	ErrStoreClosed        = errors.New("store closed")
	ErrServiceUnavailable = errors.New("normalization service unavailable")
)
