package apperrors

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrUnsafeQuery       = errors.New("query rejected by read-only policy")
	ErrUnsupportedSource = errors.New("unsupported source type")
	ErrSourceUnreachable = errors.New("source unreachable")
	ErrInvalidConfig     = errors.New("invalid configuration")
	ErrMalformedRow      = errors.New("malformed catalog row")
)
