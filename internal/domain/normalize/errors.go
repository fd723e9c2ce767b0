package normalize

import "errors"

var (
	// ErrSkip means the event lacks a usable end timestamp and must not be written.
	ErrSkip = errors.New("missing or invalid end_timestamp")
	// ErrUnknownVariant is returned for a variant outside the closed set.
	ErrUnknownVariant = errors.New("unknown extraction variant")
	// ErrNilCall is returned when Build receives no call.
	ErrNilCall = errors.New("nil call")
)
