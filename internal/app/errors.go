package app

import "errors"

// Sentinel error kinds for dispatch outcomes.
var (
	// ErrClientError marks payloads that can never be processed.
	ErrClientError = errors.New("client error")
	// ErrHandler marks handler panics and unexpected handler errors.
	ErrHandler = errors.New("handler failed")
	// ErrNotStarted is returned when the service is used before Start.
	ErrNotStarted = errors.New("service not started")
)
