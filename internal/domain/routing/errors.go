package routing

import "errors"

// Sentinel error kinds for this package.
var (
	ErrUnknownHandler = errors.New("unknown handler")
	ErrInvalidTarget  = errors.New("invalid route target")
	ErrDocument       = errors.New("invalid routing document")
	ErrEmptyTable     = errors.New("routing document has no routed agents")
	ErrInvalidURI     = errors.New("invalid routing document uri")
)
