package ledger

import (
	"errors"
	"fmt"
)

// Sentinel error kinds for ledger appends.
var (
	// ErrConflict means every attempt lost the generation race.
	ErrConflict = errors.New("ledger write conflict")
	// ErrIO covers unreadable, malformed or unwritable ledgers. Not retried.
	ErrIO = errors.New("ledger io error")
)

// ConflictError reports an append abandoned after repeated conflicts.
type ConflictError struct {
	Location string
	Attempts int
	Err      error
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("ledger %s: conflict after %d attempts: %v", e.Location, e.Attempts, e.Err)
}

func (e *ConflictError) Unwrap() error { return e.Err }

// Is matches ErrConflict.
func (e *ConflictError) Is(target error) bool { return target == ErrConflict }
