// Package objectstore defines generation-aware blob access used by the ledger.
//
// A generation is the opaque version token of an object. Zero means the
// object does not exist; a conditional write with generation zero only
// succeeds when the object is still absent.
package objectstore

import (
	"context"
	"errors"
)

// Sentinel error kinds shared by every implementation.
var (
	ErrNotExist     = errors.New("object does not exist")
	ErrPrecondition = errors.New("object generation precondition failed")
)

// Store reads and conditionally writes objects.
type Store interface {
	// Read returns the object bytes and the generation they were read at.
	Read(ctx context.Context, bucket, path string) ([]byte, int64, error)
	// WriteIf replaces the object only if its generation still equals
	// generation, returning the new generation.
	WriteIf(ctx context.Context, bucket, path string, data []byte, contentType string, generation int64) (int64, error)
}

// Fetch reads an object and drops its generation.
func Fetch(ctx context.Context, s Store, bucket, path string) ([]byte, error) {
	data, _, err := s.Read(ctx, bucket, path)
	return data, err
}
