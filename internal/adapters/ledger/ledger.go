// Package ledger appends rows to CSV ledgers kept in an object store.
//
// An append is a whole-object read-merge-write guarded by the object's
// generation. Losing the race restarts the full sequence from a fresh read,
// so a retry can never overwrite rows another writer committed meanwhile.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/okian/callledger/internal/adapters/objectstore"
	domain "github.com/okian/callledger/internal/domain/ledger"
	"github.com/okian/callledger/internal/domain/model"
	"github.com/okian/callledger/pkg/logger"
	"github.com/okian/callledger/pkg/metrics"
)

// ContentType is set on every ledger object.
const ContentType = "text/csv"

// Location addresses one ledger object.
type Location struct {
	Bucket string
	Path   string
}

func (l Location) String() string { return "gs://" + l.Bucket + "/" + l.Path }

// Store appends to ledgers.
type Store struct {
	objects        objectstore.Store
	maxAttempts    int
	initialBackoff time.Duration
	maxBackoff     time.Duration
	logger         logger.Logger
}

// New returns a Store over objects.
func New(objects objectstore.Store, opts ...Option) *Store {
	s := &Store{
		objects:        objects,
		maxAttempts:    4,
		initialBackoff: 50 * time.Millisecond,
		maxBackoff:     time.Second,
		logger:         logger.Get().Named("ledger"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Append adds rows to the ledger at loc, deduplicating by dedupKey, and
// returns the ledger's row count after the write. Every row is projected
// onto schema, which also becomes the header.
func (s *Store) Append(ctx context.Context, loc Location, rows []model.Row, dedupKey string, schema model.Schema) (int, error) {
	start := time.Now()
	name := loc.String()

	var (
		total    int
		attempts int
		lastErr  error
	)
	op := func() error {
		attempts++
		metrics.RecordLedgerAttempt(name)

		n, err := s.appendOnce(ctx, loc, rows, dedupKey, schema)
		if err == nil {
			total = n
			return nil
		}
		lastErr = err
		if errors.Is(err, objectstore.ErrPrecondition) {
			metrics.RecordLedgerConflict(name)
			s.logger.Debug(ctx, "ledger generation moved, retrying",
				logger.String("ledger", name),
				logger.Int("attempt", attempts))
			return err
		}
		return backoff.Permanent(err)
	}

	err := backoff.Retry(op, s.policy(ctx))
	metrics.RecordLedgerLatency(name, float64(time.Since(start).Milliseconds()))

	switch {
	case err == nil:
		metrics.UpdateLedgerRows(name, total)
		return total, nil
	case errors.Is(err, objectstore.ErrPrecondition):
		metrics.RecordLedgerFailure(name, "conflict")
		return 0, &ConflictError{Location: name, Attempts: attempts, Err: lastErr}
	case ctx.Err() != nil:
		metrics.RecordLedgerFailure(name, "canceled")
		return 0, fmt.Errorf("%w: %s: %w", ErrIO, name, err)
	default:
		metrics.RecordLedgerFailure(name, "io")
		return 0, err
	}
}

func (s *Store) policy(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.initialBackoff
	b.MaxInterval = s.maxBackoff
	b.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(s.maxAttempts-1)), ctx)
}

// appendOnce runs one read-merge-write. A generation mismatch surfaces as
// objectstore.ErrPrecondition; everything else is wrapped in ErrIO.
func (s *Store) appendOnce(ctx context.Context, loc Location, rows []model.Row, dedupKey string, schema model.Schema) (int, error) {
	data, gen, err := s.objects.Read(ctx, loc.Bucket, loc.Path)
	switch {
	case errors.Is(err, objectstore.ErrNotExist):
		data, gen = nil, 0
	case err != nil:
		return 0, fmt.Errorf("%w: read %s: %w", ErrIO, loc, err)
	}

	existing, err := domain.Decode(data, schema)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %w", ErrIO, loc, err)
	}
	merged := domain.Merge(existing, rows, dedupKey)

	if _, err := s.objects.WriteIf(ctx, loc.Bucket, loc.Path, domain.Encode(merged), ContentType, gen); err != nil {
		if errors.Is(err, objectstore.ErrPrecondition) {
			return 0, err
		}
		return 0, fmt.Errorf("%w: write %s: %w", ErrIO, loc, err)
	}
	return merged.Len(), nil
}
