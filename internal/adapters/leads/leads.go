// Package leads records call outcomes on per-lead documents.
package leads

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/okian/callledger/internal/adapters/breaker"
	"github.com/okian/callledger/internal/domain/model"
	"github.com/okian/callledger/internal/domain/normalize"
)

// Sentinel error kinds. Both are expected outcomes, not failures.
var (
	ErrLeadNotFound  = errors.New("lead not found")
	ErrDuplicateCall = errors.New("call already recorded on lead")
)

// ErrUpdate wraps lead store failures.
var ErrUpdate = errors.New("lead update failed")

// CallResult is what one call contributes to a lead.
type CallResult struct {
	CallID              string
	Timestamp           time.Time
	Disposition         string
	EmailGiven          string
	StateGiven          string
	Accredited          string
	NewInvestments      string
	Sectors             string
	DNC                 string
	Summary             string
	Quality             string
	CallTime            string
	DisconnectionReason string
}

// ResultFromRow extracts the lead fields from a normalized row.
func ResultFromRow(callID string, row model.Row, now time.Time) CallResult {
	summary := row.Get(normalize.ColSummery)
	if summary == "" {
		summary = row.Get(normalize.ColSummary)
	}
	return CallResult{
		CallID:              callID,
		Timestamp:           now.UTC(),
		Disposition:         strings.TrimSpace(row.Get(normalize.ColCorrectName)),
		EmailGiven:          row.Get(normalize.ColEmailGiven),
		StateGiven:          row.Get(normalize.ColStateGiven),
		Accredited:          row.Get(normalize.ColAccredited),
		NewInvestments:      row.Get(normalize.ColNewInvestments),
		Sectors:             row.Get(normalize.ColSectors),
		DNC:                 row.Get(normalize.ColDNC),
		Summary:             summary,
		Quality:             row.Get(normalize.ColQuality),
		CallTime:            row.Get(normalize.ColCallTime),
		DisconnectionReason: row.Get(normalize.ColDisconnectionReason),
	}
}

// Store updates lead documents.
type Store interface {
	// RecordCall applies res to lead docID once per call id.
	RecordCall(ctx context.Context, docID string, res CallResult) error
}

// Expected reports outcomes that are logged but are not store failures.
func Expected(err error) bool {
	return errors.Is(err, ErrLeadNotFound) || errors.Is(err, ErrDuplicateCall)
}

// Guarded runs a Store behind a circuit breaker. Expected outcomes do not
// count against the breaker.
type Guarded struct {
	store Store
	b     *breaker.Breaker
}

// WithBreaker wraps store.
func WithBreaker(store Store, b *breaker.Breaker) *Guarded {
	return &Guarded{store: store, b: b}
}

// RecordCall implements Store.
func (g *Guarded) RecordCall(ctx context.Context, docID string, res CallResult) error {
	err := g.b.DoIgnoring(func() error { return g.store.RecordCall(ctx, docID, res) }, Expected)
	if breaker.Rejected(err) {
		return fmt.Errorf("%w: %s breaker %s: %w", ErrUpdate, g.b.Name(), g.b.State(), err)
	}
	return err
}
