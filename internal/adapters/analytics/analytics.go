// Package analytics ships one record per call to the warehouse. Inserts are
// best effort: callers log failures and move on.
package analytics

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/okian/callledger/internal/adapters/breaker"
	"github.com/okian/callledger/internal/domain/model"
	"github.com/okian/callledger/internal/domain/normalize"
)

// ErrInsert wraps warehouse write failures.
var ErrInsert = errors.New("analytics insert failed")

// Record is one call history row.
type Record struct {
	IngestionTimestamp time.Time
	CallID             string
	ToNumber           string
	FromNumber         string
	Disposition        string
	AgentID            string
	CallDurationMS     int64
	Transcript         string
	Payload            string
}

// NewRecord builds the warehouse row for call. raw is the full webhook body.
func NewRecord(call *model.Call, raw []byte, now time.Time) Record {
	an := call.AnalysisData()
	disposition, ok := an["_correct_name"]
	if !ok {
		disposition = an["_correct _name"]
	}

	var durationMS int64
	if secs, ok := normalize.Number(call.DurationSeconds()); ok {
		durationMS = int64(secs * 1000)
	}

	transcript, err := json.Marshal(call.Transcript)
	if err != nil {
		transcript = []byte("null")
	}

	return Record{
		IngestionTimestamp: now.UTC(),
		CallID:             call.CallID,
		ToNumber:           call.ToNumber,
		FromNumber:         call.FromNumber,
		Disposition:        normalize.Text(disposition),
		AgentID:            call.AgentID,
		CallDurationMS:     durationMS,
		Transcript:         string(transcript),
		Payload:            string(raw),
	}
}

// Sink stores records.
type Sink interface {
	Insert(ctx context.Context, rec Record) error
}

// Guarded runs a Sink behind a circuit breaker.
type Guarded struct {
	sink Sink
	b    *breaker.Breaker
}

// WithBreaker wraps sink.
func WithBreaker(sink Sink, b *breaker.Breaker) *Guarded {
	return &Guarded{sink: sink, b: b}
}

// Insert implements Sink.
func (g *Guarded) Insert(ctx context.Context, rec Record) error {
	err := g.b.Do(func() error { return g.sink.Insert(ctx, rec) })
	if breaker.Rejected(err) {
		return fmt.Errorf("%w: %s breaker %s: %w", ErrInsert, g.b.Name(), g.b.State(), err)
	}
	return err
}
