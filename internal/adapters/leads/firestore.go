package leads

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Firestore updates documents in one collection inside a transaction, so
// the duplicate check and the update see the same snapshot.
type Firestore struct {
	client     *firestore.Client
	collection string
}

// NewFirestore dials Firestore.
func NewFirestore(ctx context.Context, projectID, collection string, opts ...option.ClientOption) (*Firestore, error) {
	c, err := firestore.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("firestore client: %w", err)
	}
	return &Firestore{client: c, collection: collection}, nil
}

// Close releases the client.
func (f *Firestore) Close() error { return f.client.Close() }

// RecordCall implements Store.
func (f *Firestore) RecordCall(ctx context.Context, docID string, res CallResult) error {
	ref := f.client.Collection(f.collection).Doc(docID)
	err := f.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if status.Code(err) == codes.NotFound {
			return fmt.Errorf("%w: %s/%s", ErrLeadNotFound, f.collection, docID)
		}
		if err != nil {
			return err
		}
		if hasCall(snap.Data()["disposition_history"], res.CallID) {
			return fmt.Errorf("%w: %s on %s", ErrDuplicateCall, res.CallID, docID)
		}
		return tx.Update(ref, updates(res))
	})
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrLeadNotFound), errors.Is(err, ErrDuplicateCall):
		return err
	default:
		return fmt.Errorf("%w: %s/%s: %w", ErrUpdate, f.collection, docID, err)
	}
}

func updates(res CallResult) []firestore.Update {
	entry := map[string]any{
		"call_id":     res.CallID,
		"timestamp":   res.Timestamp,
		"disposition": res.Disposition,
	}
	return []firestore.Update{
		{Path: "call_attempts", Value: firestore.Increment(1)},
		{Path: "last_call_timestamp", Value: res.Timestamp},
		{Path: "disposition_history", Value: firestore.ArrayUnion(entry)},
		{Path: "disposition", Value: res.Disposition},
		{Path: "Status", Value: "Called"},
		{Path: "analysis_email", Value: res.EmailGiven},
		{Path: "analysis_state", Value: res.StateGiven},
		{Path: "analysis_accredited", Value: res.Accredited},
		{Path: "analysis_new_investments", Value: res.NewInvestments},
		{Path: "analysis_sectors", Value: res.Sectors},
		{Path: "analysis_dnc", Value: res.DNC},
		{Path: "analysis_summary", Value: res.Summary},
		{Path: "analysis_quality", Value: res.Quality},
		{Path: "call_duration_seconds", Value: res.CallTime},
		{Path: "disconnection_reason", Value: res.DisconnectionReason},
		{Path: "processed", Value: false},
		{Path: "sector_processed", Value: false},
	}
}

// hasCall reports whether a disposition_history value already holds callID.
func hasCall(history any, callID string) bool {
	entries, ok := history.([]any)
	if !ok || callID == "" {
		return false
	}
	for _, e := range entries {
		m, ok := e.(map[string]any)
		if !ok {
			continue
		}
		if id, _ := m["call_id"].(string); id == callID {
			return true
		}
	}
	return false
}
