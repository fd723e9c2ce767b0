package analytics

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/option"
)

// BigQuery streams records into a table with the call id as insert id, so
// redelivered webhooks collapse within the streaming dedup window.
type BigQuery struct {
	client   *bigquery.Client
	inserter *bigquery.Inserter
	table    string
}

// NewBigQuery dials BigQuery for project.dataset.table.
func NewBigQuery(ctx context.Context, projectID, dataset, table string, opts ...option.ClientOption) (*BigQuery, error) {
	c, err := bigquery.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("bigquery client: %w", err)
	}
	return &BigQuery{
		client:   c,
		inserter: c.Dataset(dataset).Table(table).Inserter(),
		table:    fmt.Sprintf("%s.%s.%s", projectID, dataset, table),
	}, nil
}

// Insert implements Sink.
func (b *BigQuery) Insert(ctx context.Context, rec Record) error {
	if err := b.inserter.Put(ctx, bqRow(rec)); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrInsert, b.table, err)
	}
	return nil
}

// Close releases the client.
func (b *BigQuery) Close() error { return b.client.Close() }

type bqRow Record

// Save implements bigquery.ValueSaver.
func (r bqRow) Save() (map[string]bigquery.Value, string, error) {
	return map[string]bigquery.Value{
		"ingestion_timestamp":  r.IngestionTimestamp,
		"call_id":              r.CallID,
		"to_number":            r.ToNumber,
		"from_number":          r.FromNumber,
		"disposition":          r.Disposition,
		"retell_agent_id":      r.AgentID,
		"call_duration_ms":     r.CallDurationMS,
		"transcript":           r.Transcript,
		"full_webhook_payload": r.Payload,
	}, r.CallID, nil
}
