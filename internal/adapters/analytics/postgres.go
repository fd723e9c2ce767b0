package analytics

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const createTableSQL = `
CREATE TABLE IF NOT EXISTS retell_call_history (
    call_id TEXT PRIMARY KEY,
    ingestion_timestamp TIMESTAMPTZ NOT NULL,
    to_number TEXT,
    from_number TEXT,
    disposition TEXT,
    retell_agent_id TEXT,
    call_duration_ms BIGINT,
    transcript JSONB,
    full_webhook_payload JSONB
);
CREATE INDEX IF NOT EXISTS idx_call_history_agent ON retell_call_history(retell_agent_id);
`

const insertSQL = `
INSERT INTO retell_call_history (
    call_id, ingestion_timestamp, to_number, from_number, disposition,
    retell_agent_id, call_duration_ms, transcript, full_webhook_payload
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (call_id) DO NOTHING`

// Postgres writes records to a retell_call_history table.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres opens a pool for dsn and creates the table if missing.
func NewPostgres(ctx context.Context, dsn string, maxConns int32) (*Postgres, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres dsn: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres pool: %w", err)
	}
	if _, err := pool.Exec(ctx, createTableSQL); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres schema: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

// Insert implements Sink. Redelivered calls are ignored by the primary key.
func (p *Postgres) Insert(ctx context.Context, rec Record) error {
	_, err := p.pool.Exec(ctx, insertSQL, insertArgs(rec)...)
	if err != nil {
		return fmt.Errorf("%w: postgres: %w", ErrInsert, err)
	}
	return nil
}

// Close releases the pool.
func (p *Postgres) Close() { p.pool.Close() }

func insertArgs(rec Record) []any {
	payload := rec.Payload
	if payload == "" {
		payload = "null"
	}
	return []any{
		rec.CallID,
		rec.IngestionTimestamp,
		rec.ToNumber,
		rec.FromNumber,
		rec.Disposition,
		rec.AgentID,
		rec.CallDurationMS,
		rec.Transcript,
		payload,
	}
}
