// Package ledger holds the pure read-merge-encode steps of a ledger append.
// It knows nothing about storage or retries.
package ledger

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/okian/callledger/internal/domain/model"
)

// ErrMalformed is returned when stored ledger bytes are not valid CSV.
var ErrMalformed = errors.New("malformed ledger")

// Table is a decoded ledger: a schema and its rows in file order.
type Table struct {
	Schema model.Schema
	Rows   []model.Row
}

// Len returns the number of data rows.
func (t Table) Len() int { return len(t.Rows) }

// Decode parses stored bytes and projects every row onto schema. Empty
// input is an empty table. When the stored header differs from schema,
// columns are matched by name: missing ones become empty and extra ones
// are dropped.
func Decode(data []byte, schema model.Schema) (Table, error) {
	out := Table{Schema: schema}
	if len(bytes.TrimSpace(data)) == 0 {
		return out, nil
	}

	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err != nil {
		return Table{}, fmt.Errorf("%w: header: %w", ErrMalformed, err)
	}
	header[0] = strings.TrimPrefix(header[0], "\ufeff")

	// pos[i] is the stored column feeding schema field i, or -1.
	pos := make([]int, len(schema))
	for i, f := range schema {
		pos[i] = -1
		for j, h := range header {
			if h == f {
				pos[i] = j
				break
			}
		}
	}

	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return Table{}, fmt.Errorf("%w: %w", ErrMalformed, err)
		}
		row := model.NewRow(schema)
		for i, j := range pos {
			if j >= 0 && j < len(rec) {
				row.Set(schema[i], rec[j])
			}
		}
		out.Rows = append(out.Rows, row)
	}
	return out, nil
}

// Merge appends rows to t and deduplicates by key. For each non-empty key
// value the last occurrence wins and stays at its own position. Rows whose
// key is empty are always kept. A key outside the schema disables dedup.
func Merge(t Table, rows []model.Row, key string) Table {
	combined := make([]model.Row, 0, len(t.Rows)+len(rows))
	combined = append(combined, t.Rows...)
	for _, r := range rows {
		if !r.Schema().Equal(t.Schema) {
			r = r.Reindex(t.Schema)
		}
		combined = append(combined, r)
	}
	if !t.Schema.Has(key) {
		return Table{Schema: t.Schema, Rows: combined}
	}

	last := make(map[string]int, len(combined))
	for i, r := range combined {
		if k := r.Get(key); k != "" {
			last[k] = i
		}
	}
	kept := combined[:0:0]
	for i, r := range combined {
		k := r.Get(key)
		if k != "" && last[k] != i {
			continue
		}
		kept = append(kept, r)
	}
	return Table{Schema: t.Schema, Rows: kept}
}

// Encode renders t as CSV with a header row and every field quoted.
func Encode(t Table) []byte {
	var b bytes.Buffer
	writeRecord(&b, t.Schema)
	for _, r := range t.Rows {
		writeRecord(&b, r.Values())
	}
	return b.Bytes()
}

// writeRecord quotes unconditionally; encoding/csv only quotes when needed.
func writeRecord(b *bytes.Buffer, fields []string) {
	for i, f := range fields {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteByte('"')
		b.WriteString(strings.ReplaceAll(f, `"`, `""`))
		b.WriteByte('"')
	}
	b.WriteByte('\n')
}
