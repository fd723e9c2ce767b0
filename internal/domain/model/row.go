package model

import (
	"errors"
	"fmt"
)

// ErrInvalidSchema is returned for empty or duplicated field names.
var ErrInvalidSchema = errors.New("invalid schema")

// Schema is the ordered field list of a ledger; it doubles as the CSV header.
type Schema []string

// NewSchema validates and copies fields.
func NewSchema(fields ...string) (Schema, error) {
	if len(fields) == 0 {
		return nil, fmt.Errorf("%w: no fields", ErrInvalidSchema)
	}
	seen := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		if f == "" {
			return nil, fmt.Errorf("%w: empty field name", ErrInvalidSchema)
		}
		if _, dup := seen[f]; dup {
			return nil, fmt.Errorf("%w: duplicate field %q", ErrInvalidSchema, f)
		}
		seen[f] = struct{}{}
	}
	return append(Schema(nil), fields...), nil
}

// MustSchema is NewSchema for package-level literals.
func MustSchema(fields ...string) Schema {
	s, err := NewSchema(fields...)
	if err != nil {
		panic(err)
	}
	return s
}

// Index returns the position of name or -1.
func (s Schema) Index(name string) int {
	for i, f := range s {
		if f == name {
			return i
		}
	}
	return -1
}

// Has reports whether name is a field of s.
func (s Schema) Has(name string) bool { return s.Index(name) >= 0 }

// Equal compares field names and order.
func (s Schema) Equal(o Schema) bool {
	if len(s) != len(o) {
		return false
	}
	for i := range s {
		if s[i] != o[i] {
			return false
		}
	}
	return true
}

// Row is one canonical record. Every field of its schema is present;
// unset fields read as "".
type Row struct {
	schema Schema
	values []string
}

// NewRow returns an all-empty row for s.
func NewRow(s Schema) Row {
	return Row{schema: s, values: make([]string, len(s))}
}

// RowFromValues builds a row, padding or truncating values to the schema width.
func RowFromValues(s Schema, values []string) Row {
	r := NewRow(s)
	copy(r.values, values)
	return r
}

// Schema returns the row's schema.
func (r Row) Schema() Schema { return r.schema }

// Get returns the value of name, "" when name is not in the schema.
func (r Row) Get(name string) string {
	if i := r.schema.Index(name); i >= 0 {
		return r.values[i]
	}
	return ""
}

// Set assigns name and reports whether the field exists.
func (r *Row) Set(name, value string) bool {
	i := r.schema.Index(name)
	if i < 0 {
		return false
	}
	r.values[i] = value
	return true
}

// Values returns a copy of the values in schema order.
func (r Row) Values() []string {
	return append([]string(nil), r.values...)
}

// Reindex projects r onto s by field name. Fields missing from r become
// empty; fields not in s are dropped.
func (r Row) Reindex(s Schema) Row {
	out := NewRow(s)
	for i, f := range s {
		out.values[i] = r.Get(f)
	}
	return out
}
