// Package routing maps producer identifiers to ledger targets.
//
// A Table is built once at startup, either from the embedded default
// document or from a remote override, and is read-only afterwards.
package routing

import (
	"sort"

	"github.com/okian/callledger/internal/domain/model"
	"github.com/okian/callledger/internal/domain/normalize"
)

// Target is where and how one producer's rows are written.
type Target struct {
	Bucket         string            `validate:"required"`
	Path           string            `validate:"required"`
	DedupKey       string            `validate:"required"`
	Schema         model.Schema      `validate:"min=1"`
	Variant        normalize.Variant `validate:"oneof=core campaign"`
	Handler        string            `validate:"required"`
	UseRecordStore bool
}

// Location renders the target as gs://bucket/path for logs and metrics.
func (t Target) Location() string {
	return "gs://" + t.Bucket + "/" + t.Path
}

// Table is an immutable producer id to Target map.
type Table struct {
	targets map[string]Target
	source  string
}

// Resolve returns the target for producerID.
func (t *Table) Resolve(producerID string) (Target, bool) {
	if t == nil {
		return Target{}, false
	}
	target, ok := t.targets[producerID]
	return target, ok
}

// Len returns the number of routed producers.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.targets)
}

// Source names where the table came from: "default" or the override uri.
func (t *Table) Source() string {
	if t == nil {
		return ""
	}
	return t.source
}

// ProducerIDs returns the routed ids, sorted.
func (t *Table) ProducerIDs() []string {
	if t == nil {
		return nil
	}
	ids := make([]string, 0, len(t.targets))
	for id := range t.targets {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
