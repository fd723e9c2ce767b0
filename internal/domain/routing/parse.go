package routing

import (
	_ "embed"
	"errors"
	"fmt"
	"sort"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"
	"github.com/okian/callledger/internal/domain/model"
)

//go:embed default_routes.json
var defaultDocument []byte

// Defaults fill entries that omit a bucket or path.
type Defaults struct {
	Bucket string
	Path   string
}

type document struct {
	Agents map[string]entry `json:"agents"`
}

// entry accepts every key spelling deployed routing documents use.
type entry struct {
	Handler *string `json:"handler"`

	Bucket      string `json:"bucket"`
	BucketName  string `json:"bucket_name"`
	BucketCamel string `json:"bucketName"`

	CSVPath string `json:"csv_path"`
	Path    string `json:"path"`

	KeyColumn string `json:"key_column"`
	KeyCamel  string `json:"keyColumn"`
	Key       string `json:"key"`

	UseFirestore *bool `json:"use_firestore"`
	Firestore    *bool `json:"firestore"`

	Schema []string `json:"schema"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Parse builds a Table from a routing document. Entries without a handler
// are ignored. Any invalid entry fails the whole document.
func Parse(doc []byte, registry Registry, defaults Defaults) (*Table, error) {
	var d document
	if err := json.Unmarshal(doc, &d); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDocument, err)
	}

	ids := make([]string, 0, len(d.Agents))
	for id := range d.Agents {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	targets := make(map[string]Target, len(ids))
	var errs []error
	for _, id := range ids {
		e := d.Agents[id]
		if e.Handler == nil {
			continue
		}
		t, err := e.target(registry, defaults)
		if err != nil {
			errs = append(errs, fmt.Errorf("agent %q: %w", id, err))
			continue
		}
		targets[id] = t
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return &Table{targets: targets}, nil
}

// Default returns the table built from the embedded document.
func Default(registry Registry, defaults Defaults) (*Table, error) {
	t, err := Parse(defaultDocument, registry, defaults)
	if err != nil {
		return nil, err
	}
	t.source = "default"
	return t, nil
}

func (e entry) target(registry Registry, defaults Defaults) (Target, error) {
	h, err := registry.Lookup(*e.Handler)
	if err != nil {
		return Target{}, err
	}

	schema := h.DefaultSchema
	if len(e.Schema) > 0 {
		if schema, err = model.NewSchema(e.Schema...); err != nil {
			return Target{}, fmt.Errorf("%w: %w", ErrInvalidTarget, err)
		}
	}

	t := Target{
		Bucket:         first(e.Bucket, e.BucketName, e.BucketCamel, defaults.Bucket),
		Path:           first(e.CSVPath, e.Path, defaults.Path),
		DedupKey:       first(e.KeyColumn, e.KeyCamel, e.Key, h.DefaultKey),
		Schema:         schema,
		Variant:        h.Variant,
		Handler:        h.ID,
		UseRecordStore: h.RecordStore,
	}
	switch {
	case e.UseFirestore != nil:
		t.UseRecordStore = *e.UseFirestore
	case e.Firestore != nil:
		t.UseRecordStore = *e.Firestore
	}

	if err := validate.Struct(t); err != nil {
		return Target{}, fmt.Errorf("%w: %w", ErrInvalidTarget, err)
	}
	if !t.Schema.Has(t.DedupKey) {
		return Target{}, fmt.Errorf("%w: dedup key %q is not in the schema", ErrInvalidTarget, t.DedupKey)
	}
	return t, nil
}

func first(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
