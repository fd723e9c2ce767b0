package routing

import (
	"fmt"

	"github.com/okian/callledger/internal/domain/model"
	"github.com/okian/callledger/internal/domain/normalize"
)

// Handler describes how a family of producers is processed.
type Handler struct {
	ID            string
	Variant       normalize.Variant
	DefaultKey    string
	DefaultSchema model.Schema
	// RecordStore is the lead store default when an entry does not say.
	RecordStore bool
}

// Registry is the closed set of handlers a routing document may name.
type Registry map[string]Handler

// DefaultRegistry returns every known handler under all accepted names.
func DefaultRegistry() Registry {
	core := Handler{
		ID:            "core",
		Variant:       normalize.VariantCore,
		DefaultKey:    normalize.ColFirestoreID,
		DefaultSchema: normalize.CoreSchema,
		RecordStore:   true,
	}
	campaign := Handler{
		ID:            "campaign",
		Variant:       normalize.VariantCampaign,
		DefaultKey:    normalize.ColPhone,
		DefaultSchema: normalize.CampaignSchema,
	}
	return Registry{
		"handlers.core":            core,
		"core":                     core,
		"handlers.football":        campaign,
		"football":                 campaign,
		"handlers.client_template": campaign,
		"client_template":          campaign,
		"campaign":                 campaign,
	}
}

// Lookup returns the handler registered under id.
func (r Registry) Lookup(id string) (Handler, error) {
	h, ok := r[id]
	if !ok {
		return Handler{}, fmt.Errorf("%w: %q", ErrUnknownHandler, id)
	}
	return h, nil
}
