// Package normalize turns a completed call into a canonical ledger row.
//
// Build is pure given a fixed location: the same call always yields the
// same row. Fields a variant does not produce are left empty, and columns
// that are not part of the target schema are dropped.
package normalize

import (
	"fmt"
	"time"

	"github.com/okian/callledger/internal/domain/model"
)

// Normalizer extracts rows. The zero value renders dates in time.Local.
type Normalizer struct {
	loc *time.Location
}

// Option configures a Normalizer.
type Option func(*Normalizer)

// WithLocation sets the zone dates are rendered in.
func WithLocation(loc *time.Location) Option {
	return func(n *Normalizer) {
		if loc != nil {
			n.loc = loc
		}
	}
}

// New returns a Normalizer.
func New(opts ...Option) *Normalizer {
	n := &Normalizer{loc: time.Local}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Location returns the zone dates are rendered in.
func (n *Normalizer) Location() *time.Location {
	if n == nil || n.loc == nil {
		return time.Local
	}
	return n.loc
}

// Build extracts one row for call. A nil or empty schema selects the
// variant's default. ErrSkip is returned when the end timestamp is unusable.
func (n *Normalizer) Build(call *model.Call, variant Variant, schema model.Schema) (model.Row, error) {
	if call == nil {
		return model.Row{}, ErrNilCall
	}
	if len(schema) == 0 {
		def, err := DefaultSchema(variant)
		if err != nil {
			return model.Row{}, fmt.Errorf("%w: %q", err, variant)
		}
		schema = def
	}

	var fields map[string]string
	switch variant {
	case VariantCampaign:
		fields = campaignFields(call)
	case VariantCore:
		fields = coreFields(call)
	default:
		return model.Row{}, fmt.Errorf("%w: %q", ErrUnknownVariant, variant)
	}

	date, ok := CanonicalTime(call.EndTimestamp, n.Location())
	if !ok {
		return model.Row{}, ErrSkip
	}
	fields[ColDate] = date

	row := model.NewRow(schema)
	for name, v := range fields {
		row.Set(name, v)
	}
	return row, nil
}

// commonFields are produced identically by every variant.
func commonFields(call *model.Call, vars, an map[string]any) map[string]string {
	return map[string]string{
		ColPhone:               Phone(call.ToNumber),
		ColCallTime:            Text(call.DurationSeconds()),
		ColFirstName:           Text(lookupVar(vars, varFirstName)),
		ColLastName:            Text(lookupVar(vars, varLastName)),
		ColAddress:             Text(lookupVar(vars, varAddress)),
		ColCity:                Text(lookupVar(vars, varCity)),
		ColInputState:          Text(lookupVar(vars, varState)),
		ColStateGiven:          Text(lookupAnalysis(an, anState)),
		ColZip:                 Text(lookupVar(vars, varZip)),
		ColInputEmail:          Text(lookupVar(vars, varEmail)),
		ColEmailGiven:          Text(lookupAnalysis(an, anEmail)),
		ColAccredited:          Flag(lookupAnalysis(an, anAccredited)),
		ColCorrectName:         Flag(lookupAnalysis(an, anCorrectName)),
		ColNewInvestments:      Flag(lookupAnalysis(an, anNewInvestments)),
		ColSectors:             Text(lookupAnalysis(an, anSectors)),
		ColDNC:                 Flag(lookupAnalysis(an, anDNC)),
		ColQuality:             Text(lookupAnalysis(an, anQuality)),
		ColDisconnectionReason: call.DisconnectionReason,
		ColInterested:          Flag(lookupAnalysis(an, anInterested)),
		ColLiquidToInvest:      Flag(lookupAnalysis(an, anLiquid)),
		ColJob:                 Text(lookupAnalysis(an, anJob)),
		ColFollowUp:            Text(lookupAnalysis(an, anFollowUp)),
	}
}

func campaignFields(call *model.Call) map[string]string {
	an := trimmedKeys(call.AnalysisData())
	f := commonFields(call, call.Vars(), an)
	f[ColSummary] = Text(lookupAnalysis(an, anSummaryCampaign))
	f[ColPastExperience] = Flag(lookupAnalysis(an, anPastCampaign))
	f[ColRecording] = call.RecordingURL
	return f
}

func coreFields(call *model.Call) map[string]string {
	vars := call.Vars()
	an := trimmedKeys(call.AnalysisData())
	f := commonFields(call, vars, an)
	f[ColSummery] = Text(lookupAnalysis(an, anSummaryCore))
	f[ColPastExperience] = Flag(lookupAnalysis(an, anPastCore))
	f[ColRecording] = Text(lookupVar(vars, varRecording))
	f[ColFirestoreID] = Text(vars["firestore_doc_id"])
	f[ColProcessed] = ""
	f[ColSectorProcessed] = ""
	f[ColSummaryLower] = ""
	return f
}
