package normalize

import "github.com/okian/callledger/internal/domain/model"

// Variant selects the field extraction rules for a ledger.
type Variant string

const (
	// VariantCampaign covers the per-client campaign ledgers.
	VariantCampaign Variant = "campaign"
	// VariantCore is the original inbound ledger with lead store columns.
	VariantCore Variant = "core"
)

// Column names shared by both variants.
const (
	ColDate                = "Date"
	ColPhone               = "Phone"
	ColCallTime            = "Call Time"
	ColFirstName           = "First Name"
	ColLastName            = "Last Name"
	ColAddress             = "Address"
	ColCity                = "City"
	ColInputState          = "Input State"
	ColStateGiven          = "State Given"
	ColZip                 = "Zip"
	ColInputEmail          = "Input Email"
	ColEmailGiven          = "Email Given"
	ColAccredited          = "Accredited"
	ColCorrectName         = "Correct Name"
	ColNewInvestments      = "New Investments"
	ColSectors             = "Sectors"
	ColDNC                 = "DNC"
	ColSummary             = "Summary"
	ColQuality             = "Quality"
	ColDisconnectionReason = "Disconnection Reason"
	ColInterested          = "Interested"
	ColLiquidToInvest      = "Liquid To Invest"
	ColJob                 = "Job"
	ColFollowUp            = "Follow Up"
	ColPastExperience      = "Past Experience"
	ColRecording           = "Recording"

	// Core only. "Summery" is the header existing core ledgers were created with.
	ColSummery         = "Summery"
	ColFirestoreID     = "Firestore_ID"
	ColProcessed       = "Processed"
	ColSectorProcessed = "Sector Processed"
	ColSummaryLower    = "summary"
)

// CampaignSchema is the default header of campaign ledgers.
var CampaignSchema = model.MustSchema(
	ColDate, ColPhone, ColCallTime, ColFirstName, ColLastName, ColAddress, ColCity,
	ColInputState, ColStateGiven, ColZip, ColInputEmail, ColEmailGiven, ColAccredited,
	ColCorrectName, ColNewInvestments, ColSectors, ColDNC, ColSummary, ColQuality,
	ColDisconnectionReason, ColInterested, ColLiquidToInvest, ColJob, ColFollowUp,
	ColPastExperience, ColRecording,
)

// CoreSchema is the default header of the core ledger.
var CoreSchema = model.MustSchema(
	ColDate, ColPhone, ColCallTime, ColFirstName, ColLastName, ColAddress, ColCity,
	ColInputState, ColStateGiven, ColZip, ColInputEmail, ColEmailGiven, ColAccredited,
	ColCorrectName, ColNewInvestments, ColSectors, ColDNC, ColSummery, ColQuality,
	ColDisconnectionReason, ColRecording, ColFirestoreID, ColProcessed, ColSectorProcessed,
	ColInterested, ColLiquidToInvest, ColJob, ColFollowUp, ColPastExperience, ColSummaryLower,
)

// DefaultSchema returns the header a variant writes when no schema is configured.
func DefaultSchema(v Variant) (model.Schema, error) {
	switch v {
	case VariantCampaign:
		return CampaignSchema, nil
	case VariantCore:
		return CoreSchema, nil
	default:
		return nil, ErrUnknownVariant
	}
}
