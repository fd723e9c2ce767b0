package normalize

import (
	"sort"
	"strings"
)

// Dynamic variable aliases. The first key present wins.
var (
	varFirstName = []string{"first_name", "First Name", "firstName"}
	varLastName  = []string{"last_name", "Last Name", "lastName"}
	varAddress   = []string{"address", "Address"}
	varCity      = []string{"city", "City"}
	varState     = []string{"state", "State", "Input State"}
	varZip       = []string{"zip", "Zip", "zip_code", "zipCode"}
	varEmail     = []string{"email", "Email", "Input Email"}
	varRecording = []string{"recording_url", " recording_url", "recording_url ", "recording"}
)

// Analysis field aliases, matched after trimming the payload's keys.
var (
	anState          = []string{"_state"}
	anEmail          = []string{"_email"}
	anAccredited     = []string{"_accredited_investor", "_accredited _investor"}
	anCorrectName    = []string{"_correct_name", "_correct _name"}
	anNewInvestments = []string{"_new_investments", "_new _investments"}
	anSectors        = []string{"_investment_sectors", "_investment _sectors"}
	anDNC            = []string{"_dnc", "_d_n_c"}
	anQuality        = []string{"_quality"}
	anInterested     = []string{"_interested"}
	anLiquid         = []string{"_liquid_to_invest", "_liquid _to _invest"}
	anJob            = []string{"_job"}
	anFollowUp       = []string{"_follow_up", "_follow _up"}

	anSummaryCampaign = []string{"_summary", "_call_summary", "_call _summary"}
	anSummaryCore     = []string{"_summary", "_call_summary", "_call _summery", "_Summary", "Summary", "summary"}
	anPastCampaign    = []string{"_past_experience", "_past _experience"}
	anPastCore        = []string{"_past_oil", "_past _oil", "_past_experience", "past_experience"}
)

// lookupVar returns the first alias present in vars. Keys match exactly.
func lookupVar(vars map[string]any, aliases []string) any {
	for _, k := range aliases {
		if v, ok := vars[k]; ok {
			return v
		}
	}
	return nil
}

// trimmedKeys indexes analysis by whitespace-trimmed key. When two keys trim
// to the same name the untrimmed one wins, otherwise the lexically last.
func trimmedKeys(analysis map[string]any) map[string]any {
	keys := make([]string, 0, len(analysis))
	for k := range analysis {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make(map[string]any, len(analysis))
	for _, k := range keys {
		t := strings.TrimSpace(k)
		if _, exact := analysis[t]; exact && t != k {
			continue
		}
		out[t] = analysis[k]
	}
	return out
}

func lookupAnalysis(norm map[string]any, aliases []string) any {
	for _, k := range aliases {
		if v, ok := norm[k]; ok {
			return v
		}
	}
	return nil
}
