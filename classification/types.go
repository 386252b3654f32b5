// Package classification implements HS tariff code classification for
// free-text item descriptions. Classification runs against a locally
// synced copy of the Australian tariff schedule, scoring candidate
// tariff lines by weighted term overlap.
package classification

import "strings"

// Item is a single item to classify.
type Item struct {
	ID          string `json:"id"`
	Description string `json:"description"`
}

// SuggestedCode is an HS code suggestion with its statistical code.
// TCOLink is set only when a tariff concession order exists for the code.
type SuggestedCode struct {
	HSCode   string  `json:"hs_code"`
	StatCode string  `json:"stat_code"`
	TCOLink  *string `json:"tco_link"`
}

// Result is the classification outcome for one item.
type Result struct {
	ID                      string          `json:"id"`
	Description             string          `json:"description"`
	BestSuggestedHSCode     string          `json:"best_suggested_hs_code"`
	BestSuggestedStatCode   string          `json:"best_suggested_stat_code"`
	BestSuggestedTCOLink    *string         `json:"best_suggested_tco_link"`
	SuggestedCodes          []SuggestedCode `json:"suggested_codes"`
	Schedule4ConcessionText *string         `json:"schedule4_concession_text"`
	Reasoning               string          `json:"reasoning"`
}

// Request is a batch of items to classify.
type Request struct {
	Items []Item `json:"items"`
}

// Response carries the results for a classified batch.
type Response struct {
	Results []Result `json:"results"`
}

const tcoLinkBase = "https://www.abf.gov.au/tariff-classification-subsite/Pages/TariffConcessionOrders.aspx?tcn="

// TCOLink builds the tariff concession order link for an HS code.
// The tcn parameter is the 8-digit code with periods stripped. Returns
// empty string if the code does not normalize to exactly 8 digits.
func TCOLink(hsCode string) string {
	code := strings.ReplaceAll(hsCode, ".", "")
	if len(code) != 8 {
		return ""
	}
	for _, r := range code {
		if r < '0' || r > '9' {
			return ""
		}
	}
	return tcoLinkBase + code
}
