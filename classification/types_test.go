package classification

import (
	"encoding/json"
	"strings"
	"testing"
)

// Test TCO link normalization: periods stripped, 8 digits required
func TestTCOLink(t *testing.T) {
	tests := []struct {
		code     string
		expected string
	}{
		{"9401.20.00", tcoLinkBase + "94012000"},
		{"94012000", tcoLinkBase + "94012000"},
		{"8407.21.00", tcoLinkBase + "84072100"},
		{"9401.20", ""},     // 6 digits
		{"9401200000", ""},  // 10 digits
		{"9401.2O.00", ""},  // letter O
		{"", ""},
	}

	for _, tt := range tests {
		if got := TCOLink(tt.code); got != tt.expected {
			t.Errorf("TCOLink(%q) = %q, expected %q", tt.code, got, tt.expected)
		}
	}
}

// Test optional fields marshal as explicit null and empty list as []
func TestResult_JSONShape(t *testing.T) {
	result := Result{
		ID:                    "item-1",
		Description:           "wool yarn",
		BestSuggestedHSCode:   "51061000",
		BestSuggestedStatCode: "03",
		SuggestedCodes:        []SuggestedCode{},
		Reasoning:             "matched",
	}

	data, err := json.Marshal(result)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	body := string(data)
	if !strings.Contains(body, `"best_suggested_tco_link":null`) {
		t.Errorf("Expected explicit null TCO link, got %s", body)
	}

	if !strings.Contains(body, `"schedule4_concession_text":null`) {
		t.Errorf("Expected explicit null concession text, got %s", body)
	}

	if !strings.Contains(body, `"suggested_codes":[]`) {
		t.Errorf("Expected empty suggested codes list, got %s", body)
	}
}

// Test request field names match the wire format
func TestRequest_JSONShape(t *testing.T) {
	var req Request
	payload := `{"items":[{"id":"a","description":"wool"}]}`

	if err := json.Unmarshal([]byte(payload), &req); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}

	if len(req.Items) != 1 || req.Items[0].ID != "a" || req.Items[0].Description != "wool" {
		t.Errorf("Unexpected request decode: %+v", req)
	}
}
