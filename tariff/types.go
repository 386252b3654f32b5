// Package tariff talks to the Clear.ai Australian tariff API and keeps a
// local copy of the tariff schedule in sync with it.
package tariff

// Line is one flattened tariff line as returned by the upstream API.
// TariffOrders reports whether a tariff concession order exists for the
// code.
type Line struct {
	ID           int    `json:"id"`
	Code         string `json:"code"`
	StatCode     string `json:"stat_code"`
	Description  string `json:"description"`
	UnitOfQty    string `json:"unit_of_qty,omitempty"`
	GeneralRate  string `json:"general_rate,omitempty"`
	TariffOrders bool   `json:"tariff_orders"`
}

// Chapter is chapter metadata with its legal notes.
type Chapter struct {
	ID    int    `json:"id"`
	Code  string `json:"code"`
	Title string `json:"title"`
	Notes string `json:"notes"`
}

// ChapterData bundles the flattened tariff lines for a code with the
// owning chapter's notes.
type ChapterData struct {
	Lines []Line   `json:"rawData"`
	Notes *Chapter `json:"chapterNotes"`
}

// BookNode is one entry from a concession book search.
type BookNode struct {
	ID      int    `json:"id"`
	Ref     string `json:"ref,omitempty"`
	Heading string `json:"heading,omitempty"`
	Content string `json:"content"`
}

// ConcessionResult is the response of a Schedule 4 concession search.
type ConcessionResult struct {
	Results []BookNode `json:"results"`
	Content string     `json:"content,omitempty"`
}
