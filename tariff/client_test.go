package tariff

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
)

// newTariffServer serves a small fake of the upstream API and counts
// requests per endpoint.
func newTariffServer(t *testing.T, lineHits, noteHits, searchHits *atomic.Int32) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/tariffs/chapter_flatten_tariffs", func(w http.ResponseWriter, r *http.Request) {
		if lineHits != nil {
			lineHits.Add(1)
		}
		code := r.URL.Query().Get("code")
		if !strings.HasPrefix(code, "84") {
			_, _ = w.Write([]byte("[]"))
			return
		}
		lines := []Line{
			{ID: 1, Code: "8407.21.00", StatCode: "11", Description: "Outboard motors", TariffOrders: true},
			{ID: 2, Code: "8408.10.00", StatCode: "12", Description: "Marine propulsion engines"},
		}
		if err := json.NewEncoder(w).Encode(lines); err != nil {
			t.Fatalf("Failed to encode lines: %v", err)
		}
	})
	mux.HandleFunc("/chapters/by_code", func(w http.ResponseWriter, r *http.Request) {
		if noteHits != nil {
			noteHits.Add(1)
		}
		if r.URL.Query().Get("code") != "84" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		chapter := Chapter{ID: 84, Code: "84", Title: "Machinery", Notes: "This Chapter does not cover millstones."}
		if err := json.NewEncoder(w).Encode(chapter); err != nil {
			t.Fatalf("Failed to encode chapter: %v", err)
		}
	})
	mux.HandleFunc("/book_nodes/search", func(w http.ResponseWriter, r *http.Request) {
		if searchHits != nil {
			searchHits.Add(1)
		}
		if r.URL.Query().Get("book_ref") != DefaultBookRef {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		result := ConcessionResult{Results: []BookNode{
			{ID: 7, Ref: "item-50", Heading: "Item 50", Content: "Goods for use in aircraft"},
		}}
		if err := json.NewEncoder(w).Encode(result); err != nil {
			t.Fatalf("Failed to encode concession result: %v", err)
		}
	})

	return httptest.NewServer(mux)
}

func newTestClient(baseURL string) *Client {
	// High rate limit keeps tests fast.
	return NewClient(ClientConfig{BaseURL: baseURL, RateLimit: 1000, RateBurst: 1000})
}

// Test chapter lookup fetches lines and notes together
func TestClient_ChapterLookup(t *testing.T) {
	var lineHits, noteHits atomic.Int32
	server := newTariffServer(t, &lineHits, &noteHits, nil)
	defer server.Close()

	client := newTestClient(server.URL)

	data, err := client.ChapterLookup(context.Background(), "8407")
	if err != nil {
		t.Fatalf("ChapterLookup failed: %v", err)
	}

	if len(data.Lines) != 2 {
		t.Errorf("Expected 2 lines, got %d", len(data.Lines))
	}

	if data.Notes == nil {
		t.Fatal("Expected chapter notes")
	}

	if data.Notes.Code != "84" {
		t.Errorf("Expected notes for chapter 84, got %s", data.Notes.Code)
	}

	if lineHits.Load() != 1 || noteHits.Load() != 1 {
		t.Errorf("Expected one request per endpoint, got lines=%d notes=%d", lineHits.Load(), noteHits.Load())
	}
}

// Test invalid codes short-circuit without touching the upstream
func TestClient_ChapterLookupInvalidCode(t *testing.T) {
	var lineHits, noteHits atomic.Int32
	server := newTariffServer(t, &lineHits, &noteHits, nil)
	defer server.Close()

	client := newTestClient(server.URL)

	for _, code := range []string{"84x7", "123", "", "84.07"} {
		data, err := client.ChapterLookup(context.Background(), code)
		if err != nil {
			t.Fatalf("ChapterLookup(%q) failed: %v", code, err)
		}
		if len(data.Lines) != 0 || data.Notes != nil {
			t.Errorf("Expected empty data for invalid code %q", code)
		}
	}

	if lineHits.Load() != 0 || noteHits.Load() != 0 {
		t.Errorf("Expected no upstream requests for invalid codes, got lines=%d notes=%d",
			lineHits.Load(), noteHits.Load())
	}
}

// Test non-200 upstream responses degrade to empty data
func TestClient_ChapterLookupUpstreamError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := newTestClient(server.URL)

	data, err := client.ChapterLookup(context.Background(), "8407")
	if err != nil {
		t.Fatalf("ChapterLookup should not fail on upstream 503: %v", err)
	}

	if len(data.Lines) != 0 || data.Notes != nil {
		t.Error("Expected empty data on upstream error")
	}
}

// Test search code validation
func TestClient_SearchValidation(t *testing.T) {
	var lineHits atomic.Int32
	server := newTariffServer(t, &lineHits, nil, nil)
	defer server.Close()

	client := newTestClient(server.URL)

	for _, code := range []string{"8", "840721009", "84o7", ""} {
		lines, err := client.Search(context.Background(), code)
		if err != nil {
			t.Fatalf("Search(%q) failed: %v", code, err)
		}
		if len(lines) != 0 {
			t.Errorf("Expected no lines for invalid code %q", code)
		}
	}

	if lineHits.Load() != 0 {
		t.Errorf("Expected no upstream requests for invalid codes, got %d", lineHits.Load())
	}

	lines, err := client.Search(context.Background(), "84")
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(lines) != 2 {
		t.Errorf("Expected 2 lines for chapter 84, got %d", len(lines))
	}
}

// Test malformed upstream JSON degrades to empty list
func TestClient_SearchMalformedJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("{not json"))
	}))
	defer server.Close()

	client := newTestClient(server.URL)

	lines, err := client.Search(context.Background(), "84")
	if err != nil {
		t.Fatalf("Search should not fail on malformed JSON: %v", err)
	}
	if len(lines) != 0 {
		t.Errorf("Expected no lines, got %d", len(lines))
	}
}

// Test transport failures surface as errors
func TestClient_TransportError(t *testing.T) {
	server := newTariffServer(t, nil, nil, nil)
	server.Close() // Connection refused from here on

	client := newTestClient(server.URL)

	if _, err := client.Search(context.Background(), "84"); err == nil {
		t.Error("Expected error for unreachable upstream")
	}

	if _, err := client.ChapterLookup(context.Background(), "8407"); err == nil {
		t.Error("Expected error for unreachable upstream")
	}
}

// Test concession search validates the by-law number locally
func TestClient_ConcessionSearchInvalidBylaw(t *testing.T) {
	var searchHits atomic.Int32
	server := newTariffServer(t, nil, nil, &searchHits)
	defer server.Close()

	client := newTestClient(server.URL)

	result, err := client.ConcessionSearch(context.Background(), "12ab")
	if err != nil {
		t.Fatalf("ConcessionSearch failed: %v", err)
	}

	if len(result.Results) != 0 {
		t.Errorf("Expected no results, got %d", len(result.Results))
	}

	if result.Content != "invalid by-law number" {
		t.Errorf("Expected invalid by-law content, got %q", result.Content)
	}

	if searchHits.Load() != 0 {
		t.Error("Expected no upstream request for invalid by-law number")
	}
}

// Test concession search passes the configured book reference
func TestClient_ConcessionSearch(t *testing.T) {
	server := newTariffServer(t, nil, nil, nil)
	defer server.Close()

	client := newTestClient(server.URL)

	result, err := client.ConcessionSearch(context.Background(), "1234567")
	if err != nil {
		t.Fatalf("ConcessionSearch failed: %v", err)
	}

	if len(result.Results) != 1 {
		t.Fatalf("Expected 1 result, got %d", len(result.Results))
	}

	if result.Results[0].Heading != "Item 50" {
		t.Errorf("Expected Item 50, got %s", result.Results[0].Heading)
	}
}

// Test concession text formatting
func TestClient_ConcessionText(t *testing.T) {
	server := newTariffServer(t, nil, nil, nil)
	defer server.Close()

	client := newTestClient(server.URL)

	text, err := client.ConcessionText(context.Background(), "1234567")
	if err != nil {
		t.Fatalf("ConcessionText failed: %v", err)
	}

	expected := "Schedule 4 by-law 1234567: Item 50: Goods for use in aircraft"
	if text != expected {
		t.Errorf("Expected %q, got %q", expected, text)
	}
}

// Test concession text is empty when nothing is found
func TestClient_ConcessionTextNoResults(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"results":[]}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL)

	text, err := client.ConcessionText(context.Background(), "42")
	if err != nil {
		t.Fatalf("ConcessionText failed: %v", err)
	}
	if text != "" {
		t.Errorf("Expected empty text, got %q", text)
	}

	// Invalid numbers also resolve to no concession.
	text, err = client.ConcessionText(context.Background(), "not-a-number")
	if err != nil {
		t.Fatalf("ConcessionText failed: %v", err)
	}
	if text != "" {
		t.Errorf("Expected empty text for invalid by-law, got %q", text)
	}
}

// Test defaults applied by NewClient
func TestNewClient_Defaults(t *testing.T) {
	client := NewClient(ClientConfig{})

	if client.baseURL != DefaultBaseURL {
		t.Errorf("Expected default base URL, got %s", client.baseURL)
	}

	if client.bookRef != DefaultBookRef {
		t.Errorf("Expected default book ref, got %s", client.bookRef)
	}

	if client.httpClient.Timeout != defaultTimeout {
		t.Errorf("Expected default timeout, got %v", client.httpClient.Timeout)
	}
}
