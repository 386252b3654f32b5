package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/Phat0101/AI-classifier/classification"
	"github.com/Phat0101/AI-classifier/database"
)

type mockClassifier struct {
	errs  map[string]error // item id -> error to return
	calls []string
}

func (m *mockClassifier) Classify(ctx context.Context, item classification.Item) (*classification.Result, error) {
	m.calls = append(m.calls, item.ID)
	if err, ok := m.errs[item.ID]; ok {
		return nil, err
	}
	link := classification.TCOLink("8407.21.00")
	return &classification.Result{
		ID:                    item.ID,
		Description:           item.Description,
		BestSuggestedHSCode:   "8407.21.00",
		BestSuggestedStatCode: "11",
		BestSuggestedTCOLink:  &link,
		SuggestedCodes: []classification.SuggestedCode{
			{HSCode: "8407.21.00", StatCode: "11", TCOLink: &link},
		},
		Reasoning: "matched 2 of 2 terms",
	}, nil
}

type mockStore struct {
	created    map[string][]classification.Item
	sources    map[string]string
	statuses   map[string]database.Status
	statusErrs map[string]string
	itemStatus map[string]map[string]database.Status
	createErr  error
}

func newMockStore() *mockStore {
	return &mockStore{
		created:    make(map[string][]classification.Item),
		sources:    make(map[string]string),
		statuses:   make(map[string]database.Status),
		statusErrs: make(map[string]string),
		itemStatus: make(map[string]map[string]database.Status),
	}
}

func (m *mockStore) CreateRequest(requestID, source string, items []classification.Item) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.created[requestID] = items
	m.sources[requestID] = source
	m.statuses[requestID] = database.StatusPending
	return nil
}

func (m *mockStore) UpdateRequestStatus(requestID string, status database.Status, errorMsg string) error {
	m.statuses[requestID] = status
	m.statusErrs[requestID] = errorMsg
	return nil
}

func (m *mockStore) StoreItemResult(requestID string, result *classification.Result, status database.Status) error {
	if m.itemStatus[requestID] == nil {
		m.itemStatus[requestID] = make(map[string]database.Status)
	}
	m.itemStatus[requestID][result.ID] = status
	return nil
}

// requestID returns the single request id the handler created.
func (m *mockStore) requestID(t *testing.T) string {
	t.Helper()
	if len(m.created) != 1 {
		t.Fatalf("Expected exactly one stored request, got %d", len(m.created))
	}
	for id := range m.created {
		return id
	}
	return ""
}

type mockEnqueuer struct {
	enqueued []string
	full     bool
}

func (m *mockEnqueuer) EnqueueRequest(requestID string) bool {
	if m.full {
		return false
	}
	m.enqueued = append(m.enqueued, requestID)
	return true
}

const classifyBody = `{"items": [
	{"id": "item-1", "description": "wooden office desk"},
	{"id": "item-2", "description": "outboard marine motor"}
]}`

// Full synchronous round trip: both items classified, results returned
// inline, request persisted as completed.
func TestClassifyHandler(t *testing.T) {
	engine := &mockClassifier{}
	store := newMockStore()
	handler := ClassifyHandler(engine, store)

	req := httptest.NewRequest(http.MethodPost, "/api/classify", strings.NewReader(classifyBody))
	w := httptest.NewRecorder()
	handler(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status code %d, got %d: %s", http.StatusOK, w.Code, w.Body.String())
	}

	var response classification.Response
	if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
		t.Fatalf("Failed to decode JSON response: %v", err)
	}

	if len(response.Results) != 2 {
		t.Fatalf("Expected 2 results, got %d", len(response.Results))
	}

	if response.Results[0].ID != "item-1" || response.Results[1].ID != "item-2" {
		t.Errorf("Results out of order: %s, %s", response.Results[0].ID, response.Results[1].ID)
	}

	if response.Results[0].BestSuggestedHSCode != "8407.21.00" {
		t.Errorf("Expected best code 8407.21.00, got %q", response.Results[0].BestSuggestedHSCode)
	}

	requestID := store.requestID(t)
	if store.sources[requestID] != "sync" {
		t.Errorf("Expected source sync, got %q", store.sources[requestID])
	}
	if store.statuses[requestID] != database.StatusCompleted {
		t.Errorf("Expected request completed, got %s", store.statuses[requestID])
	}
	if store.itemStatus[requestID]["item-1"] != database.StatusCompleted {
		t.Errorf("Expected item-1 stored completed, got %s", store.itemStatus[requestID]["item-1"])
	}
	if store.itemStatus[requestID]["item-2"] != database.StatusCompleted {
		t.Errorf("Expected item-2 stored completed, got %s", store.itemStatus[requestID]["item-2"])
	}
}

// Items without matches come back as no-match results, not errors.
func TestClassifyHandlerNoMatch(t *testing.T) {
	engine := &mockClassifier{errs: map[string]error{"item-2": classification.ErrNoMatch}}
	store := newMockStore()
	handler := ClassifyHandler(engine, store)

	req := httptest.NewRequest(http.MethodPost, "/api/classify", strings.NewReader(classifyBody))
	w := httptest.NewRecorder()
	handler(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status code %d, got %d: %s", http.StatusOK, w.Code, w.Body.String())
	}

	var response classification.Response
	if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
		t.Fatalf("Failed to decode JSON response: %v", err)
	}

	if len(response.Results) != 2 {
		t.Fatalf("Expected 2 results, got %d", len(response.Results))
	}

	if response.Results[1].BestSuggestedHSCode != "" {
		t.Errorf("Expected empty best code for no-match item, got %q", response.Results[1].BestSuggestedHSCode)
	}
	if response.Results[1].Reasoning == "" {
		t.Error("Expected explanatory reasoning on the no-match result")
	}

	requestID := store.requestID(t)
	if store.itemStatus[requestID]["item-2"] != database.StatusNoMatch {
		t.Errorf("Expected item-2 stored no_match, got %s", store.itemStatus[requestID]["item-2"])
	}
	if store.statuses[requestID] != database.StatusCompleted {
		t.Errorf("Expected request completed, got %s", store.statuses[requestID])
	}
}

// Before the first reference sync the endpoint reports unavailable and the
// stored request is marked failed so the refresh job retries it.
func TestClassifyHandlerNoReference(t *testing.T) {
	engine := &mockClassifier{errs: map[string]error{"item-1": classification.ErrNoReference}}
	store := newMockStore()
	handler := ClassifyHandler(engine, store)

	req := httptest.NewRequest(http.MethodPost, "/api/classify", strings.NewReader(classifyBody))
	w := httptest.NewRecorder()
	handler(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("Expected status code %d, got %d", http.StatusServiceUnavailable, w.Code)
	}

	requestID := store.requestID(t)
	if store.statuses[requestID] != database.StatusFailed {
		t.Errorf("Expected request failed, got %s", store.statuses[requestID])
	}
	if !strings.Contains(store.statusErrs[requestID], "tariff reference not loaded") {
		t.Errorf("Unexpected status error: %q", store.statusErrs[requestID])
	}
}

// Unexpected engine errors mark the request failed and return a 500.
func TestClassifyHandlerEngineError(t *testing.T) {
	engine := &mockClassifier{errs: map[string]error{"item-1": errors.New("index corrupted")}}
	store := newMockStore()
	handler := ClassifyHandler(engine, store)

	req := httptest.NewRequest(http.MethodPost, "/api/classify", strings.NewReader(classifyBody))
	w := httptest.NewRecorder()
	handler(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("Expected status code %d, got %d", http.StatusInternalServerError, w.Code)
	}

	requestID := store.requestID(t)
	if store.statuses[requestID] != database.StatusFailed {
		t.Errorf("Expected request failed, got %s", store.statuses[requestID])
	}
}

func TestClassifyHandlerBadRequests(t *testing.T) {
	oversized := classification.Request{}
	for i := 0; i < maxItemsPerRequest+1; i++ {
		oversized.Items = append(oversized.Items, classification.Item{
			ID:          strconv.Itoa(i + 1),
			Description: "widget",
		})
	}
	oversizedBody, err := json.Marshal(oversized)
	if err != nil {
		t.Fatalf("Failed to marshal oversized request: %v", err)
	}

	cases := []struct {
		name string
		body string
	}{
		{"malformed JSON", `{"items": [`},
		{"missing items", `{}`},
		{"empty items", `{"items": []}`},
		{"blank description", `{"items": [{"id": "a", "description": "   "}]}`},
		{"duplicate item ids", `{"items": [{"id": "a", "description": "bolts"}, {"id": "a", "description": "nuts"}]}`},
		{"too many items", string(oversizedBody)},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			engine := &mockClassifier{}
			store := newMockStore()
			handler := ClassifyHandler(engine, store)

			req := httptest.NewRequest(http.MethodPost, "/api/classify", strings.NewReader(tc.body))
			w := httptest.NewRecorder()
			handler(w, req)

			if w.Code != http.StatusBadRequest {
				t.Errorf("Expected status code %d, got %d", http.StatusBadRequest, w.Code)
			}
			if len(store.created) != 0 {
				t.Error("Invalid request must not be persisted")
			}
			if len(engine.calls) != 0 {
				t.Error("Invalid request must not reach the engine")
			}
		})
	}
}

func TestClassifyHandlerMethodNotAllowed(t *testing.T) {
	handler := ClassifyHandler(&mockClassifier{}, newMockStore())

	req := httptest.NewRequest(http.MethodGet, "/api/classify", nil)
	w := httptest.NewRecorder()
	handler(w, req)

	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("Expected status code %d, got %d", http.StatusMethodNotAllowed, w.Code)
	}
}

// Async submissions persist the request, enqueue it, and return 202 with
// the id for later polling.
func TestClassifyAsyncHandler(t *testing.T) {
	store := newMockStore()
	queue := &mockEnqueuer{}
	handler := ClassifyAsyncHandler(store, queue)

	req := httptest.NewRequest(http.MethodPost, "/api/classify/async", strings.NewReader(classifyBody))
	w := httptest.NewRecorder()
	handler(w, req)

	if w.Code != http.StatusAccepted {
		t.Fatalf("Expected status code %d, got %d: %s", http.StatusAccepted, w.Code, w.Body.String())
	}

	var response map[string]string
	if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
		t.Fatalf("Failed to decode JSON response: %v", err)
	}

	if response["request_id"] == "" {
		t.Fatal("Expected a request_id in the response")
	}
	if response["status"] != "pending" {
		t.Errorf("Expected status pending, got %q", response["status"])
	}

	if store.sources[response["request_id"]] != "async" {
		t.Errorf("Expected source async, got %q", store.sources[response["request_id"]])
	}

	if len(queue.enqueued) != 1 || queue.enqueued[0] != response["request_id"] {
		t.Errorf("Expected the stored request to be enqueued, got %v", queue.enqueued)
	}
}

// A full queue marks the stored request failed so the next reference
// refresh picks it back up, and tells the client to retry.
func TestClassifyAsyncHandlerQueueFull(t *testing.T) {
	store := newMockStore()
	queue := &mockEnqueuer{full: true}
	handler := ClassifyAsyncHandler(store, queue)

	req := httptest.NewRequest(http.MethodPost, "/api/classify/async", strings.NewReader(classifyBody))
	w := httptest.NewRecorder()
	handler(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("Expected status code %d, got %d", http.StatusServiceUnavailable, w.Code)
	}

	requestID := store.requestID(t)
	if store.statuses[requestID] != database.StatusFailed {
		t.Errorf("Expected request failed, got %s", store.statuses[requestID])
	}
	if store.statusErrs[requestID] != "classification queue full" {
		t.Errorf("Unexpected status error: %q", store.statusErrs[requestID])
	}
}

func TestClassifyAsyncHandlerRejectsInvalid(t *testing.T) {
	store := newMockStore()
	queue := &mockEnqueuer{}
	handler := ClassifyAsyncHandler(store, queue)

	req := httptest.NewRequest(http.MethodPost, "/api/classify/async", strings.NewReader(`{"items": []}`))
	w := httptest.NewRecorder()
	handler(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status code %d, got %d", http.StatusBadRequest, w.Code)
	}
	if len(store.created) != 0 {
		t.Error("Invalid request must not be persisted")
	}
	if len(queue.enqueued) != 0 {
		t.Error("Invalid request must not be enqueued")
	}
}

func TestValidateRequestFillsItemIDs(t *testing.T) {
	req := classification.Request{Items: []classification.Item{
		{Description: "wooden office desk"},
		{Description: "outboard marine motor"},
	}}

	if err := validateRequest(&req); err != nil {
		t.Fatalf("Expected request to validate, got %v", err)
	}

	if req.Items[0].ID != "1" || req.Items[1].ID != "2" {
		t.Errorf("Expected ordinal ids, got %q and %q", req.Items[0].ID, req.Items[1].ID)
	}
}
