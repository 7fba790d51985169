package api

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	json "github.com/goccy/go-json"

	"github.com/pterm/pterm"

	"github.com/jnakagawa/loggy/internal/events"
	"github.com/jnakagawa/loggy/internal/sources"
)

func testServer(t *testing.T) (*Server, *events.Buffer, *sources.Registry) {
	t.Helper()
	logger := pterm.DefaultLogger.WithLevel(pterm.LogLevelError)

	buffer := events.NewBuffer(100)
	registry := sources.NewRegistry(logger)
	registry.Replace(sources.Defaults())

	s := NewServer(":0", buffer, registry, nil, nil, nil, logger)
	return s, buffer, registry
}

func doRequest(s *Server, method, path string, body []byte) *httptest.ResponseRecorder {
	var req *http.Request
	if body != nil {
		req = httptest.NewRequest(method, path, bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	s.http.Handler.ServeHTTP(rec, req)
	return rec
}

func TestAPI_EventsSnapshotConsistency(t *testing.T) {
	s, buffer, _ := testServer(t)

	buffer.Append(
		events.CapturedEvent{ID: "1", Event: "a", Type: "track"},
		events.CapturedEvent{ID: "2", Event: "b", Type: "track"},
	)

	rec := doRequest(s, http.MethodGet, "/events", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}

	var resp struct {
		Events           []events.CapturedEvent            `json:"events"`
		Count            int                               `json:"count"`
		UnmatchedDomains map[string]sources.UnmatchedEntry `json:"unmatchedDomains"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Response is not JSON: %v", err)
	}
	if resp.Count != len(resp.Events) {
		t.Errorf("count %d disagrees with events length %d", resp.Count, len(resp.Events))
	}
	if resp.Count != 2 {
		t.Errorf("Expected 2 events, got %d", resp.Count)
	}
}

func TestAPI_CORSHeaders(t *testing.T) {
	s, _, _ := testServer(t)

	rec := doRequest(s, http.MethodGet, "/events", nil)
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Expected permissive CORS origin, got %q", got)
	}

	rec = doRequest(s, http.MethodOptions, "/events", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("Expected 200 for OPTIONS preflight, got %d", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Methods"); got == "" {
		t.Error("Expected Allow-Methods header on preflight")
	}
}

func TestAPI_Clear(t *testing.T) {
	s, buffer, registry := testServer(t)

	buffer.Append(events.CapturedEvent{ID: "1", Event: "a"})
	registry.TrackUnmatched("https://example.com/v1/track", nil)

	rec := doRequest(s, http.MethodPost, "/clear", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}

	if buffer.Len() != 0 {
		t.Error("Expected buffer cleared")
	}
	if len(registry.Unmatched()) != 0 {
		t.Error("Expected unmatched map cleared")
	}
}

func TestAPI_SourcesSync(t *testing.T) {
	s, _, registry := testServer(t)

	newList := []sources.Source{
		{ID: "only", Name: "Only", Enabled: true, Domain: "only.example.com"},
	}
	body, _ := json.Marshal(newList)

	rec := doRequest(s, http.MethodPost, "/sources", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	got := registry.Sources()
	if len(got) != 1 || got[0].ID != "only" {
		t.Fatalf("Expected the synced list to replace the registry, got %+v", got)
	}
	if got[0].Domain != "example.com" {
		t.Errorf("Expected synced domain normalized, got %q", got[0].Domain)
	}

	rec = doRequest(s, http.MethodGet, "/sources", nil)
	var listed []sources.Source
	if err := json.Unmarshal(rec.Body.Bytes(), &listed); err != nil {
		t.Fatalf("GET /sources is not JSON: %v", err)
	}
	if len(listed) != 1 {
		t.Errorf("Expected 1 source from GET, got %d", len(listed))
	}
}

func TestAPI_SourcesSyncRejectsBadJSON(t *testing.T) {
	s, _, registry := testServer(t)
	before := len(registry.Sources())

	rec := doRequest(s, http.MethodPost, "/sources", []byte("{broken"))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d", rec.Code)
	}
	if len(registry.Sources()) != before {
		t.Error("Registry must be untouched on bad sync payloads")
	}
}

func TestAPI_Unmatched(t *testing.T) {
	s, _, registry := testServer(t)
	registry.TrackUnmatched("https://example.com/api/v1/track", []byte(`{"e":1}`))

	rec := doRequest(s, http.MethodGet, "/unmatched", nil)
	var resp map[string]sources.UnmatchedEntry
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Response is not JSON: %v", err)
	}
	entry, ok := resp["example.com"]
	if !ok {
		t.Fatalf("Expected an entry for example.com, got %v", resp)
	}
	if entry.Count < 1 {
		t.Errorf("Expected count >= 1, got %d", entry.Count)
	}
}

func TestAPI_UnknownRoute(t *testing.T) {
	s, _, _ := testServer(t)

	rec := doRequest(s, http.MethodGet, "/nope", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", rec.Code)
	}
}

func TestAPI_Status(t *testing.T) {
	s, buffer, _ := testServer(t)
	buffer.Append(events.CapturedEvent{ID: "1"})

	rec := doRequest(s, http.MethodGet, "/status", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}

	var resp map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Response is not JSON: %v", err)
	}
	if resp["eventCount"] != float64(1) {
		t.Errorf("Expected eventCount 1, got %v", resp["eventCount"])
	}
	if resp["version"] == "" {
		t.Error("Expected a version field")
	}
}
