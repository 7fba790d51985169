package proxy

import (
	"bytes"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/pterm/pterm"

	"github.com/jnakagawa/loggy/internal/events"
	"github.com/jnakagawa/loggy/internal/extract"
	"github.com/jnakagawa/loggy/internal/sources"
)

func testInspector(t *testing.T, maxBody int64) (*Inspector, *events.Buffer, *sources.Registry) {
	t.Helper()
	logger := pterm.DefaultLogger.WithLevel(pterm.LogLevelError)

	registry := sources.NewRegistry(logger)
	registry.Replace(sources.Defaults())
	buffer := events.NewBuffer(100)
	inspector := NewInspector(registry, extract.New(logger), buffer, nil, maxBody, logger)
	return inspector, buffer, registry
}

func gzipCompress(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func postRequest(t *testing.T, url string, body []byte) *http.Request {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	return req
}

func TestInspector_RestoresBody(t *testing.T) {
	inspector, _, _ := testInspector(t, 1<<20)
	original := []byte(`{"batch":[{"event":"Viewed"}]}`)

	req := postRequest(t, "https://api.segment.io/v1/batch", original)
	inspector.InspectRequest(req)

	restored, err := io.ReadAll(req.Body)
	if err != nil {
		t.Fatalf("Failed to read restored body: %v", err)
	}
	if !bytes.Equal(restored, original) {
		t.Errorf("Body altered by inspection:\n got %q\nwant %q", restored, original)
	}
}

func TestInspector_RestoresCompressedBodyVerbatim(t *testing.T) {
	inspector, buffer, _ := testInspector(t, 1<<20)

	// gzip Mixpanel scenario: the event is captured, yet the upstream
	// body stays the original gzip bytes.
	plain := []byte(`{"event":"Login","properties":{"ok":true}}`)
	compressed := gzipCompress(t, plain)

	req := postRequest(t, "https://api.mixpanel.com/track", compressed)
	req.Header.Set("Content-Encoding", "gzip")
	inspector.InspectRequest(req)

	restored, _ := io.ReadAll(req.Body)
	if !bytes.Equal(restored, compressed) {
		t.Error("Upstream body must remain the original compressed bytes")
	}

	snap := buffer.Snapshot()
	if len(snap) != 1 {
		t.Fatalf("Expected 1 captured event, got %d", len(snap))
	}
	if snap[0].Event != "Login" {
		t.Errorf("Expected event 'Login', got %q", snap[0].Event)
	}
	if snap[0].Properties["ok"] != true {
		t.Errorf("Expected properties.ok true, got %v", snap[0].Properties["ok"])
	}
}

func TestInspector_CapturesSegmentBatch(t *testing.T) {
	inspector, buffer, _ := testInspector(t, 1<<20)
	body := []byte(`{"batch":[{"event":"Viewed","userId":"u1"},{"event":"Clicked","userId":"u1"}],"sentAt":"2024-01-01T00:00:00Z"}`)

	inspector.InspectRequest(postRequest(t, "https://api.segment.io/v1/batch", body))

	snap := buffer.Snapshot()
	if len(snap) != 2 {
		t.Fatalf("Expected 2 events, got %d", len(snap))
	}
	if snap[0].Event != "Viewed" || snap[1].Event != "Clicked" {
		t.Errorf("Expected batch order preserved, got %q, %q", snap[0].Event, snap[1].Event)
	}
	if snap[0].SourceID != "segment" || snap[0].UserID != "u1" {
		t.Errorf("Unexpected event attribution: %+v", snap[0])
	}
	if snap[0].Metadata.URL != "https://api.segment.io/v1/batch" {
		t.Errorf("Expected capture URL in metadata, got %q", snap[0].Metadata.URL)
	}
}

func TestInspector_UnmatchedHeuristic(t *testing.T) {
	inspector, buffer, registry := testInspector(t, 1<<20)

	inspector.InspectRequest(postRequest(t, "https://example.com/api/v1/track", []byte(`{"event":"x"}`)))

	if buffer.Len() != 0 {
		t.Errorf("Expected no captured events, got %d", buffer.Len())
	}
	unmatched := registry.Unmatched()
	if len(unmatched) != 1 || unmatched[0].Domain != "example.com" {
		t.Fatalf("Expected unmatched entry for example.com, got %+v", unmatched)
	}
	if unmatched[0].Count < 1 {
		t.Errorf("Expected count >= 1, got %d", unmatched[0].Count)
	}
}

func TestInspector_SkipsNonPostMethods(t *testing.T) {
	inspector, buffer, registry := testInspector(t, 1<<20)

	req, _ := http.NewRequest(http.MethodGet, "https://api.segment.io/v1/batch", nil)
	inspector.InspectRequest(req)

	if buffer.Len() != 0 || len(registry.Unmatched()) != 0 {
		t.Error("GET requests must not be inspected")
	}
}

func TestInspector_OversizedBodySkippedButForwarded(t *testing.T) {
	inspector, buffer, _ := testInspector(t, 64)

	big := []byte(`{"batch":[{"event":"` + strings.Repeat("x", 200) + `"}]}`)
	req := postRequest(t, "https://api.segment.io/v1/batch", big)
	inspector.InspectRequest(req)

	if buffer.Len() != 0 {
		t.Errorf("Expected oversized body to skip extraction, got %d events", buffer.Len())
	}

	restored, err := io.ReadAll(req.Body)
	if err != nil {
		t.Fatalf("Failed to read restored body: %v", err)
	}
	if !bytes.Equal(restored, big) {
		t.Error("Oversized body must still reach upstream byte-identical")
	}
}
