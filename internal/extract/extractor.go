// MIT License
//
// Copyright (c) 2026 jnakagawa
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.
//
package extract

import (
	"bytes"
	"net/url"
	"time"
	"unicode/utf8"

	json "github.com/goccy/go-json"

	"github.com/google/uuid"
	"github.com/mileusna/useragent"
	"github.com/pterm/pterm"

	"github.com/jnakagawa/loggy/internal/events"
	"github.com/jnakagawa/loggy/internal/sources"
)

// Probe orders for schema-agnostic extraction. Checked in sequence; the
// first hit wins.
var (
	batchProbes = []string{"batch", "events", "data", "items", "records", "hits", "b"}

	eventNameProbes = []string{
		"event", "eventName", "event_name", "name", "action", "code",
		"en", "e", "a", "type", "t",
	}

	userIDProbes = []string{"userId", "user_id", "uid"}
	anonIDProbes = []string{"anonymousId", "anonymous_id", "anonId"}

	propertyProbes = []string{
		"properties", "props", "event_data", "data", "payload", "params", "attributes",
	}
)

// metadataKeys are excluded when an event's own keys double as its
// properties. The consumed event-name key is excluded separately.
var metadataKeys = func() map[string]bool {
	m := map[string]bool{"id": true, "context": true}
	for _, k := range timestampProbes {
		m[k] = true
	}
	for _, k := range userIDProbes {
		m[k] = true
	}
	for _, k := range anonIDProbes {
		m[k] = true
	}
	return m
}()

// Extractor turns decoded request bodies into normalized captured events
// using the matching source's extraction hints.
type Extractor struct {
	logger *pterm.Logger
}

// New creates an extractor.
func New(logger *pterm.Logger) *Extractor {
	return &Extractor{logger: logger}
}

// Extract parses a decompressed body and produces zero or more events.
// Never returns an error and never panics: inspection failures must not
// affect the proxied request, so every failure path degrades to an empty
// result with a log line (debug for unparseable bodies, warn for a
// recovered panic).
func (x *Extractor) Extract(body []byte, src *sources.Source, requestURL, userAgent string) (out []events.CapturedEvent) {
	defer func() {
		if r := recover(); r != nil {
			x.logger.WithCaller().Warn("Extractor panic swallowed",
				x.logger.Args("source", src.ID, "url", requestURL, "panic", r))
			out = nil
		}
	}()

	payload := decode(body)
	if payload == nil {
		x.logger.Debug("Unparseable payload", x.logger.Args("source", src.ID, "url", requestURL))
		return nil
	}

	now := time.Now().UTC().Format(time.RFC3339)

	for _, raw := range locateEvents(payload, src) {
		out = append(out, x.assemble(raw, payload, src, requestURL, userAgent, now))
	}
	return out
}

// decode tries JSON first, then x-www-form-urlencoded. Returns nil when
// neither yields anything.
func decode(body []byte) interface{} {
	if len(body) == 0 {
		return nil
	}

	var payload interface{}
	if err := json.Unmarshal(body, &payload); err == nil {
		return payload
	}

	// Form fallback. ParseQuery accepts almost anything, so require at
	// least one key=value pair of valid UTF-8 before believing it.
	if !utf8.Valid(body) || !bytes.ContainsRune(body, '=') {
		return nil
	}
	values, err := url.ParseQuery(string(body))
	if err != nil || len(values) == 0 {
		return nil
	}
	form := make(map[string]interface{}, len(values))
	for key, vals := range values {
		if len(vals) == 1 {
			form[key] = vals[0]
		} else {
			form[key] = vals
		}
	}
	return form
}

// locateEvents finds the batch array: the source's batch path first, then
// well-known batch keys, then the payload itself if it is an array.
// Anything else is treated as one event.
func locateEvents(payload interface{}, src *sources.Source) []interface{} {
	if m, ok := payload.(map[string]interface{}); ok {
		if src.BatchPath != "" {
			if v, ok := Resolve(m, src.BatchPath); ok {
				if arr, ok := v.([]interface{}); ok {
					return arr
				}
			}
		}
		for _, key := range batchProbes {
			if arr, ok := m[key].([]interface{}); ok {
				return arr
			}
		}
		return []interface{}{payload}
	}

	if arr, ok := payload.([]interface{}); ok {
		return arr
	}
	return []interface{}{payload}
}

func (x *Extractor) assemble(raw, outer interface{}, src *sources.Source, requestURL, userAgent, now string) events.CapturedEvent {
	eventMap, _ := raw.(map[string]interface{})
	outerMap, _ := outer.(map[string]interface{})

	name, nameKey := extractEventName(eventMap, src)

	timestamp := now
	if ts, ok := extractTimestamp(eventMap, outerMap, src); ok {
		timestamp = ts
	}

	userID, anonID := extractIdentity(eventMap, outerMap, src)

	return events.CapturedEvent{
		ID:          uuid.NewString(),
		Timestamp:   timestamp,
		Event:       name,
		Properties:  extractProperties(eventMap, src, nameKey),
		Context:     extractContext(eventMap, outerMap, userAgent),
		UserID:      userID,
		AnonymousID: anonID,
		Type:        "track",
		SourceID:    src.ID,
		SourceName:  src.Name,
		SourceIcon:  src.Icon,
		SourceColor: src.Color,
		RawPayload:  raw,
		Metadata: events.Metadata{
			URL:        requestURL,
			CapturedAt: now,
		},
	}
}

// extractEventName resolves the configured path, then the probe list.
// Also returns the top-level key that supplied the name so the properties
// fallback can exclude it.
func extractEventName(event map[string]interface{}, src *sources.Source) (string, string) {
	if event == nil {
		return "unknown", ""
	}

	if path := src.EventNamePathOrMapping(); path != "" {
		if v, ok := Resolve(event, path); ok {
			if s, ok := v.(string); ok && s != "" {
				return s, topKey(path)
			}
		}
	}

	for _, key := range eventNameProbes {
		if s, ok := event[key].(string); ok && s != "" {
			return s, key
		}
	}
	return "unknown", ""
}

func extractTimestamp(event, outer map[string]interface{}, src *sources.Source) (string, bool) {
	if path := src.TimestampPath(); path != "" && event != nil {
		if v, ok := Resolve(event, path); ok {
			if ts, ok := NormalizeTimestamp(v); ok {
				return ts, true
			}
		}
	}
	for _, scope := range []map[string]interface{}{event, outer} {
		if scope == nil {
			continue
		}
		for _, key := range timestampProbes {
			if v, ok := scope[key]; ok {
				if ts, ok := NormalizeTimestamp(v); ok {
					return ts, true
				}
			}
		}
	}
	return "", false
}

// extractIdentity probes the event first and falls back to the outer
// payload, where batch formats like Segment put shared identity.
func extractIdentity(event, outer map[string]interface{}, src *sources.Source) (string, string) {
	var userID, anonID string

	if path := src.UserIDPath(); path != "" && event != nil {
		if v, ok := Resolve(event, path); ok {
			if s, ok := v.(string); ok {
				userID = s
			}
		}
	}

	for _, scope := range []map[string]interface{}{event, outer} {
		if scope == nil {
			continue
		}
		if userID == "" {
			for _, key := range userIDProbes {
				if s, ok := scope[key].(string); ok && s != "" {
					userID = s
					break
				}
			}
		}
		if anonID == "" {
			for _, key := range anonIDProbes {
				if s, ok := scope[key].(string); ok && s != "" {
					anonID = s
					break
				}
			}
		}
	}
	return userID, anonID
}

func extractProperties(event map[string]interface{}, src *sources.Source, consumedNameKey string) map[string]interface{} {
	if event == nil {
		return map[string]interface{}{}
	}

	if path := src.PropertyContainerPath(); path != "" {
		if v, ok := Resolve(event, path); ok {
			if m, ok := v.(map[string]interface{}); ok {
				return m
			}
		}
	}

	for _, key := range propertyProbes {
		if m, ok := event[key].(map[string]interface{}); ok {
			return m
		}
	}

	// No container: the event's own keys are the properties, minus
	// whatever was already consumed as metadata.
	props := make(map[string]interface{})
	for k, v := range event {
		if metadataKeys[k] || k == consumedNameKey {
			continue
		}
		props[k] = v
	}
	return props
}

func extractContext(event, outer map[string]interface{}, userAgent string) map[string]interface{} {
	for _, scope := range []map[string]interface{}{event, outer} {
		if scope == nil {
			continue
		}
		if m, ok := scope["context"].(map[string]interface{}); ok {
			return m
		}
	}

	// Nothing in the payload: synthesize a minimal client context from the
	// request User-Agent.
	if userAgent == "" {
		return nil
	}
	ua := useragent.Parse(userAgent)
	ctx := map[string]interface{}{
		"userAgent": userAgent,
	}
	if ua.Name != "" {
		ctx["browser"] = ua.Name
	}
	if ua.OS != "" {
		ctx["os"] = ua.OS
	}
	if ua.Device != "" {
		ctx["device"] = ua.Device
	}
	return ctx
}

// topKey returns the first key segment of a path ("events[0].name" ->
// "events"), used for property exclusion after name consumption.
func topKey(path string) string {
	steps := parsePath(path)
	if len(steps) == 0 {
		return ""
	}
	return steps[0].key
}
