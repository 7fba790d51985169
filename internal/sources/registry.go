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
package sources

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/pterm/pterm"
)

// analyticsPathHints are the path substrings that make an unmatched POST
// look like analytics traffic worth surfacing to the user.
var analyticsPathHints = []string{
	"/analytics", "/events", "/track", "/collect", "/log", "/beacon",
	"/v1/batch", "/v1/track", "/evs", "/telemetry", "/metrics",
}

// UnmatchedEntry records repeated analytics-looking traffic to a domain no
// source covers yet.
type UnmatchedEntry struct {
	Domain      string    `json:"domain"`
	ExampleURL  string    `json:"exampleUrl"`
	LastPayload string    `json:"lastPayload,omitempty"`
	Count       int64     `json:"count"`
	FirstSeen   time.Time `json:"firstSeen"`
	LastSeen    time.Time `json:"lastSeen"`
}

// UnmatchedStore persists unmatched-domain observations across restarts.
// The registry works fine with a nil store.
type UnmatchedStore interface {
	UpsertUnmatched(entry *UnmatchedEntry) error
	DeleteUnmatched(domain string) error
	ClearUnmatched() error
}

// Registry holds the ordered source rules and the unmatched-domain
// feedback map. The match path is read-heavy and never blocks other
// readers; mutations are serialized.
type Registry struct {
	mu      sync.RWMutex
	sources []Source

	unmu      sync.Mutex
	unmatched map[string]*UnmatchedEntry

	store  UnmatchedStore
	logger *pterm.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *pterm.Logger) *Registry {
	return &Registry{
		unmatched: make(map[string]*UnmatchedEntry),
		logger:    logger,
	}
}

// SetUnmatchedStore attaches write-through persistence for unmatched
// observations. Call before traffic starts.
func (r *Registry) SetUnmatchedStore(store UnmatchedStore) {
	r.store = store
}

// SeedUnmatched preloads previously persisted observations.
func (r *Registry) SeedUnmatched(entries []UnmatchedEntry) {
	r.unmu.Lock()
	defer r.unmu.Unlock()
	for i := range entries {
		e := entries[i]
		r.unmatched[e.Domain] = &e
	}
}

// Sources returns a snapshot of the current rules in insertion order.
func (r *Registry) Sources() []Source {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Source, len(r.sources))
	copy(out, r.sources)
	return out
}

// Replace swaps the whole rule set (the extension's full-sync operation).
// Domains are normalized and newly covered unmatched entries are dropped.
func (r *Registry) Replace(list []Source) {
	normalized := make([]Source, len(list))
	copy(normalized, list)
	for i := range normalized {
		normalized[i].Normalize()
		normalized[i].Stats = nil
	}

	r.mu.Lock()
	r.sources = normalized
	r.mu.Unlock()

	for i := range normalized {
		r.clearUnmatchedFor(normalized[i].Domain)
	}

	r.logger.Info("Source list replaced", r.logger.Args("count", len(normalized)))
}

// Add appends one source and clears any unmatched entry its domain covers.
func (r *Registry) Add(s Source) error {
	s.Normalize()
	s.Stats = nil

	r.mu.Lock()
	for i := range r.sources {
		if r.sources[i].ID == s.ID {
			r.mu.Unlock()
			return fmt.Errorf("source %q already exists", s.ID)
		}
	}
	r.sources = append(r.sources, s)
	r.mu.Unlock()

	r.clearUnmatchedFor(s.Domain)
	return nil
}

// Update replaces the source with the same id in place, preserving order.
func (r *Registry) Update(s Source) error {
	s.Normalize()
	s.Stats = nil

	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.sources {
		if r.sources[i].ID == s.ID {
			r.sources[i] = s
			return nil
		}
	}
	return fmt.Errorf("source %q not found", s.ID)
}

// Remove deletes the source with the given id.
func (r *Registry) Remove(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.sources {
		if r.sources[i].ID == id {
			r.sources = append(r.sources[:i], r.sources[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("source %q not found", id)
}

// Match classifies a URL against the rule set. Among matching enabled
// sources the most specific wins: any url_pattern beats domain-only, and a
// pattern with more literal characters beats a looser one. Ties break by
// insertion order, which makes the result deterministic for any snapshot.
func (r *Registry) Match(rawURL string) *Source {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	best := -1
	bestScore := 0
	for i := range r.sources {
		if !r.sources[i].Matches(u) {
			continue
		}
		score := specificity(&r.sources[i])
		if score > bestScore {
			best, bestScore = i, score
		}
	}
	if best < 0 {
		return nil
	}

	matched := r.sources[best]
	return &matched
}

// specificity ranks a matching source. Domain-only rules score 1; any
// pattern rule outscores them, and within pattern rules more literal
// (non-wildcard) characters mean a tighter match.
func specificity(s *Source) int {
	if s.URLPattern == "" {
		return 1
	}
	literals := 0
	for _, c := range s.URLPattern {
		if c != '*' {
			literals++
		}
	}
	return 100 + literals
}

// IsAnalyticsPath reports whether the path looks like an analytics
// endpoint, per the fixed heuristic substring list.
func IsAnalyticsPath(path string) bool {
	lower := strings.ToLower(path)
	for _, hint := range analyticsPathHints {
		if strings.Contains(lower, hint) {
			return true
		}
	}
	return false
}

// TrackUnmatched records an analytics-looking request that no source
// matched. Keyed by base domain; repeated sightings merge. Non-analytics
// paths are ignored entirely.
func (r *Registry) TrackUnmatched(rawURL string, payload []byte) {
	u, err := url.Parse(rawURL)
	if err != nil || !IsAnalyticsPath(u.Path) {
		return
	}

	domain := BaseDomain(u.Hostname())
	if domain == "" {
		return
	}

	now := time.Now().UTC()

	r.unmu.Lock()
	entry, ok := r.unmatched[domain]
	if !ok {
		entry = &UnmatchedEntry{Domain: domain, FirstSeen: now}
		r.unmatched[domain] = entry
	}
	entry.Count++
	entry.ExampleURL = rawURL
	entry.LastSeen = now
	if len(payload) > 0 {
		entry.LastPayload = truncatePayload(payload, 2048)
	}
	snapshot := *entry
	r.unmu.Unlock()

	if r.store != nil {
		if err := r.store.UpsertUnmatched(&snapshot); err != nil {
			r.logger.Debug("Failed to persist unmatched domain",
				r.logger.Args("domain", domain, "error", err))
		}
	}
}

// Unmatched returns observations sorted by count, most frequent first.
func (r *Registry) Unmatched() []UnmatchedEntry {
	r.unmu.Lock()
	out := make([]UnmatchedEntry, 0, len(r.unmatched))
	for _, e := range r.unmatched {
		out = append(out, *e)
	}
	r.unmu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Domain < out[j].Domain
	})
	return out
}

// UnmatchedMap returns the observations keyed by domain, for the API.
func (r *Registry) UnmatchedMap() map[string]UnmatchedEntry {
	r.unmu.Lock()
	defer r.unmu.Unlock()
	out := make(map[string]UnmatchedEntry, len(r.unmatched))
	for k, e := range r.unmatched {
		out[k] = *e
	}
	return out
}

// ClearUnmatched drops every observation, in memory and persisted.
func (r *Registry) ClearUnmatched() {
	r.unmu.Lock()
	r.unmatched = make(map[string]*UnmatchedEntry)
	r.unmu.Unlock()

	if r.store != nil {
		if err := r.store.ClearUnmatched(); err != nil {
			r.logger.Debug("Failed to clear persisted unmatched domains",
				r.logger.Args("error", err))
		}
	}
}

func (r *Registry) clearUnmatchedFor(domain string) {
	r.unmu.Lock()
	_, had := r.unmatched[domain]
	delete(r.unmatched, domain)
	r.unmu.Unlock()

	if had && r.store != nil {
		if err := r.store.DeleteUnmatched(domain); err != nil {
			r.logger.Debug("Failed to delete persisted unmatched domain",
				r.logger.Args("domain", domain, "error", err))
		}
	}
}

func truncatePayload(payload []byte, max int) string {
	if len(payload) > max {
		payload = payload[:max]
	}
	return string(payload)
}
