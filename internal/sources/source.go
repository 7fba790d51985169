package sources

import (
	"net/url"
	"strings"
	"time"
)

// Field mapping keys understood by the extractor.
const (
	MappingEventName         = "event_name"
	MappingTimestamp         = "timestamp"
	MappingUserID            = "user_id"
	MappingPropertyContainer = "property_container"
)

// Source is a declarative matcher for one analytics vendor's endpoint
// family, plus the hints the extractor needs to pull events out of its
// payloads. The JSON shape is the sync contract with the browser extension.
type Source struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Enabled bool   `json:"enabled"`
	Domain  string `json:"domain"`

	// URLPattern is an optional path glob: * matches within one path
	// segment, ** across segments. Empty means any path.
	URLPattern string `json:"urlPattern,omitempty"`

	// FieldMappings maps event_name / timestamp / user_id /
	// property_container to dotted JSON paths such as "events[0].name".
	FieldMappings map[string]string `json:"fieldMappings,omitempty"`

	// Legacy synonyms, still emitted by older extension builds.
	EventNamePath string `json:"eventNamePath,omitempty"`
	BatchPath     string `json:"batchPath,omitempty"`

	Icon  string `json:"icon,omitempty"`
	Color string `json:"color,omitempty"`

	// Stats is populated from the stats repository on read paths; it is
	// never part of the sync payload from the extension.
	Stats *SourceStats `json:"stats,omitempty"`
}

// SourceStats is the capture counter surfaced on GET /sources.
type SourceStats struct {
	Captures       int64      `json:"captures"`
	LastCapturedAt *time.Time `json:"lastCapturedAt,omitempty"`
}

// Normalize lowercases and base-domain-reduces the source domain so that
// "api.segment.io" matches any host under segment.io. Called on every
// registry ingest path.
func (s *Source) Normalize() {
	s.Domain = BaseDomain(strings.ToLower(strings.TrimSpace(s.Domain)))
}

// EventNamePathOrMapping returns the configured event-name path,
// preferring the field mapping over the legacy field.
func (s *Source) EventNamePathOrMapping() string {
	if p, ok := s.FieldMappings[MappingEventName]; ok && p != "" {
		return p
	}
	return s.EventNamePath
}

// TimestampPath is the resolver hint for timestamps, if mapped.
func (s *Source) TimestampPath() string { return s.FieldMappings[MappingTimestamp] }

// UserIDPath is the resolver hint for user ids, if mapped.
func (s *Source) UserIDPath() string { return s.FieldMappings[MappingUserID] }

// PropertyContainerPath is the resolver hint for the properties object.
func (s *Source) PropertyContainerPath() string { return s.FieldMappings[MappingPropertyContainer] }

// Matches reports whether the parsed URL belongs to this source.
func (s *Source) Matches(u *url.URL) bool {
	if !s.Enabled {
		return false
	}
	if BaseDomain(u.Hostname()) != s.Domain {
		return false
	}
	if s.URLPattern == "" {
		return true
	}
	return MatchGlob(u.Path, s.URLPattern)
}

// matchScore is a coarse two-level rank: 2 for a pattern rule, 1 for a
// domain-only rule. Registry.Match does not call it; it ranks candidates
// with specificity, which also orders pattern rules by literal length.
func (s *Source) matchScore() int {
	if s.URLPattern != "" {
		return 2
	}
	return 1
}
