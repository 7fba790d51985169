package models

import "time"

// SourceStat accumulates capture counters per source rule. Captured events
// themselves are never persisted; only these counters survive restarts.
type SourceStat struct {
	SourceID       string `gorm:"primaryKey;size:128"`
	Captures       int64
	LastCapturedAt *time.Time
	UpdatedAt      time.Time
}

// UnmatchedDomain is a persisted observation of analytics-looking traffic
// that no source rule covered.
type UnmatchedDomain struct {
	Domain      string `gorm:"primaryKey;size:255"`
	ExampleURL  string
	LastPayload string
	Count       int64
	FirstSeen   time.Time
	LastSeen    time.Time
}
