package repositories

import (
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/jnakagawa/loggy/internal/database/models"
	"github.com/jnakagawa/loggy/internal/sources"
)

// UnmatchedRepository persists unmatched-domain observations. It satisfies
// sources.UnmatchedStore so the registry can write through.
type UnmatchedRepository interface {
	sources.UnmatchedStore
	FindAll() ([]sources.UnmatchedEntry, error)
}

type unmatchedRepo struct {
	db *gorm.DB
}

func NewUnmatchedRepository(db *gorm.DB) UnmatchedRepository {
	return &unmatchedRepo{db: db}
}

func (r *unmatchedRepo) UpsertUnmatched(entry *sources.UnmatchedEntry) error {
	row := models.UnmatchedDomain{
		Domain:      entry.Domain,
		ExampleURL:  entry.ExampleURL,
		LastPayload: entry.LastPayload,
		Count:       entry.Count,
		FirstSeen:   entry.FirstSeen,
		LastSeen:    entry.LastSeen,
	}
	return r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "domain"}},
		DoUpdates: clause.AssignmentColumns([]string{"example_url", "last_payload", "count", "last_seen"}),
	}).Create(&row).Error
}

func (r *unmatchedRepo) DeleteUnmatched(domain string) error {
	return r.db.Delete(&models.UnmatchedDomain{}, "domain = ?", domain).Error
}

func (r *unmatchedRepo) ClearUnmatched() error {
	return r.db.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&models.UnmatchedDomain{}).Error
}

func (r *unmatchedRepo) FindAll() ([]sources.UnmatchedEntry, error) {
	var rows []models.UnmatchedDomain
	if err := r.db.Order("count DESC").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]sources.UnmatchedEntry, 0, len(rows))
	for _, row := range rows {
		out = append(out, sources.UnmatchedEntry{
			Domain:      row.Domain,
			ExampleURL:  row.ExampleURL,
			LastPayload: row.LastPayload,
			Count:       row.Count,
			FirstSeen:   row.FirstSeen,
			LastSeen:    row.LastSeen,
		})
	}
	return out, nil
}
