package repositories

import (
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/jnakagawa/loggy/internal/database/models"
)

// StatsRepository tracks per-source capture counters.
type StatsRepository interface {
	RecordCaptures(sourceID string, n int64, at time.Time) error
	FindAll() (map[string]models.SourceStat, error)
	Delete(sourceID string) error
}

type statsRepo struct {
	db *gorm.DB
}

func NewStatsRepository(db *gorm.DB) StatsRepository {
	return &statsRepo{db: db}
}

// RecordCaptures bumps the counter for a source, inserting the row on
// first capture.
func (r *statsRepo) RecordCaptures(sourceID string, n int64, at time.Time) error {
	stat := models.SourceStat{
		SourceID:       sourceID,
		Captures:       n,
		LastCapturedAt: &at,
		UpdatedAt:      at,
	}
	return r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "source_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"captures":         gorm.Expr("captures + ?", n),
			"last_captured_at": at,
			"updated_at":       at,
		}),
	}).Create(&stat).Error
}

func (r *statsRepo) FindAll() (map[string]models.SourceStat, error) {
	var stats []models.SourceStat
	if err := r.db.Find(&stats).Error; err != nil {
		return nil, err
	}
	out := make(map[string]models.SourceStat, len(stats))
	for _, s := range stats {
		out[s.SourceID] = s
	}
	return out, nil
}

func (r *statsRepo) Delete(sourceID string) error {
	return r.db.Delete(&models.SourceStat{}, "source_id = ?", sourceID).Error
}
