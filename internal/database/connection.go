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
package database

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/pterm/pterm"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/jnakagawa/loggy/internal/database/models"
)

// unmatchedRetention bounds how long unmatched-domain observations are
// kept; stale rows are pruned at every proxy start.
const unmatchedRetention = 14 * 24 * time.Hour

// Open creates or opens the stats database and migrates the schema. The
// database holds only bookkeeping (capture counters, unmatched domains).
// A missing file is created; a file that cannot be opened or migrated is
// returned as an error, which the proxy treats as non-fatal.
func Open(path string, logger *pterm.Logger) (*gorm.DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: newQueryLogger(logger),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open stats database: %w", err)
	}

	if err := db.AutoMigrate(&models.SourceStat{}, &models.UnmatchedDomain{}); err != nil {
		return nil, fmt.Errorf("failed to migrate stats database: %w", err)
	}

	pruneStale(db, logger)

	logger.Debug("Stats database ready", logger.Args("path", path))
	return db, nil
}

// pruneStale drops unmatched observations past the retention window.
func pruneStale(db *gorm.DB, logger *pterm.Logger) {
	cutoff := time.Now().Add(-unmatchedRetention)
	res := db.Where("last_seen < ?", cutoff).Delete(&models.UnmatchedDomain{})
	if res.Error != nil {
		logger.Warn("Failed to prune stale unmatched domains", logger.Args("error", res.Error))
		return
	}
	if res.RowsAffected > 0 {
		logger.Debug("Pruned stale unmatched domains", logger.Args("rows", res.RowsAffected))
	}
}

// queryLogger routes gorm's logging through pterm. Failed and slow queries
// are logged at debug level so normal runs stay quiet; gorm's own
// info/warn/error messages keep their levels.
type queryLogger struct {
	logger *pterm.Logger
	level  gormlogger.LogLevel
}

func newQueryLogger(logger *pterm.Logger) gormlogger.Interface {
	return &queryLogger{logger: logger, level: gormlogger.Warn}
}

func (l *queryLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	l.level = level
	return l
}

func (l *queryLogger) Info(_ context.Context, msg string, data ...interface{}) {
	if l.level >= gormlogger.Info {
		l.logger.Info(msg, l.logger.Args("data", data))
	}
}

func (l *queryLogger) Warn(_ context.Context, msg string, data ...interface{}) {
	if l.level >= gormlogger.Warn {
		l.logger.Warn(msg, l.logger.Args("data", data))
	}
}

func (l *queryLogger) Error(_ context.Context, msg string, data ...interface{}) {
	if l.level >= gormlogger.Error {
		l.logger.Error(msg, l.logger.Args("data", data))
	}
}

func (l *queryLogger) Trace(_ context.Context, begin time.Time, fc func() (string, int64), err error) {
	if err != nil && err != gorm.ErrRecordNotFound {
		sql, _ := fc()
		l.logger.Debug("Query failed", l.logger.Args("sql", sql, "error", err))
		return
	}
	if elapsed := time.Since(begin); elapsed > 200*time.Millisecond {
		sql, rows := fc()
		l.logger.Debug("Slow query",
			l.logger.Args("duration_ms", elapsed.Milliseconds(), "rows", rows, "sql", sql))
	}
}
