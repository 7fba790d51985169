package api

import (
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jnakagawa/loggy/internal/sources"
	"github.com/jnakagawa/loggy/internal/version"
)

// handleEvents returns a consistent snapshot of the ring buffer plus the
// unmatched-domain feedback map.
func (s *Server) handleEvents(c *gin.Context) {
	evts := s.buffer.Snapshot()
	c.JSON(http.StatusOK, gin.H{
		"events":           evts,
		"count":            len(evts),
		"unmatchedDomains": s.registry.UnmatchedMap(),
	})
}

// handleClear empties the ring buffer and the unmatched map.
func (s *Server) handleClear(c *gin.Context) {
	s.buffer.Clear()
	s.registry.ClearUnmatched()
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// handleGetSources returns the current rules, decorated with persisted
// capture stats when the stats repository is available.
func (s *Server) handleGetSources(c *gin.Context) {
	list := s.registry.Sources()

	if s.stats != nil {
		if stats, err := s.stats.FindAll(); err == nil {
			for i := range list {
				if stat, ok := stats[list[i].ID]; ok {
					list[i].Stats = &sources.SourceStats{
						Captures:       stat.Captures,
						LastCapturedAt: stat.LastCapturedAt,
					}
				}
			}
		} else {
			s.logger.Debug("Failed to load source stats", s.logger.Args("error", err))
		}
	}

	c.JSON(http.StatusOK, list)
}

// handleSyncSources replaces the whole rule set (the extension's full
// sync) and persists it.
func (s *Server) handleSyncSources(c *gin.Context) {
	var list []sources.Source
	if err := c.ShouldBindJSON(&list); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid JSON"})
		return
	}

	s.registry.Replace(list)

	if s.store != nil {
		if err := s.store.Save(s.registry.Sources()); err != nil {
			s.logger.Warn("Failed to persist sources", s.logger.Args("error", err))
		}
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "count": len(list)})
}

// handleUnmatched returns the unmatched-domain map keyed by base domain.
func (s *Server) handleUnmatched(c *gin.Context) {
	c.JSON(http.StatusOK, s.registry.UnmatchedMap())
}

// handleStatus reports process health for debugging and the extension's
// connection indicator.
func (s *Server) handleStatus(c *gin.Context) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	uptime := time.Since(s.startTime)

	status := gin.H{
		"version":        version.Version,
		"uptimeSeconds":  int64(uptime.Seconds()),
		"startTime":      s.startTime.UTC().Format(time.RFC3339),
		"goVersion":      runtime.Version(),
		"goroutines":     runtime.NumGoroutine(),
		"memoryAllocMB":  float64(m.Alloc) / 1024 / 1024,
		"eventCount":     s.buffer.Len(),
		"sourceCount":    len(s.registry.Sources()),
		"mintedLeafs":    0,
		"unmatchedCount": len(s.registry.UnmatchedMap()),
	}
	if s.signer != nil {
		status["mintedLeafs"] = s.signer.CacheSize()
	}

	c.JSON(http.StatusOK, status)
}
