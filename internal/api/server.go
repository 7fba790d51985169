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
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pterm/pterm"

	"github.com/jnakagawa/loggy/internal/certs"
	"github.com/jnakagawa/loggy/internal/database/repositories"
	"github.com/jnakagawa/loggy/internal/events"
	"github.com/jnakagawa/loggy/internal/sources"
)

// Server is the local HTTP control API consumed by the browser extension:
// event retrieval, source sync, and unmatched-domain feedback.
type Server struct {
	buffer   *events.Buffer
	registry *sources.Registry
	store    *sources.Store
	stats    repositories.StatsRepository
	signer   *certs.Signer
	logger   *pterm.Logger

	startTime time.Time
	http      *http.Server
}

// NewServer builds the API server. store and stats may be nil; the
// corresponding features degrade gracefully.
func NewServer(
	addr string,
	buffer *events.Buffer,
	registry *sources.Registry,
	store *sources.Store,
	stats repositories.StatsRepository,
	signer *certs.Signer,
	logger *pterm.Logger,
) *Server {
	s := &Server{
		buffer:    buffer,
		registry:  registry,
		store:     store,
		stats:     stats,
		signer:    signer,
		logger:    logger,
		startTime: time.Now(),
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), corsMiddleware())

	router.GET("/events", s.handleEvents)
	router.POST("/clear", s.handleClear)
	router.GET("/sources", s.handleGetSources)
	router.POST("/sources", s.handleSyncSources)
	router.GET("/unmatched", s.handleUnmatched)
	router.GET("/status", s.handleStatus)
	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	})

	s.http = &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// ListenAndServe blocks until shutdown. A bind failure is returned and is
// fatal at startup.
func (s *Server) ListenAndServe() error {
	s.logger.Info("Control API listening", s.logger.Args("addr", s.http.Addr))
	err := s.http.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	if err != nil {
		return fmt.Errorf("api listen on %s: %w", s.http.Addr, err)
	}
	return nil
}

// Shutdown drains the API server.
func (s *Server) Shutdown(ctx context.Context) {
	s.http.Shutdown(ctx)
}

// corsMiddleware answers preflights and stamps permissive CORS headers on
// every response; the extension calls this API from an extension origin.
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusOK)
			return
		}
		c.Next()
	}
}
