package proxy

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/pterm/pterm"

	"github.com/jnakagawa/loggy/internal/api"
	"github.com/jnakagawa/loggy/internal/certs"
	"github.com/jnakagawa/loggy/internal/config"
	"github.com/jnakagawa/loggy/internal/database"
	"github.com/jnakagawa/loggy/internal/database/repositories"
	"github.com/jnakagawa/loggy/internal/events"
	"github.com/jnakagawa/loggy/internal/extract"
	"github.com/jnakagawa/loggy/internal/sources"
)

// Run assembles and runs the whole data plane: CA, MITM proxy, source
// registry, extractor, ring buffer, and the control API. Blocks until
// SIGINT/SIGTERM, then drains. Returns an error only for fatal startup
// problems; the caller maps that to exit code 1.
func Run(cfg config.Config, logger *pterm.Logger) error {
	// Root of trust. Failures here are fatal: without a CA there is
	// nothing to terminate TLS with.
	store := certs.NewStore(cfg.CACertPath(), cfg.CAKeyPath(), logger)
	caCert, caKey, err := store.Ensure()
	if err != nil {
		return fmt.Errorf("CA unavailable: %w", err)
	}
	signer, err := certs.NewSigner(caCert, caKey)
	if err != nil {
		return fmt.Errorf("CA unavailable: %w", err)
	}

	// Stats persistence is auxiliary: a broken database costs counters,
	// not capture.
	var statsRepo repositories.StatsRepository
	var unmatchedRepo repositories.UnmatchedRepository
	if db, err := database.Open(cfg.StatsDBPath(), logger); err != nil {
		logger.Warn("Stats database unavailable, continuing without persistence",
			logger.Args("error", err))
	} else {
		statsRepo = repositories.NewStatsRepository(db)
		unmatchedRepo = repositories.NewUnmatchedRepository(db)
	}

	registry := sources.NewRegistry(logger)
	if unmatchedRepo != nil {
		registry.SetUnmatchedStore(unmatchedRepo)
		if entries, err := unmatchedRepo.FindAll(); err == nil {
			registry.SeedUnmatched(entries)
		}
	}

	// Source rules: persisted file wins, defaults otherwise. External
	// edits to the file hot-reload into the registry.
	sourceStore := sources.NewStore(cfg.SourcesPath(), logger)
	persisted, err := sourceStore.Load()
	if err != nil {
		logger.Warn("Ignoring unreadable source file, using defaults",
			logger.Args("path", cfg.SourcesPath(), "error", err))
	}
	if len(persisted) > 0 {
		registry.Replace(persisted)
	} else {
		registry.Replace(sources.Defaults())
		if err := sourceStore.Save(registry.Sources()); err != nil {
			logger.Warn("Failed to write default sources", logger.Args("error", err))
		}
	}
	if err := sourceStore.Watch(func(list []sources.Source) {
		registry.Replace(list)
	}); err != nil {
		logger.Warn("Source hot reload disabled", logger.Args("error", err))
	}
	defer sourceStore.Close()

	buffer := events.NewBuffer(cfg.MaxEvents)
	extractor := extract.New(logger)
	inspector := NewInspector(registry, extractor, buffer, statsRepo, cfg.MaxBodyBytes, logger)

	proxySrv := NewServer(fmt.Sprintf(":%d", cfg.ProxyPort), signer, inspector, cfg.IdleTimeout, logger)
	apiSrv := api.NewServer(fmt.Sprintf(":%d", cfg.APIPort), buffer, registry, sourceStore, statsRepo, signer, logger)

	errCh := make(chan error, 2)
	go func() { errCh <- proxySrv.ListenAndServe() }()
	go func() { errCh <- apiSrv.ListenAndServe() }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("Shutting down", logger.Args("signal", sig.String()))
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownGrace)
	defer cancel()
	apiSrv.Shutdown(ctx)
	proxySrv.Shutdown(cfg.ShutdownGrace)

	logger.Info("Shutdown complete")
	return nil
}
