// Package server implements the `acervo server` command.
package server

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mitchellh/cli"
	"github.com/spf13/afero"

	"github.com/acervo-ai/acervo/internal/api"
	"github.com/acervo-ai/acervo/internal/config"
	"github.com/acervo-ai/acervo/internal/setup"
	"github.com/acervo-ai/acervo/pkg/converter"
	"github.com/acervo-ai/acervo/pkg/database"
	"github.com/acervo-ai/acervo/pkg/ingest"
	"github.com/acervo-ai/acervo/pkg/search"
)

// Command runs the HTTP server.
type Command struct {
	UI cli.Ui

	flagConfig string
}

func (c *Command) Synopsis() string {
	return "Run the ingestion and search server"
}

func (c *Command) Help() string {
	return `Usage: acervo server -config=config.yaml

  Starts the HTTP server: document upload and processing endpoints plus
  hybrid search over the configured libraries.
`
}

func (c *Command) flags() *flag.FlagSet {
	f := flag.NewFlagSet("server", flag.ContinueOnError)
	f.StringVar(&c.flagConfig, "config", "config.yaml", "Path to the YAML config file")
	return f
}

func (c *Command) Run(args []string) int {
	if err := c.flags().Parse(args); err != nil {
		return 1
	}

	cfg, err := config.Load(afero.NewOsFs(), c.flagConfig)
	if err != nil {
		c.UI.Error(err.Error())
		return 1
	}

	log := setup.Logger(cfg.Log, "acervo")
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Connect(cfg.Database.ToDatabaseConfig(), log)
	if err != nil {
		c.UI.Error(err.Error())
		return 1
	}
	if err := database.Migrate(db, cfg.Database.ToDatabaseConfig(), log); err != nil {
		c.UI.Error(err.Error())
		return 1
	}

	pool, registry, err := setup.Pool(ctx, cfg, log)
	if err != nil {
		c.UI.Error(err.Error())
		return 1
	}

	conv := converter.New(converter.Config{
		MaxOutputBytes: cfg.Ingestion.MaxConvertedBytes,
		Logger:         log,
	})

	tracker := ingest.NewStatusTracker(cfg.Ingestion.StatusTTL())
	processor, err := ingest.NewProcessor(ingest.ProcessorConfig{
		DB:                       db,
		Pool:                     pool,
		Registry:                 registry,
		Tracker:                  tracker,
		Logger:                   log,
		DefaultEmbeddingModel:    cfg.Models.DefaultEmbeddingModel,
		DefaultCompletionModel:   cfg.Models.DefaultCompletionModel,
		BatchSize:                cfg.Ingestion.BatchSize,
		OversizeThresholdPercent: cfg.Ingestion.OversizeThresholdPercent,
		SummaryThresholdTokens:   cfg.Ingestion.SummaryThresholdTokens,
		SummaryMaxTokens:         cfg.Ingestion.SummaryMaxTokens,
		IdealChunkSizeTokens:     cfg.Ingestion.IdealChunkSizeTokens,
	})
	if err != nil {
		c.UI.Error(err.Error())
		return 1
	}

	searchSvc, err := search.NewService(search.ServiceConfig{
		DB:                    db,
		Pool:                  pool,
		DefaultEmbeddingModel: cfg.Models.DefaultEmbeddingModel,
		Logger:                log,
	})
	if err != nil {
		c.UI.Error(err.Error())
		return 1
	}

	dispatcher := ingest.NewDispatcher(processor, cfg.Ingestion.Workers, log)

	srv := &api.Server{
		DB:         db,
		Logger:     log,
		Uploader:   ingest.NewUploader(db, conv, log),
		Processor:  processor,
		Dispatcher: dispatcher,
		Search:     searchSvc,
	}

	httpServer := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server listening", "addr", cfg.Server.Addr)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		c.UI.Error(fmt.Sprintf("server error: %v", err))
		return 1
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		c.UI.Error(fmt.Sprintf("shutdown error: %v", err))
	}
	dispatcher.Wait()

	return 0
}
