// Package app wires configuration, storage, AI capabilities and services
// into a runnable MindBase server.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/raphaelgruber/mindbase/internal/auth"
	"github.com/raphaelgruber/mindbase/internal/config"
	"github.com/raphaelgruber/mindbase/internal/db"
	"github.com/raphaelgruber/mindbase/internal/embedding"
	"github.com/raphaelgruber/mindbase/internal/enrich"
	"github.com/raphaelgruber/mindbase/internal/extract"
	"github.com/raphaelgruber/mindbase/internal/llm"
	"github.com/raphaelgruber/mindbase/internal/metrics"
	"github.com/raphaelgruber/mindbase/internal/server"
	"github.com/raphaelgruber/mindbase/internal/service"
	"github.com/raphaelgruber/mindbase/internal/storage"
	"github.com/raphaelgruber/mindbase/internal/vector"
)

// App holds every long-lived dependency of the server.
type App struct {
	cfg     config.Config
	logger  *slog.Logger
	metrics *metrics.Collector

	db    *db.Client
	index vector.Index
	blobs *storage.DiskStore
	cache *extract.RedisCache

	ingest    *service.IngestService
	retrieval *service.RetrievalService
	reindex   *service.ReindexService
	jobs      *service.JobManager
	verifier  *auth.Verifier
}

// New connects to the store and builds the services. AI providers that fail
// to initialize are logged and left out; ingestion and search degrade instead
// of refusing to start. The store and vector index are required.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{
		cfg:     cfg,
		logger:  logger,
		metrics: metrics.NewCollector(),
	}

	dbClient, err := db.NewClient(ctx, db.ConfigFrom(cfg), logger, a.metrics)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	a.db = dbClient

	if err := dbClient.InitSchema(ctx); err != nil {
		_ = a.Close(ctx)
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	a.index, err = vector.NewFromConfig(ctx, cfg, dbClient, a.metrics)
	if err != nil {
		_ = a.Close(ctx)
		return nil, fmt.Errorf("init vector index: %w", err)
	}

	a.blobs, err = storage.NewDiskStore(cfg.MediaDir, cfg.PublicURL)
	if err != nil {
		_ = a.Close(ctx)
		return nil, fmt.Errorf("init media store: %w", err)
	}

	extractOpts := []extract.Option{extract.WithMetrics(a.metrics)}
	if cfg.RedisURL != "" {
		cache, err := extract.NewRedisCache(ctx, cfg.RedisURL, cfg.MetadataCacheTTL)
		if err != nil {
			logger.Warn("metadata cache disabled", "error", err)
		} else {
			a.cache = cache
			extractOpts = append(extractOpts, extract.WithCache(cache))
		}
	}
	extractor := extract.New(cfg.ExtractTimeout, extractOpts...)

	enricher, model := a.newEnricher()

	a.ingest = service.NewIngestService(dbClient, a.index, extractor, enricher, a.blobs, cfg.MaxImageBytes)
	a.retrieval = service.NewRetrievalService(dbClient, a.index, enricher, model, a.blobs, a.metrics, service.RetrievalConfig{
		SimilarityThreshold: cfg.SimilarityThreshold,
		ChatContextItems:    cfg.ChatContextItems,
		ChatHistoryTurns:    cfg.ChatHistoryTurns,
	})
	a.reindex = service.NewReindexService(dbClient, a.index, enricher, cfg.ReindexConcurrency)
	a.jobs = service.NewJobManager(a.reindex, dbClient)
	a.verifier = auth.NewVerifier(cfg.JWTSecret, cfg.JWTIssuer, cfg.DefaultOwner)

	// Resume any incomplete jobs from previous server run
	if err := a.jobs.ResumeIncompleteJobs(ctx); err != nil {
		logger.Warn("failed to resume incomplete jobs", "error", err)
	}

	logger.Info("mindbase initialized",
		"vector_backend", a.index.Name(),
		"llm_provider", cfg.LLMProvider,
		"embed_provider", cfg.EmbedProvider,
		"auth", cfg.AuthEnabled(),
		"metadata_cache", a.cache != nil,
	)
	return a, nil
}

// newEnricher builds the completion and embedding capabilities. Either may be
// absent; the returned model is a nil interface when no completion model is
// available so the retrieval service can detect it.
func (a *App) newEnricher() (*enrich.Enricher, service.ChatModel) {
	var completer enrich.Completer
	var chat service.ChatModel
	model, err := llm.NewModel(a.cfg, a.metrics)
	if err != nil {
		a.logger.Warn("completion model unavailable, summaries, categories and chat disabled",
			"provider", a.cfg.LLMProvider, "error", err)
	} else {
		completer, chat = model, model
	}

	embedder, err := embedding.New(a.cfg)
	if err != nil {
		a.logger.Warn("embedding model unavailable, search uses keyword matching",
			"provider", a.cfg.EmbedProvider, "error", err)
		embedder = nil // may hold a typed nil
	} else {
		embedder = embedding.Instrument(embedder, a.metrics)
	}

	return enrich.New(completer, embedder, enrich.WithTimeouts(a.cfg.LLMTimeout, a.cfg.EmbedTimeout)), chat
}

// Server builds the HTTP server over the app's services.
func (a *App) Server() *server.Server {
	return server.New(server.Deps{
		Ingest:    a.ingest,
		Retrieval: a.retrieval,
		Reindex:   a.reindex,
		Jobs:      a.jobs,
		Verifier:  a.verifier,
		Blobs:     a.blobs,
		Metrics:   a.metrics,
		Logger:    a.logger,
		Ping:      a.db.Ping,
	}, server.Options{
		Addr:         a.cfg.Addr,
		CORSOrigins:  a.cfg.CORSOrigins,
		AdminOwners:  a.cfg.AdminOwners,
		MaxBodyBytes: maxBodyBytes(a.cfg.MaxImageBytes),
	})
}

// WipeData deletes all items and jobs. Use for testing only.
func (a *App) WipeData(ctx context.Context) error {
	return a.db.WipeData(ctx)
}

// Close closes all connections. Running jobs are abandoned and resumed on the
// next start.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.cache != nil {
		errs = append(errs, a.cache.Close())
	}
	if a.db != nil {
		errs = append(errs, a.db.Close(ctx))
	}
	return errors.Join(errs...)
}

// maxBodyBytes leaves room for base64 expansion and multipart framing.
func maxBodyBytes(maxImage int) int64 {
	return int64(maxImage)*4/3 + 1<<20
}
