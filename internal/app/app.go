// Package app assembles the pipeline components from configuration. Both the
// API server and the CLI build their workflow machines from an App.
package app

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/jungwonlee1988/wedealize-sub000/internal/backend"
	"github.com/jungwonlee1988/wedealize-sub000/internal/cache"
	"github.com/jungwonlee1988/wedealize-sub000/internal/config"
	"github.com/jungwonlee1988/wedealize-sub000/internal/domain"
	"github.com/jungwonlee1988/wedealize-sub000/internal/extract"
	"github.com/jungwonlee1988/wedealize-sub000/internal/jobs"
	"github.com/jungwonlee1988/wedealize-sub000/internal/llm"
	"github.com/jungwonlee1988/wedealize-sub000/internal/observability"
	"github.com/jungwonlee1988/wedealize-sub000/internal/pdf"
	"github.com/jungwonlee1988/wedealize-sub000/internal/pricing"
	"github.com/jungwonlee1988/wedealize-sub000/internal/storage"
	"github.com/jungwonlee1988/wedealize-sub000/internal/workflow"
)

// App holds the shared, long-lived components.
type App struct {
	Config  *config.Config
	Logger  *observability.Logger
	Metrics *observability.Metrics

	Store      cache.Store
	Validator  *pdf.Validator
	Backend    *backend.Client
	Pipeline   *extract.Orchestrator
	Reconciler *pricing.Reconciler
	Committer  *workflow.Committer
	Poller     *jobs.Poller
	History    domain.UploadHistory

	// Uploads is set when history is kept in the local database.
	Uploads *storage.HistoryRepository

	db *sql.DB
}

// New builds an App. reg may be nil, in which case metrics are collected
// but not registered.
func New(ctx context.Context, cfg *config.Config, logger *observability.Logger, reg prometheus.Registerer) (*App, error) {
	a := &App{
		Config:    cfg,
		Logger:    logger,
		Metrics:   observability.NewMetrics(reg),
		Backend:   backend.NewClient(cfg.Backend.BaseURL, cfg.Backend.Token, cfg.Backend.Timeout),
		Validator: pdf.NewValidator(cfg.Upload),
	}

	store, err := cache.New(cfg.Cache)
	if err != nil {
		return nil, fmt.Errorf("create cache: %w", err)
	}
	a.Store = store

	extractor, err := a.extractor()
	if err != nil {
		a.Close()
		return nil, err
	}
	matcher, err := a.priceMatcher()
	if err != nil {
		a.Close()
		return nil, err
	}

	a.Pipeline = extract.NewOrchestrator(
		a.Validator,
		pdf.NewRenderer(cfg.Render, logger),
		extractor,
		extract.Options{
			BatchSize:       cfg.Extraction.BatchSize,
			CallTimeout:     cfg.Extraction.CallTimeout,
			FallbackEnabled: cfg.Extraction.FallbackEnabled,
		},
		logger, a.Metrics,
	)

	a.Reconciler = pricing.NewReconciler(matcher, pricing.Options{
		CallTimeout:     cfg.Pricing.CallTimeout,
		FallbackEnabled: cfg.Pricing.FallbackEnabled,
	}, logger, a.Metrics)

	a.Committer = workflow.NewCommitter(a.Backend, logger, a.Metrics)

	a.Poller, err = jobs.NewPoller(a.Backend, a.Store, jobs.Options{
		Interval:  cfg.Jobs.PollInterval,
		MaxWait:   cfg.Jobs.MaxWait,
		StatusTTL: cfg.Jobs.StatusTTL,
	}, logger)
	if err != nil {
		a.Close()
		return nil, err
	}

	if err := a.history(ctx); err != nil {
		a.Close()
		return nil, err
	}

	logger.Info().
		Str("extraction", cfg.Extraction.Backend).
		Str("pricing", cfg.Pricing.Backend).
		Str("cache", cfg.Cache.Driver).
		Str("history", cfg.Backend.History).
		Msg("Pipeline assembled")

	return a, nil
}

// NewMachine creates a workflow machine for one upload session.
func (a *App) NewMachine(observer workflow.Observer) *workflow.Machine {
	return workflow.NewMachine(workflow.Deps{
		Pipeline:  a.Pipeline,
		Validator: a.Validator,
		Pricing:   a.Reconciler,
		Committer: a.Committer,
		Jobs:      a.Backend,
		Poller:    a.Poller,
		History:   a.History,
		Observer:  observer,
		Logger:    a.Logger,
	})
}

// Close releases the cache and database connections.
func (a *App) Close() error {
	var firstErr error
	if a.Store != nil {
		if err := a.Store.Close(); err != nil {
			firstErr = err
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (a *App) extractor() (domain.Extractor, error) {
	switch a.Config.Extraction.Backend {
	case "llm":
		if a.Config.LLM.APIKey == "" {
			return nil, domain.ConfigError("OPENROUTER_API_KEY is required for the llm extraction backend", nil)
		}
		return a.llmClient(), nil
	case "service":
		return a.Backend, nil
	default:
		return nil, domain.ConfigError(fmt.Sprintf("unknown extraction backend %q", a.Config.Extraction.Backend), nil)
	}
}

func (a *App) priceMatcher() (domain.PriceMatcher, error) {
	switch a.Config.Pricing.Backend {
	case "llm":
		if a.Config.LLM.APIKey == "" {
			return nil, domain.ConfigError("OPENROUTER_API_KEY is required for the llm pricing backend", nil)
		}
		return a.llmClient(), nil
	case "service":
		return a.Backend, nil
	default:
		return nil, domain.ConfigError(fmt.Sprintf("unknown pricing backend %q", a.Config.Pricing.Backend), nil)
	}
}

func (a *App) llmClient() *llm.Client {
	return llm.NewClient(a.Config.LLM.APIKey, a.Config.LLM.Model,
		llm.WithBaseURL(a.Config.LLM.BaseURL),
		llm.WithLogger(a.Logger),
	)
}

func (a *App) history(ctx context.Context) error {
	switch a.Config.Backend.History {
	case "backend":
		a.History = a.Backend
	case "database":
		db, err := storage.Open(ctx, a.Config.Database)
		if err != nil {
			return fmt.Errorf("open history database: %w", err)
		}
		a.db = db
		repo := storage.NewHistoryRepository(db)
		if err := repo.Migrate(ctx); err != nil {
			return err
		}
		a.Uploads = repo
		a.History = repo
	case "none":
	}
	return nil
}
