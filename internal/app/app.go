// Package app initializes and holds long-lived application services, acting as a dependency injection container.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/ofsted-harvester/internal/acquire"
	"github.com/JakeFAU/ofsted-harvester/internal/config"
	"github.com/JakeFAU/ofsted-harvester/internal/crawler"
	collyfetcher "github.com/JakeFAU/ofsted-harvester/internal/fetcher/colly"
	restyfetcher "github.com/JakeFAU/ofsted-harvester/internal/fetcher/resty"
	"github.com/JakeFAU/ofsted-harvester/internal/id/uuid"
	"github.com/JakeFAU/ofsted-harvester/internal/logging"
	"github.com/JakeFAU/ofsted-harvester/internal/metrics"
	"github.com/JakeFAU/ofsted-harvester/internal/pipeline"
	"github.com/JakeFAU/ofsted-harvester/internal/reports"
	"github.com/JakeFAU/ofsted-harvester/internal/scanner"
	"github.com/JakeFAU/ofsted-harvester/internal/search"
	"github.com/JakeFAU/ofsted-harvester/internal/storage/local"
)

const shutdownTimeout = 5 * time.Second

// App holds the shared services for one command invocation: the run-scoped
// logger, the artifact store and the assembled pipeline.
type App struct {
	cfg           config.Config
	logger        *zap.Logger
	runID         string
	store         *local.BlobStore
	pipeline      *pipeline.Pipeline
	metricsServer *http.Server
}

// Logger returns the run-scoped logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Config returns the loaded configuration.
func (a *App) Config() config.Config {
	return a.cfg
}

// RunID returns the identifier attached to every log line of this run.
func (a *App) RunID() string {
	return a.runID
}

// Store returns the batch artifact directory.
func (a *App) Store() *local.BlobStore {
	return a.store
}

// Pipeline returns the assembled stage pipeline.
func (a *App) Pipeline() *pipeline.Pipeline {
	return a.pipeline
}

// New wires every stage from cfg. It fails fast when a component cannot be
// built, for example when the output directory is not writable.
func New(cfg config.Config, logger *zap.Logger) (*App, error) {
	return newWithIDs(cfg, logger, uuid.New())
}

func newWithIDs(cfg config.Config, logger *zap.Logger, ids crawler.IDGenerator) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	runID, err := ids.NewID()
	if err != nil {
		return nil, fmt.Errorf("generate run id: %w", err)
	}
	runLogger := logger.With(zap.String("run_id", runID))

	metrics.Init()

	store, err := local.New(local.Config{BaseDir: cfg.OutputPath(cfg.Output.PDFDir)})
	if err != nil {
		return nil, fmt.Errorf("init artifact store: %w", err)
	}
	searchPath, err := cfg.SearchPath()
	if err != nil {
		return nil, err
	}
	reportTypes, err := cfg.ReportTypePattern()
	if err != nil {
		return nil, err
	}

	pages := collyfetcher.New(collyfetcher.Config{
		UserAgent: cfg.Source.UserAgent,
		Timeout:   cfg.Timeout(),
	})
	pdfs := restyfetcher.New(restyfetcher.Config{
		UserAgent: cfg.Source.UserAgent,
		Timeout:   cfg.Timeout(),
	})
	retry := crawler.NewLinearRetryPolicy(cfg.Download.MaxRetries, cfg.Download.BackoffBase, cfg.Download.BackoffJitter)
	pauser := crawler.TimerPauser{}

	scan, err := scanner.New(store, cfg.Scan.Keywords, cfg.Scan.CorruptRun, logging.ForRun(logger, runID, pipeline.StageScan))
	if err != nil {
		return nil, fmt.Errorf("init scanner: %w", err)
	}

	components := pipeline.Components{
		Crawler: search.New(search.Config{
			BaseURL:    cfg.Source.BaseURL,
			Path:       searchPath,
			Politeness: crawler.Politeness{Base: cfg.Search.Delay, Jitter: cfg.Search.Jitter},
		}, pages, retry, pauser, logging.ForRun(logger, runID, pipeline.StageProviders)),
		Reports: reports.New(reports.Config{
			BaseURL:    cfg.Source.BaseURL,
			Politeness: crawler.Politeness{Base: cfg.Reports.Delay, Jitter: cfg.Reports.Jitter},
		}, pages, retry, pauser, logging.ForRun(logger, runID, pipeline.StageReports)),
		Acquirer: acquire.New(acquire.Config{
			BaseURL:     cfg.Source.BaseURL,
			ReportTypes: reportTypes,
			Politeness:  crawler.Politeness{Base: cfg.Download.Delay, Jitter: cfg.Download.Jitter},
		}, store, pdfs, retry, pauser, logging.ForRun(logger, runID, pipeline.StageDownload)),
		Store:   store,
		Scanner: scan,
	}
	tables := pipeline.Tables{
		Providers: cfg.OutputPath(cfg.Output.ProvidersFile),
		Reports:   cfg.OutputPath(cfg.Output.ReportsFile),
		Downloads: cfg.OutputPath(cfg.Output.DownloadsFile),
		Counts:    cfg.OutputPath(cfg.Output.CountsFile),
	}

	a := &App{
		cfg:      cfg,
		logger:   runLogger,
		runID:    runID,
		store:    store,
		pipeline: pipeline.New(components, tables, runLogger),
	}
	if cfg.Metrics.Addr != "" {
		a.startMetricsServer(cfg.Metrics.Addr)
	}

	runLogger.Info("application services initialized",
		zap.String("base_url", cfg.Source.BaseURL),
		zap.String("search_path", searchPath),
		zap.String("output_dir", cfg.Output.Dir),
	)
	return a, nil
}

func (a *App) startMetricsServer(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	a.metricsServer = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		a.logger.Info("starting metrics server", zap.String("addr", addr))
		if err := a.metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("metrics server failed", zap.Error(err))
		}
	}()
}

// Close gracefully shuts down all services in the App container.
func (a *App) Close() {
	if a.metricsServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := a.metricsServer.Shutdown(ctx); err != nil {
			a.logger.Warn("metrics server shutdown failed", zap.Error(err))
		}
	}
	// Sync fails on terminals; there is nothing useful to do about it.
	_ = a.logger.Sync()
}
