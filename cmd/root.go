// Package cmd defines and implements the CLI commands for the harvester executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/ofsted-harvester/internal/app"
	"github.com/JakeFAU/ofsted-harvester/internal/config"
	"github.com/JakeFAU/ofsted-harvester/internal/logging"
	"github.com/JakeFAU/ofsted-harvester/internal/pipeline"
	"github.com/JakeFAU/ofsted-harvester/internal/search"
)

var cfgFile string

// appKeyType is the key for storing the App in the context.
type appKeyType string

const appKey appKeyType = "app"

// Stages is the stage surface the subcommands drive.
type Stages interface {
	Providers(ctx context.Context, pages search.PageRange) (pipeline.Summary, error)
	Reports(ctx context.Context) (pipeline.Summary, error)
	Download(ctx context.Context, opts pipeline.DownloadOptions) (pipeline.Summary, error)
	Convert(ctx context.Context, prune bool) (pipeline.Summary, error)
	Scan(ctx context.Context) (pipeline.Summary, error)
	Run(ctx context.Context, opts pipeline.RunOptions) ([]pipeline.Summary, error)
}

// App defines the application interface that commands will use.
// This allows us to inject a fake app during tests.
type App interface {
	Close()
	Logger() *zap.Logger
	Config() config.Config
	Stages() Stages
}

type harvester struct {
	*app.App
}

func (h harvester) Stages() Stages {
	return h.Pipeline()
}

// newApp is the application factory. It's a variable so tests can replace it.
var newApp = func(cfg config.Config, logger *zap.Logger) (App, error) {
	a, err := app.New(cfg, logger)
	if err != nil {
		return nil, err
	}
	return harvester{a}, nil
}

// loadConfig is swapped in tests.
var loadConfig = config.Load

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "harvester",
		Short: "Harvests inspection reports and counts keyword mentions.",
		Long: `harvester walks the public inspection-report directory: it lists providers
from the paginated search index, collects each provider's archived report links,
downloads the report PDFs, converts them to text and counts keyword mentions.
Every stage writes a table that the next stage reads, so stages can be run
one at a time and safely re-run.`,
		SilenceUsage: true,

		// Build and inject the application before any subcommand runs.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cfgFile)
			if err != nil {
				return err
			}
			logger, err := logging.New(cfg.Logging.Development)
			if err != nil {
				return err
			}
			appInstance, err := newApp(cfg, logger)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, appInstance))
			return nil
		},

		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if appInstance, ok := cmd.Context().Value(appKey).(App); ok && appInstance != nil {
				appInstance.Close()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (defaults plus HARVEST_* environment when empty)")

	cmd.AddCommand(
		newProvidersCmd(),
		newReportsCmd(),
		newDownloadCmd(),
		newConvertCmd(),
		newScanCmd(),
		newRunCmd(),
	)
	return cmd
}

func resolveApp(ctx context.Context) (App, error) {
	appInstance, ok := ctx.Value(appKey).(App)
	if !ok || appInstance == nil {
		return nil, errors.New("application services not initialized")
	}
	return appInstance, nil
}

// Execute is the main entry point. SIGINT and SIGTERM cancel the running
// stage; finished artifacts stay in place for the next run.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "harvester: %v\n", err)
		stop()
		os.Exit(1)
	}
}
