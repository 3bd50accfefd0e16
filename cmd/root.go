package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kamusis/lscope/internal/artifact"
	"github.com/kamusis/lscope/internal/config"
	"github.com/kamusis/lscope/internal/dataset"
	"github.com/kamusis/lscope/internal/logging"
	"github.com/kamusis/lscope/internal/table"
	"github.com/kamusis/lscope/internal/tags"
)

var rootCmd = &cobra.Command{
	Use:           "lscope",
	Short:         "lscope: versioned analysis artifacts and tags for tabular text datasets",
	SilenceUsage:  true, // don't print usage on operational errors
	SilenceErrors: true, // errors are reported once, by run
	Long: `lscope manages the on-disk data directory of text datasets: versioned
embedding, umap, cluster, scope and sae artifacts, per-dataset tags of row
indices, and sparse feature statistics.`,
}

var (
	flagDataDir  string
	flagLogLevel string
)

func init() {
	rootCmd.PersistentFlags().StringVar(&flagDataDir, "data-dir", "", "Data directory (overrides data_dir in ~/.lscope/lscope.yaml)")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "Log level: debug, info, warn, error")
}

// app holds the collaborators shared by commands that touch the data directory.
type app struct {
	cfg    *config.Config
	log    *zap.Logger
	layout dataset.Layout
	tables *table.Cache
	namer  *artifact.Namer
	tags   *tags.Store
}

// newApp loads config, applies global flags and wires the stores.
func newApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if flagDataDir != "" {
		if cfg.DataDir, err = config.ExpandPath(flagDataDir); err != nil {
			return nil, err
		}
	}
	if flagLogLevel != "" {
		cfg.LogLevel = flagLogLevel
	}
	log, err := logging.New(os.Stderr, logging.Config{Format: cfg.LogFormat, Level: cfg.LogLevel})
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(cfg.DataDir); err != nil {
		return nil, fmt.Errorf("data directory %s is not available (run 'lscope init' or pass --data-dir): %w", cfg.DataDir, err)
	}

	layout := dataset.NewLayout(cfg.DataDir)
	tables := table.NewCache(layout, nil, log)
	return &app{
		cfg:    cfg,
		log:    log,
		layout: layout,
		tables: tables,
		namer:  artifact.NewNamer(layout, log),
		tags:   tags.NewStore(layout, tables, log),
	}, nil
}

// Execute is called by main.go. Interrupts cancel the command's context.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx)
	stop()
	os.Exit(code)
}

// run executes the root command and returns the process exit code. A failed
// command's error is printed here and nowhere else.
func run(ctx context.Context) int {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		printErr("", err.Error())
		return 1
	}
	return 0
}
