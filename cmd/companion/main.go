// Package main is the companion CLI: one-shot triage, a store-backed chat
// loop, transcript replay, stored session inspection and catalog checks.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"companion/internal/catalog"
	"companion/internal/config"
	"companion/internal/logging"
	"companion/internal/pipeline"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	// Global flags
	verbose    bool
	configPath string
	dataDir    string

	// Loaded in PersistentPreRunE
	cfg    *config.Config
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "companion",
	Short: "Pet-loss support companion with deterministic crisis triage",
	Long: `companion classifies each message of a pet-loss support conversation,
decides the conversation mode and renders a reviewed response template.

Crisis handling is deterministic: messages showing suicide risk or coercive
control always get the region's hotline text, whatever a generator would say.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zc := zap.NewProductionConfig()
		if verbose {
			zc.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zc.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return setup()
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.CloseAudit()
		logging.CloseAll()
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (default: <data-dir>/config.yaml)")
	rootCmd.PersistentFlags().StringVarP(&dataDir, "data-dir", "d", ".companion", "Directory for the database, logs and config")

	rootCmd.AddCommand(triageCmd, chatCmd, replayCmd, sessionsCmd, catalogCmd, configCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// setup loads the config and starts the file loggers.
func setup() error {
	path := resolvedConfigPath()
	c, err := config.Load(path)
	if err != nil {
		return err
	}
	if verbose {
		c.Logging.DebugMode = true
		c.Logging.Level = "debug"
	}
	if err := c.Validate(); err != nil {
		return err
	}
	cfg = c

	if err := logging.Initialize(dataDir, cfg.Logging.Settings()); err != nil {
		logger.Warn("File logging disabled", zap.Error(err))
	}
	if err := logging.InitAudit(); err != nil {
		logging.BootError("Audit log disabled: %v", err)
		logger.Warn("Audit log disabled", zap.Error(err))
	}
	logging.Boot("Config loaded from %s", path)
	logger.Debug("Config loaded",
		zap.String("path", path),
		zap.String("catalog", cfg.Catalog.Path),
		zap.String("generator", cfg.Generator.Provider))
	return nil
}

func resolvedConfigPath() string {
	if configPath != "" {
		return configPath
	}
	return filepath.Join(dataDir, "config.yaml")
}

// buildPipeline loads the configured catalog and builds a pipeline over it.
func buildPipeline() (*catalog.Catalog, *pipeline.Pipeline, error) {
	cat, err := catalog.Load(cfg.Catalog.Path)
	if err != nil {
		logging.BootError("Catalog load failed (%s): %v", cfg.Catalog.Path, err)
		return nil, nil, err
	}
	p, err := pipeline.New(cat, cfg.PipelineSettings())
	if err != nil {
		logging.BootError("Pipeline build failed: %v", err)
		return nil, nil, err
	}
	logger.Debug("Pipeline ready",
		zap.String("catalog", cat.Source()),
		zap.String("version", cat.Version()))
	return cat, p, nil
}
