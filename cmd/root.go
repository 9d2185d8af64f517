// Package cmd implements the metagraph command line.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-metagraph/pkg/config"
	"github.com/ekaya-inc/ekaya-metagraph/pkg/logging"
)

// app carries what every subcommand needs once the root command has run.
type app struct {
	version     string
	configPath  string
	sourcesPath string

	cfg    *config.Config
	logger *zap.Logger
}

// NewRootCmd builds the command tree.
func NewRootCmd(version string) *cobra.Command {
	a := &app{version: version}

	root := &cobra.Command{
		Use:           "metagraph",
		Short:         "Crawl data sources into a structural metadata graph",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}

	root.PersistentFlags().StringVar(&a.configPath, "config", "", "config file (default is ./config.yaml)")
	root.PersistentFlags().StringVar(&a.sourcesPath, "sources", "", "sources file (overrides sources_file)")

	root.AddCommand(
		newCrawlCmd(a),
		newMigrateCmd(a),
		newAdaptersCmd(a),
		newInspectCmd(a),
	)
	return root
}

func (a *app) init() error {
	cfg, err := config.Load(a.configPath, a.version)
	if err != nil {
		return err
	}
	if a.sourcesPath != "" {
		cfg.SourcesFile = a.sourcesPath
	}

	logger, err := logging.NewLogger(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	a.cfg = cfg
	a.logger = logger
	return nil
}

// Execute runs the command line and returns the process exit code.
func Execute(version string) int {
	if err := NewRootCmd(version).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return 1
	}
	return 0
}
