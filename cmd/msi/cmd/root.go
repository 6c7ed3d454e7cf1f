// Package cmd provides the msi CLI commands.
package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/3worlds/aot/internal/indexer/shard"
	"github.com/3worlds/aot/pkg/config"
	"github.com/3worlds/aot/pkg/logger"
)

// Version is set at build time with -ldflags "-X .../cmd.Version=...".
var Version = "dev"

type globalOptions struct {
	configPath string
	logLevel   string
	logFormat  string
}

// NewRootCmd creates the root command for the msi CLI.
func NewRootCmd() *cobra.Command {
	opts := &globalOptions{}

	cmd := &cobra.Command{
		Use:   "msi",
		Short: "Work with javadoc member search indexes",
		Long: `msi validates, generates, renders and searches javadoc member search
index files (member-search-index.js).

Index files are given as PATH or NAME=PATH. Without --index, the sources
listed in the config file are used.`,
		Version:       Version,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Logs go to stderr so stdout stays clean for results and MCP.
			logger.SetupWriter(cmd.ErrOrStderr(), opts.logLevel, opts.logFormat)
			return nil
		},
	}
	cmd.SetVersionTemplate("msi version {{.Version}}\n")

	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "Path to config file")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "warn", "Log level: debug, info, warn, error")
	cmd.PersistentFlags().StringVar(&opts.logFormat, "log-format", "text", "Log format: text, json")

	cmd.AddCommand(newValidateCmd())
	cmd.AddCommand(newSearchCmd(opts))
	cmd.AddCommand(newGenCmd())
	cmd.AddCommand(newRenderCmd())
	cmd.AddCommand(newMCPCmd(opts))
	cmd.AddCommand(newKeysCmd(opts))

	return cmd
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}

// indexSources resolves --index values, falling back to the configured
// sources.
func indexSources(opts *globalOptions, indexes []string) ([]config.SourceConfig, error) {
	if len(indexes) > 0 {
		sources := config.ParseSources(strings.Join(indexes, ","))
		for _, src := range sources {
			if !shard.ValidName(src.Name) {
				return nil, fmt.Errorf("invalid source name %q for %s; use NAME=PATH", src.Name, src.Path)
			}
		}
		return sources, nil
	}
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}
	if len(cfg.Indexer.Sources) == 0 {
		return nil, fmt.Errorf("no index files: pass --index or list sources in the config file")
	}
	return cfg.Indexer.Sources, nil
}

// loadRouter builds an in-memory router over the given index files.
func loadRouter(ctx context.Context, opts *globalOptions, indexes []string) (*shard.Router, error) {
	sources, err := indexSources(opts, indexes)
	if err != nil {
		return nil, err
	}
	router, err := shard.NewRouter(config.IndexerConfig{})
	if err != nil {
		return nil, err
	}
	if err := router.LoadFiles(ctx, sources); err != nil {
		router.Close()
		return nil, err
	}
	return router, nil
}
