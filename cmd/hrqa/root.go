package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/hr-qa/backend/internal/app"
	"github.com/hr-qa/backend/internal/metrics"
	"github.com/hr-qa/backend/pkg/config"
	"github.com/hr-qa/backend/pkg/logger"
)

type rootOptions struct {
	configPath string
	logLevel   string
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:          "hrqa",
		Short:        "Ask natural-language questions about employee records",
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "path to config file")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "override logging.level")

	cmd.AddCommand(
		newQueryCommand(opts),
		newProbeCommand(opts),
		newIndexCommand(opts),
		newLoadTestCommand(opts),
	)
	return cmd
}

func (o *rootOptions) loadConfig() (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if o.configPath != "" {
		cfg, err = config.LoadFile(o.configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}
	if o.logLevel != "" {
		cfg.Logging.Level = o.logLevel
	}
	// Logs go to stderr so command output stays machine readable.
	if err := logger.Init(cfg.Logging.Level, "console", "stderr"); err != nil {
		return nil, err
	}
	metrics.Init()
	return cfg, nil
}

// connect loads configuration and connects every backend.
func (o *rootOptions) connect(ctx context.Context) (*app.App, error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, err
	}
	return app.New(ctx, cfg)
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	return nil
}
