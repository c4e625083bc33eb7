package main

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/hr-qa/backend/internal/llm"
)

func newProbeCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "probe",
		Short: "Check whether the language model is reachable",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}

			client := llm.NewClient(llm.Config{
				APIKey:         cfg.LLM.APIKey,
				BaseURL:        cfg.LLM.BaseURL,
				Model:          cfg.LLM.Model,
				EmbeddingModel: cfg.LLM.EmbeddingModel,
				EmbeddingDim:   cfg.LLM.EmbeddingDim,
				Timeout:        time.Duration(cfg.LLM.TimeoutSec) * time.Second,
			})
			result := llm.NewProbe(client, time.Duration(cfg.LLM.ProbeTimeoutSec)*time.Second).Run(cmd.Context())
			if err := printJSON(cmd.OutOrStdout(), result); err != nil {
				return err
			}
			return result.Err()
		},
	}
}
