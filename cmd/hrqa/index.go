package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hr-qa/backend/pkg/logger"
)

func newIndexCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "index",
		Short: "Maintain the employee search index",
	}
	cmd.AddCommand(newIndexRebuildCommand(opts), newIndexDeleteCommand(opts))
	return cmd
}

func newIndexRebuildCommand(opts *rootOptions) *cobra.Command {
	var batchSize int

	cmd := &cobra.Command{
		Use:   "rebuild",
		Short: "Re-index every employee profile from the document store",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := opts.connect(ctx)
			if err != nil {
				return err
			}
			defer a.Close(ctx)

			if a.Milvus != nil {
				if err := a.Milvus.EnsureCollection(ctx); err != nil {
					return err
				}
			}

			stats, err := a.Indexer(batchSize).Run(ctx)
			if err != nil {
				return err
			}

			if n, err := a.Elastic.Count(ctx); err == nil {
				fmt.Fprintf(cmd.OutOrStdout(), "Index %s holds %s documents\n", a.Elastic.Index(), humanize.Comma(n))
			} else {
				logger.Warn("Failed to count index documents", zap.Error(err))
			}
			return printJSON(cmd.OutOrStdout(), stats)
		},
	}
	cmd.Flags().IntVar(&batchSize, "batch-size", 50, "documents per upload batch")
	return cmd
}

func newIndexDeleteCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <employee_id>...",
		Short: "Remove employees from the search index",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := opts.connect(ctx)
			if err != nil {
				return err
			}
			defer a.Close(ctx)

			if err := a.Indexer(0).Remove(ctx, args); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %s employees\n", humanize.Comma(int64(len(args))))
			return nil
		},
	}
}
