package main

import (
	"strings"

	"github.com/spf13/cobra"
)

func newQueryCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "query <text>",
		Short: "Answer one query and print the result envelope",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := opts.connect(ctx)
			if err != nil {
				return err
			}
			defer a.Close(ctx)

			env := a.Engine.ProcessQuery(ctx, strings.Join(args, " "))
			return printJSON(cmd.OutOrStdout(), env)
		},
	}
}
