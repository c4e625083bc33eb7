package main

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hr-qa/backend/internal/loadtest"
	"github.com/hr-qa/backend/pkg/logger"
)

func newLoadTestCommand(opts *rootOptions) *cobra.Command {
	var concurrency, iterations int

	cmd := &cobra.Command{
		Use:   "loadtest",
		Short: "Run the query mix concurrently and report latency percentiles",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := opts.connect(ctx)
			if err != nil {
				return err
			}
			defer a.Close(ctx)

			if concurrency <= 0 {
				concurrency = a.Config.LoadTest.Concurrency
			}
			if iterations <= 0 {
				iterations = a.Config.LoadTest.Iterations
			}

			report, err := loadtest.NewRunner(a.Engine, loadtest.Config{
				Concurrency: concurrency,
				Iterations:  iterations,
			}).Run(ctx)
			if err != nil {
				return err
			}

			if a.SQLite != nil {
				tags := map[string]string{
					"concurrency": fmt.Sprint(concurrency),
					"iterations":  fmt.Sprint(iterations),
				}
				for name, value := range map[string]float64{
					"loadtest_p95_ms":              report.Latency.P95MS,
					"loadtest_avg_ms":              report.Latency.AvgMS,
					"loadtest_requests_per_second": report.RequestsPerSecond,
					"loadtest_success_rate":        report.SuccessRate,
				} {
					if previous, ok, err := a.SQLite.LatestMetric(ctx, name); err == nil && ok {
						logger.Info("Load test metric", zap.String("metric", name),
							zap.Float64("previous", previous), zap.Float64("current", value))
					}
					if err := a.SQLite.RecordMetric(ctx, name, value, tags); err != nil {
						logger.Warn("Failed to record load test metric", zap.String("metric", name), zap.Error(err))
					}
				}
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s requests in %s, %.1f req/s, %.1f%% succeeded\n",
				humanize.Comma(report.Total), report.Duration.Round(time.Millisecond), report.RequestsPerSecond, report.SuccessRate*100)
			return printJSON(cmd.OutOrStdout(), report)
		},
	}
	cmd.Flags().IntVar(&concurrency, "concurrency", 0, "concurrent workers (default loadtest.concurrency)")
	cmd.Flags().IntVar(&iterations, "iterations", 0, "total queries to issue (default loadtest.iterations)")
	return cmd
}
