package main

import (
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var monitorStatusInterval time.Duration

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Run the job scheduler in the foreground",
	Long:  "Starts the default refresh and anomaly-scan schedules and runs until interrupted.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		mgr, st, err := initManager(ctx)
		if err != nil {
			return err
		}
		if st != nil {
			defer st.Close() //nolint:errcheck
		}

		mgr.Start()
		defer mgr.Stop()
		zap.L().Info("scheduler started",
			zap.Int("scheduled_jobs", len(mgr.ScheduledJobs())))

		ticker := time.NewTicker(monitorStatusInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				zap.L().Info("shutting down scheduler")
				return nil
			case <-ticker.C:
				metrics := mgr.Metrics()
				health := mgr.Health()
				zap.L().Info("scheduler status",
					zap.String("health", health.Status),
					zap.Int("total_jobs", metrics.TotalJobs),
					zap.Int("running", metrics.RunningJobs),
					zap.Int("completed", metrics.CompletedJobs),
					zap.Int("failed", metrics.FailedJobs),
					zap.Float64("success_rate", metrics.SuccessRate))
			}
		}
	},
}

func init() {
	monitorCmd.Flags().DurationVar(&monitorStatusInterval, "status-interval", time.Minute, "interval between status log lines")
	rootCmd.AddCommand(monitorCmd)
}
