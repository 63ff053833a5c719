package main

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tlpi-group/marketing-cli/internal/ingest"
)

var ingestSyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Sync CRM data",
	Long: `Sync CRM objects into crm_data.* tables.

By default, syncs all jobs whose ShouldRun() returns true.
Use --jobs for specific jobs, --days to override the ingestion window,
and --force to ignore ShouldRun() scheduling.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		log := zap.L().With(zap.String("command", "ingest.sync"))

		pool, err := dbPool(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()

		// Ensure migrations are current.
		if err := ingest.Migrate(ctx, pool); err != nil {
			return eris.Wrap(err, "ingest sync: migrate")
		}

		hub, err := hubClient()
		if err != nil {
			return err
		}

		opts := parseIngestOpts(cmd)
		if days, _ := cmd.Flags().GetInt("days"); days > 0 {
			cfg.Ingest.WindowDays = days
		}

		syncLog := ingest.NewSyncLog(pool)
		reg := ingest.NewRegistry(cfg)
		engine := ingest.NewEngine(pool, hub, syncLog, reg)

		log.Info("starting ingest",
			zap.Strings("jobs", opts.Jobs),
			zap.Bool("force", opts.Force),
			zap.Int("window_days", cfg.Ingest.WindowDays),
		)

		summary, err := engine.Run(ctx, opts)
		if err != nil {
			return eris.Wrap(err, "ingest sync")
		}

		fmt.Printf("Sync complete: %d synced, %d skipped, %d failed\n",
			summary.Synced, summary.Skipped, summary.Failed)
		if len(summary.FailedJobs) > 0 {
			fmt.Printf("Failed jobs: %s\n", strings.Join(summary.FailedJobs, ", "))
		}
		return nil
	},
}

func init() {
	ingestSyncCmd.Flags().String("jobs", "", "comma-separated job names (e.g., leads,contacts)")
	ingestSyncCmd.Flags().Int("days", 0, "override the ingestion window in days")
	ingestSyncCmd.Flags().Bool("force", false, "ignore ShouldRun() scheduling logic")
	ingestCmd.AddCommand(ingestSyncCmd)
}

// parseIngestOpts extracts ingest.RunOpts from the cobra command flags.
func parseIngestOpts(cmd *cobra.Command) ingest.RunOpts {
	jobsStr, _ := cmd.Flags().GetString("jobs")
	force, _ := cmd.Flags().GetBool("force")

	opts := ingest.RunOpts{Force: force}
	if jobsStr != "" {
		opts.Jobs = strings.Split(jobsStr, ",")
		for i := range opts.Jobs {
			opts.Jobs[i] = strings.TrimSpace(opts.Jobs[i])
		}
	}
	return opts
}
