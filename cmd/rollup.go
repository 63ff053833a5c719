package main

import (
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tlpi-group/marketing-cli/internal/revenue"
)

var rollupCmd = &cobra.Command{
	Use:   "rollup",
	Short: "Roll up deal revenue by campaign",
	Long:  "Fetches window deals from the CRM, attributes each through its primary contact, and persists per-bucket and per-campaign revenue rollups.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		log := zap.L().With(zap.String("command", "rollup"))

		pool, err := dbPool(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()

		hub, err := hubClient()
		if err != nil {
			return err
		}

		days := cfg.Revenue.WindowDays
		if override, _ := cmd.Flags().GetInt("days"); override > 0 {
			days = override
		}

		windowEnd := midnightUTC(time.Now())
		windowStart := windowEnd.AddDate(0, 0, -days)

		log.Info("starting rollup",
			zap.Time("window_start", windowStart),
			zap.Time("window_end", windowEnd),
		)

		deals, err := revenue.NewFetcher(cfg, pool, hub).Fetch(ctx, windowStart, windowEnd)
		if err != nil {
			return eris.Wrap(err, "rollup: fetch deals")
		}

		rollup := revenue.Accumulate(deals, revenue.Options{
			WindowStart:       windowStart,
			WindowEnd:         windowEnd,
			ExcludedDealTypes: cfg.Revenue.ExcludedDealTypes,
		})

		if err := revenue.NewStore(pool).Save(ctx, rollup); err != nil {
			return eris.Wrap(err, "rollup: save")
		}

		fmt.Printf("Rollup complete: %d deals evaluated, %d excluded, %d buckets, %d missing contacts\n",
			rollup.DealsEvaluated, rollup.DealsExcluded, len(rollup.Buckets), rollup.MissingContact)
		return nil
	},
}

func init() {
	rollupCmd.Flags().Int("days", 0, "override the rollup window in days")
	rootCmd.AddCommand(rollupCmd)
}

// midnightUTC truncates a time to midnight UTC.
func midnightUTC(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
