package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tlpi-group/marketing-cli/internal/funnel"
	"github.com/tlpi-group/marketing-cli/internal/ingest"
	"github.com/tlpi-group/marketing-cli/internal/report"
	"github.com/tlpi-group/marketing-cli/internal/revenue"
	"github.com/tlpi-group/marketing-cli/pkg/anthropic"
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Weekly report generation",
}

var reportRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Build, narrate, and persist the weekly report",
	Long:  "Assembles the weekly payload from the caches, renders the narrative summary, stores the report, and optionally emails it.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		logger := zap.L().With(zap.String("component", "report"))

		pool, err := dbPool(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()

		hub, err := hubClient()
		if err != nil {
			return err
		}

		now := time.Now().UTC()

		truth, err := report.LoadTruth(ctx, pool)
		if err != nil {
			return err
		}
		campaigns, err := revenue.NewStore(pool).LoadCampaignTotals(ctx)
		if err != nil {
			return err
		}

		opts := funnel.Options{
			WindowDays: cfg.Funnel.WindowDays,
			MinLeads:   cfg.Funnel.MinLeads,
			TopN:       cfg.Funnel.TopN,
			BottomN:    cfg.Funnel.BottomN,
		}
		views, consultants, err := buildFunnels(ctx, pool, hub, opts)
		if err != nil {
			return err
		}

		failedJobs, err := ingest.NewSyncLog(pool).FailedSince(ctx, now.AddDate(0, 0, -7))
		if err != nil {
			return err
		}

		payload := report.BuildPayload(report.BuildInput{
			Now:         now,
			Truth:       truth,
			Campaigns:   campaigns,
			Funnel:      views,
			Consultants: consultants,
			FailedJobs:  failedJobs,
			TopN:        cfg.Report.TopCampaigns,
		})

		summary := renderSummary(cmd, payload)

		if err := report.NewStore(pool).Save(ctx, payload, summary); err != nil {
			return err
		}
		logger.Info("report stored", zap.String("week_start", payload.WeekStart))

		send, _ := cmd.Flags().GetBool("send")
		if send {
			subject := fmt.Sprintf("Weekly marketing report (%s)", payload.WeekStart)
			sent, err := report.NewMailer(cfg.SMTP).Send(subject, summary)
			if err != nil {
				return err
			}
			if sent {
				fmt.Printf("Report emailed to %s\n", cfg.SMTP.To)
			}
		}

		fmt.Printf("Report for week %s stored\n", payload.WeekStart)
		return nil
	},
}

func init() {
	reportRunCmd.Flags().Bool("send", false, "email the report after storing it")
	reportCmd.AddCommand(reportRunCmd)
	rootCmd.AddCommand(reportCmd)
}

// renderSummary produces the narrative, falling back to the placeholder when
// no Anthropic key is configured or the render fails.
func renderSummary(cmd *cobra.Command, payload report.Payload) string {
	if cfg.Anthropic.Key == "" {
		return report.PlaceholderSummary(payload)
	}

	renderer := report.NewAnthropicRenderer(
		anthropic.NewClient(cfg.Anthropic.Key),
		cfg.Anthropic.Model,
		cfg.Anthropic.MaxTokens,
	)
	summary, err := renderer.Render(cmd.Context(), payload)
	if err != nil {
		zap.L().Warn("narrative render failed, using placeholder", zap.Error(err))
		return report.PlaceholderSummary(payload)
	}
	return summary
}
