package main

import (
	"context"
	"encoding/json"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/tlpi-group/marketing-cli/internal/attribution"
	"github.com/tlpi-group/marketing-cli/internal/db"
	"github.com/tlpi-group/marketing-cli/internal/funnel"
	"github.com/tlpi-group/marketing-cli/internal/revenue"
	"github.com/tlpi-group/marketing-cli/internal/stage"
	"github.com/tlpi-group/marketing-cli/pkg/hubspot"
)

var funnelCmd = &cobra.Command{
	Use:   "funnel",
	Short: "Print campaign and consultant funnels",
	Long:  "Attributes window leads to campaigns and prints the funnel views and consultant performance as JSON.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		pool, err := dbPool(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()

		hub, err := hubClient()
		if err != nil {
			return err
		}

		opts := funnel.Options{
			WindowDays: cfg.Funnel.WindowDays,
			MinLeads:   cfg.Funnel.MinLeads,
			TopN:       cfg.Funnel.TopN,
			BottomN:    cfg.Funnel.BottomN,
		}
		if days, _ := cmd.Flags().GetInt("days"); days > 0 {
			opts.WindowDays = days
		}
		if minLeads, _ := cmd.Flags().GetInt("min-leads"); minLeads > 0 {
			opts.MinLeads = minLeads
		}
		if topN, _ := cmd.Flags().GetInt("top"); topN > 0 {
			opts.TopN = topN
			opts.BottomN = topN
		}

		views, consultants, err := buildFunnels(ctx, pool, hub, opts)
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(struct {
			Funnel      funnel.Views              `json:"funnel"`
			Consultants []funnel.ConsultantFunnel `json:"consultants"`
		}{views, consultants})
	},
}

func init() {
	funnelCmd.Flags().Int("days", 0, "override the funnel window in days")
	funnelCmd.Flags().Int("min-leads", 0, "override the ranking eligibility floor")
	funnelCmd.Flags().Int("top", 0, "override the top/bottom list length")
	rootCmd.AddCommand(funnelCmd)
}

// buildFunnels attributes window leads and aggregates the campaign and
// consultant funnels.
func buildFunnels(ctx context.Context, pool db.Pool, hub hubspot.Client, opts funnel.Options) (funnel.Views, []funnel.ConsultantFunnel, error) {
	stages, err := stageRegistry(ctx, hub)
	if err != nil {
		return funnel.Views{}, nil, err
	}

	windowEnd := midnightUTC(time.Now())
	windowStart := windowEnd.AddDate(0, 0, -opts.WindowDays)

	lookback := time.Duration(cfg.Attribution.LookbackDays) * 24 * time.Hour
	lookahead := time.Duration(cfg.Attribution.LookaheadDays) * 24 * time.Hour

	data, err := attribution.NewLoader(pool, lookback, lookahead).Load(ctx, windowStart, windowEnd)
	if err != nil {
		return funnel.Views{}, nil, err
	}

	resolver := attribution.NewResolver(
		attribution.NewSubmissionIndex(data.Submissions),
		data.Contacts,
		lookback,
		lookahead,
	)
	leads := resolver.Attribute(data.Leads)

	wonByCampaign, err := loadWonByCampaign(ctx, pool)
	if err != nil {
		return funnel.Views{}, nil, err
	}

	ownerNames, err := loadOwnerNames(ctx, pool)
	if err != nil {
		return funnel.Views{}, nil, err
	}

	views := funnel.Aggregate(leads, stages, wonByCampaign, opts)
	consultants := funnel.Consultants(leads, stages, ownerNames, cfg.Funnel.Consultants)
	return views, consultants, nil
}

// stageRegistry resolves the lead pipeline stage mapping, preferring pinned
// config IDs and falling back to CRM pipeline labels for anything missing.
func stageRegistry(ctx context.Context, hub hubspot.Client) (*stage.Registry, error) {
	pinned := stage.FromConfig(cfg.Stages)
	if pinned.Validate() == nil {
		return pinned, nil
	}

	pipelines, err := hub.ListPipelines(ctx, "leads")
	if err != nil {
		return nil, eris.Wrap(err, "resolve lead pipeline stages")
	}
	resolved, err := stage.FromPipeline(pipelines, cfg.Stages.PipelineID)
	if err != nil {
		return nil, err
	}

	merged := stage.Merge(resolved, pinned)
	if err := merged.Validate(); err != nil {
		return nil, err
	}
	return merged, nil
}

func loadWonByCampaign(ctx context.Context, pool db.Pool) (map[string]int, error) {
	totals, err := revenue.NewStore(pool).LoadCampaignTotals(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]int, len(totals))
	for _, t := range totals {
		out[t.Campaign] = t.DealsWon
	}
	return out, nil
}

func loadOwnerNames(ctx context.Context, pool db.Pool) (map[string]string, error) {
	rows, err := pool.Query(ctx,
		`SELECT owner_id, full_name FROM crm_data.owner_cache WHERE full_name IS NOT NULL`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "load owner names")
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var id, name string
		if err := rows.Scan(&id, &name); err != nil {
			return nil, eris.Wrap(err, "scan owner name")
		}
		out[id] = name
	}
	return out, rows.Err()
}
