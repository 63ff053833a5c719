package revenue

import (
	"context"
	"sort"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/tlpi-group/marketing-cli/internal/db"
)

// Store persists rollup snapshots. Each save replaces the previous snapshot
// wholesale so buckets that vanished from the window do not linger.
type Store struct {
	pool db.Pool
}

// NewStore creates a rollup store.
func NewStore(pool db.Pool) *Store {
	return &Store{pool: pool}
}

// Save writes the per-bucket rows and the per-campaign sums.
func (s *Store) Save(ctx context.Context, r *Rollup) error {
	log := zap.L().With(zap.String("component", "revenue.store"))
	capturedAt := time.Now().UTC()

	if _, err := s.pool.Exec(ctx, `DELETE FROM crm_data.deal_revenue_rollup`); err != nil {
		return eris.Wrap(err, "revenue: clear bucket rollup")
	}

	keys := make([]Key, 0, len(r.Buckets))
	for k := range r.Buckets {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, b := keys[i], keys[j]
		if a.Campaign != b.Campaign {
			return a.Campaign < b.Campaign
		}
		if a.Source != b.Source {
			return a.Source < b.Source
		}
		if a.Medium != b.Medium {
			return a.Medium < b.Medium
		}
		if a.OwnerID != b.OwnerID {
			return a.OwnerID < b.OwnerID
		}
		return a.DealType < b.DealType
	})

	bucketRows := make([][]any, 0, len(keys))
	for _, k := range keys {
		b := r.Buckets[k]
		bucketRows = append(bucketRows, []any{
			k.Campaign, k.Source, k.Medium, k.OwnerID, k.DealType,
			b.DealsCreated, b.PipelineCreated, b.DealsWon, b.RevenueWon,
			r.WindowStart, r.WindowEnd, capturedAt,
		})
	}

	// The table was just cleared, so a plain COPY is safe and fast.
	if _, err := db.CopyInto(ctx, s.pool, "crm_data.deal_revenue_rollup",
		[]string{
			"utm_campaign", "utm_source", "utm_medium", "owner_id", "deal_type",
			"deals_created", "pipeline_created", "deals_won", "revenue_won",
			"window_start", "window_end", "captured_at",
		}, bucketRows); err != nil {
		return eris.Wrap(err, "revenue: save bucket rollup")
	}

	if _, err := s.pool.Exec(ctx, `DELETE FROM crm_data.campaign_rollup`); err != nil {
		return eris.Wrap(err, "revenue: clear campaign rollup")
	}

	totals := r.ByCampaign()
	campaignRows := make([][]any, 0, len(totals))
	for _, t := range totals {
		campaignRows = append(campaignRows, []any{
			t.Campaign, t.DealsCreated, t.PipelineCreated, t.DealsWon, t.RevenueWon,
			r.WindowStart, r.WindowEnd, capturedAt,
		})
	}

	if _, err := db.CopyInto(ctx, s.pool, "crm_data.campaign_rollup",
		[]string{
			"utm_campaign", "deals_created", "pipeline_created", "deals_won", "revenue_won",
			"window_start", "window_end", "captured_at",
		}, campaignRows); err != nil {
		return eris.Wrap(err, "revenue: save campaign rollup")
	}

	log.Info("rollup saved",
		zap.Int("buckets", len(bucketRows)),
		zap.Int("campaigns", len(campaignRows)),
		zap.Int("deals_evaluated", r.DealsEvaluated),
		zap.Int("missing_contact", r.MissingContact),
	)
	return nil
}

// LoadCampaignTotals reads the persisted per-campaign sums, ordered by
// revenue won descending.
func (s *Store) LoadCampaignTotals(ctx context.Context) ([]CampaignTotal, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT utm_campaign, deals_created, pipeline_created, deals_won, revenue_won
		 FROM crm_data.campaign_rollup
		 ORDER BY revenue_won DESC, utm_campaign`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "revenue: load campaign totals")
	}
	defer rows.Close()

	var out []CampaignTotal
	for rows.Next() {
		var t CampaignTotal
		if err := rows.Scan(&t.Campaign, &t.DealsCreated, &t.PipelineCreated, &t.DealsWon, &t.RevenueWon); err != nil {
			return nil, eris.Wrap(err, "revenue: scan campaign total")
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
