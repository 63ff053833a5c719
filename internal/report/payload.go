// Package report assembles the weekly marketing report: a JSON payload of
// truth totals, attributed rollups, funnels, and consultant performance,
// narrated into boardroom prose and delivered by email.
package report

import (
	"sort"
	"time"

	"github.com/tlpi-group/marketing-cli/internal/attribution"
	"github.com/tlpi-group/marketing-cli/internal/funnel"
	"github.com/tlpi-group/marketing-cli/internal/revenue"
)

// TruthTotals is the latest ground-truth sales rollup. Revenue here comes
// straight from closed-won deals by close date, independent of attribution.
type TruthTotals struct {
	WindowStart         time.Time `json:"window_start"`
	WindowEnd           time.Time `json:"window_end"`
	DealsWon            int       `json:"deals_won"`
	RevenueWon          float64   `json:"revenue_won"`
	UnitsSold           int       `json:"units_sold"`
	RevenueNewProspects float64   `json:"revenue_new_prospects"`
	RevenueOldProspects float64   `json:"revenue_old_prospects"`
	DealsMissingContact int       `json:"deals_missing_contact"`
}

// Totals is the attribution coverage summary. Truth-derived fields are
// pointers: when truth totals are missing they stay null rather than being
// fabricated as zeros.
type Totals struct {
	TruthRevenue *float64 `json:"truth_revenue"`
	TruthDeals   *int     `json:"truth_deals"`
	TruthUnits   *int     `json:"truth_units"`
	RevenueNew   *float64 `json:"revenue_new"`
	RevenueOld   *float64 `json:"revenue_old"`

	AttributedRevenue  float64 `json:"attributed_revenue"`
	AttributedDealsWon int     `json:"attributed_deals_won"`
	AttributedPipeline float64 `json:"attributed_pipeline"`

	UnattributedRevenue *float64 `json:"unattributed_revenue"`
	UnattributedDeals   *int     `json:"unattributed_deals"`
}

// DataGaps lists the known holes in this week's data.
type DataGaps struct {
	FailedJobs          []string `json:"failed_jobs,omitempty"`
	DealsMissingContact int      `json:"deals_missing_contact"`
	TruthMissing        bool     `json:"truth_missing"`
}

// Payload is the full report input handed to the narrative renderer and
// persisted alongside the summary.
type Payload struct {
	WeekStart   string    `json:"week_start"`
	GeneratedAt time.Time `json:"generated_at"`

	Truth  *TruthTotals `json:"truth"`
	Totals Totals       `json:"totals"`

	TopByRevenue  []revenue.CampaignTotal `json:"top_by_revenue"`
	TopByPipeline []revenue.CampaignTotal `json:"top_by_pipeline"`

	Funnel      funnel.Views              `json:"funnel"`
	Consultants []funnel.ConsultantFunnel `json:"consultants"`

	DataGaps DataGaps `json:"data_gaps"`
}

// BuildInput carries everything BuildPayload needs.
type BuildInput struct {
	Now         time.Time
	Truth       *TruthTotals
	Campaigns   []revenue.CampaignTotal
	Funnel      funnel.Views
	Consultants []funnel.ConsultantFunnel
	FailedJobs  []string
	TopN        int // campaigns per top list
}

// BuildPayload assembles the report payload. Pure; all loading happens
// upstream.
func BuildPayload(in BuildInput) Payload {
	topN := in.TopN
	if topN <= 0 {
		topN = 8
	}

	p := Payload{
		WeekStart:   MostRecentMonday(in.Now).Format("2006-01-02"),
		GeneratedAt: in.Now,
		Truth:       in.Truth,
		Funnel:      in.Funnel,
		Consultants: in.Consultants,
		DataGaps: DataGaps{
			FailedJobs:   in.FailedJobs,
			TruthMissing: in.Truth == nil,
		},
	}

	// Only real campaigns count as attributed; the unattributed bucket is
	// the remainder, not a campaign.
	for _, c := range in.Campaigns {
		if c.Campaign == attribution.Unattributed {
			continue
		}
		p.Totals.AttributedRevenue += c.RevenueWon
		p.Totals.AttributedDealsWon += c.DealsWon
		p.Totals.AttributedPipeline += c.PipelineCreated
	}

	if in.Truth != nil {
		p.Totals.TruthRevenue = f64Ptr(in.Truth.RevenueWon)
		p.Totals.TruthDeals = intPtr(in.Truth.DealsWon)
		p.Totals.TruthUnits = intPtr(in.Truth.UnitsSold)
		p.Totals.RevenueNew = f64Ptr(in.Truth.RevenueNewProspects)
		p.Totals.RevenueOld = f64Ptr(in.Truth.RevenueOldProspects)
		p.Totals.UnattributedRevenue = f64Ptr(max(0, in.Truth.RevenueWon-p.Totals.AttributedRevenue))
		p.Totals.UnattributedDeals = intPtr(max(0, in.Truth.DealsWon-p.Totals.AttributedDealsWon))
		p.DataGaps.DealsMissingContact = in.Truth.DealsMissingContact
	}

	p.TopByRevenue = topCampaigns(in.Campaigns, topN, func(c revenue.CampaignTotal) float64 { return c.RevenueWon })
	p.TopByPipeline = topCampaigns(in.Campaigns, topN, func(c revenue.CampaignTotal) float64 { return c.PipelineCreated })

	return p
}

// MostRecentMonday returns the Monday of the week containing t, at midnight
// UTC.
func MostRecentMonday(t time.Time) time.Time {
	t = t.UTC()
	weekday := int(t.Weekday())
	if weekday == 0 {
		weekday = 7
	}
	return time.Date(t.Year(), t.Month(), t.Day()-(weekday-1), 0, 0, 0, 0, time.UTC)
}

func topCampaigns(campaigns []revenue.CampaignTotal, n int, metric func(revenue.CampaignTotal) float64) []revenue.CampaignTotal {
	filtered := make([]revenue.CampaignTotal, 0, len(campaigns))
	for _, c := range campaigns {
		if c.Campaign == attribution.Unattributed {
			continue
		}
		filtered = append(filtered, c)
	}

	sort.SliceStable(filtered, func(i, j int) bool {
		if metric(filtered[i]) != metric(filtered[j]) {
			return metric(filtered[i]) > metric(filtered[j])
		}
		return filtered[i].Campaign < filtered[j].Campaign
	})
	if len(filtered) > n {
		filtered = filtered[:n]
	}
	return filtered
}

func f64Ptr(v float64) *float64 { return &v }
func intPtr(v int) *int         { return &v }
