// Package funnel turns attributed leads into campaign conversion funnels.
// Aggregation is pure and commutative, so results do not depend on the order
// facts were fetched.
package funnel

import (
	"sort"

	"github.com/tlpi-group/marketing-cli/internal/attribution"
	"github.com/tlpi-group/marketing-cli/internal/stage"
)

// Options tunes the funnel aggregation.
type Options struct {
	WindowDays int `json:"window_days"`
	MinLeads   int `json:"min_leads"` // floor for top/bottom ranking eligibility
	TopN       int `json:"top_n"`
	BottomN    int `json:"bottom_n"`
}

// DefaultOptions mirrors the production report settings.
func DefaultOptions() Options {
	return Options{WindowDays: 90, MinLeads: 30, TopN: 5, BottomN: 5}
}

// CampaignFunnel is the conversion funnel for one campaign (or for every
// lead combined, in the totals row).
type CampaignFunnel struct {
	Campaign          string `json:"campaign"`
	LeadsTotal        int    `json:"leads_total"`
	MarketingProspect int    `json:"marketing_prospect"`
	SalesQualified    int    `json:"sales_qualified"`
	ZoomBooked        int    `json:"zoom_booked"`
	Disqualified      int    `json:"disqualified"`
	DealsWon          int    `json:"deals_won"`

	MQLEligible int `json:"mql_eligible"`
	SQLTotal    int `json:"sql_total"`

	MQLEligibleRate  float64 `json:"mql_eligible_rate"`
	SQLRate          float64 `json:"sql_rate"`
	ZoomRate         float64 `json:"zoom_rate"`
	DisqualifiedRate float64 `json:"disqualified_rate"`
	MQLToSQLRate     float64 `json:"mql_to_sql_rate"`
	SQLToZoomRate    float64 `json:"sql_to_zoom_rate"`
}

// Views is the aggregated output. All is the full appendix: one row per
// campaign, unfiltered, so campaigns below the ranking floor and the
// unattributed bucket still show up somewhere. Totals is every lead combined.
type Views struct {
	Totals CampaignFunnel   `json:"totals"`
	All    []CampaignFunnel `json:"all"`
	Top    []CampaignFunnel `json:"top"`
	Bottom []CampaignFunnel `json:"bottom"`
}

// Aggregate builds funnel views from attributed leads. Leads in the
// Not Applicable stage are excluded entirely. deals_won counts are joined by
// campaign, defaulting to zero. Empty input yields empty views.
func Aggregate(leads []attribution.AttributedLead, stages *stage.Registry, wonByCampaign map[string]int, opts Options) Views {
	byCampaign := make(map[string]*CampaignFunnel)
	all := &CampaignFunnel{Campaign: "all"}

	for _, lead := range leads {
		s := stages.Resolve(lead.StageID)
		if s == stage.NotApplicable {
			continue
		}

		campaign := lead.Campaign
		if campaign == "" {
			campaign = attribution.Unattributed
		}

		f, ok := byCampaign[campaign]
		if !ok {
			f = &CampaignFunnel{Campaign: campaign}
			byCampaign[campaign] = f
		}
		count(f, s)
		count(all, s)
	}

	for campaign, f := range byCampaign {
		f.DealsWon = wonByCampaign[campaign]
		finalize(f)
	}
	for _, won := range wonByCampaign {
		all.DealsWon += won
	}
	finalize(all)

	// The appendix keeps every campaign; MinLeads only gates the ranking.
	allRows := make([]CampaignFunnel, 0, len(byCampaign))
	for _, f := range byCampaign {
		allRows = append(allRows, *f)
	}
	sort.SliceStable(allRows, func(i, j int) bool {
		if allRows[i].LeadsTotal != allRows[j].LeadsTotal {
			return allRows[i].LeadsTotal > allRows[j].LeadsTotal
		}
		return allRows[i].Campaign < allRows[j].Campaign
	})

	ranked := make([]*CampaignFunnel, 0, len(byCampaign))
	for _, f := range byCampaign {
		if f.LeadsTotal >= opts.MinLeads {
			ranked = append(ranked, f)
		}
	}
	// Tie-break on campaign name keeps the ranking reproducible.
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].ZoomRate != ranked[j].ZoomRate {
			return ranked[i].ZoomRate > ranked[j].ZoomRate
		}
		return ranked[i].Campaign < ranked[j].Campaign
	})

	views := Views{Totals: *all, All: allRows}
	for i := 0; i < len(ranked) && i < opts.TopN; i++ {
		views.Top = append(views.Top, *ranked[i])
	}
	for i := 0; i < len(ranked) && i < opts.BottomN; i++ {
		views.Bottom = append(views.Bottom, *ranked[len(ranked)-1-i])
	}
	return views
}

func count(f *CampaignFunnel, s stage.Stage) {
	f.LeadsTotal++
	switch s {
	case stage.MarketingProspect:
		f.MarketingProspect++
	case stage.SalesQualified:
		f.SalesQualified++
	case stage.ZoomBooked:
		f.ZoomBooked++
	case stage.Disqualified:
		f.Disqualified++
	}
}

func finalize(f *CampaignFunnel) {
	f.MQLEligible = max(0, f.LeadsTotal-f.MarketingProspect)
	f.SQLTotal = f.SalesQualified + f.ZoomBooked

	denom := float64(max(f.LeadsTotal, 1))
	f.MQLEligibleRate = float64(f.MQLEligible) / denom
	f.SQLRate = float64(f.SQLTotal) / denom
	f.ZoomRate = float64(f.ZoomBooked) / denom
	f.DisqualifiedRate = float64(f.Disqualified) / denom

	if f.MQLEligible > 0 {
		f.MQLToSQLRate = float64(f.SQLTotal) / float64(f.MQLEligible)
	}
	if f.SQLTotal > 0 {
		f.SQLToZoomRate = float64(f.ZoomBooked) / float64(f.SQLTotal)
	}
}
