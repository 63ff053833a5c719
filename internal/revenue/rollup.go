// Package revenue rolls up CRM deals into attribution buckets: pipeline
// created and revenue won per campaign, source, medium, owner, and deal
// type. The accumulation is commutative, so deal fetch order never changes
// the totals.
package revenue

import (
	"sort"
	"strings"
	"time"

	"github.com/tlpi-group/marketing-cli/internal/attribution"
)

// Deal is one CRM deal prepared for accumulation. Contact is the primary
// associated contact's cached attribution row, nil when the deal has none.
type Deal struct {
	ID        string
	Amount    float64
	DealType  string
	OwnerID   string
	CreatedAt *time.Time
	ClosedAt  *time.Time
	Won       bool
	Contact   *attribution.Contact
}

// Key identifies one rollup bucket.
type Key struct {
	Campaign string
	Source   string
	Medium   string
	OwnerID  string
	DealType string
}

// Bucket aggregates deals sharing a key.
type Bucket struct {
	Key
	DealsCreated    int
	PipelineCreated float64
	DealsWon        int
	RevenueWon      float64
}

// Rollup is the aggregated output plus the data-quality counters the report
// surfaces.
type Rollup struct {
	WindowStart time.Time
	WindowEnd   time.Time

	Buckets map[Key]*Bucket

	DealsEvaluated int // every deal seen, including excluded types
	DealsExcluded  int
	MissingContact int
}

// Options tunes the rollup.
type Options struct {
	WindowStart       time.Time
	WindowEnd         time.Time
	ExcludedDealTypes []string
}

// Accumulate folds deals into buckets. Deals of an excluded type contribute
// nothing but are still counted as evaluated. A deal without a contact lands
// in the unattributed bucket and increments the missing-contact counter.
func Accumulate(deals []Deal, opts Options) *Rollup {
	excluded := newTypeSet(opts.ExcludedDealTypes)

	r := &Rollup{
		WindowStart: opts.WindowStart,
		WindowEnd:   opts.WindowEnd,
		Buckets:     make(map[Key]*Bucket),
	}

	for _, d := range deals {
		r.DealsEvaluated++
		if excluded.contains(d.DealType) {
			r.DealsExcluded++
			continue
		}

		campaign := attribution.ResolveDealCampaign(d.Contact)
		if d.Contact == nil {
			r.MissingContact++
		}

		key := Key{
			Campaign: campaign,
			OwnerID:  d.OwnerID,
			DealType: d.DealType,
		}
		if d.Contact != nil {
			key.Source = d.Contact.UTMSource
			key.Medium = d.Contact.UTMMedium
		}

		b, ok := r.Buckets[key]
		if !ok {
			b = &Bucket{Key: key}
			r.Buckets[key] = b
		}

		// Window bounds are half-open [start, end), matching the GTE/LT
		// filters the fetcher sends in CRM search requests.
		if d.CreatedAt != nil && !d.CreatedAt.Before(opts.WindowStart) && d.CreatedAt.Before(opts.WindowEnd) {
			b.DealsCreated++
			b.PipelineCreated += d.Amount
		}
		if d.Won && d.ClosedAt != nil && !d.ClosedAt.Before(opts.WindowStart) && d.ClosedAt.Before(opts.WindowEnd) {
			b.DealsWon++
			b.RevenueWon += d.Amount
		}
	}
	return r
}

// CampaignTotal is the per-campaign sum across buckets.
type CampaignTotal struct {
	Campaign        string  `json:"campaign"`
	DealsCreated    int     `json:"deals_created"`
	PipelineCreated float64 `json:"pipeline_created"`
	DealsWon        int     `json:"deals_won"`
	RevenueWon      float64 `json:"revenue_won"`
}

// ByCampaign collapses buckets into per-campaign totals, sorted by revenue
// won descending then campaign name.
func (r *Rollup) ByCampaign() []CampaignTotal {
	byName := make(map[string]*CampaignTotal)
	for key, b := range r.Buckets {
		t, ok := byName[key.Campaign]
		if !ok {
			t = &CampaignTotal{Campaign: key.Campaign}
			byName[key.Campaign] = t
		}
		t.DealsCreated += b.DealsCreated
		t.PipelineCreated += b.PipelineCreated
		t.DealsWon += b.DealsWon
		t.RevenueWon += b.RevenueWon
	}

	out := make([]CampaignTotal, 0, len(byName))
	for _, t := range byName {
		out = append(out, *t)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].RevenueWon != out[j].RevenueWon {
			return out[i].RevenueWon > out[j].RevenueWon
		}
		return out[i].Campaign < out[j].Campaign
	})
	return out
}

// WonByCampaign returns deals won per campaign for the funnel join.
func (r *Rollup) WonByCampaign() map[string]int {
	out := make(map[string]int)
	for key, b := range r.Buckets {
		out[key.Campaign] += b.DealsWon
	}
	return out
}

type typeSet map[string]bool

func newTypeSet(types []string) typeSet {
	set := make(typeSet, len(types))
	for _, t := range types {
		if n := normType(t); n != "" {
			set[n] = true
		}
	}
	return set
}

func (s typeSet) contains(t string) bool { return s[normType(t)] }

func normType(t string) string {
	return strings.ToLower(strings.TrimSpace(t))
}
