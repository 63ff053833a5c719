package revenue

import (
	"context"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/tlpi-group/marketing-cli/internal/attribution"
	"github.com/tlpi-group/marketing-cli/internal/config"
	"github.com/tlpi-group/marketing-cli/internal/db"
	"github.com/tlpi-group/marketing-cli/internal/resilience"
	"github.com/tlpi-group/marketing-cli/pkg/hubspot"
)

var dealProperties = []string{
	"amount",
	"dealtype",
	"pipeline",
	"dealstage",
	"hubspot_owner_id",
	"createdate",
	"closedate",
}

// Fetcher pulls window deals from the CRM and joins each to its primary
// contact's cached attribution row.
type Fetcher struct {
	cfg  *config.Config
	pool db.Pool
	hub  hubspot.Client
}

// NewFetcher creates a deal fetcher.
func NewFetcher(cfg *config.Config, pool db.Pool, hub hubspot.Client) *Fetcher {
	return &Fetcher{cfg: cfg, pool: pool, hub: hub}
}

// Fetch returns every deal either created or closed-won inside
// [windowStart, windowEnd). A deal created and won in the same window
// appears once with both flags reflected.
func (f *Fetcher) Fetch(ctx context.Context, windowStart, windowEnd time.Time) ([]Deal, error) {
	log := zap.L().With(zap.String("component", "revenue.fetcher"))

	created, err := f.searchDeals(ctx, []hubspot.Filter{
		{PropertyName: "createdate", Operator: "GTE", Value: epochMs(windowStart)},
		{PropertyName: "createdate", Operator: "LT", Value: epochMs(windowEnd)},
	})
	if err != nil {
		return nil, eris.Wrap(err, "revenue: search created deals")
	}

	wonFilters := []hubspot.Filter{
		{PropertyName: "closedate", Operator: "GTE", Value: epochMs(windowStart)},
		{PropertyName: "closedate", Operator: "LT", Value: epochMs(windowEnd)},
	}
	if ids := f.cfg.Revenue.WonStageIDs; len(ids) == 1 {
		wonFilters = append(wonFilters, hubspot.Filter{PropertyName: "dealstage", Operator: "EQ", Value: ids[0]})
	} else if len(ids) > 1 {
		wonFilters = append(wonFilters, hubspot.Filter{PropertyName: "dealstage", Operator: "IN", Values: ids})
	}
	won, err := f.searchDeals(ctx, wonFilters)
	if err != nil {
		return nil, eris.Wrap(err, "revenue: search won deals")
	}

	merged := mergeDeals(created, won)

	contacts, err := f.primaryContacts(ctx, merged)
	if err != nil {
		return nil, err
	}

	wonStages := make(map[string]bool, len(f.cfg.Revenue.WonStageIDs))
	for _, id := range f.cfg.Revenue.WonStageIDs {
		wonStages[id] = true
	}

	deals := make([]Deal, 0, len(merged))
	for _, obj := range merged {
		deals = append(deals, Deal{
			ID:        obj.ID,
			Amount:    parseAmount(obj.Property("amount")),
			DealType:  obj.Property("dealtype"),
			OwnerID:   obj.Property("hubspot_owner_id"),
			CreatedAt: parseTimestamp(obj.Property("createdate")),
			ClosedAt:  parseTimestamp(obj.Property("closedate")),
			Won:       wonStages[obj.Property("dealstage")],
			Contact:   contacts[obj.ID],
		})
	}

	log.Info("deals fetched",
		zap.Int("created", len(created)),
		zap.Int("won", len(won)),
		zap.Int("merged", len(deals)),
	)
	return deals, nil
}

func (f *Fetcher) searchDeals(ctx context.Context, filters []hubspot.Filter) ([]hubspot.Object, error) {
	retry := resilience.DefaultRetryConfig()
	retry.OnRetry = resilience.RetryLogger("hubspot", "search deals")

	var out []hubspot.Object
	after := ""
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		req := hubspot.SearchRequest{
			FilterGroups: []hubspot.FilterGroup{{Filters: filters}},
			Properties:   dealProperties,
			Limit:        f.cfg.Ingest.PageSize,
			After:        after,
		}
		page, err := resilience.DoVal(ctx, retry, func(ctx context.Context) (*hubspot.SearchPage, error) {
			return f.hub.Search(ctx, "deals", req)
		})
		if err != nil {
			return nil, err
		}

		out = append(out, page.Results...)
		after = page.NextAfter()
		if after == "" {
			return out, nil
		}
	}
}

// primaryContacts resolves each deal's first associated contact against the
// local contact cache.
func (f *Fetcher) primaryContacts(ctx context.Context, deals []hubspot.Object) (map[string]*attribution.Contact, error) {
	ids := make([]string, 0, len(deals))
	for _, d := range deals {
		if d.ID != "" {
			ids = append(ids, d.ID)
		}
	}
	if len(ids) == 0 {
		return map[string]*attribution.Contact{}, nil
	}

	retry := resilience.DefaultRetryConfig()
	retry.OnRetry = resilience.RetryLogger("hubspot", "deal associations")
	edges, err := resilience.DoVal(ctx, retry, func(ctx context.Context) ([]hubspot.AssociationEdge, error) {
		return f.hub.BatchAssociations(ctx, "deals", "contacts", ids)
	})
	if err != nil {
		return nil, eris.Wrap(err, "revenue: deal associations")
	}

	primary := make(map[string]string, len(edges))
	contactIDs := make([]string, 0, len(edges))
	seen := make(map[string]bool)
	for _, e := range edges {
		if len(e.To) == 0 || e.From.ID == "" {
			continue
		}
		cid := e.To[0].ID
		primary[e.From.ID] = cid
		if !seen[cid] {
			seen[cid] = true
			contactIDs = append(contactIDs, cid)
		}
	}
	if len(contactIDs) == 0 {
		return map[string]*attribution.Contact{}, nil
	}

	cached, err := f.loadContacts(ctx, contactIDs)
	if err != nil {
		return nil, err
	}

	out := make(map[string]*attribution.Contact, len(primary))
	for dealID, cid := range primary {
		if c, ok := cached[cid]; ok {
			out[dealID] = c
		}
	}
	return out, nil
}

func (f *Fetcher) loadContacts(ctx context.Context, ids []string) (map[string]*attribution.Contact, error) {
	rows, err := f.pool.Query(ctx,
		`SELECT contact_id, email, utm_campaign, utm_source, utm_medium,
		        first_touch_campaign, last_touch_campaign
		 FROM crm_data.contact_attribution
		 WHERE contact_id = ANY($1)`,
		ids,
	)
	if err != nil {
		return nil, eris.Wrap(err, "revenue: load contact cache")
	}
	defer rows.Close()

	out := make(map[string]*attribution.Contact)
	for rows.Next() {
		var c attribution.Contact
		var email, campaign, source, medium, first, last *string
		if err := rows.Scan(&c.ID, &email, &campaign, &source, &medium, &first, &last); err != nil {
			return nil, eris.Wrap(err, "revenue: scan contact")
		}
		c.Email = strDeref(email)
		c.UTMCampaign = strDeref(campaign)
		c.UTMSource = strDeref(source)
		c.UTMMedium = strDeref(medium)
		c.FirstTouchCampaign = strDeref(first)
		c.LastTouchCampaign = strDeref(last)
		out[c.ID] = &c
	}
	return out, rows.Err()
}

// mergeDeals unions the two searches by deal ID, the created set first.
func mergeDeals(created, won []hubspot.Object) []hubspot.Object {
	seen := make(map[string]bool, len(created))
	out := make([]hubspot.Object, 0, len(created)+len(won))
	for _, d := range created {
		if d.ID == "" || seen[d.ID] {
			continue
		}
		seen[d.ID] = true
		out = append(out, d)
	}
	for _, d := range won {
		if d.ID == "" || seen[d.ID] {
			continue
		}
		seen[d.ID] = true
		out = append(out, d)
	}
	return out
}

func parseAmount(s string) float64 {
	if s == "" {
		return 0
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}

func parseTimestamp(s string) *time.Time {
	if s == "" {
		return nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return &t
	}
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		t := time.UnixMilli(ms).UTC()
		return &t
	}
	return nil
}

func epochMs(t time.Time) string {
	return strconv.FormatInt(t.UnixMilli(), 10)
}

func strDeref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
