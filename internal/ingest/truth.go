package ingest

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/tlpi-group/marketing-cli/internal/config"
	"github.com/tlpi-group/marketing-cli/internal/db"
	"github.com/tlpi-group/marketing-cli/internal/resilience"
	"github.com/tlpi-group/marketing-cli/pkg/hubspot"
)

// dealTruthProperties are the deal properties the truth rollup reads.
var dealTruthProperties = []string{
	"amount",
	"total_no_of_sales",
	"dealtype",
	"pipeline",
	"dealstage",
	"createdate",
	"closedate",
}

// Truth computes ground-truth sales totals for the window straight from the
// CRM: every closed-won deal by close date, independent of attribution.
// Revenue is split by primary-contact age so the report can separate new
// prospects from the existing base.
type Truth struct {
	cfg *config.Config
}

func (j *Truth) Name() string     { return "truth" }
func (j *Truth) Table() string    { return "crm_data.sales_truth_totals" }
func (j *Truth) Cadence() Cadence { return Weekly }

func (j *Truth) ShouldRun(now time.Time, lastSync *time.Time) bool {
	return WeeklySchedule(now, lastSync)
}

func (j *Truth) Sync(ctx context.Context, pool db.Pool, hub hubspot.Client) (*SyncResult, error) {
	log := zap.L().With(zap.String("job", j.Name()))

	windowEnd := startOfDay(time.Now().UTC())
	windowStart := windowEnd.AddDate(0, 0, -j.cfg.Revenue.WindowDays)

	deals, err := j.searchWonDeals(ctx, hub, windowStart, windowEnd)
	if err != nil {
		return nil, err
	}

	excluded := excludedTypeSet(j.cfg.Revenue.ExcludedDealTypes)
	var kept []hubspot.Object
	for _, d := range deals {
		if isExcludedDealType(d.Property("dealtype"), excluded) {
			continue
		}
		kept = append(kept, d)
	}

	dealContacts, contactCreated, err := j.primaryContacts(ctx, hub, kept)
	if err != nil {
		return nil, err
	}

	var (
		dealsWon       int
		revenueWon     float64
		unitsSold      int
		revenueNew     float64
		revenueOld     float64
		missingContact int
	)

	for _, d := range kept {
		amount := parseFloat64Or(d.Property("amount"), 0)
		units := parseIntOr(d.Property("total_no_of_sales"), 0)
		closed := parseTimePtr(d.Property("closedate"))

		dealsWon++
		revenueWon += amount
		unitsSold += units

		cids := dealContacts[d.ID]
		if len(cids) == 0 || closed == nil {
			missingContact++
			revenueOld += amount
			continue
		}

		created, ok := contactCreated[cids[0]]
		if !ok {
			missingContact++
			revenueOld += amount
			continue
		}

		ageDays := int(closed.Sub(created).Hours() / 24)
		if ageDays <= j.cfg.Revenue.NewProspectDays {
			revenueNew += amount
		} else {
			revenueOld += amount
		}
	}

	n, err := upsertBatches(ctx, pool, db.UpsertConfig{
		Table: j.Table(),
		Columns: []string{
			"window_start", "window_end", "deals_won", "revenue_won", "units_sold",
			"revenue_new_prospects", "revenue_old_prospects", "deals_missing_contact",
			"updated_at",
		},
		ConflictKeys: []string{"window_start", "window_end"},
	}, [][]any{{
		windowStart, windowEnd, dealsWon, revenueWon, unitsSold,
		revenueNew, revenueOld, missingContact, time.Now().UTC(),
	}})
	if err != nil {
		return nil, eris.Wrap(err, "truth: upsert totals")
	}

	log.Info("sales truth totals rolled up",
		zap.Time("window_start", windowStart),
		zap.Time("window_end", windowEnd),
		zap.Int("deals_won", dealsWon),
		zap.Float64("revenue_won", revenueWon),
		zap.Int("deals_missing_contact", missingContact),
	)
	return &SyncResult{
		RowsSynced: n,
		Metadata: map[string]any{
			"deals_evaluated":       len(deals),
			"deals_won":             dealsWon,
			"deals_missing_contact": missingContact,
		},
	}, nil
}

// searchWonDeals pages the CRM deal search for closed-won deals with a close
// date inside [start, end).
func (j *Truth) searchWonDeals(ctx context.Context, hub hubspot.Client, start, end time.Time) ([]hubspot.Object, error) {
	filters := []hubspot.Filter{
		wonStageFilter(j.cfg.Revenue.WonStageIDs),
		{PropertyName: "closedate", Operator: "GTE", Value: epochMs(start)},
		{PropertyName: "closedate", Operator: "LT", Value: epochMs(end)},
	}

	var deals []hubspot.Object
	after := ""
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		req := hubspot.SearchRequest{
			FilterGroups: []hubspot.FilterGroup{{Filters: filters}},
			Properties:   dealTruthProperties,
			Limit:        j.cfg.Ingest.PageSize,
			After:        after,
		}

		page, err := resilience.DoVal(ctx, apiRetry("search deals"), func(ctx context.Context) (*hubspot.SearchPage, error) {
			return hub.Search(ctx, "deals", req)
		})
		if err != nil {
			return nil, eris.Wrap(err, "truth: search deals")
		}

		deals = append(deals, page.Results...)
		after = page.NextAfter()
		if after == "" {
			break
		}
	}
	return deals, nil
}

// primaryContacts resolves each deal's associated contacts and the creation
// time of every referenced contact.
func (j *Truth) primaryContacts(ctx context.Context, hub hubspot.Client, deals []hubspot.Object) (map[string][]string, map[string]time.Time, error) {
	dealIDs := make([]string, 0, len(deals))
	for _, d := range deals {
		if d.ID != "" {
			dealIDs = append(dealIDs, d.ID)
		}
	}

	dealContacts := make(map[string][]string, len(dealIDs))
	contactCreated := make(map[string]time.Time)
	if len(dealIDs) == 0 {
		return dealContacts, contactCreated, nil
	}

	edges, err := resilience.DoVal(ctx, apiRetry("deal associations"), func(ctx context.Context) ([]hubspot.AssociationEdge, error) {
		return hub.BatchAssociations(ctx, "deals", "contacts", dealIDs)
	})
	if err != nil {
		return nil, nil, eris.Wrap(err, "truth: deal associations")
	}

	contactSet := make(map[string]bool)
	for _, e := range edges {
		for _, to := range e.To {
			if to.ID == "" {
				continue
			}
			dealContacts[e.From.ID] = append(dealContacts[e.From.ID], to.ID)
			contactSet[to.ID] = true
		}
	}

	contactIDs := make([]string, 0, len(contactSet))
	for id := range contactSet {
		contactIDs = append(contactIDs, id)
	}
	if len(contactIDs) == 0 {
		return dealContacts, contactCreated, nil
	}

	contacts, err := resilience.DoVal(ctx, apiRetry("contact createdates"), func(ctx context.Context) ([]hubspot.Object, error) {
		return hub.BatchRead(ctx, "contacts", contactIDs, []string{"createdate"})
	})
	if err != nil {
		return nil, nil, eris.Wrap(err, "truth: contact createdates")
	}

	for _, c := range contacts {
		if t := parseTimePtr(c.Property("createdate")); t != nil {
			contactCreated[c.ID] = *t
		}
	}
	return dealContacts, contactCreated, nil
}

// wonStageFilter builds the dealstage filter, using EQ for a single stage and
// IN for a set.
func wonStageFilter(stageIDs []string) hubspot.Filter {
	if len(stageIDs) == 1 {
		return hubspot.Filter{PropertyName: "dealstage", Operator: "EQ", Value: stageIDs[0]}
	}
	return hubspot.Filter{PropertyName: "dealstage", Operator: "IN", Values: stageIDs}
}

// excludedTypeSet normalises the configured deal-type exclusions.
func excludedTypeSet(types []string) map[string]bool {
	set := make(map[string]bool, len(types))
	for _, t := range types {
		t = strings.ToLower(strings.TrimSpace(t))
		if t != "" {
			set[t] = true
		}
	}
	return set
}

// isExcludedDealType reports whether a deal type is in the exclusion set.
func isExcludedDealType(dealType string, excluded map[string]bool) bool {
	return excluded[strings.ToLower(strings.TrimSpace(dealType))]
}

func epochMs(t time.Time) string {
	return strconv.FormatInt(t.UnixMilli(), 10)
}
