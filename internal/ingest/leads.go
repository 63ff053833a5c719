package ingest

import (
	"context"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/tlpi-group/marketing-cli/internal/config"
	"github.com/tlpi-group/marketing-cli/internal/db"
	"github.com/tlpi-group/marketing-cli/internal/resilience"
	"github.com/tlpi-group/marketing-cli/pkg/hubspot"
)

// leadProperties are the CRM lead properties the funnel needs.
var leadProperties = []string{
	"hs_createdate",
	"hs_lastmodifieddate",
	"hs_lead_status",
	"hs_lead_stage",
	"hubspot_owner_id",
	"hs_lead_disqualification_reason",
}

// Leads ingests CRM leads modified inside the rolling window into lead_facts.
type Leads struct {
	cfg *config.Config
}

func (j *Leads) Name() string     { return "leads" }
func (j *Leads) Table() string    { return "crm_data.lead_facts" }
func (j *Leads) Cadence() Cadence { return Daily }

func (j *Leads) ShouldRun(now time.Time, lastSync *time.Time) bool {
	return DailySchedule(now, lastSync)
}

func (j *Leads) Sync(ctx context.Context, pool db.Pool, hub hubspot.Client) (*SyncResult, error) {
	log := zap.L().With(zap.String("job", j.Name()))

	now := time.Now().UTC()
	since := now.AddDate(0, 0, -j.cfg.Ingest.WindowDays)
	sinceMs := strconv.FormatInt(since.UnixMilli(), 10)

	var rows [][]any
	after := ""
	pages := 0

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		req := hubspot.SearchRequest{
			FilterGroups: []hubspot.FilterGroup{{Filters: []hubspot.Filter{{
				PropertyName: "hs_lastmodifieddate",
				Operator:     "GTE",
				Value:        sinceMs,
			}}}},
			Sorts: []hubspot.Sort{{
				PropertyName: "hs_lastmodifieddate",
				Direction:    "ASCENDING",
			}},
			Properties: leadProperties,
			Limit:      j.cfg.Ingest.PageSize,
			After:      after,
		}

		page, err := resilience.DoVal(ctx, apiRetry("search leads"), func(ctx context.Context) (*hubspot.SearchPage, error) {
			return hub.Search(ctx, "leads", req)
		})
		if err != nil {
			return nil, eris.Wrap(err, "leads: search page")
		}
		pages++

		for _, r := range page.Results {
			if r.ID == "" {
				continue
			}
			createdAt := parseTimeOr(r.Property("hs_createdate"), parseTimeOr(r.CreatedAt, now))
			updatedAt := parseTimeOr(r.Property("hs_lastmodifieddate"), parseTimeOr(r.UpdatedAt, now))

			rows = append(rows, []any{
				r.ID,
				createdAt,
				updatedAt,
				normStr(r.Property("hs_lead_status")),
				normStr(r.Property("hs_lead_stage")),
				normStr(r.Property("hubspot_owner_id")),
				normStr(r.Property("hs_lead_disqualification_reason")),
			})
		}

		after = page.NextAfter()
		if after == "" {
			break
		}
	}

	n, err := upsertBatches(ctx, pool, db.UpsertConfig{
		Table: j.Table(),
		Columns: []string{
			"lead_id", "created_at", "updated_at", "lead_status",
			"lead_stage", "owner_id", "disqualification_reason",
		},
		ConflictKeys: []string{"lead_id"},
	}, rows)
	if err != nil {
		return nil, eris.Wrap(err, "leads: upsert")
	}

	log.Info("leads sync complete",
		zap.Int("pages", pages),
		zap.Int64("rows", n),
		zap.Int("window_days", j.cfg.Ingest.WindowDays),
	)
	return &SyncResult{
		RowsSynced: n,
		Metadata:   map[string]any{"pages": pages, "window_days": j.cfg.Ingest.WindowDays},
	}, nil
}
