package ingest

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/tlpi-group/marketing-cli/internal/config"
	"github.com/tlpi-group/marketing-cli/internal/db"
	"github.com/tlpi-group/marketing-cli/internal/resilience"
	"github.com/tlpi-group/marketing-cli/pkg/hubspot"
)

// contactProperties are the CRM contact properties attribution reads.
var contactProperties = []string{
	"email",
	"utm_source",
	"utm_medium",
	"utm_campaign",
	"hs_latest_source",
	"hs_latest_source_data_1",
	"hs_latest_source_data_2",
	"hs_analytics_source_data_1",
	"hs_analytics_source_data_2",
	"hs_analytics_first_touch_converting_campaign",
	"hs_analytics_last_touch_converting_campaign",
	"facebook_ad_name",
}

// Contacts caches email and attribution properties for every contact linked
// to a window lead via lead_contact_map.
type Contacts struct {
	cfg *config.Config
}

func (j *Contacts) Name() string     { return "contacts" }
func (j *Contacts) Table() string    { return "crm_data.contact_attribution" }
func (j *Contacts) Cadence() Cadence { return Daily }

func (j *Contacts) ShouldRun(now time.Time, lastSync *time.Time) bool {
	return DailySchedule(now, lastSync)
}

func (j *Contacts) Sync(ctx context.Context, pool db.Pool, hub hubspot.Client) (*SyncResult, error) {
	log := zap.L().With(zap.String("job", j.Name()))

	contactIDs, err := j.mappedContactIDs(ctx, pool)
	if err != nil {
		return nil, err
	}
	if len(contactIDs) == 0 {
		log.Info("no mapped contacts")
		return &SyncResult{}, nil
	}

	objs, err := resilience.DoVal(ctx, apiRetry("batch read contacts"), func(ctx context.Context) ([]hubspot.Object, error) {
		return hub.BatchRead(ctx, "contacts", contactIDs, contactProperties)
	})
	if err != nil {
		return nil, eris.Wrap(err, "contacts: batch read")
	}

	rows := make([][]any, 0, len(objs))
	for _, o := range objs {
		if o.ID == "" {
			continue
		}
		rows = append(rows, []any{
			o.ID,
			normStr(o.Property("email")),
			normStr(o.Property("utm_source")),
			normStr(o.Property("utm_medium")),
			normStr(o.Property("utm_campaign")),
			normStr(o.Property("hs_latest_source")),
			normStr(o.Property("hs_latest_source_data_1")),
			normStr(o.Property("hs_latest_source_data_2")),
			normStr(o.Property("hs_analytics_source_data_1")),
			normStr(o.Property("hs_analytics_source_data_2")),
			normStr(o.Property("hs_analytics_first_touch_converting_campaign")),
			normStr(o.Property("hs_analytics_last_touch_converting_campaign")),
			normStr(o.Property("facebook_ad_name")),
			time.Now().UTC(),
		})
	}

	n, err := upsertBatches(ctx, pool, db.UpsertConfig{
		Table: j.Table(),
		Columns: []string{
			"contact_id", "email", "utm_source", "utm_medium", "utm_campaign",
			"latest_source", "latest_source_data_1", "latest_source_data_2",
			"analytics_source_data_1", "analytics_source_data_2",
			"first_touch_campaign", "last_touch_campaign",
			"facebook_ad_name", "updated_at",
		},
		ConflictKeys: []string{"contact_id"},
	}, rows)
	if err != nil {
		return nil, eris.Wrap(err, "contacts: upsert")
	}

	log.Info("contact attribution cache refreshed",
		zap.Int("contacts", len(contactIDs)),
		zap.Int64("rows", n),
	)
	return &SyncResult{RowsSynced: n}, nil
}

func (j *Contacts) mappedContactIDs(ctx context.Context, pool db.Pool) ([]string, error) {
	rows, err := pool.Query(ctx,
		"SELECT DISTINCT contact_id FROM crm_data.lead_contact_map ORDER BY contact_id")
	if err != nil {
		return nil, eris.Wrap(err, "contacts: query mapped contacts")
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, eris.Wrap(err, "contacts: scan contact id")
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
