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

// Associations builds the lead→contact edge table for leads updated inside
// the rolling window. Edges are append-only: once observed, a pairing stays.
type Associations struct {
	cfg *config.Config
}

func (j *Associations) Name() string     { return "associations" }
func (j *Associations) Table() string    { return "crm_data.lead_contact_map" }
func (j *Associations) Cadence() Cadence { return Daily }

func (j *Associations) ShouldRun(now time.Time, lastSync *time.Time) bool {
	return DailySchedule(now, lastSync)
}

func (j *Associations) Sync(ctx context.Context, pool db.Pool, hub hubspot.Client) (*SyncResult, error) {
	log := zap.L().With(zap.String("job", j.Name()))

	leadIDs, err := j.windowLeadIDs(ctx, pool)
	if err != nil {
		return nil, err
	}
	if len(leadIDs) == 0 {
		log.Info("no leads in window")
		return &SyncResult{}, nil
	}

	edges, err := resilience.DoVal(ctx, apiRetry("batch associations"), func(ctx context.Context) ([]hubspot.AssociationEdge, error) {
		return hub.BatchAssociations(ctx, "leads", "contacts", leadIDs)
	})
	if err != nil {
		return nil, eris.Wrap(err, "associations: batch read")
	}

	var rows [][]any
	leadsWithContacts := 0
	for _, e := range edges {
		if e.From.ID == "" {
			continue
		}
		if len(e.To) > 0 {
			leadsWithContacts++
		}
		for _, to := range e.To {
			if to.ID == "" {
				continue
			}
			rows = append(rows, []any{e.From.ID, to.ID})
		}
	}

	n, err := upsertBatches(ctx, pool, db.UpsertConfig{
		Table:        j.Table(),
		Columns:      []string{"lead_id", "contact_id"},
		ConflictKeys: []string{"lead_id", "contact_id"},
		DoNothing:    true,
	}, rows)
	if err != nil {
		return nil, eris.Wrap(err, "associations: upsert")
	}

	log.Info("lead-contact map updated",
		zap.Int("leads", len(leadIDs)),
		zap.Int("leads_with_contacts", leadsWithContacts),
		zap.Int64("rows", n),
	)
	return &SyncResult{
		RowsSynced: n,
		Metadata:   map[string]any{"leads": len(leadIDs), "leads_with_contacts": leadsWithContacts},
	}, nil
}

func (j *Associations) windowLeadIDs(ctx context.Context, pool db.Pool) ([]string, error) {
	rows, err := pool.Query(ctx,
		`SELECT lead_id FROM crm_data.lead_facts
		 WHERE updated_at >= now() - ($1 * interval '1 day')
		 ORDER BY updated_at DESC`,
		j.cfg.Ingest.WindowDays,
	)
	if err != nil {
		return nil, eris.Wrap(err, "associations: query window leads")
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, eris.Wrap(err, "associations: scan lead id")
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
