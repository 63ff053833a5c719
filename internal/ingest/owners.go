package ingest

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/tlpi-group/marketing-cli/internal/config"
	"github.com/tlpi-group/marketing-cli/internal/db"
	"github.com/tlpi-group/marketing-cli/internal/resilience"
	"github.com/tlpi-group/marketing-cli/pkg/hubspot"
)

// Owners caches CRM owner records so lead facts can be joined to consultant
// names without a live API call.
type Owners struct {
	cfg *config.Config
}

func (j *Owners) Name() string     { return "owners" }
func (j *Owners) Table() string    { return "crm_data.owner_cache" }
func (j *Owners) Cadence() Cadence { return Daily }

func (j *Owners) ShouldRun(now time.Time, lastSync *time.Time) bool {
	return DailySchedule(now, lastSync)
}

func (j *Owners) Sync(ctx context.Context, pool db.Pool, hub hubspot.Client) (*SyncResult, error) {
	log := zap.L().With(zap.String("job", j.Name()))

	owners, err := resilience.DoVal(ctx, apiRetry("list owners"), func(ctx context.Context) ([]hubspot.Owner, error) {
		return hub.ListOwners(ctx)
	})
	if err != nil {
		return nil, eris.Wrap(err, "owners: fetch")
	}

	rows := make([][]any, 0, len(owners))
	for _, o := range owners {
		if o.ID == "" {
			continue
		}
		raw, err := json.Marshal(o)
		if err != nil {
			raw = nil
		}
		rows = append(rows, []any{
			o.ID,
			normStr(o.Email),
			normStr(o.FirstName),
			normStr(o.LastName),
			normStr(o.FullName()),
			o.Active,
			o.UserID,
			raw,
			time.Now().UTC(),
		})
	}

	n, err := upsertBatches(ctx, pool, db.UpsertConfig{
		Table: j.Table(),
		Columns: []string{
			"owner_id", "email", "first_name", "last_name", "full_name",
			"is_active", "user_id", "raw", "updated_at",
		},
		ConflictKeys: []string{"owner_id"},
	}, rows)
	if err != nil {
		return nil, eris.Wrap(err, "owners: upsert")
	}

	log.Info("owner cache refreshed", zap.Int("fetched", len(owners)), zap.Int64("rows", n))
	return &SyncResult{RowsSynced: n}, nil
}
