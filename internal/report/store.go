package report

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"

	"github.com/tlpi-group/marketing-cli/internal/db"
)

// Report is one persisted weekly report row.
type Report struct {
	WeekStart time.Time       `json:"week_start"`
	Summary   string          `json:"summary"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// Store persists reports keyed by week start.
type Store struct {
	pool db.Pool
}

// NewStore creates a report store.
func NewStore(pool db.Pool) *Store {
	return &Store{pool: pool}
}

// Save upserts the report for its week; a rerun in the same week replaces
// the earlier summary and payload.
func (s *Store) Save(ctx context.Context, p Payload, summary string) error {
	payloadJSON, err := json.Marshal(p)
	if err != nil {
		return eris.Wrap(err, "report: marshal payload")
	}

	weekStart, err := time.Parse("2006-01-02", p.WeekStart)
	if err != nil {
		return eris.Wrapf(err, "report: parse week start %q", p.WeekStart)
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO crm_data.reports (week_start, summary, payload, created_at)
		 VALUES ($1, $2, $3, now())
		 ON CONFLICT (week_start)
		 DO UPDATE SET summary = EXCLUDED.summary, payload = EXCLUDED.payload, created_at = now()`,
		weekStart, summary, payloadJSON,
	)
	if err != nil {
		return eris.Wrap(err, "report: save")
	}
	return nil
}

// LoadLatest returns the most recent report, or nil when none exist.
func (s *Store) LoadLatest(ctx context.Context) (*Report, error) {
	var r Report
	err := s.pool.QueryRow(ctx,
		`SELECT week_start, summary, payload, created_at
		 FROM crm_data.reports
		 ORDER BY week_start DESC LIMIT 1`,
	).Scan(&r.WeekStart, &r.Summary, &r.Payload, &r.CreatedAt)
	if err != nil {
		if err.Error() == "no rows in result set" {
			return nil, nil
		}
		return nil, eris.Wrap(err, "report: load latest")
	}
	return &r, nil
}

// LoadTruth reads the most recent ground-truth sales totals, or nil when
// the truth job has never run.
func LoadTruth(ctx context.Context, pool db.Pool) (*TruthTotals, error) {
	var t TruthTotals
	err := pool.QueryRow(ctx,
		`SELECT window_start, window_end, deals_won, revenue_won, units_sold,
		        revenue_new_prospects, revenue_old_prospects, deals_missing_contact
		 FROM crm_data.sales_truth_totals
		 ORDER BY updated_at DESC LIMIT 1`,
	).Scan(&t.WindowStart, &t.WindowEnd, &t.DealsWon, &t.RevenueWon, &t.UnitsSold,
		&t.RevenueNewProspects, &t.RevenueOldProspects, &t.DealsMissingContact)
	if err != nil {
		if err.Error() == "no rows in result set" {
			return nil, nil
		}
		return nil, eris.Wrap(err, "report: load truth totals")
	}
	return &t, nil
}
