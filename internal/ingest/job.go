package ingest

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/tlpi-group/marketing-cli/internal/config"
	"github.com/tlpi-group/marketing-cli/internal/db"
	"github.com/tlpi-group/marketing-cli/internal/resilience"
	"github.com/tlpi-group/marketing-cli/pkg/hubspot"
)

// Cadence describes how often a job should run.
type Cadence string

const (
	Daily  Cadence = "daily"
	Weekly Cadence = "weekly"
)

// Job defines the interface each ingestion job must implement.
type Job interface {
	// Name returns the unique identifier for this job (e.g., "leads").
	Name() string

	// Table returns the primary target table (e.g., "crm_data.lead_facts").
	Table() string

	// Cadence returns how often this job should run.
	Cadence() Cadence

	// ShouldRun decides if this job is due given the current time and the
	// time of the last successful run (nil if never run).
	ShouldRun(now time.Time, lastSync *time.Time) bool

	// Sync performs the actual CRM fetch and load into Postgres.
	Sync(ctx context.Context, pool db.Pool, hub hubspot.Client) (*SyncResult, error)
}

// DailySchedule returns true if a run is needed for a daily job.
func DailySchedule(now time.Time, lastSync *time.Time) bool {
	if lastSync == nil {
		return true
	}
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	return lastSync.Before(today)
}

// WeeklySchedule returns true if a run is needed for a weekly job.
func WeeklySchedule(now time.Time, lastSync *time.Time) bool {
	if lastSync == nil {
		return true
	}
	// Start of the current ISO week (Monday).
	weekday := int(now.Weekday())
	if weekday == 0 {
		weekday = 7
	}
	weekStart := time.Date(now.Year(), now.Month(), now.Day()-(weekday-1), 0, 0, 0, 0, time.UTC)
	return lastSync.Before(weekStart)
}

// Registry maps job names to their implementations.
type Registry struct {
	jobs  map[string]Job
	order []string // insertion order for deterministic iteration
}

// NewRegistry creates a registry populated with all ingestion jobs, in
// dependency order: leads and owners first, then the joins that read them.
func NewRegistry(cfg *config.Config) *Registry {
	r := &Registry{
		jobs: make(map[string]Job),
	}

	r.Register(&Owners{cfg: cfg})
	r.Register(&Leads{cfg: cfg})
	r.Register(&Associations{cfg: cfg})
	r.Register(&Contacts{cfg: cfg})
	r.Register(&Submissions{cfg: cfg})
	r.Register(&Truth{cfg: cfg})

	return r
}

// Register adds a job to the registry.
func (r *Registry) Register(j Job) {
	name := j.Name()
	r.jobs[name] = j
	r.order = append(r.order, name)
}

// Get returns a job by name.
func (r *Registry) Get(name string) (Job, error) {
	j, ok := r.jobs[name]
	if !ok {
		return nil, eris.Errorf("ingest: unknown job %q", name)
	}
	return j, nil
}

// Select returns the named jobs, or all jobs when names is empty.
// Named selection preserves registration order so dependencies run first.
func (r *Registry) Select(names []string) ([]Job, error) {
	if len(names) == 0 {
		return r.All(), nil
	}

	want := make(map[string]bool, len(names))
	for _, name := range names {
		if _, err := r.Get(name); err != nil {
			return nil, err
		}
		want[name] = true
	}

	var result []Job
	for _, name := range r.order {
		if want[name] {
			result = append(result, r.jobs[name])
		}
	}
	return result, nil
}

// All returns all jobs in registration order.
func (r *Registry) All() []Job {
	result := make([]Job, 0, len(r.order))
	for _, name := range r.order {
		result = append(result, r.jobs[name])
	}
	return result
}

// AllNames returns all registered job names in registration order.
func (r *Registry) AllNames() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// upsertBatchSize caps rows per BulkUpsert transaction.
const upsertBatchSize = 5000

// upsertBatches splits rows into bounded batches and upserts each.
func upsertBatches(ctx context.Context, pool db.Pool, cfg db.UpsertConfig, rows [][]any) (int64, error) {
	var total int64
	for i := 0; i < len(rows); i += upsertBatchSize {
		end := min(i+upsertBatchSize, len(rows))
		n, err := db.BulkUpsert(ctx, pool, cfg, rows[i:end])
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}

// apiRetry builds the retry policy for CRM API calls, logging each attempt.
func apiRetry(operation string) resilience.RetryConfig {
	cfg := resilience.DefaultRetryConfig()
	cfg.OnRetry = resilience.RetryLogger("hubspot", operation)
	return cfg
}
