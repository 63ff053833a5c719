package ingest

import (
	"context"
	"encoding/json"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/tlpi-group/marketing-cli/internal/config"
	"github.com/tlpi-group/marketing-cli/internal/db"
	"github.com/tlpi-group/marketing-cli/internal/resilience"
	"github.com/tlpi-group/marketing-cli/pkg/hubspot"
)

// Submissions ingests marketing form submissions with their UTM fields.
// Forms whose name matches the configured exclusion pattern are skipped
// entirely. Per-form fetches run in parallel; a form whose fetch exhausts
// retries is skipped and surfaced in the run metadata instead of failing
// the whole job.
type Submissions struct {
	cfg *config.Config
}

func (j *Submissions) Name() string     { return "submissions" }
func (j *Submissions) Table() string    { return "crm_data.form_submissions" }
func (j *Submissions) Cadence() Cadence { return Daily }

func (j *Submissions) ShouldRun(now time.Time, lastSync *time.Time) bool {
	return DailySchedule(now, lastSync)
}

func (j *Submissions) Sync(ctx context.Context, pool db.Pool, hub hubspot.Client) (*SyncResult, error) {
	log := zap.L().With(zap.String("job", j.Name()))

	exclude, err := regexp.Compile("(?i)" + j.cfg.Ingest.FormExcludePattern)
	if err != nil {
		return nil, eris.Wrapf(err, "submissions: compile exclusion pattern %q", j.cfg.Ingest.FormExcludePattern)
	}

	forms, err := resilience.DoVal(ctx, apiRetry("list forms"), func(ctx context.Context) ([]hubspot.Form, error) {
		return hub.ListForms(ctx)
	})
	if err != nil {
		return nil, eris.Wrap(err, "submissions: list forms")
	}

	since := time.Now().UTC().AddDate(0, 0, -j.cfg.Ingest.WindowDays)

	var (
		mu          sync.Mutex
		rows        [][]any
		excluded    int
		failedForms []string
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(j.cfg.Ingest.FormFetchConcurrency, 1))

	for _, form := range forms {
		if exclude.MatchString(form.Name) {
			excluded++
			continue
		}

		g.Go(func() error {
			subs, err := resilience.DoVal(gctx, apiRetry("form submissions"), func(ctx context.Context) ([]hubspot.FormSubmission, error) {
				return hub.FormSubmissions(ctx, form.GUID, since)
			})
			if err != nil {
				// Isolate to this form; the rest of the run still loads.
				log.Warn("skipping form after retries",
					zap.String("form", form.Name),
					zap.String("guid", form.GUID),
					zap.Error(err),
				)
				mu.Lock()
				failedForms = append(failedForms, form.GUID)
				mu.Unlock()
				return nil
			}

			formRows := make([][]any, 0, len(subs))
			for _, s := range subs {
				if s.SubmittedAt <= 0 {
					continue
				}
				values := valuesToMap(s.Values)
				raw, err := json.Marshal(values)
				if err != nil {
					raw = nil
				}
				formRows = append(formRows, []any{
					time.UnixMilli(s.SubmittedAt).UTC(),
					form.GUID,
					normStr(form.Name),
					normStr(s.PageURL),
					normStr(values["email"]),
					normStr(values["utm_source"]),
					normStr(values["utm_medium"]),
					normStr(values["utm_campaign"]),
					normStr(values["utm_term"]),
					normStr(values["utm_content"]),
					raw,
				})
			}

			mu.Lock()
			rows = append(rows, formRows...)
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, eris.Wrap(err, "submissions: fetch forms")
	}

	n, err := upsertBatches(ctx, pool, db.UpsertConfig{
		Table: j.Table(),
		Columns: []string{
			"submitted_at", "form_guid", "form_name", "page_url", "email",
			"utm_source", "utm_medium", "utm_campaign", "utm_term", "utm_content",
			"raw_values",
		},
		// No conflict target: the dedup index is on COALESCE expressions so
		// NULL email/campaign/url rows still dedup across runs.
		DoNothing: true,
	}, rows)
	if err != nil {
		return nil, eris.Wrap(err, "submissions: upsert")
	}

	log.Info("form submissions sync complete",
		zap.Int("forms", len(forms)),
		zap.Int("excluded", excluded),
		zap.Int("failed_forms", len(failedForms)),
		zap.Int64("rows", n),
	)

	meta := map[string]any{"forms": len(forms), "excluded": excluded}
	if len(failedForms) > 0 {
		meta["failed_forms"] = failedForms
	}
	return &SyncResult{RowsSynced: n, Metadata: meta}, nil
}

// valuesToMap flattens submission values to a lowercase field-name map.
// Multi-value fields are joined with commas.
func valuesToMap(values []hubspot.SubmissionValue) map[string]string {
	m := make(map[string]string, len(values))
	for _, v := range values {
		name := strings.ToLower(strings.TrimSpace(v.Name))
		if name == "" {
			continue
		}
		if existing, ok := m[name]; ok && existing != "" && v.Value != "" {
			m[name] = existing + "," + v.Value
			continue
		}
		m[name] = v.Value
	}
	return m
}
