package ingest

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tlpi-group/marketing-cli/internal/config"
	"github.com/tlpi-group/marketing-cli/pkg/hubspot"
)

// stubHubSpot is a hubspot.Client with pluggable behaviour per method.
type stubHubSpot struct {
	search            func(ctx context.Context, objectType string, req hubspot.SearchRequest) (*hubspot.SearchPage, error)
	batchRead         func(ctx context.Context, objectType string, ids, properties []string) ([]hubspot.Object, error)
	batchAssociations func(ctx context.Context, fromType, toType string, ids []string) ([]hubspot.AssociationEdge, error)
	listOwners        func(ctx context.Context) ([]hubspot.Owner, error)
	listForms         func(ctx context.Context) ([]hubspot.Form, error)
	formSubmissions   func(ctx context.Context, formGUID string, since time.Time) ([]hubspot.FormSubmission, error)
	listPipelines     func(ctx context.Context, objectType string) ([]hubspot.Pipeline, error)
	listProperties    func(ctx context.Context, objectType string) ([]hubspot.PropertyDefinition, error)
}

func (s *stubHubSpot) Search(ctx context.Context, objectType string, req hubspot.SearchRequest) (*hubspot.SearchPage, error) {
	return s.search(ctx, objectType, req)
}
func (s *stubHubSpot) BatchRead(ctx context.Context, objectType string, ids, properties []string) ([]hubspot.Object, error) {
	return s.batchRead(ctx, objectType, ids, properties)
}
func (s *stubHubSpot) BatchAssociations(ctx context.Context, fromType, toType string, ids []string) ([]hubspot.AssociationEdge, error) {
	return s.batchAssociations(ctx, fromType, toType, ids)
}
func (s *stubHubSpot) ListOwners(ctx context.Context) ([]hubspot.Owner, error) {
	return s.listOwners(ctx)
}
func (s *stubHubSpot) ListForms(ctx context.Context) ([]hubspot.Form, error) {
	return s.listForms(ctx)
}
func (s *stubHubSpot) FormSubmissions(ctx context.Context, formGUID string, since time.Time) ([]hubspot.FormSubmission, error) {
	return s.formSubmissions(ctx, formGUID, since)
}
func (s *stubHubSpot) ListPipelines(ctx context.Context, objectType string) ([]hubspot.Pipeline, error) {
	return s.listPipelines(ctx, objectType)
}
func (s *stubHubSpot) ListProperties(ctx context.Context, objectType string) ([]hubspot.PropertyDefinition, error) {
	return s.listProperties(ctx, objectType)
}

// expectUpsert wires the pgxmock expectations for one BulkUpsert into table.
func expectUpsert(mock pgxmock.PgxPoolIface, table string, columns []string, rowCount int) {
	tempName := "_tmp_upsert_" + stringsReplaceDots(table)
	mock.ExpectBegin()
	mock.ExpectExec("CREATE TEMP TABLE").
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{tempName}, columns).
		WillReturnResult(int64(rowCount))
	mock.ExpectExec("INSERT INTO").
		WillReturnResult(pgxmock.NewResult("INSERT", int64(rowCount)))
	mock.ExpectCommit()
}

func stringsReplaceDots(s string) string {
	out := make([]byte, len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == '.' {
			out[i] = '_'
		} else {
			out[i] = s[i]
		}
	}
	return string(out)
}

func TestOwnersSync(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	hub := &stubHubSpot{
		listOwners: func(ctx context.Context) ([]hubspot.Owner, error) {
			uid := int64(901)
			return []hubspot.Owner{
				{ID: "10", Email: "jordan@tlpi.co.uk", FirstName: "Jordan", LastName: "Sharpe", UserID: &uid, Active: true},
				{ID: "", Email: "orphan@tlpi.co.uk"},
			}, nil
		},
	}

	expectUpsert(mock, "crm_data.owner_cache", []string{
		"owner_id", "email", "first_name", "last_name", "full_name",
		"is_active", "user_id", "raw", "updated_at",
	}, 1)

	job := &Owners{cfg: &config.Config{}}
	result, err := job.Sync(context.Background(), mock, hub)
	require.NoError(t, err)
	assert.Equal(t, int64(1), result.RowsSynced)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTruthSync(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	cfg := &config.Config{}
	cfg.Ingest.PageSize = 100
	cfg.Revenue.WindowDays = 90
	cfg.Revenue.WonStageIDs = []string{"1054943521"}
	cfg.Revenue.ExcludedDealTypes = []string{"SSAS", "FIC"}
	cfg.Revenue.NewProspectDays = 30

	closed := time.Date(2026, 3, 9, 12, 0, 0, 0, time.UTC)
	hub := &stubHubSpot{
		search: func(ctx context.Context, objectType string, req hubspot.SearchRequest) (*hubspot.SearchPage, error) {
			assert.Equal(t, "deals", objectType)
			require.Len(t, req.FilterGroups, 1)
			assert.Equal(t, "dealstage", req.FilterGroups[0].Filters[0].PropertyName)
			return &hubspot.SearchPage{Results: []hubspot.Object{
				{ID: "d1", Properties: map[string]string{
					"amount": "10000", "total_no_of_sales": "2", "dealtype": "newbusiness",
					"closedate": closed.Format(time.RFC3339),
				}},
				{ID: "d2", Properties: map[string]string{
					"amount": "5000", "dealtype": "ssas",
					"closedate": closed.Format(time.RFC3339),
				}},
				{ID: "d3", Properties: map[string]string{
					"amount": "2000", "dealtype": "newbusiness",
					"closedate": closed.Format(time.RFC3339),
				}},
			}}, nil
		},
		batchAssociations: func(ctx context.Context, fromType, toType string, ids []string) ([]hubspot.AssociationEdge, error) {
			assert.ElementsMatch(t, []string{"d1", "d3"}, ids)
			return []hubspot.AssociationEdge{
				{From: hubspot.AssociationFrom{ID: "d1"}, To: []hubspot.AssociationTo{{ID: "c1"}}},
			}, nil
		},
		batchRead: func(ctx context.Context, objectType string, ids, properties []string) ([]hubspot.Object, error) {
			assert.Equal(t, []string{"createdate"}, properties)
			// Contact created 10 days before close: a new prospect.
			return []hubspot.Object{
				{ID: "c1", Properties: map[string]string{"createdate": closed.AddDate(0, 0, -10).Format(time.RFC3339)}},
			}, nil
		},
	}

	expectUpsert(mock, "crm_data.sales_truth_totals", []string{
		"window_start", "window_end", "deals_won", "revenue_won", "units_sold",
		"revenue_new_prospects", "revenue_old_prospects", "deals_missing_contact",
		"updated_at",
	}, 1)

	job := &Truth{cfg: cfg}
	result, err := job.Sync(context.Background(), mock, hub)
	require.NoError(t, err)
	assert.Equal(t, int64(1), result.RowsSynced)

	// The SSAS deal is excluded from totals but still counted as evaluated.
	assert.Equal(t, 3, result.Metadata["deals_evaluated"])
	assert.Equal(t, 2, result.Metadata["deals_won"])
	assert.Equal(t, 1, result.Metadata["deals_missing_contact"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSubmissionsSync_ExcludesAndIsolatesFailures(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	cfg := &config.Config{}
	cfg.Ingest.WindowDays = 90
	cfg.Ingest.FormExcludePattern = "test|internal"
	cfg.Ingest.FormFetchConcurrency = 2

	hub := &stubHubSpot{
		listForms: func(ctx context.Context) ([]hubspot.Form, error) {
			return []hubspot.Form{
				{GUID: "f1", Name: "Pension Guide Download"},
				{GUID: "f2", Name: "Internal QA Form"},
				{GUID: "f3", Name: "Webinar Signup"},
			}, nil
		},
		formSubmissions: func(ctx context.Context, formGUID string, since time.Time) ([]hubspot.FormSubmission, error) {
			switch formGUID {
			case "f1":
				return []hubspot.FormSubmission{
					{SubmittedAt: 1773135000000, PageURL: "https://tlpi.co.uk/guide", Values: []hubspot.SubmissionValue{
						{Name: "Email", Value: "lead@example.com"},
						{Name: "utm_campaign", Value: "spring-pensions"},
					}},
					{SubmittedAt: 0}, // missing timestamp, dropped
				}, nil
			case "f3":
				return nil, assert.AnError
			default:
				t.Fatalf("unexpected form %s", formGUID)
				return nil, nil
			}
		},
	}

	expectUpsert(mock, "crm_data.form_submissions", []string{
		"submitted_at", "form_guid", "form_name", "page_url", "email",
		"utm_source", "utm_medium", "utm_campaign", "utm_term", "utm_content",
		"raw_values",
	}, 1)

	job := &Submissions{cfg: cfg}
	result, err := job.Sync(context.Background(), mock, hub)
	require.NoError(t, err)
	assert.Equal(t, int64(1), result.RowsSynced)
	assert.Equal(t, 1, result.Metadata["excluded"])
	assert.Equal(t, []string{"f3"}, result.Metadata["failed_forms"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestValuesToMap(t *testing.T) {
	m := valuesToMap([]hubspot.SubmissionValue{
		{Name: "Email", Value: "a@b.com"},
		{Name: " UTM_Campaign ", Value: "spring"},
		{Name: "interests", Value: "pensions"},
		{Name: "interests", Value: "property"},
		{Name: "", Value: "dropped"},
	})

	assert.Equal(t, "a@b.com", m["email"])
	assert.Equal(t, "spring", m["utm_campaign"])
	assert.Equal(t, "pensions,property", m["interests"])
	assert.NotContains(t, m, "")
}

func TestWonStageFilter(t *testing.T) {
	single := wonStageFilter([]string{"1054943521"})
	assert.Equal(t, "EQ", single.Operator)
	assert.Equal(t, "1054943521", single.Value)

	multi := wonStageFilter([]string{"a", "b"})
	assert.Equal(t, "IN", multi.Operator)
	assert.Equal(t, []string{"a", "b"}, multi.Values)
}

func TestExcludedDealTypes(t *testing.T) {
	set := excludedTypeSet([]string{"SSAS", " fic ", ""})
	assert.True(t, isExcludedDealType("ssas", set))
	assert.True(t, isExcludedDealType("FIC", set))
	assert.True(t, isExcludedDealType("  SsAs  ", set))
	assert.False(t, isExcludedDealType("newbusiness", set))
	assert.False(t, isExcludedDealType("", set))
}

func TestEpochMs(t *testing.T) {
	ts := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, "1769904000000", epochMs(ts))
}
