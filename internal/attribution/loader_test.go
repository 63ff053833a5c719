package attribution

import (
	"context"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func TestLoader_Load(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	windowStart := time.Date(2025, 12, 10, 0, 0, 0, 0, time.UTC)
	windowEnd := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	created := windowStart.AddDate(0, 0, 5)

	mock.ExpectQuery("SELECT lead_id, created_at, lead_stage").
		WithArgs(windowStart, windowEnd).
		WillReturnRows(pgxmock.NewRows([]string{
			"lead_id", "created_at", "lead_stage", "lead_status", "owner_id", "disqualification_reason",
		}).
			AddRow("L1", created, strPtr("new-stage-id"), strPtr("NEW"), strPtr("10"), (*string)(nil)).
			AddRow("L2", created.Add(time.Hour), (*string)(nil), (*string)(nil), (*string)(nil), (*string)(nil)))

	mock.ExpectQuery("SELECT lead_id, contact_id FROM crm_data.lead_contact_map").
		WillReturnRows(pgxmock.NewRows([]string{"lead_id", "contact_id"}).
			AddRow("L1", "c1").
			AddRow("L1", "c2"))

	mock.ExpectQuery("SELECT contact_id, email, utm_campaign").
		WillReturnRows(pgxmock.NewRows([]string{
			"contact_id", "email", "utm_campaign", "utm_source", "utm_medium",
			"latest_source", "first_touch_campaign", "last_touch_campaign",
		}).
			AddRow("c1", strPtr("a@b.com"), strPtr("camp"), (*string)(nil), (*string)(nil), (*string)(nil), (*string)(nil), (*string)(nil)))

	mock.ExpectQuery("SELECT email, submitted_at, utm_campaign").
		WithArgs(windowStart.Add(-14*24*time.Hour), windowEnd.Add(3*24*time.Hour)).
		WillReturnRows(pgxmock.NewRows([]string{
			"email", "submitted_at", "utm_campaign", "utm_source", "utm_medium", "page_url",
		}).
			AddRow(strPtr("a@b.com"), created.Add(-time.Hour), strPtr("camp"), (*string)(nil), (*string)(nil), strPtr("https://tlpi.co.uk/guide")))

	data, err := NewLoader(mock, 0, 0).Load(context.Background(), windowStart, windowEnd)
	require.NoError(t, err)

	require.Len(t, data.Leads, 2)
	assert.Equal(t, []string{"c1", "c2"}, data.Leads[0].ContactIDs)
	assert.Empty(t, data.Leads[1].ContactIDs)
	assert.Equal(t, "new-stage-id", data.Leads[0].StageID)
	assert.Equal(t, "", data.Leads[1].StageID)

	assert.Equal(t, "camp", data.Contacts["c1"].UTMCampaign)
	require.Len(t, data.Submissions, 1)
	assert.Equal(t, "a@b.com", data.Submissions[0].Email)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLoader_SubmissionWindowFollowsLookback(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	windowStart := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	windowEnd := windowStart.AddDate(0, 0, 90)
	lookback := 30 * 24 * time.Hour
	lookahead := 7 * 24 * time.Hour

	mock.ExpectQuery("SELECT lead_id, created_at, lead_stage").
		WithArgs(windowStart, windowEnd).
		WillReturnRows(pgxmock.NewRows([]string{
			"lead_id", "created_at", "lead_stage", "lead_status", "owner_id", "disqualification_reason",
		}))
	mock.ExpectQuery("SELECT contact_id, email, utm_campaign").
		WillReturnRows(pgxmock.NewRows([]string{
			"contact_id", "email", "utm_campaign", "utm_source", "utm_medium",
			"latest_source", "first_touch_campaign", "last_touch_campaign",
		}))
	// The submissions read must widen by the configured window, not a fixed
	// 14d/3d, or older submissions are invisible to the resolver.
	mock.ExpectQuery("SELECT email, submitted_at, utm_campaign").
		WithArgs(windowStart.Add(-lookback), windowEnd.Add(lookahead)).
		WillReturnRows(pgxmock.NewRows([]string{
			"email", "submitted_at", "utm_campaign", "utm_source", "utm_medium", "page_url",
		}))

	_, err = NewLoader(mock, lookback, lookahead).Load(context.Background(), windowStart, windowEnd)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLoader_EmptyWindow(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	windowStart := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	windowEnd := windowStart.AddDate(0, 0, 90)

	mock.ExpectQuery("SELECT lead_id, created_at, lead_stage").
		WithArgs(windowStart, windowEnd).
		WillReturnRows(pgxmock.NewRows([]string{
			"lead_id", "created_at", "lead_stage", "lead_status", "owner_id", "disqualification_reason",
		}))
	// No leads still loads contacts and submissions; only the map query is skipped.
	mock.ExpectQuery("SELECT contact_id, email, utm_campaign").
		WillReturnRows(pgxmock.NewRows([]string{
			"contact_id", "email", "utm_campaign", "utm_source", "utm_medium",
			"latest_source", "first_touch_campaign", "last_touch_campaign",
		}))
	mock.ExpectQuery("SELECT email, submitted_at, utm_campaign").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{
			"email", "submitted_at", "utm_campaign", "utm_source", "utm_medium", "page_url",
		}))

	data, err := NewLoader(mock, 0, 0).Load(context.Background(), windowStart, windowEnd)
	require.NoError(t, err)
	assert.Empty(t, data.Leads)
	assert.Empty(t, data.Submissions)
	assert.NoError(t, mock.ExpectationsWereMet())
}
