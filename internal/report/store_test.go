package report

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tlpi-group/marketing-cli/internal/config"
)

func TestStore_Save(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	p := BuildPayload(BuildInput{Now: reportNow, Truth: sampleTruth()})
	weekStart := time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC)

	mock.ExpectExec("INSERT INTO crm_data.reports").
		WithArgs(weekStart, "the summary", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err = NewStore(mock).Save(context.Background(), p, "the summary")
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_LoadLatest(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	weekStart := time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC)
	created := weekStart.Add(9 * time.Hour)
	mock.ExpectQuery("SELECT week_start, summary, payload, created_at").
		WillReturnRows(pgxmock.NewRows([]string{"week_start", "summary", "payload", "created_at"}).
			AddRow(weekStart, "summary text", []byte(`{"week_start":"2026-03-09"}`), created))

	r, err := NewStore(mock).LoadLatest(context.Background())
	require.NoError(t, err)
	require.NotNil(t, r)
	assert.Equal(t, weekStart, r.WeekStart)
	assert.Equal(t, "summary text", r.Summary)
	assert.JSONEq(t, `{"week_start":"2026-03-09"}`, string(r.Payload))
}

func TestStore_LoadLatest_Empty(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("SELECT week_start, summary, payload, created_at").
		WillReturnError(errors.New("no rows in result set"))

	r, err := NewStore(mock).LoadLatest(context.Background())
	assert.NoError(t, err)
	assert.Nil(t, r)
}

func TestLoadTruth(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	truth := sampleTruth()
	mock.ExpectQuery("SELECT window_start, window_end, deals_won").
		WillReturnRows(pgxmock.NewRows([]string{
			"window_start", "window_end", "deals_won", "revenue_won", "units_sold",
			"revenue_new_prospects", "revenue_old_prospects", "deals_missing_contact",
		}).AddRow(
			truth.WindowStart, truth.WindowEnd, truth.DealsWon, truth.RevenueWon, truth.UnitsSold,
			truth.RevenueNewProspects, truth.RevenueOldProspects, truth.DealsMissingContact,
		))

	got, err := LoadTruth(context.Background(), mock)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, truth, got)
}

func TestLoadTruth_NeverRun(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("SELECT window_start, window_end, deals_won").
		WillReturnError(errors.New("no rows in result set"))

	got, err := LoadTruth(context.Background(), mock)
	assert.NoError(t, err)
	assert.Nil(t, got)
}

func TestMailer_SkipsWhenUnconfigured(t *testing.T) {
	m := NewMailer(config.SMTPConfig{Host: "smtp.example.com"}) // user/password/to missing
	sent, err := m.Send("subject", "body")
	assert.NoError(t, err)
	assert.False(t, sent)

	assert.False(t, NewMailer(config.SMTPConfig{}).Configured())
	assert.True(t, NewMailer(config.SMTPConfig{
		Host: "smtp.example.com", User: "u", Password: "p", To: "a@b.com",
	}).Configured())
}

func TestSplitRecipients(t *testing.T) {
	assert.Equal(t, []string{"a@b.com", "c@d.com"}, splitRecipients("a@b.com, c@d.com,"))
	assert.Empty(t, splitRecipients("  "))
}
