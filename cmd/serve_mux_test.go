//go:build !integration

package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tlpi-group/marketing-cli/internal/report"
)

func TestBuildMux_HealthEndpoint(t *testing.T) {
	mux := buildMux(nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Header().Get("Content-Type"), "application/json")

	var body map[string]string
	err := json.Unmarshal(rr.Body.Bytes(), &body)
	require.NoError(t, err)
	assert.Equal(t, "ok", body["status"])
}

func TestBuildMux_LatestReport(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	weekStart := time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC)
	created := weekStart.Add(8 * time.Hour)
	mock.ExpectQuery(`SELECT week_start, summary, payload, created_at`).
		WillReturnRows(pgxmock.NewRows([]string{"week_start", "summary", "payload", "created_at"}).
			AddRow(weekStart, "a good week", json.RawMessage(`{"week_start":"2026-03-09"}`), created))

	mux := buildMux(report.NewStore(mock))

	req := httptest.NewRequest(http.MethodGet, "/reports/latest", nil)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)

	var rep report.Report
	err = json.Unmarshal(rr.Body.Bytes(), &rep)
	require.NoError(t, err)
	assert.Equal(t, "a good week", rep.Summary)
	assert.True(t, weekStart.Equal(rep.WeekStart))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBuildMux_LatestReport_NoneYet(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	mock.ExpectQuery(`SELECT week_start, summary, payload, created_at`).
		WillReturnRows(pgxmock.NewRows([]string{"week_start", "summary", "payload", "created_at"}))

	mux := buildMux(report.NewStore(mock))

	req := httptest.NewRequest(http.MethodGet, "/reports/latest", nil)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Contains(t, rr.Body.String(), "no reports yet")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBuildMux_UnknownRoute(t *testing.T) {
	mux := buildMux(nil)

	req := httptest.NewRequest(http.MethodGet, "/reports", nil)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusNotFound, rr.Code)
}
