package ingest

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tlpi-group/marketing-cli/internal/config"
)

func timePtr(t time.Time) *time.Time { return &t }

func TestDailySchedule(t *testing.T) {
	now := time.Date(2026, 3, 11, 14, 0, 0, 0, time.UTC) // Wednesday afternoon

	tests := []struct {
		name     string
		lastSync *time.Time
		want     bool
	}{
		{"never run", nil, true},
		{"ran yesterday", timePtr(time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)), true},
		{"ran this morning", timePtr(time.Date(2026, 3, 11, 6, 0, 0, 0, time.UTC)), false},
		{"ran at midnight today", timePtr(time.Date(2026, 3, 11, 0, 0, 0, 0, time.UTC)), false},
		{"ran just before midnight", timePtr(time.Date(2026, 3, 10, 23, 59, 59, 0, time.UTC)), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DailySchedule(now, tt.lastSync))
		})
	}
}

func TestWeeklySchedule(t *testing.T) {
	// Wednesday 2026-03-11; the current ISO week starts Monday 2026-03-09.
	now := time.Date(2026, 3, 11, 14, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		lastSync *time.Time
		want     bool
	}{
		{"never run", nil, true},
		{"ran last week", timePtr(time.Date(2026, 3, 6, 9, 0, 0, 0, time.UTC)), true},
		{"ran sunday before week start", timePtr(time.Date(2026, 3, 8, 23, 0, 0, 0, time.UTC)), true},
		{"ran monday this week", timePtr(time.Date(2026, 3, 9, 3, 0, 0, 0, time.UTC)), false},
		{"ran earlier today", timePtr(time.Date(2026, 3, 11, 6, 0, 0, 0, time.UTC)), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, WeeklySchedule(now, tt.lastSync))
		})
	}
}

func TestWeeklySchedule_SundayTreatedAsWeekEnd(t *testing.T) {
	// Sunday 2026-03-15 belongs to the week starting Monday 2026-03-09.
	now := time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)

	ranThisWeek := time.Date(2026, 3, 9, 8, 0, 0, 0, time.UTC)
	assert.False(t, WeeklySchedule(now, &ranThisWeek))

	ranLastWeek := time.Date(2026, 3, 8, 8, 0, 0, 0, time.UTC)
	assert.True(t, WeeklySchedule(now, &ranLastWeek))
}

func TestNewRegistry_OrderAndCadence(t *testing.T) {
	cfg := &config.Config{}
	reg := NewRegistry(cfg)

	// Dependency order: owners and leads first, truth last.
	assert.Equal(t,
		[]string{"owners", "leads", "associations", "contacts", "submissions", "truth"},
		reg.AllNames(),
	)

	wantTables := map[string]string{
		"owners":       "crm_data.owner_cache",
		"leads":        "crm_data.lead_facts",
		"associations": "crm_data.lead_contact_map",
		"contacts":     "crm_data.contact_attribution",
		"submissions":  "crm_data.form_submissions",
		"truth":        "crm_data.sales_truth_totals",
	}
	wantCadence := map[string]Cadence{
		"owners":       Daily,
		"leads":        Daily,
		"associations": Daily,
		"contacts":     Daily,
		"submissions":  Daily,
		"truth":        Weekly,
	}

	for _, j := range reg.All() {
		assert.Equal(t, wantTables[j.Name()], j.Table(), j.Name())
		assert.Equal(t, wantCadence[j.Name()], j.Cadence(), j.Name())
	}
}

func TestRegistry_Get(t *testing.T) {
	reg := NewRegistry(&config.Config{})

	j, err := reg.Get("leads")
	require.NoError(t, err)
	assert.Equal(t, "leads", j.Name())

	_, err = reg.Get("bogus")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unknown job")
}

func TestRegistry_Select(t *testing.T) {
	reg := NewRegistry(&config.Config{})

	t.Run("empty selects all", func(t *testing.T) {
		jobs, err := reg.Select(nil)
		require.NoError(t, err)
		assert.Len(t, jobs, 6)
	})

	t.Run("preserves registration order", func(t *testing.T) {
		jobs, err := reg.Select([]string{"contacts", "leads"})
		require.NoError(t, err)
		require.Len(t, jobs, 2)
		assert.Equal(t, "leads", jobs[0].Name())
		assert.Equal(t, "contacts", jobs[1].Name())
	})

	t.Run("unknown name errors", func(t *testing.T) {
		_, err := reg.Select([]string{"leads", "bogus"})
		assert.Error(t, err)
	})
}
