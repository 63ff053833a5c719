package revenue

import (
	"context"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tlpi-group/marketing-cli/internal/config"
	"github.com/tlpi-group/marketing-cli/pkg/hubspot"
)

type stubHub struct {
	hubspot.Client
	search            func(ctx context.Context, objectType string, req hubspot.SearchRequest) (*hubspot.SearchPage, error)
	batchAssociations func(ctx context.Context, fromType, toType string, ids []string) ([]hubspot.AssociationEdge, error)
}

func (s *stubHub) Search(ctx context.Context, objectType string, req hubspot.SearchRequest) (*hubspot.SearchPage, error) {
	return s.search(ctx, objectType, req)
}

func (s *stubHub) BatchAssociations(ctx context.Context, fromType, toType string, ids []string) ([]hubspot.AssociationEdge, error) {
	return s.batchAssociations(ctx, fromType, toType, ids)
}

func strPtr(s string) *string { return &s }

func TestFetcher_Fetch(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	cfg := &config.Config{}
	cfg.Ingest.PageSize = 100
	cfg.Revenue.WonStageIDs = []string{"1054943521"}

	closed := windowStart.AddDate(0, 0, 30).Format(time.RFC3339)
	hub := &stubHub{
		search: func(ctx context.Context, objectType string, req hubspot.SearchRequest) (*hubspot.SearchPage, error) {
			assert.Equal(t, "deals", objectType)
			byProp := map[string]bool{}
			for _, f := range req.FilterGroups[0].Filters {
				byProp[f.PropertyName] = true
			}
			if byProp["dealstage"] {
				// The won search: d2 again plus d3, won outside the created set.
				return &hubspot.SearchPage{Results: []hubspot.Object{
					{ID: "d2", Properties: map[string]string{"amount": "8000", "dealstage": "1054943521", "closedate": closed}},
					{ID: "d3", Properties: map[string]string{"amount": "5000", "dealstage": "1054943521", "closedate": closed}},
				}}, nil
			}
			return &hubspot.SearchPage{Results: []hubspot.Object{
				{ID: "d1", Properties: map[string]string{"amount": "1000", "hubspot_owner_id": "10", "createdate": closed}},
				{ID: "d2", Properties: map[string]string{"amount": "8000", "dealstage": "1054943521", "closedate": closed}},
			}}, nil
		},
		batchAssociations: func(ctx context.Context, fromType, toType string, ids []string) ([]hubspot.AssociationEdge, error) {
			assert.Equal(t, "deals", fromType)
			assert.Equal(t, "contacts", toType)
			assert.ElementsMatch(t, []string{"d1", "d2", "d3"}, ids)
			return []hubspot.AssociationEdge{
				{From: hubspot.AssociationFrom{ID: "d1"}, To: []hubspot.AssociationTo{{ID: "c1"}, {ID: "c2"}}},
			}, nil
		},
	}

	mock.ExpectQuery("SELECT contact_id, email, utm_campaign").
		WithArgs([]string{"c1"}).
		WillReturnRows(pgxmock.NewRows([]string{
			"contact_id", "email", "utm_campaign", "utm_source", "utm_medium",
			"first_touch_campaign", "last_touch_campaign",
		}).AddRow("c1", strPtr("a@b.com"), strPtr("spring"), (*string)(nil), (*string)(nil), (*string)(nil), (*string)(nil)))

	deals, err := NewFetcher(cfg, mock, hub).Fetch(context.Background(), windowStart, windowEnd)
	require.NoError(t, err)
	require.Len(t, deals, 3)

	byID := map[string]Deal{}
	for _, d := range deals {
		byID[d.ID] = d
	}

	// Primary contact is the first association.
	require.NotNil(t, byID["d1"].Contact)
	assert.Equal(t, "c1", byID["d1"].Contact.ID)
	assert.Equal(t, "spring", byID["d1"].Contact.UTMCampaign)
	assert.False(t, byID["d1"].Won)

	assert.True(t, byID["d2"].Won)
	assert.Nil(t, byID["d2"].Contact)
	assert.Equal(t, 8000.0, byID["d2"].Amount)

	assert.True(t, byID["d3"].Won)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFetcher_NoDeals(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	cfg := &config.Config{}
	cfg.Ingest.PageSize = 100

	hub := &stubHub{
		search: func(ctx context.Context, objectType string, req hubspot.SearchRequest) (*hubspot.SearchPage, error) {
			return &hubspot.SearchPage{}, nil
		},
	}

	deals, err := NewFetcher(cfg, mock, hub).Fetch(context.Background(), windowStart, windowEnd)
	require.NoError(t, err)
	assert.Empty(t, deals)
}

func TestParseTimestamp(t *testing.T) {
	got := parseTimestamp("2026-03-10T09:00:00Z")
	require.NotNil(t, got)
	assert.Equal(t, time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC), *got)

	ms := parseTimestamp("1769904000000")
	require.NotNil(t, ms)
	assert.Equal(t, time.UnixMilli(1769904000000).UTC(), *ms)

	assert.Nil(t, parseTimestamp(""))
	assert.Nil(t, parseTimestamp("garbage"))
}

func TestParseAmount(t *testing.T) {
	assert.Equal(t, 1250.5, parseAmount("1250.5"))
	assert.Zero(t, parseAmount(""))
	assert.Zero(t, parseAmount("n/a"))
}
