package attribution

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/tlpi-group/marketing-cli/internal/db"
)

// Data holds a window's worth of facts loaded into memory for resolution.
type Data struct {
	Leads       []LeadFact
	Contacts    map[string]Contact
	Submissions []Submission
}

// Loader reads leads, contact mappings, the contact cache, and form
// submissions from the store. Resolution happens in memory afterwards.
// Lookback and lookahead widen the submissions read past the lead window so
// the resolver's join window is fully covered.
type Loader struct {
	pool      db.Pool
	lookback  time.Duration
	lookahead time.Duration
}

// NewLoader creates a loader over the given pool. Lookback and lookahead
// default to 14 days and 3 days when zero, matching NewResolver.
func NewLoader(pool db.Pool, lookback, lookahead time.Duration) *Loader {
	if lookback <= 0 {
		lookback = 14 * 24 * time.Hour
	}
	if lookahead <= 0 {
		lookahead = 3 * 24 * time.Hour
	}
	return &Loader{pool: pool, lookback: lookback, lookahead: lookahead}
}

// Load reads everything needed to attribute leads created in
// [windowStart, windowEnd). Contact IDs per lead arrive in contact_id order
// so resolution is deterministic.
func (l *Loader) Load(ctx context.Context, windowStart, windowEnd time.Time) (*Data, error) {
	leads, err := l.loadLeads(ctx, windowStart, windowEnd)
	if err != nil {
		return nil, err
	}
	if err := l.loadContactIDs(ctx, leads); err != nil {
		return nil, err
	}
	contacts, err := l.loadContacts(ctx)
	if err != nil {
		return nil, err
	}
	subs, err := l.loadSubmissions(ctx, windowStart.Add(-l.lookback), windowEnd.Add(l.lookahead))
	if err != nil {
		return nil, err
	}

	return &Data{Leads: leads, Contacts: contacts, Submissions: subs}, nil
}

func (l *Loader) loadLeads(ctx context.Context, windowStart, windowEnd time.Time) ([]LeadFact, error) {
	rows, err := l.pool.Query(ctx,
		`SELECT lead_id, created_at, lead_stage, lead_status, owner_id, disqualification_reason
		 FROM crm_data.lead_facts
		 WHERE created_at >= $1 AND created_at < $2
		 ORDER BY created_at, lead_id`,
		windowStart, windowEnd,
	)
	if err != nil {
		return nil, eris.Wrap(err, "attribution: load leads")
	}
	defer rows.Close()

	var leads []LeadFact
	for rows.Next() {
		var f LeadFact
		var stage, status, owner, reason *string
		if err := rows.Scan(&f.LeadID, &f.CreatedAt, &stage, &status, &owner, &reason); err != nil {
			return nil, eris.Wrap(err, "attribution: scan lead")
		}
		f.StageID = deref(stage)
		f.Status = deref(status)
		f.OwnerID = deref(owner)
		f.DisqualificationReason = deref(reason)
		leads = append(leads, f)
	}
	return leads, rows.Err()
}

func (l *Loader) loadContactIDs(ctx context.Context, leads []LeadFact) error {
	if len(leads) == 0 {
		return nil
	}

	rows, err := l.pool.Query(ctx,
		`SELECT lead_id, contact_id FROM crm_data.lead_contact_map
		 ORDER BY lead_id, contact_id`,
	)
	if err != nil {
		return eris.Wrap(err, "attribution: load lead contacts")
	}
	defer rows.Close()

	byLead := make(map[string][]string)
	for rows.Next() {
		var leadID, contactID string
		if err := rows.Scan(&leadID, &contactID); err != nil {
			return eris.Wrap(err, "attribution: scan lead contact")
		}
		byLead[leadID] = append(byLead[leadID], contactID)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for i := range leads {
		leads[i].ContactIDs = byLead[leads[i].LeadID]
	}
	return nil
}

func (l *Loader) loadContacts(ctx context.Context) (map[string]Contact, error) {
	rows, err := l.pool.Query(ctx,
		`SELECT contact_id, email, utm_campaign, utm_source, utm_medium,
		        latest_source, first_touch_campaign, last_touch_campaign
		 FROM crm_data.contact_attribution`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "attribution: load contacts")
	}
	defer rows.Close()

	contacts := make(map[string]Contact)
	for rows.Next() {
		var c Contact
		var email, campaign, source, medium, latest, first, last *string
		if err := rows.Scan(&c.ID, &email, &campaign, &source, &medium, &latest, &first, &last); err != nil {
			return nil, eris.Wrap(err, "attribution: scan contact")
		}
		c.Email = deref(email)
		c.UTMCampaign = deref(campaign)
		c.UTMSource = deref(source)
		c.UTMMedium = deref(medium)
		c.LatestSource = deref(latest)
		c.FirstTouchCampaign = deref(first)
		c.LastTouchCampaign = deref(last)
		contacts[c.ID] = c
	}
	return contacts, rows.Err()
}

func (l *Loader) loadSubmissions(ctx context.Context, from, to time.Time) ([]Submission, error) {
	rows, err := l.pool.Query(ctx,
		`SELECT email, submitted_at, utm_campaign, utm_source, utm_medium, page_url
		 FROM crm_data.form_submissions
		 WHERE submitted_at >= $1 AND submitted_at < $2 AND email IS NOT NULL
		 ORDER BY submitted_at`,
		from, to,
	)
	if err != nil {
		return nil, eris.Wrap(err, "attribution: load submissions")
	}
	defer rows.Close()

	var subs []Submission
	for rows.Next() {
		var s Submission
		var email, campaign, source, medium, pageURL *string
		if err := rows.Scan(&email, &s.SubmittedAt, &campaign, &source, &medium, &pageURL); err != nil {
			return nil, eris.Wrap(err, "attribution: scan submission")
		}
		s.Email = deref(email)
		s.Campaign = deref(campaign)
		s.Source = deref(source)
		s.Medium = deref(medium)
		s.PageURL = deref(pageURL)
		subs = append(subs, s)
	}
	return subs, rows.Err()
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
