// Package attribution joins window leads to the marketing campaign that
// sourced them, using form submissions first and contact-level UTM fields as
// the fallback. Resolution is pure and deterministic so the same inputs
// always produce the same campaign.
package attribution

import (
	"sort"
	"strings"
	"time"
)

// Unattributed marks a lead or deal that no campaign evidence could claim.
const Unattributed = "UNATTRIBUTED"

// Submission is one form submission as loaded from the cache.
type Submission struct {
	Email       string
	SubmittedAt time.Time
	Campaign    string
	Source      string
	Medium      string
	PageURL     string
}

// Contact is the cached attribution surface of one CRM contact.
type Contact struct {
	ID                 string
	Email              string
	UTMCampaign        string
	UTMSource          string
	UTMMedium          string
	LatestSource       string
	FirstTouchCampaign string
	LastTouchCampaign  string
}

// LeadFact is one window lead with its associated contacts, in stable join
// order.
type LeadFact struct {
	LeadID                 string
	CreatedAt              time.Time
	StageID                string
	Status                 string
	OwnerID                string
	DisqualificationReason string
	ContactIDs             []string
}

// AttributedLead is a lead with its resolved campaign, ready for funnel
// aggregation.
type AttributedLead struct {
	LeadID                 string
	CreatedAt              time.Time
	StageID                string
	OwnerID                string
	DisqualificationReason string
	Campaign               string
}

// SubmissionIndex buckets submissions by lowercase email, each bucket sorted
// by submission time ascending.
type SubmissionIndex struct {
	byEmail map[string][]Submission
}

// NewSubmissionIndex builds an index over the given submissions. Submissions
// without an email are unmatchable and dropped.
func NewSubmissionIndex(subs []Submission) *SubmissionIndex {
	ix := &SubmissionIndex{byEmail: make(map[string][]Submission)}
	for _, s := range subs {
		email := normEmail(s.Email)
		if email == "" {
			continue
		}
		ix.byEmail[email] = append(ix.byEmail[email], s)
	}
	for email := range ix.byEmail {
		bucket := ix.byEmail[email]
		// Total order: equal timestamps fall back to campaign then page URL,
		// so resolution does not depend on input order.
		sort.SliceStable(bucket, func(i, j int) bool {
			if !bucket[i].SubmittedAt.Equal(bucket[j].SubmittedAt) {
				return bucket[i].SubmittedAt.Before(bucket[j].SubmittedAt)
			}
			if bucket[i].Campaign != bucket[j].Campaign {
				return bucket[i].Campaign < bucket[j].Campaign
			}
			return bucket[i].PageURL < bucket[j].PageURL
		})
	}
	return ix
}

// ForEmail returns the sorted submissions for an email, matched
// case-insensitively.
func (ix *SubmissionIndex) ForEmail(email string) []Submission {
	return ix.byEmail[normEmail(email)]
}

// Resolver resolves lead campaigns against a submission index and the contact
// cache.
type Resolver struct {
	Lookback  time.Duration // how far before lead creation a submission may land
	Lookahead time.Duration // how far after
	index     *SubmissionIndex
	contacts  map[string]Contact
}

// NewResolver builds a resolver. Lookback and lookahead default to 14 days
// and 3 days when zero.
func NewResolver(index *SubmissionIndex, contacts map[string]Contact, lookback, lookahead time.Duration) *Resolver {
	if lookback <= 0 {
		lookback = 14 * 24 * time.Hour
	}
	if lookahead <= 0 {
		lookahead = 3 * 24 * time.Hour
	}
	return &Resolver{
		Lookback:  lookback,
		Lookahead: lookahead,
		index:     index,
		contacts:  contacts,
	}
}

// Resolve returns the campaign for one lead. Contacts are tried in the
// lead's stable join order; the first contact that yields a campaign wins.
// For each contact a matching submission inside the window beats the contact
// cache's own UTM campaign.
func (r *Resolver) Resolve(lead LeadFact) string {
	for _, contactID := range lead.ContactIDs {
		contact, ok := r.contacts[contactID]
		if !ok {
			continue
		}

		if sub, ok := r.bestSubmission(contact.Email, lead.CreatedAt); ok {
			if c := strings.TrimSpace(sub.Campaign); c != "" {
				return c
			}
		}
		if c := strings.TrimSpace(contact.UTMCampaign); c != "" {
			return c
		}
	}
	return Unattributed
}

// Attribute resolves every lead, carrying through the fields the funnel
// needs.
func (r *Resolver) Attribute(leads []LeadFact) []AttributedLead {
	out := make([]AttributedLead, 0, len(leads))
	for _, lead := range leads {
		out = append(out, AttributedLead{
			LeadID:                 lead.LeadID,
			CreatedAt:              lead.CreatedAt,
			StageID:                lead.StageID,
			OwnerID:                lead.OwnerID,
			DisqualificationReason: lead.DisqualificationReason,
			Campaign:               r.Resolve(lead),
		})
	}
	return out
}

// bestSubmission picks the winning submission for an email around the lead
// creation time. At-or-before submissions are preferred, closest first; with
// none, the closest one after wins.
func (r *Resolver) bestSubmission(email string, created time.Time) (Submission, bool) {
	if strings.TrimSpace(email) == "" {
		return Submission{}, false
	}

	windowStart := created.Add(-r.Lookback)
	windowEnd := created.Add(r.Lookahead)

	var (
		bestBefore, bestAfter Submission
		haveBefore, haveAfter bool
	)
	for _, s := range r.index.ForEmail(email) {
		if s.SubmittedAt.Before(windowStart) || s.SubmittedAt.After(windowEnd) {
			continue
		}
		if !s.SubmittedAt.After(created) {
			// Buckets are sorted ascending, so the last at-or-before
			// candidate is the closest.
			bestBefore, haveBefore = s, true
		} else if !haveAfter {
			bestAfter, haveAfter = s, true
		}
	}

	if haveBefore {
		return bestBefore, true
	}
	if haveAfter {
		return bestAfter, true
	}
	return Submission{}, false
}

// ResolveDealCampaign attributes a deal through its primary contact's cached
// UTM fields. Deals never join submissions.
func ResolveDealCampaign(contact *Contact) string {
	if contact == nil {
		return Unattributed
	}
	for _, c := range []string{contact.UTMCampaign, contact.LastTouchCampaign, contact.FirstTouchCampaign} {
		if c = strings.TrimSpace(c); c != "" {
			return c
		}
	}
	return Unattributed
}

func normEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
