package funnel

import (
	"sort"
	"strings"

	"github.com/tlpi-group/marketing-cli/internal/attribution"
	"github.com/tlpi-group/marketing-cli/internal/stage"
)

// noReason stands in for a disqualified lead with no recorded reason.
const noReason = "NO_REASON"

// ReasonCount is one disqualification reason and how often it occurred.
type ReasonCount struct {
	Reason string `json:"reason"`
	Count  int    `json:"count"`
}

// ConsultantFunnel is the per-consultant lead handling funnel. Callable is
// the share of a consultant's leads that were actually theirs to work:
// marketing prospects and not-applicable leads are subtracted out.
type ConsultantFunnel struct {
	Name              string `json:"name"`
	LeadsTotal        int    `json:"leads_total"`
	MarketingProspect int    `json:"marketing_prospect"`
	NotApplicable     int    `json:"not_applicable"`
	Callable          int    `json:"callable"`
	SalesQualified    int    `json:"sales_qualified"`
	ZoomBooked        int    `json:"zoom_booked"`
	Disqualified      int    `json:"disqualified"`

	ZoomRate         float64 `json:"zoom_rate"`
	DisqualifiedRate float64 `json:"disqualified_rate"`

	TopDisqualificationReasons []ReasonCount `json:"top_disqualification_reasons"`
}

// Consultants aggregates leads per owner, restricted to the configured
// consultant allow-list, and ranks by callable volume. ownerNames maps owner
// IDs to full names from the owner cache.
func Consultants(leads []attribution.AttributedLead, stages *stage.Registry, ownerNames map[string]string, allowList []string) []ConsultantFunnel {
	allowed := make(map[string]bool, len(allowList))
	for _, name := range allowList {
		allowed[strings.ToLower(strings.TrimSpace(name))] = true
	}

	type acc struct {
		funnel  ConsultantFunnel
		reasons map[string]int
	}
	byName := make(map[string]*acc)

	for _, lead := range leads {
		name := strings.TrimSpace(ownerNames[lead.OwnerID])
		if name == "" || (len(allowed) > 0 && !allowed[strings.ToLower(name)]) {
			continue
		}

		a, ok := byName[name]
		if !ok {
			a = &acc{funnel: ConsultantFunnel{Name: name}, reasons: make(map[string]int)}
			byName[name] = a
		}

		a.funnel.LeadsTotal++
		switch stages.Resolve(lead.StageID) {
		case stage.MarketingProspect:
			a.funnel.MarketingProspect++
		case stage.NotApplicable:
			a.funnel.NotApplicable++
		case stage.SalesQualified:
			a.funnel.SalesQualified++
		case stage.ZoomBooked:
			a.funnel.ZoomBooked++
		case stage.Disqualified:
			a.funnel.Disqualified++
			reason := strings.TrimSpace(lead.DisqualificationReason)
			if reason == "" {
				reason = noReason
			}
			a.reasons[reason]++
		}
	}

	out := make([]ConsultantFunnel, 0, len(byName))
	for _, a := range byName {
		f := a.funnel
		f.Callable = max(0, f.LeadsTotal-f.MarketingProspect-f.NotApplicable)
		if f.Callable > 0 {
			f.ZoomRate = float64(f.ZoomBooked) / float64(f.Callable)
			f.DisqualifiedRate = float64(f.Disqualified) / float64(f.Callable)
		}
		f.TopDisqualificationReasons = topReasons(a.reasons, 3)
		out = append(out, f)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Callable != out[j].Callable {
			return out[i].Callable > out[j].Callable
		}
		return out[i].Name < out[j].Name
	})
	return out
}

func topReasons(counts map[string]int, n int) []ReasonCount {
	reasons := make([]ReasonCount, 0, len(counts))
	for reason, count := range counts {
		reasons = append(reasons, ReasonCount{Reason: reason, Count: count})
	}
	sort.SliceStable(reasons, func(i, j int) bool {
		if reasons[i].Count != reasons[j].Count {
			return reasons[i].Count > reasons[j].Count
		}
		return reasons[i].Reason < reasons[j].Reason
	})
	if len(reasons) > n {
		reasons = reasons[:n]
	}
	return reasons
}
