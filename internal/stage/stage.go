// Package stage maps raw CRM lead pipeline stage IDs onto a closed enum so
// aggregation logic never compares against magic ID strings.
package stage

import (
	"strings"

	"github.com/rotisserie/eris"

	"github.com/tlpi-group/marketing-cli/internal/config"
	"github.com/tlpi-group/marketing-cli/pkg/hubspot"
)

// Stage is one step of the lead pipeline.
type Stage string

const (
	New               Stage = "new"
	Attempting        Stage = "attempting"
	Connected         Stage = "connected"
	MarketingProspect Stage = "marketing_prospect"
	SalesQualified    Stage = "sales_qualified"
	ZoomBooked        Stage = "zoom_booked"
	Disqualified      Stage = "disqualified"
	NotApplicable     Stage = "not_applicable"
	Unknown           Stage = "unknown"
)

// All lists every known stage in pipeline order.
var All = []Stage{
	New, Attempting, Connected, MarketingProspect,
	SalesQualified, ZoomBooked, Disqualified, NotApplicable,
}

// stageLabels maps each stage to the labels it carries in the CRM pipeline
// metadata. Matching is case-insensitive on the normalised label.
var stageLabels = map[Stage][]string{
	New:               {"new"},
	Attempting:        {"attempting", "attempting to contact"},
	Connected:         {"connected"},
	MarketingProspect: {"marketing prospect"},
	SalesQualified:    {"sales qualified"},
	ZoomBooked:        {"zoom booked"},
	Disqualified:      {"disqualified", "unqualified"},
	NotApplicable:     {"not applicable", "n/a"},
}

// Registry resolves CRM stage IDs to Stage values.
type Registry struct {
	byID map[string]Stage
}

// FromConfig builds a registry from pinned stage IDs. Only non-empty entries
// are registered; Validate reports what is missing.
func FromConfig(cfg config.StagesConfig) *Registry {
	r := &Registry{byID: make(map[string]Stage)}
	for s, id := range map[Stage]string{
		New:               cfg.New,
		Attempting:        cfg.Attempting,
		Connected:         cfg.Connected,
		MarketingProspect: cfg.MarketingProspect,
		SalesQualified:    cfg.SalesQualified,
		ZoomBooked:        cfg.ZoomBooked,
		Disqualified:      cfg.Disqualified,
		NotApplicable:     cfg.NotApplicable,
	} {
		if id != "" {
			r.byID[id] = s
		}
	}
	return r
}

// FromPipeline builds a registry by matching stage labels in a CRM lead
// pipeline. When pipelineID is empty the first pipeline is used.
func FromPipeline(pipelines []hubspot.Pipeline, pipelineID string) (*Registry, error) {
	if len(pipelines) == 0 {
		return nil, eris.New("stage: no lead pipelines found")
	}

	var pipe *hubspot.Pipeline
	if pipelineID == "" {
		pipe = &pipelines[0]
	} else {
		for i := range pipelines {
			if pipelines[i].ID == pipelineID {
				pipe = &pipelines[i]
				break
			}
		}
		if pipe == nil {
			return nil, eris.Errorf("stage: pipeline %q not found", pipelineID)
		}
	}

	r := &Registry{byID: make(map[string]Stage, len(pipe.Stages))}
	for _, ps := range pipe.Stages {
		if s, ok := matchLabel(ps.Label); ok {
			r.byID[ps.ID] = s
		}
	}
	return r, nil
}

// Merge overlays config-pinned IDs on top of pipeline-resolved ones, with the
// config taking precedence.
func Merge(base, override *Registry) *Registry {
	r := &Registry{byID: make(map[string]Stage)}
	if base != nil {
		for id, s := range base.byID {
			r.byID[id] = s
		}
	}
	if override != nil {
		for id, s := range override.byID {
			r.byID[id] = s
		}
	}
	return r
}

// Resolve maps a raw stage ID to its Stage, or Unknown.
func (r *Registry) Resolve(stageID string) Stage {
	if s, ok := r.byID[strings.TrimSpace(stageID)]; ok {
		return s
	}
	return Unknown
}

// ID returns the first registered raw ID for a stage, or "".
func (r *Registry) ID(s Stage) string {
	for id, got := range r.byID {
		if got == s {
			return id
		}
	}
	return ""
}

// Validate fails fast when any expected stage has no registered ID.
func (r *Registry) Validate() error {
	found := make(map[Stage]bool, len(r.byID))
	for _, s := range r.byID {
		found[s] = true
	}

	var missing []string
	for _, s := range All {
		if !found[s] {
			missing = append(missing, string(s))
		}
	}
	if len(missing) > 0 {
		return eris.Errorf("stage: unresolved stages: %s", strings.Join(missing, ", "))
	}
	return nil
}

func matchLabel(label string) (Stage, bool) {
	norm := strings.ToLower(strings.TrimSpace(label))
	for s, labels := range stageLabels {
		for _, l := range labels {
			if norm == l {
				return s, true
			}
		}
	}
	return Unknown, false
}
