package stage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tlpi-group/marketing-cli/internal/config"
	"github.com/tlpi-group/marketing-cli/pkg/hubspot"
)

func fullStagesConfig() config.StagesConfig {
	return config.StagesConfig{
		New:               "new-stage-id",
		Attempting:        "attempting-stage-id",
		Connected:         "connected-stage-id",
		MarketingProspect: "1134678094",
		SalesQualified:    "1213103916",
		ZoomBooked:        "qualified-stage-id",
		Disqualified:      "unqualified-stage-id",
		NotApplicable:     "1109558437",
	}
}

func TestFromConfig_Resolve(t *testing.T) {
	r := FromConfig(fullStagesConfig())
	require.NoError(t, r.Validate())

	assert.Equal(t, MarketingProspect, r.Resolve("1134678094"))
	assert.Equal(t, ZoomBooked, r.Resolve("qualified-stage-id"))
	assert.Equal(t, Disqualified, r.Resolve(" unqualified-stage-id "))
	assert.Equal(t, Unknown, r.Resolve("nope"))
	assert.Equal(t, Unknown, r.Resolve(""))
}

func TestFromConfig_PartialFailsValidate(t *testing.T) {
	cfg := fullStagesConfig()
	cfg.ZoomBooked = ""
	cfg.NotApplicable = ""

	r := FromConfig(cfg)
	err := r.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "zoom_booked")
	assert.Contains(t, err.Error(), "not_applicable")
}

func TestFromPipeline_LabelMatch(t *testing.T) {
	pipelines := []hubspot.Pipeline{{
		ID:    "lead-pipe",
		Label: "Lead Pipeline",
		Stages: []hubspot.PipelineStage{
			{ID: "s1", Label: "New"},
			{ID: "s2", Label: "Attempting to Contact"},
			{ID: "s3", Label: "Connected"},
			{ID: "s4", Label: "Marketing Prospect"},
			{ID: "s5", Label: "Sales Qualified"},
			{ID: "s6", Label: "Zoom Booked"},
			{ID: "s7", Label: "Disqualified"},
			{ID: "s8", Label: "Not Applicable"},
			{ID: "s9", Label: "Something Custom"},
		},
	}}

	r, err := FromPipeline(pipelines, "lead-pipe")
	require.NoError(t, err)
	require.NoError(t, r.Validate())

	assert.Equal(t, Attempting, r.Resolve("s2"))
	assert.Equal(t, ZoomBooked, r.Resolve("s6"))
	assert.Equal(t, Unknown, r.Resolve("s9"))
}

func TestFromPipeline_Errors(t *testing.T) {
	_, err := FromPipeline(nil, "")
	assert.Error(t, err)

	_, err = FromPipeline([]hubspot.Pipeline{{ID: "other"}}, "lead-pipe")
	assert.Error(t, err)
}

func TestFromPipeline_DefaultsToFirst(t *testing.T) {
	pipelines := []hubspot.Pipeline{
		{ID: "a", Stages: []hubspot.PipelineStage{{ID: "x", Label: "New"}}},
		{ID: "b", Stages: []hubspot.PipelineStage{{ID: "y", Label: "New"}}},
	}
	r, err := FromPipeline(pipelines, "")
	require.NoError(t, err)
	assert.Equal(t, New, r.Resolve("x"))
	assert.Equal(t, Unknown, r.Resolve("y"))
}

func TestMerge_ConfigWins(t *testing.T) {
	base, err := FromPipeline([]hubspot.Pipeline{{
		ID: "p",
		Stages: []hubspot.PipelineStage{
			{ID: "s1", Label: "New"},
			{ID: "s6", Label: "Zoom Booked"},
		},
	}}, "")
	require.NoError(t, err)

	override := FromConfig(config.StagesConfig{ZoomBooked: "s6-v2"})

	r := Merge(base, override)
	assert.Equal(t, New, r.Resolve("s1"))
	assert.Equal(t, ZoomBooked, r.Resolve("s6"))
	assert.Equal(t, ZoomBooked, r.Resolve("s6-v2"))
}

func TestRegistry_ID(t *testing.T) {
	r := FromConfig(fullStagesConfig())
	assert.Equal(t, "1134678094", r.ID(MarketingProspect))
	assert.Equal(t, "", FromConfig(config.StagesConfig{}).ID(New))
}
