package hubspot

import "fmt"

// Object is a CRM v3 object record (lead, contact, deal).
type Object struct {
	ID         string            `json:"id"`
	Properties map[string]string `json:"properties"`
	CreatedAt  string            `json:"createdAt,omitempty"`
	UpdatedAt  string            `json:"updatedAt,omitempty"`
}

// Property returns a named property value, or "" when absent.
func (o Object) Property(name string) string {
	if o.Properties == nil {
		return ""
	}
	return o.Properties[name]
}

// Filter is a single CRM search filter. Values is used with the IN operator,
// Value with everything else.
type Filter struct {
	PropertyName string   `json:"propertyName"`
	Operator     string   `json:"operator"`
	Value        string   `json:"value,omitempty"`
	Values       []string `json:"values,omitempty"`
}

// FilterGroup ANDs its filters; groups are ORed by the search API.
type FilterGroup struct {
	Filters []Filter `json:"filters"`
}

// Sort orders search results by a property.
type Sort struct {
	PropertyName string `json:"propertyName"`
	Direction    string `json:"direction"`
}

// SearchRequest is the body for POST /crm/v3/objects/{type}/search.
type SearchRequest struct {
	FilterGroups []FilterGroup `json:"filterGroups,omitempty"`
	Sorts        []Sort        `json:"sorts,omitempty"`
	Properties   []string      `json:"properties,omitempty"`
	Limit        int           `json:"limit,omitempty"`
	After        string        `json:"after,omitempty"`
}

// Paging carries the search/list cursor for the next page.
type Paging struct {
	Next struct {
		After string `json:"after"`
	} `json:"next"`
}

// SearchPage is one page of CRM search results.
type SearchPage struct {
	Total   int      `json:"total"`
	Results []Object `json:"results"`
	Paging  *Paging  `json:"paging,omitempty"`
}

// NextAfter returns the cursor for the following page, or "" on the last page.
func (p *SearchPage) NextAfter() string {
	if p == nil || p.Paging == nil {
		return ""
	}
	return p.Paging.Next.After
}

// AssociationFrom identifies the source object of an association edge.
type AssociationFrom struct {
	ID string `json:"id"`
}

// AssociationTo identifies one target object of an association edge.
type AssociationTo struct {
	ID   string `json:"id"`
	Type string `json:"type"`
}

// AssociationEdge is one from-object's association targets.
type AssociationEdge struct {
	From AssociationFrom `json:"from"`
	To   []AssociationTo `json:"to"`
}

// Owner is a CRM owner record from /crm/v3/owners.
type Owner struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	UserID    *int64 `json:"userId"`
	Active    bool   `json:"active"`
	Archived  bool   `json:"archived"`
}

// FullName joins first and last name, skipping empty parts.
func (o Owner) FullName() string {
	switch {
	case o.FirstName != "" && o.LastName != "":
		return o.FirstName + " " + o.LastName
	case o.FirstName != "":
		return o.FirstName
	default:
		return o.LastName
	}
}

// Form is a marketing form from the forms v2 listing.
type Form struct {
	GUID string `json:"guid"`
	Name string `json:"name"`
}

// SubmissionValue is one field captured on a form submission.
type SubmissionValue struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// FormSubmission is one submission from the form-integrations v1 endpoint.
type FormSubmission struct {
	SubmittedAt int64             `json:"submittedAt"`
	PageURL     string            `json:"pageUrl"`
	Values      []SubmissionValue `json:"values"`
}

// PipelineStage is one stage of a CRM pipeline.
type PipelineStage struct {
	ID           string `json:"id"`
	Label        string `json:"label"`
	DisplayOrder int    `json:"displayOrder"`
}

// Pipeline is a CRM object pipeline with its stages.
type Pipeline struct {
	ID     string          `json:"id"`
	Label  string          `json:"label"`
	Stages []PipelineStage `json:"stages"`
}

// PropertyDefinition describes one CRM property of an object type.
type PropertyDefinition struct {
	Name  string `json:"name"`
	Label string `json:"label"`
	Type  string `json:"type"`
}

// APIError is returned when HubSpot responds with a non-2xx status.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("hubspot: HTTP %d: %s", e.StatusCode, e.Body)
}
