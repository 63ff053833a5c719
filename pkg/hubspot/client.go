// Package hubspot provides token-authenticated access to the HubSpot CRM v3,
// forms v2, and form-integrations v1 APIs.
package hubspot

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/tlpi-group/marketing-cli/internal/resilience"
)

// Default base URL for the HubSpot APIs.
const defaultBaseURL = "https://api.hubapi.com"

// batchSize is the maximum input count accepted by CRM batch endpoints.
const batchSize = 100

// Client defines the HubSpot API operations used by the ingestion jobs.
type Client interface {
	// Search returns one page of a CRM object search. Callers drive paging
	// via SearchRequest.After and SearchPage.NextAfter.
	Search(ctx context.Context, objectType string, req SearchRequest) (*SearchPage, error)
	// BatchRead reads objects by ID with the given properties, chunking the
	// IDs to the batch endpoint's limit.
	BatchRead(ctx context.Context, objectType string, ids []string, properties []string) ([]Object, error)
	// BatchAssociations reads fromType-to-toType association edges for the
	// given from-object IDs.
	BatchAssociations(ctx context.Context, fromType, toType string, ids []string) ([]AssociationEdge, error)
	// ListOwners pages through all non-archived CRM owners.
	ListOwners(ctx context.Context) ([]Owner, error)
	// ListForms returns all marketing forms.
	ListForms(ctx context.Context) ([]Form, error)
	// FormSubmissions returns submissions for one form since the given time.
	FormSubmissions(ctx context.Context, formGUID string, since time.Time) ([]FormSubmission, error)
	// ListPipelines returns the pipelines defined for a CRM object type.
	ListPipelines(ctx context.Context, objectType string) ([]Pipeline, error)
	// ListProperties returns the property definitions for a CRM object type.
	ListProperties(ctx context.Context, objectType string) ([]PropertyDefinition, error)
}

// Option configures the httpClient.
type Option func(*httpClient)

// WithBaseURL overrides the default base URL.
func WithBaseURL(u string) Option {
	return func(c *httpClient) {
		c.baseURL = u
	}
}

// WithHTTPClient sets a custom *http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithRateLimit sets a per-second rate limit for HubSpot API calls.
// A burst equal to the integer portion of rps is allowed.
func WithRateLimit(rps float64) Option {
	return func(c *httpClient) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), max(int(rps), 1))
		}
	}
}

// httpClient implements Client using net/http.
type httpClient struct {
	token   string
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
}

// NewClient creates a new HubSpot client authenticated with a private app token.
func NewClient(token string, opts ...Option) Client {
	c := &httpClient{
		token:   token,
		baseURL: defaultBaseURL,
		http: &http.Client{
			Timeout: 60 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// wait blocks until the rate limiter allows one event, or ctx is cancelled.
func (c *httpClient) wait(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	return c.limiter.Wait(ctx)
}

func (c *httpClient) Search(ctx context.Context, objectType string, req SearchRequest) (*SearchPage, error) {
	var page SearchPage
	path := fmt.Sprintf("/crm/v3/objects/%s/search", objectType)
	if err := c.post(ctx, path, req, &page); err != nil {
		return nil, eris.Wrap(err, fmt.Sprintf("hubspot: search %s", objectType))
	}
	return &page, nil
}

func (c *httpClient) BatchRead(ctx context.Context, objectType string, ids []string, properties []string) ([]Object, error) {
	type input struct {
		ID string `json:"id"`
	}
	type request struct {
		Inputs     []input  `json:"inputs"`
		Properties []string `json:"properties,omitempty"`
	}
	type response struct {
		Results []Object `json:"results"`
	}

	path := fmt.Sprintf("/crm/v3/objects/%s/batch/read", objectType)
	var out []Object
	for _, chunk := range chunkIDs(ids, batchSize) {
		req := request{Properties: properties}
		for _, id := range chunk {
			req.Inputs = append(req.Inputs, input{ID: id})
		}
		var resp response
		if err := c.post(ctx, path, req, &resp); err != nil {
			return nil, eris.Wrap(err, fmt.Sprintf("hubspot: batch read %s", objectType))
		}
		out = append(out, resp.Results...)
	}
	return out, nil
}

func (c *httpClient) BatchAssociations(ctx context.Context, fromType, toType string, ids []string) ([]AssociationEdge, error) {
	type input struct {
		ID string `json:"id"`
	}
	type request struct {
		Inputs []input `json:"inputs"`
	}
	type response struct {
		Results []AssociationEdge `json:"results"`
	}

	path := fmt.Sprintf("/crm/v3/associations/%s/%s/batch/read", fromType, toType)
	var out []AssociationEdge
	for _, chunk := range chunkIDs(ids, batchSize) {
		req := request{}
		for _, id := range chunk {
			req.Inputs = append(req.Inputs, input{ID: id})
		}
		var resp response
		if err := c.post(ctx, path, req, &resp); err != nil {
			return nil, eris.Wrap(err, fmt.Sprintf("hubspot: batch associations %s/%s", fromType, toType))
		}
		out = append(out, resp.Results...)
	}
	return out, nil
}

func (c *httpClient) ListOwners(ctx context.Context) ([]Owner, error) {
	type response struct {
		Results []Owner `json:"results"`
		Paging  *Paging `json:"paging"`
	}

	var owners []Owner
	after := ""
	for {
		q := url.Values{}
		q.Set("limit", "500")
		q.Set("archived", "false")
		if after != "" {
			q.Set("after", after)
		}
		var resp response
		if err := c.get(ctx, "/crm/v3/owners/?"+q.Encode(), &resp); err != nil {
			return nil, eris.Wrap(err, "hubspot: list owners")
		}
		owners = append(owners, resp.Results...)
		if resp.Paging == nil || resp.Paging.Next.After == "" {
			break
		}
		after = resp.Paging.Next.After
	}
	return owners, nil
}

func (c *httpClient) ListForms(ctx context.Context) ([]Form, error) {
	var forms []Form
	if err := c.get(ctx, "/forms/v2/forms", &forms); err != nil {
		return nil, eris.Wrap(err, "hubspot: list forms")
	}
	return forms, nil
}

func (c *httpClient) FormSubmissions(ctx context.Context, formGUID string, since time.Time) ([]FormSubmission, error) {
	type response struct {
		Results []FormSubmission `json:"results"`
	}

	path := fmt.Sprintf("/form-integrations/v1/submissions/forms/%s?since=%s",
		formGUID, strconv.FormatInt(since.UnixMilli(), 10))
	var resp response
	if err := c.get(ctx, path, &resp); err != nil {
		return nil, eris.Wrap(err, fmt.Sprintf("hubspot: form submissions %s", formGUID))
	}
	return resp.Results, nil
}

func (c *httpClient) ListPipelines(ctx context.Context, objectType string) ([]Pipeline, error) {
	type response struct {
		Results []Pipeline `json:"results"`
	}

	var resp response
	if err := c.get(ctx, fmt.Sprintf("/crm/v3/pipelines/%s", objectType), &resp); err != nil {
		return nil, eris.Wrap(err, fmt.Sprintf("hubspot: list pipelines %s", objectType))
	}
	return resp.Results, nil
}

func (c *httpClient) ListProperties(ctx context.Context, objectType string) ([]PropertyDefinition, error) {
	type response struct {
		Results []PropertyDefinition `json:"results"`
	}

	var resp response
	if err := c.get(ctx, fmt.Sprintf("/crm/v3/properties/%s", objectType), &resp); err != nil {
		return nil, eris.Wrap(err, fmt.Sprintf("hubspot: list properties %s", objectType))
	}
	return resp.Results, nil
}

func (c *httpClient) post(ctx context.Context, path string, body any, out any) error {
	if err := c.wait(ctx); err != nil {
		return eris.Wrap(err, "rate limit")
	}

	buf, err := json.Marshal(body)
	if err != nil {
		return eris.Wrap(err, "marshal request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(buf))
	if err != nil {
		return eris.Wrap(err, "create request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	return c.do(req, out)
}

func (c *httpClient) get(ctx context.Context, path string, out any) error {
	if err := c.wait(ctx); err != nil {
		return eris.Wrap(err, "rate limit")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return eris.Wrap(err, "create request")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	return c.do(req, out)
}

func (c *httpClient) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return eris.Wrap(err, "execute request")
	}
	defer resp.Body.Close() //nolint:errcheck

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return eris.Wrap(err, "read response body")
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(data)}
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return resilience.NewTransientError(apiErr, resp.StatusCode)
		}
		return apiErr
	}

	if err := json.Unmarshal(data, out); err != nil {
		return eris.Wrap(err, "decode response")
	}
	return nil
}

func chunkIDs(ids []string, size int) [][]string {
	var chunks [][]string
	for i := 0; i < len(ids); i += size {
		end := min(i+size, len(ids))
		chunks = append(chunks, ids[i:end])
	}
	return chunks
}
