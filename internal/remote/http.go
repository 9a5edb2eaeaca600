package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/tidwall/gjson"

	"github.com/randalmurphal/storyforge/internal/errors"
	"github.com/randalmurphal/storyforge/internal/factory"
	"github.com/randalmurphal/storyforge/internal/model"
)

// maxErrorBody bounds how much of a failed response is read for its message.
const maxErrorBody = 64 << 10

// HTTPClient implements Source over the project REST API. It remembers the
// ETag of every successful GET and sends it back as If-None-Match, so an
// unchanged resource answers 304 and surfaces as NotModified.
type HTTPClient struct {
	baseURL string
	client  *retryablehttp.Client
	logger  *slog.Logger

	mu    sync.Mutex
	etags map[string]string
}

var _ Source = (*HTTPClient)(nil)

// ClientOption configures an HTTPClient.
type ClientOption func(*HTTPClient)

// WithLogger sets the client logger. It is also handed to the retry layer.
func WithLogger(l *slog.Logger) ClientOption {
	return func(c *HTTPClient) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithRetryMax sets how many times a failed request is retried.
func WithRetryMax(n int) ClientOption {
	return func(c *HTTPClient) {
		c.client.RetryMax = n
	}
}

// WithRetryWait sets the backoff bounds between retries.
func WithRetryWait(lo, hi time.Duration) ClientOption {
	return func(c *HTTPClient) {
		c.client.RetryWaitMin = lo
		c.client.RetryWaitMax = hi
	}
}

// WithHTTPClient replaces the underlying transport client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *HTTPClient) {
		c.client.HTTPClient = hc
	}
}

// NewHTTPClient creates a client for the API rooted at baseURL.
// A zero timeout leaves request deadlines to the caller's context.
func NewHTTPClient(baseURL string, timeout time.Duration, opts ...ClientOption) *HTTPClient {
	rc := retryablehttp.NewClient()
	rc.HTTPClient.Timeout = timeout
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler

	c := &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  rc,
		logger:  slog.Default(),
		etags:   make(map[string]string),
	}
	for _, opt := range opts {
		opt(c)
	}
	rc.Logger = c.logger
	return c
}

// ClearETags forgets every remembered ETag, forcing full responses.
func (c *HTTPClient) ClearETags() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.etags = make(map[string]string)
}

func (c *HTTPClient) etag(u string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.etags[u]
}

func (c *HTTPClient) remember(u, tag string) {
	if tag == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.etags[u] = tag
}

// response is a successful GET. NotModified responses carry no body.
type response struct {
	body        []byte
	etag        string
	notModified bool
}

// get fetches u. A 404 for a request about one project (projectID set) is
// reported as that project not existing; any other failure as the remote
// being unavailable.
func (c *HTTPClient) get(ctx context.Context, op, u, projectID string) (*response, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, errors.ErrRemoteUnavailable(op).WithCause(err)
	}
	req.Header.Set("Accept", "application/json")
	if tag := c.etag(u); tag != "" {
		req.Header.Set("If-None-Match", tag)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, errors.ErrRemoteUnavailable(op).WithCause(err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotModified:
		c.logger.Debug("remote not modified", "operation", op, "url", u)
		return &response{notModified: true}, nil
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, errors.ErrRemoteUnavailable(op).WithCause(fmt.Errorf("read body: %w", err))
		}
		return &response{body: body, etag: resp.Header.Get("ETag")}, nil
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		cause := fmt.Errorf("status %d", resp.StatusCode)
		if msg := errorMessage(body); msg != "" {
			cause = fmt.Errorf("status %d: %s", resp.StatusCode, msg)
		}
		if resp.StatusCode == http.StatusNotFound && projectID != "" {
			c.logger.Debug("remote project not found", "operation", op, "project_id", projectID)
			return nil, errors.ErrProjectNotFound(projectID).WithCause(cause)
		}
		return nil, errors.ErrRemoteUnavailable(op).WithCause(cause)
	}
}

// errorMessage pulls a human message out of the common API error shapes.
func errorMessage(body []byte) string {
	if !gjson.ValidBytes(body) {
		return strings.TrimSpace(string(body))
	}
	for _, path := range []string{"error.message", "detail", "message", "error"} {
		if r := gjson.GetBytes(body, path); r.Exists() && r.Type == gjson.String {
			return r.String()
		}
	}
	return ""
}

// listPayload finds the array in a list response. The API has answered with
// {"<key>": [...]}, {"data": [...]} and a bare array over time.
func listPayload(body []byte, key string) (string, error) {
	if !gjson.ValidBytes(body) {
		return "", fmt.Errorf("invalid JSON")
	}
	root := gjson.ParseBytes(body)
	if root.IsArray() {
		return root.Raw, nil
	}
	for _, path := range []string{key, "data"} {
		if r := root.Get(path); r.IsArray() {
			return r.Raw, nil
		}
	}
	return "", fmt.Errorf("no %q array in response", key)
}

// apiProjectSummary is the wire form of a list entry. Timestamps are unix millis.
type apiProjectSummary struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Type        string `json:"type"`
	FactoryType string `json:"factory_type"`
	CreatedAt   int64  `json:"created_at"`
	UpdatedAt   int64  `json:"updated_at"`
}

func (p apiProjectSummary) toModel() ProjectSummary {
	return ProjectSummary{
		ID:          p.ID,
		Title:       p.Title,
		Description: p.Description,
		Type:        model.ProjectType(p.Type),
		FactoryType: factory.ParseType(p.FactoryType),
		CreatedAt:   time.UnixMilli(p.CreatedAt).UTC(),
		UpdatedAt:   time.UnixMilli(p.UpdatedAt).UTC(),
	}
}

// ListProjects fetches up to limit project summaries.
func (c *HTTPClient) ListProjects(ctx context.Context, limit int) (Result[[]ProjectSummary], error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	u := c.baseURL + "/projects/"
	if len(q) > 0 {
		u += "?" + q.Encode()
	}

	resp, err := c.get(ctx, OpListProjects, u, "")
	if err != nil {
		return Result[[]ProjectSummary]{}, err
	}
	if resp.notModified {
		return NotModified[[]ProjectSummary](), nil
	}

	raw, err := listPayload(resp.body, "projects")
	if err != nil {
		return Result[[]ProjectSummary]{}, errors.ErrRemoteUnavailable(OpListProjects).WithCause(err)
	}
	var wire []apiProjectSummary
	if err := json.Unmarshal([]byte(raw), &wire); err != nil {
		return Result[[]ProjectSummary]{}, errors.ErrRemoteUnavailable(OpListProjects).WithCause(fmt.Errorf("decode projects: %w", err))
	}
	out := make([]ProjectSummary, 0, len(wire))
	for _, p := range wire {
		out = append(out, p.toModel())
	}
	c.remember(u, resp.etag)
	return Data(out), nil
}

// GetProjectDetails fetches one project with all of its content.
func (c *HTTPClient) GetProjectDetails(ctx context.Context, id string) (Result[*ProjectDetails], error) {
	u := c.baseURL + "/projects/" + url.PathEscape(id)

	resp, err := c.get(ctx, OpProjectDetails, u, id)
	if err != nil {
		return Result[*ProjectDetails]{}, err
	}
	if resp.notModified {
		return NotModified[*ProjectDetails](), nil
	}

	payload := resp.body
	if d := gjson.GetBytes(payload, "data"); d.IsObject() && !gjson.GetBytes(payload, "project").Exists() {
		payload = []byte(d.Raw)
	}
	var details ProjectDetails
	if err := json.Unmarshal(payload, &details); err != nil {
		return Result[*ProjectDetails]{}, errors.ErrRemoteUnavailable(OpProjectDetails).WithCause(fmt.Errorf("decode project %s: %w", id, err))
	}
	if details.Project.ID == "" {
		details.Project.ID = id
	}
	c.remember(u, resp.etag)
	return Data(&details), nil
}

// GetCharacters fetches the characters of one project.
func (c *HTTPClient) GetCharacters(ctx context.Context, projectID string) (Result[[]model.Character], error) {
	u := c.baseURL + "/projects/" + url.PathEscape(projectID) + "/characters"

	resp, err := c.get(ctx, OpCharacters, u, projectID)
	if err != nil {
		return Result[[]model.Character]{}, err
	}
	if resp.notModified {
		return NotModified[[]model.Character](), nil
	}

	raw, err := listPayload(resp.body, "characters")
	if err != nil {
		return Result[[]model.Character]{}, errors.ErrRemoteUnavailable(OpCharacters).WithCause(err)
	}
	var chars []model.Character
	if err := json.Unmarshal([]byte(raw), &chars); err != nil {
		return Result[[]model.Character]{}, errors.ErrRemoteUnavailable(OpCharacters).WithCause(fmt.Errorf("decode characters: %w", err))
	}
	for i := range chars {
		if chars[i].ProjectID == "" {
			chars[i].ProjectID = projectID
		}
	}
	c.remember(u, resp.etag)
	return Data(chars), nil
}
