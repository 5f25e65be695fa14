// Package api is the REST client for the CowTracker backend.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rshade/cowtracker/internal/herd"
	"github.com/rshade/cowtracker/internal/logging"
	"github.com/rshade/cowtracker/pkg/version"
)

const (
	// DefaultTimeout bounds a single request when no timeout is configured.
	DefaultTimeout = 30 * time.Second

	// headerMinClientVersion carries the oldest client release the backend supports.
	headerMinClientVersion = "X-Min-Client-Version"

	// maxErrorBody caps how much of an error response is read for the message.
	maxErrorBody = 64 << 10
)

// ErrUnauthorized is matched by APIError for 401 and 403 responses.
var ErrUnauthorized = errors.New("not authorized")

// ErrNotFound is matched by APIError for 404 responses.
var ErrNotFound = errors.New("resource not found")

// APIError is a non-2xx response from the backend.
type APIError struct {
	StatusCode int
	Message    string
	Method     string
	Path       string
}

func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.StatusCode)
	}
	return fmt.Sprintf("%s %s: HTTP %d: %s", e.Method, e.Path, e.StatusCode, msg)
}

// Is lets errors.Is match ErrUnauthorized and ErrNotFound by status code.
func (e *APIError) Is(target error) bool {
	switch target {
	case ErrUnauthorized:
		return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
	case ErrNotFound:
		return e.StatusCode == http.StatusNotFound
	default:
		return false
	}
}

// Client talks to the backend over HTTP. It implements herd.Client.
// It never retries; callers decide whether to try again.
type Client struct {
	BaseURL    *url.URL
	Token      string
	HTTPClient *http.Client
	UserAgent  string

	versionOnce sync.Once
}

var _ herd.Client = (*Client)(nil)

// NewClient returns a client for baseURL. A non-positive timeout selects
// DefaultTimeout.
func NewClient(baseURL, token string, timeout time.Duration) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parsing API base URL: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("API base URL %q must be absolute", baseURL)
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		BaseURL:    u,
		Token:      token,
		HTTPClient: &http.Client{Timeout: timeout},
		UserAgent:  "cowtracker/" + version.GetVersion(),
	}, nil
}

// ListFarms returns every farm visible to the caller.
func (c *Client) ListFarms(ctx context.Context) ([]herd.Farm, error) {
	var out []herd.Farm
	err := c.do(ctx, http.MethodGet, "/farms", nil, nil, &out)
	return out, err
}

// GetFarm returns one farm by ID.
func (c *Client) GetFarm(ctx context.Context, id string) (*herd.Farm, error) {
	var out herd.Farm
	if err := c.do(ctx, http.MethodGet, "/farms/"+url.PathEscape(id), nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateFarm creates a farm and returns it with its server-assigned ID.
func (c *Client) CreateFarm(ctx context.Context, farm herd.Farm) (*herd.Farm, error) {
	var out herd.Farm
	if err := c.do(ctx, http.MethodPost, "/farms", nil, farm, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateFarm replaces the farm with the given ID.
func (c *Client) UpdateFarm(ctx context.Context, id string, farm herd.Farm) (*herd.Farm, error) {
	var out herd.Farm
	if err := c.do(ctx, http.MethodPut, "/farms/"+url.PathEscape(id), nil, farm, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteFarm removes a farm.
func (c *Client) DeleteFarm(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/farms/"+url.PathEscape(id), nil, nil, nil)
}

// ListCattle returns all cattle, or only those on farmID when it is set.
func (c *Client) ListCattle(ctx context.Context, farmID string) ([]herd.CattleItem, error) {
	var query url.Values
	if farmID != "" {
		query = url.Values{"farmId": {farmID}}
	}
	var out []herd.CattleItem
	err := c.do(ctx, http.MethodGet, "/cattle", query, nil, &out)
	return out, err
}

// GetCattle returns one animal by ID.
func (c *Client) GetCattle(ctx context.Context, id string) (*herd.CattleItem, error) {
	var out herd.CattleItem
	if err := c.do(ctx, http.MethodGet, "/cattle/"+url.PathEscape(id), nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateCattle registers an animal.
func (c *Client) CreateCattle(ctx context.Context, item herd.CattleItem) (*herd.CattleItem, error) {
	var out herd.CattleItem
	if err := c.do(ctx, http.MethodPost, "/cattle", nil, item, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateCattle replaces the animal with the given ID.
func (c *Client) UpdateCattle(ctx context.Context, id string, item herd.CattleItem) (*herd.CattleItem, error) {
	var out herd.CattleItem
	if err := c.do(ctx, http.MethodPut, "/cattle/"+url.PathEscape(id), nil, item, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteCattle removes an animal.
func (c *Client) DeleteCattle(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/cattle/"+url.PathEscape(id), nil, nil, nil)
}

// ListMedicalRecords returns an animal's medical history.
func (c *Client) ListMedicalRecords(ctx context.Context, cattleID string) ([]herd.MedicalRecord, error) {
	var out []herd.MedicalRecord
	err := c.do(ctx, http.MethodGet, "/cattle/"+url.PathEscape(cattleID)+"/medical", nil, nil, &out)
	return out, err
}

// AddMedicalRecord appends a medical record to an animal.
func (c *Client) AddMedicalRecord(
	ctx context.Context,
	cattleID string,
	record herd.MedicalRecord,
) (*herd.MedicalRecord, error) {
	var out herd.MedicalRecord
	path := "/cattle/" + url.PathEscape(cattleID) + "/medical"
	if err := c.do(ctx, http.MethodPost, path, nil, record, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CurrentUser returns the user the token belongs to.
func (c *Client) CurrentUser(ctx context.Context) (*herd.UserInfo, error) {
	var out herd.UserInfo
	if err := c.do(ctx, http.MethodGet, "/users/me", nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListUsers returns every user.
func (c *Client) ListUsers(ctx context.Context) ([]herd.UserInfo, error) {
	var out []herd.UserInfo
	err := c.do(ctx, http.MethodGet, "/users", nil, nil, &out)
	return out, err
}

// Report returns herd statistics for one farm, or all farms when farmID is empty.
func (c *Client) Report(ctx context.Context, farmID string) (*herd.ReportData, error) {
	var query url.Values
	if farmID != "" {
		query = url.Values{"farmId": {farmID}}
	}
	var out herd.ReportData
	if err := c.do(ctx, http.MethodGet, "/reports", query, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// do sends one request. body, when non-nil, is sent as JSON; out, when
// non-nil, receives the decoded JSON response.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	log := logging.FromContext(ctx)

	u := *c.BaseURL
	u.Path = strings.TrimRight(u.Path, "/") + path
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding %s %s request: %w", method, path, err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return fmt.Errorf("building %s %s request: %w", method, path, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	if c.UserAgent != "" {
		req.Header.Set("User-Agent", c.UserAgent)
	}
	if traceID := logging.TraceIDFromContext(ctx); traceID != "" {
		req.Header.Set("X-Request-Id", traceID)
	}

	start := time.Now()
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	log.Debug().
		Str("component", "api").
		Str("method", method).
		Str("path", path).
		Int("status", resp.StatusCode).
		Dur("duration", time.Since(start)).
		Msg("api request")

	c.checkClientVersion(ctx, resp.Header.Get(headerMinClientVersion))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return newAPIError(method, path, resp)
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s %s response: %w", method, path, err)
	}
	return nil
}

// checkClientVersion warns once when the backend reports that this build is
// older than it supports. Development builds are never warned about.
func (c *Client) checkClientVersion(ctx context.Context, minVersion string) {
	if minVersion == "" || version.IsDevelopment() {
		return
	}
	c.versionOnce.Do(func() {
		ok, err := version.Satisfies(">= " + minVersion)
		if err != nil || ok {
			return
		}
		logging.FromContext(ctx).Warn().
			Str("component", "api").
			Str("client_version", version.GetVersion()).
			Str("min_version", minVersion).
			Msg("backend requires a newer cowtracker release")
	})
}

// newAPIError reads the backend's {"message": "..."} or {"error": "..."}
// body, falling back to the raw text.
func newAPIError(method, path string, resp *http.Response) *APIError {
	apiErr := &APIError{StatusCode: resp.StatusCode, Method: method, Path: path}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil || len(data) == 0 {
		return apiErr
	}

	var payload struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if json.Unmarshal(data, &payload) == nil {
		switch {
		case payload.Message != "":
			apiErr.Message = payload.Message
			return apiErr
		case payload.Error != "":
			apiErr.Message = payload.Error
			return apiErr
		}
	}
	apiErr.Message = strings.TrimSpace(string(data))
	return apiErr
}
