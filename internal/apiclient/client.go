// Package apiclient talks to the Studyflow REST API. Client satisfies
// studysession.Store, so a controller can run against a remote server.
package apiclient

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
	"time"

	"github.com/google/uuid"

	"studyflow/internal/models"
)

const defaultTimeout = 15 * time.Second

// Error is a non-2xx response decoded from the API's error envelope.
type Error struct {
	StatusCode int
	Code       string
	Message    string
	Fields     map[string]string
	RequestID  string
}

func (e *Error) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("api error: HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("api error %s (HTTP %d): %s", e.Code, e.StatusCode, e.Message)
}

// IsStatus reports whether err is an API error with the given HTTP status.
func IsStatus(err error, status int) bool {
	var apiErr *Error
	return errors.As(err, &apiErr) && apiErr.StatusCode == status
}

type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// New builds a client for an API root such as http://localhost:8080/api/v1.
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("failed to parse api url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("api url must be http or https, got %q", baseURL)
	}

	c := &Client{
		baseURL: u.String(),
		http:    &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Client) SetToken(token string) {
	c.token = token
}

func (c *Client) Login(ctx context.Context, email, password string) (*models.AuthTokens, error) {
	var tokens models.AuthTokens
	err := c.do(ctx, http.MethodPost, "/auth/login", models.LoginRequest{Email: email, Password: password}, &tokens)
	if err != nil {
		return nil, err
	}
	c.token = tokens.AccessToken
	return &tokens, nil
}

func (c *Client) ListPlans(ctx context.Context) ([]models.StudyPlan, error) {
	var resp struct {
		Plans []models.StudyPlan `json:"plans"`
	}
	if err := c.do(ctx, http.MethodGet, "/plans?limit=50", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Plans, nil
}

func (c *Client) CreatePlan(ctx context.Context, req models.CreatePlanRequest) (*models.StudyPlan, error) {
	var plan models.StudyPlan
	if err := c.do(ctx, http.MethodPost, "/plans", req, &plan); err != nil {
		return nil, err
	}
	return &plan, nil
}

func (c *Client) ListPlanSessions(ctx context.Context, planID uuid.UUID) ([]models.StudySession, error) {
	var resp struct {
		Sessions []models.StudySession `json:"sessions"`
	}
	if err := c.do(ctx, http.MethodGet, "/plans/"+planID.String()+"/sessions", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Sessions, nil
}

// ListSessions returns the caller's sessions, optionally filtered by status.
func (c *Client) ListSessions(ctx context.Context, status models.SessionStatus) ([]models.StudySession, error) {
	q := url.Values{}
	q.Set("limit", "50")
	if status != "" {
		q.Set("status", string(status))
	}

	var resp struct {
		Sessions []models.StudySession `json:"sessions"`
	}
	if err := c.do(ctx, http.MethodGet, "/study-sessions?"+q.Encode(), nil, &resp); err != nil {
		return nil, err
	}
	return resp.Sessions, nil
}

func (c *Client) CreateSession(ctx context.Context, req models.CreateSessionRequest) (*models.StudySession, error) {
	var s models.StudySession
	if err := c.do(ctx, http.MethodPost, "/study-sessions", req, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func (c *Client) ReadSession(ctx context.Context, id uuid.UUID) (*models.StudySession, error) {
	var s models.StudySession
	if err := c.do(ctx, http.MethodGet, "/study-sessions/"+id.String(), nil, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func (c *Client) UpdateSessionStatus(ctx context.Context, id uuid.UUID, update models.StatusUpdate) (*models.StudySession, error) {
	var s models.StudySession
	if err := c.do(ctx, http.MethodPut, "/study-sessions/"+id.String()+"/status", update, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func (c *Client) CompleteSession(ctx context.Context, id uuid.UUID, summary models.CompletionSummary) (*models.StudySession, error) {
	var s models.StudySession
	if err := c.do(ctx, http.MethodPost, "/study-sessions/"+id.String()+"/complete", summary, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	apiErr := &Error{StatusCode: resp.StatusCode}

	var envelope models.ErrorResponse
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err := json.Unmarshal(data, &envelope); err == nil && envelope.Error.Code != "" {
		apiErr.Code = envelope.Error.Code
		apiErr.Message = envelope.Error.Message
		apiErr.Fields = envelope.Error.Fields
		apiErr.RequestID = envelope.Error.RequestID
	} else {
		apiErr.Message = strings.TrimSpace(string(data))
	}
	return apiErr
}
