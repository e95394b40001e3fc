package taplinesdk

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
)

// Client is a minimal Tapline HTTP API client.
type Client struct {
	BaseURL     string
	BasePath    string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults. Synthesis waits on the model, so
// the timeout is longer than a plain CRUD client would use.
func New(baseURL string) *Client {
	return &Client{
		BaseURL:  baseURL,
		BasePath: "/v0",
		Timeout:  3 * time.Minute,
	}
}

// Question is one entry of a resolved question set.
type Question struct {
	ID       string   `json:"id"`
	Label    string   `json:"label"`
	Probe    string   `json:"probe,omitempty"`
	Kind     string   `json:"type"`
	Options  []string `json:"options,omitempty"`
	Optional bool     `json:"optional,omitempty"`
}

// Questions is the response of the question resolver.
type Questions struct {
	Track     string     `json:"track,omitempty"`
	Questions []Question `json:"questions"`
}

// Invite represents the API invite model (partial).
type Invite struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	SlackUserID string `json:"slack_user_id,omitempty"`
	RoleType    string `json:"role_type"`
	Status      string `json:"status"`
	ExpiresAt   string `json:"expires_at"`
	SubmittedAt string `json:"submitted_at,omitempty"`
}

// Session represents the API session model (partial). Analysis and synthesis
// are kept raw so callers decode only what they render.
type Session struct {
	ID               string            `json:"id"`
	CreatedAt        string            `json:"created_at"`
	UpdatedAt        string            `json:"updated_at"`
	Phase            string            `json:"phase"`
	JobFamily        string            `json:"job_family"`
	Track            string            `json:"track"`
	HMAnswers        map[string]string `json:"hm_answers"`
	Analysis         json.RawMessage   `json:"ai_analysis"`
	Invites          []Invite          `json:"invites"`
	Synthesis        json.RawMessage   `json:"synthesis"`
	NotionPageID     string            `json:"notion_page_id,omitempty"`
	SlackChannelID   string            `json:"slack_channel_id,omitempty"`
	SlackChannelName string            `json:"slack_channel_name,omitempty"`
	TapName          string            `json:"tap_name,omitempty"`
}

// Event represents an audit log entry.
type Event struct {
	ID        string `json:"id"`
	TS        string `json:"ts"`
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
	InviteID  string `json:"invite_id,omitempty"`
	Payload   string `json:"payload_json"`
}

// IntakeResult is returned by CreateSession.
type IntakeResult struct {
	SessionID     string          `json:"session_id"`
	Track         string          `json:"track"`
	Phase         string          `json:"phase"`
	Analysis      json.RawMessage `json:"analysis"`
	AnalysisError string          `json:"analysis_error,omitempty"`
}

// InviteResult is returned by CreateInvite.
type InviteResult struct {
	InviteID  string `json:"invite_id"`
	Token     string `json:"token"`
	FormLink  string `json:"form_link"`
	SlackSent bool   `json:"slack_sent"`
	ExpiresAt string `json:"expires_at"`
}

// SynthesisResult is returned by Synthesize.
type SynthesisResult struct {
	SessionID string          `json:"session_id"`
	Phase     string          `json:"phase"`
	Synthesis json.RawMessage `json:"synthesis"`
}

// RespondForm is what a respondent sees when opening a link.
type RespondForm struct {
	InviteID        string                `json:"invite_id"`
	SessionID       string                `json:"session_id"`
	RoleType        string                `json:"role_type"`
	StakeholderName string                `json:"stakeholder_name"`
	JobFamily       string                `json:"job_family"`
	RoleTitle       string                `json:"role_title"`
	RequesterName   string                `json:"requester_name,omitempty"`
	Questions       []Question            `json:"questions"`
	FollowUps       map[string][]Question `json:"follow_ups,omitempty"`
}

// Submission is returned by SubmitResponse.
type Submission struct {
	ResponseID   string `json:"response_id"`
	AllSubmitted bool   `json:"all_submitted"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Details    map[string]any
	Body       string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error: status=%d code=%s message=%s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// IsCode reports whether err is an APIError with the given envelope code.
func IsCode(err error, code string) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == code
}

// IntakeQuestions resolves the hiring manager intake for a job family.
func (c *Client) IntakeQuestions(ctx context.Context, jobFamily string) (Questions, error) {
	var resp Questions
	err := c.do(ctx, http.MethodGet, "questions?job_family="+url.QueryEscape(jobFamily), nil, &resp)
	return resp, err
}

// CreateSession submits an intake. A failed analysis is reported in
// AnalysisError and does not fail the call.
func (c *Client) CreateSession(ctx context.Context, jobFamily string, answers map[string]string, tapName, tapSlackID string) (IntakeResult, error) {
	body := map[string]any{
		"job_family": jobFamily,
		"hm_answers": answers,
	}
	if tapName != "" {
		body["tap_name"] = tapName
	}
	if tapSlackID != "" {
		body["tap_slack_id"] = tapSlackID
	}
	var resp IntakeResult
	err := c.do(ctx, http.MethodPost, "sessions", body, &resp)
	return resp, err
}

// ListSessions returns all sessions, newest first.
func (c *Client) ListSessions(ctx context.Context) ([]Session, error) {
	var resp []Session
	err := c.do(ctx, http.MethodGet, "sessions", nil, &resp)
	return resp, err
}

// GetSession fetches a session by id.
func (c *Client) GetSession(ctx context.Context, id string) (Session, error) {
	var resp Session
	err := c.do(ctx, http.MethodGet, c.sessionPath(id, ""), nil, &resp)
	return resp, err
}

// DeleteSession removes a session.
func (c *Client) DeleteSession(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, c.sessionPath(id, ""), nil, nil)
}

// CloseSession moves a session to closed.
func (c *Client) CloseSession(ctx context.Context, id string) (Session, error) {
	var resp Session
	err := c.do(ctx, http.MethodPost, c.sessionPath(id, "close"), nil, &resp)
	return resp, err
}

// CreateInvite invites a stakeholder.
func (c *Client) CreateInvite(ctx context.Context, sessionID, name, roleType, slackUserID string) (InviteResult, error) {
	body := map[string]any{
		"name":      name,
		"role_type": roleType,
	}
	if slackUserID != "" {
		body["slack_user_id"] = slackUserID
	}
	var resp InviteResult
	err := c.do(ctx, http.MethodPost, c.sessionPath(sessionID, "invites"), body, &resp)
	return resp, err
}

// Synthesize runs cross-stakeholder synthesis.
func (c *Client) Synthesize(ctx context.Context, sessionID string) (SynthesisResult, error) {
	var resp SynthesisResult
	err := c.do(ctx, http.MethodPost, c.sessionPath(sessionID, "synthesize"), nil, &resp)
	return resp, err
}

// Events returns a session's audit log, optionally filtered by type.
func (c *Client) Events(ctx context.Context, sessionID, eventType string, limit int) ([]Event, error) {
	q := url.Values{}
	if eventType != "" {
		q.Set("type", eventType)
	}
	if limit > 0 {
		q.Set("limit", fmt.Sprint(limit))
	}
	endpoint := c.sessionPath(sessionID, "events")
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp []Event
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// OpenInvite resolves an invite token into its respondent form.
func (c *Client) OpenInvite(ctx context.Context, token string) (RespondForm, error) {
	var resp RespondForm
	err := c.do(ctx, http.MethodGet, "respond/"+url.PathEscape(token), nil, &resp)
	return resp, err
}

// SubmitResponse records the respondent's answers.
func (c *Client) SubmitResponse(ctx context.Context, token string, answers map[string]string) (Submission, error) {
	var resp Submission
	err := c.do(ctx, http.MethodPost, "respond/"+url.PathEscape(token), map[string]any{"answers": answers}, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	target := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, target, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		return decodeAPIError(resp.StatusCode, b)
	}
	if out != nil && resp.StatusCode != http.StatusNoContent {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func decodeAPIError(status int, body []byte) error {
	apiErr := &APIError{StatusCode: status, Body: string(body)}
	var env struct {
		Error struct {
			Code    string         `json:"code"`
			Message string         `json:"message"`
			Details map[string]any `json:"details"`
		} `json:"error"`
	}
	if json.Unmarshal(body, &env) == nil {
		apiErr.Code = env.Error.Code
		apiErr.Message = env.Error.Message
		apiErr.Details = env.Error.Details
	}
	return apiErr
}

func (c *Client) sessionPath(id, sub string) string {
	p := "sessions/" + url.PathEscape(id)
	if sub != "" {
		p += "/" + sub
	}
	return p
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/") + "/" + strings.Trim(c.BasePath, "/")
}
