package contentlinesdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Client is a minimal contentline HTTP API client.
type Client struct {
	BaseURL     string
	BasePath    string
	BearerToken string
	// ActorID is sent as X-Actor-Id when no bearer token is set. Servers only
	// honour it with legacy header auth enabled.
	ActorID    string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// New creates a client with sane defaults.
func New(baseURL, token string) *Client {
	return &Client{
		BaseURL:     baseURL,
		BasePath:    "/v1",
		BearerToken: token,
		Timeout:     10 * time.Second,
	}
}

// Deliverable is the API deliverable model (partial).
type Deliverable struct {
	ID            string  `json:"id"`
	Title         string  `json:"title"`
	Status        string  `json:"status"`
	RequesterID   string  `json:"requester_id"`
	AssigneeID    *string `json:"assignee_id,omitempty"`
	Platform      string  `json:"platform"`
	Format        string  `json:"format"`
	DueAt         string  `json:"due_at"`
	Priority      string  `json:"priority"`
	Blocked       bool    `json:"blocked"`
	BlockedReason *string `json:"blocked_reason,omitempty"`
	RevisionRound int     `json:"revision_round"`
	RevisionLimit int     `json:"revision_limit"`
	Version       int     `json:"version"`
	UpdatedAt     string  `json:"updated_at"`
}

// NewDeliverable is the create payload; empty fields are omitted.
type NewDeliverable struct {
	Title      string `json:"title,omitempty"`
	Platform   string `json:"platform,omitempty"`
	Format     string `json:"format,omitempty"`
	Goal       string `json:"goal,omitempty"`
	DueAt      string `json:"due_at,omitempty"`
	Priority   string `json:"priority,omitempty"`
	Complexity string `json:"complexity,omitempty"`
	AssigneeID string `json:"assignee_id,omitempty"`
	Notes      string `json:"notes,omitempty"`
}

type Approval struct {
	ID            string  `json:"id"`
	DeliverableID string  `json:"deliverable_id"`
	RequestedBy   string  `json:"requested_by"`
	ApproverID    *string `json:"approver_id,omitempty"`
	Status        string  `json:"status"`
	DecisionNotes *string `json:"decision_notes,omitempty"`
}

type Notification struct {
	ID         string  `json:"id"`
	Type       string  `json:"type"`
	Title      string  `json:"title"`
	Body       string  `json:"body"`
	EntityType *string `json:"entity_type,omitempty"`
	EntityID   *string `json:"entity_id,omitempty"`
	ReadAt     *string `json:"read_at,omitempty"`
	CreatedAt  string  `json:"created_at"`
}

type Stage struct {
	Name       string `json:"name"`
	OrderIndex int    `json:"order_index"`
	WIPLimit   *int   `json:"wip_limit,omitempty"`
}

type BoardColumn struct {
	Stage Stage         `json:"stage"`
	Count int           `json:"count"`
	AtCap bool          `json:"at_cap"`
	Items []Deliverable `json:"items"`
}

// APIError wraps non-2xx responses, decoding the error envelope when present.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Details    map[string]any
	Body       string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error: status=%d code=%s: %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// IsWIPLimit reports whether err is a rejected move into a full stage.
func IsWIPLimit(err error) bool {
	apiErr, ok := err.(*APIError)
	return ok && apiErr.Code == "wip_limit_reached"
}

func (c *Client) CreateDeliverable(ctx context.Context, in NewDeliverable) (Deliverable, error) {
	var resp Deliverable
	err := c.do(ctx, http.MethodPost, "deliverables", in, &resp)
	return resp, err
}

func (c *Client) GetDeliverable(ctx context.Context, id string) (Deliverable, error) {
	var resp Deliverable
	err := c.do(ctx, http.MethodGet, "deliverables/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

// ListDeliverables filters by stage and assignee; empty values are ignored.
func (c *Client) ListDeliverables(ctx context.Context, status, assigneeID string, limit int) ([]Deliverable, error) {
	q := url.Values{}
	if status != "" {
		q.Set("status", status)
	}
	if assigneeID != "" {
		q.Set("assignee_id", assigneeID)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	endpoint := "deliverables"
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp []Deliverable
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// Move changes a deliverable's stage. A full stage yields an APIError for
// which IsWIPLimit is true.
func (c *Client) Move(ctx context.Context, id, status string) (Deliverable, error) {
	var resp Deliverable
	err := c.do(ctx, http.MethodPost, "deliverables/"+url.PathEscape(id)+"/status", map[string]string{"status": status}, &resp)
	return resp, err
}

func (c *Client) SetBlocked(ctx context.Context, id string, blocked bool, reason string) (Deliverable, error) {
	var resp Deliverable
	body := map[string]any{"blocked": blocked, "reason": reason}
	err := c.do(ctx, http.MethodPost, "deliverables/"+url.PathEscape(id)+"/block", body, &resp)
	return resp, err
}

func (c *Client) RequestApproval(ctx context.Context, deliverableID string) (Approval, error) {
	var resp Approval
	err := c.do(ctx, http.MethodPost, "approvals", map[string]string{"deliverable_id": deliverableID}, &resp)
	return resp, err
}

// Decide records "approved" or "changes_requested" on a pending approval.
func (c *Client) Decide(ctx context.Context, approvalID, status, notes string) (Approval, error) {
	var resp Approval
	body := map[string]string{"status": status, "decision_notes": notes}
	err := c.do(ctx, http.MethodPatch, "approvals/"+url.PathEscape(approvalID), body, &resp)
	return resp, err
}

// ApprovalQueue lists pending approvals assigned to the caller.
func (c *Client) ApprovalQueue(ctx context.Context) ([]Approval, error) {
	var resp []Approval
	err := c.do(ctx, http.MethodGet, "approvals", nil, &resp)
	return resp, err
}

func (c *Client) Notifications(ctx context.Context, unreadOnly bool) ([]Notification, error) {
	endpoint := "notifications"
	if unreadOnly {
		endpoint += "?unread=true"
	}
	var resp []Notification
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) MarkRead(ctx context.Context, id string) (Notification, error) {
	var resp Notification
	err := c.do(ctx, http.MethodPost, "notifications/"+url.PathEscape(id)+"/read", nil, &resp)
	return resp, err
}

func (c *Client) Board(ctx context.Context) ([]BoardColumn, error) {
	var resp []BoardColumn
	err := c.do(ctx, http.MethodGet, "board", nil, &resp)
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
	case c.ActorID != "":
		req.Header.Set("X-Actor-Id", c.ActorID)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(b)}
		var env struct {
			Error struct {
				Code    string         `json:"code"`
				Message string         `json:"message"`
				Details map[string]any `json:"details"`
			} `json:"error"`
		}
		if json.Unmarshal(b, &env) == nil {
			apiErr.Code = env.Error.Code
			apiErr.Message = env.Error.Message
			apiErr.Details = env.Error.Details
		}
		return apiErr
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	base := strings.TrimRight(c.BaseURL, "/")
	if p := strings.Trim(c.BasePath, "/"); p != "" {
		base += "/" + p
	}
	return base
}
