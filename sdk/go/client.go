package teamlinesdk

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

	"github.com/sony/gobreaker"
)

// Client is a minimal Teamline HTTP API client. Calls go through a circuit
// breaker that opens after repeated transport or 5xx failures.
type Client struct {
	BaseURL     string
	ProjectID   string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
	Breaker     *gobreaker.CircuitBreaker
}

// New creates a client with sane defaults.
func New(baseURL, projectID string) *Client {
	return &Client{
		BaseURL:   baseURL,
		ProjectID: projectID,
		Timeout:   10 * time.Second,
		Breaker:   NewBreaker("teamline-api", 3, 5*time.Second),
	}
}

// NewBreaker trips after more than maxFailures consecutive failures and
// probes again after cooldown. API errors below 500 do not count.
func NewBreaker(name string, maxFailures uint32, cooldown time.Duration) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > maxFailures
		},
		IsSuccessful: func(err error) bool {
			var apiErr *APIError
			if errors.As(err, &apiErr) {
				return apiErr.StatusCode < http.StatusInternalServerError
			}
			return err == nil
		},
	})
}

// Sprint is the API sprint model.
type Sprint struct {
	ID          string  `json:"id"`
	ProjectID   string  `json:"project_id"`
	Name        string  `json:"name"`
	Status      string  `json:"status"`
	CreatedAt   string  `json:"created_at"`
	CompletedAt *string `json:"completed_at,omitempty"`
}

// Task represents the API task model (partial).
type Task struct {
	ID             string  `json:"id"`
	ProjectID      string  `json:"project_id"`
	SprintID       *string `json:"sprint_id,omitempty"`
	Title          string  `json:"title"`
	Specialization string  `json:"specialization,omitempty"`
	AssigneeID     *string `json:"assignee_id,omitempty"`
	Status         string  `json:"status"`
}

// Award is one experience award produced by a sprint close.
type Award struct {
	TaskID         string `json:"task_id"`
	SprintID       string `json:"sprint_id"`
	UserID         string `json:"user_id"`
	Specialization string `json:"specialization"`
	Points         int    `json:"points"`
}

// CloseResult describes what a sprint close did.
type CloseResult struct {
	Sprint           Sprint   `json:"sprint"`
	Disposition      string   `json:"disposition"`
	NextSprint       *Sprint  `json:"next_sprint,omitempty"`
	Awards           []Award  `json:"awards"`
	MovedTaskIDs     []string `json:"moved_task_ids"`
	CompletedTaskIDs []string `json:"completed_task_ids"`
}

// Candidate is one row of an assignee ranking.
type Candidate struct {
	UserID      string `json:"user_id"`
	Level       int    `json:"level"`
	Exp         int    `json:"exp"`
	OpenTasks   int    `json:"open_tasks"`
	Recommended bool   `json:"recommended"`
}

// Board is the planning view of a project.
type Board struct {
	ActiveSprint *Sprint `json:"active_sprint,omitempty"`
	Sprint       []Task  `json:"sprint"`
	Backlog      []Task  `json:"backlog"`
	Completed    []Task  `json:"completed"`
}

// Event represents a log entry.
type Event struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts"`
	Type       string         `json:"type"`
	ProjectID  string         `json:"project_id"`
	EntityID   string         `json:"entity_id"`
	EntityKind string         `json:"entity_kind"`
	ActorID    string         `json:"actor_id"`
	Payload    map[string]any `json:"payload"`
}

// PaginatedEvents wraps list responses with cursors.
type PaginatedEvents struct {
	Items      []Event `json:"items"`
	NextCursor string  `json:"next_cursor"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Code       string
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d code=%s body=%s", e.StatusCode, e.Code, e.Body)
}

// Disposition values for CloseSprint.
const (
	ToBacklog   = "backlog"
	ToNewSprint = "new_sprint"
)

// CreateSprint opens a sprint in the client's project.
func (c *Client) CreateSprint(ctx context.Context, name string) (Sprint, error) {
	var resp Sprint
	err := c.do(ctx, http.MethodPost, c.projectPath("sprints"), map[string]any{"name": name}, &resp)
	return resp, err
}

// ListSprints lists sprints, optionally filtered by status.
func (c *Client) ListSprints(ctx context.Context, status string) ([]Sprint, error) {
	endpoint := c.projectPath("sprints")
	if status != "" {
		endpoint += "?status=" + url.QueryEscape(status)
	}
	var resp []Sprint
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// CloseSprint closes a sprint. nextSprint is required for ToNewSprint.
func (c *Client) CloseSprint(ctx context.Context, sprintID, disposition, nextSprint string) (CloseResult, error) {
	body := map[string]any{"disposition": disposition}
	if nextSprint != "" {
		body["next_sprint_name"] = nextSprint
	}
	var resp CloseResult
	endpoint := c.projectPath(fmt.Sprintf("sprints/%s/close", url.PathEscape(sprintID)))
	err := c.do(ctx, http.MethodPost, endpoint, body, &resp)
	return resp, err
}

// CreateTask creates a task. An empty sprintID puts it in the backlog.
func (c *Client) CreateTask(ctx context.Context, title, specialization, assigneeID, sprintID string) (Task, error) {
	body := map[string]any{"title": title}
	for k, v := range map[string]string{"specialization": specialization, "assignee_id": assigneeID, "sprint_id": sprintID} {
		if v != "" {
			body[k] = v
		}
	}
	var resp Task
	err := c.do(ctx, http.MethodPost, c.projectPath("tasks"), body, &resp)
	return resp, err
}

// SetTaskStatus moves a task between todo, in_progress and done.
func (c *Client) SetTaskStatus(ctx context.Context, taskID, status string) (Task, error) {
	var resp Task
	endpoint := c.projectPath(fmt.Sprintf("tasks/%s", url.PathEscape(taskID)))
	err := c.do(ctx, http.MethodPatch, endpoint, map[string]any{"status": status}, &resp)
	return resp, err
}

// Board returns the sprint, backlog and completed views.
func (c *Client) Board(ctx context.Context) (Board, error) {
	var resp Board
	err := c.do(ctx, http.MethodGet, c.projectPath("board"), nil, &resp)
	return resp, err
}

// RankAssignees ranks project members for a specialization.
func (c *Client) RankAssignees(ctx context.Context, specialization string) ([]Candidate, error) {
	endpoint := c.projectPath("recommendations")
	if specialization != "" {
		endpoint += "?specialization=" + url.QueryEscape(specialization)
	}
	var resp []Candidate
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// EventsPage returns a paginated event listing.
func (c *Client) EventsPage(ctx context.Context, limit int, cursor string) (PaginatedEvents, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", fmt.Sprint(limit))
	}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	endpoint := c.projectPath("events")
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp PaginatedEvents
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.Breaker == nil {
		return c.send(ctx, method, endpoint, body, out)
	}
	_, err := c.Breaker.Execute(func() (any, error) {
		return nil, c.send(ctx, method, endpoint, body, out)
	})
	return err
}

func (c *Client) send(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
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
		b, _ := io.ReadAll(resp.Body)
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(b)}
		var env struct {
			Error struct {
				Code string `json:"code"`
			} `json:"error"`
		}
		if json.Unmarshal(b, &env) == nil {
			apiErr.Code = env.Error.Code
		}
		return apiErr
	}
	if out != nil && resp.StatusCode != http.StatusNoContent {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) projectPath(p string) string {
	project := url.PathEscape(c.ProjectID)
	return fmt.Sprintf("v0/projects/%s/%s", project, strings.TrimLeft(p, "/"))
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
