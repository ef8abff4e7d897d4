package server

import (
	"encoding/json"

	"teamline/internal/domain"
)

// Request payloads

type CreateProjectRequest struct {
	Name        string `json:"name" minLength:"1"`
	Description string `json:"description,omitempty"`
}

type UpdateProjectRequest struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
}

type AddMemberRequest struct {
	UserID string `json:"user_id" minLength:"1"`
	Role   string `json:"role,omitempty" enum:"manager,member"`
}

type CreateSprintRequest struct {
	Name string `json:"name" minLength:"1"`
}

type CloseSprintRequest struct {
	Disposition    string `json:"disposition" required:"true" enum:"backlog,new_sprint" doc:"Where unfinished tasks go"`
	NextSprintName string `json:"next_sprint_name,omitempty" doc:"Name of the successor sprint for new_sprint"`
}

type CreateTaskRequest struct {
	Title          string `json:"title" minLength:"1"`
	Description    string `json:"description,omitempty"`
	Specialization string `json:"specialization,omitempty"`
	AssigneeID     string `json:"assignee_id,omitempty"`
	SprintID       string `json:"sprint_id,omitempty"`
	StartDate      string `json:"start_date,omitempty" format:"date"`
	EndDate        string `json:"end_date,omitempty" format:"date"`
}

// UpdateTaskRequest patches a task. An empty assignee_id unassigns it and an
// empty sprint_id sends it to the backlog.
type UpdateTaskRequest struct {
	Title          *string `json:"title,omitempty"`
	Description    *string `json:"description,omitempty"`
	Specialization *string `json:"specialization,omitempty"`
	Status         *string `json:"status,omitempty" enum:"todo,in_progress,done"`
	AssigneeID     *string `json:"assignee_id,omitempty"`
	SprintID       *string `json:"sprint_id,omitempty"`
	StartDate      *string `json:"start_date,omitempty"`
	EndDate        *string `json:"end_date,omitempty"`
}

// Response payloads

type MembershipResponse struct {
	ProjectID   string   `json:"project_id"`
	Role        string   `json:"role"`
	Permissions []string `json:"permissions"`
}

type WhoAmIResponse struct {
	ActorID     string               `json:"actor_id"`
	Source      string               `json:"source"`
	Memberships []MembershipResponse `json:"memberships"`
}

type EventResponse struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts" format:"date-time"`
	Type       string         `json:"type"`
	ProjectID  string         `json:"project_id,omitempty"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id,omitempty"`
	ActorID    string         `json:"actor_id"`
	Payload    map[string]any `json:"payload"`
}

type paginatedEvents struct {
	Items      []EventResponse `json:"items"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

func eventResponse(e domain.Event) EventResponse {
	return EventResponse{
		ID:         e.ID,
		TS:         e.TS,
		Type:       e.Type,
		ProjectID:  e.ProjectID,
		EntityKind: e.EntityKind,
		EntityID:   e.EntityID,
		ActorID:    e.ActorID,
		Payload:    decodeJSONMap(e.Payload),
	}
}

func decodeJSONMap(raw string) map[string]any {
	if raw == "" {
		return map[string]any{}
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(raw), &obj); err != nil || obj == nil {
		return map[string]any{}
	}
	return obj
}

func nonNilSlice[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}
