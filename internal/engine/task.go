package engine

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"teamline/internal/board"
	"teamline/internal/config"
	"teamline/internal/domain"
	"teamline/internal/events"
	"teamline/internal/repo"
)

const dateLayout = "2006-01-02"

// TaskCreateOptions are parameters for creating a task. Empty SprintID puts
// the task in the backlog.
type TaskCreateOptions struct {
	ProjectID      string
	Title          string
	Description    string
	Specialization string
	AssigneeID     string
	SprintID       string
	StartDate      string
	EndDate        string
	ActorID        string
}

// CreateTask creates a task in status todo.
func (e Engine) CreateTask(ctx context.Context, opts TaskCreateOptions) (domain.Task, error) {
	title := strings.TrimSpace(opts.Title)
	if title == "" {
		return domain.Task{}, invalid("title", "title is required")
	}
	if err := checkDates(optionalString(opts.StartDate), optionalString(opts.EndDate)); err != nil {
		return domain.Task{}, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Task{}, persist("begin", err)
	}
	defer tx.Rollback()

	if _, err := e.Repo.GetProjectTx(ctx, tx, opts.ProjectID); err != nil {
		return domain.Task{}, lookup("project", opts.ProjectID, err)
	}
	cfg, err := e.configFor(ctx, tx, opts.ProjectID)
	if err != nil {
		return domain.Task{}, err
	}
	spec := strings.TrimSpace(opts.Specialization)
	if err := checkSpecialization(cfg, spec); err != nil {
		return domain.Task{}, err
	}
	if opts.AssigneeID != "" {
		if err := e.ensureMember(ctx, tx, opts.ProjectID, opts.AssigneeID); err != nil {
			return domain.Task{}, err
		}
	}
	if opts.SprintID != "" {
		if err := e.ensureActiveSprint(ctx, tx, opts.ProjectID, opts.SprintID); err != nil {
			return domain.Task{}, err
		}
	}
	now := e.stamp()
	t := domain.Task{
		ID:             uuid.NewString(),
		ProjectID:      opts.ProjectID,
		SprintID:       optionalString(opts.SprintID),
		Title:          title,
		Description:    opts.Description,
		Specialization: spec,
		AssigneeID:     optionalString(opts.AssigneeID),
		Status:         domain.TaskTodo,
		StartDate:      optionalString(opts.StartDate),
		EndDate:        optionalString(opts.EndDate),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := e.Repo.InsertTaskTx(ctx, tx, t); err != nil {
		return domain.Task{}, persist("insert task", err)
	}
	if _, err := e.writer().Append(ctx, tx, events.TaskCreated, t.ProjectID, "task", t.ID, opts.ActorID, events.EventPayload{
		"title":     t.Title,
		"status":    t.Status,
		"sprint_id": opts.SprintID,
	}); err != nil {
		return domain.Task{}, persist("append event", err)
	}
	if err := tx.Commit(); err != nil {
		return domain.Task{}, persist("commit", err)
	}
	return t, nil
}

// TaskUpdateOptions encapsulates allowed updates. Nil fields are left alone;
// an empty Assign or Sprint clears the assignee or sends the task to the
// backlog.
type TaskUpdateOptions struct {
	ProjectID      string
	ID             string
	Title          *string
	Description    *string
	Specialization *string
	Status         *string
	Assign         *string
	Sprint         *string
	StartDate      *string
	EndDate        *string
	ActorID        string
}

func (e Engine) UpdateTask(ctx context.Context, opts TaskUpdateOptions) (domain.Task, error) {
	if opts.Title != nil && strings.TrimSpace(*opts.Title) == "" {
		return domain.Task{}, invalid("title", "title cannot be empty")
	}
	if opts.Status != nil && !domain.ValidTaskStatus(*opts.Status) {
		return domain.Task{}, invalid("status", "unknown status %q", *opts.Status)
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Task{}, persist("begin", err)
	}
	defer tx.Rollback()

	t, err := e.taskInProject(ctx, tx, opts.ProjectID, opts.ID)
	if err != nil {
		return domain.Task{}, err
	}
	changes := events.EventPayload{}
	if opts.Title != nil {
		t.Title = strings.TrimSpace(*opts.Title)
		changes["title"] = t.Title
	}
	if opts.Description != nil {
		t.Description = *opts.Description
		changes["description"] = t.Description
	}
	if opts.Specialization != nil {
		cfg, err := e.configFor(ctx, tx, t.ProjectID)
		if err != nil {
			return domain.Task{}, err
		}
		spec := strings.TrimSpace(*opts.Specialization)
		if err := checkSpecialization(cfg, spec); err != nil {
			return domain.Task{}, err
		}
		t.Specialization = spec
		changes["specialization"] = spec
	}
	if opts.Assign != nil {
		if *opts.Assign == "" {
			t.AssigneeID = nil
		} else {
			if err := e.ensureMember(ctx, tx, t.ProjectID, *opts.Assign); err != nil {
				return domain.Task{}, err
			}
			t.AssigneeID = optionalString(*opts.Assign)
		}
		changes["assignee_id"] = *opts.Assign
	}
	if opts.Sprint != nil {
		if *opts.Sprint == "" {
			t.SprintID = nil
		} else if !t.InSprint(*opts.Sprint) {
			if err := e.ensureActiveSprint(ctx, tx, t.ProjectID, *opts.Sprint); err != nil {
				return domain.Task{}, err
			}
			t.SprintID = optionalString(*opts.Sprint)
		}
		changes["sprint_id"] = *opts.Sprint
	}
	if opts.StartDate != nil {
		t.StartDate = optionalString(*opts.StartDate)
	}
	if opts.EndDate != nil {
		t.EndDate = optionalString(*opts.EndDate)
	}
	if opts.StartDate != nil || opts.EndDate != nil {
		if err := checkDates(t.StartDate, t.EndDate); err != nil {
			return domain.Task{}, err
		}
	}
	now := e.stamp()
	if opts.Status != nil && *opts.Status != t.Status {
		changes["status"] = *opts.Status
		changes["previous_status"] = t.Status
		t.Status = *opts.Status
		if t.Status == domain.TaskDone {
			t.CompletedAt = &now
		} else {
			t.CompletedAt = nil
		}
	}
	t.UpdatedAt = now
	if err := e.Repo.UpdateTaskTx(ctx, tx, t); err != nil {
		return domain.Task{}, lookup("task", t.ID, err)
	}
	if _, err := e.writer().Append(ctx, tx, events.TaskUpdated, t.ProjectID, "task", t.ID, opts.ActorID, changes); err != nil {
		return domain.Task{}, persist("append event", err)
	}
	if err := tx.Commit(); err != nil {
		return domain.Task{}, persist("commit", err)
	}
	return t, nil
}

// DeleteTask removes a task permanently.
func (e Engine) DeleteTask(ctx context.Context, projectID, taskID, actorID string) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return persist("begin", err)
	}
	defer tx.Rollback()

	t, err := e.taskInProject(ctx, tx, projectID, taskID)
	if err != nil {
		return err
	}
	if err := e.Repo.DeleteTaskTx(ctx, tx, t.ID); err != nil {
		return lookup("task", t.ID, err)
	}
	if _, err := e.writer().Append(ctx, tx, events.TaskDeleted, projectID, "task", t.ID, actorID, events.EventPayload{"title": t.Title}); err != nil {
		return persist("append event", err)
	}
	return persist("commit", tx.Commit())
}

// GetTask returns a task of the project.
func (e Engine) GetTask(ctx context.Context, projectID, taskID string) (domain.Task, error) {
	return e.taskInProject(ctx, nil, projectID, taskID)
}

// ListTasks lists a project's tasks in creation order.
func (e Engine) ListTasks(ctx context.Context, f repo.TaskFilters) ([]domain.Task, error) {
	if f.ProjectID == "" {
		return nil, invalid("project_id", "project is required")
	}
	if f.Status != "" && !domain.ValidTaskStatus(f.Status) {
		return nil, invalid("status", "unknown status %q", f.Status)
	}
	res, err := e.Repo.ListTasks(ctx, f)
	return res, persist("list tasks", err)
}

// ProjectBoard is the planning view of a project.
type ProjectBoard struct {
	ActiveSprint *domain.Sprint `json:"active_sprint,omitempty"`
	board.Board
	// Columns splits the active sprint's tasks by status.
	Columns board.Columns `json:"columns"`
}

// Board classifies the project's tasks against its active sprint.
func (e Engine) Board(ctx context.Context, projectID string) (ProjectBoard, error) {
	if _, err := e.GetProject(ctx, projectID); err != nil {
		return ProjectBoard{}, err
	}
	active, err := e.Repo.ActiveSprint(ctx, projectID)
	if err != nil {
		return ProjectBoard{}, persist("load active sprint", err)
	}
	tasks, err := e.Repo.ListTasks(ctx, repo.TaskFilters{ProjectID: projectID})
	if err != nil {
		return ProjectBoard{}, persist("list tasks", err)
	}
	activeID := ""
	if active != nil {
		activeID = active.ID
	}
	b := board.Classify(tasks, activeID)
	return ProjectBoard{ActiveSprint: active, Board: b, Columns: board.Kanban(b.Sprint)}, nil
}

func (e Engine) taskInProject(ctx context.Context, tx *sql.Tx, projectID, taskID string) (domain.Task, error) {
	t, err := e.Repo.GetTaskTx(ctx, tx, taskID)
	if err != nil {
		return t, lookup("task", taskID, err)
	}
	if projectID != "" && t.ProjectID != projectID {
		return domain.Task{}, notFound("task", taskID)
	}
	return t, nil
}

func (e Engine) ensureMember(ctx context.Context, tx *sql.Tx, projectID, userID string) error {
	_, err := e.Repo.MemberRoleTx(ctx, tx, projectID, userID)
	if errors.Is(err, repo.ErrNotFound) {
		return invalid("assignee_id", "%s is not a member of the project", userID)
	}
	return persist("load member", err)
}

// ensureActiveSprint checks that sprintID is the project's active sprint.
func (e Engine) ensureActiveSprint(ctx context.Context, tx *sql.Tx, projectID, sprintID string) error {
	s, err := e.Repo.GetSprintTx(ctx, tx, sprintID)
	if err != nil {
		return lookup("sprint", sprintID, err)
	}
	if s.ProjectID != projectID {
		return invalid("sprint_id", "sprint %s belongs to another project", sprintID)
	}
	if s.Status != domain.SprintActive {
		return invalid("sprint_id", "sprint %s is completed", sprintID)
	}
	return nil
}

func checkSpecialization(cfg *config.Config, spec string) error {
	if !cfg.AllowsSpecialization(spec) {
		return invalid("specialization", "%q is not one of %s", spec, strings.Join(cfg.Specializations, ", "))
	}
	return nil
}

func checkDates(start, end *string) error {
	var s, e time.Time
	var err error
	if start != nil {
		if s, err = time.Parse(dateLayout, *start); err != nil {
			return invalid("start_date", "want YYYY-MM-DD")
		}
	}
	if end != nil {
		if e, err = time.Parse(dateLayout, *end); err != nil {
			return invalid("end_date", "want YYYY-MM-DD")
		}
	}
	if start != nil && end != nil && e.Before(s) {
		return invalid("end_date", "end date is before start date")
	}
	return nil
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
