package engine

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"teamline/internal/domain"
	"teamline/internal/events"
	"teamline/internal/experience"
	"teamline/internal/repo"
)

// DispositionKind says where unfinished tasks go when a sprint closes.
type DispositionKind string

const (
	DispositionBacklog   DispositionKind = "backlog"
	DispositionNewSprint DispositionKind = "new_sprint"
)

// Disposition is the caller's choice for unfinished work. Build it with
// ToBacklog or ToNewSprint.
type Disposition struct {
	Kind DispositionKind
	// Name of the successor sprint, for DispositionNewSprint.
	Name string
}

// ToBacklog sends unfinished tasks to the backlog.
func ToBacklog() Disposition {
	return Disposition{Kind: DispositionBacklog}
}

// ToNewSprint opens a successor sprint named name and moves unfinished tasks
// into it. The name must not be blank.
func ToNewSprint(name string) (Disposition, error) {
	d := Disposition{Kind: DispositionNewSprint, Name: strings.TrimSpace(name)}
	return d, d.Validate()
}

// ParseDisposition builds a disposition from its wire form. An empty kind
// means backlog; a successor name is only accepted with new_sprint.
func ParseDisposition(kind, name string) (Disposition, error) {
	switch DispositionKind(kind) {
	case DispositionBacklog, "":
		if strings.TrimSpace(name) != "" {
			return Disposition{}, invalid("next_sprint_name", "a successor name needs disposition new_sprint")
		}
		return ToBacklog(), nil
	case DispositionNewSprint:
		return ToNewSprint(name)
	}
	return Disposition{}, invalid("disposition", "unknown disposition %q (want backlog or new_sprint)", kind)
}

func (d Disposition) Validate() error {
	switch d.Kind {
	case DispositionBacklog:
		return nil
	case DispositionNewSprint:
		if strings.TrimSpace(d.Name) == "" {
			return invalid("next_sprint_name", "a name is required for the new sprint")
		}
		return nil
	}
	return invalid("disposition", "unknown disposition %q", d.Kind)
}

// CloseResult describes the effects of a sprint close.
type CloseResult struct {
	Sprint       domain.Sprint            `json:"sprint"`
	Disposition  DispositionKind          `json:"disposition"`
	NextSprint   *domain.Sprint           `json:"next_sprint,omitempty"`
	Awards       []domain.ExperienceAward `json:"awards"`
	MovedTaskIDs []string                 `json:"moved_task_ids"`
	// CompletedTaskIDs are the done tasks that stay with the closed sprint.
	CompletedTaskIDs []string `json:"completed_task_ids"`
}

// CreateSprint opens a new active sprint. A project has at most one active
// sprint; creating a second one fails with ErrActiveSprintExists.
func (e Engine) CreateSprint(ctx context.Context, projectID, name, actorID string) (domain.Sprint, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.Sprint{}, invalid("name", "sprint name is required")
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Sprint{}, persist("begin", err)
	}
	defer tx.Rollback()

	if _, err := e.Repo.GetProjectTx(ctx, tx, projectID); err != nil {
		return domain.Sprint{}, lookup("project", projectID, err)
	}
	s, err := e.openSprint(ctx, tx, projectID, name, actorID)
	if err != nil {
		return domain.Sprint{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Sprint{}, persist("commit", err)
	}
	return s, nil
}

func (e Engine) openSprint(ctx context.Context, tx *sql.Tx, projectID, name, actorID string) (domain.Sprint, error) {
	active, err := e.Repo.ActiveSprintTx(ctx, tx, projectID)
	if err != nil {
		return domain.Sprint{}, persist("load active sprint", err)
	}
	if active != nil {
		return domain.Sprint{}, ErrActiveSprintExists
	}
	s := domain.Sprint{
		ID:        uuid.NewString(),
		ProjectID: projectID,
		Name:      name,
		Status:    domain.SprintActive,
		CreatedAt: e.stamp(),
	}
	if err := e.Repo.InsertSprintTx(ctx, tx, s); err != nil {
		if isUniqueViolation(err) {
			return domain.Sprint{}, ErrActiveSprintExists
		}
		return domain.Sprint{}, persist("insert sprint", err)
	}
	if _, err := e.writer().Append(ctx, tx, events.SprintCreated, projectID, "sprint", s.ID, actorID, events.EventPayload{"name": s.Name}); err != nil {
		return domain.Sprint{}, persist("append event", err)
	}
	return s, nil
}

// CloseSprint completes an active sprint in one transaction:
//
//  1. the sprint moves from active to completed (compare-and-swap, so a
//     repeated or concurrent close gets ErrSprintNotActive);
//  2. each done task with an assignee awards experience once;
//  3. unfinished tasks move to the backlog or to a new active sprint.
//
// Any failure rolls back every step.
func (e Engine) CloseSprint(ctx context.Context, projectID, sprintID string, d Disposition, actorID string) (CloseResult, error) {
	if err := d.Validate(); err != nil {
		return CloseResult{}, err
	}
	started := e.now()
	cfg, err := e.configFor(ctx, nil, projectID)
	if err != nil {
		return CloseResult{}, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return CloseResult{}, persist("begin", err)
	}
	defer tx.Rollback()

	sprint, err := e.Repo.GetSprintTx(ctx, tx, sprintID)
	if err != nil {
		return CloseResult{}, lookup("sprint", sprintID, err)
	}
	if sprint.ProjectID != projectID {
		return CloseResult{}, notFound("sprint", sprintID)
	}
	now := e.stamp()
	swapped, err := e.Repo.CompleteSprintTx(ctx, tx, projectID, sprintID, now)
	if err != nil {
		return CloseResult{}, persist("complete sprint", err)
	}
	if !swapped {
		return CloseResult{}, ErrSprintNotActive
	}
	sprint.Status = domain.SprintCompleted
	sprint.CompletedAt = &now
	res := CloseResult{Sprint: sprint, Disposition: d.Kind, Awards: []domain.ExperienceAward{}, MovedTaskIDs: []string{}, CompletedTaskIDs: []string{}}

	done, err := e.Repo.ListTasksTx(ctx, tx, repo.TaskFilters{SprintID: sprintID, Status: domain.TaskDone})
	if err != nil {
		return CloseResult{}, persist("load completed tasks", err)
	}
	ledger := e.ledger()
	w := e.writer()
	for _, t := range done {
		res.CompletedTaskIDs = append(res.CompletedTaskIDs, t.ID)
		if t.AssigneeID == nil || *t.AssigneeID == "" {
			continue
		}
		award := domain.ExperienceAward{
			TaskID:         t.ID,
			SprintID:       sprintID,
			UserID:         *t.AssigneeID,
			Specialization: experience.Specialization(t.Specialization, cfg.Experience.DefaultSpecialization),
			Points:         experience.PointsPerTask,
			AwardedAt:      now,
		}
		fresh, err := ledger.AwardTask(ctx, tx, award)
		if err != nil {
			return CloseResult{}, persist("award experience", err)
		}
		if !fresh {
			continue
		}
		res.Awards = append(res.Awards, award)
		if _, err := w.Append(ctx, tx, events.ExperienceAward, projectID, "task", t.ID, actorID, events.EventPayload{
			"user_id":        award.UserID,
			"specialization": award.Specialization,
			"points":         award.Points,
			"sprint_id":      sprintID,
		}); err != nil {
			return CloseResult{}, persist("append event", err)
		}
	}

	open, err := e.Repo.ListTasksTx(ctx, tx, repo.TaskFilters{SprintID: sprintID, NotStatus: domain.TaskDone})
	if err != nil {
		return CloseResult{}, persist("load unfinished tasks", err)
	}
	var target *string
	if d.Kind == DispositionNewSprint {
		next, err := e.openSprint(ctx, tx, projectID, d.Name, actorID)
		if err != nil {
			return CloseResult{}, err
		}
		res.NextSprint = &next
		target = &next.ID
	}
	for _, t := range open {
		res.MovedTaskIDs = append(res.MovedTaskIDs, t.ID)
	}
	moved, err := e.Repo.MoveTasksTx(ctx, tx, res.MovedTaskIDs, target, now)
	if err != nil {
		return CloseResult{}, persist("move unfinished tasks", err)
	}
	if int(moved) != len(res.MovedTaskIDs) {
		return CloseResult{}, persist("move unfinished tasks", errMoveCount(moved, len(res.MovedTaskIDs)))
	}
	if len(res.MovedTaskIDs) > 0 {
		payload := events.EventPayload{"task_ids": res.MovedTaskIDs, "from_sprint_id": sprintID}
		if target != nil {
			payload["to_sprint_id"] = *target
		}
		if _, err := w.Append(ctx, tx, events.TasksMoved, projectID, "sprint", sprintID, actorID, payload); err != nil {
			return CloseResult{}, persist("append event", err)
		}
	}
	closed := events.EventPayload{
		"disposition": string(d.Kind),
		"awarded":     len(res.Awards),
		"moved":       len(res.MovedTaskIDs),
		"completed":   len(res.CompletedTaskIDs),
	}
	if res.NextSprint != nil {
		closed["next_sprint_id"] = res.NextSprint.ID
	}
	if _, err := w.Append(ctx, tx, events.SprintClosed, projectID, "sprint", sprintID, actorID, closed); err != nil {
		return CloseResult{}, persist("append event", err)
	}
	if err := tx.Commit(); err != nil {
		return CloseResult{}, persist("commit", err)
	}

	e.observeClose(res, started)
	return res, nil
}

func (e Engine) observeClose(res CloseResult, started time.Time) {
	if m := e.Metrics; m != nil {
		m.SprintsClosedTotal.WithLabelValues(string(res.Disposition)).Inc()
		for _, a := range res.Awards {
			m.AwardedPointsTotal.WithLabelValues(a.Specialization).Add(float64(a.Points))
		}
		m.TasksMovedTotal.WithLabelValues(string(res.Disposition)).Add(float64(len(res.MovedTaskIDs)))
		m.SprintCloseDuration.Observe(e.now().Sub(started).Seconds())
	}
	fields := []zap.Field{
		zap.String("project_id", res.Sprint.ProjectID),
		zap.String("sprint_id", res.Sprint.ID),
		zap.String("disposition", string(res.Disposition)),
		zap.Int("awards", len(res.Awards)),
		zap.Int("moved", len(res.MovedTaskIDs)),
	}
	if res.NextSprint != nil {
		fields = append(fields, zap.String("next_sprint_id", res.NextSprint.ID))
	}
	e.log().Info("sprint closed", fields...)
}

// GetSprint returns a sprint of the project.
func (e Engine) GetSprint(ctx context.Context, projectID, sprintID string) (domain.Sprint, error) {
	s, err := e.Repo.GetSprint(ctx, sprintID)
	if err != nil {
		return s, lookup("sprint", sprintID, err)
	}
	if s.ProjectID != projectID {
		return domain.Sprint{}, notFound("sprint", sprintID)
	}
	return s, nil
}

// ListSprints returns sprints newest first, optionally filtered by status.
func (e Engine) ListSprints(ctx context.Context, projectID, status string) ([]domain.Sprint, error) {
	if status != "" && status != domain.SprintActive && status != domain.SprintCompleted {
		return nil, invalid("status", "unknown sprint status %q", status)
	}
	if _, err := e.GetProject(ctx, projectID); err != nil {
		return nil, err
	}
	res, err := e.Repo.ListSprints(ctx, projectID, status)
	return res, persist("list sprints", err)
}

// ActiveSprint returns the project's active sprint or nil.
func (e Engine) ActiveSprint(ctx context.Context, projectID string) (*domain.Sprint, error) {
	s, err := e.Repo.ActiveSprint(ctx, projectID)
	return s, persist("load active sprint", err)
}

// SprintHistory is a sprint with the tasks still referencing it and the
// awards its close produced.
type SprintHistory struct {
	Sprint domain.Sprint            `json:"sprint"`
	Tasks  []domain.Task            `json:"tasks"`
	Awards []domain.ExperienceAward `json:"awards"`
}

func (e Engine) SprintHistory(ctx context.Context, projectID, sprintID string) (SprintHistory, error) {
	s, err := e.GetSprint(ctx, projectID, sprintID)
	if err != nil {
		return SprintHistory{}, err
	}
	tasks, err := e.Repo.ListTasks(ctx, repo.TaskFilters{SprintID: sprintID})
	if err != nil {
		return SprintHistory{}, persist("list sprint tasks", err)
	}
	awards, err := e.Repo.ListAwards(ctx, sprintID, "")
	if err != nil {
		return SprintHistory{}, persist("list awards", err)
	}
	if tasks == nil {
		tasks = []domain.Task{}
	}
	if awards == nil {
		awards = []domain.ExperienceAward{}
	}
	return SprintHistory{Sprint: s, Tasks: tasks, Awards: awards}, nil
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
