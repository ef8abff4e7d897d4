package engine

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"teamline/internal/config"
	"teamline/internal/domain"
	"teamline/internal/events"
	"teamline/internal/experience"
	"teamline/internal/metrics"
	"teamline/internal/repo"
)

type Engine struct {
	DB      *sql.DB
	Repo    repo.Repo
	Events  events.Writer
	Logger  *zap.Logger
	Metrics *metrics.Metrics
	Now     func() time.Time
}

func New(db *sql.DB, logger *zap.Logger) Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return Engine{
		DB:      db,
		Repo:    repo.Repo{DB: db},
		Events:  events.Writer{Now: time.Now},
		Logger:  logger,
		Metrics: metrics.Get(),
		Now:     time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) stamp() string {
	return e.now().UTC().Format(time.RFC3339)
}

func (e Engine) log() *zap.Logger {
	if e.Logger == nil {
		return zap.NewNop()
	}
	return e.Logger
}

func (e Engine) writer() events.Writer {
	w := e.Events
	if w.Now == nil {
		w.Now = e.now
	}
	return w
}

func (e Engine) ledger() experience.Ledger {
	return experience.Ledger{Repo: e.Repo, LevelSize: experience.LevelSize, Now: e.now}
}

// configFor returns the stored project config, or the defaults when the
// project has none.
func (e Engine) configFor(ctx context.Context, tx *sql.Tx, projectID string) (*config.Config, error) {
	cfg, err := e.Repo.GetProjectConfigTx(ctx, tx, projectID)
	if errors.Is(err, repo.ErrNotFound) {
		return config.Default(projectID), nil
	}
	if err != nil {
		return nil, persist("load project config", err)
	}
	return cfg, nil
}

// CreateProject creates an active project, stores the default config and
// makes the creator its manager.
func (e Engine) CreateProject(ctx context.Context, name, description, actorID string) (domain.Project, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.Project{}, invalid("name", "project name is required")
	}
	if actorID == "" {
		return domain.Project{}, invalid("actor", "actor is required")
	}
	now := e.stamp()
	p := domain.Project{
		ID:          uuid.NewString(),
		Name:        name,
		Description: description,
		Status:      domain.ProjectActive,
		CreatedBy:   actorID,
		CreatedAt:   now,
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Project{}, persist("begin", err)
	}
	defer tx.Rollback()

	if err := e.Repo.InsertProjectTx(ctx, tx, p); err != nil {
		return domain.Project{}, persist("insert project", err)
	}
	if err := e.Repo.UpsertProjectConfigTx(ctx, tx, p.ID, config.Default(p.ID)); err != nil {
		return domain.Project{}, persist("insert project config", err)
	}
	if err := e.Repo.AddMemberTx(ctx, tx, domain.Member{ProjectID: p.ID, UserID: actorID, Role: domain.RoleManager, JoinedAt: now}); err != nil {
		return domain.Project{}, persist("add manager", err)
	}
	if _, err := e.writer().Append(ctx, tx, events.ProjectCreated, p.ID, "project", p.ID, actorID, events.EventPayload{"name": p.Name}); err != nil {
		return domain.Project{}, persist("append event", err)
	}
	if err := tx.Commit(); err != nil {
		return domain.Project{}, persist("commit", err)
	}
	e.log().Info("project created", zap.String("project_id", p.ID), zap.String("actor", actorID))
	return p, nil
}

func (e Engine) GetProject(ctx context.Context, id string) (domain.Project, error) {
	p, err := e.Repo.GetProject(ctx, id)
	if err != nil {
		return p, lookup("project", id, err)
	}
	return p, nil
}

// ListProjects lists all projects, or only those memberID belongs to.
func (e Engine) ListProjects(ctx context.Context, memberID string) ([]domain.Project, error) {
	res, err := e.Repo.ListProjects(ctx, memberID)
	return res, persist("list projects", err)
}

// ProjectUpdate carries optional project field changes.
type ProjectUpdate struct {
	Name        *string
	Description *string
}

func (e Engine) UpdateProject(ctx context.Context, id string, upd ProjectUpdate, actorID string) (domain.Project, error) {
	if upd.Name != nil {
		trimmed := strings.TrimSpace(*upd.Name)
		if trimmed == "" {
			return domain.Project{}, invalid("name", "project name cannot be empty")
		}
		upd.Name = &trimmed
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Project{}, persist("begin", err)
	}
	defer tx.Rollback()

	if err := e.Repo.UpdateProjectTx(ctx, tx, id, upd.Name, upd.Description, nil); err != nil {
		return domain.Project{}, lookup("project", id, err)
	}
	p, err := e.Repo.GetProjectTx(ctx, tx, id)
	if err != nil {
		return domain.Project{}, lookup("project", id, err)
	}
	payload := events.EventPayload{}
	if upd.Name != nil {
		payload["name"] = *upd.Name
	}
	if upd.Description != nil {
		payload["description"] = *upd.Description
	}
	if _, err := e.writer().Append(ctx, tx, events.ProjectUpdated, id, "project", id, actorID, payload); err != nil {
		return domain.Project{}, persist("append event", err)
	}
	if err := tx.Commit(); err != nil {
		return domain.Project{}, persist("commit", err)
	}
	return p, nil
}

// CompleteProject marks the project completed. Its active sprint, if any, is
// left untouched. Completing a completed project is a no-op.
func (e Engine) CompleteProject(ctx context.Context, id, actorID string) (domain.Project, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Project{}, persist("begin", err)
	}
	defer tx.Rollback()

	p, err := e.Repo.GetProjectTx(ctx, tx, id)
	if err != nil {
		return p, lookup("project", id, err)
	}
	if p.Status == domain.ProjectCompleted {
		return p, nil
	}
	status := domain.ProjectCompleted
	if err := e.Repo.UpdateProjectTx(ctx, tx, id, nil, nil, &status); err != nil {
		return p, persist("complete project", err)
	}
	p.Status = status
	if _, err := e.writer().Append(ctx, tx, events.ProjectCompleted, id, "project", id, actorID, nil); err != nil {
		return p, persist("append event", err)
	}
	if err := tx.Commit(); err != nil {
		return p, persist("commit", err)
	}
	return p, nil
}

// ProjectConfig returns the effective config for a project.
func (e Engine) ProjectConfig(ctx context.Context, projectID string) (*config.Config, error) {
	if _, err := e.GetProject(ctx, projectID); err != nil {
		return nil, err
	}
	return e.configFor(ctx, nil, projectID)
}

// ImportConfig replaces the project config after validating it.
func (e Engine) ImportConfig(ctx context.Context, projectID string, cfg *config.Config, actorID string) error {
	if cfg == nil {
		return invalid("config", "config is required")
	}
	cfg.Project.ID = projectID
	if err := cfg.Validate(); err != nil {
		return invalid("config", "%v", err)
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return persist("begin", err)
	}
	defer tx.Rollback()

	if _, err := e.Repo.GetProjectTx(ctx, tx, projectID); err != nil {
		return lookup("project", projectID, err)
	}
	if err := e.Repo.UpsertProjectConfigTx(ctx, tx, projectID, cfg); err != nil {
		return persist("store project config", err)
	}
	if _, err := e.writer().Append(ctx, tx, events.ConfigImported, projectID, "project", projectID, actorID, nil); err != nil {
		return persist("append event", err)
	}
	return persist("commit", tx.Commit())
}
