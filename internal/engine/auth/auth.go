package auth

import (
	"context"
	"errors"
	"fmt"

	"teamline/internal/config"
	"teamline/internal/repo"
)

// Permissions checked by the HTTP and CLI layers.
const (
	PermProjectRead     = "project.read"
	PermProjectUpdate   = "project.update"
	PermProjectComplete = "project.complete"
	PermMemberManage    = "member.manage"
	PermSprintCreate    = "sprint.create"
	PermSprintClose     = "sprint.close"
	PermTaskCreate      = "task.create"
	PermTaskUpdate      = "task.update"
	PermTaskDelete      = "task.delete"
)

// ForbiddenError indicates missing permission.
type ForbiddenError struct {
	Permission string
}

func (e ForbiddenError) Error() string {
	return fmt.Sprintf("permission %s required", e.Permission)
}

// Service resolves permissions from project membership and the role table of
// the project config.
type Service struct {
	Repo repo.Repo
}

func (s Service) config(ctx context.Context, projectID string) (*config.Config, error) {
	cfg, err := s.Repo.GetProjectConfig(ctx, projectID)
	if errors.Is(err, repo.ErrNotFound) {
		return config.Default(projectID), nil
	}
	return cfg, err
}

// ActorRole returns the actor's role in the project, or "" for non-members.
func (s Service) ActorRole(ctx context.Context, projectID, actorID string) (string, error) {
	role, err := s.Repo.MemberRole(ctx, projectID, actorID)
	if errors.Is(err, repo.ErrNotFound) {
		return "", nil
	}
	return role, err
}

// ActorPermissions lists what the actor may do in the project.
func (s Service) ActorPermissions(ctx context.Context, projectID, actorID string) ([]string, error) {
	role, err := s.ActorRole(ctx, projectID, actorID)
	if err != nil || role == "" {
		return nil, err
	}
	cfg, err := s.config(ctx, projectID)
	if err != nil {
		return nil, err
	}
	return cfg.RolePermissions(role), nil
}

func (s Service) ActorHasPermission(ctx context.Context, projectID, actorID, perm string) (bool, error) {
	perms, err := s.ActorPermissions(ctx, projectID, actorID)
	if err != nil {
		return false, err
	}
	for _, p := range perms {
		if p == perm {
			return true, nil
		}
	}
	return false, nil
}

// Require returns ForbiddenError unless the actor holds perm in the project.
func (s Service) Require(ctx context.Context, projectID, actorID, perm string) error {
	ok, err := s.ActorHasPermission(ctx, projectID, actorID, perm)
	if err != nil {
		return err
	}
	if !ok {
		return ForbiddenError{Permission: perm}
	}
	return nil
}
