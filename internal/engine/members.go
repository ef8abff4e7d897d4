package engine

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"teamline/internal/domain"
	"teamline/internal/events"
	"teamline/internal/repo"
)

// AddMember adds a user to a project, or changes the role of an existing member.
func (e Engine) AddMember(ctx context.Context, projectID, userID, role, actorID string) (domain.Member, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return domain.Member{}, invalid("user_id", "user is required")
	}
	if role == "" {
		role = domain.RoleMember
	}
	if !domain.ValidRole(role) {
		return domain.Member{}, invalid("role", "unknown role %q", role)
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Member{}, persist("begin", err)
	}
	defer tx.Rollback()

	if _, err := e.Repo.GetProjectTx(ctx, tx, projectID); err != nil {
		return domain.Member{}, lookup("project", projectID, err)
	}
	if role != domain.RoleManager {
		if err := e.ensureNotLastManager(ctx, tx, projectID, userID); err != nil {
			return domain.Member{}, err
		}
	}
	m := domain.Member{ProjectID: projectID, UserID: userID, Role: role, JoinedAt: e.stamp()}
	if err := e.Repo.AddMemberTx(ctx, tx, m); err != nil {
		return domain.Member{}, persist("add member", err)
	}
	if _, err := e.writer().Append(ctx, tx, events.MemberAdded, projectID, "member", userID, actorID, events.EventPayload{"role": role}); err != nil {
		return domain.Member{}, persist("append event", err)
	}
	if err := tx.Commit(); err != nil {
		return domain.Member{}, persist("commit", err)
	}
	return m, nil
}

// ListMembers returns members with their open task counts.
func (e Engine) ListMembers(ctx context.Context, projectID string) ([]domain.Member, error) {
	if _, err := e.GetProject(ctx, projectID); err != nil {
		return nil, err
	}
	res, err := e.Repo.ListMembers(ctx, projectID)
	return res, persist("list members", err)
}

// RemoveMember removes a user from a project and unassigns their tasks there.
// The last manager cannot be removed.
func (e Engine) RemoveMember(ctx context.Context, projectID, userID, actorID string) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return persist("begin", err)
	}
	defer tx.Rollback()

	if _, err := e.Repo.MemberRoleTx(ctx, tx, projectID, userID); err != nil {
		return lookup("member", userID, err)
	}
	if err := e.ensureNotLastManager(ctx, tx, projectID, userID); err != nil {
		return err
	}
	unassigned, err := e.Repo.UnassignMemberTasksTx(ctx, tx, projectID, userID, e.stamp())
	if err != nil {
		return persist("unassign tasks", err)
	}
	if err := e.Repo.RemoveMemberTx(ctx, tx, projectID, userID); err != nil {
		return lookup("member", userID, err)
	}
	if _, err := e.writer().Append(ctx, tx, events.MemberRemoved, projectID, "member", userID, actorID, events.EventPayload{"unassigned_tasks": unassigned}); err != nil {
		return persist("append event", err)
	}
	return persist("commit", tx.Commit())
}

// MemberRole returns the user's role in the project.
func (e Engine) MemberRole(ctx context.Context, projectID, userID string) (string, error) {
	role, err := e.Repo.MemberRole(ctx, projectID, userID)
	if err != nil {
		return "", lookup("member", userID, err)
	}
	return role, nil
}

func (e Engine) ensureNotLastManager(ctx context.Context, tx *sql.Tx, projectID, userID string) error {
	role, err := e.Repo.MemberRoleTx(ctx, tx, projectID, userID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil
	}
	if err != nil {
		return persist("load member", err)
	}
	if role != domain.RoleManager {
		return nil
	}
	n, err := e.Repo.CountRoleTx(ctx, tx, projectID, domain.RoleManager)
	if err != nil {
		return persist("count managers", err)
	}
	if n <= 1 {
		return invalid("user_id", "%s is the last manager of the project", userID)
	}
	return nil
}
