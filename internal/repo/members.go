package repo

import (
	"context"
	"database/sql"

	"teamline/internal/domain"
)

// AddMemberTx inserts or re-roles a project member.
func (r Repo) AddMemberTx(ctx context.Context, tx *sql.Tx, m domain.Member) error {
	_, err := r.on(tx).ExecContext(ctx, `INSERT INTO project_members(project_id,user_id,role,joined_at) VALUES (?,?,?,?)
ON CONFLICT(project_id,user_id) DO UPDATE SET role=excluded.role`, m.ProjectID, m.UserID, m.Role, m.JoinedAt)
	return err
}

func (r Repo) RemoveMemberTx(ctx context.Context, tx *sql.Tx, projectID, userID string) error {
	res, err := r.on(tx).ExecContext(ctx, `DELETE FROM project_members WHERE project_id=? AND user_id=?`, projectID, userID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// MemberRole returns the user's role in a project or ErrNotFound.
func (r Repo) MemberRole(ctx context.Context, projectID, userID string) (string, error) {
	return r.MemberRoleTx(ctx, nil, projectID, userID)
}

func (r Repo) MemberRoleTx(ctx context.Context, tx *sql.Tx, projectID, userID string) (string, error) {
	var role string
	err := r.on(tx).QueryRowContext(ctx, `SELECT role FROM project_members WHERE project_id=? AND user_id=?`, projectID, userID).Scan(&role)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	return role, err
}

// ListMembers returns project members with their open task counts, ordered
// by join time.
func (r Repo) ListMembers(ctx context.Context, projectID string) ([]domain.Member, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT m.project_id, m.user_id, m.role, m.joined_at,
	(SELECT count(*) FROM tasks t WHERE t.project_id=m.project_id AND t.assignee_id=m.user_id AND t.status != 'done') AS open_tasks
FROM project_members m WHERE m.project_id=? ORDER BY m.joined_at ASC, m.user_id ASC`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Member
	for rows.Next() {
		var m domain.Member
		if err := rows.Scan(&m.ProjectID, &m.UserID, &m.Role, &m.JoinedAt, &m.OpenTasks); err != nil {
			return nil, err
		}
		res = append(res, m)
	}
	return res, rows.Err()
}

// UnassignMemberTasksTx clears the assignee on the user's unfinished tasks in
// the project and returns how many tasks changed. Done tasks keep their
// assignee so the work is still credited when the sprint closes.
func (r Repo) UnassignMemberTasksTx(ctx context.Context, tx *sql.Tx, projectID, userID, now string) (int64, error) {
	res, err := tx.ExecContext(ctx, `UPDATE tasks SET assignee_id=NULL, updated_at=? WHERE project_id=? AND assignee_id=? AND status<>'done'`, now, projectID, userID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// CountRoleTx returns how many members of a project hold role.
func (r Repo) CountRoleTx(ctx context.Context, tx *sql.Tx, projectID, role string) (int, error) {
	var n int
	err := r.on(tx).QueryRowContext(ctx, `SELECT count(*) FROM project_members WHERE project_id=? AND role=?`, projectID, role).Scan(&n)
	return n, err
}
