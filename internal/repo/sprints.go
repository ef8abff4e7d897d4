package repo

import (
	"context"
	"database/sql"

	"teamline/internal/domain"
)

const sprintColumns = `id,project_id,name,status,created_at,completed_at`

func scanSprint(scan func(dest ...any) error) (domain.Sprint, error) {
	var s domain.Sprint
	var completedAt sql.NullString
	if err := scan(&s.ID, &s.ProjectID, &s.Name, &s.Status, &s.CreatedAt, &completedAt); err != nil {
		if err == sql.ErrNoRows {
			return s, ErrNotFound
		}
		return s, err
	}
	s.CompletedAt = ptrFromNull(completedAt)
	return s, nil
}

func (r Repo) InsertSprintTx(ctx context.Context, tx *sql.Tx, s domain.Sprint) error {
	_, err := r.on(tx).ExecContext(ctx, `INSERT INTO sprints(id,project_id,name,status,created_at,completed_at) VALUES (?,?,?,?,?,?)`,
		s.ID, s.ProjectID, s.Name, s.Status, s.CreatedAt, nullableStringPtr(s.CompletedAt))
	return err
}

func (r Repo) GetSprint(ctx context.Context, id string) (domain.Sprint, error) {
	return r.GetSprintTx(ctx, nil, id)
}

func (r Repo) GetSprintTx(ctx context.Context, tx *sql.Tx, id string) (domain.Sprint, error) {
	return scanSprint(r.on(tx).QueryRowContext(ctx, `SELECT `+sprintColumns+` FROM sprints WHERE id=?`, id).Scan)
}

// ActiveSprintTx returns the project's active sprint, or nil when there is none.
func (r Repo) ActiveSprintTx(ctx context.Context, tx *sql.Tx, projectID string) (*domain.Sprint, error) {
	s, err := scanSprint(r.on(tx).QueryRowContext(ctx, `SELECT `+sprintColumns+` FROM sprints WHERE project_id=? AND status='active' LIMIT 1`, projectID).Scan)
	if err == ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r Repo) ActiveSprint(ctx context.Context, projectID string) (*domain.Sprint, error) {
	return r.ActiveSprintTx(ctx, nil, projectID)
}

// ListSprints returns a project's sprints newest first.
func (r Repo) ListSprints(ctx context.Context, projectID, status string) ([]domain.Sprint, error) {
	query := `SELECT ` + sprintColumns + ` FROM sprints WHERE project_id=?`
	args := []any{projectID}
	if status != "" {
		query += ` AND status=?`
		args = append(args, status)
	}
	query += ` ORDER BY created_at DESC, id DESC`
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Sprint
	for rows.Next() {
		s, err := scanSprint(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, s)
	}
	return res, rows.Err()
}

// CompleteSprintTx moves a sprint from active to completed. It reports false
// when the sprint was not active in the project, which makes it a
// compare-and-swap: only one caller can win.
func (r Repo) CompleteSprintTx(ctx context.Context, tx *sql.Tx, projectID, sprintID, now string) (bool, error) {
	res, err := tx.ExecContext(ctx, `UPDATE sprints SET status='completed', completed_at=? WHERE id=? AND project_id=? AND status='active'`,
		now, sprintID, projectID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}
