package repo

import (
	"context"
	"database/sql"
	"strings"

	"teamline/internal/domain"
)

const taskColumns = `id,project_id,sprint_id,title,description,specialization,assignee_id,status,start_date,end_date,created_at,updated_at,completed_at`

func scanTask(scan func(dest ...any) error) (domain.Task, error) {
	var t domain.Task
	var sprintID, description, specialization, assigneeID, startDate, endDate, completedAt sql.NullString
	err := scan(&t.ID, &t.ProjectID, &sprintID, &t.Title, &description, &specialization, &assigneeID, &t.Status,
		&startDate, &endDate, &t.CreatedAt, &t.UpdatedAt, &completedAt)
	if err == sql.ErrNoRows {
		return t, ErrNotFound
	}
	if err != nil {
		return t, err
	}
	if description.Valid {
		t.Description = description.String
	}
	if specialization.Valid {
		t.Specialization = specialization.String
	}
	t.SprintID = ptrFromNull(sprintID)
	t.AssigneeID = ptrFromNull(assigneeID)
	t.StartDate = ptrFromNull(startDate)
	t.EndDate = ptrFromNull(endDate)
	t.CompletedAt = ptrFromNull(completedAt)
	return t, nil
}

func (r Repo) InsertTaskTx(ctx context.Context, tx *sql.Tx, t domain.Task) error {
	_, err := r.on(tx).ExecContext(ctx, `INSERT INTO tasks(`+taskColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		t.ID, t.ProjectID, nullableStringPtr(t.SprintID), t.Title, nullable(t.Description), nullable(t.Specialization),
		nullableStringPtr(t.AssigneeID), t.Status, nullableStringPtr(t.StartDate), nullableStringPtr(t.EndDate),
		t.CreatedAt, t.UpdatedAt, nullableStringPtr(t.CompletedAt))
	return err
}

func (r Repo) UpdateTaskTx(ctx context.Context, tx *sql.Tx, t domain.Task) error {
	res, err := r.on(tx).ExecContext(ctx, `UPDATE tasks SET sprint_id=?, title=?, description=?, specialization=?, assignee_id=?, status=?, start_date=?, end_date=?, updated_at=?, completed_at=? WHERE id=?`,
		nullableStringPtr(t.SprintID), t.Title, nullable(t.Description), nullable(t.Specialization), nullableStringPtr(t.AssigneeID),
		t.Status, nullableStringPtr(t.StartDate), nullableStringPtr(t.EndDate), t.UpdatedAt, nullableStringPtr(t.CompletedAt), t.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) DeleteTaskTx(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := r.on(tx).ExecContext(ctx, `DELETE FROM tasks WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) GetTask(ctx context.Context, id string) (domain.Task, error) {
	return r.GetTaskTx(ctx, nil, id)
}

func (r Repo) GetTaskTx(ctx context.Context, tx *sql.Tx, id string) (domain.Task, error) {
	return scanTask(r.on(tx).QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id=?`, id).Scan)
}

// TaskFilters narrows ListTasks. Zero values do not filter.
type TaskFilters struct {
	ProjectID      string
	SprintID       string
	Backlog        bool
	Status         string
	NotStatus      string
	AssigneeID     string
	Specialization string
	Limit          int
}

func (r Repo) ListTasks(ctx context.Context, f TaskFilters) ([]domain.Task, error) {
	return r.ListTasksTx(ctx, nil, f)
}

func (r Repo) ListTasksTx(ctx context.Context, tx *sql.Tx, f TaskFilters) ([]domain.Task, error) {
	var clauses []string
	var args []any
	if f.ProjectID != "" {
		clauses = append(clauses, "project_id=?")
		args = append(args, f.ProjectID)
	}
	if f.SprintID != "" {
		clauses = append(clauses, "sprint_id=?")
		args = append(args, f.SprintID)
	}
	if f.Backlog {
		clauses = append(clauses, "sprint_id IS NULL")
	}
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	if f.NotStatus != "" {
		clauses = append(clauses, "status!=?")
		args = append(args, f.NotStatus)
	}
	if f.AssigneeID != "" {
		clauses = append(clauses, "assignee_id=?")
		args = append(args, f.AssigneeID)
	}
	if f.Specialization != "" {
		clauses = append(clauses, "specialization=?")
		args = append(args, f.Specialization)
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	query := `SELECT ` + taskColumns + ` FROM tasks ` + where + ` ORDER BY created_at ASC, id ASC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.on(tx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Task
	for rows.Next() {
		t, err := scanTask(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

// MoveTasksTx sets the sprint reference of the given tasks in one statement.
// A nil sprintID sends them to the backlog.
func (r Repo) MoveTasksTx(ctx context.Context, tx *sql.Tx, taskIDs []string, sprintID *string, now string) (int64, error) {
	if len(taskIDs) == 0 {
		return 0, nil
	}
	args := []any{nullableStringPtr(sprintID), now}
	for _, id := range taskIDs {
		args = append(args, id)
	}
	res, err := tx.ExecContext(ctx, `UPDATE tasks SET sprint_id=?, updated_at=? WHERE id IN (`+placeholders(len(taskIDs))+`)`, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// CountTasksByStatus returns task counts per status for a project.
func (r Repo) CountTasksByStatus(ctx context.Context, projectID string) (map[string]int, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT status, count(*) FROM tasks WHERE project_id=? GROUP BY status`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := map[string]int{}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		res[status] = count
	}
	return res, rows.Err()
}
