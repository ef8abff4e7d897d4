package repo

import (
	"context"
	"database/sql"

	"teamline/internal/domain"
)

// AddExperienceTx adds points to a (user, specialization) counter, creating
// it at zero first when absent.
func (r Repo) AddExperienceTx(ctx context.Context, tx *sql.Tx, userID, specialization string, points int, now string) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO user_experience(user_id,specialization,exp,updated_at) VALUES (?,?,?,?)
ON CONFLICT(user_id,specialization) DO UPDATE SET exp=exp+excluded.exp, updated_at=excluded.updated_at`,
		userID, specialization, points, now)
	return err
}

// GetExperience returns the counter value; a missing record reads as zero.
func (r Repo) GetExperience(ctx context.Context, userID, specialization string) (int, error) {
	return r.GetExperienceTx(ctx, nil, userID, specialization)
}

func (r Repo) GetExperienceTx(ctx context.Context, tx *sql.Tx, userID, specialization string) (int, error) {
	var exp int
	err := r.on(tx).QueryRowContext(ctx, `SELECT exp FROM user_experience WHERE user_id=? AND specialization=?`, userID, specialization).Scan(&exp)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	return exp, err
}

// ListExperience returns every record held by a user, ordered by specialization.
func (r Repo) ListExperience(ctx context.Context, userID string) ([]domain.ExperienceRecord, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT user_id,specialization,exp,updated_at FROM user_experience WHERE user_id=? ORDER BY specialization ASC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.ExperienceRecord
	for rows.Next() {
		var rec domain.ExperienceRecord
		if err := rows.Scan(&rec.UserID, &rec.Specialization, &rec.Exp, &rec.UpdatedAt); err != nil {
			return nil, err
		}
		res = append(res, rec)
	}
	return res, rows.Err()
}

// ExperienceFor returns the specialization counter of each listed user.
// Users without a record are absent from the map.
func (r Repo) ExperienceFor(ctx context.Context, userIDs []string, specialization string) (map[string]int, error) {
	res := map[string]int{}
	if len(userIDs) == 0 {
		return res, nil
	}
	args := []any{specialization}
	for _, id := range userIDs {
		args = append(args, id)
	}
	rows, err := r.DB.QueryContext(ctx, `SELECT user_id, exp FROM user_experience WHERE specialization=? AND user_id IN (`+placeholders(len(userIDs))+`)`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var id string
		var exp int
		if err := rows.Scan(&id, &exp); err != nil {
			return nil, err
		}
		res[id] = exp
	}
	return res, rows.Err()
}

// InsertAwardTx journals an award. It reports false when the task was
// already awarded, in which case nothing is written.
func (r Repo) InsertAwardTx(ctx context.Context, tx *sql.Tx, a domain.ExperienceAward) (bool, error) {
	res, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO experience_awards(task_id,sprint_id,user_id,specialization,points,awarded_at) VALUES (?,?,?,?,?,?)`,
		a.TaskID, a.SprintID, a.UserID, a.Specialization, a.Points, a.AwardedAt)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// ListAwards returns journaled awards, optionally for one sprint or user.
func (r Repo) ListAwards(ctx context.Context, sprintID, userID string) ([]domain.ExperienceAward, error) {
	query := `SELECT task_id,sprint_id,user_id,specialization,points,awarded_at FROM experience_awards WHERE 1=1`
	var args []any
	if sprintID != "" {
		query += ` AND sprint_id=?`
		args = append(args, sprintID)
	}
	if userID != "" {
		query += ` AND user_id=?`
		args = append(args, userID)
	}
	query += ` ORDER BY awarded_at ASC, task_id ASC`
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.ExperienceAward
	for rows.Next() {
		var a domain.ExperienceAward
		if err := rows.Scan(&a.TaskID, &a.SprintID, &a.UserID, &a.Specialization, &a.Points, &a.AwardedAt); err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	return res, rows.Err()
}
