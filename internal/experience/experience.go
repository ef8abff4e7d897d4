// Package experience derives levels from accumulated per-specialization
// experience and applies awards to the store.
package experience

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"teamline/internal/domain"
	"teamline/internal/repo"
)

const (
	// PointsPerTask is awarded for every completed, assigned task.
	PointsPerTask = 20
	// LevelSize is the experience needed per level.
	LevelSize = 100
	// General is credited when a task carries no specialization.
	General = "general"
)

// Level returns floor(exp/size). Negative input counts as zero.
func Level(exp, size int) int {
	if size <= 0 {
		size = LevelSize
	}
	if exp <= 0 {
		return 0
	}
	return exp / size
}

// Progress returns exp mod size, the experience gathered toward the next level.
func Progress(exp, size int) int {
	if size <= 0 {
		size = LevelSize
	}
	if exp <= 0 {
		return 0
	}
	return exp % size
}

// Specialization normalises a task tag, mapping empty to fallback.
func Specialization(tag, fallback string) string {
	tag = strings.TrimSpace(tag)
	if tag != "" {
		return tag
	}
	if fallback == "" {
		return General
	}
	return fallback
}

// Standing is one specialization of a user's profile.
type Standing struct {
	Specialization string `json:"specialization"`
	Exp            int    `json:"exp"`
	Level          int    `json:"level"`
	Progress       int    `json:"progress"`
	ToNextLevel    int    `json:"to_next_level"`
}

// Standings converts stored records into levels using size.
func Standings(records []domain.ExperienceRecord, size int) []Standing {
	if size <= 0 {
		size = LevelSize
	}
	res := make([]Standing, 0, len(records))
	for _, rec := range records {
		p := Progress(rec.Exp, size)
		res = append(res, Standing{
			Specialization: rec.Specialization,
			Exp:            rec.Exp,
			Level:          Level(rec.Exp, size),
			Progress:       p,
			ToNextLevel:    size - p,
		})
	}
	return res
}

// Ledger applies awards against the experience tables.
type Ledger struct {
	Repo      repo.Repo
	LevelSize int
	Now       func() time.Time
}

func (l Ledger) now() string {
	if l.Now == nil {
		return time.Now().UTC().Format(time.RFC3339)
	}
	return l.Now().UTC().Format(time.RFC3339)
}

// Award adds points to the (user, specialization) counter inside tx. The
// ledger itself is not idempotent; see AwardTask for the once-per-task path.
func (l Ledger) Award(ctx context.Context, tx *sql.Tx, userID, specialization string, points int) error {
	if userID == "" {
		return fmt.Errorf("award: user required")
	}
	if points <= 0 {
		return fmt.Errorf("award: points must be positive, got %d", points)
	}
	return l.Repo.AddExperienceTx(ctx, tx, userID, specialization, points, l.now())
}

// AwardTask journals the award for a task and credits the ledger. It reports
// false without crediting when the task was rewarded before.
func (l Ledger) AwardTask(ctx context.Context, tx *sql.Tx, award domain.ExperienceAward) (bool, error) {
	if award.AwardedAt == "" {
		award.AwardedAt = l.now()
	}
	fresh, err := l.Repo.InsertAwardTx(ctx, tx, award)
	if err != nil || !fresh {
		return false, err
	}
	if err := l.Award(ctx, tx, award.UserID, award.Specialization, award.Points); err != nil {
		return false, err
	}
	return true, nil
}

// LevelOf returns the user's level in a specialization; no record is level 0.
func (l Ledger) LevelOf(ctx context.Context, userID, specialization string) (int, error) {
	exp, err := l.Repo.GetExperience(ctx, userID, specialization)
	if err != nil {
		return 0, err
	}
	return Level(exp, l.LevelSize), nil
}

// Profile returns every specialization the user has touched.
func (l Ledger) Profile(ctx context.Context, userID string) ([]Standing, error) {
	records, err := l.Repo.ListExperience(ctx, userID)
	if err != nil {
		return nil, err
	}
	return Standings(records, l.LevelSize), nil
}
