package experience

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"teamline/internal/db"
	"teamline/internal/domain"
	"teamline/internal/migrate"
	"teamline/internal/repo"
)

func TestLevelFormula(t *testing.T) {
	for exp := 0; exp <= 1000; exp++ {
		level := Level(exp, LevelSize)
		progress := Progress(exp, LevelSize)
		require.Equal(t, exp/100, level, "exp=%d", exp)
		require.GreaterOrEqual(t, progress, 0)
		require.Less(t, progress, 100)
		require.Equal(t, exp, level*100+progress)
	}
}

func TestLevelCustomSize(t *testing.T) {
	assert.Equal(t, 2, Level(250, 120))
	assert.Equal(t, 10, Progress(250, 120))
	assert.Equal(t, 0, Level(-5, 100))
	assert.Equal(t, 1, Level(100, 0))
}

func TestSpecializationFallback(t *testing.T) {
	assert.Equal(t, "backend", Specialization("backend", "general"))
	assert.Equal(t, "general", Specialization("  ", "general"))
	assert.Equal(t, General, Specialization("", ""))
}

func TestStandings(t *testing.T) {
	got := Standings([]domain.ExperienceRecord{{Specialization: "frontend", Exp: 260}}, 100)
	require.Len(t, got, 1)
	assert.Equal(t, Standing{Specialization: "frontend", Exp: 260, Level: 2, Progress: 60, ToNextLevel: 40}, got[0])
}

func TestLedgerAwardTaskOnce(t *testing.T) {
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, migrate.Migrate(conn))

	ledger := Ledger{
		Repo:      repo.Repo{DB: conn},
		LevelSize: LevelSize,
		Now:       func() time.Time { return time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC) },
	}
	ctx := context.Background()
	tx, err := conn.BeginTx(ctx, nil)
	require.NoError(t, err)
	award := domain.ExperienceAward{TaskID: "t1", SprintID: "s1", UserID: "u1", Specialization: "backend", Points: PointsPerTask}
	for i := 0; i < 6; i++ {
		award.TaskID = "t" + string(rune('a'+i))
		ok, err := ledger.AwardTask(ctx, tx, award)
		require.NoError(t, err)
		require.True(t, ok)
	}
	ok, err := ledger.AwardTask(ctx, tx, award)
	require.NoError(t, err)
	assert.False(t, ok, "repeat award must be ignored")
	require.NoError(t, tx.Commit())

	level, err := ledger.LevelOf(ctx, "u1", "backend")
	require.NoError(t, err)
	assert.Equal(t, 1, level)

	profile, err := ledger.Profile(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, profile, 1)
	assert.Equal(t, 120, profile[0].Exp)
	assert.Equal(t, 20, profile[0].Progress)

	none, err := ledger.LevelOf(ctx, "nobody", "backend")
	require.NoError(t, err)
	assert.Zero(t, none)
}

func TestLedgerAwardRejectsBadInput(t *testing.T) {
	ledger := Ledger{}
	assert.Error(t, ledger.Award(context.Background(), nil, "", "x", 20))
	assert.Error(t, ledger.Award(context.Background(), nil, "u", "x", 0))
}
