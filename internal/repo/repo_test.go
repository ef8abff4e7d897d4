package repo

import (
	"context"
	"database/sql"
	"testing"

	"teamline/internal/db"
	"teamline/internal/domain"
	"teamline/internal/migrate"
)

const ts = "2024-05-01T10:00:00Z"

func setupRepo(t *testing.T) (Repo, *sql.DB) {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	r := Repo{DB: conn}
	ctx := context.Background()
	if err := r.InsertProjectTx(ctx, nil, domain.Project{ID: "p", Name: "Proj", Status: domain.ProjectActive, CreatedBy: "mgr", CreatedAt: ts}); err != nil {
		t.Fatalf("insert project: %v", err)
	}
	return r, conn
}

func strPtr(s string) *string { return &s }

func insertTask(t *testing.T, r Repo, id, status string, sprintID, assignee *string) {
	t.Helper()
	task := domain.Task{ID: id, ProjectID: "p", SprintID: sprintID, Title: id, Status: status, AssigneeID: assignee, CreatedAt: ts, UpdatedAt: ts}
	if err := r.InsertTaskTx(context.Background(), nil, task); err != nil {
		t.Fatalf("insert task %s: %v", id, err)
	}
}

func TestCompleteSprintIsCompareAndSwap(t *testing.T) {
	r, conn := setupRepo(t)
	ctx := context.Background()
	if err := r.InsertSprintTx(ctx, nil, domain.Sprint{ID: "s", ProjectID: "p", Name: "one", Status: domain.SprintActive, CreatedAt: ts}); err != nil {
		t.Fatalf("insert sprint: %v", err)
	}
	for i, want := range []bool{true, false} {
		tx, err := conn.BeginTx(ctx, nil)
		if err != nil {
			t.Fatalf("begin: %v", err)
		}
		ok, err := r.CompleteSprintTx(ctx, tx, "p", "s", ts)
		if err != nil {
			t.Fatalf("complete #%d: %v", i, err)
		}
		if ok != want {
			t.Fatalf("complete #%d: expected %v got %v", i, want, ok)
		}
		if err := tx.Commit(); err != nil {
			t.Fatalf("commit: %v", err)
		}
	}
	s, err := r.GetSprint(ctx, "s")
	if err != nil {
		t.Fatalf("get sprint: %v", err)
	}
	if s.Status != domain.SprintCompleted || s.CompletedAt == nil {
		t.Fatalf("expected completed sprint with timestamp, got %+v", s)
	}
	active, err := r.ActiveSprint(ctx, "p")
	if err != nil || active != nil {
		t.Fatalf("expected no active sprint, got %+v err=%v", active, err)
	}
}

func TestMoveTasksAndFilters(t *testing.T) {
	r, conn := setupRepo(t)
	ctx := context.Background()
	if err := r.InsertSprintTx(ctx, nil, domain.Sprint{ID: "s", ProjectID: "p", Name: "one", Status: domain.SprintActive, CreatedAt: ts}); err != nil {
		t.Fatalf("insert sprint: %v", err)
	}
	insertTask(t, r, "t1", domain.TaskDone, strPtr("s"), strPtr("u1"))
	insertTask(t, r, "t2", domain.TaskTodo, strPtr("s"), nil)
	insertTask(t, r, "t3", domain.TaskInProgress, strPtr("s"), strPtr("u1"))

	open, err := r.ListTasks(ctx, TaskFilters{SprintID: "s", NotStatus: domain.TaskDone})
	if err != nil {
		t.Fatalf("list open: %v", err)
	}
	if len(open) != 2 {
		t.Fatalf("expected 2 open tasks, got %d", len(open))
	}
	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	n, err := r.MoveTasksTx(ctx, tx, []string{"t2", "t3"}, nil, ts)
	if err != nil || n != 2 {
		t.Fatalf("move: n=%d err=%v", n, err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
	backlog, err := r.ListTasks(ctx, TaskFilters{ProjectID: "p", Backlog: true})
	if err != nil {
		t.Fatalf("list backlog: %v", err)
	}
	if len(backlog) != 2 {
		t.Fatalf("expected 2 backlog tasks, got %d", len(backlog))
	}
	t1, err := r.GetTask(ctx, "t1")
	if err != nil || !t1.InSprint("s") {
		t.Fatalf("done task should stay in sprint: %+v err=%v", t1, err)
	}
}

func TestAwardJournalRejectsSecondAward(t *testing.T) {
	r, conn := setupRepo(t)
	ctx := context.Background()
	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	defer tx.Rollback()
	award := domain.ExperienceAward{TaskID: "t1", SprintID: "s", UserID: "u1", Specialization: "backend", Points: 20, AwardedAt: ts}
	first, err := r.InsertAwardTx(ctx, tx, award)
	if err != nil || !first {
		t.Fatalf("first award: ok=%v err=%v", first, err)
	}
	second, err := r.InsertAwardTx(ctx, tx, award)
	if err != nil || second {
		t.Fatalf("second award should be ignored: ok=%v err=%v", second, err)
	}
	if err := r.AddExperienceTx(ctx, tx, "u1", "backend", 20, ts); err != nil {
		t.Fatalf("add exp: %v", err)
	}
	if err := r.AddExperienceTx(ctx, tx, "u1", "backend", 20, ts); err != nil {
		t.Fatalf("add exp: %v", err)
	}
	exp, err := r.GetExperienceTx(ctx, tx, "u1", "backend")
	if err != nil || exp != 40 {
		t.Fatalf("expected 40 exp, got %d err=%v", exp, err)
	}
	missing, err := r.GetExperienceTx(ctx, tx, "u2", "backend")
	if err != nil || missing != 0 {
		t.Fatalf("missing record should read as zero, got %d err=%v", missing, err)
	}
}

func TestListMembersCountsOpenTasks(t *testing.T) {
	r, _ := setupRepo(t)
	ctx := context.Background()
	for _, m := range []domain.Member{
		{ProjectID: "p", UserID: "mgr", Role: domain.RoleManager, JoinedAt: ts},
		{ProjectID: "p", UserID: "u1", Role: domain.RoleMember, JoinedAt: "2024-05-02T10:00:00Z"},
	} {
		if err := r.AddMemberTx(ctx, nil, m); err != nil {
			t.Fatalf("add member: %v", err)
		}
	}
	insertTask(t, r, "t1", domain.TaskTodo, nil, strPtr("u1"))
	insertTask(t, r, "t2", domain.TaskInProgress, nil, strPtr("u1"))
	insertTask(t, r, "t3", domain.TaskDone, nil, strPtr("u1"))

	members, err := r.ListMembers(ctx, "p")
	if err != nil {
		t.Fatalf("list members: %v", err)
	}
	if len(members) != 2 || members[1].UserID != "u1" {
		t.Fatalf("unexpected members: %+v", members)
	}
	if members[0].OpenTasks != 0 || members[1].OpenTasks != 2 {
		t.Fatalf("unexpected open counts: %+v", members)
	}
	if err := r.RemoveMemberTx(ctx, nil, "p", "nobody"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
