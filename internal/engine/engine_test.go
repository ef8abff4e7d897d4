package engine_test

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"teamline/internal/config"
	"teamline/internal/db"
	"teamline/internal/domain"
	"teamline/internal/engine"
	"teamline/internal/logging"
	"teamline/internal/migrate"
	"teamline/internal/repo"
)

type testEnv struct {
	Engine  engine.Engine
	Ctx     context.Context
	Project domain.Project
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	eng := engine.New(conn, logging.Nop())
	eng.Now = func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) }
	ctx := context.Background()
	p, err := eng.CreateProject(ctx, "Apollo", "test", "mgr")
	if err != nil {
		t.Fatalf("create project: %v", err)
	}
	for _, u := range []string{"u1", "u2", "u3"} {
		if _, err := eng.AddMember(ctx, p.ID, u, domain.RoleMember, "mgr"); err != nil {
			t.Fatalf("add member %s: %v", u, err)
		}
	}
	return testEnv{Engine: eng, Ctx: ctx, Project: p}
}

func (env testEnv) sprint(t *testing.T, name string) domain.Sprint {
	t.Helper()
	s, err := env.Engine.CreateSprint(env.Ctx, env.Project.ID, name, "mgr")
	if err != nil {
		t.Fatalf("create sprint: %v", err)
	}
	return s
}

// task creates a task in the sprint and moves it to status.
func (env testEnv) task(t *testing.T, sprintID, title, status, assignee, spec string) domain.Task {
	t.Helper()
	task, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{
		ProjectID:      env.Project.ID,
		Title:          title,
		Specialization: spec,
		AssigneeID:     assignee,
		SprintID:       sprintID,
		ActorID:        "mgr",
	})
	if err != nil {
		t.Fatalf("create task %s: %v", title, err)
	}
	if status != domain.TaskTodo {
		task, err = env.Engine.UpdateTask(env.Ctx, engine.TaskUpdateOptions{ProjectID: env.Project.ID, ID: task.ID, Status: &status, ActorID: "mgr"})
		if err != nil {
			t.Fatalf("set status %s: %v", status, err)
		}
	}
	return task
}

func (env testEnv) reload(t *testing.T, id string) domain.Task {
	t.Helper()
	task, err := env.Engine.GetTask(env.Ctx, env.Project.ID, id)
	if err != nil {
		t.Fatalf("get task: %v", err)
	}
	return task
}

func (env testEnv) exp(t *testing.T, user, spec string) int {
	t.Helper()
	v, err := env.Engine.Repo.GetExperience(env.Ctx, user, spec)
	if err != nil {
		t.Fatalf("get exp: %v", err)
	}
	return v
}

func TestCloseToBacklogScenario(t *testing.T) {
	env := newTestEnv(t)
	s := env.sprint(t, "Sprint 1")
	t1 := env.task(t, s.ID, "T1", domain.TaskDone, "u1", "backend")
	t2 := env.task(t, s.ID, "T2", domain.TaskTodo, "u2", "")
	t3 := env.task(t, s.ID, "T3", domain.TaskDone, "", "")

	res, err := env.Engine.CloseSprint(env.Ctx, env.Project.ID, s.ID, engine.ToBacklog(), "mgr")
	if err != nil {
		t.Fatalf("close sprint: %v", err)
	}
	if res.Sprint.Status != domain.SprintCompleted || res.NextSprint != nil {
		t.Fatalf("unexpected result: %+v", res)
	}
	if got := env.exp(t, "u1", "backend"); got != 20 {
		t.Fatalf("expected 20 backend exp for u1, got %d", got)
	}
	if got := env.exp(t, "u2", "general"); got != 0 {
		t.Fatalf("u2 has no done task, got %d exp", got)
	}
	if len(res.Awards) != 1 || res.Awards[0].TaskID != t1.ID {
		t.Fatalf("expected single award for T1, got %+v", res.Awards)
	}
	if !env.reload(t, t2.ID).InBacklog() {
		t.Fatalf("T2 should be in backlog")
	}
	if !env.reload(t, t1.ID).InSprint(s.ID) || !env.reload(t, t3.ID).InSprint(s.ID) {
		t.Fatalf("done tasks should stay with the closed sprint")
	}
	stored, err := env.Engine.GetSprint(env.Ctx, env.Project.ID, s.ID)
	if err != nil || stored.Status != domain.SprintCompleted {
		t.Fatalf("sprint not completed: %+v err=%v", stored, err)
	}
}

func TestCloseToNewSprintScenario(t *testing.T) {
	env := newTestEnv(t)
	s := env.sprint(t, "Sprint 1")
	t1 := env.task(t, s.ID, "T1", domain.TaskInProgress, "u1", "frontend")

	next, err := engine.ToNewSprint("Sprint 2")
	if err != nil {
		t.Fatalf("disposition: %v", err)
	}
	res, err := env.Engine.CloseSprint(env.Ctx, env.Project.ID, s.ID, next, "mgr")
	if err != nil {
		t.Fatalf("close sprint: %v", err)
	}
	if res.NextSprint == nil || res.NextSprint.Name != "Sprint 2" || res.NextSprint.Status != domain.SprintActive {
		t.Fatalf("expected active successor, got %+v", res.NextSprint)
	}
	if !env.reload(t, t1.ID).InSprint(res.NextSprint.ID) {
		t.Fatalf("T1 should move to the new sprint")
	}
	if len(res.Awards) != 0 || env.exp(t, "u1", "frontend") != 0 {
		t.Fatalf("no experience expected, got %+v", res.Awards)
	}
	active, err := env.Engine.ActiveSprint(env.Ctx, env.Project.ID)
	if err != nil || active == nil || active.ID != res.NextSprint.ID {
		t.Fatalf("successor should be the active sprint, got %+v err=%v", active, err)
	}
}

func TestCloseConservesTasks(t *testing.T) {
	for _, newSprint := range []bool{false, true} {
		env := newTestEnv(t)
		s := env.sprint(t, "S")
		statuses := []string{domain.TaskDone, domain.TaskTodo, domain.TaskInProgress, domain.TaskDone, domain.TaskTodo, domain.TaskDone, domain.TaskInProgress}
		var doneIDs, openIDs []string
		for i, st := range statuses {
			task := env.task(t, s.ID, "task", st, []string{"u1", "u2", "", "u3"}[i%4], "")
			if st == domain.TaskDone {
				doneIDs = append(doneIDs, task.ID)
			} else {
				openIDs = append(openIDs, task.ID)
			}
		}
		backlogTask := env.task(t, "", "already in backlog", domain.TaskTodo, "", "")

		d := engine.ToBacklog()
		if newSprint {
			var err error
			if d, err = engine.ToNewSprint("S2"); err != nil {
				t.Fatal(err)
			}
		}
		res, err := env.Engine.CloseSprint(env.Ctx, env.Project.ID, s.ID, d, "mgr")
		if err != nil {
			t.Fatalf("close: %v", err)
		}
		if !sameIDs(res.MovedTaskIDs, openIDs) || !sameIDs(res.CompletedTaskIDs, doneIDs) {
			t.Fatalf("moved=%v completed=%v want %v / %v", res.MovedTaskIDs, res.CompletedTaskIDs, openIDs, doneIDs)
		}
		left, err := env.Engine.ListTasks(env.Ctx, repo.TaskFilters{ProjectID: env.Project.ID, SprintID: s.ID})
		if err != nil {
			t.Fatal(err)
		}
		if !sameIDs(taskIDs(left), doneIDs) {
			t.Fatalf("closed sprint should hold exactly the done tasks, got %v", taskIDs(left))
		}
		var dest []domain.Task
		if newSprint {
			dest, err = env.Engine.ListTasks(env.Ctx, repo.TaskFilters{ProjectID: env.Project.ID, SprintID: res.NextSprint.ID})
		} else {
			dest, err = env.Engine.ListTasks(env.Ctx, repo.TaskFilters{ProjectID: env.Project.ID, Backlog: true})
		}
		if err != nil {
			t.Fatal(err)
		}
		want := openIDs
		if !newSprint {
			want = append(append([]string{}, openIDs...), backlogTask.ID)
		}
		if !sameIDs(taskIDs(dest), want) {
			t.Fatalf("destination holds %v, want %v", taskIDs(dest), want)
		}
		all, err := env.Engine.ListTasks(env.Ctx, repo.TaskFilters{ProjectID: env.Project.ID})
		if err != nil || len(all) != len(statuses)+1 {
			t.Fatalf("task count changed: %d err=%v", len(all), err)
		}
	}
}

func TestAwardCompleteness(t *testing.T) {
	env := newTestEnv(t)
	s := env.sprint(t, "S")
	env.task(t, s.ID, "a", domain.TaskDone, "u1", "backend")
	env.task(t, s.ID, "b", domain.TaskDone, "u1", "backend")
	env.task(t, s.ID, "c", domain.TaskDone, "u1", "frontend")
	env.task(t, s.ID, "d", domain.TaskDone, "u2", "")
	env.task(t, s.ID, "e", domain.TaskDone, "", "backend")
	env.task(t, s.ID, "f", domain.TaskInProgress, "u3", "backend")

	res, err := env.Engine.CloseSprint(env.Ctx, env.Project.ID, s.ID, engine.ToBacklog(), "mgr")
	if err != nil {
		t.Fatalf("close: %v", err)
	}
	if len(res.Awards) != 4 {
		t.Fatalf("expected 4 awards, got %d", len(res.Awards))
	}
	checks := []struct {
		user, spec string
		want       int
	}{
		{"u1", "backend", 40},
		{"u1", "frontend", 20},
		{"u2", "general", 20},
		{"u3", "backend", 0},
	}
	for _, c := range checks {
		if got := env.exp(t, c.user, c.spec); got != c.want {
			t.Fatalf("%s/%s: want %d got %d", c.user, c.spec, c.want, got)
		}
	}
}

func TestDoubleCloseIsRejected(t *testing.T) {
	env := newTestEnv(t)
	s := env.sprint(t, "S")
	env.task(t, s.ID, "a", domain.TaskDone, "u1", "backend")
	if _, err := env.Engine.CloseSprint(env.Ctx, env.Project.ID, s.ID, engine.ToBacklog(), "mgr"); err != nil {
		t.Fatalf("first close: %v", err)
	}
	d, _ := engine.ToNewSprint("again")
	_, err := env.Engine.CloseSprint(env.Ctx, env.Project.ID, s.ID, d, "mgr")
	if !errors.Is(err, engine.ErrSprintNotActive) {
		t.Fatalf("expected ErrSprintNotActive, got %v", err)
	}
	if got := env.exp(t, "u1", "backend"); got != 20 {
		t.Fatalf("experience awarded twice: %d", got)
	}
	active, err := env.Engine.ActiveSprint(env.Ctx, env.Project.ID)
	if err != nil || active != nil {
		t.Fatalf("failed close must not open a sprint, got %+v", active)
	}
}

func TestConcurrentClosesAwardOnce(t *testing.T) {
	env := newTestEnv(t)
	s := env.sprint(t, "S")
	env.task(t, s.ID, "a", domain.TaskDone, "u1", "backend")
	env.task(t, s.ID, "b", domain.TaskTodo, "u2", "backend")

	var wg sync.WaitGroup
	errs := make([]error, 4)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			d, _ := engine.ToNewSprint("next")
			_, errs[i] = env.Engine.CloseSprint(env.Ctx, env.Project.ID, s.ID, d, "mgr")
		}(i)
	}
	wg.Wait()
	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
		}
	}
	if wins != 1 {
		t.Fatalf("expected exactly one successful close, got %d (%v)", wins, errs)
	}
	if got := env.exp(t, "u1", "backend"); got != 20 {
		t.Fatalf("expected single award, got %d", got)
	}
	sprints, err := env.Engine.ListSprints(env.Ctx, env.Project.ID, domain.SprintActive)
	if err != nil || len(sprints) != 1 {
		t.Fatalf("expected one active successor, got %d err=%v", len(sprints), err)
	}
}

func TestReopenedTaskIsNotAwardedTwice(t *testing.T) {
	env := newTestEnv(t)
	s := env.sprint(t, "S1")
	done := env.task(t, s.ID, "a", domain.TaskDone, "u1", "backend")
	if _, err := env.Engine.CloseSprint(env.Ctx, env.Project.ID, s.ID, engine.ToBacklog(), "mgr"); err != nil {
		t.Fatal(err)
	}
	s2 := env.sprint(t, "S2")
	todo, status := domain.TaskTodo, domain.TaskDone
	if _, err := env.Engine.UpdateTask(env.Ctx, engine.TaskUpdateOptions{ProjectID: env.Project.ID, ID: done.ID, Status: &todo, Sprint: &s2.ID}); err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if _, err := env.Engine.UpdateTask(env.Ctx, engine.TaskUpdateOptions{ProjectID: env.Project.ID, ID: done.ID, Status: &status}); err != nil {
		t.Fatalf("complete again: %v", err)
	}
	res, err := env.Engine.CloseSprint(env.Ctx, env.Project.ID, s2.ID, engine.ToBacklog(), "mgr")
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Awards) != 0 || env.exp(t, "u1", "backend") != 20 {
		t.Fatalf("task awarded twice: %+v", res.Awards)
	}
}

func TestValidationHappensBeforeMutation(t *testing.T) {
	env := newTestEnv(t)
	s := env.sprint(t, "S")
	env.task(t, s.ID, "a", domain.TaskDone, "u1", "backend")

	if _, err := engine.ToNewSprint("  "); err == nil {
		t.Fatalf("blank name should be rejected")
	}
	_, err := env.Engine.CloseSprint(env.Ctx, env.Project.ID, s.ID, engine.Disposition{Kind: engine.DispositionNewSprint}, "mgr")
	var ve *engine.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected validation error, got %v", err)
	}
	stored, err := env.Engine.GetSprint(env.Ctx, env.Project.ID, s.ID)
	if err != nil || stored.Status != domain.SprintActive {
		t.Fatalf("sprint must stay active, got %+v err=%v", stored, err)
	}
	if env.exp(t, "u1", "backend") != 0 {
		t.Fatalf("no award expected after a rejected close")
	}
}

func TestParseDisposition(t *testing.T) {
	d, err := engine.ParseDisposition("", "")
	if err != nil || d.Kind != engine.DispositionBacklog {
		t.Fatalf("empty kind should mean backlog, got %+v err=%v", d, err)
	}
	d, err = engine.ParseDisposition("new_sprint", " Sprint 2 ")
	if err != nil || d.Name != "Sprint 2" {
		t.Fatalf("unexpected disposition %+v err=%v", d, err)
	}
	for _, kind := range []string{"", "backlog"} {
		_, err := engine.ParseDisposition(kind, "Sprint 2")
		var ve *engine.ValidationError
		if !errors.As(err, &ve) || ve.Field != "next_sprint_name" {
			t.Fatalf("kind %q with a successor name should be rejected, got %v", kind, err)
		}
	}
	if _, err := engine.ParseDisposition("archive", ""); err == nil {
		t.Fatalf("unknown disposition should be rejected")
	}
}

func TestCloseUnknownSprint(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Engine.CloseSprint(env.Ctx, env.Project.ID, "missing", engine.ToBacklog(), "mgr")
	var nf *engine.NotFoundError
	if !errors.As(err, &nf) || !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
	other, err := env.Engine.CreateProject(env.Ctx, "Other", "", "mgr")
	if err != nil {
		t.Fatal(err)
	}
	s, err := env.Engine.CreateSprint(env.Ctx, other.ID, "theirs", "mgr")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.CloseSprint(env.Ctx, env.Project.ID, s.ID, engine.ToBacklog(), "mgr"); !errors.As(err, &nf) {
		t.Fatalf("sprint of another project should be not found, got %v", err)
	}
}

func TestOneActiveSprintPerProject(t *testing.T) {
	env := newTestEnv(t)
	env.sprint(t, "S1")
	if _, err := env.Engine.CreateSprint(env.Ctx, env.Project.ID, "S2", "mgr"); !errors.Is(err, engine.ErrActiveSprintExists) {
		t.Fatalf("expected ErrActiveSprintExists, got %v", err)
	}
	if _, err := env.Engine.CreateSprint(env.Ctx, env.Project.ID, " ", "mgr"); err == nil {
		t.Fatalf("blank sprint name should fail")
	}
}

func TestCompleteProjectKeepsSprint(t *testing.T) {
	env := newTestEnv(t)
	s := env.sprint(t, "S1")
	p, err := env.Engine.CompleteProject(env.Ctx, env.Project.ID, "mgr")
	if err != nil || p.Status != domain.ProjectCompleted {
		t.Fatalf("complete project: %+v err=%v", p, err)
	}
	active, err := env.Engine.ActiveSprint(env.Ctx, env.Project.ID)
	if err != nil || active == nil || active.ID != s.ID {
		t.Fatalf("sprint should stay active, got %+v", active)
	}
}

func TestTaskSprintMustBeActiveInProject(t *testing.T) {
	env := newTestEnv(t)
	s := env.sprint(t, "S1")
	if _, err := env.Engine.CloseSprint(env.Ctx, env.Project.ID, s.ID, engine.ToBacklog(), "mgr"); err != nil {
		t.Fatal(err)
	}
	_, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{ProjectID: env.Project.ID, Title: "late", SprintID: s.ID})
	var ve *engine.ValidationError
	if !errors.As(err, &ve) || ve.Field != "sprint_id" {
		t.Fatalf("expected sprint_id validation error, got %v", err)
	}
	if _, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{ProjectID: env.Project.ID, Title: "x", AssigneeID: "stranger"}); !errors.As(err, &ve) {
		t.Fatalf("expected assignee validation error, got %v", err)
	}
}

func TestSpecializationAllowList(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{ProjectID: env.Project.ID, Title: "x", Specialization: "devops"}); err == nil {
		t.Fatalf("devops is not in the default allow-list")
	}
	cfg := config.Default(env.Project.ID)
	cfg.Specializations = nil
	if err := env.Engine.ImportConfig(env.Ctx, env.Project.ID, cfg, "mgr"); err != nil {
		t.Fatalf("import config: %v", err)
	}
	if _, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{ProjectID: env.Project.ID, Title: "x", Specialization: "devops"}); err != nil {
		t.Fatalf("open taxonomy should accept devops: %v", err)
	}
}

func TestBoardViews(t *testing.T) {
	env := newTestEnv(t)
	old := env.sprint(t, "old")
	kept := env.task(t, old.ID, "old done", domain.TaskDone, "u1", "")
	if _, err := env.Engine.CloseSprint(env.Ctx, env.Project.ID, old.ID, engine.ToBacklog(), "mgr"); err != nil {
		t.Fatal(err)
	}
	cur := env.sprint(t, "current")
	a := env.task(t, cur.ID, "a", domain.TaskInProgress, "u1", "")
	b := env.task(t, "", "b", domain.TaskTodo, "", "")

	bd, err := env.Engine.Board(env.Ctx, env.Project.ID)
	if err != nil {
		t.Fatalf("board: %v", err)
	}
	if bd.ActiveSprint == nil || bd.ActiveSprint.ID != cur.ID {
		t.Fatalf("wrong active sprint: %+v", bd.ActiveSprint)
	}
	if !sameIDs(taskIDs(bd.Sprint), []string{a.ID}) || !sameIDs(taskIDs(bd.Backlog), []string{b.ID}) {
		t.Fatalf("unexpected views sprint=%v backlog=%v", taskIDs(bd.Sprint), taskIDs(bd.Backlog))
	}
	if !sameIDs(taskIDs(bd.Completed), []string{kept.ID}) {
		t.Fatalf("completed view should list done tasks project-wide, got %v", taskIDs(bd.Completed))
	}
	if len(bd.Columns.InProgress) != 1 {
		t.Fatalf("expected one in-progress card, got %+v", bd.Columns)
	}
	hist, err := env.Engine.SprintHistory(env.Ctx, env.Project.ID, old.ID)
	if err != nil || !sameIDs(taskIDs(hist.Tasks), []string{kept.ID}) || len(hist.Awards) != 1 {
		t.Fatalf("history: %+v err=%v", hist, err)
	}
}

func TestRankAssignees(t *testing.T) {
	env := newTestEnv(t)
	// u1: two backend awards in one sprint, u2: one, u3: none but no load.
	s := env.sprint(t, "S")
	env.task(t, s.ID, "a", domain.TaskDone, "u1", "backend")
	env.task(t, s.ID, "b", domain.TaskDone, "u1", "backend")
	env.task(t, s.ID, "c", domain.TaskDone, "u2", "backend")
	if _, err := env.Engine.CloseSprint(env.Ctx, env.Project.ID, s.ID, engine.ToBacklog(), "mgr"); err != nil {
		t.Fatal(err)
	}
	env.task(t, "", "load", domain.TaskTodo, "u2", "")

	ranked, err := env.Engine.RankAssignees(env.Ctx, env.Project.ID, "backend")
	if err != nil {
		t.Fatalf("rank: %v", err)
	}
	if len(ranked) != 4 {
		t.Fatalf("expected every member ranked, got %d", len(ranked))
	}
	// all levels are 0 (exp < 100): order falls back to open tasks then id.
	got := []string{}
	for _, r := range ranked {
		got = append(got, r.UserID)
	}
	want := []string{"mgr", "u1", "u3", "u2"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("rank order %v, want %v", got, want)
		}
	}
	if !ranked[0].Recommended {
		t.Fatalf("first candidate should be recommended")
	}
}

func TestRemoveMemberUnassignsTasks(t *testing.T) {
	env := newTestEnv(t)
	s := env.sprint(t, "S")
	task := env.task(t, "", "x", domain.TaskTodo, "u1", "")
	finished := env.task(t, s.ID, "y", domain.TaskDone, "u1", "backend")
	if err := env.Engine.RemoveMember(env.Ctx, env.Project.ID, "u1", "mgr"); err != nil {
		t.Fatalf("remove member: %v", err)
	}
	if env.reload(t, task.ID).AssigneeID != nil {
		t.Fatalf("task should be unassigned")
	}
	if a := env.reload(t, finished.ID).AssigneeID; a == nil || *a != "u1" {
		t.Fatalf("done task should keep its assignee, got %v", a)
	}
	res, err := env.Engine.CloseSprint(env.Ctx, env.Project.ID, s.ID, engine.ToBacklog(), "mgr")
	if err != nil {
		t.Fatalf("close sprint: %v", err)
	}
	if len(res.Awards) != 1 || res.Awards[0].UserID != "u1" || env.exp(t, "u1", "backend") != 20 {
		t.Fatalf("removed member should still be credited, got %+v", res.Awards)
	}
	if err := env.Engine.RemoveMember(env.Ctx, env.Project.ID, "mgr", "mgr"); err == nil {
		t.Fatalf("last manager must not be removable")
	}
}

func TestExperienceProfile(t *testing.T) {
	env := newTestEnv(t)
	s := env.sprint(t, "S")
	for i := 0; i < 6; i++ {
		env.task(t, s.ID, "t", domain.TaskDone, "u1", "mobile developer")
	}
	if _, err := env.Engine.CloseSprint(env.Ctx, env.Project.ID, s.ID, engine.ToBacklog(), "mgr"); err != nil {
		t.Fatal(err)
	}
	prof, err := env.Engine.ExperienceProfile(env.Ctx, "u1")
	if err != nil {
		t.Fatalf("profile: %v", err)
	}
	if len(prof.Standings) != 1 {
		t.Fatalf("unexpected standings: %+v", prof.Standings)
	}
	st := prof.Standings[0]
	if st.Exp != 120 || st.Level != 1 || st.Progress != 20 || st.ToNextLevel != 80 {
		t.Fatalf("unexpected standing: %+v", st)
	}
	if len(prof.Awards) != 6 {
		t.Fatalf("expected 6 awards, got %d", len(prof.Awards))
	}
}

func TestRankingLevelMatchesProfileLevel(t *testing.T) {
	env := newTestEnv(t)
	cfg, err := config.FromYAML([]byte("project:\n  id: " + env.Project.ID + "\nexperience:\n  level_size: 50\n  points_per_task: 7\n"))
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if err := env.Engine.ImportConfig(env.Ctx, env.Project.ID, cfg, "mgr"); err != nil {
		t.Fatalf("import config: %v", err)
	}
	s := env.sprint(t, "S")
	for i := 0; i < 3; i++ {
		env.task(t, s.ID, "t", domain.TaskDone, "u1", "backend")
	}
	res, err := env.Engine.CloseSprint(env.Ctx, env.Project.ID, s.ID, engine.ToBacklog(), "mgr")
	if err != nil {
		t.Fatalf("close sprint: %v", err)
	}
	for _, a := range res.Awards {
		if a.Points != 20 {
			t.Fatalf("award must be 20 points, got %+v", a)
		}
	}

	ranked, err := env.Engine.RankAssignees(env.Ctx, env.Project.ID, "backend")
	if err != nil {
		t.Fatalf("rank: %v", err)
	}
	prof, err := env.Engine.ExperienceProfile(env.Ctx, "u1")
	if err != nil {
		t.Fatalf("profile: %v", err)
	}
	if len(prof.Standings) != 1 || prof.Standings[0].Exp != 60 {
		t.Fatalf("unexpected standings: %+v", prof.Standings)
	}
	for _, r := range ranked {
		if r.UserID != "u1" {
			continue
		}
		if r.Exp != 60 || r.Level != prof.Standings[0].Level || r.Level != 0 {
			t.Fatalf("level disagrees: ranking=%+v profile=%+v", r, prof.Standings[0])
		}
		return
	}
	t.Fatalf("u1 missing from ranking: %+v", ranked)
}

func taskIDs(tasks []domain.Task) []string {
	out := make([]string, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, t.ID)
	}
	return out
}

func sameIDs(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	x := append([]string{}, a...)
	y := append([]string{}, b...)
	sort.Strings(x)
	sort.Strings(y)
	for i := range x {
		if x[i] != y[i] {
			return false
		}
	}
	return true
}
