package board

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"teamline/internal/domain"
)

func sp(s string) *string { return &s }

func task(id, status string, sprint *string) domain.Task {
	return domain.Task{ID: id, ProjectID: "p", Status: status, SprintID: sprint}
}

func ids(tasks []domain.Task) []string {
	out := make([]string, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, t.ID)
	}
	return out
}

func TestClassify(t *testing.T) {
	tasks := []domain.Task{
		task("a", domain.TaskTodo, sp("s2")),
		task("b", domain.TaskDone, sp("s2")),
		task("c", domain.TaskTodo, nil),
		task("d", domain.TaskDone, sp("s1")),
		task("e", domain.TaskInProgress, sp("s1")),
	}
	b := Classify(tasks, "s2")
	assert.Equal(t, []string{"a", "b"}, ids(b.Sprint))
	assert.Equal(t, []string{"c"}, ids(b.Backlog))
	assert.Equal(t, []string{"b", "d"}, ids(b.Completed))
}

func TestClassifyWithoutActiveSprint(t *testing.T) {
	b := Classify([]domain.Task{task("a", domain.TaskTodo, sp("old")), task("b", domain.TaskTodo, nil)}, "")
	assert.Empty(t, b.Sprint)
	assert.Equal(t, []string{"b"}, ids(b.Backlog))
	assert.NotNil(t, b.Completed)
}

func TestSprintAndBacklogAreDisjoint(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	statuses := []string{domain.TaskTodo, domain.TaskInProgress, domain.TaskDone}
	sprints := []*string{nil, sp("s1"), sp("s2"), sp("s3")}
	for round := 0; round < 200; round++ {
		var tasks []domain.Task
		for i := 0; i < rng.Intn(30); i++ {
			tasks = append(tasks, task(fmt.Sprintf("t%d", i), statuses[rng.Intn(3)], sprints[rng.Intn(len(sprints))]))
		}
		b := Classify(tasks, "s2")
		seen := map[string]bool{}
		for _, x := range b.Sprint {
			seen[x.ID] = true
		}
		for _, x := range b.Backlog {
			require.False(t, seen[x.ID], "task %s in both views", x.ID)
		}
	}
}

func TestKanban(t *testing.T) {
	c := Kanban([]domain.Task{
		task("a", domain.TaskTodo, nil),
		task("b", domain.TaskDone, nil),
		task("c", domain.TaskInProgress, nil),
		task("d", "blocked", nil),
	})
	assert.Equal(t, []string{"a"}, ids(c.Todo))
	assert.Equal(t, []string{"c"}, ids(c.InProgress))
	assert.Equal(t, []string{"b"}, ids(c.Done))
}
