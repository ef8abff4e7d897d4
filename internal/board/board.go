// Package board projects a project's tasks into the live views shown on the
// planning screen.
package board

import "teamline/internal/domain"

// Board holds the three task views of a project.
type Board struct {
	// Sprint lists tasks referencing the active sprint.
	Sprint []domain.Task `json:"sprint"`
	// Backlog lists tasks without a sprint.
	Backlog []domain.Task `json:"backlog"`
	// Completed lists every done task in the project, whichever sprint holds it.
	Completed []domain.Task `json:"completed"`
}

// Classify partitions tasks. Tasks referencing a sprint other than
// activeSprintID appear in neither Sprint nor Backlog. An empty
// activeSprintID yields an empty Sprint view.
func Classify(tasks []domain.Task, activeSprintID string) Board {
	b := Board{
		Sprint:    []domain.Task{},
		Backlog:   []domain.Task{},
		Completed: []domain.Task{},
	}
	for _, t := range tasks {
		switch {
		case t.InBacklog():
			b.Backlog = append(b.Backlog, t)
		case activeSprintID != "" && t.InSprint(activeSprintID):
			b.Sprint = append(b.Sprint, t)
		}
		if t.Status == domain.TaskDone {
			b.Completed = append(b.Completed, t)
		}
	}
	return b
}

// Columns groups tasks into Kanban columns keyed by status.
type Columns struct {
	Todo       []domain.Task `json:"todo"`
	InProgress []domain.Task `json:"in_progress"`
	Done       []domain.Task `json:"done"`
}

// Kanban splits tasks by status. Unknown statuses are dropped.
func Kanban(tasks []domain.Task) Columns {
	c := Columns{Todo: []domain.Task{}, InProgress: []domain.Task{}, Done: []domain.Task{}}
	for _, t := range tasks {
		switch t.Status {
		case domain.TaskTodo:
			c.Todo = append(c.Todo, t)
		case domain.TaskInProgress:
			c.InProgress = append(c.InProgress, t)
		case domain.TaskDone:
			c.Done = append(c.Done, t)
		}
	}
	return c
}
