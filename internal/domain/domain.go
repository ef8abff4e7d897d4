package domain

const (
	ProjectActive    = "active"
	ProjectCompleted = "completed"

	SprintActive    = "active"
	SprintCompleted = "completed"

	TaskTodo       = "todo"
	TaskInProgress = "in_progress"
	TaskDone       = "done"

	RoleManager = "manager"
	RoleMember  = "member"
)

// ValidTaskStatus reports whether s is one of the Kanban columns.
func ValidTaskStatus(s string) bool {
	switch s {
	case TaskTodo, TaskInProgress, TaskDone:
		return true
	}
	return false
}

// ValidRole reports whether r is a known project role.
func ValidRole(r string) bool {
	return r == RoleManager || r == RoleMember
}

type Project struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Status      string `json:"status" enum:"active,completed"`
	CreatedBy   string `json:"created_by"`
	CreatedAt   string `json:"created_at" format:"date-time"`
}

type Member struct {
	ProjectID string `json:"project_id"`
	UserID    string `json:"user_id"`
	Role      string `json:"role" enum:"manager,member"`
	JoinedAt  string `json:"joined_at" format:"date-time"`
	// OpenTasks counts tasks in the project assigned to the member and not done.
	OpenTasks int `json:"open_tasks"`
}

type Sprint struct {
	ID          string  `json:"id"`
	ProjectID   string  `json:"project_id"`
	Name        string  `json:"name"`
	Status      string  `json:"status" enum:"active,completed"`
	CreatedAt   string  `json:"created_at" format:"date-time"`
	CompletedAt *string `json:"completed_at,omitempty" format:"date-time"`
}

type Task struct {
	ID             string  `json:"id"`
	ProjectID      string  `json:"project_id"`
	SprintID       *string `json:"sprint_id,omitempty"`
	Title          string  `json:"title"`
	Description    string  `json:"description,omitempty"`
	Specialization string  `json:"specialization,omitempty"`
	AssigneeID     *string `json:"assignee_id,omitempty"`
	Status         string  `json:"status" enum:"todo,in_progress,done"`
	StartDate      *string `json:"start_date,omitempty" format:"date"`
	EndDate        *string `json:"end_date,omitempty" format:"date"`
	CreatedAt      string  `json:"created_at" format:"date-time"`
	UpdatedAt      string  `json:"updated_at" format:"date-time"`
	CompletedAt    *string `json:"completed_at,omitempty" format:"date-time"`
}

// InSprint reports whether the task references the given sprint.
func (t Task) InSprint(sprintID string) bool {
	return t.SprintID != nil && *t.SprintID == sprintID
}

// InBacklog reports whether the task has no sprint.
func (t Task) InBacklog() bool {
	return t.SprintID == nil
}

type ExperienceRecord struct {
	UserID         string `json:"user_id"`
	Specialization string `json:"specialization"`
	Exp            int    `json:"exp"`
	UpdatedAt      string `json:"updated_at,omitempty" format:"date-time"`
}

// ExperienceAward is the journal row written once per rewarded task.
type ExperienceAward struct {
	TaskID         string `json:"task_id"`
	SprintID       string `json:"sprint_id"`
	UserID         string `json:"user_id"`
	Specialization string `json:"specialization"`
	Points         int    `json:"points"`
	AwardedAt      string `json:"awarded_at" format:"date-time"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	ProjectID  string `json:"project_id,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

type APIKey struct {
	ID        string `json:"id"`
	ActorID   string `json:"actor_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"key_hash"`
	CreatedAt string `json:"created_at" format:"date-time"`
}
