package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"teamline/internal/domain"
	"teamline/internal/engine"
	"teamline/internal/engine/auth"
	"teamline/internal/repo"
)

func sprintCmd() *cobra.Command {
	s := &cobra.Command{
		Use:   "sprint",
		Short: "Plan and close sprints",
		Long:  "A project has at most one active sprint. Closing it awards experience for done tasks and moves unfinished work.",
	}
	s.AddCommand(sprintCreateCmd())
	s.AddCommand(sprintListCmd())
	s.AddCommand(sprintShowCmd())
	s.AddCommand(sprintCloseCmd())
	return s
}

func sprintCreateCmd() *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Open a sprint",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withProject(cmd.Context(), func(ctx context.Context, e engine.Engine, projectID string) error {
				actor, err := require(ctx, e, projectID, auth.PermSprintCreate)
				if err != nil {
					return err
				}
				s, err := e.CreateSprint(ctx, projectID, name, actor)
				if err != nil {
					return err
				}
				return printJSONOrTable(s)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "sprint name")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func sprintListCmd() *cobra.Command {
	var status string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List sprints, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withProject(cmd.Context(), func(ctx context.Context, e engine.Engine, projectID string) error {
				items, err := e.ListSprints(ctx, projectID, status)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable("ID", "Name", "Status", "Created", "Completed")
				for _, s := range items {
					tw.AppendRow([]any{s.ID, s.Name, s.Status, s.CreatedAt, deref(s.CompletedAt)})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "status filter (active, completed)")
	return cmd
}

func sprintShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show [sprint-id]",
		Short: "Show a sprint with its tasks and awards (default: the active sprint)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withProject(cmd.Context(), func(ctx context.Context, e engine.Engine, projectID string) error {
				sprintID, err := sprintArg(ctx, e, projectID, args)
				if err != nil {
					return err
				}
				h, err := e.SprintHistory(ctx, projectID, sprintID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(h)
				}
				fmt.Printf("Sprint: %s (%s) [%s]\n", h.Sprint.Name, h.Sprint.ID, h.Sprint.Status)
				tw := newTable("Task", "Title", "Status", "Assignee", "Specialization")
				for _, t := range h.Tasks {
					tw.AppendRow([]any{t.ID, t.Title, t.Status, deref(t.AssigneeID), t.Specialization})
				}
				tw.Render()
				if len(h.Awards) > 0 {
					renderAwards(h.Awards)
				}
				return nil
			})
		},
	}
	return cmd
}

func sprintCloseCmd() *cobra.Command {
	var to, next string
	cmd := &cobra.Command{
		Use:   "close [sprint-id]",
		Short: "Close a sprint (default: the active sprint)",
		Long: `Marks the sprint completed and awards experience to the assignee of every done task.
Unfinished tasks go to the backlog (--to backlog) or into a new sprint (--to new_sprint --next <name>).`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := engine.ParseDisposition(to, next)
			if err != nil {
				return err
			}
			return withProject(cmd.Context(), func(ctx context.Context, e engine.Engine, projectID string) error {
				actor, err := require(ctx, e, projectID, auth.PermSprintClose)
				if err != nil {
					return err
				}
				sprintID, err := sprintArg(ctx, e, projectID, args)
				if err != nil {
					return err
				}
				res, err := e.CloseSprint(ctx, projectID, sprintID, d, actor)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(res)
				}
				fmt.Printf("Closed %s: %d done, %d moved to %s\n", res.Sprint.Name, len(res.CompletedTaskIDs), len(res.MovedTaskIDs), res.Disposition)
				if res.NextSprint != nil {
					fmt.Printf("Opened %s (%s)\n", res.NextSprint.Name, res.NextSprint.ID)
				}
				if len(res.Awards) > 0 {
					renderAwards(res.Awards)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&to, "to", string(engine.DispositionBacklog), "where unfinished tasks go (backlog or new_sprint)")
	cmd.Flags().StringVar(&next, "next", "", "name of the new sprint for --to new_sprint")
	return cmd
}

// sprintArg returns the explicit sprint id or the project's active sprint.
func sprintArg(ctx context.Context, e engine.Engine, projectID string, args []string) (string, error) {
	if len(args) == 1 {
		return args[0], nil
	}
	active, err := e.ActiveSprint(ctx, projectID)
	if err != nil {
		return "", err
	}
	if active == nil {
		return "", fmt.Errorf("project %s has no active sprint", projectID)
	}
	return active.ID, nil
}

func renderAwards(awards []domain.ExperienceAward) {
	tw := newTable("Task", "User", "Specialization", "Points")
	for _, a := range awards {
		tw.AppendRow([]any{a.TaskID, a.UserID, a.Specialization, a.Points})
	}
	tw.Render()
}

func taskCmd() *cobra.Command {
	t := &cobra.Command{
		Use:   "task",
		Short: "Manage tasks",
		Long:  "Tasks move todo -> in_progress -> done. A task without a sprint sits in the backlog.",
	}
	t.AddCommand(taskCreateCmd())
	t.AddCommand(taskListCmd())
	t.AddCommand(taskUpdateCmd())
	t.AddCommand(taskDeleteCmd())
	t.AddCommand(taskBoardCmd())
	return t
}

// activeAlias lets --sprint active stand for the current sprint.
const activeAlias = "active"

func resolveSprintFlag(ctx context.Context, e engine.Engine, projectID, v string) (string, error) {
	if v != activeAlias {
		return v, nil
	}
	return sprintArg(ctx, e, projectID, nil)
}

func taskCreateCmd() *cobra.Command {
	var opts engine.TaskCreateOptions
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a task",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withProject(cmd.Context(), func(ctx context.Context, e engine.Engine, projectID string) error {
				actor, err := require(ctx, e, projectID, auth.PermTaskCreate)
				if err != nil {
					return err
				}
				opts.ProjectID = projectID
				opts.ActorID = actor
				if opts.SprintID, err = resolveSprintFlag(ctx, e, projectID, opts.SprintID); err != nil {
					return err
				}
				t, err := e.CreateTask(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	cmd.Flags().StringVar(&opts.Title, "title", "", "title")
	cmd.Flags().StringVar(&opts.Description, "description", "", "description")
	cmd.Flags().StringVar(&opts.Specialization, "specialization", "", "specialization tag")
	cmd.Flags().StringVar(&opts.AssigneeID, "assignee", "", "assignee user id")
	cmd.Flags().StringVar(&opts.SprintID, "sprint", "", "sprint id, or 'active' (default: backlog)")
	cmd.Flags().StringVar(&opts.StartDate, "start", "", "start date YYYY-MM-DD")
	cmd.Flags().StringVar(&opts.EndDate, "end", "", "end date YYYY-MM-DD")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func taskListCmd() *cobra.Command {
	var f repo.TaskFilters
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withProject(cmd.Context(), func(ctx context.Context, e engine.Engine, projectID string) error {
				f.ProjectID = projectID
				var err error
				if f.SprintID, err = resolveSprintFlag(ctx, e, projectID, f.SprintID); err != nil {
					return err
				}
				tasks, err := e.ListTasks(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(tasks)
				}
				renderTasks(tasks)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&f.SprintID, "sprint", "", "sprint id or 'active'")
	cmd.Flags().BoolVar(&f.Backlog, "backlog", false, "only backlog tasks")
	cmd.Flags().StringVar(&f.Status, "status", "", "status filter")
	cmd.Flags().StringVar(&f.AssigneeID, "assignee", "", "assignee filter")
	cmd.Flags().StringVar(&f.Specialization, "specialization", "", "specialization filter")
	cmd.Flags().IntVar(&f.Limit, "limit", 0, "max tasks")
	return cmd
}

func renderTasks(tasks []domain.Task) {
	tw := newTable("ID", "Title", "Status", "Assignee", "Specialization", "Sprint")
	for _, t := range tasks {
		tw.AppendRow([]any{t.ID, t.Title, t.Status, deref(t.AssigneeID), t.Specialization, deref(t.SprintID)})
	}
	tw.Render()
}

func taskUpdateCmd() *cobra.Command {
	var title, desc, spec, status, assignee, sprint, start, end string
	cmd := &cobra.Command{
		Use:   "update <task-id>",
		Short: "Update a task",
		Long:  "Pass --assignee \"\" to unassign and --sprint \"\" to send the task to the backlog.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withProject(cmd.Context(), func(ctx context.Context, e engine.Engine, projectID string) error {
				actor, err := require(ctx, e, projectID, auth.PermTaskUpdate)
				if err != nil {
					return err
				}
				sprintPtr := changed(cmd, "sprint", sprint)
				if sprintPtr != nil {
					resolved, err := resolveSprintFlag(ctx, e, projectID, *sprintPtr)
					if err != nil {
						return err
					}
					sprintPtr = &resolved
				}
				t, err := e.UpdateTask(ctx, engine.TaskUpdateOptions{
					ProjectID:      projectID,
					ID:             args[0],
					Title:          changed(cmd, "title", title),
					Description:    changed(cmd, "description", desc),
					Specialization: changed(cmd, "specialization", spec),
					Status:         changed(cmd, "status", status),
					Assign:         changed(cmd, "assignee", assignee),
					Sprint:         sprintPtr,
					StartDate:      changed(cmd, "start", start),
					EndDate:        changed(cmd, "end", end),
					ActorID:        actor,
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "title")
	cmd.Flags().StringVar(&desc, "description", "", "description")
	cmd.Flags().StringVar(&spec, "specialization", "", "specialization tag")
	cmd.Flags().StringVar(&status, "status", "", "todo, in_progress or done")
	cmd.Flags().StringVar(&assignee, "assignee", "", "assignee user id")
	cmd.Flags().StringVar(&sprint, "sprint", "", "sprint id or 'active'")
	cmd.Flags().StringVar(&start, "start", "", "start date YYYY-MM-DD")
	cmd.Flags().StringVar(&end, "end", "", "end date YYYY-MM-DD")
	return cmd
}

func taskDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <task-id>",
		Short: "Delete a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withProject(cmd.Context(), func(ctx context.Context, e engine.Engine, projectID string) error {
				actor, err := require(ctx, e, projectID, auth.PermTaskDelete)
				if err != nil {
					return err
				}
				if err := e.DeleteTask(ctx, projectID, args[0], actor); err != nil {
					return err
				}
				fmt.Printf("Deleted task %s\n", args[0])
				return nil
			})
		},
	}
	return cmd
}

func taskBoardCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "board",
		Short: "Show sprint, backlog and completed views",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withProject(cmd.Context(), func(ctx context.Context, e engine.Engine, projectID string) error {
				b, err := e.Board(ctx, projectID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(b)
				}
				if b.ActiveSprint != nil {
					fmt.Printf("Sprint %s: %d todo, %d in progress, %d done\n", b.ActiveSprint.Name,
						len(b.Columns.Todo), len(b.Columns.InProgress), len(b.Columns.Done))
					renderTasks(b.Sprint)
				} else {
					fmt.Println("No active sprint")
				}
				fmt.Printf("Backlog (%d)\n", len(b.Backlog))
				renderTasks(b.Backlog)
				fmt.Printf("Completed (%d)\n", len(b.Completed))
				renderTasks(b.Completed)
				return nil
			})
		},
	}
	return cmd
}
