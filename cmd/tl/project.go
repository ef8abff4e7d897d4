package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"teamline/internal/app"
	"teamline/internal/config"
	"teamline/internal/domain"
	"teamline/internal/engine"
	"teamline/internal/engine/auth"
)

func projectCmd() *cobra.Command {
	prj := &cobra.Command{Use: "project", Short: "Manage projects"}
	prj.AddCommand(projectCreateCmd())
	prj.AddCommand(projectListCmd())
	prj.AddCommand(projectShowCmd())
	prj.AddCommand(projectUpdateCmd())
	prj.AddCommand(projectCompleteCmd())
	prj.AddCommand(projectUseCmd())
	prj.AddCommand(projectConfigCmd())
	return prj
}

func projectCreateCmd() *cobra.Command {
	var name, desc string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a project; you become its manager",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := e.CreateProject(ctx, name, desc, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "project name")
	cmd.Flags().StringVar(&desc, "description", "", "description")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func projectListCmd() *cobra.Command {
	var mine bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List projects",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				member := ""
				if mine {
					member = viper.GetString("actor-id")
				}
				items, err := e.ListProjects(ctx, member)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable("ID", "Name", "Status", "Created by", "Created at")
				for _, p := range items {
					tw.AppendRow([]any{p.ID, p.Name, p.Status, p.CreatedBy, p.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&mine, "mine", false, "only projects the actor belongs to")
	return cmd
}

func projectShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show a project with its active sprint and task counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withProject(cmd.Context(), func(ctx context.Context, e engine.Engine, projectID string) error {
				p, err := e.GetProject(ctx, projectID)
				if err != nil {
					return err
				}
				active, err := e.ActiveSprint(ctx, projectID)
				if err != nil {
					return err
				}
				counts, err := e.Repo.CountTasksByStatus(ctx, projectID)
				if err != nil {
					return err
				}
				out := map[string]any{
					"project":       p,
					"active_sprint": active,
					"task_counts":   counts,
				}
				if viper.GetBool("json") {
					return printJSON(out)
				}
				fmt.Printf("Project: %s (%s) [%s]\n", p.Name, p.ID, p.Status)
				if p.Description != "" {
					fmt.Printf("  %s\n", p.Description)
				}
				if active != nil {
					fmt.Printf("Active sprint: %s (%s)\n", active.Name, active.ID)
				} else {
					fmt.Println("Active sprint: none")
				}
				fmt.Println("Tasks:")
				for _, status := range []string{domain.TaskTodo, domain.TaskInProgress, domain.TaskDone} {
					fmt.Printf("  %s: %d\n", status, counts[status])
				}
				return nil
			})
		},
	}
	return cmd
}

func projectUpdateCmd() *cobra.Command {
	var name, desc string
	cmd := &cobra.Command{
		Use:   "update",
		Short: "Rename a project or change its description",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withProject(cmd.Context(), func(ctx context.Context, e engine.Engine, projectID string) error {
				actor, err := require(ctx, e, projectID, auth.PermProjectUpdate)
				if err != nil {
					return err
				}
				p, err := e.UpdateProject(ctx, projectID, engine.ProjectUpdate{
					Name:        changed(cmd, "name", name),
					Description: changed(cmd, "description", desc),
				}, actor)
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "new name")
	cmd.Flags().StringVar(&desc, "description", "", "new description")
	return cmd
}

func projectCompleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "complete",
		Short: "Mark the project completed",
		Long:  "Completing a project leaves its active sprint untouched; close the sprint separately.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withProject(cmd.Context(), func(ctx context.Context, e engine.Engine, projectID string) error {
				actor, err := require(ctx, e, projectID, auth.PermProjectComplete)
				if err != nil {
					return err
				}
				p, err := e.CompleteProject(ctx, projectID, actor)
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	return cmd
}

func projectUseCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "use <id>",
		Short: "Set the default project for this workspace",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			projectID := strings.TrimSpace(args[0])
			if projectID == "" {
				return fmt.Errorf("project id is required")
			}
			if err := withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				_, err := e.GetProject(ctx, projectID)
				return err
			}); err != nil {
				return err
			}
			workspace := viper.GetString("workspace")
			if err := app.SetEnvValue(app.EnvPath(workspace), app.DefaultProjectKey, projectID); err != nil {
				return err
			}
			fmt.Printf("Set %s=%s in %s\n", app.DefaultProjectKey, projectID, app.EnvPath(workspace))
			return nil
		},
	}
	return cmd
}

func projectConfigCmd() *cobra.Command {
	cfg := &cobra.Command{
		Use:   "config",
		Short: "Manage project config",
	}
	cfg.AddCommand(projectConfigShowCmd())
	cfg.AddCommand(projectConfigImportCmd())
	return cfg
}

func projectConfigShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the project config stored in the DB",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withProject(cmd.Context(), func(ctx context.Context, e engine.Engine, projectID string) error {
				cfg, err := e.ProjectConfig(ctx, projectID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(cfg)
				}
				out, err := cfg.YAML()
				if err != nil {
					return err
				}
				fmt.Print(string(out))
				return nil
			})
		},
	}
	return cmd
}

func projectConfigImportCmd() *cobra.Command {
	var filePath string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import project config from YAML into the DB",
		RunE: func(cmd *cobra.Command, args []string) error {
			if filePath == "" {
				filePath = config.Path(viper.GetString("workspace"))
			}
			cfg, err := config.FromFile(filePath)
			if err != nil {
				return err
			}
			return withProject(cmd.Context(), func(ctx context.Context, e engine.Engine, projectID string) error {
				actor, err := require(ctx, e, projectID, auth.PermProjectUpdate)
				if err != nil {
					return err
				}
				if err := e.ImportConfig(ctx, projectID, cfg, actor); err != nil {
					return err
				}
				return printJSONOrTable(cfg)
			})
		},
	}
	cmd.Flags().StringVar(&filePath, "file", "", "path to YAML config (default <workspace>/teamline.yml)")
	return cmd
}

func memberCmd() *cobra.Command {
	m := &cobra.Command{Use: "member", Short: "Manage project members"}
	m.AddCommand(memberAddCmd())
	m.AddCommand(memberListCmd())
	m.AddCommand(memberRemoveCmd())
	return m
}

func memberAddCmd() *cobra.Command {
	var role string
	cmd := &cobra.Command{
		Use:   "add <user>",
		Short: "Add a member or change their role",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withProject(cmd.Context(), func(ctx context.Context, e engine.Engine, projectID string) error {
				actor, err := require(ctx, e, projectID, auth.PermMemberManage)
				if err != nil {
					return err
				}
				m, err := e.AddMember(ctx, projectID, args[0], role, actor)
				if err != nil {
					return err
				}
				return printJSONOrTable(m)
			})
		},
	}
	cmd.Flags().StringVar(&role, "role", domain.RoleMember, "role (manager or member)")
	return cmd
}

func memberListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List members and their open tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withProject(cmd.Context(), func(ctx context.Context, e engine.Engine, projectID string) error {
				items, err := e.ListMembers(ctx, projectID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable("User", "Role", "Open tasks", "Joined")
				for _, m := range items {
					tw.AppendRow([]any{m.UserID, m.Role, m.OpenTasks, m.JoinedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func memberRemoveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "remove <user>",
		Short: "Remove a member; their tasks become unassigned",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withProject(cmd.Context(), func(ctx context.Context, e engine.Engine, projectID string) error {
				actor, err := require(ctx, e, projectID, auth.PermMemberManage)
				if err != nil {
					return err
				}
				if err := e.RemoveMember(ctx, projectID, args[0], actor); err != nil {
					return err
				}
				fmt.Printf("Removed %s from %s\n", args[0], projectID)
				return nil
			})
		},
	}
	return cmd
}
