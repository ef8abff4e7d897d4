package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"teamline/internal/app"
	"teamline/internal/engine"
	"teamline/internal/engine/auth"
	"teamline/internal/logging"
)

var rootCmd = &cobra.Command{
	Use:   "tl",
	Short: "Teamline CLI",
	Long: `Teamline runs sprints for small teams and rewards finished work with experience.
Core concepts:
- Workspace: the .teamline directory holding the database.
- Project: owns members, sprints and tasks. Its creator is the first manager.
- Sprint: at most one is active per project. Closing it awards experience for
  every done task and sends unfinished work to the backlog or a new sprint.
- Task: todo -> in_progress -> done, optionally tagged with a specialization.
- Experience: points per specialization; every 100 points is a level.
- Event log: everything that changed, view with 'tl log tail'.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return app.LoadEnv(viper.GetString("workspace"))
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		stop()
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("TEAMLINE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	flags := rootCmd.PersistentFlags()
	flags.StringP("workspace", "w", ".", "workspace directory")
	flags.Bool("json", false, "output JSON")
	flags.String("actor-id", "local-user", "actor identifier")
	flags.String("project", "", "project id (overrides the workspace default)")
	flags.String("log-level", "warn", "log level (debug, info, warn, error)")
	flags.String("log-format", "console", "log format (console or json)")
	flags.String("log-file", "", "also write JSON logs to this rotating file")
	for _, name := range []string{"workspace", "json", "actor-id", "project", "log-level", "log-format", "log-file"} {
		_ = viper.BindPFlag(name, flags.Lookup(name))
	}
}

func registerCommands() {
	rootCmd.AddCommand(projectCmd())
	rootCmd.AddCommand(memberCmd())
	rootCmd.AddCommand(sprintCmd())
	rootCmd.AddCommand(taskCmd())
	rootCmd.AddCommand(expCmd())
	rootCmd.AddCommand(rankCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(apikeyCmd())
	rootCmd.AddCommand(tokenCmd())
	rootCmd.AddCommand(serveCmd())
}

// --- helpers ---

func newLogger() (*zap.Logger, error) {
	cfg := logging.Config{
		Level:  viper.GetString("log-level"),
		Format: viper.GetString("log-format"),
		File:   viper.GetString("log-file"),
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return logging.New(cfg)
}

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	logger, err := newLogger()
	if err != nil {
		return err
	}
	defer logger.Sync()
	conn, err := app.Open(ctx, viper.GetString("workspace"))
	if err != nil {
		return err
	}
	defer conn.Close()
	return fn(ctx, engine.New(conn, logger))
}

// withProject resolves the target project before running fn.
func withProject(ctx context.Context, fn func(context.Context, engine.Engine, string) error) error {
	return withEngine(ctx, func(ctx context.Context, e engine.Engine) error {
		projectID, err := app.ResolveProject(ctx, e.Repo, viper.GetString("project"), viper.GetString("default-project"))
		if err != nil {
			return err
		}
		return fn(ctx, e, projectID)
	})
}

// require checks that the CLI actor holds perm in the project and returns the
// actor id.
func require(ctx context.Context, e engine.Engine, projectID, perm string) (string, error) {
	actorID := strings.TrimSpace(viper.GetString("actor-id"))
	if actorID == "" {
		return "", errors.New("--actor-id is required")
	}
	if err := (auth.Service{Repo: e.Repo}).Require(ctx, projectID, actorID, perm); err != nil {
		return "", fmt.Errorf("%s: %w", actorID, err)
	}
	return actorID, nil
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newTable(header ...any) table.Writer {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row(header))
	return tw
}

func deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

// changed returns a pointer to v when the flag was set on the command line.
func changed(cmd *cobra.Command, flag, v string) *string {
	if !cmd.Flags().Changed(flag) {
		return nil
	}
	return &v
}
