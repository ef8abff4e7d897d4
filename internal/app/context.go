// Package app holds the workspace plumbing shared by the CLI commands.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"

	"teamline/internal/db"
	"teamline/internal/migrate"
	"teamline/internal/repo"
)

// DefaultProjectKey is the .env key written by `tl project use`.
const DefaultProjectKey = "TEAMLINE_DEFAULT_PROJECT"

// EnvPath returns the .env file of a workspace.
func EnvPath(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, ".env")
}

// LoadEnv exports the workspace .env into the process environment. Variables
// already set win. A missing file is not an error.
func LoadEnv(workspace string) error {
	path := EnvPath(workspace)
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// SetEnvValue writes key=value into the .env file at path, keeping other keys.
func SetEnvValue(path, key, value string) error {
	values := map[string]string{}
	if _, err := os.Stat(path); err == nil {
		existing, err := godotenv.Read(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		values = existing
	} else if !errors.Is(err, os.ErrNotExist) {
		return err
	}
	values[key] = value
	return godotenv.Write(values, path)
}

// Open prepares the workspace directory and returns a migrated database.
func Open(ctx context.Context, workspace string) (*sql.DB, error) {
	if _, err := db.EnsureWorkspace(workspace); err != nil {
		return nil, err
	}
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return nil, err
	}
	if _, err := migrate.MigrateContext(ctx, conn); err != nil {
		conn.Close()
		return nil, err
	}
	return conn, nil
}

// ResolveProject picks the project a command acts on: the first non-empty
// candidate (flag, then workspace default), otherwise the only project in the
// workspace.
func ResolveProject(ctx context.Context, r repo.Repo, candidates ...string) (string, error) {
	for _, c := range candidates {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		if _, err := r.GetProject(ctx, c); err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return "", fmt.Errorf("project %s not found", c)
			}
			return "", err
		}
		return c, nil
	}
	p, err := r.SingleProject(ctx)
	if errors.Is(err, repo.ErrNotFound) {
		return "", fmt.Errorf("no project in workspace; create one with tl project create --name <name>")
	}
	if err != nil {
		return "", fmt.Errorf("%w (or set %s with tl project use <id>)", err, DefaultProjectKey)
	}
	return p.ID, nil
}
