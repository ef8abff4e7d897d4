package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"teamline/internal/engine"
	"teamline/internal/repo"
)

func TestResolveProject(t *testing.T) {
	ctx := context.Background()
	conn, err := Open(ctx, t.TempDir())
	require.NoError(t, err)
	defer conn.Close()
	r := repo.Repo{DB: conn}
	e := engine.New(conn, nil)

	_, err = ResolveProject(ctx, r)
	assert.ErrorContains(t, err, "no project")

	first, err := e.CreateProject(ctx, "Apollo", "", "mgr")
	require.NoError(t, err)
	id, err := ResolveProject(ctx, r, "", "")
	require.NoError(t, err)
	assert.Equal(t, first.ID, id)

	second, err := e.CreateProject(ctx, "Gemini", "", "mgr")
	require.NoError(t, err)
	_, err = ResolveProject(ctx, r)
	assert.ErrorContains(t, err, DefaultProjectKey)

	id, err = ResolveProject(ctx, r, "", second.ID)
	require.NoError(t, err)
	assert.Equal(t, second.ID, id)

	_, err = ResolveProject(ctx, r, "missing")
	assert.ErrorContains(t, err, "not found")
}

func TestSetEnvValueKeepsOtherKeys(t *testing.T) {
	dir := t.TempDir()
	path := EnvPath(dir)
	require.NoError(t, os.WriteFile(path, []byte("TEAMLINE_ACTOR_ID=alice\n"), 0o644))

	require.NoError(t, SetEnvValue(path, DefaultProjectKey, "p1"))
	require.NoError(t, SetEnvValue(path, DefaultProjectKey, "p2"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "TEAMLINE_ACTOR_ID")
	assert.Contains(t, string(data), "p2")
	assert.NotContains(t, string(data), "p1")
}

func TestLoadEnvDoesNotOverride(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("TEAMLINE_TEST_A=file\nTEAMLINE_TEST_B=file\n"), 0o644))
	t.Setenv("TEAMLINE_TEST_A", "process")
	t.Setenv("TEAMLINE_TEST_B", "")
	os.Unsetenv("TEAMLINE_TEST_B")

	require.NoError(t, LoadEnv(dir))
	assert.Equal(t, "process", os.Getenv("TEAMLINE_TEST_A"))
	assert.Equal(t, "file", os.Getenv("TEAMLINE_TEST_B"))

	assert.NoError(t, LoadEnv(t.TempDir()))
}
