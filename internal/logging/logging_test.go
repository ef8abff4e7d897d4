package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, Config{}.Validate())
	assert.NoError(t, Config{Level: "DEBUG", Format: "console"}.Validate())
	assert.Error(t, Config{Level: "loud"}.Validate())
	assert.Error(t, Config{Format: "xml"}.Validate())
}

func TestNewWritesRotatedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "teamline.log")
	logger, err := New(Config{Level: "info", File: path})
	require.NoError(t, err)
	logger.Info("sprint closed", zap.String("sprint_id", "s1"))
	logger.Debug("hidden")
	_ = logger.Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "sprint closed")
	assert.Contains(t, string(data), `"sprint_id":"s1"`)
	assert.NotContains(t, string(data), "hidden")
}

func TestNewObserved(t *testing.T) {
	logger, logs := NewObserved()
	logger.Warn("relay publish failed", zap.Int64("event_id", 4))
	entries := logs.FilterMessage("relay publish failed").All()
	require.Len(t, entries, 1)
	assert.Equal(t, int64(4), entries[0].ContextMap()["event_id"])
}
