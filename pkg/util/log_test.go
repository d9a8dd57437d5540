package util

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLoggerWithFileWritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "server.log")

	logger, err := NewLoggerWithFile(path)
	require.NoError(t, err)

	logger.Sugar().Infow("server starting", "addr", ":8080")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "server starting")
	assert.Contains(t, string(data), `"addr":":8080"`)
}

func TestNewLoggerWithFileCreatesParentDir(t *testing.T) {
	base := t.TempDir()
	path := filepath.Join(base, "deep", "nested", "node.log")

	logger, err := NewLoggerWithFile(path)
	require.NoError(t, err)
	logger.Sugar().Infow("hello")

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.False(t, info.IsDir())
}
