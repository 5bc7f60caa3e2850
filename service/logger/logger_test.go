package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/najoast/uboss/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestLoggerWritesLines(t *testing.T) {
	opts := core.DefaultNodeOptions()
	opts.Logger = zaptest.NewLogger(t)
	n := core.NewNode(opts)
	require.NoError(t, n.Modules().Register(Name, Module))

	path := filepath.Join(t.TempDir(), "uboss.log")
	ctx, err := n.Launch(Name, path)
	require.NoError(t, err)
	assert.Equal(t, ctx.Handle(), n.Handles().FindName("logger"))

	n.Error(nil, "hello %s", "world")
	ctx.DispatchAll()
	n.Abort()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, fmt.Sprintf("[%s] LAUNCH logger %s\n[:00000000] hello world\n", ctx.Handle(), path), string(data))
}

func TestLoggerBadPath(t *testing.T) {
	n := core.NewNode(core.DefaultNodeOptions())
	require.NoError(t, n.Modules().Register(Name, Module))

	_, err := n.Launch(Name, filepath.Join(t.TempDir(), "missing", "x.log"))
	assert.ErrorIs(t, err, core.ErrModuleInit)
	assert.Zero(t, n.Total())
}

func TestLoggerReopenOnSignal(t *testing.T) {
	n := core.NewNode(core.DefaultNodeOptions())
	require.NoError(t, n.Modules().Register(Name, Module))

	dir := t.TempDir()
	path := filepath.Join(dir, "uboss.log")
	ctx, err := n.Launch(Name, path)
	require.NoError(t, err)

	n.Error(nil, "before")
	ctx.DispatchAll()

	rotated := filepath.Join(dir, "uboss.log.1")
	require.NoError(t, os.Rename(path, rotated))
	assert.True(t, n.Signal(ctx.Handle(), 1))

	n.Error(nil, "after")
	ctx.DispatchAll()
	n.Abort()

	old, err := os.ReadFile(rotated)
	require.NoError(t, err)
	assert.Contains(t, string(old), "before")
	assert.NotContains(t, string(old), "after")

	cur, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(cur), "after")
}
