package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestNew_Levels(t *testing.T) {
	l, err := New(Options{Level: "warn"})
	require.NoError(t, err)
	assert.False(t, l.Core().Enabled(zapcore.InfoLevel))
	assert.True(t, l.Core().Enabled(zapcore.WarnLevel))

	l, err = New(Options{})
	require.NoError(t, err)
	assert.True(t, l.Core().Enabled(zapcore.InfoLevel))
	assert.False(t, l.Core().Enabled(zapcore.DebugLevel))

	_, err = New(Options{Level: "loud"})
	assert.Error(t, err)

	_, err = New(Options{Format: "xml"})
	assert.Error(t, err)
}

func TestInit_FileSink(t *testing.T) {
	saved := L
	t.Cleanup(func() { L = saved })

	path := filepath.Join(t.TempDir(), "heapkit.log")
	require.NoError(t, Init(Options{Level: "debug", Format: "json", Filename: path, MaxSize: 1}))

	Named("tree").Debug("grow", zap.Uint64("bytes", 8192))
	Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"logger":"tree"`)
	assert.Contains(t, string(data), `"bytes":8192`)
}
