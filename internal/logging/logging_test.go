package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestOpenLogFile_Empty(t *testing.T) {
	file, err := OpenLogFile("")
	require.NoError(t, err)
	require.Nil(t, file)
}

func TestConfigure_TeesIntoFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "pos.log")
	file, err := OpenLogFile(path)
	require.NoError(t, err)

	core, console := observer.New(zap.DebugLevel)
	logger := Configure(zap.New(core), file, false)

	logger.Info("kept in file only")
	logger.Warn("shown everywhere")
	logger.Debug("dropped")
	require.NoError(t, logger.Sync())
	require.NoError(t, file.Close())

	require.Equal(t, 1, console.Len())
	require.Equal(t, "shown everywhere", console.All()[0].Message)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), "kept in file only")
	require.Contains(t, string(data), "shown everywhere")
	require.NotContains(t, string(data), "dropped")
}

func TestConfigure_Debug(t *testing.T) {
	core, console := observer.New(zap.DebugLevel)
	logger := Configure(zap.New(core), nil, true)

	logger.Debug("visible")
	require.Equal(t, 1, console.Len())
}
