package logging

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNewLoggerLevels(t *testing.T) {
	logger, err := NewLogger("warn", "json")
	require.NoError(t, err)
	require.False(t, logger.Core().Enabled(zapcore.InfoLevel))
	require.True(t, logger.Core().Enabled(zapcore.ErrorLevel))

	logger, err = NewLogger("DEBUG", "console")
	require.NoError(t, err)
	require.True(t, logger.Core().Enabled(zapcore.DebugLevel))
}

func TestNewLoggerRejectsBadSettings(t *testing.T) {
	_, err := NewLogger("loud", "json")
	require.Error(t, err)

	_, err = NewLogger("info", "xml")
	require.Error(t, err)
}

func TestParseLevelDefaultsToInfo(t *testing.T) {
	lvl, err := ParseLevel("  ")
	require.NoError(t, err)
	require.Equal(t, zapcore.InfoLevel, lvl)

	lvl, err = ParseLevel("Error")
	require.NoError(t, err)
	require.Equal(t, zapcore.ErrorLevel, lvl)
}
