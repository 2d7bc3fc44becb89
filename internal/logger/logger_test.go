package logger_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/tesseralabs/tessera-api/internal/logger"
)

func TestInitLogger_LevelFromEnv(t *testing.T) {
	t.Setenv("LOG_LEVEL", "error")
	logger.InitLogger()
	require.NotNil(t, logger.Log)

	assert.False(t, logger.Log.Core().Enabled(zapcore.InfoLevel))
	assert.True(t, logger.Log.Core().Enabled(zapcore.ErrorLevel))
}

func TestInitLogger_DefaultDevelopmentLevel(t *testing.T) {
	t.Setenv("LOG_LEVEL", "")
	t.Setenv("GIN_MODE", "")
	logger.InitLogger()
	require.NotNil(t, logger.Log)

	assert.True(t, logger.Log.Core().Enabled(zapcore.DebugLevel))
}

func TestInitLogger_UnparsableLevelKeepsDefault(t *testing.T) {
	t.Setenv("LOG_LEVEL", "loud")
	t.Setenv("GIN_MODE", "")
	logger.InitLogger()
	require.NotNil(t, logger.Log)

	assert.True(t, logger.Log.Core().Enabled(zapcore.DebugLevel))
}
