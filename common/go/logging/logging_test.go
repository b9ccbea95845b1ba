package logging

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	level, err := ParseLevel("debug")
	require.NoError(t, err)
	require.Equal(t, zapcore.DebugLevel, level)

	level, err = ParseLevel("WARN")
	require.NoError(t, err)
	require.Equal(t, zapcore.WarnLevel, level)

	_, err = ParseLevel("fatal")
	require.Error(t, err)

	_, err = ParseLevel("verbose")
	require.Error(t, err)
}

func TestInit(t *testing.T) {
	cfg := DefaultConfig()
	log, level, err := Init(&cfg)
	require.NoError(t, err)
	require.NotNil(t, log)
	require.Equal(t, zapcore.InfoLevel, level.Level())

	level.SetLevel(zapcore.DebugLevel)
	require.True(t, log.Desugar().Core().Enabled(zapcore.DebugLevel))
}
