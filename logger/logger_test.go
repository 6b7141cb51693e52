package logger

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/YewRongDe/HTR/config"
)

func TestNew(t *testing.T) {
	l := New(config.LogConfig{Debug: true})
	require.NotNil(t, l)
	assert.True(t, l.Core().Enabled(zapcore.DebugLevel))

	l = New(config.LogConfig{})
	assert.False(t, l.Core().Enabled(zapcore.DebugLevel))
	assert.True(t, l.Core().Enabled(zapcore.InfoLevel))
}

func TestNewWithSyncers(t *testing.T) {
	var low, high bytes.Buffer
	l := NewWithSyncers(zap.NewProductionEncoderConfig(),
		zapcore.AddSync(&low), zapcore.AddSync(&high),
		zapcore.InfoLevel, zapcore.WarnLevel)

	l.Info("trained", zap.Int("step", 3))
	l.Warn("sink failed")
	require.NoError(t, l.Sync())

	lines := strings.Split(strings.TrimSpace(low.String()), "\n")
	require.Len(t, lines, 2)
	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "trained", entry["msg"])
	assert.Equal(t, float64(3), entry["step"])
	assert.True(t, strings.Contains(high.String(), "sink failed"))
}
