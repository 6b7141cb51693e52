// Package logger builds the zap logger shared by the
// recognizer's components.
package logger

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/YewRongDe/HTR/config"
)

// New returns a JSON logger which writes info and debug
// entries to stdout and warnings and errors to stderr.
//
// Debug entries are only written when cfg.Debug is set,
// in which case the development encoder is used.
func New(cfg config.LogConfig) *zap.Logger {
	// debug and info level enabler
	lowLevel := zap.LevelEnablerFunc(func(level zapcore.Level) bool {
		if cfg.Debug {
			return level == zapcore.DebugLevel || level == zapcore.InfoLevel
		}
		return level == zapcore.InfoLevel
	})

	// warn, error and fatal level enabler
	highLevel := zap.LevelEnablerFunc(func(level zapcore.Level) bool {
		return level >= zapcore.WarnLevel
	})

	encoderConfig := zap.NewProductionEncoderConfig()
	if cfg.Debug {
		encoderConfig = zap.NewDevelopmentEncoderConfig()
	}

	return NewWithSyncers(encoderConfig, zapcore.Lock(os.Stdout), zapcore.Lock(os.Stderr),
		lowLevel, highLevel)
}

// NewWithSyncers builds a tee logger over two writers.
func NewWithSyncers(encoderConfig zapcore.EncoderConfig, low, high zapcore.WriteSyncer,
	lowLevel, highLevel zapcore.LevelEnabler) *zap.Logger {
	core := zapcore.NewTee(
		zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig), low, lowLevel),
		zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig), high, highLevel),
	)
	return zap.New(core)
}
