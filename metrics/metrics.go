// Package metrics records training progress.
package metrics

import (
	"context"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// A Point is the outcome of one training step.
type Point struct {
	Step int
	Loss float64
	Rate float64
}

// A Sink receives training points.
type Sink interface {
	Record(ctx context.Context, p Point) error
}

// LogSink writes points to a logger at info level.
type LogSink struct {
	Logger *zap.Logger
}

// Record logs the point.
func (l *LogSink) Record(ctx context.Context, p Point) error {
	l.Logger.Info("training step",
		zap.Int("step", p.Step),
		zap.Float64("loss", p.Loss),
		zap.Float64("rate", p.Rate))
	return nil
}

// Multi sends every point to all of its sinks.
type Multi []Sink

// Record records to every sink, even when some fail, and
// combines their errors.
func (m Multi) Record(ctx context.Context, p Point) error {
	var err error
	for _, s := range m {
		err = multierr.Append(err, s.Record(ctx, p))
	}
	return err
}

// Discard is a Sink which drops every point.
type Discard struct{}

// Record does nothing.
func (Discard) Record(ctx context.Context, p Point) error {
	return nil
}
