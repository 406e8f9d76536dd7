// Package sink delivers pipeline outputs to consumers.
package sink

import (
	"context"
	"errors"
	"log/slog"

	"github.com/cwbudde/algo-neurofeedback/feedback/pipeline"
)

// Sink consumes one output per tick. Publish must not block the tick loop
// for long; slow transports buffer or drop.
type Sink interface {
	Publish(ctx context.Context, out pipeline.Output) error
	Close() error
}

// Fanout publishes to every sink in order.
type Fanout []Sink

// Publish forwards out to all sinks and joins their errors.
func (f Fanout) Publish(ctx context.Context, out pipeline.Output) error {
	var errs []error
	for _, s := range f {
		if err := s.Publish(ctx, out); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close closes all sinks and joins their errors.
func (f Fanout) Close() error {
	var errs []error
	for _, s := range f {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Log writes outputs as structured log records: triggers at Info, every
// other tick at Debug.
type Log struct {
	Logger *slog.Logger
}

// Publish logs out.
func (l Log) Publish(ctx context.Context, out pipeline.Output) error {
	level := slog.LevelDebug
	msg := "tick"
	if out.Triggered {
		level = slog.LevelInfo
		msg = "trigger"
	}

	l.Logger.LogAttrs(ctx, level, msg,
		slog.Uint64("tick", out.Tick),
		slog.Float64("metric", out.Metric),
		slog.String("state", out.StateName),
		slog.Bool("stale", out.Stale),
		slog.Bool("degenerate", out.Degenerate),
	)

	return nil
}

// Close is a no-op.
func (Log) Close() error { return nil }
