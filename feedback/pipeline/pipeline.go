// Package pipeline runs the streaming band-power chain for one channel.
//
// Each Tick pulls at most one shift worth of samples from a source, filters
// them with state carried from the previous tick, appends them to a sliding
// buffer, estimates band powers of the newest epoch, smooths them over
// recent epochs and evaluates the protocol ratio against a debounced
// threshold. All state belongs to the Pipeline and Tick never starts
// goroutines.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/google/uuid"

	"github.com/cwbudde/algo-neurofeedback/dsp/buffer"
	"github.com/cwbudde/algo-neurofeedback/dsp/filter/biquad"
	"github.com/cwbudde/algo-neurofeedback/dsp/spectrum"
	"github.com/cwbudde/algo-neurofeedback/feedback/history"
	"github.com/cwbudde/algo-neurofeedback/feedback/metric"
	"github.com/cwbudde/algo-neurofeedback/source"
)

// Output is the result of one tick.
type Output struct {
	Session uuid.UUID `json:"session"`
	Tick    uint64    `json:"tick"`

	// Metric is the protocol ratio of the smoothed powers.
	Metric float64 `json:"metric"`
	// Triggered is true for the single tick on which the threshold fired.
	Triggered bool         `json:"triggered"`
	State     metric.State `json:"-"`
	StateName string       `json:"state"`

	// Stale marks a tick that received no samples and repeats the
	// previous result.
	Stale bool `json:"stale,omitempty"`
	// Degenerate marks a tick whose denominator power was below the ratio
	// floor; Metric carries the previous value.
	Degenerate bool `json:"degenerate,omitempty"`

	Powers    spectrum.Powers `json:"powers"`
	Samples   int             `json:"samples"`
	Timestamp float64         `json:"timestamp"`
	Warm      bool            `json:"warm"`
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger. The default discards all records.
func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithSessionID sets the session identifier stamped on every Output. The
// default is a random UUID.
func WithSessionID(id uuid.UUID) Option {
	return func(p *Pipeline) { p.session = id }
}

// Pipeline is the per-channel processing state. It is not safe for
// concurrent use; independent pipelines share nothing.
type Pipeline struct {
	cfg     Config
	fs      float64
	sz      sizes
	src     source.Source
	info    source.Info
	logger  *slog.Logger
	session uuid.UUID

	cascade *biquad.Cascade
	fstate  biquad.State
	buf     *buffer.Sliding
	epoch   []float64
	est     *spectrum.BandEstimator
	hist    *history.History
	eval    *metric.Evaluator

	last       Output
	metric     float64
	tick       uint64
	degenerate bool
}

// New checks src against cfg and builds a pipeline. It fails with
// source.ErrSourceUnavailable when src is missing or incompatible and with
// ErrInvalidConfig for unusable settings.
func New(cfg Config, src source.Source, opts ...Option) (*Pipeline, error) {
	if src == nil {
		return nil, fmt.Errorf("%w: no source", source.ErrSourceUnavailable)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	info := src.Info()

	switch {
	case info.Type != source.TypeEEG:
		return nil, fmt.Errorf("%w: stream %q has type %q, want %q", source.ErrSourceUnavailable, info.Name, info.Type, source.TypeEEG)
	case cfg.Channel >= info.Channels:
		return nil, fmt.Errorf("%w: channel %d not in stream %q with %d channels", source.ErrSourceUnavailable, cfg.Channel, info.Name, info.Channels)
	case !(info.SampleRate > 0) || math.IsInf(info.SampleRate, 0):
		return nil, fmt.Errorf("%w: stream %q has no usable nominal rate", source.ErrSourceUnavailable, info.Name)
	case cfg.SampleRate > 0 && cfg.SampleRate != info.SampleRate:
		return nil, fmt.Errorf("%w: stream %q runs at %g Hz, want %g Hz", source.ErrSourceUnavailable, info.Name, info.SampleRate, cfg.SampleRate)
	}

	fs := info.SampleRate

	sz, err := cfg.sizes(fs)
	if err != nil {
		return nil, err
	}

	cascade, err := cfg.designFilter(fs)
	if err != nil {
		return nil, err
	}

	estOpts := []spectrum.EstimatorOption{
		spectrum.WithBands(cfg.Bands),
		spectrum.WithWindow(cfg.Window),
	}
	if cfg.Relative {
		estOpts = append(estOpts, spectrum.WithRelative())
	}

	est, err := spectrum.NewBandEstimator(fs, sz.epoch, estOpts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	hist, err := history.New(sz.window)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	eval, err := metric.NewEvaluator(cfg.Threshold, cfg.RequiredCount())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	p := &Pipeline{
		cfg:     cfg,
		fs:      fs,
		sz:      sz,
		src:     src,
		info:    info,
		logger:  slog.New(slog.DiscardHandler),
		session: uuid.New(),
		cascade: cascade,
		buf:     buffer.NewSliding(sz.buffer),
		epoch:   make([]float64, sz.epoch),
		est:     est,
		hist:    hist,
		eval:    eval,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	p.logger = p.logger.With("session", p.session.String(), "stream", info.Name)
	p.last = p.initialOutput()

	if center, ok := cfg.Filter.stopCenter(); ok {
		p.logger.Info("mains filter", "center_hz", center, "attenuation_db", -cascade.MagnitudeDB(center, fs))
	}

	p.logger.Info("pipeline ready",
		"sample_rate", fs,
		"buffer_samples", sz.buffer,
		"epoch_samples", sz.epoch,
		"shift_samples", sz.shift,
		"history", sz.window,
		"filter_sections", cascade.NumSections(),
		"protocol", cfg.Protocol.String(),
		"required", eval.Required(),
	)

	return p, nil
}

func historyWindows(c Config) int {
	return history.WindowCount(c.BufferLength, c.EpochLength, c.ShiftLength)
}

// Tick runs one pull-filter-estimate-evaluate step.
//
// A pull that yields no samples of the configured channel leaves all state
// untouched and returns the previous output marked Stale. Pull errors are
// returned wrapped together with a Stale output; the pipeline remains
// usable.
func (p *Pipeline) Tick(ctx context.Context) (Output, error) {
	p.tick++

	chunk, err := p.src.Pull(ctx, p.cfg.PullTimeout, p.sz.shift)
	if err != nil {
		return p.stale(), fmt.Errorf("pipeline: pull: %w", err)
	}

	samples, stamps, ragged := source.Channel(chunk, p.cfg.Channel)
	if ragged > 0 {
		p.logger.Warn("skipped rows without configured channel", "rows", ragged, "channel", p.cfg.Channel)
	}

	if len(samples) == 0 {
		p.logger.Debug("empty chunk", "tick", p.tick)
		return p.stale(), nil
	}

	filtered, next := p.cascade.Apply(samples, p.fstate)
	p.fstate = next
	p.buf.Push(filtered)

	if err := p.buf.TailInto(p.epoch); err != nil {
		return p.stale(), fmt.Errorf("pipeline: epoch: %w", err)
	}

	powers, err := p.est.Estimate(p.epoch)
	if err != nil {
		return p.stale(), fmt.Errorf("pipeline: estimate: %w", err)
	}

	p.hist.Push(powers)
	smoothed := p.hist.Mean()

	value, ok := p.cfg.Protocol.Ratio(smoothed, p.cfg.RatioFloor)
	if !ok {
		if !p.degenerate {
			p.logger.Warn("degenerate ratio, holding previous metric",
				"protocol", p.cfg.Protocol.String(), "metric", p.metric)
		}
		value = p.metric
	} else if p.degenerate {
		p.logger.Info("ratio recovered", "metric", value)
	}
	p.degenerate = !ok
	p.metric = value

	// A held metric is shown but never counted towards a trigger.
	triggered := false
	if ok {
		triggered = p.eval.Update(value)
	} else {
		p.eval.Interrupt()
	}
	if triggered {
		p.logger.Info("threshold sustained", "metric", value, "threshold", p.cfg.Threshold, "triggers", p.eval.Triggers())
	}

	out := Output{
		Session:    p.session,
		Tick:       p.tick,
		Metric:     value,
		Triggered:  triggered,
		State:      p.eval.State(),
		StateName:  p.eval.State().String(),
		Degenerate: !ok,
		Powers:     smoothed,
		Samples:    len(samples),
		Timestamp:  p.last.Timestamp,
		Warm:       p.buf.Filled(),
	}
	if len(stamps) > 0 {
		out.Timestamp = stamps[len(stamps)-1]
	}

	p.logger.Debug("tick",
		"tick", p.tick,
		"samples", len(samples),
		"metric", value,
		"state", out.StateName,
		"count", p.eval.Count(),
	)

	p.last = out

	return out, nil
}

func (p *Pipeline) stale() Output {
	out := p.last
	out.Tick = p.tick
	out.Triggered = false
	out.Stale = true
	out.Samples = 0
	return out
}

func (p *Pipeline) initialOutput() Output {
	return Output{
		Session:   p.session,
		State:     metric.Idle,
		StateName: metric.Idle.String(),
	}
}

// Reset clears all signal state and starts a new session with a fresh
// identifier. The configuration and source are kept.
func (p *Pipeline) Reset() {
	p.fstate = nil
	p.buf.Reset()
	p.hist.Reset()
	p.eval.Reset()
	p.metric = 0
	p.tick = 0
	p.degenerate = false
	p.session = uuid.New()
	p.last = p.initialOutput()
}

// Session returns the current session identifier.
func (p *Pipeline) Session() uuid.UUID { return p.session }

// Config returns the configuration with SampleRate resolved.
func (p *Pipeline) Config() Config {
	c := p.cfg
	c.SampleRate = p.fs
	return c
}

// SourceInfo returns the description of the attached stream.
func (p *Pipeline) SourceInfo() source.Info { return p.info }

// Estimator exposes the band estimator, mainly for reporting bin ranges.
func (p *Pipeline) Estimator() *spectrum.BandEstimator { return p.est }

// Required returns the number of consecutive above-threshold ticks needed
// to fire.
func (p *Pipeline) Required() int { return p.eval.Required() }

// ShiftSamples returns the maximum number of samples pulled per tick.
func (p *Pipeline) ShiftSamples() int { return p.sz.shift }

// HistoryLength returns the number of epochs averaged once warm.
func (p *Pipeline) HistoryLength() int { return p.sz.window }
