package pipeline

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/cwbudde/algo-neurofeedback/dsp/buffer"
	"github.com/cwbudde/algo-neurofeedback/dsp/core"
	"github.com/cwbudde/algo-neurofeedback/dsp/filter/biquad"
	"github.com/cwbudde/algo-neurofeedback/dsp/filter/design"
	"github.com/cwbudde/algo-neurofeedback/dsp/spectrum"
	"github.com/cwbudde/algo-neurofeedback/dsp/window"
	"github.com/cwbudde/algo-neurofeedback/feedback/metric"
)

// ErrInvalidConfig reports a configuration that cannot form a pipeline.
var ErrInvalidConfig = errors.New("pipeline: invalid config")

// FilterKind selects the mains rejection stage.
type FilterKind string

const (
	FilterNone     FilterKind = "none"
	FilterBandstop FilterKind = "bandstop"
	FilterNotch    FilterKind = "notch"
)

// FilterConfig describes the continuity filter. The mains stage is either a
// Butterworth bandstop of Order between LowHz and HighHz or a single notch at
// NotchHz. A positive HighpassHz adds a drift-removal section in front.
type FilterConfig struct {
	Kind FilterKind

	Order  int
	LowHz  float64
	HighHz float64

	NotchHz float64
	NotchQ  float64

	HighpassHz float64
	HighpassQ  float64
}

// Config holds everything a pipeline needs. Durations given as float64 are
// in seconds.
type Config struct {
	// SampleRate in Hz. Zero adopts the source's nominal rate; a non-zero
	// value must match it.
	SampleRate float64

	BufferLength float64
	EpochLength  float64
	// ShiftLength is the spacing of consecutive epochs and bounds the
	// number of samples pulled per tick.
	ShiftLength float64

	Channel  int
	Bands    spectrum.Bands
	Relative bool
	Window   window.Type
	Filter   FilterConfig

	Protocol   metric.Protocol
	RatioFloor float64
	Threshold  float64
	Sustain    time.Duration

	UpdatePeriod time.Duration
	PullTimeout  time.Duration
}

// DefaultConfig returns the beta/theta training setup: a 5 s buffer of 1 s
// epochs spaced 50 ms apart, a 55-65 Hz bandstop, and a trigger after the
// ratio stays above 3 for 3 s at a 100 ms update period.
func DefaultConfig() Config {
	return Config{
		BufferLength: 5,
		EpochLength:  1,
		ShiftLength:  0.05,
		Channel:      0,
		Bands:        spectrum.CanonicalBands,
		Window:       window.TypeHamming,
		Filter: FilterConfig{
			Kind:      FilterBandstop,
			Order:     4,
			LowHz:     55,
			HighHz:    65,
			NotchHz:   60,
			NotchQ:    30,
			HighpassQ: math.Sqrt2 / 2,
		},
		Protocol:     metric.BetaTheta,
		RatioFloor:   metric.DefaultRatioFloor,
		Threshold:    3,
		Sustain:      3 * time.Second,
		UpdatePeriod: 100 * time.Millisecond,
		PullTimeout:  time.Second,
	}
}

// ParseFilterKind resolves a filter kind name.
func ParseFilterKind(name string) (FilterKind, error) {
	switch k := FilterKind(strings.ToLower(strings.TrimSpace(name))); k {
	case FilterNone, FilterBandstop, FilterNotch:
		return k, nil
	case "":
		return FilterNone, nil
	default:
		return "", fmt.Errorf("%w: unknown filter %q", ErrInvalidConfig, name)
	}
}

// Validate checks the rate-independent parts of the configuration.
func (c Config) Validate() error {
	if c.SampleRate < 0 || math.IsNaN(c.SampleRate) || math.IsInf(c.SampleRate, 0) {
		return fmt.Errorf("%w: sample rate %g", ErrInvalidConfig, c.SampleRate)
	}

	if !(c.EpochLength > 0) || !(c.ShiftLength > 0) || !(c.BufferLength > 0) {
		return fmt.Errorf("%w: buffer %g s, epoch %g s and shift %g s must be > 0",
			ErrInvalidConfig, c.BufferLength, c.EpochLength, c.ShiftLength)
	}

	if c.EpochLength > c.BufferLength {
		return fmt.Errorf("%w: %w: epoch %g s exceeds buffer %g s",
			ErrInvalidConfig, buffer.ErrInsufficientLength, c.EpochLength, c.BufferLength)
	}

	if c.Channel < 0 {
		return fmt.Errorf("%w: channel %d", ErrInvalidConfig, c.Channel)
	}

	if err := c.Protocol.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	if err := c.Bands.Validate(0); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	if !core.IsFinite(c.Threshold) {
		return fmt.Errorf("%w: threshold %g", ErrInvalidConfig, c.Threshold)
	}

	if !(c.RatioFloor >= 0) {
		return fmt.Errorf("%w: ratio floor %g", ErrInvalidConfig, c.RatioFloor)
	}

	if c.Sustain < 0 || c.UpdatePeriod <= 0 || c.PullTimeout < 0 {
		return fmt.Errorf("%w: sustain %v, update period %v and pull timeout %v",
			ErrInvalidConfig, c.Sustain, c.UpdatePeriod, c.PullTimeout)
	}

	switch c.Filter.Kind {
	case FilterNone, FilterBandstop, FilterNotch, "":
	default:
		return fmt.Errorf("%w: unknown filter %q", ErrInvalidConfig, c.Filter.Kind)
	}

	return nil
}

// RequiredCount returns the number of consecutive above-threshold updates
// that fire a trigger.
func (c Config) RequiredCount() int {
	return metric.RequiredCount(c.Sustain, c.UpdatePeriod)
}

// sizes holds the sample counts derived from the configuration at rate fs.
type sizes struct {
	buffer int
	epoch  int
	shift  int
	window int
}

func (c Config) sizes(fs float64) (sizes, error) {
	s := sizes{
		buffer: core.Samples(c.BufferLength, fs),
		epoch:  core.Samples(c.EpochLength, fs),
		shift:  max(core.Samples(c.ShiftLength, fs), 1),
	}
	s.window = historyWindows(c)

	if s.epoch < 2 {
		return s, fmt.Errorf("%w: epoch of %g s is %d samples at %g Hz", ErrInvalidConfig, c.EpochLength, s.epoch, fs)
	}

	if s.epoch > s.buffer {
		return s, fmt.Errorf("%w: %w: epoch %d samples, buffer %d samples",
			ErrInvalidConfig, buffer.ErrInsufficientLength, s.epoch, s.buffer)
	}

	return s, nil
}

// designFilter builds the continuity filter cascade for rate fs.
func (c Config) designFilter(fs float64) (*biquad.Cascade, error) {
	var sections []biquad.Coefficients

	f := c.Filter
	if f.HighpassHz > 0 {
		hp, err := design.Highpass(f.HighpassHz, f.HighpassQ, fs)
		if err != nil {
			return nil, fmt.Errorf("%w: highpass: %w", ErrInvalidConfig, err)
		}
		sections = append(sections, hp)
	}

	switch f.Kind {
	case FilterBandstop:
		bs, err := design.Bandstop(f.Order, f.LowHz, f.HighHz, fs)
		if err != nil {
			return nil, fmt.Errorf("%w: bandstop: %w", ErrInvalidConfig, err)
		}
		sections = append(sections, bs...)
	case FilterNotch:
		n, err := design.Notch(f.NotchHz, f.NotchQ, fs)
		if err != nil {
			return nil, fmt.Errorf("%w: notch: %w", ErrInvalidConfig, err)
		}
		sections = append(sections, n)
	}

	return newFilterCascade(sections)
}

func (f FilterConfig) stopCenter() (float64, bool) {
	switch f.Kind {
	case FilterBandstop:
		return (f.LowHz + f.HighHz) / 2, true
	case FilterNotch:
		return f.NotchHz, true
	default:
		return 0, false
	}
}

func newFilterCascade(sections []biquad.Coefficients) (*biquad.Cascade, error) {
	cascade := biquad.NewCascade(sections)
	if !cascade.Stable() {
		return nil, fmt.Errorf("%w: filter design has poles on or outside the unit circle", ErrInvalidConfig)
	}
	return cascade, nil
}

// StopbandAttenuation designs the filter for rate fs and returns the
// attenuation in dB at the centre of its stop band. ok is false when no
// stop-band filter is configured.
func (c Config) StopbandAttenuation(fs float64) (centerHz, db float64, ok bool, err error) {
	centerHz, ok = c.Filter.stopCenter()
	if !ok {
		return 0, 0, false, nil
	}

	cascade, err := c.designFilter(fs)
	if err != nil {
		return 0, 0, false, err
	}

	return centerHz, -cascade.MagnitudeDB(centerHz, fs), true, nil
}
