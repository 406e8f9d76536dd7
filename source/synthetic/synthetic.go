// Package synthetic provides a scripted, deterministic sample source.
//
// A script is a sequence of segments, each mixing tones, white noise and a
// constant offset for a fixed duration. Tones are phase-continuous across
// pulls and segment boundaries. In free-running mode every Pull returns as
// many samples as requested; in paced mode samples become available at the
// nominal rate of a wall clock.
package synthetic

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/cwbudde/algo-neurofeedback/dsp/core"
	"github.com/cwbudde/algo-neurofeedback/dsp/signal"
	"github.com/cwbudde/algo-neurofeedback/source"
)

// Tone is a sinusoidal component.
type Tone struct {
	Freq      float64
	Amplitude float64
}

// Segment is one scripted stretch of signal. A non-positive Duration makes
// the segment last forever; only the final segment may do so.
type Segment struct {
	Duration time.Duration
	Tones    []Tone
	Noise    float64
	Offset   float64
}

// Silence returns a zero segment.
func Silence(d time.Duration) Segment {
	return Segment{Duration: d}
}

// Sine returns a single-tone segment.
func Sine(freq, amplitude float64, d time.Duration) Segment {
	return Segment{Duration: d, Tones: []Tone{{Freq: freq, Amplitude: amplitude}}}
}

// Noise returns a white-noise segment with peak amplitude.
func Noise(amplitude float64, d time.Duration) Segment {
	return Segment{Duration: d, Noise: amplitude}
}

// Option configures a Source.
type Option func(*options)

type options struct {
	name     string
	typ      string
	channels int
	seed     int64
	paced    bool
	now      func() time.Time
	core     []core.ProcessorOption
}

// WithSampleRate sets the nominal rate in Hz. The default is 256.
func WithSampleRate(fs float64) Option {
	return func(o *options) { o.core = append(o.core, core.WithSampleRate(fs)) }
}

// WithChannels sets the channel count. Every channel carries the script;
// noise is drawn independently per channel.
func WithChannels(n int) Option {
	return func(o *options) { o.channels = n }
}

// WithName sets the stream name reported by Info.
func WithName(name string) Option {
	return func(o *options) { o.name = name }
}

// WithType sets the stream type reported by Info. The default is EEG.
func WithType(typ string) Option {
	return func(o *options) { o.typ = typ }
}

// WithSeed sets the noise seed.
func WithSeed(seed int64) Option {
	return func(o *options) { o.seed = seed }
}

// WithPacing releases samples at the nominal rate measured by now. A nil
// now uses time.Now.
func WithPacing(now func() time.Time) Option {
	return func(o *options) {
		o.paced = true
		o.now = now
	}
}

// Source is a scripted sample source. It is safe for concurrent use.
type Source struct {
	info     source.Info
	segments []Segment
	lengths  []int64
	total    int64

	paced bool
	now   func() time.Time

	mu       sync.Mutex
	gen      *signal.Generator
	start    time.Time
	produced int64
	closed   bool
}

// New validates the script and returns a source positioned at its start.
func New(segments []Segment, opts ...Option) (*Source, error) {
	o := options{
		name:     "synthetic",
		typ:      source.TypeEEG,
		channels: 1,
		seed:     1,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}

	gen := signal.NewGeneratorWithOptions(o.core, signal.WithSeed(o.seed))
	fs := gen.Config().SampleRate

	if o.channels < 1 {
		return nil, fmt.Errorf("%w: synthetic source needs at least one channel, got %d", source.ErrSourceUnavailable, o.channels)
	}

	if len(segments) == 0 {
		return nil, fmt.Errorf("%w: empty synthetic script", source.ErrSourceUnavailable)
	}

	lengths := make([]int64, len(segments))
	total := int64(0)

	for i, seg := range segments {
		if err := validateSegment(seg, fs); err != nil {
			return nil, fmt.Errorf("%w: segment %d: %w", source.ErrSourceUnavailable, i, err)
		}

		if seg.Duration <= 0 {
			if i != len(segments)-1 {
				return nil, fmt.Errorf("%w: segment %d is endless but not last", source.ErrSourceUnavailable, i)
			}
			lengths[i] = -1
			total = -1
			continue
		}

		lengths[i] = int64(core.Samples(seg.Duration.Seconds(), fs))
		total += lengths[i]
	}

	if o.paced && o.now == nil {
		o.now = time.Now
	}

	s := &Source{
		info: source.Info{
			Name:       o.name,
			Type:       o.typ,
			Channels:   o.channels,
			SampleRate: fs,
		},
		segments: segments,
		lengths:  lengths,
		total:    total,
		paced:    o.paced,
		now:      o.now,
		gen:      gen,
	}
	if s.paced {
		s.start = s.now()
	}

	return s, nil
}

func validateSegment(seg Segment, fs float64) error {
	for _, tone := range seg.Tones {
		if !(tone.Freq >= 0) || tone.Freq >= fs/2 {
			return fmt.Errorf("tone %g Hz outside [0, %g)", tone.Freq, fs/2)
		}
		if math.IsNaN(tone.Amplitude) || math.IsInf(tone.Amplitude, 0) {
			return errors.New("tone amplitude not finite")
		}
	}

	if !(seg.Noise >= 0) || math.IsInf(seg.Noise, 0) {
		return fmt.Errorf("noise amplitude %g", seg.Noise)
	}

	if math.IsNaN(seg.Offset) || math.IsInf(seg.Offset, 0) {
		return errors.New("offset not finite")
	}

	return nil
}

// Info describes the stream.
func (s *Source) Info() source.Info { return s.info }

// Produced returns the number of samples delivered so far.
func (s *Source) Produced() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.produced
}

// Pull returns up to maxSamples samples. A finished script yields empty
// chunks. In paced mode Pull waits at most timeout for the next sample.
func (s *Source) Pull(ctx context.Context, timeout time.Duration, maxSamples int) (source.Chunk, error) {
	if maxSamples <= 0 {
		return source.Chunk{}, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return source.Chunk{}, source.ErrClosed
	}

	n := s.available(maxSamples)
	if n == 0 && s.paced && !s.finished() {
		if err := s.waitNextSample(ctx, timeout); err != nil {
			return source.Chunk{}, err
		}
		n = s.available(maxSamples)
	}

	if n == 0 {
		return source.Chunk{}, nil
	}

	return s.render(n)
}

// Close stops the source. Further pulls return ErrClosed.
func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *Source) finished() bool {
	return s.total >= 0 && s.produced >= s.total
}

func (s *Source) available(maxSamples int) int {
	n := int64(maxSamples)

	if s.total >= 0 {
		n = min(n, s.total-s.produced)
	}

	if s.paced {
		due := int64(s.now().Sub(s.start).Seconds() * s.info.SampleRate)
		n = min(n, due-s.produced)
	}

	return int(max(n, 0))
}

func (s *Source) waitNextSample(ctx context.Context, timeout time.Duration) error {
	next := time.Duration(float64(s.produced+1) / s.info.SampleRate * float64(time.Second))
	wait := min(next-s.now().Sub(s.start), timeout)
	if wait <= 0 {
		return nil
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (s *Source) render(n int) (source.Chunk, error) {
	mono := make([]float64, n)
	channels := s.info.Channels

	chunk := source.Chunk{
		Samples:    make([][]float64, n),
		Timestamps: make([]float64, n),
	}
	rows := make([]float64, n*channels)

	pos := 0
	for pos < n {
		seg, segEnd := s.segmentAt(s.produced + int64(pos))
		run := n - pos
		if segEnd >= 0 {
			run = int(min(int64(run), segEnd-(s.produced+int64(pos))))
		}

		offset := s.produced + int64(pos)
		for i := pos; i < pos+run; i++ {
			mono[i] = seg.Offset
		}

		for _, tone := range seg.Tones {
			x, err := s.gen.SineAt(tone.Freq, tone.Amplitude, offset, run)
			if err != nil {
				return source.Chunk{}, err
			}
			signal.Mix(mono[pos:pos+run], x)
		}

		for ch := range channels {
			for i := pos; i < pos+run; i++ {
				rows[i*channels+ch] = mono[i]
			}

			if seg.Noise > 0 {
				x, err := s.gen.WhiteNoise(seg.Noise, run)
				if err != nil {
					return source.Chunk{}, err
				}
				for i, v := range x {
					rows[(pos+i)*channels+ch] += v
				}
			}
		}

		pos += run
	}

	for i := range n {
		chunk.Samples[i] = rows[i*channels : (i+1)*channels : (i+1)*channels]
		chunk.Timestamps[i] = float64(s.produced+int64(i)) / s.info.SampleRate
	}

	s.produced += int64(n)

	return chunk, nil
}

// segmentAt returns the segment containing sample index idx and the index
// one past its last sample, or -1 for an endless segment.
func (s *Source) segmentAt(idx int64) (Segment, int64) {
	end := int64(0)
	for i, l := range s.lengths {
		if l < 0 {
			return s.segments[i], -1
		}
		end += l
		if idx < end {
			return s.segments[i], end
		}
	}

	last := len(s.segments) - 1
	return s.segments[last], end
}
