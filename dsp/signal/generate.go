package signal

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/cwbudde/algo-neurofeedback/dsp/core"
)

// Generator creates deterministic test signals from a shared configuration.
//
// Noise is drawn from one seeded stream, so consecutive calls continue the
// same sequence. A Generator is not safe for concurrent use.
type Generator struct {
	cfg  core.ProcessorConfig
	seed int64
	rng  *rand.Rand
}

// Option configures a Generator.
type Option func(*Generator)

// WithSeed sets deterministic random seed for noise generation.
func WithSeed(seed int64) Option {
	return func(g *Generator) {
		g.seed = seed
	}
}

// NewGenerator creates a configured signal generator.
func NewGenerator(opts ...core.ProcessorOption) *Generator {
	return NewGeneratorWithOptions(opts)
}

// NewGeneratorWithOptions creates a configured signal generator with signal-specific options.
func NewGeneratorWithOptions(coreOpts []core.ProcessorOption, opts ...Option) *Generator {
	g := &Generator{
		cfg:  core.ApplyProcessorOptions(coreOpts...),
		seed: 1,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(g)
		}
	}
	g.rng = rand.New(rand.NewSource(g.seed))
	return g
}

// Config returns the generator processor configuration.
func (g *Generator) Config() core.ProcessorConfig {
	return g.cfg
}

// Seed returns the seed of the current noise stream.
func (g *Generator) Seed() int64 {
	return g.seed
}

// SetSeed restarts the noise stream from seed.
func (g *Generator) SetSeed(seed int64) {
	g.seed = seed
	g.rng = rand.New(rand.NewSource(seed))
}

// Sine generates a sine wave starting at phase zero.
func (g *Generator) Sine(freqHz, amplitude float64, samples int) ([]float64, error) {
	return g.SineAt(freqHz, amplitude, 0, samples)
}

// SineAt generates samples of a sine wave whose phase is zero at sample
// index 0, starting at sample index offset. Rendering a long signal as
// consecutive SineAt calls is identical to one Sine call.
func (g *Generator) SineAt(freqHz, amplitude float64, offset int64, samples int) ([]float64, error) {
	if samples <= 0 {
		return nil, fmt.Errorf("sine samples must be > 0: %d", samples)
	}
	if g.cfg.SampleRate <= 0 {
		return nil, fmt.Errorf("sine sample rate must be > 0: %f", g.cfg.SampleRate)
	}
	if offset < 0 {
		return nil, fmt.Errorf("sine offset must be >= 0: %d", offset)
	}

	out := make([]float64, samples)
	cycles := freqHz / g.cfg.SampleRate
	for i := range out {
		// Reduce the phase in cycles first so long sessions keep precision.
		_, frac := math.Modf(cycles * float64(offset+int64(i)))
		out[i] = amplitude * math.Sin(2*math.Pi*frac)
	}
	return out, nil
}

// WhiteNoise generates deterministic white noise in [-amplitude, amplitude]
// from the generator's noise stream.
func (g *Generator) WhiteNoise(amplitude float64, samples int) ([]float64, error) {
	if samples <= 0 {
		return nil, fmt.Errorf("noise samples must be > 0: %d", samples)
	}
	if amplitude < 0 {
		return nil, fmt.Errorf("noise amplitude must be >= 0: %f", amplitude)
	}
	out := make([]float64, samples)
	for i := range out {
		out[i] = (g.rng.Float64()*2 - 1) * amplitude
	}
	return out, nil
}

// Mix adds src into dst element-wise over the shorter of the two lengths.
func Mix(dst, src []float64) {
	n := min(len(dst), len(src))
	for i := range n {
		dst[i] += src[i]
	}
}
