package spectrum

import (
	"errors"
	"fmt"
	"math"
	"math/bits"

	algofft "github.com/MeKo-Christian/algo-fft"
	"github.com/cwbudde/algo-vecmath"

	"github.com/cwbudde/algo-neurofeedback/dsp/window"
)

var (
	// ErrInvalidParams reports an unusable estimator configuration.
	ErrInvalidParams = errors.New("spectrum: invalid parameters")
	// ErrEpochLength reports an epoch whose length differs from the
	// estimator's configured epoch length.
	ErrEpochLength = errors.New("spectrum: epoch length mismatch")
)

// Band indices into [Powers] and [Bands].
const (
	Delta = iota
	Theta
	Alpha
	Beta

	NumBands
)

// Band is a closed frequency interval in Hz.
type Band struct {
	Name string
	Low  float64
	High float64
}

// Bands holds one frequency interval per band index, ordered low to high.
type Bands [NumBands]Band

// CanonicalBands are the classic EEG rhythm bands.
var CanonicalBands = Bands{
	Delta: {Name: "delta", Low: 1, High: 4},
	Theta: {Name: "theta", Low: 4, High: 8},
	Alpha: {Name: "alpha", Low: 8, High: 12},
	Beta:  {Name: "beta", Low: 12, High: 30},
}

// Validate checks that every band is a non-empty interval within
// [0, nyquist] and that bands do not start below their predecessor.
func (b Bands) Validate(nyquist float64) error {
	for i, band := range b {
		if math.IsNaN(band.Low) || math.IsNaN(band.High) || band.Low < 0 || band.High <= band.Low {
			return fmt.Errorf("%w: band %d (%s) has range [%g, %g]", ErrInvalidParams, i, band.Name, band.Low, band.High)
		}

		if nyquist > 0 && band.High > nyquist {
			return fmt.Errorf("%w: band %s upper edge %g Hz exceeds Nyquist %g Hz", ErrInvalidParams, band.Name, band.High, nyquist)
		}

		if i > 0 && band.Low < b[i-1].Low {
			return fmt.Errorf("%w: band %s starts below %s", ErrInvalidParams, band.Name, b[i-1].Name)
		}
	}

	return nil
}

// Powers holds one absolute or relative power value per band.
type Powers [NumBands]float64

// Total returns the sum over all bands.
func (p Powers) Total() float64 {
	sum := 0.0
	for _, v := range p {
		sum += v
	}
	return sum
}

// BinRange is an inclusive range of one-sided FFT bins. Hi < Lo denotes an
// empty range.
type BinRange struct {
	Lo int
	Hi int
}

// Len returns the number of bins covered.
func (r BinRange) Len() int {
	if r.Hi < r.Lo {
		return 0
	}
	return r.Hi - r.Lo + 1
}

// EstimatorOption configures a [BandEstimator].
type EstimatorOption func(*estimatorConfig)

type estimatorConfig struct {
	window   window.Type
	bands    Bands
	relative bool
}

// WithWindow selects the taper applied before the transform. The default is
// Hamming.
func WithWindow(t window.Type) EstimatorOption {
	return func(c *estimatorConfig) {
		c.window = t
	}
}

// WithBands overrides [CanonicalBands].
func WithBands(b Bands) EstimatorOption {
	return func(c *estimatorConfig) {
		c.bands = b
	}
}

// WithRelative normalises every estimate by its total in-band power.
func WithRelative() EstimatorOption {
	return func(c *estimatorConfig) {
		c.relative = true
	}
}

// BandEstimator computes per-band power of fixed-length epochs.
//
// An estimator owns its FFT plan and scratch buffers and is not safe for
// concurrent use.
type BandEstimator struct {
	sampleRate float64
	epochLen   int
	fftSize    int
	relative   bool
	bands      Bands
	ranges     [NumBands]BinRange

	coeffs []float64
	scale  float64

	plan *algofft.Plan[complex128]
	in   []complex128
	out  []complex128
	work []float64
	re   []float64
	im   []float64
	psd  []float64
}

// NewBandEstimator creates an estimator for epochs of epochLen samples taken
// at sampleRate Hz. The transform length is epochLen rounded up to a power
// of two.
func NewBandEstimator(sampleRate float64, epochLen int, opts ...EstimatorOption) (*BandEstimator, error) {
	if !(sampleRate > 0) || math.IsInf(sampleRate, 0) {
		return nil, fmt.Errorf("%w: sample rate %g", ErrInvalidParams, sampleRate)
	}

	if epochLen < 2 {
		return nil, fmt.Errorf("%w: epoch length %d", ErrInvalidParams, epochLen)
	}

	cfg := estimatorConfig{
		window: window.TypeHamming,
		bands:  CanonicalBands,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}

	if err := cfg.bands.Validate(sampleRate / 2); err != nil {
		return nil, err
	}

	fftSize := nextPowerOfTwo(epochLen)

	plan, err := algofft.NewPlan64(fftSize)
	if err != nil {
		return nil, fmt.Errorf("spectrum: fft plan of size %d: %w", fftSize, err)
	}

	coeffs := window.Generate(cfg.window, epochLen)

	energy := window.EnergySum(coeffs)
	if energy <= 0 {
		return nil, fmt.Errorf("%w: window %s has no energy at length %d", ErrInvalidParams, cfg.window, epochLen)
	}

	e := &BandEstimator{
		sampleRate: sampleRate,
		epochLen:   epochLen,
		fftSize:    fftSize,
		relative:   cfg.relative,
		bands:      cfg.bands,
		coeffs:     coeffs,
		scale:      1 / (sampleRate * energy),
		plan:       plan,
		in:         make([]complex128, fftSize),
		out:        make([]complex128, fftSize),
		work:       make([]float64, epochLen),
		re:         make([]float64, fftSize/2+1),
		im:         make([]float64, fftSize/2+1),
		psd:        make([]float64, fftSize/2+1),
	}
	e.ranges = binRanges(cfg.bands, e.Resolution(), fftSize/2)

	return e, nil
}

// SampleRate returns the configured sample rate in Hz.
func (e *BandEstimator) SampleRate() float64 { return e.sampleRate }

// EpochLength returns the expected epoch length in samples.
func (e *BandEstimator) EpochLength() int { return e.epochLen }

// FFTSize returns the transform length.
func (e *BandEstimator) FFTSize() int { return e.fftSize }

// Resolution returns the bin spacing in Hz.
func (e *BandEstimator) Resolution() float64 {
	return e.sampleRate / float64(e.fftSize)
}

// Bands returns the configured bands.
func (e *BandEstimator) Bands() Bands { return e.bands }

// BinRanges returns the bins integrated for each band.
func (e *BandEstimator) BinRanges() [NumBands]BinRange { return e.ranges }

// Relative reports whether estimates are normalised by total power.
func (e *BandEstimator) Relative() bool { return e.relative }

// Estimate returns the band powers of epoch. The epoch is not modified.
// A constant epoch yields all-zero powers.
func (e *BandEstimator) Estimate(epoch []float64) (Powers, error) {
	var p Powers

	if len(epoch) != e.epochLen {
		return p, fmt.Errorf("%w: got %d samples, want %d", ErrEpochLength, len(epoch), e.epochLen)
	}

	if isConstant(epoch) {
		return p, nil
	}

	mean := 0.0
	for _, v := range epoch {
		mean += v
	}
	mean /= float64(len(epoch))

	for i, v := range epoch {
		e.work[i] = v - mean
	}

	if err := window.ApplyCoefficientsInPlace(e.work, e.coeffs); err != nil {
		return p, err
	}

	for i := range e.in {
		if i < len(e.work) {
			e.in[i] = complex(e.work[i], 0)
		} else {
			e.in[i] = 0
		}
	}

	if err := e.plan.Forward(e.out, e.in); err != nil {
		return p, fmt.Errorf("spectrum: forward transform: %w", err)
	}

	for k := range e.psd {
		e.re[k] = real(e.out[k])
		e.im[k] = imag(e.out[k])
	}
	vecmath.Power(e.psd, e.re, e.im)

	nyquist := len(e.psd) - 1
	for k := range e.psd {
		c := 2 * e.scale
		if k == 0 || k == nyquist {
			c = e.scale
		}
		e.psd[k] *= c
	}

	df := e.Resolution()
	for b, r := range e.ranges {
		sum := 0.0
		for k := r.Lo; k <= r.Hi; k++ {
			sum += e.psd[k]
		}
		p[b] = sum * df
	}

	if e.relative {
		total := p.Total()
		if total <= 0 {
			return Powers{}, nil
		}
		for b := range p {
			p[b] /= total
		}
	}

	return p, nil
}

// NearestBin maps a frequency to the nearest bin index for the given
// resolution. Exact half-bin ties round down.
func NearestBin(freqHz, resolution float64) int {
	return int(math.Ceil(freqHz/resolution - 0.5))
}

// binRanges maps band edges to inclusive bin ranges. A bin shared by the
// upper edge of one band and the lower edge of the next stays in the lower
// band.
func binRanges(bands Bands, resolution float64, maxBin int) [NumBands]BinRange {
	var ranges [NumBands]BinRange

	for i, band := range bands {
		lo := max(NearestBin(band.Low, resolution), 0)
		hi := min(NearestBin(band.High, resolution), maxBin)

		if i > 0 && band.Low <= bands[i-1].High && lo <= ranges[i-1].Hi {
			lo = ranges[i-1].Hi + 1
		}

		ranges[i] = BinRange{Lo: lo, Hi: hi}
	}

	return ranges
}

func isConstant(x []float64) bool {
	for _, v := range x[1:] {
		if v != x[0] {
			return false
		}
	}
	return true
}

func nextPowerOfTwo(n int) int {
	if n <= 1 {
		return 1
	}
	return 1 << bits.Len(uint(n-1))
}
