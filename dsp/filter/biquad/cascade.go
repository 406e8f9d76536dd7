package biquad

// State is the delay-line state of a [Cascade], one [d0, d1] pair per
// section. The zero value (nil) is the neutral initial condition.
type State [][2]float64

// Clone returns an independent copy of the state.
func (st State) Clone() State {
	if st == nil {
		return nil
	}
	out := make(State, len(st))
	copy(out, st)
	return out
}

// Cascade is an immutable series of biquad sections. All mutable filter
// state lives in [State] values owned by the caller.
type Cascade struct {
	coeffs []Coefficients
	gain   float64
}

// cascadeConfig holds options for NewCascade.
type cascadeConfig struct {
	gain float64
}

// CascadeOption configures a Cascade.
type CascadeOption func(*cascadeConfig)

// WithGain sets an overall gain applied to the input before cascading.
// Default is 1.0 (unity gain).
func WithGain(g float64) CascadeOption {
	return func(cfg *cascadeConfig) { cfg.gain = g }
}

// NewCascade creates a cascade from zero or more coefficient sets. An empty
// cascade passes samples through unchanged (apart from the gain).
func NewCascade(coeffs []Coefficients, opts ...CascadeOption) *Cascade {
	cfg := cascadeConfig{gain: 1}
	for _, o := range opts {
		if o != nil {
			o(&cfg)
		}
	}

	return &Cascade{
		coeffs: append([]Coefficients(nil), coeffs...),
		gain:   cfg.gain,
	}
}

// Apply filters samples starting from state st and returns the filtered
// samples together with the state to pass to the next call. samples is not
// modified and the output has the same length. A nil or mismatched st is
// treated as the zero initial condition.
//
// Applying a signal split into consecutive chunks, threading the returned
// state from call to call, yields the same output as applying it in one call.
func (c *Cascade) Apply(samples []float64, st State) ([]float64, State) {
	out := make([]float64, len(samples))
	next := c.ApplyTo(out, samples, st)
	return out, next
}

// ApplyTo is the allocation-free form of Apply: it writes len(src) filtered
// samples into dst, which must be at least as long as src. dst and src may
// alias.
func (c *Cascade) ApplyTo(dst, src []float64, st State) State {
	dst = dst[:len(src)]
	if c.gain != 1 {
		for i, x := range src {
			dst[i] = x * c.gain
		}
	} else {
		copy(dst, src)
	}

	next := make(State, len(c.coeffs))
	if len(st) == len(c.coeffs) {
		copy(next, st)
	}

	var sec Section
	for i := range c.coeffs {
		sec.Coefficients = c.coeffs[i]
		sec.SetState(next[i])
		sec.ProcessBlock(dst)
		next[i] = sec.State()
	}

	return next
}

// Order returns the total filter order (2 per section).
func (c *Cascade) Order() int {
	return 2 * len(c.coeffs)
}

// NumSections returns the number of biquad sections.
func (c *Cascade) NumSections() int {
	return len(c.coeffs)
}

// Gain returns the input gain applied before cascading.
func (c *Cascade) Gain() float64 { return c.gain }

// Coefficients returns a copy of the section coefficients.
func (c *Cascade) Coefficients() []Coefficients {
	return append([]Coefficients(nil), c.coeffs...)
}
