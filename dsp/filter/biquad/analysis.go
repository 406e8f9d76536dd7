package biquad

import (
	"math"
	"math/cmplx"
)

// Response evaluates H(z) of the section on the unit circle at freqHz.
func (c *Coefficients) Response(freqHz, sampleRate float64) complex128 {
	zinv := cmplx.Rect(1, -2*math.Pi*freqHz/sampleRate)

	num := (complex(c.B2, 0)*zinv+complex(c.B1, 0))*zinv + complex(c.B0, 0)
	den := (complex(c.A2, 0)*zinv+complex(c.A1, 0))*zinv + 1

	return num / den
}

// MagnitudeDB returns the section gain at freqHz in dB.
func (c *Coefficients) MagnitudeDB(freqHz, sampleRate float64) float64 {
	return 20 * math.Log10(cmplx.Abs(c.Response(freqHz, sampleRate)))
}

// Stable reports whether both poles lie strictly inside the unit circle,
// using the stability triangle |a2| < 1, |a1| < 1 + a2.
func (c *Coefficients) Stable() bool {
	return math.Abs(c.A2) < 1 && math.Abs(c.A1) < 1+c.A2
}

// Response is the product of the section responses times the cascade gain.
func (c *Cascade) Response(freqHz, sampleRate float64) complex128 {
	h := complex(c.gain, 0)
	for i := range c.coeffs {
		h *= c.coeffs[i].Response(freqHz, sampleRate)
	}
	return h
}

// MagnitudeDB returns the cascade gain at freqHz in dB.
func (c *Cascade) MagnitudeDB(freqHz, sampleRate float64) float64 {
	return 20 * math.Log10(cmplx.Abs(c.Response(freqHz, sampleRate)))
}

// Stable reports whether every section is stable. An empty cascade is.
func (c *Cascade) Stable() bool {
	for i := range c.coeffs {
		if !c.coeffs[i].Stable() {
			return false
		}
	}
	return true
}
