package design

import (
	"fmt"
	"math"
	"math/cmplx"

	"github.com/cwbudde/algo-neurofeedback/dsp/filter/biquad"
)

// MaxBandstopOrder bounds the prototype order accepted by [Bandstop].
const MaxBandstopOrder = 10

// Bandstop designs a digital Butterworth bandstop of prototype order `order`
// rejecting lowHz..highHz (the -3 dB edges). The result has `order` biquad
// sections (filter order 2*order) with unity gain at DC.
//
// The analog lowpass prototype is mapped with the lowpass-to-bandstop
// transform and discretised with the bilinear transform; both edges are
// prewarped so they land exactly on the requested frequencies.
func Bandstop(order int, lowHz, highHz, sampleRate float64) ([]biquad.Coefficients, error) {
	if order < 1 || order > MaxBandstopOrder {
		return nil, fmt.Errorf("%w: bandstop order %d outside [1, %d]", ErrInvalidParams, order, MaxBandstopOrder)
	}
	if _, err := normalizedW0(lowHz, sampleRate); err != nil {
		return nil, err
	}
	if _, err := normalizedW0(highHz, sampleRate); err != nil {
		return nil, err
	}
	if highHz <= lowHz {
		return nil, fmt.Errorf("%w: bandstop edges %v >= %v", ErrInvalidParams, lowHz, highHz)
	}

	k := 2 * sampleRate
	wl := k * math.Tan(math.Pi*lowHz/sampleRate)
	wh := k * math.Tan(math.Pi*highHz/sampleRate)
	bw := wh - wl
	w0sq := wl * wh

	// Digital image of the analog zeros at s = ±j*w0.
	cosW0 := math.Cos(2 * math.Atan(math.Sqrt(w0sq)/k))

	sections := make([]biquad.Coefficients, 0, order)
	for i := range (order + 1) / 2 {
		p := prototypePole(i, order)

		if imag(p) == 0 {
			// Real prototype pole: s^2 - (bw/p)s + w0^2 is a real quadratic.
			r := bandstopRoots(p, bw, w0sq)
			sections = append(sections, bandstopSection(r[0], r[1], k, cosW0))
			continue
		}

		// Each complex prototype pole contributes two analog poles; pairing each
		// with its conjugate yields two real sections.
		r := bandstopRoots(p, bw, w0sq)
		sections = append(sections,
			bandstopSection(r[0], cmplx.Conj(r[0]), k, cosW0),
			bandstopSection(r[1], cmplx.Conj(r[1]), k, cosW0),
		)
	}

	return sections, nil
}

// prototypePole returns the i-th left-half-plane Butterworth prototype pole
// with non-negative imaginary part. For odd orders the last index is the real
// pole at -1.
func prototypePole(i, order int) complex128 {
	theta := math.Pi * float64(2*i+order+1) / float64(2*order)
	p := cmplx.Exp(complex(0, theta))
	if 2*i+1 == order {
		return complex(-1, 0)
	}
	return complex(real(p), math.Abs(imag(p)))
}

// bandstopRoots solves s^2 - (bw/p)s + w0^2 = 0.
func bandstopRoots(p complex128, bw, w0sq float64) [2]complex128 {
	b := complex(bw, 0) / p
	disc := cmplx.Sqrt(b*b - complex(4*w0sq, 0))
	return [2]complex128{(b + disc) / 2, (b - disc) / 2}
}

// bandstopSection discretises two analog poles with zeros on the unit circle
// at the stop frequency, normalised to unity DC gain.
func bandstopSection(sa, sb complex128, k, cosW0 float64) biquad.Coefficients {
	kc := complex(k, 0)
	za := (kc + sa) / (kc - sa)
	zb := (kc + sb) / (kc - sb)

	a1 := -real(za + zb)
	a2 := real(za * zb)

	num := 2 - 2*cosW0
	scale := (1 + a1 + a2) / num

	return biquad.Coefficients{
		B0: scale,
		B1: -2 * cosW0 * scale,
		B2: scale,
		A1: a1,
		A2: a2,
	}
}
