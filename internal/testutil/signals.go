package testutil

import (
	"math"
	"math/rand"
)

// DeterministicSine generates a sine wave starting at phase 0.
func DeterministicSine(freqHz, sampleRate, amplitude float64, length int) []float64 {
	out := make([]float64, length)
	step := 2 * math.Pi * freqHz / sampleRate
	for i := range out {
		out[i] = amplitude * math.Sin(step*float64(i))
	}
	return out
}

// DeterministicNoise generates white noise with a fixed seed for reproducibility.
func DeterministicNoise(seed int64, amplitude float64, length int) []float64 {
	out := make([]float64, length)
	rng := rand.New(rand.NewSource(seed))
	for i := range out {
		out[i] = (rng.Float64()*2 - 1) * amplitude
	}
	return out
}

// DC generates a constant-valued signal.
func DC(value float64, length int) []float64 {
	out := make([]float64, length)
	for i := range out {
		out[i] = value
	}
	return out
}

// Add returns the element-wise sum of equally long signals.
func Add(signals ...[]float64) []float64 {
	if len(signals) == 0 {
		return nil
	}
	out := make([]float64, len(signals[0]))
	for _, s := range signals {
		for i := range out {
			out[i] += s[i]
		}
	}
	return out
}

// Concat joins signals end to end.
func Concat(signals ...[]float64) []float64 {
	n := 0
	for _, s := range signals {
		n += len(s)
	}
	out := make([]float64, 0, n)
	for _, s := range signals {
		out = append(out, s...)
	}
	return out
}

// Chunk splits signal into consecutive pieces whose lengths cycle through
// sizes. Zero sizes produce empty chunks, which streaming code must tolerate.
func Chunk(signal []float64, sizes ...int) [][]float64 {
	if len(sizes) == 0 {
		return [][]float64{signal}
	}
	var out [][]float64
	pos := 0
	for i := 0; pos < len(signal); i++ {
		n := sizes[i%len(sizes)]
		if n < 0 {
			n = 0
		}
		if pos+n > len(signal) {
			n = len(signal) - pos
		}
		out = append(out, signal[pos:pos+n])
		pos += n
		if i > 10*len(signal)+len(sizes) {
			break
		}
	}
	return out
}
