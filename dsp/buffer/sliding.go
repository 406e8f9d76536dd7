package buffer

import (
	"errors"
	"fmt"
)

// ErrInsufficientLength is returned when more samples are requested than the
// buffer holds.
var ErrInsufficientLength = errors.New("buffer: insufficient length")

// Sliding is a fixed-length shift-and-append sample buffer. The newest sample
// is at the tail. It is zero-filled until enough samples have been pushed.
type Sliding struct {
	samples []float64
	pushed  int
}

// NewSliding returns a zero-filled Sliding buffer holding capacity samples.
func NewSliding(capacity int) *Sliding {
	if capacity < 0 {
		capacity = 0
	}
	return &Sliding{samples: make([]float64, capacity)}
}

// Len returns the number of samples held. It never changes after construction.
func (b *Sliding) Len() int {
	return len(b.samples)
}

// Filled reports whether at least Len() real samples have been pushed since
// construction or the last Reset.
func (b *Sliding) Filled() bool {
	return b.pushed >= len(b.samples)
}

// Push appends chunk at the tail and drops the same number of samples from the
// head. A chunk longer than the buffer replaces the whole content with its last
// Len() samples.
func (b *Sliding) Push(chunk []float64) {
	n := len(b.samples)
	if len(chunk) == 0 || n == 0 {
		return
	}
	b.pushed += len(chunk)
	if b.pushed > n {
		b.pushed = n
	}

	if len(chunk) >= n {
		copy(b.samples, chunk[len(chunk)-n:])
		return
	}

	copy(b.samples, b.samples[len(chunk):])
	copy(b.samples[n-len(chunk):], chunk)
}

// Tail returns a copy of the newest n samples in chronological order.
func (b *Sliding) Tail(n int) ([]float64, error) {
	if n <= 0 || n > len(b.samples) {
		return nil, fmt.Errorf("%w: want %d samples, buffer holds %d", ErrInsufficientLength, n, len(b.samples))
	}

	out := make([]float64, n)
	if err := b.TailInto(out); err != nil {
		return nil, err
	}
	return out, nil
}

// TailInto copies the newest len(dst) samples into dst. Zero-alloc.
func (b *Sliding) TailInto(dst []float64) error {
	if len(dst) == 0 || len(dst) > len(b.samples) {
		return fmt.Errorf("%w: want %d samples, buffer holds %d", ErrInsufficientLength, len(dst), len(b.samples))
	}
	copy(dst, b.samples[len(b.samples)-len(dst):])
	return nil
}

// Samples returns the underlying slice, oldest sample first.
// The slice is only valid until the next Push.
func (b *Sliding) Samples() []float64 {
	return b.samples
}

// Reset zeroes the content and returns the buffer to its cold-start state.
func (b *Sliding) Reset() {
	for i := range b.samples {
		b.samples[i] = 0
	}
	b.pushed = 0
}
