// Package history keeps a fixed-length record of recent band-power
// estimates and averages them.
package history

import (
	"errors"
	"fmt"
	"math"

	"github.com/cwbudde/algo-neurofeedback/dsp/spectrum"
)

// ErrInvalidCapacity reports a history that cannot hold any vector.
var ErrInvalidCapacity = errors.New("history: capacity must be > 0")

// History holds the most recent band-power vectors, oldest first.
//
// Pushing into a full history drops the oldest vector. A History is not safe
// for concurrent use.
type History struct {
	capacity int
	vecs     []spectrum.Powers
}

// New returns an empty history holding at most capacity vectors.
func New(capacity int) (*History, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidCapacity, capacity)
	}

	return &History{
		capacity: capacity,
		vecs:     make([]spectrum.Powers, 0, capacity),
	}, nil
}

// WindowCount returns the number of epochs of epochLength seconds, spaced
// shiftLength seconds apart, that fit in bufferLength seconds. The result
// is at least 1.
func WindowCount(bufferLength, epochLength, shiftLength float64) int {
	if shiftLength <= 0 || bufferLength <= epochLength {
		return 1
	}

	// Guard against (5-1)/0.05 evaluating just below 80.
	n := math.Floor((bufferLength-epochLength)/shiftLength + 1 + 1e-9)

	return max(int(n), 1)
}

// Push appends p, dropping the oldest vector when the history is full.
func (h *History) Push(p spectrum.Powers) {
	if len(h.vecs) == h.capacity {
		copy(h.vecs, h.vecs[1:])
		h.vecs[len(h.vecs)-1] = p
		return
	}

	h.vecs = append(h.vecs, p)
}

// Mean returns the per-band mean over the vectors currently held. An empty
// history has a zero mean. A band holding one repeated value returns that
// value unchanged.
func (h *History) Mean() spectrum.Powers {
	var mean spectrum.Powers
	if len(h.vecs) == 0 {
		return mean
	}

	n := float64(len(h.vecs))
	first := h.vecs[0]

	for b := range mean {
		sum, same := 0.0, true
		for _, v := range h.vecs {
			sum += v[b]
			same = same && v[b] == first[b]
		}

		if same {
			mean[b] = first[b]
		} else {
			mean[b] = sum / n
		}
	}

	return mean
}

// Latest returns the newest vector and whether one exists.
func (h *History) Latest() (spectrum.Powers, bool) {
	if len(h.vecs) == 0 {
		return spectrum.Powers{}, false
	}
	return h.vecs[len(h.vecs)-1], true
}

// Len returns the number of vectors held.
func (h *History) Len() int { return len(h.vecs) }

// Cap returns the maximum number of vectors held.
func (h *History) Cap() int { return h.capacity }

// Full reports whether the history has reached its capacity.
func (h *History) Full() bool { return len(h.vecs) == h.capacity }

// Reset discards all vectors.
func (h *History) Reset() {
	h.vecs = h.vecs[:0]
}
