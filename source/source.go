// Package source defines the sample stream contract consumed by the
// band-power pipeline.
//
// A Source delivers timestamped multi-channel chunks at a fixed nominal rate.
// Pull waits at most the given timeout and may return fewer samples than
// requested, including none, without error.
package source

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrSourceUnavailable reports that no compatible stream could be opened
	// or that a stream does not match the pipeline's requirements.
	ErrSourceUnavailable = errors.New("source: unavailable")
	// ErrClosed is returned by Pull after Close.
	ErrClosed = errors.New("source: closed")
)

// TypeEEG is the stream type the pipeline accepts.
const TypeEEG = "EEG"

// Info describes a stream.
type Info struct {
	Name       string
	Type       string
	Channels   int
	SampleRate float64
}

// Chunk is a batch of samples. Samples is indexed [sample][channel];
// Timestamps holds one timestamp in seconds per sample.
type Chunk struct {
	Samples    [][]float64
	Timestamps []float64
}

// Len returns the number of samples in the chunk.
func (c Chunk) Len() int { return len(c.Samples) }

// Source is a pull-based sample stream.
type Source interface {
	Info() Info
	// Pull returns up to maxSamples samples, waiting at most timeout for
	// the first one to arrive.
	Pull(ctx context.Context, timeout time.Duration, maxSamples int) (Chunk, error)
	Close() error
}

// Channel extracts channel ch from every row of c that carries it. Rows too
// short to hold ch are skipped and counted in ragged. Timestamps of the kept
// rows are returned alongside.
func Channel(c Chunk, ch int) (samples, timestamps []float64, ragged int) {
	samples = make([]float64, 0, len(c.Samples))
	timestamps = make([]float64, 0, len(c.Samples))

	for i, row := range c.Samples {
		if ch < 0 || ch >= len(row) {
			ragged++
			continue
		}

		samples = append(samples, row[ch])
		if i < len(c.Timestamps) {
			timestamps = append(timestamps, c.Timestamps[i])
		}
	}

	return samples, timestamps, ragged
}
