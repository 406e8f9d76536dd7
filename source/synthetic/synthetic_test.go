package synthetic

import (
	"context"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cwbudde/algo-neurofeedback/source"
)

func pullAll(t *testing.T, s *Source, sizes ...int) source.Chunk {
	t.Helper()

	var out source.Chunk
	for _, n := range sizes {
		c, err := s.Pull(context.Background(), 0, n)
		require.NoError(t, err)
		out.Samples = append(out.Samples, c.Samples...)
		out.Timestamps = append(out.Timestamps, c.Timestamps...)
	}
	return out
}

func TestInfoDefaults(t *testing.T) {
	s, err := New([]Segment{Silence(time.Second)})
	require.NoError(t, err)

	assert.Equal(t, source.Info{Name: "synthetic", Type: source.TypeEEG, Channels: 1, SampleRate: 256}, s.Info())
}

func TestScriptIsPhaseContinuousAcrossPulls(t *testing.T) {
	const fs = 250.0

	script := []Segment{Sine(10, 2, 2*time.Second)}

	a, err := New(script, WithSampleRate(fs))
	require.NoError(t, err)
	b, err := New(script, WithSampleRate(fs))
	require.NoError(t, err)

	whole := pullAll(t, a, 500)
	parts := pullAll(t, b, 3, 97, 1, 250, 149)

	require.Len(t, parts.Samples, 500)
	for i := range whole.Samples {
		assert.InDelta(t, whole.Samples[i][0], parts.Samples[i][0], 1e-12, "sample %d", i)
		assert.InDelta(t, float64(i)/fs, parts.Timestamps[i], 1e-12)
	}

	want := 2 * math.Sin(2*math.Pi*10*float64(123)/fs)
	assert.InDelta(t, want, whole.Samples[123][0], 1e-9)
}

func TestSegmentsAndEnd(t *testing.T) {
	s, err := New([]Segment{
		Silence(time.Second),
		{Duration: time.Second, Offset: 5},
	}, WithSampleRate(100), WithChannels(3))
	require.NoError(t, err)

	c := pullAll(t, s, 150)
	require.Len(t, c.Samples, 150)
	assert.Equal(t, []float64{0, 0, 0}, c.Samples[99])
	assert.Equal(t, []float64{5, 5, 5}, c.Samples[100])

	c = pullAll(t, s, 80)
	assert.Len(t, c.Samples, 50, "script end truncates the chunk")

	c, err = s.Pull(context.Background(), 0, 10)
	require.NoError(t, err)
	assert.Zero(t, c.Len(), "finished script yields empty chunks")
	assert.EqualValues(t, 200, s.Produced())
}

func TestNoiseIsSeededAndPerChannel(t *testing.T) {
	script := []Segment{Noise(1, 0)}

	a, err := New(script, WithSeed(7), WithChannels(2))
	require.NoError(t, err)
	b, err := New(script, WithSeed(7), WithChannels(2))
	require.NoError(t, err)

	ca := pullAll(t, a, 64)
	cb := pullAll(t, b, 64)
	assert.Equal(t, ca.Samples, cb.Samples)

	differs := false
	for _, row := range ca.Samples {
		assert.LessOrEqual(t, math.Abs(row[0]), 1.0)
		if row[0] != row[1] {
			differs = true
		}
	}
	assert.True(t, differs, "channels should carry independent noise")
}

func TestPacedReleasesAtNominalRate(t *testing.T) {
	var mu sync.Mutex
	now := time.Unix(1000, 0)
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	advance := func(d time.Duration) {
		mu.Lock()
		now = now.Add(d)
		mu.Unlock()
	}

	s, err := New([]Segment{Sine(10, 1, 0)}, WithSampleRate(250), WithPacing(clock))
	require.NoError(t, err)

	c, err := s.Pull(context.Background(), time.Millisecond, 100)
	require.NoError(t, err)
	assert.Zero(t, c.Len(), "nothing is due at start")

	advance(500 * time.Millisecond)
	c, err = s.Pull(context.Background(), time.Millisecond, 1000)
	require.NoError(t, err)
	assert.Equal(t, 125, c.Len())

	advance(100 * time.Millisecond)
	c, err = s.Pull(context.Background(), time.Millisecond, 12)
	require.NoError(t, err)
	assert.Equal(t, 12, c.Len(), "maxSamples bounds the chunk")
}

func TestPullHonoursContext(t *testing.T) {
	frozen := time.Unix(0, 0)
	s, err := New([]Segment{Silence(0)}, WithPacing(func() time.Time { return frozen }))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = s.Pull(ctx, time.Hour, 10)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestClose(t *testing.T) {
	s, err := New([]Segment{Silence(0)})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	_, err = s.Pull(context.Background(), 0, 1)
	assert.ErrorIs(t, err, source.ErrClosed)
}

func TestNewRejectsBadScripts(t *testing.T) {
	tests := map[string]struct {
		script []Segment
		opts   []Option
	}{
		"empty":            {script: nil},
		"endless not last": {script: []Segment{Silence(0), Silence(time.Second)}},
		"tone above nyq":   {script: []Segment{Sine(200, 1, time.Second)}},
		"negative noise":   {script: []Segment{Noise(-1, time.Second)}},
		"no channels":      {script: []Segment{Silence(time.Second)}, opts: []Option{WithChannels(0)}},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := New(tt.script, tt.opts...)
			assert.ErrorIs(t, err, source.ErrSourceUnavailable)
		})
	}
}
