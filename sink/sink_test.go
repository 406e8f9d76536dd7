package sink

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cwbudde/algo-neurofeedback/feedback/pipeline"
)

type recordingSink struct {
	got    []pipeline.Output
	err    error
	closed bool
}

func (r *recordingSink) Publish(_ context.Context, out pipeline.Output) error {
	r.got = append(r.got, out)
	return r.err
}

func (r *recordingSink) Close() error {
	r.closed = true
	return r.err
}

func TestFanoutDeliversToAllAndJoinsErrors(t *testing.T) {
	failure := errors.New("broker gone")
	a := &recordingSink{}
	b := &recordingSink{err: failure}
	c := &recordingSink{}

	f := Fanout{a, b, c}
	err := f.Publish(context.Background(), pipeline.Output{Tick: 7})
	assert.ErrorIs(t, err, failure)

	for _, s := range []*recordingSink{a, b, c} {
		require.Len(t, s.got, 1)
		assert.EqualValues(t, 7, s.got[0].Tick)
	}

	assert.ErrorIs(t, f.Close(), failure)
	assert.True(t, a.closed && b.closed && c.closed)
}

func TestLogSinkLevels(t *testing.T) {
	var buf bytes.Buffer
	l := Log{Logger: slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))}

	require.NoError(t, l.Publish(context.Background(), pipeline.Output{Tick: 1, Metric: 2}))
	assert.Empty(t, buf.String(), "plain ticks log at debug")

	require.NoError(t, l.Publish(context.Background(), pipeline.Output{Tick: 2, Metric: 4, Triggered: true, StateName: "triggered"}))
	assert.Contains(t, buf.String(), "msg=trigger")
	assert.Contains(t, buf.String(), "metric=4")
	assert.Contains(t, buf.String(), "state=triggered")
}
