package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/cwbudde/algo-neurofeedback/dsp/spectrum"
	"github.com/cwbudde/algo-neurofeedback/feedback/pipeline"
)

func printBands(w io.Writer, est *spectrum.BandEstimator) error {
	if _, err := fmt.Fprintf(w, "sample rate %g Hz, epoch %d samples, fft %d, resolution %.4g Hz\n\n",
		est.SampleRate(), est.EpochLength(), est.FFTSize(), est.Resolution()); err != nil {
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)

	if _, err := fmt.Fprintln(tw, "Band\tLow Hz\tHigh Hz\tBins\tCount"); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	if _, err := fmt.Fprintln(tw, "----\t------\t-------\t----\t-----"); err != nil {
		return fmt.Errorf("write separator: %w", err)
	}

	bands := est.Bands()
	ranges := est.BinRanges()

	for i, b := range bands {
		r := ranges[i]
		if _, err := fmt.Fprintf(tw, "%s\t%g\t%g\t%d-%d\t%d\n", b.Name, b.Low, b.High, r.Lo, r.Hi, r.Len()); err != nil {
			return fmt.Errorf("write row: %w", err)
		}
	}

	if err := tw.Flush(); err != nil {
		return fmt.Errorf("flush table: %w", err)
	}

	return nil
}

// tableSink prints one aligned row per tick. Rows are flushed
// individually, so the minimum cell width keeps columns lined up.
type tableSink struct {
	tw     *tabwriter.Writer
	header bool
}

func newTableSink(w io.Writer) *tableSink {
	return &tableSink{tw: tabwriter.NewWriter(w, 11, 0, 1, ' ', 0)}
}

func (t *tableSink) Publish(_ context.Context, out pipeline.Output) error {
	if !t.header {
		if _, err := fmt.Fprintln(t.tw, "Tick\tMetric\tState\tDelta\tTheta\tAlpha\tBeta\tFlags"); err != nil {
			return fmt.Errorf("write header: %w", err)
		}
		t.header = true
	}

	p := out.Powers
	if _, err := fmt.Fprintf(t.tw, "%d\t%.4f\t%s\t%.4g\t%.4g\t%.4g\t%.4g\t%s\n",
		out.Tick, out.Metric, out.StateName,
		p[spectrum.Delta], p[spectrum.Theta], p[spectrum.Alpha], p[spectrum.Beta],
		flags(out)); err != nil {
		return fmt.Errorf("write row: %w", err)
	}

	return t.tw.Flush()
}

func (t *tableSink) Close() error { return t.tw.Flush() }

func flags(out pipeline.Output) string {
	s := ""
	add := func(cond bool, f string) {
		if !cond {
			return
		}
		if s != "" {
			s += ","
		}
		s += f
	}

	add(out.Triggered, "TRIGGER")
	add(out.Stale, "stale")
	add(out.Degenerate, "degenerate")
	add(!out.Warm, "warmup")

	if s == "" {
		return "-"
	}

	return s
}
