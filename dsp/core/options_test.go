package core

import "testing"

func TestApplyProcessorOptions(t *testing.T) {
	cfg := ApplyProcessorOptions(WithSampleRate(250), WithBlockSize(33))
	if cfg.SampleRate != 250 {
		t.Fatalf("sample rate = %v, want 250", cfg.SampleRate)
	}
	if cfg.BlockSize != 33 {
		t.Fatalf("block size = %d, want 33", cfg.BlockSize)
	}
}

func TestInvalidOptionsIgnored(t *testing.T) {
	cfg := ApplyProcessorOptions(WithSampleRate(0), WithBlockSize(-1), nil)
	def := DefaultProcessorConfig()
	if cfg != def {
		t.Fatalf("cfg = %#v, want %#v", cfg, def)
	}
}

func TestSamples(t *testing.T) {
	tests := []struct {
		seconds, rate float64
		want          int
	}{
		{5, 256, 1280},
		{1, 256, 256},
		{0.05, 256, 13},
		{0.05, 250, 13},
		{0, 256, 0},
		{-1, 256, 0},
	}
	for _, tt := range tests {
		if got := Samples(tt.seconds, tt.rate); got != tt.want {
			t.Errorf("Samples(%v, %v) = %d, want %d", tt.seconds, tt.rate, got, tt.want)
		}
	}
}
