package core

// ProcessorConfig defines common streaming settings shared by generators and
// sources.
type ProcessorConfig struct {
	SampleRate float64
	// BlockSize is the largest chunk a producer hands out at once.
	BlockSize int
}

// ProcessorOption mutates a ProcessorConfig.
type ProcessorOption func(*ProcessorConfig)

// DefaultProcessorConfig returns defaults matching a consumer-grade EEG
// headband: 256 Hz delivered in chunks of at most 12 samples.
func DefaultProcessorConfig() ProcessorConfig {
	return ProcessorConfig{
		SampleRate: 256,
		BlockSize:  12,
	}
}

// WithSampleRate sets the sample rate in Hz.
func WithSampleRate(sampleRate float64) ProcessorOption {
	return func(cfg *ProcessorConfig) {
		if sampleRate > 0 {
			cfg.SampleRate = sampleRate
		}
	}
}

// WithBlockSize sets the maximum chunk size.
func WithBlockSize(blockSize int) ProcessorOption {
	return func(cfg *ProcessorConfig) {
		if blockSize > 0 {
			cfg.BlockSize = blockSize
		}
	}
}

// ApplyProcessorOptions applies zero or more options to the default config.
func ApplyProcessorOptions(opts ...ProcessorOption) ProcessorConfig {
	cfg := DefaultProcessorConfig()
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	return cfg
}

// Samples converts a duration in seconds to a whole number of samples at
// sampleRate, rounding to the nearest sample.
func Samples(seconds, sampleRate float64) int {
	n := seconds*sampleRate + 0.5
	if n < 0 {
		return 0
	}
	return int(n)
}
