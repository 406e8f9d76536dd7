package main

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/cwbudde/algo-neurofeedback/dsp/spectrum"
	"github.com/cwbudde/algo-neurofeedback/dsp/window"
	"github.com/cwbudde/algo-neurofeedback/feedback/metric"
	"github.com/cwbudde/algo-neurofeedback/feedback/pipeline"
)

const envPrefix = "BANDPOWER"

const defaultScript = "5s=noise:2,10s=sine:6:20+sine:20:6+noise:2,forever=sine:20:25+sine:6:5+noise:2"

type sourceConfig struct {
	Kind       string  `mapstructure:"kind"`
	Script     string  `mapstructure:"script"`
	SampleRate float64 `mapstructure:"sample_rate"`
	Channels   int     `mapstructure:"channels"`
	Seed       int64   `mapstructure:"seed"`
	Paced      bool    `mapstructure:"paced"`
	Device     string  `mapstructure:"device"`
	Baud       int     `mapstructure:"baud"`
	Gain       float64 `mapstructure:"gain"`
}

type filterConfig struct {
	Kind       string  `mapstructure:"kind"`
	Order      int     `mapstructure:"order"`
	LowHz      float64 `mapstructure:"low_hz"`
	HighHz     float64 `mapstructure:"high_hz"`
	NotchHz    float64 `mapstructure:"notch_hz"`
	NotchQ     float64 `mapstructure:"notch_q"`
	HighpassHz float64 `mapstructure:"highpass_hz"`
	HighpassQ  float64 `mapstructure:"highpass_q"`
}

type pipelineConfig struct {
	SampleRate   float64              `mapstructure:"sample_rate"`
	BufferLength float64              `mapstructure:"buffer_length"`
	EpochLength  float64              `mapstructure:"epoch_length"`
	ShiftLength  float64              `mapstructure:"shift_length"`
	Channel      int                  `mapstructure:"channel"`
	Window       string               `mapstructure:"window"`
	Relative     bool                 `mapstructure:"relative"`
	Bands        map[string][]float64 `mapstructure:"bands"`
	Protocol     string               `mapstructure:"protocol"`
	Threshold    float64              `mapstructure:"threshold"`
	RatioFloor   float64              `mapstructure:"ratio_floor"`
	Sustain      time.Duration        `mapstructure:"sustain"`
	UpdatePeriod time.Duration        `mapstructure:"update_period"`
	PullTimeout  time.Duration        `mapstructure:"pull_timeout"`
	Filter       filterConfig         `mapstructure:"filter"`
}

type websocketConfig struct {
	Listen string `mapstructure:"listen"`
	Path   string `mapstructure:"path"`
}

type mqttConfig struct {
	Broker      string `mapstructure:"broker"`
	ClientID    string `mapstructure:"client_id"`
	Username    string `mapstructure:"username"`
	Password    string `mapstructure:"password"`
	TopicPrefix string `mapstructure:"topic_prefix"`
}

type appConfig struct {
	LogLevel  string          `mapstructure:"log_level"`
	Output    string          `mapstructure:"output"`
	Duration  time.Duration   `mapstructure:"duration"`
	Source    sourceConfig    `mapstructure:"source"`
	Pipeline  pipelineConfig  `mapstructure:"pipeline"`
	WebSocket websocketConfig `mapstructure:"websocket"`
	MQTT      mqttConfig      `mapstructure:"mqtt"`
}

func setDefaults(v *viper.Viper) {
	def := pipeline.DefaultConfig()

	v.SetDefault("log_level", "info")
	v.SetDefault("output", "table")
	v.SetDefault("duration", time.Duration(0))

	v.SetDefault("source.kind", "synthetic")
	v.SetDefault("source.script", defaultScript)
	v.SetDefault("source.sample_rate", 256.0)
	v.SetDefault("source.channels", 4)
	v.SetDefault("source.seed", 1)
	v.SetDefault("source.paced", true)
	v.SetDefault("source.device", "/dev/ttyUSB0")
	v.SetDefault("source.baud", 115200)
	v.SetDefault("source.gain", 24.0)

	v.SetDefault("pipeline.sample_rate", def.SampleRate)
	v.SetDefault("pipeline.buffer_length", def.BufferLength)
	v.SetDefault("pipeline.epoch_length", def.EpochLength)
	v.SetDefault("pipeline.shift_length", def.ShiftLength)
	v.SetDefault("pipeline.channel", def.Channel)
	v.SetDefault("pipeline.window", def.Window.String())
	v.SetDefault("pipeline.relative", def.Relative)
	v.SetDefault("pipeline.protocol", def.Protocol.Name)
	v.SetDefault("pipeline.threshold", def.Threshold)
	v.SetDefault("pipeline.ratio_floor", def.RatioFloor)
	v.SetDefault("pipeline.sustain", def.Sustain)
	v.SetDefault("pipeline.update_period", def.UpdatePeriod)
	v.SetDefault("pipeline.pull_timeout", def.PullTimeout)

	v.SetDefault("pipeline.filter.kind", string(def.Filter.Kind))
	v.SetDefault("pipeline.filter.order", def.Filter.Order)
	v.SetDefault("pipeline.filter.low_hz", def.Filter.LowHz)
	v.SetDefault("pipeline.filter.high_hz", def.Filter.HighHz)
	v.SetDefault("pipeline.filter.notch_hz", def.Filter.NotchHz)
	v.SetDefault("pipeline.filter.notch_q", def.Filter.NotchQ)
	v.SetDefault("pipeline.filter.highpass_hz", def.Filter.HighpassHz)
	v.SetDefault("pipeline.filter.highpass_q", def.Filter.HighpassQ)

	v.SetDefault("websocket.path", "/ws")
	v.SetDefault("mqtt.topic_prefix", "bandpower")
}

// loadConfig merges defaults, an optional config file, BANDPOWER_*
// environment variables and explicit overrides, in increasing priority.
func loadConfig(path string, overrides map[string]any) (appConfig, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return appConfig{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	for key, value := range overrides {
		v.Set(key, value)
	}

	var cfg appConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return appConfig{}, fmt.Errorf("decode config: %w", err)
	}

	return cfg, nil
}

// pipelineConfig converts the file representation into a pipeline.Config.
func (c appConfig) pipelineConfig() (pipeline.Config, error) {
	p := c.Pipeline

	win, err := window.ParseType(p.Window)
	if err != nil {
		return pipeline.Config{}, fmt.Errorf("%w: %w", pipeline.ErrInvalidConfig, err)
	}

	protocol, err := metric.ParseProtocol(p.Protocol)
	if err != nil {
		return pipeline.Config{}, fmt.Errorf("%w: %w", pipeline.ErrInvalidConfig, err)
	}

	kind, err := pipeline.ParseFilterKind(p.Filter.Kind)
	if err != nil {
		return pipeline.Config{}, err
	}

	bands, err := parseBands(p.Bands)
	if err != nil {
		return pipeline.Config{}, err
	}

	cfg := pipeline.Config{
		SampleRate:   p.SampleRate,
		BufferLength: p.BufferLength,
		EpochLength:  p.EpochLength,
		ShiftLength:  p.ShiftLength,
		Channel:      p.Channel,
		Bands:        bands,
		Relative:     p.Relative,
		Window:       win,
		Filter: pipeline.FilterConfig{
			Kind:       kind,
			Order:      p.Filter.Order,
			LowHz:      p.Filter.LowHz,
			HighHz:     p.Filter.HighHz,
			NotchHz:    p.Filter.NotchHz,
			NotchQ:     p.Filter.NotchQ,
			HighpassHz: p.Filter.HighpassHz,
			HighpassQ:  p.Filter.HighpassQ,
		},
		Protocol:     protocol,
		RatioFloor:   p.RatioFloor,
		Threshold:    p.Threshold,
		Sustain:      p.Sustain,
		UpdatePeriod: p.UpdatePeriod,
		PullTimeout:  p.PullTimeout,
	}

	return cfg, cfg.Validate()
}

// parseBands overrides canonical band edges by name. Each entry is
// [low, high] in Hz.
func parseBands(overrides map[string][]float64) (spectrum.Bands, error) {
	bands := spectrum.CanonicalBands

	for name, edges := range overrides {
		idx := -1
		for i, b := range bands {
			if strings.EqualFold(b.Name, name) {
				idx = i
				break
			}
		}
		if idx < 0 {
			return bands, fmt.Errorf("%w: unknown band %q", pipeline.ErrInvalidConfig, name)
		}
		if len(edges) != 2 {
			return bands, fmt.Errorf("%w: band %q needs [low, high], got %v", pipeline.ErrInvalidConfig, name, edges)
		}
		bands[idx].Low, bands[idx].High = edges[0], edges[1]
	}

	return bands, nil
}

func parseLevel(name string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(name)); err != nil {
		return 0, errors.New("unknown log level " + name)
	}
	return level, nil
}
