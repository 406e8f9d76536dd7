// Command bandpower runs a band-power neurofeedback session from a
// synthetic or OpenBCI source and reports the protocol metric.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lmittmann/tint"

	"github.com/cwbudde/algo-neurofeedback/dsp/core"
	"github.com/cwbudde/algo-neurofeedback/dsp/spectrum"
	"github.com/cwbudde/algo-neurofeedback/feedback/pipeline"
	"github.com/cwbudde/algo-neurofeedback/sink"
	"github.com/cwbudde/algo-neurofeedback/sink/mqttpub"
	"github.com/cwbudde/algo-neurofeedback/sink/wshub"
	"github.com/cwbudde/algo-neurofeedback/source"
	"github.com/cwbudde/algo-neurofeedback/source/openbci"
	"github.com/cwbudde/algo-neurofeedback/source/synthetic"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("bandpower", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var (
		configPath = fs.String("config", "", "config file (yaml, json or toml)")
		listBands  = fs.Bool("list-bands", false, "print the band table with FFT bin ranges and exit")
		srcKind    = fs.String("source", "", "sample source: synthetic or openbci")
		script     = fs.String("script", "", "synthetic segment script")
		device     = fs.String("device", "", "OpenBCI serial device")
		protocol   = fs.String("protocol", "", "ratio protocol, e.g. beta/theta")
		threshold  = fs.Float64("threshold", 0, "trigger threshold")
		output     = fs.String("output", "", "console output: table, log or none")
		listen     = fs.String("listen", "", "serve the websocket feed on this address")
		broker     = fs.String("mqtt", "", "publish to the MQTT broker at host:port")
		logLevel   = fs.String("log-level", "", "debug, info, warn or error")
		duration   = fs.Duration("duration", 0, "stop after this long (0 runs until interrupted)")
	)

	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: bandpower [flags]\n\n")
		fmt.Fprintf(stderr, "Streams EEG samples through the band-power pipeline and reports the\n")
		fmt.Fprintf(stderr, "protocol metric. Settings come from -config, BANDPOWER_* variables and flags.\n\n")
		fmt.Fprintf(stderr, "Flags:\n")
		fs.PrintDefaults()
		fmt.Fprintf(stderr, "\nExamples:\n")
		fmt.Fprintf(stderr, "  bandpower -list-bands\n")
		fmt.Fprintf(stderr, "  bandpower -script '5s=noise:2,forever=sine:20:30+noise:2' -threshold 2\n")
		fmt.Fprintf(stderr, "  bandpower -source openbci -device /dev/ttyUSB0 -listen :8080\n")
	}

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	flagKeys := map[string]string{
		"source":    "source.kind",
		"script":    "source.script",
		"device":    "source.device",
		"protocol":  "pipeline.protocol",
		"threshold": "pipeline.threshold",
		"output":    "output",
		"listen":    "websocket.listen",
		"mqtt":      "mqtt.broker",
		"log-level": "log_level",
		"duration":  "duration",
	}
	values := map[string]any{
		"source":    *srcKind,
		"script":    *script,
		"device":    *device,
		"protocol":  *protocol,
		"threshold": *threshold,
		"output":    *output,
		"listen":    *listen,
		"mqtt":      *broker,
		"log-level": *logLevel,
		"duration":  *duration,
	}

	overrides := make(map[string]any)
	fs.Visit(func(f *flag.Flag) {
		if key, ok := flagKeys[f.Name]; ok {
			overrides[key] = values[f.Name]
		}
	})

	cfg, err := loadConfig(*configPath, overrides)
	if err != nil {
		fmt.Fprintf(stderr, "bandpower: %v\n", err)
		return 1
	}

	level, err := parseLevel(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(stderr, "bandpower: %v\n", err)
		return 1
	}

	logger := slog.New(tint.NewHandler(stderr, &tint.Options{
		Level:      level,
		TimeFormat: time.TimeOnly,
	}))

	pcfg, err := cfg.pipelineConfig()
	if err != nil {
		logger.Error("invalid configuration", "err", err)
		return 1
	}

	if *listBands {
		if err := listBandTable(stdout, cfg, pcfg); err != nil {
			logger.Error("list bands", "err", err)
			return 1
		}
		return 0
	}

	if err := session(ctx, cfg, pcfg, stdout, logger); err != nil {
		logger.Error("session failed", "err", err)
		return 1
	}

	return 0
}

func listBandTable(w io.Writer, cfg appConfig, pcfg pipeline.Config) error {
	rate := pcfg.SampleRate
	if rate <= 0 {
		rate = nominalRate(cfg.Source)
	}

	opts := []spectrum.EstimatorOption{
		spectrum.WithBands(pcfg.Bands),
		spectrum.WithWindow(pcfg.Window),
	}
	if pcfg.Relative {
		opts = append(opts, spectrum.WithRelative())
	}

	est, err := spectrum.NewBandEstimator(rate, core.Samples(pcfg.EpochLength, rate), opts...)
	if err != nil {
		return err
	}

	if err := printBands(w, est); err != nil {
		return err
	}

	center, db, ok, err := pcfg.StopbandAttenuation(rate)
	if err != nil || !ok {
		return err
	}

	_, err = fmt.Fprintf(w, "\n%s filter: %.1f dB attenuation at %g Hz\n", pcfg.Filter.Kind, db, center)
	return err
}

func nominalRate(sc sourceConfig) float64 {
	if sc.Kind == "openbci" {
		return openbci.SampleRate
	}
	return sc.SampleRate
}

func openSource(sc sourceConfig, logger *slog.Logger) (source.Source, error) {
	switch sc.Kind {
	case "synthetic":
		segments, err := synthetic.ParseScript(sc.Script)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", source.ErrSourceUnavailable, err)
		}

		opts := []synthetic.Option{
			synthetic.WithSampleRate(sc.SampleRate),
			synthetic.WithChannels(sc.Channels),
			synthetic.WithSeed(sc.Seed),
		}
		if sc.Paced {
			opts = append(opts, synthetic.WithPacing(nil))
		}

		return synthetic.New(segments, opts...)
	case "openbci":
		return openbci.Open(sc.Device,
			openbci.WithBaud(sc.Baud),
			openbci.WithGain(sc.Gain),
			openbci.WithLogger(logger),
		)
	default:
		return nil, fmt.Errorf("%w: unknown source kind %q", source.ErrSourceUnavailable, sc.Kind)
	}
}

func session(ctx context.Context, cfg appConfig, pcfg pipeline.Config, stdout io.Writer, logger *slog.Logger) error {
	if cfg.Duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Duration)
		defer cancel()
	}

	src, err := openSource(cfg.Source, logger)
	if err != nil {
		return err
	}
	defer src.Close()

	p, err := pipeline.New(pcfg, src, pipeline.WithLogger(logger))
	if err != nil {
		return err
	}

	sinks, shutdown, err := buildSinks(ctx, cfg, p.Session(), stdout, logger)
	if err != nil {
		return err
	}
	defer shutdown()

	logger.Info("session started",
		"session", p.Session().String(),
		"source", p.SourceInfo().Name,
		"protocol", pcfg.Protocol.String(),
		"threshold", pcfg.Threshold,
		"required", p.Required(),
	)

	ticker := time.NewTicker(pcfg.UpdatePeriod)
	defer ticker.Stop()

	var triggers int
	for {
		select {
		case <-ctx.Done():
			logger.Info("session ended", "triggers", triggers)
			return nil
		case <-ticker.C:
		}

		out, err := p.Tick(ctx)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			logger.Warn("tick failed", "err", err)
		}

		if out.Triggered {
			triggers++
		}

		if err := sinks.Publish(ctx, out); err != nil {
			logger.Warn("publish failed", "tick", out.Tick, "err", err)
		}
	}
}

func buildSinks(ctx context.Context, cfg appConfig, session fmt.Stringer, stdout io.Writer, logger *slog.Logger) (sink.Fanout, func(), error) {
	var (
		sinks   sink.Fanout
		closers []func()
	)

	shutdown := func() {
		if err := sinks.Close(); err != nil {
			logger.Warn("close sinks", "err", err)
		}
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	switch cfg.Output {
	case "table":
		sinks = append(sinks, newTableSink(stdout))
	case "log":
		sinks = append(sinks, sink.Log{Logger: logger})
	case "none", "":
	default:
		return nil, nil, fmt.Errorf("unknown output %q", cfg.Output)
	}

	if cfg.WebSocket.Listen != "" {
		hub := wshub.New(wshub.WithLogger(logger))
		hubCtx, stopHub := context.WithCancel(ctx)
		go hub.Run(hubCtx)

		status := &statusSink{}
		srv := &http.Server{
			Addr:              cfg.WebSocket.Listen,
			Handler:           newRouter(cfg.WebSocket.Path, hub, status),
			ReadHeaderTimeout: 5 * time.Second,
		}

		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("websocket server", "err", err)
			}
		}()

		logger.Info("serving websocket feed", "addr", cfg.WebSocket.Listen, "path", cfg.WebSocket.Path)

		sinks = append(sinks, hub, status)
		closers = append(closers, func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
			stopHub()
		})
	}

	if cfg.MQTT.Broker != "" {
		mcfg := mqttpub.DefaultConfig()
		mcfg.Broker = cfg.MQTT.Broker
		mcfg.Username = cfg.MQTT.Username
		mcfg.Password = cfg.MQTT.Password
		mcfg.TopicPrefix = cfg.MQTT.TopicPrefix
		mcfg.ClientID = cfg.MQTT.ClientID
		if mcfg.ClientID == "" {
			mcfg.ClientID = "bandpower-" + session.String()
		}

		pub, err := mqttpub.Dial(ctx, mcfg, mqttpub.WithLogger(logger))
		if err != nil {
			shutdown()
			return nil, nil, err
		}

		logger.Info("publishing to mqtt", "broker", mcfg.Broker, "prefix", mcfg.TopicPrefix)
		sinks = append(sinks, pub)
	}

	return sinks, shutdown, nil
}
