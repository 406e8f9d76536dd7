// Package openbci reads EEG samples from an OpenBCI Cyton board over its
// serial dongle.
//
// The board streams 33-byte packets at 250 Hz once it receives the 'b'
// command and stops on 's'. A reader goroutine owned by the Source decodes
// packets into a bounded queue; Pull drains that queue.
package openbci

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/tarm/serial"

	"github.com/cwbudde/algo-neurofeedback/source"
)

const (
	DefaultBaud      = 115200
	DefaultQueueSize = 1024

	cmdStart = 'b'
	cmdStop  = 's'

	readTimeout = 100 * time.Millisecond
	idleBackoff = 10 * time.Millisecond
)

// Option configures a Source.
type Option func(*options)

type options struct {
	baud      int
	gain      float64
	queueSize int
	name      string
	logger    *slog.Logger
	now       func() time.Time
}

// WithBaud sets the serial baud rate.
func WithBaud(baud int) Option {
	return func(o *options) { o.baud = baud }
}

// WithGain sets the programmable amplifier gain used for scaling.
func WithGain(gain float64) Option {
	return func(o *options) { o.gain = gain }
}

// WithQueueSize bounds the number of decoded samples held between pulls.
// When the queue is full the oldest samples are dropped.
func WithQueueSize(n int) Option {
	return func(o *options) { o.queueSize = n }
}

// WithName sets the stream name reported by Info.
func WithName(name string) Option {
	return func(o *options) { o.name = name }
}

// WithLogger sets the logger for framing and overflow warnings.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithClock sets the clock used for sample timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

type sample struct {
	row []float64
	ts  float64
}

// Source is a Cyton sample stream.
type Source struct {
	port   io.ReadWriteCloser
	info   source.Info
	scale  float64
	logger *slog.Logger
	now    func() time.Time
	start  time.Time

	queue chan sample
	done  chan struct{}
	wg    sync.WaitGroup

	mu       sync.Mutex
	readErr  error
	closed   bool
	dropped  uint64
	badFrame uint64
	lost     uint64
}

// Open opens the serial device at path and starts streaming.
func Open(path string, opts ...Option) (*Source, error) {
	o := applyOptions(opts)

	port, err := serial.OpenPort(&serial.Config{
		Name:        path,
		Baud:        o.baud,
		ReadTimeout: readTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %w", source.ErrSourceUnavailable, path, err)
	}

	if o.name == "" {
		o.name = "OpenBCI Cyton " + path
	}

	return newSource(port, o)
}

// NewFromPort starts streaming on an already opened port. The Source takes
// ownership of port and closes it on Close.
func NewFromPort(port io.ReadWriteCloser, opts ...Option) (*Source, error) {
	if port == nil {
		return nil, fmt.Errorf("%w: nil port", source.ErrSourceUnavailable)
	}
	return newSource(port, applyOptions(opts))
}

func applyOptions(opts []Option) options {
	o := options{
		baud:      DefaultBaud,
		gain:      DefaultGain,
		queueSize: DefaultQueueSize,
		now:       time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	if o.logger == nil {
		o.logger = slog.New(slog.DiscardHandler)
	}
	if o.queueSize <= 0 {
		o.queueSize = DefaultQueueSize
	}
	return o
}

func newSource(port io.ReadWriteCloser, o options) (*Source, error) {
	if !(o.gain > 0) {
		_ = port.Close()
		return nil, fmt.Errorf("%w: gain %g", source.ErrSourceUnavailable, o.gain)
	}

	if o.name == "" {
		o.name = "OpenBCI Cyton"
	}

	if _, err := port.Write([]byte{cmdStart}); err != nil {
		_ = port.Close()
		return nil, fmt.Errorf("%w: start stream: %w", source.ErrSourceUnavailable, err)
	}

	s := &Source{
		port: port,
		info: source.Info{
			Name:       o.name,
			Type:       source.TypeEEG,
			Channels:   NumChannels,
			SampleRate: SampleRate,
		},
		scale:  ScaleMicrovolts(o.gain),
		logger: o.logger,
		now:    o.now,
		start:  o.now(),
		queue:  make(chan sample, o.queueSize),
		done:   make(chan struct{}),
	}

	s.wg.Add(1)
	go s.readLoop()

	return s, nil
}

// Info describes the stream.
func (s *Source) Info() source.Info { return s.info }

// Stats returns counters for samples dropped on queue overflow, frames
// rejected by framing checks and packets lost according to sample numbers.
func (s *Source) Stats() (dropped, badFrames, lost uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped, s.badFrame, s.lost
}

// Pull waits at most timeout for the first queued sample and then drains
// up to maxSamples without blocking.
func (s *Source) Pull(ctx context.Context, timeout time.Duration, maxSamples int) (source.Chunk, error) {
	var c source.Chunk

	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return c, source.ErrClosed
	}

	if maxSamples <= 0 {
		return c, nil
	}

	first, ok, err := s.waitFirst(ctx, timeout)
	if err != nil || !ok {
		return c, err
	}

	c.Samples = append(c.Samples, first.row)
	c.Timestamps = append(c.Timestamps, first.ts)

	for len(c.Samples) < maxSamples {
		select {
		case smp := <-s.queue:
			c.Samples = append(c.Samples, smp.row)
			c.Timestamps = append(c.Timestamps, smp.ts)
		default:
			return c, nil
		}
	}

	return c, nil
}

func (s *Source) waitFirst(ctx context.Context, timeout time.Duration) (sample, bool, error) {
	select {
	case smp := <-s.queue:
		return smp, true, nil
	default:
	}

	if err := s.failure(); err != nil {
		return sample{}, false, err
	}

	if timeout <= 0 {
		return sample{}, false, nil
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case smp := <-s.queue:
		return smp, true, nil
	case <-timer.C:
		return sample{}, false, nil
	case <-s.done:
		return sample{}, false, s.failure()
	case <-ctx.Done():
		return sample{}, false, ctx.Err()
	}
}

func (s *Source) failure() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.readErr != nil {
		return fmt.Errorf("openbci: read: %w", s.readErr)
	}
	return nil
}

// Close stops streaming, closes the port and waits for the reader.
func (s *Source) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	_, werr := s.port.Write([]byte{cmdStop})
	cerr := s.port.Close()
	s.wg.Wait()

	return errors.Join(werr, cerr)
}

func (s *Source) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Source) readLoop() {
	defer s.wg.Done()
	defer close(s.done)

	r := bufio.NewReaderSize(s.port, 4*PacketSize)
	frame := make([]byte, PacketSize)

	var (
		lastNumber byte
		haveLast   bool
	)

	for {
		if err := s.readFrame(r, frame); err != nil {
			if s.isClosed() {
				return
			}
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				// Serial reads report EOF when the read timeout elapses.
				time.Sleep(idleBackoff)
				continue
			}
			s.mu.Lock()
			s.readErr = err
			s.mu.Unlock()
			s.logger.Error("openbci read failed", "stream", s.info.Name, "error", err)
			return
		}

		p, err := DecodePacket(frame, s.scale)
		if err != nil {
			s.mu.Lock()
			s.badFrame++
			s.mu.Unlock()
			s.logger.Warn("openbci framing error", "error", err)
			continue
		}

		if haveLast {
			if gap := p.SampleNumber - lastNumber - 1; gap != 0 {
				s.mu.Lock()
				s.lost += uint64(gap)
				s.mu.Unlock()
				s.logger.Warn("openbci packets lost", "count", gap, "sample_number", p.SampleNumber)
			}
		}
		lastNumber, haveLast = p.SampleNumber, true

		row := make([]float64, NumChannels)
		copy(row, p.Channels[:])
		s.enqueue(sample{row: row, ts: s.now().Sub(s.start).Seconds()})
	}
}

// readFrame reads bytes until a header is found and then the rest of the
// frame.
func (s *Source) readFrame(r *bufio.Reader, frame []byte) error {
	for {
		b, err := r.ReadByte()
		if err != nil {
			return err
		}
		if b == Header {
			break
		}
	}

	frame[0] = Header
	_, err := io.ReadFull(r, frame[1:])
	return err
}

func (s *Source) enqueue(smp sample) {
	for {
		select {
		case s.queue <- smp:
			return
		default:
		}

		select {
		case <-s.queue:
			s.mu.Lock()
			s.dropped++
			s.mu.Unlock()
		default:
		}
	}
}
