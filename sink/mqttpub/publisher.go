// Package mqttpub publishes pipeline outputs to an MQTT broker.
//
// Every tick goes to <prefix>/<session>/metric at QoS 0. Triggers are also
// sent to <prefix>/<session>/trigger at QoS 1 so consumers that only react
// to events can subscribe to that topic alone.
package mqttpub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/eclipse/paho.golang/paho"
	"github.com/google/uuid"

	"github.com/cwbudde/algo-neurofeedback/feedback/pipeline"
)

// ErrConnect reports a failed broker connection.
var ErrConnect = errors.New("mqttpub: connect failed")

// Client is the subset of *paho.Client used by the publisher.
type Client interface {
	Publish(ctx context.Context, p *paho.Publish) (*paho.PublishResponse, error)
	Disconnect(d *paho.Disconnect) error
}

// Config describes the broker connection and topics.
type Config struct {
	// Broker is host:port of a TCP listener.
	Broker      string
	ClientID    string
	Username    string
	Password    string
	KeepAlive   uint16
	TopicPrefix string
	// ConnectTimeout bounds dialing and the CONNECT handshake.
	ConnectTimeout time.Duration
}

// DefaultConfig returns a local broker setup.
func DefaultConfig() Config {
	return Config{
		Broker:         "localhost:1883",
		KeepAlive:      30,
		TopicPrefix:    "bandpower",
		ConnectTimeout: 5 * time.Second,
	}
}

// Publisher is a pipeline sink backed by an MQTT client.
type Publisher struct {
	client Client
	prefix string
	logger *slog.Logger
}

// Option configures a Publisher.
type Option func(*Publisher)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Publisher) {
		if l != nil {
			p.logger = l
		}
	}
}

// Dial connects to cfg.Broker over TCP and performs the MQTT v5 handshake.
func Dial(ctx context.Context, cfg Config, opts ...Option) (*Publisher, error) {
	if cfg.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.ConnectTimeout)
		defer cancel()
	}

	if cfg.ClientID == "" {
		cfg.ClientID = "bandpower-" + uuid.NewString()
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", cfg.Broker)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %w", ErrConnect, cfg.Broker, err)
	}

	p := NewPublisher(nil, cfg, opts...)

	client := paho.NewClient(paho.ClientConfig{
		Conn:     conn,
		ClientID: cfg.ClientID,
		OnClientError: func(err error) {
			p.logger.Error("mqtt client error", "error", err)
		},
		OnServerDisconnect: func(d *paho.Disconnect) {
			p.logger.Warn("mqtt server disconnected", "reason", d.ReasonCode)
		},
	})

	connect := &paho.Connect{
		ClientID:   cfg.ClientID,
		KeepAlive:  cfg.KeepAlive,
		CleanStart: true,
	}
	if cfg.Username != "" {
		connect.Username = cfg.Username
		connect.UsernameFlag = true
	}
	if cfg.Password != "" {
		connect.Password = []byte(cfg.Password)
		connect.PasswordFlag = true
	}

	ack, err := client.Connect(ctx, connect)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("%w: %s: %w", ErrConnect, cfg.Broker, err)
	}
	if ack.ReasonCode != 0 {
		_ = conn.Close()
		return nil, fmt.Errorf("%w: %s: reason code %d", ErrConnect, cfg.Broker, ack.ReasonCode)
	}

	p.client = client
	p.logger.Info("mqtt connected", "broker", cfg.Broker, "client_id", cfg.ClientID)

	return p, nil
}

// NewPublisher wraps an existing client.
func NewPublisher(client Client, cfg Config, opts ...Option) *Publisher {
	p := &Publisher{
		client: client,
		prefix: cfg.TopicPrefix,
		logger: slog.New(slog.DiscardHandler),
	}
	if p.prefix == "" {
		p.prefix = "bandpower"
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p
}

// MetricTopic returns the per-tick topic for session.
func (p *Publisher) MetricTopic(session uuid.UUID) string {
	return fmt.Sprintf("%s/%s/metric", p.prefix, session)
}

// TriggerTopic returns the trigger topic for session.
func (p *Publisher) TriggerTopic(session uuid.UUID) string {
	return fmt.Sprintf("%s/%s/trigger", p.prefix, session)
}

// Publish sends out as JSON. Stale ticks are skipped.
func (p *Publisher) Publish(ctx context.Context, out pipeline.Output) error {
	if out.Stale {
		return nil
	}

	payload, err := json.Marshal(out)
	if err != nil {
		return err
	}

	if _, err := p.client.Publish(ctx, &paho.Publish{
		Topic:   p.MetricTopic(out.Session),
		QoS:     0,
		Payload: payload,
		Properties: &paho.PublishProperties{
			ContentType: "application/json",
		},
	}); err != nil {
		return fmt.Errorf("mqttpub: publish metric: %w", err)
	}

	if !out.Triggered {
		return nil
	}

	if _, err := p.client.Publish(ctx, &paho.Publish{
		Topic:   p.TriggerTopic(out.Session),
		QoS:     1,
		Payload: payload,
		Properties: &paho.PublishProperties{
			ContentType: "application/json",
		},
	}); err != nil {
		return fmt.Errorf("mqttpub: publish trigger: %w", err)
	}

	return nil
}

// Close sends DISCONNECT.
func (p *Publisher) Close() error {
	if p.client == nil {
		return nil
	}
	return p.client.Disconnect(&paho.Disconnect{ReasonCode: 0})
}
