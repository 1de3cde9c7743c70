// Package mqtt mirrors log records and samples to an MQTT broker.
package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"i4.energy/across/drivetest/logfile"
	"i4.energy/across/drivetest/modem"
)

// ErrPublishTimeout is returned when the broker did not confirm a publish
// within Config.PublishTimeout.
var ErrPublishTimeout = errors.New("mqtt publish timed out")

type Config struct {
	// Broker is the broker URL, e.g. tcp://localhost:1883.
	Broker   string
	ClientID string
	Username string
	Password string
	// TopicPrefix is prepended to every topic.
	TopicPrefix    string
	QoS            byte
	ConnectTimeout time.Duration
	PublishTimeout time.Duration
}

func (c *Config) setDefaults() {
	if c.ClientID == "" {
		c.ClientID = "drivetest"
	}
	if c.TopicPrefix == "" {
		c.TopicPrefix = "drivetest"
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 10 * time.Second
	}
	if c.PublishTimeout <= 0 {
		c.PublishTimeout = 2 * time.Second
	}
}

// Publisher publishes JSON documents:
//
//	<prefix>/<stream>/record  every log record, stream being modem or gnss
//	<prefix>/modem/sample     every telemetry sample
//
// Publisher implements the sinks of the session and gnss packages.
type Publisher struct {
	client paho.Client
	config Config
	logger *slog.Logger
}

// New builds a publisher with an auto-reconnecting paho client. Call
// Connect before publishing.
func New(config Config, logger *slog.Logger) (*Publisher, error) {
	if config.Broker == "" {
		return nil, errors.New("mqtt: broker is required")
	}
	config.setDefaults()
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	opts := paho.NewClientOptions()
	opts.AddBroker(config.Broker)
	opts.SetClientID(config.ClientID)
	if config.Username != "" {
		opts.SetUsername(config.Username)
		opts.SetPassword(config.Password)
	}
	opts.SetOrderMatters(false)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetConnectTimeout(config.ConnectTimeout)
	opts.SetConnectionLostHandler(func(_ paho.Client, err error) {
		logger.Warn("mqtt connection lost", "error", err)
	})
	opts.SetOnConnectHandler(func(paho.Client) {
		logger.Info("mqtt connected", "broker", config.Broker)
	})

	return NewWithClient(paho.NewClient(opts), config, logger), nil
}

// NewWithClient wraps an existing client.
func NewWithClient(client paho.Client, config Config, logger *slog.Logger) *Publisher {
	config.setDefaults()
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Publisher{client: client, config: config, logger: logger}
}

// Connect starts the connection. With connect retry enabled the client keeps
// trying in the background, so a broker that is down at start-up is not an
// error once ctx allows waiting no longer.
func (p *Publisher) Connect(ctx context.Context) error {
	token := p.client.Connect()
	select {
	case <-token.Done():
		if err := token.Error(); err != nil {
			return fmt.Errorf("mqtt connect: %w", err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(p.config.ConnectTimeout):
		p.logger.Warn("mqtt broker not reachable yet, retrying in background", "broker", p.config.Broker)
		return nil
	}
}

// Close disconnects, waiting briefly for in-flight messages.
func (p *Publisher) Close() {
	p.client.Disconnect(250)
}

type recordDoc struct {
	Stream string    `json:"stream"`
	Time   time.Time `json:"time"`
	Line   string    `json:"line"`
}

type sampleDoc struct {
	Time   time.Time          `json:"time"`
	Sample modem.SignalSample `json:"sample"`
}

// PublishRecord publishes rec on <prefix>/<stream>/record.
func (p *Publisher) PublishRecord(ctx context.Context, rec logfile.Record) error {
	return p.publish(ctx, p.Topic(rec.Stream, "record"), recordDoc(rec))
}

// PublishSample publishes sample on <prefix>/modem/sample.
func (p *Publisher) PublishSample(ctx context.Context, sample modem.SignalSample) error {
	return p.publish(ctx, p.Topic("modem", "sample"), sampleDoc{Time: time.Now(), Sample: sample})
}

// Topic joins the prefix and parts with slashes.
func (p *Publisher) Topic(parts ...string) string {
	topic := p.config.TopicPrefix
	for _, part := range parts {
		topic += "/" + part
	}
	return topic
}

func (p *Publisher) publish(ctx context.Context, topic string, v any) error {
	if !p.client.IsConnectionOpen() {
		return nil
	}
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("mqtt encode %s: %w", topic, err)
	}

	token := p.client.Publish(topic, p.config.QoS, false, payload)
	select {
	case <-token.Done():
		if err := token.Error(); err != nil {
			return fmt.Errorf("mqtt publish %s: %w", topic, err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(p.config.PublishTimeout):
		return fmt.Errorf("%w: %s", ErrPublishTimeout, topic)
	}
}
