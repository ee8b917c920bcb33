// Package mqttstatus publishes flashing progress to an MQTT broker so that
// a lab dashboard can follow a session remotely.
package mqttstatus

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"vpflash/internal/status"
)

const (
	defaultPort           = "1883"
	defaultConnectTimeout = 5 * time.Second
	publishTimeout        = 2 * time.Second
)

// Config describes the broker connection.
type Config struct {
	Broker         string // tcp://host:port
	Topic          string
	Username       string
	Password       string
	ClientID       string
	ConnectTimeout time.Duration
}

// ParseBrokerURL parses mqtt://[user:pass@]host[:port]/topic.
func ParseBrokerURL(raw string) (Config, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return Config{}, fmt.Errorf("invalid broker URL: %v", err)
	}

	if u.Scheme != "mqtt" && u.Scheme != "tcp" {
		return Config{}, fmt.Errorf("unsupported scheme: %s (use mqtt:// or tcp://)", u.Scheme)
	}
	if u.Hostname() == "" {
		return Config{}, fmt.Errorf("no broker host in URL")
	}

	port := u.Port()
	if port == "" {
		port = defaultPort
	}

	topic := strings.Trim(u.Path, "/")
	if err := ValidateTopic(topic); err != nil {
		return Config{}, err
	}

	cfg := Config{
		Broker: fmt.Sprintf("tcp://%s:%s", u.Hostname(), port),
		Topic:  topic,
	}
	if u.User != nil {
		cfg.Username = u.User.Username()
		cfg.Password, _ = u.User.Password()
	}

	return cfg, nil
}

// ValidateTopic checks that topic can be used as a publish topic prefix.
func ValidateTopic(topic string) error {
	if topic == "" {
		return fmt.Errorf("no topic specified in URL")
	}

	if len(topic) > 65535 {
		return fmt.Errorf("topic too long (max 65535 characters)")
	}

	if strings.Contains(topic, "\u0000") {
		return fmt.Errorf("topic contains null character")
	}

	// Wildcard characters should not be in publish topics
	if strings.ContainsAny(topic, "+#") {
		return fmt.Errorf("wildcards not allowed in publish topics")
	}

	return nil
}

// Publisher is a status.Sink that forwards events as JSON to
// <topic>/status and the session summary to <topic>/result.
type Publisher struct {
	client  mqtt.Client
	topic   string
	logger  *slog.Logger
	timeout time.Duration
}

var _ status.Sink = (*Publisher)(nil)

// Connect dials the broker once. There is no reconnect loop: if the broker
// goes away mid-session, publishing fails and is logged.
func Connect(cfg Config, logger *slog.Logger) (*Publisher, error) {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = defaultConnectTimeout
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	opts.SetUsername(cfg.Username)
	opts.SetPassword(cfg.Password)
	opts.SetConnectTimeout(cfg.ConnectTimeout)
	opts.SetKeepAlive(30 * time.Second)
	opts.SetPingTimeout(5 * time.Second)
	opts.SetAutoReconnect(false)
	opts.SetConnectionLostHandler(func(client mqtt.Client, err error) {
		logger.Warn("MQTT connection lost", "error", err)
	})

	client := mqtt.NewClient(opts)

	logger.Info("connecting to MQTT broker", "broker", cfg.Broker)
	token := client.Connect()
	if !token.WaitTimeout(cfg.ConnectTimeout) {
		return nil, fmt.Errorf("connect to %s: timed out after %s", cfg.Broker, cfg.ConnectTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to %s: %w", cfg.Broker, err)
	}

	return New(client, cfg.Topic, logger), nil
}

// New wraps a connected client.
func New(client mqtt.Client, topic string, logger *slog.Logger) *Publisher {
	return &Publisher{
		client:  client,
		topic:   topic,
		logger:  logger,
		timeout: publishTimeout,
	}
}

func (p *Publisher) Publish(ev status.Event) {
	p.send(p.topic+"/status", false, ev)
}

// Finish publishes the summary retained, so late subscribers still see how
// the last session ended.
func (p *Publisher) Finish(sum status.Summary) {
	p.send(p.topic+"/result", true, sum)
}

// Close disconnects from the broker, giving in-flight messages a moment to
// leave.
func (p *Publisher) Close() {
	p.client.Disconnect(250)
}

func (p *Publisher) send(topic string, retained bool, v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		p.logger.Error("failed to encode MQTT payload", "topic", topic, "error", err)
		return
	}

	token := p.client.Publish(topic, 1, retained, payload)
	if !token.WaitTimeout(p.timeout) {
		p.logger.Warn("MQTT publish timed out", "topic", topic)
		return
	}
	if err := token.Error(); err != nil {
		p.logger.Warn("failed to publish MQTT message", "topic", topic, "error", err)
		return
	}

	p.logger.Debug("published MQTT message", "topic", topic, "payload", string(payload))
}
