// Package mqtt adapts an Eclipse Paho client to the reporters' publisher
// contract. Paho's auto-reconnect is the reconnection policy; this package
// only decides whether a session is usable right now.
package mqtt

import (
	"context"
	"errors"
	"fmt"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/sirupsen/logrus"
)

var ErrReconnecting = errors.New("mqtt: reconnecting")

type Config struct {
	Broker         string        `yaml:"broker"`
	ClientID       string        `yaml:"client_id"`
	Username       string        `yaml:"username"`
	Password       string        `yaml:"password"`
	QoS            byte          `yaml:"qos"`
	Retain         bool          `yaml:"retain"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
}

type Publisher struct {
	client paho.Client
	cfg    Config
	log    logrus.FieldLogger
}

func New(cfg Config, log logrus.FieldLogger) *Publisher {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 10 * time.Second
	}

	opts := paho.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetUsername(cfg.Username).
		SetPassword(cfg.Password).
		SetConnectTimeout(cfg.ConnectTimeout).
		SetAutoReconnect(true).
		SetMaxReconnectInterval(time.Minute).
		SetCleanSession(true).
		SetOnConnectHandler(func(paho.Client) {
			log.WithField("broker", cfg.Broker).Info("mqtt connected")
		}).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			log.WithError(err).Warn("mqtt connection lost")
		})

	return &Publisher{client: paho.NewClient(opts), cfg: cfg, log: log}
}

// EnsureConnected connects if no session exists. While Paho is already
// reconnecting on its own the cycle is declared unavailable.
func (p *Publisher) EnsureConnected(ctx context.Context) error {
	if p.client.IsConnectionOpen() {
		return nil
	}
	if p.client.IsConnected() {
		return ErrReconnecting
	}
	if err := wait(ctx, p.client.Connect()); err != nil {
		return fmt.Errorf("mqtt connect %s: %w", p.cfg.Broker, err)
	}
	return nil
}

func (p *Publisher) Publish(ctx context.Context, topic string, payload []byte) error {
	if err := wait(ctx, p.client.Publish(topic, p.cfg.QoS, p.cfg.Retain, payload)); err != nil {
		return fmt.Errorf("mqtt publish %s: %w", topic, err)
	}
	return nil
}

func (p *Publisher) Close() {
	p.client.Disconnect(250)
}

func wait(ctx context.Context, tok paho.Token) error {
	select {
	case <-tok.Done():
		return tok.Error()
	case <-ctx.Done():
		return ctx.Err()
	}
}
