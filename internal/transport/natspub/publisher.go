// Package natspub publishes meter readings to NATS subjects.
package natspub

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"
)

var (
	ErrReconnecting = errors.New("nats: reconnecting")
	ErrNotConnected = errors.New("nats: not connected")
)

type Config struct {
	URL            string        `yaml:"url"`
	Name           string        `yaml:"name"`
	ReconnectWait  time.Duration `yaml:"reconnect_wait"`
	MaxReconnects  int           `yaml:"max_reconnects"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
}

// Publisher connects lazily on the first EnsureConnected and leaves
// reconnection to the nats.go client afterwards.
type Publisher struct {
	cfg  Config
	conn *nats.Conn
	log  logrus.FieldLogger
}

func New(cfg Config, log logrus.FieldLogger) *Publisher {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 5 * time.Second
	}
	if cfg.ReconnectWait <= 0 {
		cfg.ReconnectWait = 2 * time.Second
	}
	if cfg.MaxReconnects == 0 {
		cfg.MaxReconnects = -1
	}
	return &Publisher{cfg: cfg, log: log}
}

// Subject maps a slash separated topic onto a NATS subject.
func Subject(topic string) string {
	return strings.ReplaceAll(strings.Trim(topic, "/"), "/", ".")
}

func (p *Publisher) EnsureConnected(ctx context.Context) error {
	if p.conn != nil {
		switch {
		case p.conn.IsConnected():
			return nil
		case p.conn.IsReconnecting():
			return ErrReconnecting
		}
		p.conn.Close()
		p.conn = nil
	}

	timeout := p.cfg.ConnectTimeout
	if dl, ok := ctx.Deadline(); ok {
		if left := time.Until(dl); left < timeout {
			timeout = left
		}
	}
	if timeout <= 0 {
		return context.DeadlineExceeded
	}

	conn, err := nats.Connect(p.cfg.URL,
		nats.Name(p.cfg.Name),
		nats.Timeout(timeout),
		nats.ReconnectWait(p.cfg.ReconnectWait),
		nats.MaxReconnects(p.cfg.MaxReconnects),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				p.log.WithError(err).Warn("nats disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			p.log.WithField("url", nc.ConnectedUrl()).Info("nats reconnected")
		}),
	)
	if err != nil {
		return fmt.Errorf("nats connect %s: %w", p.cfg.URL, err)
	}
	p.conn = conn
	p.log.WithField("url", conn.ConnectedUrl()).Info("nats connected")
	return nil
}

func (p *Publisher) Publish(ctx context.Context, topic string, payload []byte) error {
	if p.conn == nil {
		return ErrNotConnected
	}
	subject := Subject(topic)
	if err := p.conn.Publish(subject, payload); err != nil {
		return fmt.Errorf("nats publish %s: %w", subject, err)
	}
	if err := p.conn.FlushWithContext(ctx); err != nil {
		return fmt.Errorf("nats flush %s: %w", subject, err)
	}
	return nil
}

func (p *Publisher) Close() {
	if p.conn != nil {
		p.conn.Close()
	}
}
