// Package config loads daemon settings. Values come from built-in defaults,
// then an optional YAML file, then METERMON_* environment variables.
// Command line flags are applied on top by the caller.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/milad/metermon/internal/domain"
	"github.com/milad/metermon/internal/pulse"
	"github.com/milad/metermon/internal/repo/redisrepo"
	"github.com/milad/metermon/internal/service"
	"github.com/milad/metermon/internal/transport/mqtt"
	"github.com/milad/metermon/internal/transport/natspub"
)

var ErrInvalid = errors.New("invalid config")

const (
	StorageFile  = "file"
	StorageRedis = "redis"

	PublishMQTT = "mqtt"
	PublishNATS = "nats"
)

type Config struct {
	Meter    Meter    `yaml:"meter"`
	Storage  Storage  `yaml:"storage"`
	Publish  Publish  `yaml:"publish"`
	Hardware Hardware `yaml:"hardware"`
	HTTP     Listen   `yaml:"http"`
	GRPC     Listen   `yaml:"grpc"`
	Log      Log      `yaml:"log"`
}

type Meter struct {
	domain.Policy  `yaml:",inline"`
	QueueSize      int           `yaml:"queue_size"`
	PublishTimeout time.Duration `yaml:"publish_timeout"`
}

type Storage struct {
	Backend  string `yaml:"backend"`
	Path     string `yaml:"path"`
	RedisURL string `yaml:"redis_url"`
	RedisKey string `yaml:"redis_key"`
}

type Publish struct {
	Backend string         `yaml:"backend"`
	Topics  service.Topics `yaml:"topics"`
	MQTT    mqtt.Config    `yaml:"mqtt"`
	NATS    natspub.Config `yaml:"nats"`
}

type Hardware struct {
	PulsePin string `yaml:"pulse_pin"`
	Pull     string `yaml:"pull"`
	// LEDPin is optional; empty disables the status LED.
	LEDPin string `yaml:"led_pin"`
	// Simulate replaces the pulse pin with a synthetic edge source firing at
	// this interval. Zero means real hardware.
	Simulate time.Duration `yaml:"simulate"`
}

// Listen holds a listen address. Empty disables the listener.
type Listen struct {
	Addr string `yaml:"addr"`
}

type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func Default() Config {
	return Config{
		Meter: Meter{
			Policy:         domain.DefaultPolicy(),
			QueueSize:      pulse.DefaultQueueSize,
			PublishTimeout: service.DefaultPublishTimeout,
		},
		Storage: Storage{
			Backend:  StorageFile,
			Path:     "pulse_count.txt",
			RedisKey: redisrepo.DefaultKey,
		},
		Publish: Publish{
			Backend: PublishMQTT,
			Topics:  service.DefaultTopics(),
			MQTT: mqtt.Config{
				Broker:   "tcp://127.0.0.1:1883",
				ClientID: "metermon",
			},
			NATS: natspub.Config{
				URL:  "nats://127.0.0.1:4222",
				Name: "metermon",
			},
		},
		Hardware: Hardware{
			PulsePin: "GPIO5",
			Pull:     "none",
		},
		HTTP: Listen{Addr: ":8080"},
		GRPC: Listen{Addr: ":9090"},
		Log:  Log{Level: "info", Format: "text"},
	}
}

// Load reads path (if non-empty) over the defaults and applies environment
// overrides. The result is not validated; call Validate after flags.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := decode(raw, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %q: %w", path, err)
		}
	}
	if err := applyEnv(&cfg, os.LookupEnv); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func decode(raw []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

type lookupFunc func(string) (string, bool)

func applyEnv(cfg *Config, lookup lookupFunc) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	str("METERMON_STORAGE_BACKEND", &cfg.Storage.Backend)
	str("METERMON_STORAGE_PATH", &cfg.Storage.Path)
	str("METERMON_REDIS_URL", &cfg.Storage.RedisURL)
	str("METERMON_PUBLISH_BACKEND", &cfg.Publish.Backend)
	str("METERMON_MQTT_BROKER", &cfg.Publish.MQTT.Broker)
	str("METERMON_MQTT_USERNAME", &cfg.Publish.MQTT.Username)
	str("METERMON_MQTT_PASSWORD", &cfg.Publish.MQTT.Password)
	str("METERMON_NATS_URL", &cfg.Publish.NATS.URL)
	str("METERMON_PULSE_PIN", &cfg.Hardware.PulsePin)
	str("METERMON_LED_PIN", &cfg.Hardware.LEDPin)
	str("METERMON_HTTP_ADDR", &cfg.HTTP.Addr)
	str("METERMON_GRPC_ADDR", &cfg.GRPC.Addr)
	str("METERMON_LOG_LEVEL", &cfg.Log.Level)
	str("METERMON_LOG_FORMAT", &cfg.Log.Format)

	if v, ok := lookup("METERMON_SIMULATE"); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%w: METERMON_SIMULATE: %v", ErrInvalid, err)
		}
		cfg.Hardware.Simulate = d
	}
	if v, ok := lookup("METERMON_PERSIST_THRESHOLD"); ok && v != "" {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return fmt.Errorf("%w: METERMON_PERSIST_THRESHOLD: %v", ErrInvalid, err)
		}
		cfg.Meter.PersistThreshold = n
	}
	return nil
}

func (c Config) Validate() error {
	if err := c.Meter.Policy.Validate(); err != nil {
		return err
	}
	switch c.Storage.Backend {
	case StorageFile:
		if c.Storage.Path == "" {
			return fmt.Errorf("%w: storage.path is required for the file backend", ErrInvalid)
		}
	case StorageRedis:
		if c.Storage.RedisURL == "" {
			return fmt.Errorf("%w: storage.redis_url is required for the redis backend", ErrInvalid)
		}
	default:
		return fmt.Errorf("%w: unknown storage backend %q", ErrInvalid, c.Storage.Backend)
	}
	switch c.Publish.Backend {
	case PublishMQTT:
		if c.Publish.MQTT.Broker == "" {
			return fmt.Errorf("%w: publish.mqtt.broker is required", ErrInvalid)
		}
		if c.Publish.MQTT.QoS > 2 {
			return fmt.Errorf("%w: publish.mqtt.qos must be 0, 1 or 2", ErrInvalid)
		}
	case PublishNATS:
		if c.Publish.NATS.URL == "" {
			return fmt.Errorf("%w: publish.nats.url is required", ErrInvalid)
		}
	default:
		return fmt.Errorf("%w: unknown publish backend %q", ErrInvalid, c.Publish.Backend)
	}
	if c.Hardware.Simulate < 0 {
		return fmt.Errorf("%w: hardware.simulate must not be negative", ErrInvalid)
	}
	if c.Hardware.Simulate == 0 && c.Hardware.PulsePin == "" {
		return fmt.Errorf("%w: hardware.pulse_pin is required unless simulating", ErrInvalid)
	}
	return nil
}

// MonitorConfig projects the settings the engine needs.
func (c Config) MonitorConfig() service.Config {
	return service.Config{
		Policy:         c.Meter.Policy,
		Topics:         c.Publish.Topics,
		QueueSize:      c.Meter.QueueSize,
		PublishTimeout: c.Meter.PublishTimeout,
	}
}
