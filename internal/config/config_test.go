package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/milad/metermon/internal/domain"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "metermon.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func noEnv(string) (string, bool) { return "", false }

func TestDefault_IsValid(t *testing.T) {
	t.Parallel()

	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, domain.DefaultPolicy(), cfg.Meter.Policy)
	assert.Equal(t, StorageFile, cfg.Storage.Backend)
	assert.Equal(t, PublishMQTT, cfg.Publish.Backend)
}

func TestDecode_OverridesDefaults(t *testing.T) {
	t.Parallel()

	cfg := Default()
	err := decode([]byte(`
meter:
  persist_threshold: 100
  energy_interval: 1m
storage:
  backend: redis
  redis_url: redis://localhost:6379/0
publish:
  backend: nats
  topics:
    energy: home/meter/wh
hardware:
  simulate: 250ms
`), &cfg)
	require.NoError(t, err)

	assert.Equal(t, uint64(100), cfg.Meter.PersistThreshold)
	assert.Equal(t, time.Minute, cfg.Meter.EnergyInterval)
	assert.Equal(t, 5*time.Second, cfg.Meter.PowerInterval, "untouched fields keep defaults")
	assert.Equal(t, StorageRedis, cfg.Storage.Backend)
	assert.Equal(t, PublishNATS, cfg.Publish.Backend)
	assert.Equal(t, "home/meter/wh", cfg.Publish.Topics.Energy)
	assert.Equal(t, "metermon/power_w", cfg.Publish.Topics.Power)
	assert.Equal(t, 250*time.Millisecond, cfg.Hardware.Simulate)
	require.NoError(t, cfg.Validate())
}

func TestDecode_RejectsUnknownFields(t *testing.T) {
	t.Parallel()

	cfg := Default()
	assert.Error(t, decode([]byte("meter:\n  pulses_per_kwh: 4000\n"), &cfg))
}

func TestDecode_EmptyDocument(t *testing.T) {
	t.Parallel()

	cfg := Default()
	require.NoError(t, decode(nil, &cfg))
	assert.Equal(t, Default(), cfg)
}

func TestApplyEnv(t *testing.T) {
	t.Parallel()

	env := map[string]string{
		"METERMON_MQTT_PASSWORD":     "s3cret",
		"METERMON_STORAGE_PATH":      "/var/lib/metermon/count",
		"METERMON_SIMULATE":          "1s",
		"METERMON_PERSIST_THRESHOLD": "10",
		"METERMON_LOG_LEVEL":         "",
	}
	cfg := Default()
	require.NoError(t, applyEnv(&cfg, func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}))

	assert.Equal(t, "s3cret", cfg.Publish.MQTT.Password)
	assert.Equal(t, "/var/lib/metermon/count", cfg.Storage.Path)
	assert.Equal(t, time.Second, cfg.Hardware.Simulate)
	assert.Equal(t, uint64(10), cfg.Meter.PersistThreshold)
	assert.Equal(t, "info", cfg.Log.Level, "empty values are ignored")
}

func TestApplyEnv_BadDuration(t *testing.T) {
	t.Parallel()

	cfg := Default()
	err := applyEnv(&cfg, func(k string) (string, bool) {
		if k == "METERMON_SIMULATE" {
			return "often", true
		}
		return noEnv(k)
	})
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestLoad_File(t *testing.T) {
	path := writeFile(t, "storage:\n  path: /tmp/metermon-count\n")
	t.Setenv("METERMON_HTTP_ADDR", ":18080")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/metermon-count", cfg.Storage.Path)
	assert.Equal(t, ":18080", cfg.HTTP.Addr)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestValidate(t *testing.T) {
	t.Parallel()

	cases := map[string]func(*Config){
		"zero divisor":      func(c *Config) { c.Meter.PulsesPerUnit = 0 },
		"unknown storage":   func(c *Config) { c.Storage.Backend = "s3" },
		"redis without url": func(c *Config) { c.Storage.Backend = StorageRedis },
		"unknown publisher": func(c *Config) { c.Publish.Backend = "kafka" },
		"bad qos":           func(c *Config) { c.Publish.MQTT.QoS = 3 },
		"no pin, no sim":    func(c *Config) { c.Hardware.PulsePin = "" },
		"negative simulate": func(c *Config) { c.Hardware.Simulate = -time.Second },
		"file without path": func(c *Config) { c.Storage.Path = "" },
		"nats without url":  func(c *Config) { c.Publish = Publish{Backend: PublishNATS} },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestMonitorConfig(t *testing.T) {
	t.Parallel()

	cfg := Default()
	cfg.Meter.QueueSize = 64
	mc := cfg.MonitorConfig()
	assert.Equal(t, cfg.Meter.Policy, mc.Policy)
	assert.Equal(t, 64, mc.QueueSize)
	assert.Equal(t, cfg.Publish.Topics, mc.Topics)
}
