// Package config loads the thermolog configuration from defaults, an
// optional TOML file, and environment variable overrides, in that
// order.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/pelletier/go-toml"

	"github.com/thermolog/pkg/sensor"
	"github.com/thermolog/pkg/storage"
)

// Config holds all runtime settings.
type Config struct {
	Server   ServerConfig  `toml:"server"`
	Storage  StorageConfig `toml:"storage"`
	MQTT     MQTTConfig    `toml:"mqtt"`
	Sensor   SensorConfig  `toml:"sensor"`
	LogLevel string        `toml:"log_level"`
}

// ServerConfig holds the HTTP API settings.
type ServerConfig struct {
	ListenAddr      string `toml:"listen_addr"`
	TimeoutSeconds  int    `toml:"timeout_seconds"`
	CacheSize       int    `toml:"cache_size"`
	CacheTTLSeconds int    `toml:"cache_ttl_seconds"`
}

// StorageConfig holds the on-disk store settings.
type StorageConfig struct {
	Path             string `toml:"path"`
	CompressionLevel int    `toml:"compression_level"`
	EnableJournal    bool   `toml:"enable_journal"`
}

// MQTTConfig holds the broker subscription settings.
type MQTTConfig struct {
	Enabled   bool   `toml:"enabled"`
	BrokerURL string `toml:"broker_url"`
	ClientID  string `toml:"client_id"`
	Topic     string `toml:"topic"`
}

// SensorConfig holds the simulator ranges.
type SensorConfig struct {
	TempMinF    float64 `toml:"temp_min_f"`
	TempMaxF    float64 `toml:"temp_max_f"`
	HumidityMin float64 `toml:"humidity_min"`
	HumidityMax float64 `toml:"humidity_max"`
}

func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			ListenAddr:      ":8428",
			TimeoutSeconds:  30,
			CacheSize:       128,
			CacheTTLSeconds: 60,
		},
		Storage: StorageConfig{
			Path:             "./data",
			CompressionLevel: 3,
			EnableJournal:    true,
		},
		MQTT: MQTTConfig{
			Enabled:   false,
			BrokerURL: "tcp://localhost:1883",
			Topic:     "sensors/+/readings",
		},
		Sensor: SensorConfig{
			TempMinF:    sensor.DefaultTempMinF,
			TempMaxF:    sensor.DefaultTempMaxF,
			HumidityMin: sensor.DefaultHumMin,
			HumidityMax: sensor.DefaultHumMax,
		},
		LogLevel: "info",
	}
}

// Load builds the configuration. A non-empty path names a TOML file to
// merge over the defaults; environment variables override both.
func Load(path string) (*Config, error) {
	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Server.ListenAddr = getEnv("LISTEN_ADDR", c.Server.ListenAddr)
	c.Server.TimeoutSeconds = getEnvInt("SERVER_TIMEOUT_SECONDS", c.Server.TimeoutSeconds)
	c.Server.CacheSize = getEnvInt("CACHE_SIZE", c.Server.CacheSize)
	c.Server.CacheTTLSeconds = getEnvInt("CACHE_TTL_SECONDS", c.Server.CacheTTLSeconds)

	c.Storage.Path = getEnv("STORAGE_PATH", c.Storage.Path)
	c.Storage.CompressionLevel = getEnvInt("COMPRESSION_LEVEL", c.Storage.CompressionLevel)
	c.Storage.EnableJournal = getEnvBool("ENABLE_JOURNAL", c.Storage.EnableJournal)

	c.MQTT.Enabled = getEnvBool("MQTT_ENABLED", c.MQTT.Enabled)
	c.MQTT.BrokerURL = getEnv("MQTT_BROKER_URL", c.MQTT.BrokerURL)
	c.MQTT.ClientID = getEnv("MQTT_CLIENT_ID", c.MQTT.ClientID)
	c.MQTT.Topic = getEnv("MQTT_TOPIC", c.MQTT.Topic)

	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
}

// Validate checks the settings for values the components would reject
// later.
func (c *Config) Validate() error {
	if c.Server.ListenAddr == "" {
		return fmt.Errorf("server listen address must not be empty")
	}
	if c.Server.CacheSize <= 0 {
		return fmt.Errorf("cache size must be positive, got %d", c.Server.CacheSize)
	}
	if c.Storage.Path == "" {
		return fmt.Errorf("storage path must not be empty")
	}
	if c.Storage.CompressionLevel < 1 || c.Storage.CompressionLevel > 4 {
		return fmt.Errorf("compression level must be 1-4, got %d", c.Storage.CompressionLevel)
	}
	if c.Sensor.TempMinF >= c.Sensor.TempMaxF {
		return fmt.Errorf("sensor temperature range is empty: [%.1f, %.1f]", c.Sensor.TempMinF, c.Sensor.TempMaxF)
	}
	if c.Sensor.HumidityMin >= c.Sensor.HumidityMax {
		return fmt.Errorf("sensor humidity range is empty: [%.1f, %.1f]", c.Sensor.HumidityMin, c.Sensor.HumidityMax)
	}
	if c.MQTT.Enabled && c.MQTT.BrokerURL == "" {
		return fmt.Errorf("MQTT enabled but broker URL is empty")
	}
	return nil
}

// ToStoreConfig converts the storage section for storage.Open.
func (c *Config) ToStoreConfig() *storage.Config {
	return &storage.Config{
		Path:             c.Storage.Path,
		CompressionLevel: c.Storage.CompressionLevel,
		EnableJournal:    c.Storage.EnableJournal,
	}
}

// ServerTimeout returns the HTTP read/write timeout.
func (c *Config) ServerTimeout() time.Duration {
	return time.Duration(c.Server.TimeoutSeconds) * time.Second
}

// CacheTTL returns the scan cache entry lifetime.
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.Server.CacheTTLSeconds) * time.Second
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}
