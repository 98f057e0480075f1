package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	commoncfg "cuida-monitor/common/config"

	"gopkg.in/yaml.v3"
)

// Config cuida-monitor configuration.
// Precedence: built-in defaults < CONFIG_FILE (yaml) < environment.
type Config struct {
	HTTP struct {
		Addr         string `yaml:"addr"`
		MaxBodyBytes int64  `yaml:"max_body_bytes"`
	} `yaml:"http"`

	DBEnabled bool                     `yaml:"db_enabled"`
	Database  commoncfg.DatabaseConfig `yaml:"database"`

	RedisEnabled bool                  `yaml:"redis_enabled"`
	Redis        commoncfg.RedisConfig `yaml:"redis"`

	MQTT MQTTConfig `yaml:"mqtt"`

	Events struct {
		Stream        string `yaml:"stream"`         // Redis Stream receiving accepted events
		StreamMaxLen  int64  `yaml:"stream_maxlen"`  // approximate cap, 0 = unbounded
		FanoutTimeout int    `yaml:"fanout_timeout"` // seconds per event, all sinks
	} `yaml:"events"`

	Analysis struct {
		Timezone string `yaml:"timezone"`
		CacheKey string `yaml:"cache_key"`
		CacheTTL int    `yaml:"cache_ttl"` // seconds
	} `yaml:"analysis"`

	Webhook struct {
		URL     string `yaml:"url"` // empty disables alerts
		Timeout int    `yaml:"timeout"`
	} `yaml:"webhook"`

	RateLimit struct {
		RPS   int `yaml:"rps"`
		Burst int `yaml:"burst"`
	} `yaml:"rate_limit"`

	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
}

// MQTTConfig device ingestion over MQTT (disabled by default).
type MQTTConfig struct {
	commoncfg.MQTTConfig `yaml:",inline"`

	Enabled bool   `yaml:"enabled"`
	Topic   string `yaml:"topic"` // e.g. "cuida/+/events"
}

// Load builds the configuration.
func Load() (*Config, error) {
	cfg := defaults()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	cfg.HTTP.Addr = getEnv("HTTP_ADDR", cfg.HTTP.Addr)
	cfg.HTTP.MaxBodyBytes = int64(parseInt(getEnv("HTTP_MAX_BODY_BYTES", ""), int(cfg.HTTP.MaxBodyBytes)))

	cfg.DBEnabled = parseBool(getEnv("DB_ENABLED", ""), cfg.DBEnabled)
	cfg.Database.LoadFromEnv("DB")

	cfg.RedisEnabled = parseBool(getEnv("REDIS_ENABLED", ""), cfg.RedisEnabled)
	cfg.Redis.LoadFromEnv("REDIS")

	cfg.MQTT.Enabled = parseBool(getEnv("MQTT_ENABLED", ""), cfg.MQTT.Enabled)
	cfg.MQTT.Topic = getEnv("MQTT_TOPIC", cfg.MQTT.Topic)
	cfg.MQTT.MQTTConfig.LoadFromEnv("MQTT")

	cfg.Events.Stream = getEnv("EVENTS_STREAM", cfg.Events.Stream)
	cfg.Events.StreamMaxLen = int64(parseInt(getEnv("EVENTS_STREAM_MAXLEN", ""), int(cfg.Events.StreamMaxLen)))
	cfg.Events.FanoutTimeout = parseInt(getEnv("EVENTS_FANOUT_TIMEOUT", ""), cfg.Events.FanoutTimeout)

	cfg.Analysis.Timezone = getEnv("ANALYSIS_TIMEZONE", cfg.Analysis.Timezone)
	cfg.Analysis.CacheKey = getEnv("ANALYSIS_CACHE_KEY", cfg.Analysis.CacheKey)
	cfg.Analysis.CacheTTL = parseInt(getEnv("ANALYSIS_CACHE_TTL", ""), cfg.Analysis.CacheTTL)

	cfg.Webhook.URL = getEnv("WEBHOOK_URL", cfg.Webhook.URL)
	cfg.Webhook.Timeout = parseInt(getEnv("WEBHOOK_TIMEOUT", ""), cfg.Webhook.Timeout)

	cfg.RateLimit.RPS = parseInt(getEnv("RATE_LIMIT_RPS", ""), cfg.RateLimit.RPS)
	cfg.RateLimit.Burst = parseInt(getEnv("RATE_LIMIT_BURST", ""), cfg.RateLimit.Burst)

	cfg.Log.Level = getEnv("LOG_LEVEL", cfg.Log.Level)
	cfg.Log.Format = getEnv("LOG_FORMAT", cfg.Log.Format)

	if _, err := cfg.Location(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaults() *Config {
	cfg := &Config{}
	cfg.HTTP.Addr = ":8080"
	cfg.HTTP.MaxBodyBytes = 64 << 10

	cfg.DBEnabled = true
	cfg.Database.Host = "localhost"
	cfg.Database.Port = 5432
	cfg.Database.User = "postgres"
	cfg.Database.Password = "postgres"
	cfg.Database.Database = "cuida"
	cfg.Database.SSLMode = "disable"
	cfg.Database.MaxConns = 10
	cfg.Database.MaxIdle = 5

	cfg.RedisEnabled = true
	cfg.Redis.Addr = "localhost:6379"

	cfg.MQTT.Enabled = false
	cfg.MQTT.Topic = "cuida/+/events"
	cfg.MQTT.Broker = "tcp://localhost:1883"
	cfg.MQTT.ClientID = "cuida-monitor"
	cfg.MQTT.QoS = 1

	cfg.Events.Stream = "cuida:events:stream"
	cfg.Events.StreamMaxLen = 10000
	cfg.Events.FanoutTimeout = 30

	cfg.Analysis.Timezone = "UTC"
	cfg.Analysis.CacheKey = "cuida:analysis:summary"
	cfg.Analysis.CacheTTL = 30

	cfg.Webhook.Timeout = 5

	cfg.RateLimit.RPS = 10
	cfg.RateLimit.Burst = 20

	cfg.Log.Level = "info"
	cfg.Log.Format = "json"
	return cfg
}

// Location resolves Analysis.Timezone.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Analysis.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid ANALYSIS_TIMEZONE %q: %w", c.Analysis.Timezone, err)
	}
	return loc, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseInt(s string, def int) int {
	if s == "" {
		return def
	}
	i, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return i
}

func parseBool(s string, def bool) bool {
	if s == "" {
		return def
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return def
	}
	return b
}
