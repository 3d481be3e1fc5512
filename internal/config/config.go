// Package config loads the gateway's process configuration from
// environment variables under the INGESTION_ prefix, with nested
// sections separated by a double underscore, per §6 of the
// specification. A structured YAML file may replace the retention and
// rate-limit sections.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

const envPrefix = "INGESTION_"

// Config is the fully resolved process configuration.
type Config struct {
	Port     string
	LogJSON  bool
	LogLevel string

	// Broker (log) connection.
	BrokerURLs     []string
	BrokerUser     string
	BrokerPassword string

	// Analytics store (column store) connection.
	StoreURL string

	// Auth service.
	AuthEndpoint string
	AuthTimeout  time.Duration

	// Redis-backed auth cache / rate limiter.
	RedisHost    string
	RedisPort    string
	RedisPass    string
	CacheEnabled bool

	NotificationWebhookURL string

	Producer ProducerConfig
	Consumer ConsumerConfig
	RateLimit RateLimitConfig
	Retention RetentionConfig
}

// ProducerConfig controls the log producer's batching and compression.
type ProducerConfig struct {
	MaxBatchSize int
	MaxBatchAge  time.Duration
	Compression  string // none|gzip|snappy|lz4|zstd
	FlushTick    time.Duration
}

// ConsumerConfig controls the consumer's fetch/retry behaviour.
type ConsumerConfig struct {
	BatchSize      int
	BatchTimeout   time.Duration
	MaxRetries     int
	RetryBackoff   time.Duration
	SkipOnFailure  bool
	ReconnectPause time.Duration
}

// RateLimitConfig controls the per-credential token bucket defaults.
type RateLimitConfig struct {
	DefaultRatePerSecond float64
	DefaultBurst         int
	Ceiling              int
	StaleAfter           time.Duration
	SweepInterval        time.Duration
}

// RetentionConfig controls partition-drop scheduling.
type RetentionConfig struct {
	DataRetentionMonths    int
	MetricsRetentionMonths int
	CronSchedule           string
}

// Load resolves configuration from environment variables, applying the
// defaults documented in the specification. An optional YAML file at
// path (if non-empty and present) is applied after the environment
// variables: its "retention" and "rateLimit" blocks, when present,
// replace the corresponding sections wholesale, including any values
// set from the environment.
func Load(yamlPath string) (*Config, error) {
	cfg := &Config{
		Port:     getEnv("API_PORT", "8000"),
		LogJSON:  getEnv("LOG_JSON", "false") == "true",
		LogLevel: getEnv("LOG_LEVEL", "info"),

		AuthEndpoint: getEnv("AUTH_ENDPOINT", "mock"),
		AuthTimeout:  5 * time.Second,

		RedisHost:    getEnv("REDIS_HOST", "localhost"),
		RedisPort:    getEnv("REDIS_PORT", "6379"),
		RedisPass:    getEnv("REDIS_PASSWORD", ""),
		CacheEnabled: getEnv("CACHE_ENABLED", "false") == "true",

		StoreURL: getEnv("STORE_URL", ""),

		NotificationWebhookURL: os.Getenv(envPrefix + "NOTIFICATION_WEBHOOK_URL"),

		Producer: ProducerConfig{
			MaxBatchSize: getEnvInt(envPrefix+"PRODUCER__BATCH_SIZE", 1000),
			MaxBatchAge:  time.Duration(getEnvInt(envPrefix+"PRODUCER__BATCH_TIMEOUT_MS", 100)) * time.Millisecond,
			Compression:  getEnv(envPrefix+"PRODUCER__COMPRESSION", "lz4"),
			FlushTick:    50 * time.Millisecond,
		},
		Consumer: ConsumerConfig{
			BatchSize:      getEnvInt(envPrefix+"CONSUMER__BATCH_SIZE", 500),
			BatchTimeout:   time.Duration(getEnvInt(envPrefix+"CONSUMER__BATCH_TIMEOUT_MS", 1000)) * time.Millisecond,
			MaxRetries:     getEnvInt(envPrefix+"CONSUMER__MAX_RETRIES", 3),
			RetryBackoff:   time.Duration(getEnvInt(envPrefix+"CONSUMER__RETRY_BACKOFF_MS", 100)) * time.Millisecond,
			SkipOnFailure:  getEnv(envPrefix+"CONSUMER__SKIP_ON_FAILURE", "true") == "true",
			ReconnectPause: 1 * time.Second,
		},
		RateLimit: RateLimitConfig{
			DefaultRatePerSecond: 1000.0 / 60.0,
			DefaultBurst:         getEnvInt(envPrefix+"RATELIMIT__BURST", 50),
			Ceiling:              10000,
			StaleAfter:           1 * time.Hour,
			SweepInterval:        5 * time.Minute,
		},
		Retention: RetentionConfig{
			DataRetentionMonths:    getEnvInt(envPrefix+"RETENTION__DATA_MONTHS", 3),
			MetricsRetentionMonths: getEnvInt(envPrefix+"RETENTION__METRICS_MONTHS", 1),
			CronSchedule:           getEnv(envPrefix+"RETENTION__CRON", "0 0 * * *"),
		},
	}

	if brokers := os.Getenv(envPrefix + "BROKER__URLS"); brokers != "" {
		cfg.BrokerURLs = splitComma(brokers)
	}
	cfg.BrokerUser = os.Getenv(envPrefix + "BROKER__USER")
	cfg.BrokerPassword = os.Getenv(envPrefix + "BROKER__PASSWORD")

	if yamlPath != "" {
		if err := applyYAML(cfg, yamlPath); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// RequireProduction validates the settings that spec.md §6 marks as
// required-at-production (no safe default).
func (c *Config) RequireProduction() error {
	if len(c.BrokerURLs) == 0 {
		return fmt.Errorf("%sBROKER__URLS is required in production", envPrefix)
	}
	if c.BrokerUser == "" || c.BrokerPassword == "" {
		return fmt.Errorf("%sBROKER__USER and %sBROKER__PASSWORD are required in production", envPrefix, envPrefix)
	}
	if c.StoreURL == "" {
		return fmt.Errorf("STORE_URL is required in production")
	}
	if c.AuthEndpoint == "" || c.AuthEndpoint == "mock" {
		return fmt.Errorf("AUTH_ENDPOINT is required in production")
	}
	return nil
}

func applyYAML(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading config file: %w", err)
	}
	var overlay struct {
		Retention *RetentionConfig `yaml:"retention"`
		RateLimit *RateLimitConfig `yaml:"rateLimit"`
	}
	if err := yaml.Unmarshal(data, &overlay); err != nil {
		return fmt.Errorf("parsing config file: %w", err)
	}
	if overlay.Retention != nil {
		cfg.Retention = *overlay.Retention
	}
	if overlay.RateLimit != nil {
		cfg.RateLimit = *overlay.RateLimit
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func splitComma(s string) []string {
	var out []string
	start := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == ',' {
			if i > start {
				out = append(out, s[start:i])
			}
			start = i + 1
		}
	}
	return out
}
