package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	HTTPPort           string        `yaml:"http_port"`
	RequestTimeout     time.Duration `yaml:"request_timeout"`
	ShutdownTimeout    time.Duration `yaml:"shutdown_timeout"`
	MaxRequestBodySize int64         `yaml:"max_request_body_size"`

	DB DBConfig `yaml:"db"`

	RedisAddr     string        `yaml:"redis_addr"`
	RedisPassword string        `yaml:"redis_password"`
	CartCacheTTL  time.Duration `yaml:"cart_cache_ttl"`
	SessionTTL    time.Duration `yaml:"session_ttl"`

	KafkaBrokers []string `yaml:"kafka_brokers"`
	OutboxTopic  string   `yaml:"outbox_topic"`

	LogLevel string `yaml:"log_level"`
}

type DBConfig struct {
	Driver   string `yaml:"driver"`
	Path     string `yaml:"path"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
}

func Default() *Config {
	return &Config{
		HTTPPort:           "8080",
		RequestTimeout:     30 * time.Second,
		ShutdownTimeout:    10 * time.Second,
		MaxRequestBodySize: 1 << 20, // 1MB
		DB: DBConfig{
			Driver: "sqlite",
			Path:   "market.db",
			Host:   "localhost",
			Port:   5432,
			User:   "postgres",
			Name:   "market",
		},
		RedisAddr:    "localhost:6379",
		CartCacheTTL: 15 * time.Minute,
		SessionTTL:   24 * time.Hour,
		OutboxTopic:  "market.purchases",
		LogLevel:     "info",
	}
}

// Load applies defaults, then the YAML file named by CONFIG_FILE if set,
// then environment variables.
func Load() (*Config, error) {
	cfg := Default()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	var err error

	c.HTTPPort = getEnv("HTTP_PORT", c.HTTPPort)
	if c.RequestTimeout, err = getDuration("REQUEST_TIMEOUT", c.RequestTimeout); err != nil {
		return err
	}
	if c.ShutdownTimeout, err = getDuration("SHUTDOWN_TIMEOUT", c.ShutdownTimeout); err != nil {
		return err
	}

	c.DB.Driver = getEnv("DB_DRIVER", c.DB.Driver)
	c.DB.Path = getEnv("DB_PATH", c.DB.Path)
	c.DB.Host = getEnv("DB_HOST", c.DB.Host)
	if port := os.Getenv("DB_PORT"); port != "" {
		if c.DB.Port, err = strconv.Atoi(port); err != nil {
			return fmt.Errorf("invalid DB_PORT %q: %w", port, err)
		}
	}
	c.DB.User = getEnv("DB_USER", c.DB.User)
	c.DB.Password = getEnv("DB_PASSWORD", c.DB.Password)
	c.DB.Name = getEnv("DB_NAME", c.DB.Name)

	c.RedisAddr = getEnv("REDIS_ADDR", c.RedisAddr)
	c.RedisPassword = getEnv("REDIS_PASSWORD", c.RedisPassword)
	if c.CartCacheTTL, err = getDuration("CART_CACHE_TTL", c.CartCacheTTL); err != nil {
		return err
	}
	if c.SessionTTL, err = getDuration("SESSION_TTL", c.SessionTTL); err != nil {
		return err
	}

	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		c.KafkaBrokers = splitList(brokers)
	}
	c.OutboxTopic = getEnv("OUTBOX_TOPIC", c.OutboxTopic)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	return nil
}

func (c *Config) validate() error {
	switch c.DB.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q", c.DB.Driver)
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("REQUEST_TIMEOUT must be positive")
	}
	return nil
}

// PublishingEnabled reports whether outbox events should be sent to Kafka.
func (c *Config) PublishingEnabled() bool {
	return len(c.KafkaBrokers) > 0
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	return d, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
