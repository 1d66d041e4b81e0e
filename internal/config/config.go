package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/viper"
)

const EnvPrefix = "PORTAL"

type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Backend       BackendConfig       `mapstructure:"backend"`
	Session       SessionConfig       `mapstructure:"session"`
	Redis         RedisConfig         `mapstructure:"redis"`
	Appointments  AppointmentsConfig  `mapstructure:"appointments"`
	Notifications NotificationsConfig `mapstructure:"notifications"`
	RateLimit     RateLimitConfig     `mapstructure:"rate_limit" envconfig:"RATE_LIMIT"`
	CORS          CORSConfig          `mapstructure:"cors"`
	Metrics       MetricsConfig       `mapstructure:"metrics"`
	Audit         AuditConfig         `mapstructure:"audit"`
	Log           LogConfig           `mapstructure:"log"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	Mode            string        `mapstructure:"mode"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout" envconfig:"READ_TIMEOUT"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout" envconfig:"WRITE_TIMEOUT"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout" envconfig:"REQUEST_TIMEOUT"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" envconfig:"SHUTDOWN_TIMEOUT"`
}

type BackendConfig struct {
	BaseURL          string        `mapstructure:"base_url" envconfig:"BASE_URL"`
	Timeout          time.Duration `mapstructure:"timeout"`
	FailureThreshold int           `mapstructure:"failure_threshold" envconfig:"FAILURE_THRESHOLD"`
	BreakerTimeout   time.Duration `mapstructure:"breaker_timeout" envconfig:"BREAKER_TIMEOUT"`
}

type SessionConfig struct {
	// Store is "memory" or "redis".
	Store        string        `mapstructure:"store"`
	TTL          time.Duration `mapstructure:"ttl"`
	CookieSecure bool          `mapstructure:"cookie_secure" envconfig:"COOKIE_SECURE"`
	CookieDomain string        `mapstructure:"cookie_domain" envconfig:"COOKIE_DOMAIN"`
}

type RedisConfig struct {
	URL          string        `mapstructure:"url"`
	PoolSize     int           `mapstructure:"pool_size" envconfig:"POOL_SIZE"`
	MinIdleConns int           `mapstructure:"min_idle_conns" envconfig:"MIN_IDLE_CONNS"`
	MaxRetries   int           `mapstructure:"max_retries" envconfig:"MAX_RETRIES"`
	RetryBackoff time.Duration `mapstructure:"retry_backoff" envconfig:"RETRY_BACKOFF"`
}

type AppointmentsConfig struct {
	// UnknownStatus is "pending" or "other".
	UnknownStatus string        `mapstructure:"unknown_status" envconfig:"UNKNOWN_STATUS"`
	Timezone      string        `mapstructure:"timezone"`
	Locale        string        `mapstructure:"locale"`
	ViewTTL       time.Duration `mapstructure:"view_ttl" envconfig:"VIEW_TTL"`
}

type NotificationsConfig struct {
	// Broker is "memory" or "redis".
	Broker string `mapstructure:"broker"`
}

type RateLimitConfig struct {
	RPS   float64 `mapstructure:"rps"`
	Burst int     `mapstructure:"burst"`
}

type CORSConfig struct {
	AllowOrigins []string `mapstructure:"allow_origins" envconfig:"ALLOW_ORIGINS"`
}

type MetricsConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Namespace string `mapstructure:"namespace"`
}

type AuditConfig struct {
	// DSN of the postgres database; empty disables the audit trail.
	DSN             string        `mapstructure:"dsn"`
	RetentionDays   int           `mapstructure:"retention_days" envconfig:"RETENTION_DAYS"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval" envconfig:"CLEANUP_INTERVAL"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
	JSON  bool   `mapstructure:"json"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.request_timeout", "30s")
	v.SetDefault("server.shutdown_timeout", "10s")

	v.SetDefault("backend.base_url", "http://localhost:8081")
	v.SetDefault("backend.timeout", "10s")
	v.SetDefault("backend.failure_threshold", 5)
	v.SetDefault("backend.breaker_timeout", "30s")

	v.SetDefault("session.store", "memory")
	v.SetDefault("session.ttl", "12h")

	v.SetDefault("redis.url", "redis://localhost:6379/0")
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.min_idle_conns", 2)
	v.SetDefault("redis.max_retries", 3)
	v.SetDefault("redis.retry_backoff", "100ms")

	v.SetDefault("appointments.unknown_status", "pending")
	v.SetDefault("appointments.timezone", "UTC")
	v.SetDefault("appointments.locale", "en-US")
	v.SetDefault("appointments.view_ttl", "30m")

	v.SetDefault("notifications.broker", "memory")

	v.SetDefault("rate_limit.rps", 20)
	v.SetDefault("rate_limit.burst", 40)

	v.SetDefault("cors.allow_origins", []string{"*"})

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.namespace", "portal")

	v.SetDefault("audit.retention_days", 90)
	v.SetDefault("audit.cleanup_interval", "24h")

	v.SetDefault("log.level", "info")
}

// Load reads config.yml from path, or from ., ./config and /app/config when
// path is empty, then applies PORTAL_* environment overrides. A missing
// config file is not an error; a .env file is loaded first when present.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/app/config")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("failed to apply environment overrides: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the service cannot start with.
func (c *Config) Validate() error {
	var problems []string
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		problems = append(problems, fmt.Sprintf("server.port %d is out of range", c.Server.Port))
	}
	if strings.TrimSpace(c.Backend.BaseURL) == "" {
		problems = append(problems, "backend.base_url is required")
	}
	switch c.Session.Store {
	case "memory", "redis":
	default:
		problems = append(problems, fmt.Sprintf("session.store %q must be memory or redis", c.Session.Store))
	}
	switch c.Notifications.Broker {
	case "memory", "redis":
	default:
		problems = append(problems, fmt.Sprintf("notifications.broker %q must be memory or redis", c.Notifications.Broker))
	}
	switch strings.ToLower(c.Appointments.UnknownStatus) {
	case "", "pending", "other":
	default:
		problems = append(problems, fmt.Sprintf("appointments.unknown_status %q must be pending or other", c.Appointments.UnknownStatus))
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}

// UsesRedis reports whether any component needs a redis connection.
func (c *Config) UsesRedis() bool {
	return c.Session.Store == "redis" || c.Notifications.Broker == "redis"
}
