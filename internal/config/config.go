package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"barter/internal/constants"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Auth      AuthConfig      `yaml:"auth"`
	Email     EmailConfig     `yaml:"email"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Redis     RedisConfig     `yaml:"redis"`
	Broker    BrokerConfig    `yaml:"broker"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	Log       LogConfig       `yaml:"log"`
}

type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type DatabaseConfig struct {
	Path            string        `yaml:"path"`
	CleanupInterval time.Duration `yaml:"cleanup_interval"`
	// SeedDemoData loads demo members and items into an empty database.
	SeedDemoData    bool          `yaml:"seed_demo_data"`
}

type AuthConfig struct {
	JWTSecret       string        `yaml:"jwt_secret"`
	AccessTokenTTL  time.Duration `yaml:"access_token_ttl"`
	RefreshTokenTTL time.Duration `yaml:"refresh_token_ttl"`
	ResetTokenTTL   time.Duration `yaml:"reset_token_ttl"`
	BcryptCost      int           `yaml:"bcrypt_cost"`
}

type EmailConfig struct {
	SMTP SMTPConfig `yaml:"smtp"`
}

type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`
}

const (
	RateLimitBackendMemory = "memory"
	RateLimitBackendRedis  = "redis"
)

type RateLimitConfig struct {
	Backend        string        `yaml:"backend"`
	Capacity       int           `yaml:"capacity"`
	RefillTokens   int           `yaml:"refill_tokens"`
	Period         time.Duration `yaml:"period"`
	SkipPaths      []string      `yaml:"skip_paths"`
	TrustedProxies []string      `yaml:"trusted_proxies"`
	RedisPrefix    string        `yaml:"redis_prefix"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// BrokerConfig enables the AMQP mirror of realtime messages when URL is set.
type BrokerConfig struct {
	URL        string `yaml:"url"`
	Exchange   string `yaml:"exchange"`
	BufferSize int    `yaml:"buffer_size"`
}

type WebSocketConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	return Parse(data)
}

func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.applyEnvOverrides()

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	cfg.setDefaults()

	return &cfg, nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("BARTER_JWT_SECRET"); v != "" {
		c.Auth.JWTSecret = v
	}
	if v := os.Getenv("BARTER_SMTP_PASSWORD"); v != "" {
		c.Email.SMTP.Password = v
	}
	if v := os.Getenv("BARTER_REDIS_PASSWORD"); v != "" {
		c.Redis.Password = v
	}
	if v := os.Getenv("BARTER_AMQP_URL"); v != "" {
		c.Broker.URL = v
	}
}

func (c *Config) validate() error {
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is required")
	}
	if len(c.Auth.JWTSecret) < 32 {
		return fmt.Errorf("auth.jwt_secret must be at least 32 characters")
	}
	if c.Email.SMTP.Host == "" {
		return fmt.Errorf("email.smtp.host is required")
	}
	if c.Email.SMTP.Port == 0 {
		return fmt.Errorf("email.smtp.port is required")
	}
	if c.Email.SMTP.From == "" {
		return fmt.Errorf("email.smtp.from is required")
	}
	switch strings.ToLower(c.RateLimit.Backend) {
	case "", RateLimitBackendMemory:
	case RateLimitBackendRedis:
		if c.Redis.Addr == "" {
			return fmt.Errorf("redis.addr is required when rate_limit.backend is redis")
		}
	default:
		return fmt.Errorf("rate_limit.backend must be %q or %q", RateLimitBackendMemory, RateLimitBackendRedis)
	}
	if c.RateLimit.Capacity < 0 || c.RateLimit.RefillTokens < 0 || c.RateLimit.Period < 0 {
		return fmt.Errorf("rate_limit values must not be negative")
	}
	return nil
}

func (c *Config) setDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Database.Path == "" {
		c.Database.Path = "./data/barter.db"
	}
	if c.Database.CleanupInterval == 0 {
		c.Database.CleanupInterval = time.Hour
	}
	if c.Auth.AccessTokenTTL == 0 {
		c.Auth.AccessTokenTTL = 15 * time.Minute
	}
	if c.Auth.RefreshTokenTTL == 0 {
		c.Auth.RefreshTokenTTL = 7 * 24 * time.Hour
	}
	if c.Auth.ResetTokenTTL == 0 {
		c.Auth.ResetTokenTTL = 15 * time.Minute
	}
	c.RateLimit.Backend = strings.ToLower(c.RateLimit.Backend)
	if c.RateLimit.Backend == "" {
		c.RateLimit.Backend = RateLimitBackendMemory
	}
	if c.RateLimit.Capacity == 0 {
		c.RateLimit.Capacity = 100
	}
	if c.RateLimit.RefillTokens == 0 {
		c.RateLimit.RefillTokens = c.RateLimit.Capacity
	}
	if c.RateLimit.Period == 0 {
		c.RateLimit.Period = time.Minute
	}
	if c.RateLimit.SkipPaths == nil {
		c.RateLimit.SkipPaths = []string{"/health", "/health/**", "/docs/**", "/swagger/**"}
	}
	// Without an explicit list every peer is treated as a proxy, so the first
	// X-Forwarded-For entry identifies the client.
	if c.RateLimit.TrustedProxies == nil {
		c.RateLimit.TrustedProxies = []string{"0.0.0.0/0", "::/0"}
	}
	if c.RateLimit.RedisPrefix == "" {
		c.RateLimit.RedisPrefix = "barter:ratelimit"
	}
	if c.Broker.Exchange == "" {
		c.Broker.Exchange = "barter.realtime"
	}
	if c.Broker.BufferSize == 0 {
		c.Broker.BufferSize = constants.AMQPPublishBufferSize
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// SlogLevel maps log.level to a slog level, defaulting to info.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.Log.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}
