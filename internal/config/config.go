// Package config loads parlor's runtime configuration. Values resolve in
// order: built-in defaults, then an optional YAML file, then environment
// variables. Command-line flags are applied on top by the CLI layer.
package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ServerConfig holds the listen address and access control settings.
type ServerConfig struct {
	Address string `yaml:"address"`
	Port    int    `yaml:"port"`
	// AllowedOrigins restricts browser connections. "*" allows any origin.
	// Requests without an Origin header (native clients) are always allowed.
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// ChatConfig bounds per-connection resources.
type ChatConfig struct {
	// MaxMessageSize is the largest inbound frame in bytes.
	MaxMessageSize int64 `yaml:"max_message_size"`
	// QueueSize is the capacity of each client's outbound queue. A client
	// whose queue fills up is forcibly disconnected.
	QueueSize int             `yaml:"queue_size"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

// RateLimitConfig defines the per-connection token bucket.
type RateLimitConfig struct {
	Burst         int `yaml:"burst"`
	RefillSeconds int `yaml:"refill_seconds"`
}

// RefillInterval returns the refill window as a duration.
func (r RateLimitConfig) RefillInterval() time.Duration {
	return time.Duration(r.RefillSeconds) * time.Second
}

// LoggingConfig selects log verbosity and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json | console
}

// Config is the full parlor configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Chat    ChatConfig    `yaml:"chat"`
	Logging LoggingConfig `yaml:"logging"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Address:        "127.0.0.1",
			Port:           12345,
			AllowedOrigins: []string{"*"},
		},
		Chat: ChatConfig{
			MaxMessageSize: 4096,
			QueueSize:      256,
			RateLimit: RateLimitConfig{
				Burst:         5,
				RefillSeconds: 1,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load resolves the configuration. path may be empty, in which case only
// defaults and environment variables apply.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}

	applyEnv(&cfg)
	cfg.sanitize()
	return cfg, nil
}

// ListenAddr returns the host:port the server binds to.
func (c Config) ListenAddr() string {
	return net.JoinHostPort(c.Server.Address, strconv.Itoa(c.Server.Port))
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("PARLOR_ADDRESS"); v != "" {
		cfg.Server.Address = v
	}
	if v := os.Getenv("PARLOR_PORT"); v != "" {
		cfg.Server.Port = parseInt(v, cfg.Server.Port)
	}
	if v := os.Getenv("PARLOR_ALLOWED_ORIGINS"); v != "" {
		cfg.Server.AllowedOrigins = splitList(v)
	}
	if v := os.Getenv("PARLOR_MAX_MESSAGE_SIZE"); v != "" {
		cfg.Chat.MaxMessageSize = parseInt64(v, cfg.Chat.MaxMessageSize)
	}
	if v := os.Getenv("PARLOR_QUEUE_SIZE"); v != "" {
		cfg.Chat.QueueSize = parseInt(v, cfg.Chat.QueueSize)
	}
	if v := os.Getenv("PARLOR_RATE_BURST"); v != "" {
		cfg.Chat.RateLimit.Burst = parseInt(v, cfg.Chat.RateLimit.Burst)
	}
	if v := os.Getenv("PARLOR_RATE_REFILL_SECONDS"); v != "" {
		cfg.Chat.RateLimit.RefillSeconds = parseInt(v, cfg.Chat.RateLimit.RefillSeconds)
	}
	if v := os.Getenv("PARLOR_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("PARLOR_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
}

// sanitize replaces unusable values with defaults rather than failing, so a
// partially filled config file still yields a runnable server.
func (c *Config) sanitize() {
	def := Default()

	if c.Server.Address == "" {
		c.Server.Address = def.Server.Address
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		c.Server.Port = def.Server.Port
	}
	if len(c.Server.AllowedOrigins) == 0 {
		c.Server.AllowedOrigins = def.Server.AllowedOrigins
	}
	if c.Chat.MaxMessageSize <= 0 {
		c.Chat.MaxMessageSize = def.Chat.MaxMessageSize
	}
	if c.Chat.QueueSize <= 0 {
		c.Chat.QueueSize = def.Chat.QueueSize
	}
	if c.Chat.RateLimit.Burst <= 0 {
		c.Chat.RateLimit.Burst = def.Chat.RateLimit.Burst
	}
	if c.Chat.RateLimit.RefillSeconds <= 0 {
		c.Chat.RateLimit.RefillSeconds = def.Chat.RateLimit.RefillSeconds
	}
	if c.Logging.Level == "" {
		c.Logging.Level = def.Logging.Level
	}
	if c.Logging.Format == "" {
		c.Logging.Format = def.Logging.Format
	}
}

func splitList(value string) []string {
	parts := strings.Split(value, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseInt(value string, fallback int) int {
	if parsed, err := strconv.Atoi(value); err == nil && parsed > 0 {
		return parsed
	}
	return fallback
}

func parseInt64(value string, fallback int64) int64 {
	if parsed, err := strconv.ParseInt(value, 10, 64); err == nil && parsed > 0 {
		return parsed
	}
	return fallback
}
