package server

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config holds the HTTP server configuration, decoded from the "server"
// config section.
type Config struct {
	Host    string `mapstructure:"host"`
	Port    int    `mapstructure:"port"`
	DevMode bool   `mapstructure:"dev_mode"`
	// RateLimit is the sustained requests per second allowed per client IP.
	RateLimit float64 `mapstructure:"rate_limit"`
	RateBurst int     `mapstructure:"rate_burst"`
}

// DefaultConfig returns the defaults used when no config is provided.
func DefaultConfig() Config {
	return Config{
		Host:      "0.0.0.0",
		Port:      8080,
		RateLimit: 20,
		RateBurst: 40,
	}
}

// Addr returns the listen address as host:port.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// LoadConfig reads configuration from file and environment variables.
func LoadConfig(configPath string) (*viper.Viper, error) {
	v := viper.New()

	// Defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.dev_mode", false)
	v.SetDefault("server.rate_limit", 20.0)
	v.SetDefault("server.rate_burst", 40)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("database.path", "./data/pulsedeck.db")
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.access_token_ttl", "24h")
	v.SetDefault("credentials.passphrase", "")
	v.SetDefault("credentials.salt", "pulsedeck-credentials")

	// Component defaults
	v.SetDefault("monitor.poll_interval", "30s")
	v.SetDefault("monitor.request_timeout", "10s")
	v.SetDefault("monitor.max_workers", 0)
	v.SetDefault("monitor.slow_handler_threshold", "2s")
	v.SetDefault("stream.keepalive_interval", "30s")
	v.SetDefault("stream.client_buffer", 64)
	v.SetDefault("notify.queue_size", 256)
	v.SetDefault("notify.dispatch_timeout", "10s")
	v.SetDefault("notify.pushover_url", "https://api.pushover.net/1/messages.json")
	v.SetDefault("notify.seed_templates", true)
	v.SetDefault("bridge.nats.url", "")
	v.SetDefault("bridge.nats.subject", "pulsedeck.metrics")

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("pulsedeck")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/pulsedeck")
	}

	// Environment variable support: PD_SERVER_PORT=9090
	v.SetEnvPrefix("PD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configPath != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		// Config file not found is fine -- use defaults
	}

	return v, nil
}
