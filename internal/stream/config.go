package stream

import "time"

// Config holds live-stream settings, decoded from the "stream" config
// section.
type Config struct {
	KeepAliveInterval time.Duration `mapstructure:"keepalive_interval"`
	// ClientBuffer is the number of frames queued per client before the
	// client is treated as a slow consumer and dropped.
	ClientBuffer int `mapstructure:"client_buffer"`
}

// DefaultConfig returns the defaults used when no config is provided.
func DefaultConfig() Config {
	return Config{
		KeepAliveInterval: 30 * time.Second,
		ClientBuffer:      64,
	}
}
