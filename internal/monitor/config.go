package monitor

import "time"

// Config holds poller settings, decoded from the "monitor" config section.
type Config struct {
	PollInterval   time.Duration `mapstructure:"poll_interval"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	// MaxWorkers caps concurrent integration polls per tick; zero means one
	// goroutine per active integration.
	MaxWorkers int `mapstructure:"max_workers"`
}

// DefaultConfig returns the defaults used when no config is provided.
func DefaultConfig() Config {
	return Config{
		PollInterval:   30 * time.Second,
		RequestTimeout: 10 * time.Second,
		MaxWorkers:     0,
	}
}
