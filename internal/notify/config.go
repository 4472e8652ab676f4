package notify

import "time"

// DefaultPushoverURL is the Pushover messages endpoint.
const DefaultPushoverURL = "https://api.pushover.net/1/messages.json"

// Config holds notification settings, decoded from the "notify" config
// section.
type Config struct {
	// QueueSize bounds snapshots waiting for evaluation. Snapshots arriving
	// while the queue is full are dropped.
	QueueSize       int           `mapstructure:"queue_size"`
	DispatchTimeout time.Duration `mapstructure:"dispatch_timeout"`
	PushoverURL     string        `mapstructure:"pushover_url"`
	SeedTemplates   bool          `mapstructure:"seed_templates"`
}

// DefaultConfig returns the defaults used when no config is provided.
func DefaultConfig() Config {
	return Config{
		QueueSize:       256,
		DispatchTimeout: 10 * time.Second,
		PushoverURL:     DefaultPushoverURL,
		SeedTemplates:   true,
	}
}
