// Package driver adapts external monitoring services to a uniform
// capability and metric-fetch contract.
package driver

import (
	"context"
	"net/http"
	"time"

	"github.com/HerbHall/pulsedeck/pkg/models"
)

// DefaultTimeout bounds every request a driver makes.
const DefaultTimeout = 10 * time.Second

// TestResult is the outcome of a connection test.
type TestResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// Driver talks to one external monitoring service.
type Driver interface {
	Type() models.ServiceType
	DisplayName() string
	// TestConnection makes one round trip. Failures are reported in the
	// result, never as an error.
	TestConnection(ctx context.Context) TestResult
	// Capabilities may query the remote service; callers should ask once
	// per poll cycle.
	Capabilities(ctx context.Context) ([]models.MetricCapability, error)
	// FetchMetric returns an unsupported capability error for capabilities
	// the driver does not report and connection errors for transport
	// failures.
	FetchMetric(ctx context.Context, c models.MetricCapability) (*models.MetricData, error)
}

// Factory builds a driver for a stored integration.
type Factory func(t models.ServiceType, creds models.Credentials) (Driver, error)

type options struct {
	timeout   time.Duration
	transport http.RoundTripper
	now       func() time.Time
}

// Option customizes driver construction.
type Option func(*options)

// WithTimeout overrides the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(o *options) { o.timeout = d }
}

// WithTransport sets the base transport beneath the auth layer. Tests use it
// to point drivers at fakes.
func WithTransport(rt http.RoundTripper) Option {
	return func(o *options) { o.transport = rt }
}

// WithClock overrides the timestamp source for fetched metrics.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// New selects the driver variant for t.
func New(t models.ServiceType, creds models.Credentials, opts ...Option) (Driver, error) {
	o := options{timeout: DefaultTimeout, now: func() time.Time { return time.Now().UTC() }}
	for _, fn := range opts {
		fn(&o)
	}
	if creds.URL == "" {
		return nil, models.NewConfigurationError("%s credentials: url is required", t)
	}

	switch t {
	case models.ServiceUptimeKuma:
		return newUptimeKuma(creds, o)
	case models.ServiceNetdata:
		return newNetdata(creds, o)
	case models.ServiceUnraid:
		return newUnraid(creds, o)
	default:
		return nil, models.NewConfigurationError("unknown service type %q", t)
	}
}

// NewFactory returns a Factory that applies opts to every driver it builds.
func NewFactory(opts ...Option) Factory {
	return func(t models.ServiceType, creds models.Credentials) (Driver, error) {
		return New(t, creds, opts...)
	}
}

func supports(caps []models.MetricCapability, c models.MetricCapability) bool {
	for _, have := range caps {
		if have == c {
			return true
		}
	}
	return false
}
