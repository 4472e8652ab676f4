package driver

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/HerbHall/pulsedeck/pkg/models"
)

var (
	monitorStatusRe = regexp.MustCompile(`monitor_status\{([^}]*)\}\s+(\d+)`)
	labelRe         = regexp.MustCompile(`(\w+)="((?:[^"\\]|\\.)*)"`)
)

// Monitor is one Uptime Kuma monitor parsed from the metrics endpoint.
type Monitor struct {
	Name   string            `json:"name"`
	Type   string            `json:"type,omitempty"`
	URL    string            `json:"url,omitempty"`
	Status string            `json:"status"`
	Labels map[string]string `json:"labels,omitempty"`
}

type uptimeKuma struct {
	remote
	now func() time.Time
}

func newUptimeKuma(creds models.Credentials, o options) (*uptimeKuma, error) {
	if creds.APIKey == "" {
		return nil, models.NewConfigurationError("uptime-kuma credentials: api_key is required")
	}
	// Kuma accepts the API key as the basic-auth password with an empty user.
	a := auth{mode: authBasic, secret: creds.APIKey}
	return &uptimeKuma{remote: newRemote(creds, a, o), now: o.now}, nil
}

func (d *uptimeKuma) Type() models.ServiceType { return models.ServiceUptimeKuma }
func (d *uptimeKuma) DisplayName() string      { return "Uptime Kuma" }

func (d *uptimeKuma) TestConnection(ctx context.Context) TestResult {
	return probe(ctx, d.DisplayName(), func(ctx context.Context) error {
		_, err := d.get(ctx, "/metrics")
		return err
	})
}

func (d *uptimeKuma) Capabilities(context.Context) ([]models.MetricCapability, error) {
	return []models.MetricCapability{models.CapabilityUptime, models.CapabilityServices}, nil
}

func (d *uptimeKuma) FetchMetric(ctx context.Context, c models.MetricCapability) (*models.MetricData, error) {
	switch c {
	case models.CapabilityUptime, models.CapabilityServices:
	default:
		return nil, models.NewUnsupportedCapabilityError(c)
	}

	body, err := d.get(ctx, "/metrics")
	if err != nil {
		return nil, err
	}
	monitors := parseMonitors(string(body))

	if c == models.CapabilityUptime {
		// Reports the first monitor in exposition order.
		up := len(monitors) > 0 && monitors[0].Status == "up"
		return &models.MetricData{
			Timestamp: d.now(),
			Value:     up,
			Unit:      "boolean",
			Metadata:  map[string]any{"source": "prometheus_metrics"},
		}, nil
	}

	down := 0
	for _, m := range monitors {
		if m.Status != "up" {
			down++
		}
	}
	return &models.MetricData{
		Timestamp: d.now(),
		Value:     monitors,
		Metadata:  map[string]any{"count": len(monitors), "down": down},
	}, nil
}

// parseMonitors extracts every monitor_status sample from Prometheus
// exposition text. A sample value of 1 means up; anything else is down.
func parseMonitors(text string) []Monitor {
	matches := monitorStatusRe.FindAllStringSubmatch(text, -1)
	monitors := make([]Monitor, 0, len(matches))
	for _, m := range matches {
		labels := parseLabels(m[1])
		status := "down"
		if m[2] == "1" {
			status = "up"
		}
		monitors = append(monitors, Monitor{
			Name:   labels["monitor_name"],
			Type:   labels["monitor_type"],
			URL:    labels["monitor_url"],
			Status: status,
			Labels: labels,
		})
	}
	return monitors
}

func parseLabels(s string) map[string]string {
	labels := make(map[string]string)
	for _, kv := range labelRe.FindAllStringSubmatch(s, -1) {
		labels[kv[1]] = strings.ReplaceAll(kv[2], `\"`, `"`)
	}
	return labels
}
