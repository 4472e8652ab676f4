package driver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/HerbHall/pulsedeck/pkg/models"
)

const (
	unraidMetricsQuery = `query { metrics { cpu { percentTotal } memory { percentTotal total used } } }`
	unraidArrayQuery   = `query { array { state capacity { kilobytes { free used total } } } }`
	unraidDockerQuery  = `query { docker { containers { names state } } }`
	unraidOnlineQuery  = `query { online }`
)

var unraidBaseCapabilities = []models.MetricCapability{
	models.CapabilityCPUUsage,
	models.CapabilityMemoryUsage,
	models.CapabilityArrayStatus,
	models.CapabilityDiskUsage,
}

type unraid struct {
	remote
	now func() time.Time
}

func newUnraid(creds models.Credentials, o options) (*unraid, error) {
	if creds.APIKey == "" {
		return nil, models.NewConfigurationError("unraid credentials: api_key is required")
	}
	return &unraid{
		remote: newRemote(creds, auth{mode: authHeader, header: "x-api-key", secret: creds.APIKey}, o),
		now:    o.now,
	}, nil
}

func (d *unraid) Type() models.ServiceType { return models.ServiceUnraid }
func (d *unraid) DisplayName() string      { return "Unraid" }

func (d *unraid) TestConnection(ctx context.Context) TestResult {
	return probe(ctx, d.DisplayName(), func(ctx context.Context) error {
		var out struct {
			Online bool `json:"online"`
		}
		if err := d.query(ctx, unraidOnlineQuery, &out); err != nil {
			return err
		}
		if !out.Online {
			return fmt.Errorf("server reports offline")
		}
		return nil
	})
}

// Capabilities adds docker_containers when the Docker service answers.
func (d *unraid) Capabilities(ctx context.Context) ([]models.MetricCapability, error) {
	caps := append([]models.MetricCapability(nil), unraidBaseCapabilities...)
	var out unraidDocker
	if err := d.query(ctx, unraidDockerQuery, &out); err == nil {
		caps = append(caps, models.CapabilityDockerContainers)
	}
	return caps, nil
}

func (d *unraid) FetchMetric(ctx context.Context, c models.MetricCapability) (*models.MetricData, error) {
	md := &models.MetricData{Timestamp: d.now()}

	switch c {
	case models.CapabilityCPUUsage, models.CapabilityMemoryUsage:
		var out struct {
			Metrics struct {
				CPU struct {
					PercentTotal flexFloat `json:"percentTotal"`
				} `json:"cpu"`
				Memory struct {
					PercentTotal flexFloat `json:"percentTotal"`
					Total        flexFloat `json:"total"`
					Used         flexFloat `json:"used"`
				} `json:"memory"`
			} `json:"metrics"`
		}
		if err := d.query(ctx, unraidMetricsQuery, &out); err != nil {
			return nil, err
		}
		md.Unit = "%"
		if c == models.CapabilityCPUUsage {
			md.Value = round2(float64(out.Metrics.CPU.PercentTotal))
		} else {
			md.Value = round2(float64(out.Metrics.Memory.PercentTotal))
			md.Metadata = map[string]any{
				"used_bytes":  float64(out.Metrics.Memory.Used),
				"total_bytes": float64(out.Metrics.Memory.Total),
			}
		}

	case models.CapabilityArrayStatus, models.CapabilityDiskUsage:
		var out struct {
			Array struct {
				State    string `json:"state"`
				Capacity struct {
					Kilobytes struct {
						Free  flexFloat `json:"free"`
						Used  flexFloat `json:"used"`
						Total flexFloat `json:"total"`
					} `json:"kilobytes"`
				} `json:"capacity"`
			} `json:"array"`
		}
		if err := d.query(ctx, unraidArrayQuery, &out); err != nil {
			return nil, err
		}
		kb := out.Array.Capacity.Kilobytes
		if c == models.CapabilityArrayStatus {
			md.Value = strings.ToLower(out.Array.State)
		} else {
			md.Value, md.Unit = percentOf(float64(kb.Used), float64(kb.Total)), "%"
			md.Metadata = map[string]any{"free_kb": float64(kb.Free), "total_kb": float64(kb.Total)}
		}

	case models.CapabilityDockerContainers:
		var out unraidDocker
		if err := d.query(ctx, unraidDockerQuery, &out); err != nil {
			return nil, err
		}
		running := 0
		containers := make([]map[string]string, 0, len(out.Docker.Containers))
		for _, ct := range out.Docker.Containers {
			state := strings.ToLower(ct.State)
			if state == "running" {
				running++
			}
			name := ""
			if len(ct.Names) > 0 {
				name = strings.TrimPrefix(ct.Names[0], "/")
			}
			containers = append(containers, map[string]string{"name": name, "state": state})
		}
		md.Value = running
		md.Metadata = map[string]any{"total": len(containers), "containers": containers}

	default:
		return nil, models.NewUnsupportedCapabilityError(c)
	}
	return md, nil
}

type unraidDocker struct {
	Docker struct {
		Containers []struct {
			Names []string `json:"names"`
			State string   `json:"state"`
		} `json:"containers"`
	} `json:"docker"`
}

// query runs a GraphQL query over GET and decodes its data member into out.
func (d *unraid) query(ctx context.Context, q string, out any) error {
	var resp struct {
		Data   json.RawMessage `json:"data"`
		Errors []struct {
			Message string `json:"message"`
		} `json:"errors"`
	}
	if err := d.getJSON(ctx, "/graphql?"+url.Values{"query": {q}}.Encode(), &resp); err != nil {
		return err
	}
	if len(resp.Errors) > 0 {
		return models.NewConnectionError("graphql", fmt.Errorf("%s", resp.Errors[0].Message))
	}
	if err := json.Unmarshal(resp.Data, out); err != nil {
		return models.NewConnectionError("decode graphql data", err)
	}
	return nil
}

// flexFloat accepts JSON numbers and numeric strings; the Unraid API
// returns large byte counts as strings.
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("parse number %q: %w", s, err)
	}
	*f = flexFloat(v)
	return nil
}
