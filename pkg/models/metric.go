package models

import (
	"maps"
	"time"
)

// MetricCapability names a metric a driver can report.
type MetricCapability string

const (
	CapabilityUptime           MetricCapability = "uptime"
	CapabilityServices         MetricCapability = "services"
	CapabilityCPUUsage         MetricCapability = "cpu_usage"
	CapabilityMemoryUsage      MetricCapability = "memory_usage"
	CapabilityDiskUsage        MetricCapability = "disk_usage"
	CapabilityNetworkTraffic   MetricCapability = "network_traffic"
	CapabilityLoadAverage      MetricCapability = "load_average"
	CapabilityArrayStatus      MetricCapability = "array_status"
	CapabilityDockerContainers MetricCapability = "docker_containers"
)

var capabilityDisplayNames = map[MetricCapability]string{
	CapabilityUptime:           "Uptime",
	CapabilityServices:         "Services",
	CapabilityCPUUsage:         "CPU Usage",
	CapabilityMemoryUsage:      "Memory Usage",
	CapabilityDiskUsage:        "Disk Usage",
	CapabilityNetworkTraffic:   "Network Traffic",
	CapabilityLoadAverage:      "Load Average",
	CapabilityArrayStatus:      "Array Status",
	CapabilityDockerContainers: "Docker Containers",
}

// DisplayName returns a human readable label for the capability. Unknown
// capabilities fall back to their raw name.
func (c MetricCapability) DisplayName() string {
	if name, ok := capabilityDisplayNames[c]; ok {
		return name
	}
	return string(c)
}

// MetricData is one normalized metric reading.
type MetricData struct {
	Timestamp time.Time      `json:"timestamp"`
	Value     any            `json:"value"`
	Unit      string         `json:"unit,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// MetricSnapshot is the batch of readings for one integration at one poll.
// It is the unit of publication on the metrics bus and must not be mutated
// after NewMetricSnapshot returns.
type MetricSnapshot struct {
	IntegrationID   int64                             `json:"integration_id"`
	IntegrationName string                            `json:"integration_name"`
	IntegrationType ServiceType                       `json:"integration_type"`
	Timestamp       time.Time                         `json:"timestamp"`
	Data            map[MetricCapability]MetricData `json:"data"`
}

// NewMetricSnapshot builds a snapshot for the integration, copying data so
// later writes by the caller cannot leak into published snapshots.
func NewMetricSnapshot(in *Integration, ts time.Time, data map[MetricCapability]MetricData) MetricSnapshot {
	cp := make(map[MetricCapability]MetricData, len(data))
	maps.Copy(cp, data)
	return MetricSnapshot{
		IntegrationID:   in.ID,
		IntegrationName: in.ServiceName,
		IntegrationType: in.ServiceType,
		Timestamp:       ts,
		Data:            cp,
	}
}

// Metric returns the reading for capability c, if present.
func (s MetricSnapshot) Metric(c MetricCapability) (MetricData, bool) {
	d, ok := s.Data[c]
	return d, ok
}
