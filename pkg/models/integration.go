package models

import "time"

// ServiceType identifies the kind of external monitoring service an
// integration talks to.
type ServiceType string

const (
	ServiceUptimeKuma ServiceType = "uptime-kuma"
	ServiceNetdata    ServiceType = "netdata"
	ServiceUnraid     ServiceType = "unraid"
)

// ServiceTypes lists every supported service type in display order.
func ServiceTypes() []ServiceType {
	return []ServiceType{ServiceUptimeKuma, ServiceNetdata, ServiceUnraid}
}

// Valid reports whether t is a known service type.
func (t ServiceType) Valid() bool {
	switch t {
	case ServiceUptimeKuma, ServiceNetdata, ServiceUnraid:
		return true
	}
	return false
}

// LastStatus is the outcome of the most recent poll or connection test.
type LastStatus string

const (
	StatusConnected LastStatus = "connected"
	StatusFailed    LastStatus = "failed"
	StatusPartial   LastStatus = "partial"
	StatusSuccess   LastStatus = "success"
)

// Poll interval bounds in milliseconds.
const (
	DefaultPollIntervalMs = 30000
	MinPollIntervalMs     = 1000
)

// Integration is a configured connection to an external monitoring service.
// Credentials hold the encrypted blob and are never rendered to clients.
type Integration struct {
	ID             int64       `json:"id" example:"1"`
	ServiceName    string      `json:"service_name" example:"Home Kuma"`
	ServiceType    ServiceType `json:"service_type" example:"uptime-kuma"`
	Credentials    string      `json:"-"`
	PollIntervalMs int         `json:"poll_interval_ms" example:"30000"`
	IsActive       bool        `json:"is_active"`
	LastPollAt     *time.Time  `json:"last_poll_at,omitempty"`
	LastStatus     LastStatus  `json:"last_status,omitempty" example:"success"`
	CreatedAt      time.Time   `json:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at"`
}

// Credentials is the decrypted form of Integration.Credentials.
type Credentials struct {
	URL                string `json:"url"`
	APIKey             string `json:"api_key,omitempty"`
	Token              string `json:"token,omitempty"`
	Username           string `json:"username,omitempty"`
	Password           string `json:"password,omitempty"`
	InsecureSkipVerify bool   `json:"insecure_skip_verify,omitempty"`
}

// Card is the read-only projection of a dashboard card used for rule scoping.
type Card struct {
	ID            int64  `json:"id"`
	Name          string `json:"name"`
	IntegrationID *int64 `json:"integration_id,omitempty"`
}
