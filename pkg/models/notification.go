package models

import "time"

// TargetType scopes a notification rule.
type TargetType string

const (
	TargetAll         TargetType = "all"
	TargetCard        TargetType = "card"
	TargetIntegration TargetType = "integration"
)

// ConditionType selects how a rule is evaluated.
type ConditionType string

const (
	ConditionThreshold    ConditionType = "threshold"
	ConditionStatusChange ConditionType = "status_change"
)

// Operator is a threshold comparison.
type Operator string

const (
	OpGreaterThan    Operator = "gt"
	OpLessThan       Operator = "lt"
	OpGreaterOrEqual Operator = "gte"
	OpLessOrEqual    Operator = "lte"
	OpEqual          Operator = "eq"
)

// Valid reports whether o is a supported operator.
func (o Operator) Valid() bool {
	switch o {
	case OpGreaterThan, OpLessThan, OpGreaterOrEqual, OpLessOrEqual, OpEqual:
		return true
	}
	return false
}

// Symbol returns the mathematical symbol used in rendered messages.
func (o Operator) Symbol() string {
	switch o {
	case OpGreaterThan:
		return ">"
	case OpLessThan:
		return "<"
	case OpGreaterOrEqual:
		return ">="
	case OpLessOrEqual:
		return "<="
	case OpEqual:
		return "="
	}
	return string(o)
}

// Severity of a notification.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Valid reports whether s is a known severity.
func (s Severity) Valid() bool {
	return s == SeverityInfo || s == SeverityWarning || s == SeverityCritical
}

// ProviderType identifies a webhook delivery format.
type ProviderType string

const (
	ProviderDiscord  ProviderType = "discord"
	ProviderTelegram ProviderType = "telegram"
	ProviderPushover ProviderType = "pushover"
)

// Rule defaults.
const (
	DefaultCooldownMinutes = 30
	DefaultSeverity        = SeverityWarning
)

// NotificationRule describes when and where to send an alert. Exactly one
// condition kind is populated: Operator and Threshold for threshold rules,
// FromStatus and/or ToStatus for status change rules.
type NotificationRule struct {
	ID                  int64         `json:"id" example:"1"`
	Name                string        `json:"name" example:"CPU hot"`
	WebhookID           int64         `json:"webhook_id" example:"1"`
	TargetType          TargetType    `json:"target_type" example:"integration"`
	TargetID            *int64        `json:"target_id,omitempty" example:"3"`
	MetricType          string        `json:"metric_type" example:"cpu_usage"`
	ConditionType       ConditionType `json:"condition_type" example:"threshold"`
	Operator            *Operator     `json:"operator,omitempty" example:"gt"`
	Threshold           *float64      `json:"threshold,omitempty" example:"80"`
	FromStatus          *string       `json:"from_status,omitempty" example:"online"`
	ToStatus            *string       `json:"to_status,omitempty" example:"offline"`
	Severity            Severity      `json:"severity" example:"warning"`
	CooldownMinutes     int           `json:"cooldown_minutes" example:"30"`
	IsActive            bool          `json:"is_active"`
	TemplateID          *int64        `json:"template_id,omitempty"`
	AggregationEnabled  bool          `json:"aggregation_enabled"`
	AggregationWindowMs int64         `json:"aggregation_window_ms"`
	CreatedAt           time.Time     `json:"created_at"`
	UpdatedAt           time.Time     `json:"updated_at"`
}

// Cooldown returns the configured cooldown as a duration.
func (r *NotificationRule) Cooldown() time.Duration {
	return time.Duration(r.CooldownMinutes) * time.Minute
}

// AggregationWindow returns the aggregation window, or zero when
// aggregation is disabled.
func (r *NotificationRule) AggregationWindow() time.Duration {
	if !r.AggregationEnabled || r.AggregationWindowMs <= 0 {
		return 0
	}
	return time.Duration(r.AggregationWindowMs) * time.Millisecond
}

// WebhookConfig is a delivery destination. WebhookURL holds either a URL or a
// provider credential string (Pushover "token:user_key").
type WebhookConfig struct {
	ID           int64        `json:"id" example:"1"`
	Name         string       `json:"name" example:"Ops channel"`
	ProviderType ProviderType `json:"provider_type" example:"discord"`
	WebhookURL   string       `json:"webhook_url"` //nolint:gosec // G101: destination, not a hardcoded secret
	IsActive     bool         `json:"is_active"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
}

// NotificationTemplate holds title and message bodies with {{placeholder}}
// markers.
type NotificationTemplate struct {
	ID              int64     `json:"id" example:"1"`
	Name            string    `json:"name" example:"Default System Template"`
	TitleTemplate   string    `json:"title_template"`
	MessageTemplate string    `json:"message_template"`
	IsDefault       bool      `json:"is_default"`
	IsActive        bool      `json:"is_active"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Notification is a rendered message ready for delivery.
type Notification struct {
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Severity  Severity  `json:"severity"`
	Timestamp time.Time `json:"timestamp"`
}

// DeliveryResult reports the outcome of a dispatch or test.
type DeliveryResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}
