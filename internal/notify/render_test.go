package notify

import (
	"testing"

	"github.com/HerbHall/pulsedeck/pkg/models"
)

func TestRender(t *testing.T) {
	v := vars{"severity": "WARNING", "metricValue": "91.5", "unit": "%"}
	tests := []struct {
		name string
		tmpl string
		want string
	}{
		{"plain", "{{severity}}", "WARNING"},
		{"whitespace", "{{ severity }} at {{  metricValue}}{{unit }}", "WARNING at 91.5%"},
		{"unknown renders empty", "[{{nope}}]", "[]"},
		{"no placeholders", "all quiet", "all quiet"},
		{"unbalanced braces left alone", "{{severity}", "{{severity}"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := render(tt.tmpl, v); got != tt.want {
				t.Errorf("render(%q) = %q, want %q", tt.tmpl, got, tt.want)
			}
		})
	}
}

func TestRenderNotification_fallbacks(t *testing.T) {
	v := vars{
		"severity":          "CRITICAL",
		"metricDisplayName": "CPU Usage",
		"integrationName":   "nas",
		"metricValue":       "95",
		"unit":              "%",
		"operator":          ">",
		"threshold":         "90",
		"cardName":          "NAS",
		"oldStatus":         "online",
		"newStatus":         "offline",
	}

	title, body := renderNotification(nil, &models.NotificationRule{ConditionType: models.ConditionThreshold}, v)
	if title != "CRITICAL Alert: CPU Usage" {
		t.Errorf("title = %q", title)
	}
	if body != "nas - CPU Usage is 95% (threshold: > 90%)" {
		t.Errorf("threshold body = %q", body)
	}

	_, body = renderNotification(nil, &models.NotificationRule{ConditionType: models.ConditionStatusChange}, v)
	if body != "NAS status changed from online to offline" {
		t.Errorf("status body = %q", body)
	}

	tmpl := &models.NotificationTemplate{TitleTemplate: "T {{cardName}}", MessageTemplate: "M {{metricValue}}"}
	title, body = renderNotification(tmpl, &models.NotificationRule{}, v)
	if title != "T NAS" || body != "M 95" {
		t.Errorf("custom template = %q / %q", title, body)
	}
}

func TestNumericValue(t *testing.T) {
	tests := []struct {
		in     any
		want   float64
		wantOK bool
	}{
		{85.5, 85.5, true},
		{float32(2.5), 2.5, true},
		{int64(3), 3, true},
		{7, 7, true},
		{true, 1, true},
		{false, 0, true},
		{" 42.5 ", 42.5, true},
		{"high", 0, false},
		{nil, 0, false},
		{[]int{1}, 0, false},
	}
	for _, tt := range tests {
		got, ok := numericValue(tt.in)
		if ok != tt.wantOK || (ok && got != tt.want) {
			t.Errorf("numericValue(%#v) = %v, %v; want %v, %v", tt.in, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestStatusValue(t *testing.T) {
	tests := []struct {
		in     any
		want   string
		wantOK bool
	}{
		{true, "online", true},
		{false, "offline", true},
		{"Degraded", "Degraded", true},
		{"  ", "", false},
		{12.0, "", false},
	}
	for _, tt := range tests {
		got, ok := statusValue(tt.in)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("statusValue(%#v) = %q, %v; want %q, %v", tt.in, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestCompare(t *testing.T) {
	tests := []struct {
		op   models.Operator
		v, t float64
		want bool
	}{
		{models.OpGreaterThan, 81, 80, true},
		{models.OpGreaterThan, 80, 80, false},
		{models.OpGreaterOrEqual, 80, 80, true},
		{models.OpLessThan, 79, 80, true},
		{models.OpLessOrEqual, 80, 80, true},
		{models.OpLessOrEqual, 80.1, 80, false},
		{models.OpEqual, 80, 80, true},
		{models.Operator("between"), 80, 80, false},
	}
	for _, tt := range tests {
		if got := compare(tt.op, tt.v, tt.t); got != tt.want {
			t.Errorf("compare(%s, %v, %v) = %v, want %v", tt.op, tt.v, tt.t, got, tt.want)
		}
	}
}

func TestFormatValue(t *testing.T) {
	if got := formatValue(12.50); got != "12.5" {
		t.Errorf("formatValue(12.50) = %q", got)
	}
	if got := formatValue(true); got != "online" {
		t.Errorf("formatValue(true) = %q", got)
	}
	if got := formatValue(nil); got != "" {
		t.Errorf("formatValue(nil) = %q", got)
	}
	if got := formatThreshold(nil); got != "" {
		t.Errorf("formatThreshold(nil) = %q", got)
	}
}
