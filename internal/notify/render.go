package notify

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/HerbHall/pulsedeck/pkg/models"
)

var placeholderRe = regexp.MustCompile(`\{\{\s*(\w+)\s*\}\}`)

// Built-in templates used when neither the rule's template nor a default
// template is available.
const (
	fallbackTitle          = "{{severity}} Alert: {{metricDisplayName}}"
	fallbackThresholdBody  = "{{integrationName}} - {{metricDisplayName}} is {{metricValue}}{{unit}} (threshold: {{operator}} {{threshold}}{{unit}})"
	fallbackStatusBody     = "{{cardName}} status changed from {{oldStatus}} to {{newStatus}}"
	aggregateSummaryPrefix = "{{count}} more occurrences of this alert were collapsed.\n\n"
)

// vars holds placeholder values for one firing.
type vars map[string]string

// render substitutes every {{name}} in tmpl. Unknown names render empty.
func render(tmpl string, v vars) string {
	return placeholderRe.ReplaceAllStringFunc(tmpl, func(m string) string {
		name := placeholderRe.FindStringSubmatch(m)[1]
		return v[name]
	})
}

// renderNotification builds the notification from t, or from the built-in
// templates when t is nil.
func renderNotification(t *models.NotificationTemplate, rule *models.NotificationRule, v vars) (title, message string) {
	titleTmpl, bodyTmpl := fallbackTitle, fallbackThresholdBody
	if rule.ConditionType == models.ConditionStatusChange {
		bodyTmpl = fallbackStatusBody
	}
	if t != nil {
		titleTmpl, bodyTmpl = t.TitleTemplate, t.MessageTemplate
	}
	return render(titleTmpl, v), render(bodyTmpl, v)
}

// formatValue renders a metric value for humans.
func formatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32)
	case string:
		return x
	case bool:
		return statusFromBool(x)
	default:
		return fmt.Sprint(x)
	}
}

func formatThreshold(p *float64) string {
	if p == nil {
		return ""
	}
	return strconv.FormatFloat(*p, 'f', -1, 64)
}

func statusFromBool(b bool) string {
	if b {
		return "online"
	}
	return "offline"
}

// numericValue extracts a number from a metric value. Booleans count as
// 1 and 0.
func numericValue(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	case int32:
		return float64(x), true
	case uint64:
		return float64(x), true
	case bool:
		if x {
			return 1, true
		}
		return 0, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		return f, err == nil
	case fmt.Stringer:
		f, err := strconv.ParseFloat(x.String(), 64)
		return f, err == nil
	}
	return 0, false
}

// statusValue extracts a categorical status from a metric value.
func statusValue(v any) (string, bool) {
	switch x := v.(type) {
	case bool:
		return statusFromBool(x), true
	case string:
		s := strings.TrimSpace(x)
		return s, s != ""
	}
	return "", false
}

// compare applies op to value and threshold.
func compare(op models.Operator, value, threshold float64) bool {
	switch op {
	case models.OpGreaterThan:
		return value > threshold
	case models.OpLessThan:
		return value < threshold
	case models.OpGreaterOrEqual:
		return value >= threshold
	case models.OpLessOrEqual:
		return value <= threshold
	case models.OpEqual:
		return value == threshold
	}
	return false
}
