package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/HerbHall/pulsedeck/pkg/models"
	"go.uber.org/zap"
)

type fakeRefs struct {
	integrations map[int64]*models.Integration
	cards        map[int64]*models.Card
}

func (f fakeRefs) GetIntegration(_ context.Context, id int64) (*models.Integration, error) {
	return f.integrations[id], nil
}

func (f fakeRefs) GetCard(_ context.Context, id int64) (*models.Card, error) {
	return f.cards[id], nil
}

type handlerEnv struct {
	mux    *http.ServeMux
	store  *Store
	sender *recordingSender
	hook   *models.WebhookConfig
}

func newHandlerEnv(t *testing.T) *handlerEnv {
	t.Helper()
	s := testStore(t)
	sender := &recordingSender{}
	refs := fakeRefs{
		integrations: map[int64]*models.Integration{1: {ID: 1, ServiceName: "nas"}},
		cards:        map[int64]*models.Card{5: {ID: 5, Name: "NAS"}},
	}
	d := NewDispatcher(s, DefaultConfig(), &http.Client{}, zap.NewNop())
	e := NewEvaluator(s, refs, sender, DefaultConfig(), zap.NewNop())

	mux := http.NewServeMux()
	NewHandler(s, d, e, refs, zap.NewNop()).RegisterRoutes(mux)
	hook := insertWebhook(t, s, models.ProviderPushover, "tok:user", true)
	return &handlerEnv{mux: mux, store: s, sender: sender, hook: hook}
}

func (e *handlerEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	w := httptest.NewRecorder()
	e.mux.ServeHTTP(w, req)
	return w
}

func itoa(id int64) string { return strconv.FormatInt(id, 10) }

func (e *handlerEnv) validRule() map[string]any {
	return map[string]any{
		"name":           "CPU hot",
		"webhook_id":     e.hook.ID,
		"target_type":    "integration",
		"target_id":      1,
		"metric_type":    "cpu_usage",
		"condition_type": "threshold",
		"operator":       "gt",
		"threshold":      80,
	}
}

func TestHandleCreateRule_defaults(t *testing.T) {
	env := newHandlerEnv(t)

	w := env.do(t, http.MethodPost, "/api/v1/notification-rules", env.validRule())
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	var r models.NotificationRule
	if err := json.NewDecoder(w.Body).Decode(&r); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if r.ID == 0 || !r.IsActive {
		t.Errorf("rule = %+v", r)
	}
	if r.Severity != models.SeverityWarning || r.CooldownMinutes != models.DefaultCooldownMinutes {
		t.Errorf("defaults: severity %q cooldown %d", r.Severity, r.CooldownMinutes)
	}
}

func TestHandleCreateRule_validation(t *testing.T) {
	env := newHandlerEnv(t)
	tests := []struct {
		name   string
		mutate func(m map[string]any)
		want   int
	}{
		{"missing name", func(m map[string]any) { delete(m, "name") }, http.StatusBadRequest},
		{"bad operator", func(m map[string]any) { m["operator"] = "between" }, http.StatusBadRequest},
		{"missing threshold", func(m map[string]any) { delete(m, "threshold") }, http.StatusBadRequest},
		{"bad target type", func(m map[string]any) { m["target_type"] = "device" }, http.StatusBadRequest},
		{"missing target id", func(m map[string]any) { delete(m, "target_id") }, http.StatusBadRequest},
		{"bad severity", func(m map[string]any) { m["severity"] = "apocalyptic" }, http.StatusBadRequest},
		{"negative cooldown", func(m map[string]any) { m["cooldown_minutes"] = -1 }, http.StatusBadRequest},
		{"aggregation without window", func(m map[string]any) { m["aggregation_enabled"] = true }, http.StatusBadRequest},
		{"status rule without statuses", func(m map[string]any) {
			m["condition_type"] = "status_change"
			delete(m, "operator")
			delete(m, "threshold")
		}, http.StatusBadRequest},
		{"mixed condition fields", func(m map[string]any) { m["to_status"] = "offline" }, http.StatusBadRequest},
		{"unknown webhook", func(m map[string]any) { m["webhook_id"] = 999 }, http.StatusNotFound},
		{"unknown integration", func(m map[string]any) { m["target_id"] = 2 }, http.StatusNotFound},
		{"unknown card", func(m map[string]any) { m["target_type"] = "card"; m["target_id"] = 6 }, http.StatusNotFound},
		{"unknown template", func(m map[string]any) { m["template_id"] = 77 }, http.StatusNotFound},
		{"card target", func(m map[string]any) { m["target_type"] = "card"; m["target_id"] = 5 }, http.StatusCreated},
		{"all target drops id", func(m map[string]any) { m["target_type"] = "all" }, http.StatusCreated},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := env.validRule()
			tt.mutate(body)
			w := env.do(t, http.MethodPost, "/api/v1/notification-rules", body)
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d, body = %s", w.Code, tt.want, w.Body.String())
			}
		})
	}
}

func TestHandleUpdateRule_switches_condition(t *testing.T) {
	env := newHandlerEnv(t)
	w := env.do(t, http.MethodPost, "/api/v1/notification-rules", env.validRule())
	var r models.NotificationRule
	_ = json.NewDecoder(w.Body).Decode(&r)

	w = env.do(t, http.MethodPatch, "/api/v1/notification-rules/"+itoa(r.ID), map[string]any{
		"condition_type": "status_change",
		"metric_type":    "uptime",
		"to_status":      "offline",
		"template_id":    0,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	got, _ := env.store.GetRule(context.Background(), r.ID)
	if got.Operator != nil || got.Threshold != nil {
		t.Errorf("threshold fields kept after switch: %+v", got)
	}
	if got.ToStatus == nil || *got.ToStatus != "offline" || got.MetricType != "uptime" {
		t.Errorf("updated rule = %+v", got)
	}

	w = env.do(t, http.MethodPatch, "/api/v1/notification-rules/999", map[string]any{"name": "x"})
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown rule status = %d, want 404", w.Code)
	}
}

func TestHandleRuleGetDeleteTest(t *testing.T) {
	env := newHandlerEnv(t)
	w := env.do(t, http.MethodPost, "/api/v1/notification-rules", env.validRule())
	var r models.NotificationRule
	_ = json.NewDecoder(w.Body).Decode(&r)
	path := "/api/v1/notification-rules/" + itoa(r.ID)

	if w := env.do(t, http.MethodGet, path, nil); w.Code != http.StatusOK {
		t.Errorf("get status = %d", w.Code)
	}

	w = env.do(t, http.MethodPost, path+"/test", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("test status = %d, body = %s", w.Code, w.Body.String())
	}
	var res models.DeliveryResult
	_ = json.NewDecoder(w.Body).Decode(&res)
	if !res.Success || len(env.sender.all()) != 1 {
		t.Errorf("test result = %+v, sent %d", res, len(env.sender.all()))
	}

	if w := env.do(t, http.MethodDelete, path, nil); w.Code != http.StatusNoContent {
		t.Errorf("delete status = %d", w.Code)
	}
	if w := env.do(t, http.MethodGet, path, nil); w.Code != http.StatusNotFound {
		t.Errorf("get after delete = %d, want 404", w.Code)
	}
	if w := env.do(t, http.MethodPost, path+"/test", nil); w.Code != http.StatusNotFound {
		t.Errorf("test after delete = %d, want 404", w.Code)
	}
	if w := env.do(t, http.MethodGet, "/api/v1/notification-rules/abc", nil); w.Code != http.StatusBadRequest {
		t.Errorf("invalid id = %d, want 400", w.Code)
	}
}

func TestHandleListRules_empty(t *testing.T) {
	env := newHandlerEnv(t)
	w := env.do(t, http.MethodGet, "/api/v1/notification-rules", nil)
	if w.Code != http.StatusOK || w.Body.String() != "[]\n" {
		t.Errorf("list = %d %q, want 200 []", w.Code, w.Body.String())
	}
}

func TestHandleWebhooks(t *testing.T) {
	env := newHandlerEnv(t)

	w := env.do(t, http.MethodPost, "/api/v1/webhooks", map[string]any{
		"name":          "Ops",
		"provider_type": "telegram",
		"webhook_url":   "https://api.telegram.org/bot1:A/sendMessage?chat_id=5",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body = %s", w.Code, w.Body.String())
	}
	var wh models.WebhookConfig
	_ = json.NewDecoder(w.Body).Decode(&wh)
	path := "/api/v1/webhooks/" + itoa(wh.ID)

	w = env.do(t, http.MethodPost, "/api/v1/webhooks", map[string]any{
		"name": "Bad", "provider_type": "pushover", "webhook_url": "no-colon",
	})
	if w.Code != http.StatusBadRequest {
		t.Errorf("invalid pushover dest = %d, want 400", w.Code)
	}
	w = env.do(t, http.MethodPost, "/api/v1/webhooks", map[string]any{
		"name": "Slack", "provider_type": "slack", "webhook_url": "https://hooks.slack.com/x",
	})
	if w.Code != http.StatusBadRequest {
		t.Errorf("unknown provider = %d, want 400", w.Code)
	}

	w = env.do(t, http.MethodPatch, path, map[string]any{"is_active": false})
	if w.Code != http.StatusOK {
		t.Fatalf("patch status = %d, body = %s", w.Code, w.Body.String())
	}

	// Inactive webhooks report failure without contacting the provider.
	w = env.do(t, http.MethodPost, path+"/test", nil)
	var res models.DeliveryResult
	_ = json.NewDecoder(w.Body).Decode(&res)
	if w.Code != http.StatusOK || res.Success {
		t.Errorf("test inactive = %d %+v", w.Code, res)
	}

	w = env.do(t, http.MethodGet, "/api/v1/webhooks", nil)
	var list []models.WebhookConfig
	_ = json.NewDecoder(w.Body).Decode(&list)
	if len(list) != 2 {
		t.Errorf("list = %d webhooks, want 2", len(list))
	}

	if w := env.do(t, http.MethodDelete, path, nil); w.Code != http.StatusNoContent {
		t.Errorf("delete = %d", w.Code)
	}
	if w := env.do(t, http.MethodPost, path+"/test", nil); w.Code != http.StatusNotFound {
		t.Errorf("test deleted = %d, want 404", w.Code)
	}
}

func TestHandleDeleteWebhook_removes_rules(t *testing.T) {
	env := newHandlerEnv(t)
	w := env.do(t, http.MethodPost, "/api/v1/notification-rules", env.validRule())
	var r models.NotificationRule
	_ = json.NewDecoder(w.Body).Decode(&r)

	if w := env.do(t, http.MethodDelete, "/api/v1/webhooks/"+itoa(env.hook.ID), nil); w.Code != http.StatusNoContent {
		t.Fatalf("delete = %d", w.Code)
	}
	if w := env.do(t, http.MethodGet, "/api/v1/notification-rules/"+itoa(r.ID), nil); w.Code != http.StatusNotFound {
		t.Errorf("rule after webhook delete = %d, want 404", w.Code)
	}
}

func TestHandleTemplates(t *testing.T) {
	env := newHandlerEnv(t)

	w := env.do(t, http.MethodPost, "/api/v1/notification-templates", map[string]any{
		"name":             "Pager",
		"title_template":   "{{severity}}",
		"message_template": "{{metricValue}}",
		"is_default":       true,
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create = %d, body = %s", w.Code, w.Body.String())
	}
	var tmpl models.NotificationTemplate
	_ = json.NewDecoder(w.Body).Decode(&tmpl)
	if !tmpl.IsActive || !tmpl.IsDefault {
		t.Errorf("template = %+v", tmpl)
	}
	path := "/api/v1/notification-templates/" + itoa(tmpl.ID)

	w = env.do(t, http.MethodPost, "/api/v1/notification-templates", map[string]any{"name": "empty"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("missing bodies = %d, want 400", w.Code)
	}

	w = env.do(t, http.MethodPatch, path, map[string]any{"title_template": "new {{ruleName}}"})
	if w.Code != http.StatusOK {
		t.Fatalf("patch = %d, body = %s", w.Code, w.Body.String())
	}
	def, _ := env.store.GetDefaultTemplate(context.Background())
	if def == nil || def.TitleTemplate != "new {{ruleName}}" {
		t.Errorf("default after patch = %+v", def)
	}

	w = env.do(t, http.MethodGet, "/api/v1/notification-templates", nil)
	var list []models.NotificationTemplate
	_ = json.NewDecoder(w.Body).Decode(&list)
	if len(list) != 1 {
		t.Errorf("list = %d templates, want 1", len(list))
	}

	if w := env.do(t, http.MethodDelete, path, nil); w.Code != http.StatusNoContent {
		t.Errorf("delete = %d", w.Code)
	}
	if w := env.do(t, http.MethodPatch, path, map[string]any{"name": "x"}); w.Code != http.StatusNotFound {
		t.Errorf("patch deleted = %d, want 404", w.Code)
	}
}
