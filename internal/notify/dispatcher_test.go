package notify

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/HerbHall/pulsedeck/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type capture struct {
	mu     sync.Mutex
	reqs   []*http.Request
	bodies []string
	forms  []map[string]string
	status int
	reply  string
}

func (c *capture) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	c.mu.Lock()
	defer c.mu.Unlock()

	form := map[string]string{}
	switch ct := r.Header.Get("Content-Type"); {
	case strings.HasPrefix(ct, "multipart/form-data"):
		_ = r.ParseMultipartForm(1 << 20)
		for k, v := range r.MultipartForm.Value {
			form[k] = v[0]
		}
	case strings.HasPrefix(ct, "application/x-www-form-urlencoded"):
		_ = r.ParseForm()
		for k, v := range r.PostForm {
			form[k] = v[0]
		}
	default:
		body, _ := io.ReadAll(r.Body)
		c.bodies = append(c.bodies, string(body))
	}
	c.forms = append(c.forms, form)
	c.reqs = append(c.reqs, r)

	status := c.status
	if status == 0 {
		status = http.StatusOK
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(c.reply))
}

func newDispatcher(t *testing.T, pushoverURL string) (*Dispatcher, *Store) {
	t.Helper()
	s := testStore(t)
	cfg := DefaultConfig()
	if pushoverURL != "" {
		cfg.PushoverURL = pushoverURL
	}
	cfg.DispatchTimeout = 2 * time.Second
	return NewDispatcher(s, cfg, &http.Client{}, zap.NewNop()), s
}

var alert = models.Notification{
	Title:     "CRITICAL Alert: CPU Usage",
	Message:   "nas - CPU Usage is 95% <hot>",
	Severity:  models.SeverityCritical,
	Timestamp: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
}

func TestDispatch_discord(t *testing.T) {
	c := &capture{status: http.StatusNoContent}
	srv := httptest.NewServer(c)
	defer srv.Close()

	d, s := newDispatcher(t, "")
	w := insertWebhook(t, s, models.ProviderDiscord, srv.URL+"/api/webhooks/1/abc", true)

	res := d.Dispatch(context.Background(), w.ID, alert)
	require.True(t, res.Success, res.Message)

	require.Len(t, c.bodies, 1)
	assert.Equal(t, "/api/webhooks/1/abc", c.reqs[0].URL.Path)
	assert.Equal(t, "application/json", c.reqs[0].Header.Get("Content-Type"))
	assert.True(t, strings.HasPrefix(c.reqs[0].Header.Get("User-Agent"), "PulseDeck/"))

	var p discordPayload
	require.NoError(t, json.Unmarshal([]byte(c.bodies[0]), &p))
	assert.Equal(t, "PulseDeck", p.Username)
	require.Len(t, p.Embeds, 1)
	assert.Equal(t, alert.Title, p.Embeds[0].Title)
	assert.Equal(t, alert.Message, p.Embeds[0].Description)
	assert.Equal(t, discordColorCritical, p.Embeds[0].Color)
	assert.Equal(t, "2026-03-01T12:00:00Z", p.Embeds[0].Timestamp)
	assert.Contains(t, p.Embeds[0].Footer.Text, "CRITICAL")
}

func TestDispatch_discord_error_status(t *testing.T) {
	c := &capture{status: http.StatusBadRequest, reply: `{"message":"Invalid Webhook Token"}`}
	srv := httptest.NewServer(c)
	defer srv.Close()

	d, s := newDispatcher(t, "")
	w := insertWebhook(t, s, models.ProviderDiscord, srv.URL, true)

	res := d.Dispatch(context.Background(), w.ID, alert)
	assert.False(t, res.Success)
	assert.Contains(t, res.Message, "discord responded 400")
	assert.Contains(t, res.Message, "Invalid Webhook Token")
}

func TestDispatch_telegram(t *testing.T) {
	c := &capture{reply: `{"ok":true,"result":{"message_id":1,"date":1767268800,"chat":{"id":42,"type":"private"}}}`}
	srv := httptest.NewServer(c)
	defer srv.Close()

	d, s := newDispatcher(t, "")
	w := insertWebhook(t, s, models.ProviderTelegram, srv.URL+"/bot123:ABC/sendMessage?chat_id=42", true)

	res := d.Dispatch(context.Background(), w.ID, alert)
	require.True(t, res.Success, res.Message)

	require.Len(t, c.reqs, 1)
	assert.Equal(t, "/bot123:ABC/sendMessage", c.reqs[0].URL.Path)
	form := c.forms[0]
	assert.Equal(t, "42", form["chat_id"])
	assert.Contains(t, form["parse_mode"], "HTML")
	assert.Equal(t, "<b>CRITICAL Alert: CPU Usage</b>\n\nnas - CPU Usage is 95% &lt;hot&gt;", form["text"])
}

func TestDispatch_telegram_api_error(t *testing.T) {
	c := &capture{status: http.StatusBadRequest, reply: `{"ok":false,"error_code":400,"description":"Bad Request: chat not found"}`}
	srv := httptest.NewServer(c)
	defer srv.Close()

	d, s := newDispatcher(t, "")
	w := insertWebhook(t, s, models.ProviderTelegram, srv.URL+"/bot123:ABC/sendMessage?chat_id=@nowhere", true)

	res := d.Dispatch(context.Background(), w.ID, alert)
	assert.False(t, res.Success)
}

func TestDispatch_pushover(t *testing.T) {
	c := &capture{reply: `{"status":1}`}
	srv := httptest.NewServer(c)
	defer srv.Close()

	d, s := newDispatcher(t, srv.URL+"/1/messages.json")
	w := insertWebhook(t, s, models.ProviderPushover, "apptoken:userkey", true)

	res := d.Dispatch(context.Background(), w.ID, alert)
	require.True(t, res.Success, res.Message)

	require.Len(t, c.forms, 1)
	form := c.forms[0]
	assert.Equal(t, "apptoken", form["token"])
	assert.Equal(t, "userkey", form["user"])
	assert.Equal(t, alert.Title, form["title"])
	assert.Equal(t, alert.Message, form["message"])
	assert.Equal(t, "1", form["priority"])
}

func TestPushoverPriority(t *testing.T) {
	assert.Equal(t, "1", pushoverPriority(models.SeverityCritical))
	assert.Equal(t, "0", pushoverPriority(models.SeverityWarning))
	assert.Equal(t, "-1", pushoverPriority(models.SeverityInfo))
}

func TestDispatch_missing_and_inactive_webhooks(t *testing.T) {
	d, s := newDispatcher(t, "")

	res := d.Dispatch(context.Background(), 404, alert)
	assert.False(t, res.Success)
	assert.Equal(t, "webhook not found", res.Message)

	w := insertWebhook(t, s, models.ProviderDiscord, "http://127.0.0.1:1/never", false)
	res = d.Dispatch(context.Background(), w.ID, alert)
	assert.False(t, res.Success)
	assert.Equal(t, "webhook is inactive", res.Message)
}

func TestDispatch_connection_failure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	d, s := newDispatcher(t, "")
	w := insertWebhook(t, s, models.ProviderDiscord, url, true)

	res := d.Dispatch(context.Background(), w.ID, alert)
	assert.False(t, res.Success)
	assert.Contains(t, res.Message, "discord request")
}

func TestDispatcherTest_sends_info_notification(t *testing.T) {
	c := &capture{status: http.StatusNoContent}
	srv := httptest.NewServer(c)
	defer srv.Close()

	d, s := newDispatcher(t, "")
	w := insertWebhook(t, s, models.ProviderDiscord, srv.URL, true)

	res := d.Test(context.Background(), w.ID)
	require.True(t, res.Success, res.Message)

	var p discordPayload
	require.NoError(t, json.Unmarshal([]byte(c.bodies[0]), &p))
	assert.Equal(t, discordColorInfo, p.Embeds[0].Color)
}

func TestValidateDestinations(t *testing.T) {
	d, _ := newDispatcher(t, "")
	tests := []struct {
		provider models.ProviderType
		dest     string
		ok       bool
	}{
		{models.ProviderDiscord, "https://discord.com/api/webhooks/1/x", true},
		{models.ProviderDiscord, "discord.com/api/webhooks", false},
		{models.ProviderTelegram, "https://api.telegram.org/bot123:ABC/sendMessage?chat_id=-100200", true},
		{models.ProviderTelegram, "https://api.telegram.org/bot123:ABC/sendMessage", false},
		{models.ProviderTelegram, "https://api.telegram.org/sendMessage?chat_id=1", false},
		{models.ProviderPushover, "token:user", true},
		{models.ProviderPushover, "token", false},
		{models.ProviderPushover, ":user", false},
		{models.ProviderType("slack"), "https://hooks.slack.com/x", false},
	}
	for _, tt := range tests {
		err := d.Validate(tt.provider, tt.dest)
		if tt.ok {
			assert.NoError(t, err, "%s %s", tt.provider, tt.dest)
		} else {
			assert.Error(t, err, "%s %s", tt.provider, tt.dest)
			assert.True(t, models.IsConfiguration(err), "%s %s: %v", tt.provider, tt.dest, err)
		}
	}
}

func TestParseTelegramDest(t *testing.T) {
	td, err := parseTelegramDest("https://api.telegram.org/bot123:ABC/sendMessage?chat_id=-100200")
	require.NoError(t, err)
	assert.Equal(t, "https://api.telegram.org", td.serverURL)
	assert.Equal(t, "123:ABC", td.token)
	assert.Equal(t, int64(-100200), td.chatID)

	td, err = parseTelegramDest("https://api.telegram.org/bot123:ABC/sendMessage?chat_id=@ops")
	require.NoError(t, err)
	assert.Equal(t, "@ops", td.chatID)
}
