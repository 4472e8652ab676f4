package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/HerbHall/pulsedeck/internal/version"
	"github.com/HerbHall/pulsedeck/pkg/models"
	tgbot "github.com/go-telegram/bot"
	tgmodels "github.com/go-telegram/bot/models"
)

// checkResponse turns a non-2xx reply into a connection error carrying a
// short body excerpt.
func checkResponse(resp *http.Response, provider string) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return models.NewConnectionError(
		fmt.Sprintf("%s responded %d", provider, resp.StatusCode),
		errors.New(strings.TrimSpace(string(body))),
	)
}

func validateHTTPURL(dest string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(dest))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, models.NewConfigurationError("destination must be an http(s) URL")
	}
	return u, nil
}

// -- Discord --

// Embed colors by severity.
const (
	discordColorInfo     = 0x5865F2
	discordColorWarning  = 0xFEE75C
	discordColorCritical = 0xED4245
)

type discord struct {
	client *http.Client
}

func newDiscord(client *http.Client) *discord { return &discord{client: client} }

func (d *discord) Type() models.ProviderType { return models.ProviderDiscord }

func (d *discord) Validate(dest string) error {
	_, err := validateHTTPURL(dest)
	return err
}

type discordPayload struct {
	Username string         `json:"username"`
	Embeds   []discordEmbed `json:"embeds"`
}

type discordEmbed struct {
	Title       string        `json:"title"`
	Description string        `json:"description"`
	Color       int           `json:"color"`
	Timestamp   string        `json:"timestamp"`
	Footer      discordFooter `json:"footer"`
}

type discordFooter struct {
	Text string `json:"text"`
}

func discordColor(s models.Severity) int {
	switch s {
	case models.SeverityCritical:
		return discordColorCritical
	case models.SeverityWarning:
		return discordColorWarning
	default:
		return discordColorInfo
	}
}

func (d *discord) Send(ctx context.Context, dest string, n models.Notification) error {
	body, err := json.Marshal(discordPayload{
		Username: "PulseDeck",
		Embeds: []discordEmbed{{
			Title:       n.Title,
			Description: n.Message,
			Color:       discordColor(n.Severity),
			Timestamp:   n.Timestamp.UTC().Format(time.RFC3339),
			Footer:      discordFooter{Text: "PulseDeck • " + strings.ToUpper(string(n.Severity))},
		}},
	})
	if err != nil {
		return models.NewInternalError("marshal discord payload", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, dest, bytes.NewReader(body))
	if err != nil {
		return models.NewConfigurationError("invalid discord webhook url: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "PulseDeck/"+version.Short())

	resp, err := d.client.Do(req)
	if err != nil {
		return models.NewConnectionError("discord request", err)
	}
	defer resp.Body.Close()
	return checkResponse(resp, "discord")
}

// -- Telegram --

// telegramPathRe matches /bot<TOKEN>/sendMessage.
var telegramPathRe = regexp.MustCompile(`^/bot([^/]+)/sendMessage/?$`)

type telegram struct{}

func newTelegram() *telegram { return &telegram{} }

func (t *telegram) Type() models.ProviderType { return models.ProviderTelegram }

type telegramDest struct {
	serverURL string
	token     string
	chatID    any
}

func parseTelegramDest(dest string) (telegramDest, error) {
	u, err := validateHTTPURL(dest)
	if err != nil {
		return telegramDest{}, err
	}
	m := telegramPathRe.FindStringSubmatch(u.Path)
	if m == nil {
		return telegramDest{}, models.NewConfigurationError("telegram destination must look like https://api.telegram.org/bot<TOKEN>/sendMessage?chat_id=<ID>")
	}
	chat := strings.TrimSpace(u.Query().Get("chat_id"))
	if chat == "" {
		return telegramDest{}, models.NewConfigurationError("telegram destination is missing chat_id")
	}
	return telegramDest{
		serverURL: u.Scheme + "://" + u.Host,
		token:     m[1],
		chatID:    normalizeChatID(chat),
	}, nil
}

// normalizeChatID sends numeric chat ids as integers and channel usernames
// as strings.
func normalizeChatID(raw string) any {
	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return n
	}
	return raw
}

func (t *telegram) Validate(dest string) error {
	_, err := parseTelegramDest(dest)
	return err
}

func (t *telegram) Send(ctx context.Context, dest string, n models.Notification) error {
	td, err := parseTelegramDest(dest)
	if err != nil {
		return err
	}
	b, err := tgbot.New(td.token, tgbot.WithSkipGetMe(), tgbot.WithServerURL(td.serverURL))
	if err != nil {
		return models.NewConfigurationError("init telegram bot: %v", err)
	}

	text := "<b>" + html.EscapeString(n.Title) + "</b>\n\n" + html.EscapeString(n.Message)
	_, err = b.SendMessage(ctx, &tgbot.SendMessageParams{
		ChatID:    td.chatID,
		Text:      text,
		ParseMode: tgmodels.ParseModeHTML,
	})
	if err != nil {
		return models.NewConnectionError("telegram send", err)
	}
	return nil
}

// -- Pushover --

type pushover struct {
	client   *http.Client
	endpoint string
}

func newPushover(client *http.Client, endpoint string) *pushover {
	return &pushover{client: client, endpoint: endpoint}
}

func (p *pushover) Type() models.ProviderType { return models.ProviderPushover }

func parsePushoverDest(dest string) (token, user string, err error) {
	token, user, ok := strings.Cut(strings.TrimSpace(dest), ":")
	if !ok || token == "" || user == "" {
		return "", "", models.NewConfigurationError("pushover destination must be <app_token>:<user_key>")
	}
	return token, user, nil
}

func (p *pushover) Validate(dest string) error {
	_, _, err := parsePushoverDest(dest)
	return err
}

func pushoverPriority(s models.Severity) string {
	switch s {
	case models.SeverityCritical:
		return "1"
	case models.SeverityInfo:
		return "-1"
	default:
		return "0"
	}
}

func (p *pushover) Send(ctx context.Context, dest string, n models.Notification) error {
	token, user, err := parsePushoverDest(dest)
	if err != nil {
		return err
	}
	form := url.Values{
		"token":     {token},
		"user":      {user},
		"title":     {n.Title},
		"message":   {n.Message},
		"priority":  {pushoverPriority(n.Severity)},
		"timestamp": {strconv.FormatInt(n.Timestamp.Unix(), 10)},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return models.NewConfigurationError("invalid pushover endpoint: %v", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", "PulseDeck/"+version.Short())

	resp, err := p.client.Do(req)
	if err != nil {
		return models.NewConnectionError("pushover request", err)
	}
	defer resp.Body.Close()
	return checkResponse(resp, "pushover")
}
