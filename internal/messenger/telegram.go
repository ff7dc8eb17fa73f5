package messenger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/net/html"
)

const (
	telegramBaseURL = "https://api.telegram.org"
	defaultTimeout  = 10 * time.Second
)

// Telegram talks to the Telegram Bot API.
type Telegram struct {
	token      string
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewTelegram creates a Bot API client for token.
func NewTelegram(token string) *Telegram {
	return &Telegram{
		token:      token,
		baseURL:    telegramBaseURL,
		httpClient: &http.Client{Timeout: defaultTimeout},
		logger:     slog.Default(),
	}
}

// NewTelegramWithBaseURL points the client at a custom base URL (for testing).
func NewTelegramWithBaseURL(token, baseURL string) *Telegram {
	c := NewTelegram(token)
	c.baseURL = strings.TrimRight(baseURL, "/")
	return c
}

type telegramResponse struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result"`
	Description string          `json:"description"`
}

// BotInfo is the subset of getMe the hub uses.
type BotInfo struct {
	ID        int64  `json:"id"`
	IsBot     bool   `json:"is_bot"`
	FirstName string `json:"first_name"`
	Username  string `json:"username"`
}

func (c *Telegram) call(ctx context.Context, method string, payload any) (json.RawMessage, error) {
	var body io.Reader
	httpMethod := http.MethodGet
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("telegram: marshal %s: %w", method, err)
		}
		body = bytes.NewReader(data)
		httpMethod = http.MethodPost
	}

	url := fmt.Sprintf("%s/bot%s/%s", c.baseURL, c.token, method)
	req, err := http.NewRequestWithContext(ctx, httpMethod, url, body)
	if err != nil {
		return nil, fmt.Errorf("telegram: build %s request: %w", method, err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// The URL embeds the bot token; keep it out of error text.
		return nil, fmt.Errorf("telegram: %s request failed", method)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("telegram: reading %s response: %w", method, err)
	}

	var tr telegramResponse
	if err := json.Unmarshal(raw, &tr); err != nil {
		return nil, fmt.Errorf("telegram: HTTP %d: %s", resp.StatusCode, string(raw))
	}
	if !tr.OK || resp.StatusCode >= 400 {
		return nil, fmt.Errorf("telegram: HTTP %d: %s", resp.StatusCode, tr.Description)
	}
	return tr.Result, nil
}

// SendText sends body to chat id `to` with HTML parse mode.
func (c *Telegram) SendText(ctx context.Context, to, body string) Result {
	payload := map[string]any{
		"chat_id":    to,
		"text":       escapeHTML(body),
		"parse_mode": "HTML",
	}
	if _, err := c.call(ctx, "sendMessage", payload); err != nil {
		c.logger.Error("telegram send failed", "chat_id", to, "error", err)
		return failed("%v", err)
	}
	c.logger.Debug("telegram message sent", "chat_id", to)
	return Result{OK: true, Detail: "sent"}
}

// escapeHTML escapes body for parse_mode=HTML and keeps the escaped text
// within maxMessageLen runes, cutting only between whole entities.
func escapeHTML(body string) string {
	escaped := html.EscapeString(body)
	if utf8.RuneCountInString(escaped) <= maxMessageLen {
		return escaped
	}

	var sb strings.Builder
	n := 0
	for _, r := range body {
		e := html.EscapeString(string(r))
		k := utf8.RuneCountInString(e)
		if n+k > maxMessageLen-3 {
			break
		}
		sb.WriteString(e)
		n += k
	}
	sb.WriteString("...")
	return sb.String()
}

// GetMe returns the bot identity; it doubles as a token check.
func (c *Telegram) GetMe(ctx context.Context) (BotInfo, error) {
	raw, err := c.call(ctx, "getMe", nil)
	if err != nil {
		return BotInfo{}, err
	}
	var info BotInfo
	if err := json.Unmarshal(raw, &info); err != nil {
		return BotInfo{}, fmt.Errorf("telegram: decoding getMe: %w", err)
	}
	return info, nil
}

// SetWebhook registers url as the update destination.
func (c *Telegram) SetWebhook(ctx context.Context, url string) error {
	_, err := c.call(ctx, "setWebhook", map[string]string{"url": url})
	return err
}

// DeleteWebhook removes the registered webhook.
func (c *Telegram) DeleteWebhook(ctx context.Context) error {
	_, err := c.call(ctx, "deleteWebhook", map[string]any{})
	return err
}

// --- inbound ---

type telegramUpdate struct {
	UpdateID int64            `json:"update_id"`
	Message  *telegramMessage `json:"message"`
}

type telegramMessage struct {
	MessageID int64  `json:"message_id"`
	Date      int64  `json:"date"`
	Text      string `json:"text"`
	Chat      struct {
		ID int64 `json:"id"`
	} `json:"chat"`
	From struct {
		ID        int64  `json:"id"`
		Username  string `json:"username"`
		FirstName string `json:"first_name"`
	} `json:"from"`
	Voice    json.RawMessage `json:"voice"`
	Document json.RawMessage `json:"document"`
	Photo    json.RawMessage `json:"photo"`
}

// ParseTelegramUpdate extracts the message from a webhook update. ok is false
// for updates that carry no message (edits, callbacks, ...).
func ParseTelegramUpdate(body []byte) (msg Inbound, ok bool, err error) {
	var u telegramUpdate
	if err := json.Unmarshal(body, &u); err != nil {
		return Inbound{}, false, fmt.Errorf("telegram: decoding update: %w", err)
	}
	if u.Message == nil {
		return Inbound{}, false, nil
	}
	m := u.Message

	typ := "unknown"
	switch {
	case m.Text != "":
		typ = "text"
	case present(m.Voice):
		typ = "voice"
	case present(m.Document):
		typ = "document"
	case present(m.Photo):
		typ = "photo"
	}

	return Inbound{
		ID:       strconv.FormatInt(m.MessageID, 10),
		ChatID:   strconv.FormatInt(m.Chat.ID, 10),
		UserID:   strconv.FormatInt(m.From.ID, 10),
		Username: m.From.Username,
		Text:     m.Text,
		Type:     typ,
	}, true, nil
}

func present(raw json.RawMessage) bool {
	return len(raw) > 0 && string(raw) != "null"
}
