package messenger

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
)

const (
	whatsAppBaseURL    = "https://graph.facebook.com"
	whatsAppAPIVersion = "v21.0"
)

// WhatsApp sends messages through the WhatsApp Cloud API.
type WhatsApp struct {
	phoneNumberID string
	accessToken   string
	apiVersion    string
	baseURL       string
	httpClient    *http.Client
	logger        *slog.Logger
}

// NewWhatsApp creates a Cloud API client for the given business phone number.
func NewWhatsApp(phoneNumberID, accessToken string) *WhatsApp {
	return &WhatsApp{
		phoneNumberID: phoneNumberID,
		accessToken:   accessToken,
		apiVersion:    whatsAppAPIVersion,
		baseURL:       whatsAppBaseURL,
		httpClient:    &http.Client{Timeout: defaultTimeout},
		logger:        slog.Default(),
	}
}

// NewWhatsAppWithBaseURL points the client at a custom base URL (for testing).
func NewWhatsAppWithBaseURL(phoneNumberID, accessToken, baseURL string) *WhatsApp {
	c := NewWhatsApp(phoneNumberID, accessToken)
	c.baseURL = strings.TrimRight(baseURL, "/")
	return c
}

// SendText sends body to the phone number `to`.
func (c *WhatsApp) SendText(ctx context.Context, to, body string) Result {
	payload := map[string]any{
		"messaging_product": "whatsapp",
		"recipient_type":    "individual",
		"to":                to,
		"type":              "text",
		"text":              map[string]string{"body": truncate(body)},
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return failed("whatsapp: marshal payload: %v", err)
	}

	url := fmt.Sprintf("%s/%s/%s/messages", c.baseURL, c.apiVersion, c.phoneNumberID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return failed("whatsapp: create request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.accessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("whatsapp send failed", "to", to, "error", err)
		return failed("whatsapp: request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		c.logger.Error("whatsapp send failed", "to", to, "status", resp.StatusCode)
		return failed("whatsapp: HTTP %d: %s", resp.StatusCode, string(respBody))
	}

	c.logger.Debug("whatsapp message sent", "to", to, "status", resp.StatusCode)
	return Result{OK: true, Detail: "sent"}
}

// VerifyWhatsAppSignature checks an X-Hub-Signature-256 header against the
// app secret. An empty secret disables verification.
func VerifyWhatsAppSignature(appSecret string, body []byte, signature string) bool {
	if appSecret == "" {
		return true
	}
	hexSig, ok := strings.CutPrefix(signature, "sha256=")
	if !ok || hexSig == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(appSecret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(hexSig))
}

type whatsAppWebhook struct {
	Object string `json:"object"`
	Entry  []struct {
		ID      string `json:"id"`
		Changes []struct {
			Field string `json:"field"`
			Value struct {
				Contacts []struct {
					WaID    string `json:"wa_id"`
					Profile struct {
						Name string `json:"name"`
					} `json:"profile"`
				} `json:"contacts"`
				Messages []struct {
					ID   string `json:"id"`
					From string `json:"from"`
					Type string `json:"type"`
					Text *struct {
						Body string `json:"body"`
					} `json:"text,omitempty"`
				} `json:"messages"`
			} `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

// ParseWhatsAppWebhook extracts every message from a Cloud API webhook
// payload. Status-only notifications yield no messages.
func ParseWhatsAppWebhook(body []byte) ([]Inbound, error) {
	var hook whatsAppWebhook
	if err := json.Unmarshal(body, &hook); err != nil {
		return nil, fmt.Errorf("whatsapp: decoding webhook: %w", err)
	}

	var out []Inbound
	for _, entry := range hook.Entry {
		for _, change := range entry.Changes {
			names := make(map[string]string, len(change.Value.Contacts))
			for _, c := range change.Value.Contacts {
				names[c.WaID] = c.Profile.Name
			}
			for _, m := range change.Value.Messages {
				in := Inbound{
					ID:       m.ID,
					ChatID:   m.From,
					UserID:   m.From,
					Username: names[m.From],
					Type:     m.Type,
				}
				if m.Type == "audio" {
					in.Type = "voice"
				}
				if m.Text != nil {
					in.Text = m.Text.Body
				}
				if in.Type == "" {
					in.Type = "unknown"
				}
				out = append(out, in)
			}
		}
	}
	return out, nil
}
