package api

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/kalambet/chathub/internal/messenger"
	"github.com/kalambet/chathub/internal/outbox"
	"github.com/kalambet/chathub/internal/storage"
)

func telegramUpdate(text string) string {
	return `{"update_id":1,"message":{"message_id":7,"chat":{"id":42},"from":{"id":99,"username":"alice"},"text":"` + text + `"}}`
}

func TestTelegramWebhook_DispatchesAndReplies(t *testing.T) {
	f := newFixture(t)

	rr := f.do(t, http.MethodPost, "/webhook", telegramUpdate("ping"), "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d; body = %s", rr.Code, rr.Body.String())
	}

	sent := f.sender.messages()
	if len(sent) != 1 || sent[0].to != "42" || sent[0].body != "pong 🏓" {
		t.Fatalf("sent = %+v", sent)
	}

	msgs, err := f.history.RecentMessages("42", 10)
	if err != nil {
		t.Fatalf("RecentMessages: %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("history has %d messages, want 1", len(msgs))
	}
	m := msgs[0]
	if m.Platform != "telegram" || m.Command != "ping" || m.Reply != "pong 🏓" || m.Username != "alice" {
		t.Errorf("recorded message = %+v", m)
	}
}

func TestTelegramWebhook_ReminderGoesToChat(t *testing.T) {
	f := newFixture(t)

	rr := f.do(t, http.MethodPost, "/webhook", telegramUpdate("remind daily 09:00 stand-up"), "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	rems := f.sched.List("")
	if len(rems) != 1 || rems[0].Destination != "42" {
		t.Fatalf("reminders = %+v", rems)
	}
}

func TestTelegramWebhook_VoiceAndOtherTypes(t *testing.T) {
	tests := []struct {
		name  string
		body  string
		reply string
	}{
		{
			name:  "voice",
			body:  `{"update_id":2,"message":{"message_id":8,"chat":{"id":42},"voice":{"file_id":"v"}}}`,
			reply: voiceReply,
		},
		{
			name:  "photo",
			body:  `{"update_id":3,"message":{"message_id":9,"chat":{"id":42},"photo":[{"file_id":"p"}]}}`,
			reply: "Received photo message. Text commands are supported.",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			rr := f.do(t, http.MethodPost, "/webhook", tt.body, "")
			if rr.Code != http.StatusOK {
				t.Fatalf("status = %d", rr.Code)
			}
			sent := f.sender.messages()
			if len(sent) != 1 || sent[0].body != tt.reply {
				t.Fatalf("sent = %+v, want reply %q", sent, tt.reply)
			}
		})
	}
}

func TestTelegramWebhook_IgnoresUpdatesWithoutMessage(t *testing.T) {
	f := newFixture(t)
	rr := f.do(t, http.MethodPost, "/webhook", `{"update_id":5}`, "")
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), "ignored") {
		t.Fatalf("got %d %s", rr.Code, rr.Body.String())
	}
	if len(f.sender.messages()) != 0 {
		t.Error("reply sent for an update without a message")
	}
}

func TestTelegramWebhook_BadJSON(t *testing.T) {
	f := newFixture(t)
	if rr := f.do(t, http.MethodPost, "/webhook", `{not json`, ""); rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rr.Code)
	}
}

func TestTelegramWebhook_FailedSendStillAnswers(t *testing.T) {
	f := newFixture(t)
	f.sender.fail = true

	rr := f.do(t, http.MethodPost, "/webhook", telegramUpdate("ping"), "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if n, _ := f.history.CountMessages(); n != 1 {
		t.Errorf("history has %d messages, want 1", n)
	}
}

func TestWebhook_QueuesReplyWhenOutboxConfigured(t *testing.T) {
	f := newFixture(t)
	f.deps.Queue = f.history

	rr := f.do(t, http.MethodPost, "/webhook", telegramUpdate("ping"), "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if len(f.sender.messages()) != 0 {
		t.Fatal("reply sent inline although an outbox is configured")
	}

	counts, err := f.history.CountJobs()
	if err != nil {
		t.Fatalf("CountJobs: %v", err)
	}
	if counts["pending"] != 1 {
		t.Fatalf("job counts = %v, want 1 pending", counts)
	}

	w := outbox.NewWorker(f.history, f.sender, time.Millisecond)
	if did, err := w.RunOnce(t.Context()); !did || err != nil {
		t.Fatalf("RunOnce = %v, %v", did, err)
	}
	sent := f.sender.messages()
	if len(sent) != 1 || sent[0].body != "pong 🏓" {
		t.Fatalf("sent = %+v", sent)
	}

	ds, err := f.history.RecentDeliveries(storage.DeliveryReply, 10)
	if err != nil || len(ds) != 1 {
		t.Fatalf("deliveries = %+v, %v", ds, err)
	}
	msgs, _ := f.history.RecentMessages("42", 1)
	if len(msgs) != 1 || ds[0].Ref != msgs[0].ID {
		t.Errorf("delivery ref %q does not link message %+v", ds[0].Ref, msgs)
	}
}

func TestVerify_WhatsAppChallenge(t *testing.T) {
	f := newFixture(t)
	f.deps.VerifyToken = "secret-verify"

	rr := f.do(t, http.MethodGet, "/webhook?hub.mode=subscribe&hub.verify_token=secret-verify&hub.challenge=12345", "", "")
	if rr.Code != http.StatusOK || rr.Body.String() != "12345" {
		t.Fatalf("got %d %q", rr.Code, rr.Body.String())
	}

	rr = f.do(t, http.MethodGet, "/webhook?hub.mode=subscribe&hub.verify_token=nope&hub.challenge=12345", "", "")
	if rr.Code != http.StatusForbidden {
		t.Fatalf("mismatched token: status = %d, want 403", rr.Code)
	}
}

func TestVerify_TelegramBotInfo(t *testing.T) {
	f := newFixture(t)
	f.deps.Bot = fakeBot{info: messenger.BotInfo{ID: 1, Username: "hub_bot"}}

	rr := f.do(t, http.MethodGet, "/webhook", "", "")
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), "hub_bot") {
		t.Fatalf("got %d %s", rr.Code, rr.Body.String())
	}

	f.deps.Bot = fakeBot{err: errBotDown}
	if rr := f.do(t, http.MethodGet, "/webhook", "", ""); rr.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", rr.Code)
	}
}

const whatsAppPayload = `{"entry":[{"changes":[{"value":{
	"contacts":[{"wa_id":"15550001","profile":{"name":"Bob"}}],
	"messages":[{"id":"wamid.1","from":"15550001","type":"text","text":{"body":"todo add buy milk"}}]
}}]}]}`

func sign(secret, body string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(body))
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func TestWhatsAppWebhook(t *testing.T) {
	f := newFixture(t)
	f.deps.Platform = "whatsapp"
	f.deps.AppSecret = "app-secret"

	req := httptest.NewRequest(http.MethodPost, "/webhook/whatsapp", strings.NewReader(whatsAppPayload))
	req.Header.Set("X-Hub-Signature-256", sign("app-secret", whatsAppPayload))
	rr := httptest.NewRecorder()
	NewHandler(f.deps).ServeHTTP(rr, req)

	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), `"processed":1`) {
		t.Fatalf("got %d %s", rr.Code, rr.Body.String())
	}
	if todos := f.todos.List(""); len(todos) != 1 || todos[0].Task != "buy milk" {
		t.Fatalf("todos = %+v", todos)
	}
	sent := f.sender.messages()
	if len(sent) != 1 || sent[0].to != "15550001" {
		t.Fatalf("sent = %+v", sent)
	}
}

func TestWhatsAppWebhook_RejectsBadSignature(t *testing.T) {
	f := newFixture(t)
	f.deps.AppSecret = "app-secret"

	req := httptest.NewRequest(http.MethodPost, "/webhook/whatsapp", strings.NewReader(whatsAppPayload))
	req.Header.Set("X-Hub-Signature-256", sign("other-secret", whatsAppPayload))
	rr := httptest.NewRecorder()
	NewHandler(f.deps).ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rr.Code)
	}
	if len(f.todos.List("")) != 0 {
		t.Error("command ran despite a bad signature")
	}
}
