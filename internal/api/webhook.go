package api

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/google/uuid"

	"github.com/kalambet/chathub/internal/command"
	"github.com/kalambet/chathub/internal/messenger"
	"github.com/kalambet/chathub/internal/outbox"
	"github.com/kalambet/chathub/internal/storage"
)

const voiceReply = "🎤 Voice message received! Processing..."

// handleVerify answers the platform webhook handshake. WhatsApp sends
// hub.mode=subscribe and expects hub.challenge echoed back; Telegram has no
// handshake, so the bot identity is reported instead.
func handleVerify(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("hub.mode") == "subscribe" {
			if deps.VerifyToken == "" || q.Get("hub.verify_token") != deps.VerifyToken {
				httpError(w, http.StatusForbidden, "authentication_error", "verification token mismatch")
				return
			}
			w.Header().Set("Content-Type", "text/plain")
			io.WriteString(w, q.Get("hub.challenge"))
			return
		}

		if deps.Bot == nil {
			writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "platform": deps.Platform})
			return
		}
		info, err := deps.Bot.GetMe(r.Context())
		if err != nil {
			httpError(w, http.StatusBadGateway, "api_error", "bot lookup failed: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "platform": deps.Platform, "bot": info})
	}
}

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	defer r.Body.Close()
	body, err := io.ReadAll(r.Body)
	if err != nil {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "reading body: %v", err)
		return nil, false
	}
	return body, true
}

func handleTelegramWebhook(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, ok := readBody(w, r)
		if !ok {
			return
		}
		in, ok, err := messenger.ParseTelegramUpdate(body)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid update: %v", err)
			return
		}
		if !ok {
			writeJSON(w, http.StatusOK, map[string]string{"status": "ignored"})
			return
		}

		reply := handleInbound(r.Context(), deps, "telegram", in)
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "reply": reply})
	}
}

func handleWhatsAppWebhook(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, ok := readBody(w, r)
		if !ok {
			return
		}
		if !messenger.VerifyWhatsAppSignature(deps.AppSecret, body, r.Header.Get("X-Hub-Signature-256")) {
			httpError(w, http.StatusUnauthorized, "authentication_error", "invalid signature")
			return
		}
		msgs, err := messenger.ParseWhatsAppWebhook(body)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid payload: %v", err)
			return
		}

		for _, in := range msgs {
			handleInbound(r.Context(), deps, "whatsapp", in)
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "processed": len(msgs)})
	}
}

// replyFor answers an inbound message. Only text is dispatched as a command.
func replyFor(ctx context.Context, deps Deps, in messenger.Inbound) string {
	switch in.Type {
	case "text":
		return deps.Router.Dispatch(ctx, in.ChatID, in.Text)
	case "voice":
		return voiceReply
	default:
		return fmt.Sprintf("Received %s message. Text commands are supported.", in.Type)
	}
}

// handleInbound answers in, records it in history and hands the reply to
// the outbox, or to the messenger directly when no outbox is configured.
// History and delivery failures are logged and never change the reply.
func handleInbound(ctx context.Context, deps Deps, platform string, in messenger.Inbound) string {
	log := deps.logger().With("platform", platform, "chat_id", in.ChatID)
	reply := replyFor(ctx, deps, in)

	msgID := uuid.NewString()
	if deps.History != nil {
		cmd, _ := command.Parse(in.Text)
		if err := deps.History.SaveMessage(storage.Message{
			ID:       msgID,
			Platform: platform,
			ChatID:   in.ChatID,
			UserID:   in.UserID,
			Username: in.Username,
			Type:     in.Type,
			Text:     in.Text,
			Command:  cmd.Name,
			Reply:    reply,
		}); err != nil {
			log.Warn("failed to record message", "error", err)
		}
	}

	if in.ChatID == "" {
		log.Warn("inbound message without chat id; reply dropped")
		return reply
	}

	if deps.Queue != nil {
		_, err := outbox.Enqueue(deps.Queue, in.ChatID, reply, msgID)
		if err == nil {
			return reply
		}
		log.Warn("failed to queue reply; sending inline", "error", err)
	}

	if res := deps.Sender.SendText(ctx, in.ChatID, reply); !res.OK {
		log.Warn("reply delivery failed", "detail", res.Detail)
	}
	return reply
}
