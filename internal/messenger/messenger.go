// Package messenger delivers text to chat platforms and decodes their
// inbound webhook payloads.
package messenger

import (
	"context"
	"fmt"
	"log/slog"
)

// Result reports the outcome of a send. Senders never return errors; a
// failed delivery is OK=false with a human-readable Detail.
type Result struct {
	OK     bool   `json:"ok"`
	Detail string `json:"detail"`
}

func failed(format string, args ...any) Result {
	return Result{OK: false, Detail: fmt.Sprintf(format, args...)}
}

// Messenger sends a text body to a destination address on a chat platform.
type Messenger interface {
	SendText(ctx context.Context, to, body string) Result
}

// Func adapts a plain function to Messenger.
type Func func(ctx context.Context, to, body string) Result

func (f Func) SendText(ctx context.Context, to, body string) Result {
	return f(ctx, to, body)
}

// Log writes every message to the logger instead of a platform. It is used
// for local runs without platform credentials.
type Log struct {
	Logger *slog.Logger
}

func (l Log) SendText(_ context.Context, to, body string) Result {
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("outbound message", "to", to, "body", body)
	return Result{OK: true, Detail: "logged"}
}

// Inbound is a message extracted from a platform webhook.
type Inbound struct {
	ID       string
	ChatID   string
	UserID   string
	Username string
	Text     string
	Type     string // "text", "voice", "document", "photo", "unknown", ...
}

const maxMessageLen = 4096

func truncate(text string) string {
	r := []rune(text)
	if len(r) <= maxMessageLen {
		return text
	}
	return string(r[:maxMessageLen-3]) + "..."
}
