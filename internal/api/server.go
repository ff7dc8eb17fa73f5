package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/chathub/internal/messenger"
	"github.com/kalambet/chathub/internal/outbox"
	"github.com/kalambet/chathub/internal/reminder"
	"github.com/kalambet/chathub/internal/storage"
	"github.com/kalambet/chathub/internal/todo"
)

// Dispatcher answers a raw command line. Implemented by *command.Router.
type Dispatcher interface {
	Dispatch(ctx context.Context, sender, raw string) string
	Commands() []string
}

// History records inbound messages and reads back message and delivery
// history. Implemented by *storage.Store.
type History interface {
	SaveMessage(m storage.Message) error
	RecentMessages(chatID string, limit int) ([]storage.Message, error)
	RecentDeliveries(kind string, limit int) ([]storage.Delivery, error)
}

// BotIdentity looks up the bot account for webhook verification.
// Implemented by *messenger.Telegram.
type BotIdentity interface {
	GetMe(ctx context.Context) (messenger.BotInfo, error)
}

// JobStats inspects the reply outbox. Implemented by *storage.Store.
type JobStats interface {
	CountJobs() (map[string]int, error)
	GetJob(id string) (storage.Job, error)
}

type Deps struct {
	Platform string
	Router   Dispatcher
	Sender   messenger.Messenger

	// Optional collaborators. A nil Queue sends replies inline; a nil
	// History skips message recording.
	Queue     outbox.JobStore
	Jobs      JobStats
	History   History
	Bot       BotIdentity
	Todos     *todo.Store
	Reminders *reminder.Scheduler
	Email     bool

	VerifyToken string // WhatsApp hub.verify_token
	AppSecret   string // WhatsApp X-Hub-Signature-256 key
	Token       string // admin bearer token

	Logger *slog.Logger
}

func (d Deps) logger() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return slog.Default()
}

// NewHandler returns the HTTP surface: liveness, the messaging webhooks and
// the bearer-protected admin API under /api.
func NewHandler(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Get("/", handleRoot(deps))
	r.Get("/health", handleHealth)
	r.Get("/status", handleStatus(deps))

	r.Get("/webhook", handleVerify(deps))
	r.Post("/webhook", handleTelegramWebhook(deps))
	r.Post("/webhook/whatsapp", handleWhatsAppWebhook(deps))

	r.Route("/api", func(r chi.Router) {
		r.Use(BearerAuth(deps.Token))
		mountAdmin(r, deps)
	})

	return r
}

func handleRoot(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"message":  "Chat Hub is running",
			"platform": deps.Platform,
		})
	}
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

// StatusResponse is the body of GET /status.
type StatusResponse struct {
	Status   string          `json:"status"`
	Platform string          `json:"platform"`
	Commands []string        `json:"commands"`
	Features map[string]bool `json:"features"`
	Outbox   map[string]int  `json:"outbox,omitempty"`
}

func handleStatus(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var counts map[string]int
		if deps.Jobs != nil {
			var err error
			if counts, err = deps.Jobs.CountJobs(); err != nil {
				deps.logger().Warn("counting outbox jobs failed", "error", err)
			}
		}
		writeJSON(w, http.StatusOK, StatusResponse{
			Status:   "running",
			Outbox:   counts,
			Platform: deps.Platform,
			Commands: deps.Router.Commands(),
			Features: map[string]bool{
				"todos":     deps.Todos != nil,
				"reminders": deps.Reminders != nil,
				"email":     deps.Email,
				"history":   deps.History != nil,
				"outbox":    deps.Queue != nil,
			},
		})
	}
}
