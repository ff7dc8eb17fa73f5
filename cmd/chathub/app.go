package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/chathub/internal/api"
	"github.com/kalambet/chathub/internal/command"
	"github.com/kalambet/chathub/internal/config"
	"github.com/kalambet/chathub/internal/mailer"
	"github.com/kalambet/chathub/internal/messenger"
	"github.com/kalambet/chathub/internal/outbox"
	"github.com/kalambet/chathub/internal/reminder"
	"github.com/kalambet/chathub/internal/storage"
	"github.com/kalambet/chathub/internal/todo"
)

// app holds every long-lived component of a running hub.
type app struct {
	cfg       config.Config
	logger    *slog.Logger
	history   *storage.Store
	todos     *todo.Store
	scheduler *reminder.Scheduler
	sender    messenger.Messenger
	bot       *messenger.Telegram
	mailer    *mailer.SMTP
	router    *command.Router
	worker    *outbox.Worker
	handler   http.Handler
	mcp       *server.MCPServer
}

// newMessenger builds the outbound client for the configured platform.
// bot is non-nil only for Telegram.
func newMessenger(cfg config.Config, logger *slog.Logger) (m messenger.Messenger, bot *messenger.Telegram, err error) {
	switch cfg.Messenger.Platform {
	case "telegram":
		bot = messenger.NewTelegram(cfg.Telegram.BotToken)
		return bot, bot, nil
	case "whatsapp":
		return messenger.NewWhatsApp(cfg.WhatsApp.PhoneNumberID, cfg.WhatsApp.AccessToken), nil, nil
	case "log":
		return messenger.Log{Logger: logger}, nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown messenger platform %q", cfg.Messenger.Platform)
	}
}

func newApp(cfg config.Config, logger *slog.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger}

	loc, err := cfg.Scheduler.Location()
	if err != nil {
		return nil, err
	}
	interval, err := cfg.Scheduler.Interval()
	if err != nil {
		return nil, err
	}
	aliases, err := mailer.ParseAliases(cfg.Email.Aliases)
	if err != nil {
		return nil, fmt.Errorf("email.aliases: %w", err)
	}

	a.sender, a.bot, err = newMessenger(cfg, logger)
	if err != nil {
		return nil, err
	}

	a.history, err = storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return nil, fmt.Errorf("opening history: %w", err)
	}

	a.todos, err = todo.Open(cfg.Storage.TodosPath(), todo.WithLogger(logger))
	if err != nil {
		a.history.Close()
		return nil, err
	}

	reminders, err := reminder.Open(cfg.Storage.RemindersPath(), reminder.WithLogger(logger))
	if err != nil {
		a.history.Close()
		return nil, err
	}
	a.scheduler = reminder.NewScheduler(reminders, a.sender,
		reminder.WithLocation(loc),
		reminder.WithPollInterval(interval),
		reminder.WithSchedulerLogger(logger),
		reminder.WithDeliveryObserver(a.recordDelivery),
	)

	a.mailer = mailer.New(mailer.Config{
		Server:   cfg.SMTP.Server,
		Port:     cfg.SMTP.Port,
		Username: cfg.SMTP.Username,
		Password: cfg.SMTP.Password,
		FromName: cfg.SMTP.FromName,
		Aliases:  aliases,
	}, logger)

	a.router = command.NewRouter(logger)
	command.RegisterBuiltins(a.router, command.Deps{
		Todos:     a.todos,
		Reminders: a.scheduler,
		Mailer:    a.mailer,
	})

	deps := api.Deps{
		Platform:    cfg.Messenger.Platform,
		Router:      a.router,
		Sender:      a.sender,
		History:     a.history,
		Todos:       a.todos,
		Reminders:   a.scheduler,
		Email:       a.mailer.Configured(),
		VerifyToken: cfg.WhatsApp.VerifyToken,
		AppSecret:   cfg.WhatsApp.AppSecret,
		Token:       cfg.API.Token,
		Logger:      logger,
	}
	if a.bot != nil {
		deps.Bot = a.bot
	}
	if cfg.Outbox.Enabled {
		deps.Queue = a.history
		deps.Jobs = a.history
		a.worker = outbox.NewWorker(a.history, a.sender, 500*time.Millisecond)
	}
	a.handler = api.NewHandler(deps)

	a.mcp = api.NewMCPServer(api.MCPDeps{
		Router:    a.router,
		Todos:     a.todos,
		Reminders: a.scheduler,
		History:   a.history,
	})

	return a, nil
}

// recordDelivery stores a reminder delivery in history. Failures are only
// logged.
func (a *app) recordDelivery(d reminder.Delivery) {
	err := a.history.SaveDelivery(storage.Delivery{
		ID:          uuid.NewString(),
		CreatedAt:   d.At,
		Kind:        storage.DeliveryReminder,
		Ref:         strconv.Itoa(d.ReminderID),
		Destination: d.Destination,
		Body:        d.Body,
		OK:          d.Result.OK,
		Detail:      d.Result.Detail,
	})
	if err != nil {
		a.logger.Warn("failed to record reminder delivery", "reminder_id", d.ReminderID, "error", err)
	}
}

func (a *app) Close() error {
	a.scheduler.Stop()
	return a.history.Close()
}
