package main

import (
	"fmt"
	"io"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/kalambet/chathub/internal/api"
	"github.com/kalambet/chathub/internal/config"
	"github.com/kalambet/chathub/internal/mailer"
	"github.com/kalambet/chathub/internal/messenger"
	"github.com/kalambet/chathub/internal/reminder"
	"github.com/kalambet/chathub/internal/storage"
	"github.com/kalambet/chathub/internal/todo"
)

// --- send ---

var sendCmd = &cobra.Command{
	Use:   "send <command line>",
	Short: "Run a chat command on the server and print the reply",
	Long: `Run a chat command on the running server and print the reply.
The reply is not sent to any chat.

Examples:
  chathub send help
  chathub send todo add buy milk
  chathub send --as 123456 remind daily 09:00 stand-up`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sender, _ := cmd.Flags().GetString("as")

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		return runSend(cmd, client, sender, strings.Join(args, " "))
	},
}

func runSend(cmd *cobra.Command, client *apiClient, sender, text string) error {
	resp, err := client.post(cmd.Context(), "/api/dispatch", api.DispatchRequest{Sender: sender, Text: text})
	if err != nil {
		return err
	}
	var out map[string]string
	if err := decodeJSON(resp, &out); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), out["reply"])
	return nil
}

func init() {
	sendCmd.Flags().String("as", "", "chat id to act as (reminders are delivered there)")
}

// --- todo ---

var todoCmd = &cobra.Command{
	Use:   "todo",
	Short: "Manage todos",
}

var todoListCmd = &cobra.Command{
	Use:   "list",
	Short: "List todos",
	RunE: func(cmd *cobra.Command, args []string) error {
		status, _ := cmd.Flags().GetString("status")
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		return runTodoList(cmd, client, status)
	},
}

func runTodoList(cmd *cobra.Command, client *apiClient, status string) error {
	path := "/api/todos"
	if status != "" {
		path += "?status=" + url.QueryEscape(status)
	}
	resp, err := client.get(cmd.Context(), path)
	if err != nil {
		return err
	}
	var todos []todo.Todo
	if err := decodeJSON(resp, &todos); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), todo.Format(todos))
	return nil
}

var todoAddCmd = &cobra.Command{
	Use:   "add <task>",
	Short: "Add a todo",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		priority, _ := cmd.Flags().GetString("priority")
		due, _ := cmd.Flags().GetString("due")

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.post(cmd.Context(), "/api/todos", api.TodoRequest{
			Task:     strings.Join(args, " "),
			Priority: priority,
			DueDate:  due,
		})
		if err != nil {
			return err
		}
		var t todo.Todo
		if err := decodeJSON(resp, &t); err != nil {
			return err
		}
		printSuccess("Added todo %d: %s", t.ID, t.Task)
		return nil
	},
}

var todoDoneCmd = &cobra.Command{
	Use:   "done <id>",
	Short: "Mark a todo as completed",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid todo id %q", args[0])
		}
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.post(cmd.Context(), fmt.Sprintf("/api/todos/%d/complete", id), nil)
		if err != nil {
			return err
		}
		var t todo.Todo
		if err := decodeJSON(resp, &t); err != nil {
			return err
		}
		printSuccess("Completed todo %d: %s", t.ID, t.Task)
		return nil
	},
}

var todoDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a todo",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return deleteByID(cmd, "/api/todos/", "todo", args[0])
	},
}

func deleteByID(cmd *cobra.Command, prefix, what, raw string) error {
	id, err := strconv.Atoi(raw)
	if err != nil {
		return fmt.Errorf("invalid %s id %q", what, raw)
	}
	client, err := newAPIClient()
	if err != nil {
		return err
	}
	resp, err := client.delete(cmd.Context(), prefix+strconv.Itoa(id))
	if err != nil {
		return err
	}
	var out map[string]string
	if err := decodeJSON(resp, &out); err != nil {
		return err
	}
	printSuccess("Deleted %s %d", what, id)
	return nil
}

func init() {
	todoListCmd.Flags().String("status", "", "filter by status: pending or completed")
	todoAddCmd.Flags().String("priority", "medium", "low, medium or high")
	todoAddCmd.Flags().String("due", "", "due date (free form)")
	todoCmd.AddCommand(todoListCmd)
	todoCmd.AddCommand(todoAddCmd)
	todoCmd.AddCommand(todoDoneCmd)
	todoCmd.AddCommand(todoDeleteCmd)
}

// --- remind ---

var remindCmd = &cobra.Command{
	Use:   "remind",
	Short: "Manage reminders",
}

var remindListCmd = &cobra.Command{
	Use:   "list",
	Short: "List active reminders with their next fire time",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), "/api/reminders?status=active")
		if err != nil {
			return err
		}
		var rems []api.ReminderView
		if err := decodeJSON(resp, &rems); err != nil {
			return err
		}
		renderReminders(cmd.OutOrStdout(), rems, time.Now())
		return nil
	},
}

func renderReminders(w io.Writer, rems []api.ReminderView, now time.Time) {
	if len(rems) == 0 {
		fmt.Fprintln(w, "No active reminders.")
		return
	}
	for _, r := range rems {
		when := r.Time
		if r.Repeat == reminder.RepeatWeekly {
			when = strings.Join(r.Days, ",") + " " + when
		}
		line := fmt.Sprintf("%3d  %-6s  %-22s  %s", r.ID, r.Repeat, when, r.Message)
		if r.NextFire != nil {
			line += render(mutedStyle, "  (next "+humanize.RelTime(*r.NextFire, now, "ago", "from now")+")")
		}
		fmt.Fprintln(w, line)
	}
}

var remindAddCmd = &cobra.Command{
	Use:   "add <time> <message>",
	Short: "Schedule a reminder",
	Long: `Schedule a reminder.

Examples:
  chathub remind add --to 123456 09:00 stand-up
  chathub remind add --to 123456 --repeat daily 21:30 take pills
  chathub remind add --to 123456 --repeat weekly --days mon,fri 08:00 gym`,
	Args: cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		to, _ := cmd.Flags().GetString("to")
		repeat, _ := cmd.Flags().GetString("repeat")
		days, _ := cmd.Flags().GetStringSlice("days")
		if to == "" {
			return fmt.Errorf("--to is required")
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.post(cmd.Context(), "/api/reminders", api.ReminderRequest{
			Time:        args[0],
			Message:     strings.Join(args[1:], " "),
			Destination: to,
			Repeat:      repeat,
			Days:        days,
		})
		if err != nil {
			return err
		}
		var r api.ReminderView
		if err := decodeJSON(resp, &r); err != nil {
			return err
		}
		printSuccess("Scheduled reminder %d (%s at %s)", r.ID, r.Repeat, r.Time)
		return nil
	},
}

var remindDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a reminder",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return deleteByID(cmd, "/api/reminders/", "reminder", args[0])
	},
}

func init() {
	remindAddCmd.Flags().String("to", "", "chat id to deliver to")
	remindAddCmd.Flags().String("repeat", "once", "once, daily or weekly")
	remindAddCmd.Flags().StringSlice("days", nil, "weekdays for weekly reminders")
	remindCmd.AddCommand(remindListCmd)
	remindCmd.AddCommand(remindAddCmd)
	remindCmd.AddCommand(remindDeleteCmd)
}

// --- history ---

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent messages and deliveries",
}

var historyMessagesCmd = &cobra.Command{
	Use:   "messages",
	Short: "Show recent inbound messages and replies",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		chat, _ := cmd.Flags().GetString("chat")

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		q := url.Values{"limit": {strconv.Itoa(limit)}}
		if chat != "" {
			q.Set("chat_id", chat)
		}
		resp, err := client.get(cmd.Context(), "/api/messages?"+q.Encode())
		if err != nil {
			return err
		}
		var msgs []storage.Message
		if err := decodeJSON(resp, &msgs); err != nil {
			return err
		}
		renderMessages(cmd.OutOrStdout(), msgs, time.Now())
		return nil
	},
}

func renderMessages(w io.Writer, msgs []storage.Message, now time.Time) {
	if len(msgs) == 0 {
		fmt.Fprintln(w, "No messages.")
		return
	}
	for _, m := range msgs {
		who := m.Username
		if who == "" {
			who = m.ChatID
		}
		fmt.Fprintf(w, "%s  %s  %s\n",
			render(mutedStyle, humanize.RelTime(m.CreatedAt, now, "ago", "from now")),
			render(labelStyle, who),
			firstLine(m.Text))
		fmt.Fprintf(w, "    ↳ %s\n", firstLine(m.Reply))
	}
}

var historyDeliveriesCmd = &cobra.Command{
	Use:   "deliveries",
	Short: "Show recent outbound deliveries",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		kind, _ := cmd.Flags().GetString("kind")

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		q := url.Values{"limit": {strconv.Itoa(limit)}}
		if kind != "" {
			q.Set("kind", kind)
		}
		resp, err := client.get(cmd.Context(), "/api/deliveries?"+q.Encode())
		if err != nil {
			return err
		}
		var ds []storage.Delivery
		if err := decodeJSON(resp, &ds); err != nil {
			return err
		}
		renderDeliveries(cmd.OutOrStdout(), ds, time.Now())
		return nil
	},
}

func renderDeliveries(w io.Writer, ds []storage.Delivery, now time.Time) {
	if len(ds) == 0 {
		fmt.Fprintln(w, "No deliveries.")
		return
	}
	for _, d := range ds {
		mark := render(successStyle, "✓")
		if !d.OK {
			mark = render(errorStyle, "✗")
		}
		fmt.Fprintf(w, "%s %-8s %-14s %s  %s\n",
			mark, d.Kind, d.Destination,
			render(mutedStyle, humanize.RelTime(d.CreatedAt, now, "ago", "from now")),
			firstLine(d.Body))
		if !d.OK && d.Detail != "" {
			fmt.Fprintf(w, "    %s\n", render(errorStyle, d.Detail))
		}
	}
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i] + " …"
	}
	return s
}

func init() {
	historyMessagesCmd.Flags().Int("limit", 20, "number of messages (max 100)")
	historyMessagesCmd.Flags().String("chat", "", "only messages from this chat id")
	historyDeliveriesCmd.Flags().Int("limit", 20, "number of deliveries (max 100)")
	historyDeliveriesCmd.Flags().String("kind", "", "filter: reminder or reply")
	historyCmd.AddCommand(historyMessagesCmd)
	historyCmd.AddCommand(historyDeliveriesCmd)
}

// --- webhook ---

var webhookCmd = &cobra.Command{
	Use:   "webhook",
	Short: "Manage the Telegram webhook registration",
}

func telegramFromConfig() (*messenger.Telegram, config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, cfg, err
	}
	if cfg.Messenger.Platform != "telegram" {
		return nil, cfg, fmt.Errorf("messenger.platform is %q; webhook management is Telegram only", cfg.Messenger.Platform)
	}
	return messenger.NewTelegram(cfg.Telegram.BotToken), cfg, nil
}

var webhookSetCmd = &cobra.Command{
	Use:   "set [url]",
	Short: "Point the Telegram bot at a webhook URL (default: telegram.webhook_url)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		bot, cfg, err := telegramFromConfig()
		if err != nil {
			return err
		}
		target := cfg.Telegram.WebhookURL
		if len(args) == 1 {
			target = args[0]
		}
		if target == "" {
			return fmt.Errorf("no webhook URL given and telegram.webhook_url is not set")
		}
		printStep("Registering webhook %s", target)
		if err := bot.SetWebhook(cmd.Context(), target); err != nil {
			return err
		}
		printSuccess("Webhook set")
		return nil
	},
}

var webhookDeleteCmd = &cobra.Command{
	Use:   "delete",
	Short: "Remove the Telegram webhook",
	RunE: func(cmd *cobra.Command, args []string) error {
		bot, _, err := telegramFromConfig()
		if err != nil {
			return err
		}
		if err := bot.DeleteWebhook(cmd.Context()); err != nil {
			return err
		}
		printSuccess("Webhook removed")
		return nil
	},
}

var webhookInfoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show the bot account behind the configured token",
	RunE: func(cmd *cobra.Command, args []string) error {
		bot, _, err := telegramFromConfig()
		if err != nil {
			return err
		}
		info, err := bot.GetMe(cmd.Context())
		if err != nil {
			return err
		}
		printStatus("Bot", "@%s (%s, id %d)", info.Username, info.FirstName, info.ID)
		return nil
	},
}

func init() {
	webhookCmd.AddCommand(webhookSetCmd)
	webhookCmd.AddCommand(webhookDeleteCmd)
	webhookCmd.AddCommand(webhookInfoCmd)
}

// --- email ---

var emailCmd = &cobra.Command{
	Use:   "email",
	Short: "Email utilities",
}

var emailTestCmd = &cobra.Command{
	Use:   "test",
	Short: "Check the SMTP connection and credentials",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		m := mailer.New(mailer.Config{
			Server:   cfg.SMTP.Server,
			Port:     cfg.SMTP.Port,
			Username: cfg.SMTP.Username,
			Password: cfg.SMTP.Password,
			FromName: cfg.SMTP.FromName,
		}, nil)
		printStep("Connecting to %s:%d", cfg.SMTP.Server, cfg.SMTP.Port)
		if err := m.TestConnection(cmd.Context()); err != nil {
			return err
		}
		printSuccess("SMTP connection OK")
		return nil
	},
}

func init() {
	emailCmd.AddCommand(emailTestCmd)
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		renderConfig(cmd.OutOrStdout(), config.ShowAll(cfg))
		return nil
	},
}

func renderConfig(w io.Writer, keys []config.KeyInfo) {
	for _, k := range keys {
		fmt.Fprintf(w, "  %s = %s %s\n", render(labelStyle, k.Key), k.Value, render(mutedStyle, "($"+k.EnvVar+")"))
	}
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			fmt.Fprintf(os.Stderr, "valid keys: %s\n", strings.Join(config.ValidKeys(), ", "))
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}
