package command

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/kalambet/chathub/internal/mailer"
	"github.com/kalambet/chathub/internal/reminder"
	"github.com/kalambet/chathub/internal/todo"
)

const helpText = `🤖 Telegram Control Hub Commands:

📧 Email Commands:
• email <to> <subject> <body> - Send email
• email boss "Update" "Project done" - Send to boss

📝 Todo Commands:
• todo add <task> - Add new task
• todo list [pending|completed] - Show tasks
• todo done <id> - Mark task as done
• todo delete <id> - Delete task
• todo stats - Show progress

⏰ Reminder Commands:
• remind <time> <message> - Set reminder
• remind 18:30 "Join standup"
• remind daily <time> <message> - Repeat every day
• remind weekly <days> <time> <message> - Repeat on days (monday,friday)
• remind list - Show active reminders
• remind delete <id> - Delete reminder

🎥 Meeting Commands:
• meeting join <url> - Join meeting
• meeting record - Start recording

🎤 Voice Commands:
• Send voice note for voice commands

Type 'help' for this message.`

// Todos is the part of the todo store the todo command needs.
type Todos interface {
	Add(task string, priority todo.Priority, dueDate string) (todo.Todo, error)
	List(status todo.Status) []todo.Todo
	Complete(id int) (todo.Todo, error)
	Delete(id int) (bool, error)
	Summary() todo.Summary
}

// Reminders is the part of the reminder scheduler the remind command needs.
type Reminders interface {
	Add(req reminder.Request) (reminder.Reminder, error)
	Delete(id int) (bool, error)
	Format() string
}

// Mailer sends email on behalf of the email command.
type Mailer interface {
	// Resolve maps a configured alias such as "boss" to an address and
	// returns anything else unchanged.
	Resolve(recipient string) string
	Send(ctx context.Context, to, subject, body string) error
}

// Deps are the collaborators of the built-in commands. A nil collaborator
// leaves its command unregistered.
type Deps struct {
	Todos     Todos
	Reminders Reminders
	Mailer    Mailer
}

// RegisterBuiltins registers help, ping, meeting and every command whose
// collaborator is present in deps.
func RegisterBuiltins(r *Router, deps Deps) {
	r.Register("help", HandlerFunc(help))
	r.Register("ping", HandlerFunc(ping))
	r.Register("meeting", HandlerFunc(meeting))
	if deps.Todos != nil {
		r.Register("todo", TodoHandler{Store: deps.Todos})
	}
	if deps.Mailer != nil {
		r.Register("email", EmailHandler{Mailer: deps.Mailer, Logger: r.logger})
	}
	if deps.Reminders != nil {
		r.Register("remind", RemindHandler{Reminders: deps.Reminders})
	}
}

func help(context.Context, string, Command) (string, error) {
	return helpText, nil
}

func ping(context.Context, string, Command) (string, error) {
	return "pong 🏓", nil
}

func meeting(_ context.Context, _ string, cmd Command) (string, error) {
	switch sub := cmd.Sub(); sub {
	case "":
		return "Usage: meeting <join|record> [url]", nil
	case "join":
		if len(cmd.Args) < 2 {
			return "Usage: meeting join <url>", nil
		}
		return "🎥 Joining meeting: " + cmd.Args[1], nil
	case "record":
		return "🎙️ Starting meeting recording...", nil
	default:
		return "Unknown meeting subcommand: " + sub, nil
	}
}

// TodoHandler implements "todo add|list|done|delete|stats".
type TodoHandler struct {
	Store Todos
}

func (h TodoHandler) Handle(_ context.Context, _ string, cmd Command) (string, error) {
	switch sub := cmd.Sub(); sub {
	case "":
		return "Usage: todo <add|list|done|delete> [task|id]", nil

	case "add":
		if len(cmd.Args) < 2 {
			return "Usage: todo add <task>", nil
		}
		task := cmd.Rest(1)
		t, err := h.Store.Add(task, todo.PriorityMedium, "")
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("✅ Added task: %s (ID: %d)", task, t.ID), nil

	case "list":
		var status todo.Status
		if len(cmd.Args) > 1 {
			switch s := todo.Status(strings.ToLower(cmd.Args[1])); s {
			case todo.StatusPending, todo.StatusCompleted:
				status = s
			default:
				return "Usage: todo list [pending|completed]", nil
			}
		}
		return todo.Format(h.Store.List(status)), nil

	case "done":
		if len(cmd.Args) < 2 {
			return "Usage: todo done <id>", nil
		}
		id, err := strconv.Atoi(cmd.Args[1])
		if err != nil {
			return "❌ Invalid task ID. Please provide a number.", nil
		}
		t, err := h.Store.Complete(id)
		if errors.Is(err, todo.ErrNotFound) {
			return fmt.Sprintf("❌ Task %d not found", id), nil
		}
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("✅ Marked task %d as done: %s", id, t.Task), nil

	case "delete":
		if len(cmd.Args) < 2 {
			return "Usage: todo delete <id>", nil
		}
		id, err := strconv.Atoi(cmd.Args[1])
		if err != nil {
			return "❌ Invalid task ID. Please provide a number.", nil
		}
		found, err := h.Store.Delete(id)
		if err != nil {
			return "", err
		}
		if !found {
			return fmt.Sprintf("❌ Task %d not found", id), nil
		}
		return fmt.Sprintf("🗑️ Deleted task %d", id), nil

	case "stats":
		s := h.Store.Summary()
		return fmt.Sprintf("📊 Todo stats:\nTotal: %d\nPending: %d\nCompleted: %d\nCompletion rate: %.1f%%",
			s.Total, s.Pending, s.Completed, s.CompletionRate), nil

	default:
		return "Unknown todo subcommand: " + sub, nil
	}
}

// EmailHandler implements "email <to> <subject> <body...>".
// Send failures are logged; the reply only names failures the sender can
// act on.
type EmailHandler struct {
	Mailer Mailer
	Logger *slog.Logger
}

func (h EmailHandler) Handle(ctx context.Context, sender string, cmd Command) (string, error) {
	if len(cmd.Args) < 3 {
		return "Usage: email <to> <subject> <body>", nil
	}
	recipient := cmd.Args[0]
	to := h.Mailer.Resolve(recipient)
	subject := cmd.Args[1]
	body := cmd.Rest(2)

	if err := h.Mailer.Send(ctx, to, subject, body); err != nil {
		logger := h.Logger
		if logger == nil {
			logger = slog.Default()
		}
		logger.Error("email delivery failed",
			"sender", sender,
			"recipient", recipient,
			"to", to,
			"subject", subject,
			"error", err,
		)
		switch {
		case errors.Is(err, mailer.ErrNotConfigured):
			return "❌ Failed to send email: email is not configured", nil
		case errors.Is(err, mailer.ErrInvalidRecipient):
			return "❌ Failed to send email: invalid recipient " + recipient, nil
		}
		return "❌ Failed to send email", nil
	}
	return fmt.Sprintf("📧 Email sent successfully!\nTo: %s\nSubject: %s", recipient, subject), nil
}

// RemindHandler implements "remind" and its list, delete, daily and weekly
// forms. Reminders are delivered back to the sender.
type RemindHandler struct {
	Reminders Reminders
}

func (h RemindHandler) Handle(_ context.Context, sender string, cmd Command) (string, error) {
	switch cmd.Sub() {
	case "list":
		return h.Reminders.Format(), nil

	case "delete":
		if len(cmd.Args) < 2 {
			return "Usage: remind delete <id>", nil
		}
		id, err := strconv.Atoi(cmd.Args[1])
		if err != nil {
			return "❌ Invalid reminder ID. Please provide a number.", nil
		}
		found, err := h.Reminders.Delete(id)
		if err != nil {
			return "", err
		}
		if !found {
			return fmt.Sprintf("❌ Reminder %d not found", id), nil
		}
		return fmt.Sprintf("🗑️ Deleted reminder %d", id), nil

	case "daily":
		if len(cmd.Args) < 3 {
			return "Usage: remind daily <time> <message>", nil
		}
		req := reminder.Request{
			Time:        cmd.Args[1],
			Message:     cmd.Rest(2),
			Destination: sender,
			Repeat:      reminder.RepeatDaily,
		}
		r, reply, err := h.add(req)
		if reply != "" || err != nil {
			return reply, err
		}
		return fmt.Sprintf("🔄 Daily reminder set for %s: %s (ID: %d)", r.Time, r.Message, r.ID), nil

	case "weekly":
		if len(cmd.Args) < 4 {
			return "Usage: remind weekly <day[,day]> <time> <message>", nil
		}
		req := reminder.Request{
			Time:        cmd.Args[2],
			Message:     cmd.Rest(3),
			Destination: sender,
			Repeat:      reminder.RepeatWeekly,
			Days:        splitDays(cmd.Args[1]),
		}
		r, reply, err := h.add(req)
		if reply != "" || err != nil {
			return reply, err
		}
		return fmt.Sprintf("📅 Weekly reminder set for %s at %s: %s (ID: %d)",
			strings.Join(r.Days, ", "), r.Time, r.Message, r.ID), nil

	default:
		if len(cmd.Args) < 2 {
			return "Usage: remind <time> <message>", nil
		}
		req := reminder.Request{
			Time:        cmd.Args[0],
			Message:     cmd.Rest(1),
			Destination: sender,
			Repeat:      reminder.RepeatOnce,
		}
		r, reply, err := h.add(req)
		if reply != "" || err != nil {
			return reply, err
		}
		return fmt.Sprintf("⏰ Reminder set for %s: %s (ID: %d)", r.Time, r.Message, r.ID), nil
	}
}

// add returns a non-empty reply when the request was rejected for a reason
// the user can fix.
func (h RemindHandler) add(req reminder.Request) (reminder.Reminder, string, error) {
	r, err := h.Reminders.Add(req)
	switch {
	case errors.Is(err, reminder.ErrInvalidTimeSpec):
		return r, fmt.Sprintf("❌ Invalid time: %s. Use HH:MM or an ISO date-time.", req.Time), nil
	case errors.Is(err, reminder.ErrNoDays):
		return r, fmt.Sprintf("❌ No valid weekdays in: %s", strings.Join(req.Days, ", ")), nil
	case err != nil:
		return r, "", err
	}
	return r, "", nil
}

func splitDays(s string) []string {
	var days []string
	for _, d := range strings.Split(s, ",") {
		if d = strings.ToLower(strings.TrimSpace(d)); d != "" {
			days = append(days, d)
		}
	}
	return days
}
