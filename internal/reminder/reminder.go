package reminder

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrNotFound is returned when no reminder has the requested ID.
	ErrNotFound = errors.New("reminder not found")
	// ErrInvalidTimeSpec is returned when a time is neither HH:MM nor an ISO date-time.
	ErrInvalidTimeSpec = errors.New("invalid time spec")
	// ErrInvalidRepeat is returned for a repeat mode outside once/daily/weekly.
	ErrInvalidRepeat = errors.New("invalid repeat")
	// ErrNoDays is returned for a weekly reminder without a recognised weekday.
	ErrNoDays = errors.New("weekly reminder needs at least one weekday")
)

type Repeat string

const (
	RepeatOnce   Repeat = "once"
	RepeatDaily  Repeat = "daily"
	RepeatWeekly Repeat = "weekly"
)

// ParseRepeat accepts the repeat names case-insensitively. Empty means once.
func ParseRepeat(s string) (Repeat, error) {
	switch r := Repeat(strings.ToLower(strings.TrimSpace(s))); r {
	case "":
		return RepeatOnce, nil
	case RepeatOnce, RepeatDaily, RepeatWeekly:
		return r, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidRepeat, s)
	}
}

type Status string

const (
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusDeleted   Status = "deleted"
)

// Reminder is a scheduled message. Deleted reminders stay on disk with
// StatusDeleted.
type Reminder struct {
	ID            int        `json:"id" yaml:"id"`
	Time          string     `json:"time" yaml:"time"`
	Message       string     `json:"message" yaml:"message"`
	Destination   string     `json:"destination" yaml:"destination"`
	Repeat        Repeat     `json:"repeat" yaml:"repeat"`
	Days          []string   `json:"days" yaml:"days"`
	Status        Status     `json:"status" yaml:"status"`
	CreatedAt     time.Time  `json:"created_at" yaml:"created_at"`
	LastTriggered *time.Time `json:"last_triggered" yaml:"last_triggered"`
}

// Request describes a reminder to create.
type Request struct {
	Time        string
	Message     string
	Destination string
	Repeat      Repeat
	Days        []string
}

// DeliveryText is the body sent when a reminder fires.
func DeliveryText(message string) string {
	return "⏰ Reminder: " + message
}

// Format renders reminders for chat. Deleted reminders are never shown.
func Format(reminders []Reminder) string {
	var shown []Reminder
	for _, r := range reminders {
		if r.Status != StatusDeleted {
			shown = append(shown, r)
		}
	}
	if len(shown) == 0 {
		return "⏰ No active reminders found."
	}

	var b strings.Builder
	b.WriteString("⏰ Your reminders:\n\n")
	for _, r := range shown {
		status := "⏰"
		if r.Status == StatusCompleted {
			status = "✅"
		}
		fmt.Fprintf(&b, "%s %s %d. %s - %s\n", status, repeatEmoji(r.Repeat), r.ID, r.Time, r.Message)
		if r.Repeat == RepeatWeekly && len(r.Days) > 0 {
			fmt.Fprintf(&b, "   📅 Days: %s\n", strings.Join(r.Days, ", "))
		}
		if r.LastTriggered != nil {
			fmt.Fprintf(&b, "   🔔 Last triggered: %s\n", r.LastTriggered.Format(time.DateOnly))
		}
		b.WriteString("\n")
	}
	return strings.TrimSpace(b.String())
}

func repeatEmoji(r Repeat) string {
	switch r {
	case RepeatDaily:
		return "🔄"
	case RepeatWeekly:
		return "📅"
	default:
		return "1️⃣"
	}
}
