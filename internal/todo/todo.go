package todo

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrNotFound is returned when no todo has the requested ID.
var ErrNotFound = errors.New("todo not found")

// ErrInvalidPriority is returned for a priority outside low/medium/high.
var ErrInvalidPriority = errors.New("invalid priority")

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// ParsePriority accepts the three priority names case-insensitively.
// An empty string yields PriorityMedium.
func ParsePriority(s string) (Priority, error) {
	switch p := Priority(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return PriorityMedium, nil
	case PriorityLow, PriorityMedium, PriorityHigh:
		return p, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidPriority, s)
	}
}

type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
)

// ErrInvalidStatus is returned for a status outside pending/completed.
var ErrInvalidStatus = errors.New("invalid status")

// ParseStatus accepts pending or completed case-insensitively.
func ParseStatus(s string) (Status, error) {
	switch st := Status(strings.ToLower(strings.TrimSpace(s))); st {
	case StatusPending, StatusCompleted:
		return st, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidStatus, s)
	}
}

// Todo is a single task record. IDs are never reused.
type Todo struct {
	ID          int        `json:"id" yaml:"id"`
	Task        string     `json:"task" yaml:"task"`
	Priority    Priority   `json:"priority" yaml:"priority"`
	Status      Status     `json:"status" yaml:"status"`
	CreatedAt   time.Time  `json:"created_at" yaml:"created_at"`
	DueDate     *string    `json:"due_date" yaml:"due_date"`
	CompletedAt *time.Time `json:"completed_at" yaml:"completed_at"`
}

// Patch lists the fields Update may change. Nil fields are left alone.
type Patch struct {
	Task     *string
	Priority *Priority
	DueDate  *string
	Status   *Status
}

// Summary counts todos by status.
type Summary struct {
	Total          int     `json:"total"`
	Pending        int     `json:"pending"`
	Completed      int     `json:"completed"`
	CompletionRate float64 `json:"completion_rate"`
}

// Format renders todos for a chat reply, in the given order.
func Format(todos []Todo) string {
	if len(todos) == 0 {
		return "📝 No todos found."
	}

	var b strings.Builder
	b.WriteString("📝 Your todos:\n\n")
	for _, t := range todos {
		status := "⏳"
		if t.Status == StatusCompleted {
			status = "✅"
		}
		fmt.Fprintf(&b, "%s %s %d. %s\n", status, priorityMarker(t.Priority), t.ID, t.Task)
		if t.DueDate != nil && *t.DueDate != "" {
			fmt.Fprintf(&b, "   📅 Due: %s\n", *t.DueDate)
		}
		if t.Status == StatusCompleted && t.CompletedAt != nil {
			fmt.Fprintf(&b, "   ✅ Completed: %s\n", t.CompletedAt.Format(time.DateOnly))
		}
		b.WriteString("\n")
	}
	return strings.TrimSpace(b.String())
}

func priorityMarker(p Priority) string {
	switch p {
	case PriorityHigh:
		return "🔴"
	case PriorityLow:
		return "🟢"
	default:
		return "🟡"
	}
}
