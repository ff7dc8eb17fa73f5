package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Message is one inbound chat message and the reply it produced.
type Message struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	Platform  string    `json:"platform"`
	ChatID    string    `json:"chat_id"`
	UserID    string    `json:"user_id"`
	Username  string    `json:"username"`
	Type      string    `json:"type"`
	Text      string    `json:"text"`
	Command   string    `json:"command"`
	Reply     string    `json:"reply"`
}

// Delivery kinds.
const (
	DeliveryReminder = "reminder"
	DeliveryReply    = "reply"
)

// Delivery records one outbound send attempt.
type Delivery struct {
	ID          string    `json:"id"`
	CreatedAt   time.Time `json:"created_at"`
	Kind        string    `json:"kind"`
	Ref         string    `json:"ref"`
	Destination string    `json:"destination"`
	Body        string    `json:"body"`
	OK          bool      `json:"ok"`
	Detail      string    `json:"detail"`
}

type Job struct {
	ID          string
	Type        string
	PayloadJSON string
	Status      string // "pending", "running", "completed", "failed"
	Attempts    int
	MaxAttempts int
	RunAfter    time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
	LastError   string
}
