package command

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sort"
	"sync"

	"github.com/google/uuid"
)

const (
	invalidReply = "Please send a valid command. Type 'help' for available commands."
	unknownReply = "Unknown command: %s. Type 'help' for available commands."
	failureReply = "Sorry, an error occurred while processing your command."
)

// Handler answers one command. Wrong argument counts are answered with a
// usage string and a nil error; an error means the command could not be
// carried out and the caller gets a generic apology.
type Handler interface {
	Handle(ctx context.Context, sender string, cmd Command) (string, error)
}

type HandlerFunc func(ctx context.Context, sender string, cmd Command) (string, error)

func (f HandlerFunc) Handle(ctx context.Context, sender string, cmd Command) (string, error) {
	return f(ctx, sender, cmd)
}

// Router maps command names to handlers.
type Router struct {
	mu       sync.RWMutex
	handlers map[string]Handler
	logger   *slog.Logger
}

func NewRouter(logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{handlers: make(map[string]Handler), logger: logger}
}

// Register binds name to h, replacing any previous handler for that name.
func (r *Router) Register(name string, h Handler) {
	r.mu.Lock()
	r.handlers[name] = h
	r.mu.Unlock()
	r.logger.Debug("registered command", "command", name)
}

// Commands returns the registered names in sorted order.
func (r *Router) Commands() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Dispatch parses raw and runs the matching handler. It always returns a
// reply: handler errors and panics are logged and turned into an apology.
func (r *Router) Dispatch(ctx context.Context, sender, raw string) (reply string) {
	cmd, ok := Parse(raw)
	if !ok {
		return invalidReply
	}

	r.mu.RLock()
	h, found := r.handlers[cmd.Name]
	r.mu.RUnlock()
	if !found {
		return fmt.Sprintf(unknownReply, cmd.Name)
	}

	requestID := uuid.NewString()
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("command handler panicked",
				"request_id", requestID,
				"sender", sender,
				"text", raw,
				"panic", p,
				"stack", string(debug.Stack()),
			)
			reply = failureReply
		}
	}()

	reply, err := h.Handle(ctx, sender, cmd)
	if err != nil {
		r.logger.Error("command failed",
			"request_id", requestID,
			"sender", sender,
			"command", cmd.Name,
			"text", raw,
			"error", err,
		)
		return failureReply
	}
	r.logger.Debug("command handled", "request_id", requestID, "sender", sender, "command", cmd.Name)
	return reply
}
