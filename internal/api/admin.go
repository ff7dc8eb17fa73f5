package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/chathub/internal/reminder"
	"github.com/kalambet/chathub/internal/storage"
	"github.com/kalambet/chathub/internal/todo"
)

func mountAdmin(r chi.Router, deps Deps) {
	r.Post("/dispatch", handleDispatch(deps))

	if deps.Todos != nil {
		r.Get("/todos", handleListTodos(deps))
		r.Post("/todos", handleAddTodo(deps))
		r.Patch("/todos/{id}", handleUpdateTodo(deps))
		r.Post("/todos/{id}/complete", handleCompleteTodo(deps))
		r.Delete("/todos/{id}", handleDeleteTodo(deps))
	}
	if deps.Reminders != nil {
		r.Get("/reminders", handleListReminders(deps))
		r.Post("/reminders", handleAddReminder(deps))
		r.Delete("/reminders/{id}", handleDeleteReminder(deps))
	}
	if deps.Jobs != nil {
		r.Get("/outbox", handleOutboxCounts(deps))
		r.Get("/outbox/{id}", handleGetOutboxJob(deps))
	}
	if deps.History != nil {
		r.Get("/messages", handleListMessages(deps))
		r.Get("/deliveries", handleListDeliveries(deps))
	}
}

// DispatchRequest runs a command as sender without sending the reply.
type DispatchRequest struct {
	Sender string `json:"sender"`
	Text   string `json:"text"`
}

func handleDispatch(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req DispatchRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if req.Sender == "" {
			req.Sender = "admin"
		}
		reply := deps.Router.Dispatch(r.Context(), req.Sender, req.Text)
		writeJSON(w, http.StatusOK, map[string]string{"reply": reply})
	}
}

func idParam(w http.ResponseWriter, r *http.Request) (int, bool) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "id must be an integer")
		return 0, false
	}
	return id, true
}

// --- todos ---

func handleListTodos(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := todo.Status(r.URL.Query().Get("status"))
		switch status {
		case "", todo.StatusPending, todo.StatusCompleted:
		default:
			httpError(w, http.StatusBadRequest, "invalid_request_error", "status must be pending or completed")
			return
		}
		writeJSON(w, http.StatusOK, deps.Todos.List(status))
	}
}

// TodoRequest is the body of POST /api/todos.
type TodoRequest struct {
	Task     string `json:"task"`
	Priority string `json:"priority"`
	DueDate  string `json:"due_date"`
}

func handleAddTodo(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req TodoRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if req.Task == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "task is required")
			return
		}
		p, err := todo.ParsePriority(req.Priority)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		}
		t, err := deps.Todos.Add(req.Task, p, req.DueDate)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to add todo: %v", err)
			return
		}
		writeJSON(w, http.StatusCreated, t)
	}
}

// TodoPatchRequest is the body of PATCH /api/todos/{id}. Absent fields are
// left unchanged; an empty due_date clears it.
type TodoPatchRequest struct {
	Task     *string `json:"task"`
	Priority *string `json:"priority"`
	DueDate  *string `json:"due_date"`
	Status   *string `json:"status"`
}

func handleUpdateTodo(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := idParam(w, r)
		if !ok {
			return
		}
		var req TodoPatchRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if req.Task != nil && *req.Task == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "task must not be empty")
			return
		}
		p := todo.Patch{Task: req.Task, DueDate: req.DueDate}
		if req.Priority != nil {
			pr := todo.Priority(*req.Priority)
			p.Priority = &pr
		}
		if req.Status != nil {
			st := todo.Status(*req.Status)
			p.Status = &st
		}

		t, err := deps.Todos.Update(id, p)
		switch {
		case errors.Is(err, todo.ErrNotFound):
			httpError(w, http.StatusNotFound, "not_found", "todo %d not found", id)
			return
		case errors.Is(err, todo.ErrInvalidPriority), errors.Is(err, todo.ErrInvalidStatus):
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		case err != nil:
			httpError(w, http.StatusInternalServerError, "api_error", "failed to update todo: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, t)
	}
}

func handleCompleteTodo(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := idParam(w, r)
		if !ok {
			return
		}
		t, err := deps.Todos.Complete(id)
		if errors.Is(err, todo.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "todo %d not found", id)
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to complete todo: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, t)
	}
}

func handleDeleteTodo(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := idParam(w, r)
		if !ok {
			return
		}
		found, err := deps.Todos.Delete(id)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to delete todo: %v", err)
			return
		}
		if !found {
			httpError(w, http.StatusNotFound, "not_found", "todo %d not found", id)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
	}
}

// --- outbox ---

// JobView is a queued reply as reported by GET /api/outbox/{id}.
type JobView struct {
	ID          string    `json:"id"`
	Status      string    `json:"status"`
	Attempts    int       `json:"attempts"`
	MaxAttempts int       `json:"max_attempts"`
	RunAfter    time.Time `json:"run_after"`
	UpdatedAt   time.Time `json:"updated_at"`
	LastError   string    `json:"last_error,omitempty"`
}

func handleOutboxCounts(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		counts, err := deps.Jobs.CountJobs()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to count jobs: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, counts)
	}
}

func handleGetOutboxJob(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		j, err := deps.Jobs.GetJob(id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "job %s not found", id)
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get job: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, JobView{
			ID:          j.ID,
			Status:      j.Status,
			Attempts:    j.Attempts,
			MaxAttempts: j.MaxAttempts,
			RunAfter:    j.RunAfter,
			UpdatedAt:   j.UpdatedAt,
			LastError:   j.LastError,
		})
	}
}

// --- reminders ---

// ReminderView is a reminder with its next scheduled fire time.
type ReminderView struct {
	reminder.Reminder
	NextFire *time.Time `json:"next_fire,omitempty"`
}

func viewReminder(s *reminder.Scheduler, rem reminder.Reminder) ReminderView {
	v := ReminderView{Reminder: rem}
	if t, ok := s.NextFire(rem.ID); ok {
		v.NextFire = &t
	}
	return v
}

func handleListReminders(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := reminder.Status(r.URL.Query().Get("status"))
		switch status {
		case "", reminder.StatusActive, reminder.StatusCompleted, reminder.StatusDeleted:
		default:
			httpError(w, http.StatusBadRequest, "invalid_request_error", "status must be active, completed or deleted")
			return
		}
		rems := deps.Reminders.List(status)
		out := make([]ReminderView, len(rems))
		for i, rem := range rems {
			out[i] = viewReminder(deps.Reminders, rem)
		}
		writeJSON(w, http.StatusOK, out)
	}
}

// ReminderRequest is the body of POST /api/reminders.
type ReminderRequest struct {
	Time        string   `json:"time"`
	Message     string   `json:"message"`
	Destination string   `json:"destination"`
	Repeat      string   `json:"repeat"`
	Days        []string `json:"days"`
}

func handleAddReminder(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ReminderRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if req.Message == "" || req.Destination == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "message and destination are required")
			return
		}
		repeat, err := reminder.ParseRepeat(req.Repeat)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		}
		rem, err := deps.Reminders.Add(reminder.Request{
			Time:        req.Time,
			Message:     req.Message,
			Destination: req.Destination,
			Repeat:      repeat,
			Days:        req.Days,
		})
		switch {
		case errors.Is(err, reminder.ErrInvalidTimeSpec), errors.Is(err, reminder.ErrInvalidRepeat), errors.Is(err, reminder.ErrNoDays):
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		case err != nil:
			httpError(w, http.StatusInternalServerError, "api_error", "failed to add reminder: %v", err)
			return
		}
		writeJSON(w, http.StatusCreated, viewReminder(deps.Reminders, rem))
	}
}

func handleDeleteReminder(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := idParam(w, r)
		if !ok {
			return
		}
		found, err := deps.Reminders.Delete(id)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to delete reminder: %v", err)
			return
		}
		if !found {
			httpError(w, http.StatusNotFound, "not_found", "reminder %d not found", id)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
	}
}

// --- history ---

func handleListMessages(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := parseIntParam(r, "limit", 20, 100)
		msgs, err := deps.History.RecentMessages(r.URL.Query().Get("chat_id"), limit)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list messages: %v", err)
			return
		}
		if msgs == nil {
			msgs = []storage.Message{}
		}
		writeJSON(w, http.StatusOK, msgs)
	}
}

func handleListDeliveries(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		kind := r.URL.Query().Get("kind")
		switch kind {
		case "", storage.DeliveryReminder, storage.DeliveryReply:
		default:
			httpError(w, http.StatusBadRequest, "invalid_request_error", "kind must be reminder or reply")
			return
		}
		limit := parseIntParam(r, "limit", 20, 100)
		ds, err := deps.History.RecentDeliveries(kind, limit)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list deliveries: %v", err)
			return
		}
		if ds == nil {
			ds = []storage.Delivery{}
		}
		writeJSON(w, http.StatusOK, ds)
	}
}
