package api

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/kalambet/chathub/internal/command"
	"github.com/kalambet/chathub/internal/messenger"
	"github.com/kalambet/chathub/internal/reminder"
	"github.com/kalambet/chathub/internal/storage"
	"github.com/kalambet/chathub/internal/todo"
)

const testToken = "test-token-12345"

type sentMessage struct {
	to, body string
}

type fakeSender struct {
	mu   sync.Mutex
	sent []sentMessage
	fail bool
}

func (f *fakeSender) SendText(_ context.Context, to, body string) messenger.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentMessage{to, body})
	if f.fail {
		return messenger.Result{OK: false, Detail: "boom"}
	}
	return messenger.Result{OK: true, Detail: "sent"}
}

func (f *fakeSender) messages() []sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentMessage(nil), f.sent...)
}

type fakeBot struct {
	info messenger.BotInfo
	err  error
}

func (b fakeBot) GetMe(context.Context) (messenger.BotInfo, error) { return b.info, b.err }

type fixture struct {
	deps    Deps
	history *storage.Store
	sender  *fakeSender
	todos   *todo.Store
	sched   *reminder.Scheduler
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()

	todos, err := todo.Open(filepath.Join(dir, "todos.json"), todo.WithLogger(quietLogger()))
	if err != nil {
		t.Fatalf("todo.Open: %v", err)
	}
	rems, err := reminder.Open(filepath.Join(dir, "reminders.json"), reminder.WithLogger(quietLogger()))
	if err != nil {
		t.Fatalf("reminder.Open: %v", err)
	}
	history, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("storage.Open: %v", err)
	}
	t.Cleanup(func() { history.Close() })

	sender := &fakeSender{}
	sched := reminder.NewScheduler(rems, sender, reminder.WithSchedulerLogger(quietLogger()))

	router := command.NewRouter(quietLogger())
	command.RegisterBuiltins(router, command.Deps{Todos: todos, Reminders: sched})

	return &fixture{
		deps: Deps{
			Platform:  "telegram",
			Router:    router,
			Sender:    sender,
			History:   history,
			Todos:     todos,
			Reminders: sched,
			Token:     testToken,
			Logger:    quietLogger(),
		},
		history: history,
		sender:  sender,
		todos:   todos,
		sched:   sched,
	}
}

func (f *fixture) do(t *testing.T, method, url, body, token string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, url, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	NewHandler(f.deps).ServeHTTP(rr, req)
	return rr
}

func TestHealth(t *testing.T) {
	f := newFixture(t)
	rr := f.do(t, http.MethodGet, "/health", "", "")
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), `"ok"`) {
		t.Fatalf("GET /health = %d %s", rr.Code, rr.Body.String())
	}
}

func TestRoot(t *testing.T) {
	f := newFixture(t)
	rr := f.do(t, http.MethodGet, "/", "", "")
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), "Chat Hub is running") {
		t.Fatalf("GET / = %d %s", rr.Code, rr.Body.String())
	}
}

func TestStatus(t *testing.T) {
	f := newFixture(t)
	rr := f.do(t, http.MethodGet, "/status", "", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	body := rr.Body.String()
	for _, want := range []string{`"running"`, `"remind"`, `"todo"`, `"history":true`, `"outbox":false`, `"email":false`} {
		if !strings.Contains(body, want) {
			t.Errorf("GET /status body missing %s: %s", want, body)
		}
	}
}

func TestBearerAuth(t *testing.T) {
	f := newFixture(t)

	if rr := f.do(t, http.MethodGet, "/api/todos", "", ""); rr.Code != http.StatusUnauthorized {
		t.Errorf("no token: status = %d, want 401", rr.Code)
	}
	if rr := f.do(t, http.MethodGet, "/api/todos", "", "wrong"); rr.Code != http.StatusUnauthorized {
		t.Errorf("wrong token: status = %d, want 401", rr.Code)
	}
	if rr := f.do(t, http.MethodGet, "/api/todos", "", testToken); rr.Code != http.StatusOK {
		t.Errorf("valid token: status = %d, want 200", rr.Code)
	}

	f.deps.Token = ""
	if rr := f.do(t, http.MethodGet, "/api/todos", "", ""); rr.Code != http.StatusForbidden {
		t.Errorf("no configured token: status = %d, want 403", rr.Code)
	}
}

func TestErrorEnvelope(t *testing.T) {
	f := newFixture(t)
	rr := f.do(t, http.MethodGet, "/api/todos", "", "")
	body := rr.Body.String()
	if !strings.Contains(body, `"error"`) || !strings.Contains(body, `"authentication_error"`) {
		t.Fatalf("unexpected error body: %s", body)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
}

var errBotDown = errors.New("bot down")
