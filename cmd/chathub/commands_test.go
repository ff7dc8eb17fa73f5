package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"

	"github.com/kalambet/chathub/internal/api"
	"github.com/kalambet/chathub/internal/config"
	"github.com/kalambet/chathub/internal/reminder"
	"github.com/kalambet/chathub/internal/storage"
)

func TestMain(m *testing.M) {
	noColor = true
	os.Exit(m.Run())
}

type recordedRequest struct {
	Method string
	Path   string
	Body   string
	Auth   string
}

type testServer struct {
	server   *httptest.Server
	requests []recordedRequest
}

func newTestServer(t *testing.T, responses map[string]string) *testServer {
	t.Helper()
	ts := &testServer{}

	ts.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body bytes.Buffer
		body.ReadFrom(r.Body)

		ts.requests = append(ts.requests, recordedRequest{
			Method: r.Method,
			Path:   r.URL.RequestURI(),
			Body:   body.String(),
			Auth:   r.Header.Get("Authorization"),
		})

		key := r.Method + " " + r.URL.Path
		if resp, ok := responses[key]; ok {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(resp))
			return
		}

		w.WriteHeader(404)
		w.Write([]byte(`{"error":{"message":"not found","type":"not_found"}}`))
	}))

	t.Cleanup(ts.server.Close)
	return ts
}

func (ts *testServer) client() *apiClient {
	return &apiClient{
		baseURL:    ts.server.URL,
		token:      "test-token",
		httpClient: ts.server.Client(),
	}
}

func testCommand() (*cobra.Command, *bytes.Buffer) {
	var out bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetOut(&out)
	cmd.SetContext(context.Background())
	return cmd, &out
}

func TestSend_PrintsReply(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /api/dispatch": `{"reply":"pong 🏓"}`,
	})
	cmd, out := testCommand()

	if err := runSend(cmd, ts.client(), "42", "ping"); err != nil {
		t.Fatalf("runSend: %v", err)
	}
	if strings.TrimSpace(out.String()) != "pong 🏓" {
		t.Errorf("output = %q", out.String())
	}
	if len(ts.requests) != 1 {
		t.Fatalf("expected 1 request, got %d", len(ts.requests))
	}
	r := ts.requests[0]
	if r.Auth != "Bearer test-token" {
		t.Errorf("Authorization = %q", r.Auth)
	}
	if !strings.Contains(r.Body, `"sender":"42"`) || !strings.Contains(r.Body, `"text":"ping"`) {
		t.Errorf("body = %s", r.Body)
	}
}

func TestTodoList_FormatsAndFilters(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"GET /api/todos": `[{"id":3,"task":"water plants","priority":"high","status":"pending","created_at":"2026-01-02T10:00:00Z"}]`,
	})
	cmd, out := testCommand()

	if err := runTodoList(cmd, ts.client(), "pending"); err != nil {
		t.Fatalf("runTodoList: %v", err)
	}
	if ts.requests[0].Path != "/api/todos?status=pending" {
		t.Errorf("path = %s", ts.requests[0].Path)
	}
	if !strings.Contains(out.String(), "3. water plants") {
		t.Errorf("output = %q", out.String())
	}
}

func TestDecodeJSON_UsesErrorEnvelope(t *testing.T) {
	ts := newTestServer(t, nil)
	cmd, _ := testCommand()

	err := runTodoList(cmd, ts.client(), "")
	if err == nil || !strings.Contains(err.Error(), "404: not found") {
		t.Fatalf("err = %v", err)
	}
}

func TestRenderReminders(t *testing.T) {
	now := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	next := now.Add(2 * time.Hour)
	var buf bytes.Buffer

	renderReminders(&buf, []api.ReminderView{
		{Reminder: reminder.Reminder{ID: 1, Time: "10:00", Message: "stand-up", Repeat: reminder.RepeatDaily}, NextFire: &next},
		{Reminder: reminder.Reminder{ID: 2, Time: "08:30", Message: "gym", Repeat: reminder.RepeatWeekly, Days: []string{"monday", "friday"}}},
	}, now)

	got := buf.String()
	for _, want := range []string{"stand-up", "2 hours from now", "monday,friday 08:30", "gym"} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q:\n%s", want, got)
		}
	}

	buf.Reset()
	renderReminders(&buf, nil, now)
	if !strings.Contains(buf.String(), "No active reminders") {
		t.Errorf("empty output = %q", buf.String())
	}
}

func TestRenderMessagesAndDeliveries(t *testing.T) {
	now := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	var buf bytes.Buffer

	renderMessages(&buf, []storage.Message{
		{CreatedAt: now.Add(-3 * time.Minute), ChatID: "42", Username: "alice", Text: "todo list", Reply: "📝 Your todos:\n\n..."},
	}, now)
	got := buf.String()
	for _, want := range []string{"3 minutes ago", "alice", "todo list", "📝 Your todos: …"} {
		if !strings.Contains(got, want) {
			t.Errorf("messages output missing %q:\n%s", want, got)
		}
	}

	buf.Reset()
	renderDeliveries(&buf, []storage.Delivery{
		{CreatedAt: now.Add(-time.Hour), Kind: storage.DeliveryReminder, Destination: "42", Body: "⏰ Reminder: gym", OK: false, Detail: "HTTP 500"},
	}, now)
	got = buf.String()
	for _, want := range []string{"✗", "reminder", "1 hour ago", "HTTP 500"} {
		if !strings.Contains(got, want) {
			t.Errorf("deliveries output missing %q:\n%s", want, got)
		}
	}
}

func TestLocalURL(t *testing.T) {
	for host, want := range map[string]string{
		"0.0.0.0":   "http://127.0.0.1:8000",
		"":          "http://127.0.0.1:8000",
		"localhost": "http://localhost:8000",
	} {
		cfg := config.Config{Server: config.ServerConfig{Host: host, Port: 8000}}
		if got := localURL(cfg); got != want {
			t.Errorf("localURL(%q) = %q, want %q", host, got, want)
		}
	}
}

func TestPIDFileRoundTrip(t *testing.T) {
	path := pidFilePath(filepath.Join(t.TempDir(), "data"))
	if err := writePIDFile(path); err != nil {
		t.Fatalf("writePIDFile: %v", err)
	}
	pid, err := readPIDFile(path)
	if err != nil || pid != os.Getpid() {
		t.Fatalf("readPIDFile = %d, %v", pid, err)
	}
	removePIDFile(path)
	if _, err := readPIDFile(path); err == nil {
		t.Error("PID file still readable after remove")
	}
}

func testConfig(t *testing.T) config.Config {
	t.Helper()
	return config.Config{
		Server:    config.ServerConfig{Host: "127.0.0.1", Port: 0},
		Storage:   config.StorageConfig{DataDir: t.TempDir(), Format: "yaml"},
		Messenger: config.MessengerConfig{Platform: "log"},
		Scheduler: config.SchedulerConfig{PollInterval: "10ms", Timezone: "UTC"},
		Outbox:    config.OutboxConfig{Enabled: true},
		API:       config.APIConfig{Token: "secret"},
	}
}

func TestNewApp_WiresComponents(t *testing.T) {
	cfg := testConfig(t)
	a, err := newApp(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("newApp: %v", err)
	}
	t.Cleanup(func() { a.Close() })

	if a.bot != nil {
		t.Error("log platform should have no Telegram bot")
	}
	if a.worker == nil {
		t.Error("outbox enabled but no worker")
	}

	req := httptest.NewRequest(http.MethodPost, "/api/dispatch", strings.NewReader(`{"sender":"42","text":"todo add ship release"}`))
	req.Header.Set("Authorization", "Bearer secret")
	rr := httptest.NewRecorder()
	a.handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), "Added task") {
		t.Fatalf("dispatch = %d %s", rr.Code, rr.Body.String())
	}
	if _, err := os.Stat(filepath.Join(cfg.Storage.DataDir, "todos.yaml")); err != nil {
		t.Errorf("todo file not written as yaml: %v", err)
	}
}

func TestNewApp_RecordsReminderDeliveries(t *testing.T) {
	cfg := testConfig(t)
	a, err := newApp(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("newApp: %v", err)
	}
	t.Cleanup(func() { a.Close() })

	a.recordDelivery(reminder.Delivery{ReminderID: 5, Destination: "42", Body: "⏰ Reminder: tea", At: time.Now()})

	ds, err := a.history.RecentDeliveries(storage.DeliveryReminder, 10)
	if err != nil || len(ds) != 1 || ds[0].Ref != "5" {
		t.Fatalf("deliveries = %+v, %v", ds, err)
	}
}

func TestNewApp_RejectsBadAliases(t *testing.T) {
	cfg := testConfig(t)
	cfg.Email.Aliases = "no-equals-sign"
	if _, err := newApp(cfg, slog.Default()); err == nil {
		t.Fatal("expected error for malformed aliases")
	}
}

func TestServe_StopsOnCancel(t *testing.T) {
	cfg := testConfig(t)
	a, err := newApp(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("newApp: %v", err)
	}
	t.Cleanup(func() { a.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- serve(ctx, a, false) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("serve returned %v", err)
		}
	case <-time.After(shutdownTimeout + time.Second):
		t.Fatal("serve did not return after cancel")
	}
}
