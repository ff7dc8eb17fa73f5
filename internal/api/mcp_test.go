package api

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/kalambet/chathub/internal/todo"
)

func newTestMCPDeps(t *testing.T) (MCPDeps, *fixture) {
	t.Helper()
	f := newFixture(t)
	return MCPDeps{
		Router:    f.deps.Router,
		Todos:     f.todos,
		Reminders: f.sched,
		History:   f.history,
		Sender:    "mcp",
	}, f
}

func toolText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if len(result.Content) == 0 {
		t.Fatal("no content in result")
	}
	tc, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("expected TextContent, got %T", result.Content[0])
	}
	return tc.Text
}

func makeCallToolRequest(name string, args map[string]any) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

func makeReadResourceRequest(uri string) mcp.ReadResourceRequest {
	return mcp.ReadResourceRequest{
		Params: mcp.ReadResourceParams{
			URI: uri,
		},
	}
}

func TestMCPTool_Dispatch(t *testing.T) {
	deps, _ := newTestMCPDeps(t)

	result, err := mcpDispatch(deps)(context.Background(), makeCallToolRequest("dispatch", map[string]any{"text": "ping"}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := toolText(t, result); got != "pong 🏓" {
		t.Fatalf("reply = %q", got)
	}
}

func TestMCPTool_DispatchUsesSender(t *testing.T) {
	deps, f := newTestMCPDeps(t)

	_, err := mcpDispatch(deps)(context.Background(), makeCallToolRequest("dispatch", map[string]any{
		"text":   "remind daily 07:00 water plants",
		"sender": "chat-9",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	rems := f.sched.List("")
	if len(rems) != 1 || rems[0].Destination != "chat-9" {
		t.Fatalf("reminders = %+v", rems)
	}
}

func TestMCPTool_DispatchRequiresText(t *testing.T) {
	deps, _ := newTestMCPDeps(t)

	result, err := mcpDispatch(deps)(context.Background(), makeCallToolRequest("dispatch", map[string]any{}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected tool error")
	}
}

func TestMCPTool_TodoLifecycle(t *testing.T) {
	deps, f := newTestMCPDeps(t)
	ctx := context.Background()

	result, _ := mcpAddTodo(deps)(ctx, makeCallToolRequest("add_todo", map[string]any{"task": "file taxes", "priority": "high"}))
	if result.IsError {
		t.Fatalf("add_todo: %s", toolText(t, result))
	}

	result, _ = mcpCompleteTodo(deps)(ctx, makeCallToolRequest("complete_todo", map[string]any{"id": 1}))
	if result.IsError {
		t.Fatalf("complete_todo: %s", toolText(t, result))
	}

	result, _ = mcpListTodos(deps)(ctx, makeCallToolRequest("list_todos", map[string]any{"status": "completed"}))
	var todos []todo.Todo
	if err := json.Unmarshal([]byte(toolText(t, result)), &todos); err != nil {
		t.Fatalf("decoding: %v", err)
	}
	if len(todos) != 1 || todos[0].Priority != todo.PriorityHigh {
		t.Fatalf("todos = %+v", todos)
	}

	result, _ = mcpCompleteTodo(deps)(ctx, makeCallToolRequest("complete_todo", map[string]any{"id": 42}))
	if !result.IsError {
		t.Fatal("expected error for unknown todo")
	}
	if len(f.todos.List("")) != 1 {
		t.Fatal("unexpected todo count")
	}
}

func TestMCPTool_UpdateTodo(t *testing.T) {
	deps, f := newTestMCPDeps(t)
	f.todos.Add("draft", todo.PriorityMedium, "")

	result, err := mcpUpdateTodo(deps)(context.Background(), makeCallToolRequest("update_todo", map[string]any{
		"id":       float64(1),
		"task":     "final",
		"priority": "high",
	}))
	if err != nil || result.IsError {
		t.Fatalf("update_todo = %v, %v", result, err)
	}
	var got todo.Todo
	if err := json.Unmarshal([]byte(toolText(t, result)), &got); err != nil {
		t.Fatalf("decoding: %v", err)
	}
	if got.Task != "final" || got.Priority != todo.PriorityHigh || got.Status != todo.StatusPending {
		t.Errorf("updated = %+v", got)
	}

	result, _ = mcpUpdateTodo(deps)(context.Background(), makeCallToolRequest("update_todo", map[string]any{
		"id":     float64(1),
		"status": "archived",
	}))
	if !result.IsError || !strings.Contains(toolText(t, result), "invalid status") {
		t.Errorf("unknown status result = %q", toolText(t, result))
	}

	result, _ = mcpUpdateTodo(deps)(context.Background(), makeCallToolRequest("update_todo", map[string]any{
		"id":   float64(7),
		"task": "x",
	}))
	if !result.IsError || toolText(t, result) != "todo 7 not found" {
		t.Errorf("unknown id result = %q", toolText(t, result))
	}
}

func TestMCPTool_ReminderLifecycle(t *testing.T) {
	deps, f := newTestMCPDeps(t)
	ctx := context.Background()

	result, _ := mcpAddReminder(deps)(ctx, makeCallToolRequest("add_reminder", map[string]any{
		"time":        "18:00",
		"message":     "call mom",
		"destination": "42",
		"repeat":      "weekly",
		"days":        []any{"sunday"},
	}))
	if result.IsError {
		t.Fatalf("add_reminder: %s", toolText(t, result))
	}

	result, _ = mcpListReminders(deps)(ctx, makeCallToolRequest("list_reminders", nil))
	if !strings.Contains(toolText(t, result), "call mom") {
		t.Fatalf("list_reminders = %s", toolText(t, result))
	}

	result, _ = mcpDeleteReminder(deps)(ctx, makeCallToolRequest("delete_reminder", map[string]any{"id": 1}))
	if result.IsError {
		t.Fatalf("delete_reminder: %s", toolText(t, result))
	}
	if _, ok := f.sched.NextFire(1); ok {
		t.Error("deleted reminder still scheduled")
	}

	result, _ = mcpAddReminder(deps)(ctx, makeCallToolRequest("add_reminder", map[string]any{
		"time": "not-a-time", "message": "x", "destination": "42",
	}))
	if !result.IsError {
		t.Fatal("expected error for invalid time")
	}
}

func TestMCPResource_Todos(t *testing.T) {
	deps, f := newTestMCPDeps(t)
	if _, err := f.todos.Add("read book", todo.PriorityLow, ""); err != nil {
		t.Fatal(err)
	}

	contents, err := mcpResourceTodos(deps)(context.Background(), makeReadResourceRequest("chathub://todos"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	tc, ok := contents[0].(mcp.TextResourceContents)
	if !ok || !strings.Contains(tc.Text, "read book") {
		t.Fatalf("contents = %+v", contents)
	}
}

func TestMCPResource_RecentClipsLongText(t *testing.T) {
	deps, f := newTestMCPDeps(t)
	long := strings.Repeat("é", 250)
	f.do(t, "POST", "/webhook", telegramUpdate(long), "")

	contents, err := mcpResourceRecent(deps)(context.Background(), makeReadResourceRequest("chathub://messages/recent"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	tc := contents[0].(mcp.TextResourceContents)
	var got []struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal([]byte(tc.Text), &got); err != nil {
		t.Fatalf("decoding: %v", err)
	}
	if len(got) != 1 || !strings.HasSuffix(got[0].Text, "...") || len([]rune(got[0].Text)) != 203 {
		t.Fatalf("got = %+v", got)
	}
}

func TestNewMCPServer_Builds(t *testing.T) {
	deps, _ := newTestMCPDeps(t)
	if NewMCPServer(deps) == nil {
		t.Fatal("NewMCPServer returned nil")
	}
	if NewMCPServer(MCPDeps{Router: deps.Router}) == nil {
		t.Fatal("NewMCPServer without optional deps returned nil")
	}
}
