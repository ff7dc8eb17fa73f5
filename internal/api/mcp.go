package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/chathub/internal/reminder"
	"github.com/kalambet/chathub/internal/todo"
)

// MCPDeps holds dependencies for the MCP server. Todos, Reminders and
// History are optional; their tools and resources are omitted when nil.
type MCPDeps struct {
	Router    Dispatcher
	Todos     *todo.Store
	Reminders *reminder.Scheduler
	History   History
	Sender    string // sender id used for dispatched commands
}

// NewMCPServer creates an MCP server exposing the chat commands as tools.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	if deps.Sender == "" {
		deps.Sender = "mcp"
	}

	s := server.NewMCPServer(
		"chathub",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("chathub: run chat commands, manage todos and schedule reminders."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("dispatch",
			mcp.WithDescription("Run a chat command (e.g. 'todo list', 'remind 09:00 stand-up') and return the bot's reply."),
			mcp.WithString("text", mcp.Description("The command line to run"), mcp.Required()),
			mcp.WithString("sender", mcp.Description("Chat id to act as; reminders are delivered there")),
		),
		mcpDispatch(deps),
	)

	if deps.Todos != nil {
		s.AddTool(
			mcp.NewTool("list_todos",
				mcp.WithDescription("List todos as JSON."),
				mcp.WithString("status", mcp.Description("Filter: pending or completed")),
			),
			mcpListTodos(deps),
		)
		s.AddTool(
			mcp.NewTool("add_todo",
				mcp.WithDescription("Add a todo."),
				mcp.WithString("task", mcp.Description("Task text"), mcp.Required()),
				mcp.WithString("priority", mcp.Description("low, medium (default) or high")),
				mcp.WithString("due_date", mcp.Description("Free-form due date")),
			),
			mcpAddTodo(deps),
		)
		s.AddTool(
			mcp.NewTool("complete_todo",
				mcp.WithDescription("Mark a todo as completed."),
				mcp.WithNumber("id", mcp.Description("Todo id"), mcp.Required()),
			),
			mcpCompleteTodo(deps),
		)
		s.AddTool(
			mcp.NewTool("update_todo",
				mcp.WithDescription("Change a todo's task, priority, due date or status. Omitted fields stay as they are."),
				mcp.WithNumber("id", mcp.Description("Todo id"), mcp.Required()),
				mcp.WithString("task", mcp.Description("New task text")),
				mcp.WithString("priority", mcp.Description("low, medium or high")),
				mcp.WithString("due_date", mcp.Description("New due date; empty clears it")),
				mcp.WithString("status", mcp.Description("pending or completed")),
			),
			mcpUpdateTodo(deps),
		)
		s.AddResource(
			mcp.NewResource(
				"chathub://todos",
				"Todo List",
				mcp.WithResourceDescription("All todos as JSON"),
				mcp.WithMIMEType("application/json"),
			),
			mcpResourceTodos(deps),
		)
	}

	if deps.Reminders != nil {
		s.AddTool(
			mcp.NewTool("list_reminders",
				mcp.WithDescription("List active reminders as JSON."),
			),
			mcpListReminders(deps),
		)
		s.AddTool(
			mcp.NewTool("add_reminder",
				mcp.WithDescription("Schedule a reminder."),
				mcp.WithString("time", mcp.Description("HH:MM or an ISO date-time"), mcp.Required()),
				mcp.WithString("message", mcp.Description("Reminder text"), mcp.Required()),
				mcp.WithString("destination", mcp.Description("Chat id to deliver to"), mcp.Required()),
				mcp.WithString("repeat", mcp.Description("once (default), daily or weekly")),
				mcp.WithArray("days", mcp.Description("Weekdays for weekly reminders"), mcp.WithStringItems()),
			),
			mcpAddReminder(deps),
		)
		s.AddTool(
			mcp.NewTool("delete_reminder",
				mcp.WithDescription("Delete a reminder."),
				mcp.WithNumber("id", mcp.Description("Reminder id"), mcp.Required()),
			),
			mcpDeleteReminder(deps),
		)
	}

	if deps.History != nil {
		s.AddResource(
			mcp.NewResource(
				"chathub://messages/recent",
				"Recent Messages",
				mcp.WithResourceDescription("Last 10 inbound messages with their replies"),
				mcp.WithMIMEType("application/json"),
			),
			mcpResourceRecent(deps),
		)
	}

	return s
}

func mcpDispatch(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		text, err := req.RequireString("text")
		if err != nil {
			return mcpError("text is required"), nil
		}
		sender := req.GetString("sender", deps.Sender)
		return mcpText(deps.Router.Dispatch(ctx, sender, text)), nil
	}
}

func mcpListTodos(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		status := todo.Status(req.GetString("status", ""))
		switch status {
		case "", todo.StatusPending, todo.StatusCompleted:
		default:
			return mcpError("status must be pending or completed"), nil
		}
		return mcpJSON(deps.Todos.List(status))
	}
}

func mcpAddTodo(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		task, err := req.RequireString("task")
		if err != nil {
			return mcpError("task is required"), nil
		}
		p, err := todo.ParsePriority(req.GetString("priority", ""))
		if err != nil {
			return mcpError(err.Error()), nil
		}
		t, err := deps.Todos.Add(task, p, req.GetString("due_date", ""))
		if err != nil {
			return mcpError(fmt.Sprintf("failed to add todo: %v", err)), nil
		}
		return mcpText(fmt.Sprintf("Added todo %d: %s", t.ID, t.Task)), nil
	}
}

func mcpCompleteTodo(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireInt("id")
		if err != nil {
			return mcpError("id is required"), nil
		}
		t, err := deps.Todos.Complete(id)
		if errors.Is(err, todo.ErrNotFound) {
			return mcpError(fmt.Sprintf("todo %d not found", id)), nil
		}
		if err != nil {
			return mcpError(fmt.Sprintf("failed to complete todo: %v", err)), nil
		}
		return mcpText(fmt.Sprintf("Completed todo %d: %s", t.ID, t.Task)), nil
	}
}

func mcpUpdateTodo(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireInt("id")
		if err != nil {
			return mcpError("id is required"), nil
		}
		args := req.GetArguments()
		var p todo.Patch
		if v, ok := args["task"].(string); ok {
			if v == "" {
				return mcpError("task must not be empty"), nil
			}
			p.Task = &v
		}
		if v, ok := args["priority"].(string); ok {
			pr := todo.Priority(v)
			p.Priority = &pr
		}
		if v, ok := args["due_date"].(string); ok {
			p.DueDate = &v
		}
		if v, ok := args["status"].(string); ok {
			st := todo.Status(v)
			p.Status = &st
		}

		t, err := deps.Todos.Update(id, p)
		switch {
		case errors.Is(err, todo.ErrNotFound):
			return mcpError(fmt.Sprintf("todo %d not found", id)), nil
		case errors.Is(err, todo.ErrInvalidPriority), errors.Is(err, todo.ErrInvalidStatus):
			return mcpError(err.Error()), nil
		case err != nil:
			return mcpError(fmt.Sprintf("failed to update todo: %v", err)), nil
		}
		return mcpJSON(t)
	}
}

func mcpListReminders(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		rems := deps.Reminders.List(reminder.StatusActive)
		out := make([]ReminderView, len(rems))
		for i, rem := range rems {
			out[i] = viewReminder(deps.Reminders, rem)
		}
		return mcpJSON(out)
	}
}

func mcpAddReminder(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		at, err := req.RequireString("time")
		if err != nil {
			return mcpError("time is required"), nil
		}
		msg, err := req.RequireString("message")
		if err != nil {
			return mcpError("message is required"), nil
		}
		dest, err := req.RequireString("destination")
		if err != nil {
			return mcpError("destination is required"), nil
		}
		repeat, err := reminder.ParseRepeat(req.GetString("repeat", ""))
		if err != nil {
			return mcpError(err.Error()), nil
		}

		rem, err := deps.Reminders.Add(reminder.Request{
			Time:        at,
			Message:     msg,
			Destination: dest,
			Repeat:      repeat,
			Days:        req.GetStringSlice("days", nil),
		})
		if err != nil {
			return mcpError(fmt.Sprintf("failed to add reminder: %v", err)), nil
		}
		return mcpText(fmt.Sprintf("Scheduled reminder %d (%s at %s)", rem.ID, rem.Repeat, rem.Time)), nil
	}
}

func mcpDeleteReminder(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireInt("id")
		if err != nil {
			return mcpError("id is required"), nil
		}
		found, err := deps.Reminders.Delete(id)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to delete reminder: %v", err)), nil
		}
		if !found {
			return mcpError(fmt.Sprintf("reminder %d not found", id)), nil
		}
		return mcpText(fmt.Sprintf("Deleted reminder %d", id)), nil
	}
}

func mcpResourceTodos(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		b, err := json.Marshal(deps.Todos.List(""))
		if err != nil {
			return nil, fmt.Errorf("failed to marshal todos: %w", err)
		}
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpResourceRecent(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		msgs, err := deps.History.RecentMessages("", 10)
		if err != nil {
			return nil, fmt.Errorf("failed to get recent messages: %w", err)
		}

		type messageSummary struct {
			ID        string `json:"id"`
			CreatedAt string `json:"created_at"`
			ChatID    string `json:"chat_id"`
			Text      string `json:"text"`
			Reply     string `json:"reply"`
		}

		summaries := make([]messageSummary, len(msgs))
		for i, m := range msgs {
			summaries[i] = messageSummary{
				ID:        m.ID,
				CreatedAt: m.CreatedAt.Format(time.RFC3339),
				ChatID:    m.ChatID,
				Text:      clip(m.Text, 200),
				Reply:     clip(m.Reply, 200),
			}
		}

		b, err := json.Marshal(summaries)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal messages: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func clip(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "..."
}

func mcpJSON(v any) (*mcp.CallToolResult, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return mcpError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcpText(string(b)), nil
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
