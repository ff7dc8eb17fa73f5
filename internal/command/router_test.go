package command

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"reflect"
	"strings"
	"testing"
)

func newTestRouter(buf *bytes.Buffer) *Router {
	return NewRouter(slog.New(slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
}

func TestDispatch_Blank(t *testing.T) {
	r := newTestRouter(&bytes.Buffer{})
	want := "Please send a valid command. Type 'help' for available commands."
	for _, raw := range []string{"", "   ", "\n\t"} {
		if got := r.Dispatch(context.Background(), "u1", raw); got != want {
			t.Errorf("Dispatch(%q) = %q", raw, got)
		}
	}
}

func TestDispatch_Unknown(t *testing.T) {
	r := newTestRouter(&bytes.Buffer{})
	got := r.Dispatch(context.Background(), "u1", "XYZ now")
	if want := "Unknown command: xyz. Type 'help' for available commands."; got != want {
		t.Errorf("Dispatch = %q, want %q", got, want)
	}
}

func TestDispatch_PassesParsedCommand(t *testing.T) {
	r := newTestRouter(&bytes.Buffer{})
	var gotSender string
	var gotCmd Command
	r.Register("echo", HandlerFunc(func(_ context.Context, sender string, cmd Command) (string, error) {
		gotSender, gotCmd = sender, cmd
		return cmd.Rest(0), nil
	}))

	reply := r.Dispatch(context.Background(), "chat-9", "  ECHO hello   world ")
	if reply != "hello world" {
		t.Errorf("reply = %q", reply)
	}
	if gotSender != "chat-9" {
		t.Errorf("sender = %q", gotSender)
	}
	if gotCmd.Name != "echo" || !reflect.DeepEqual(gotCmd.Args, []string{"hello", "world"}) {
		t.Errorf("cmd = %+v", gotCmd)
	}
}

func TestDispatch_HandlerErrorIsApology(t *testing.T) {
	var logs bytes.Buffer
	r := newTestRouter(&logs)
	r.Register("fail", HandlerFunc(func(context.Context, string, Command) (string, error) {
		return "partial", errors.New("disk full")
	}))

	got := r.Dispatch(context.Background(), "u7", "fail now")
	if got != "Sorry, an error occurred while processing your command." {
		t.Errorf("Dispatch = %q", got)
	}
	out := logs.String()
	for _, want := range []string{"sender=u7", `text="fail now"`, `error="disk full"`, "request_id="} {
		if !strings.Contains(out, want) {
			t.Errorf("log missing %q:\n%s", want, out)
		}
	}
}

func TestDispatch_HandlerPanicIsApology(t *testing.T) {
	var logs bytes.Buffer
	r := newTestRouter(&logs)
	r.Register("boom", HandlerFunc(func(context.Context, string, Command) (string, error) {
		var m map[string]int
		m["x"] = 1
		return "", nil
	}))

	got := r.Dispatch(context.Background(), "u1", "boom")
	if got != "Sorry, an error occurred while processing your command." {
		t.Errorf("Dispatch = %q", got)
	}
	if !strings.Contains(logs.String(), "panicked") {
		t.Errorf("panic not logged:\n%s", logs.String())
	}
}

func TestRouter_Commands(t *testing.T) {
	r := newTestRouter(&bytes.Buffer{})
	RegisterBuiltins(r, Deps{})
	if got, want := r.Commands(), []string{"help", "meeting", "ping"}; !reflect.DeepEqual(got, want) {
		t.Errorf("Commands = %v, want %v", got, want)
	}
}

func TestRouter_RegisterReplaces(t *testing.T) {
	r := newTestRouter(&bytes.Buffer{})
	RegisterBuiltins(r, Deps{})
	r.Register("ping", HandlerFunc(func(context.Context, string, Command) (string, error) {
		return "custom", nil
	}))
	if got := r.Dispatch(context.Background(), "u", "ping"); got != "custom" {
		t.Errorf("Dispatch = %q", got)
	}
}
