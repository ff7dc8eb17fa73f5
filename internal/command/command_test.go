package command

import (
	"reflect"
	"testing"
)

func TestParse(t *testing.T) {
	tests := []struct {
		raw      string
		wantOK   bool
		wantName string
		wantArgs []string
	}{
		{"", false, "", nil},
		{"   \t\n ", false, "", nil},
		{"ping", true, "ping", []string{}},
		{"  PING  ", true, "ping", []string{}},
		{"Todo ADD Buy milk", true, "todo", []string{"ADD", "Buy", "milk"}},
		{"email boss \"Weekly update\" done", true, "email", []string{"boss", "\"Weekly", "update\"", "done"}},
		{"remind\t18:30   call\nmom", true, "remind", []string{"18:30", "call", "mom"}},
	}
	for _, tt := range tests {
		cmd, ok := Parse(tt.raw)
		if ok != tt.wantOK {
			t.Errorf("Parse(%q) ok = %v, want %v", tt.raw, ok, tt.wantOK)
			continue
		}
		if !ok {
			continue
		}
		if cmd.Name != tt.wantName {
			t.Errorf("Parse(%q) name = %q, want %q", tt.raw, cmd.Name, tt.wantName)
		}
		if !reflect.DeepEqual(cmd.Args, tt.wantArgs) {
			t.Errorf("Parse(%q) args = %q, want %q", tt.raw, cmd.Args, tt.wantArgs)
		}
	}
}

func TestParse_KeepsTrimmedRaw(t *testing.T) {
	cmd, _ := Parse("  todo add x  ")
	if cmd.Raw != "todo add x" {
		t.Errorf("Raw = %q", cmd.Raw)
	}
}

func TestCommand_Rest(t *testing.T) {
	cmd, _ := Parse("email a@b.c Hello   there  friend")
	if got := cmd.Rest(2); got != "there friend" {
		t.Errorf("Rest(2) = %q", got)
	}
	if got := cmd.Rest(9); got != "" {
		t.Errorf("Rest past end = %q", got)
	}
}
