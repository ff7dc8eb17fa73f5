//go:build !darwin

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestFileBackendRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chathub", "config.yaml")

	b := newFileBackend(path)
	if err := b.SetString("smtp.server", "mail.example.com"); err != nil {
		t.Fatalf("SetString: %v", err)
	}
	if err := b.SetInt("server.port", 9002); err != nil {
		t.Fatalf("SetInt: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "server:\n    port: 9002") {
		t.Errorf("config file is not sectioned:\n%s", data)
	}

	reloaded := newFileBackend(path)
	if v, ok, _ := reloaded.GetString("smtp.server"); !ok || v != "mail.example.com" {
		t.Errorf("smtp.server = %q, %v", v, ok)
	}
	if v, ok, err := reloaded.GetInt("server.port"); err != nil || !ok || v != 9002 {
		t.Errorf("server.port = %d, %v, %v", v, ok, err)
	}

	if err := reloaded.Delete("smtp.server"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, ok, _ := newFileBackend(path).GetString("smtp.server"); ok {
		t.Error("smtp.server still present after Delete")
	}
}

func TestFileBackendDropsUnknownAndSecretKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	doc := "telegram:\n  bot_token: leaked\n  webhook_url: https://hook.example\nserver:\n  colour: blue\noutbox:\n  enabled: false\n"
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatal(err)
	}

	b := newFileBackend(path)
	if _, ok, _ := b.GetString("telegram.bot_token"); ok {
		t.Error("secret read from the config file")
	}
	if _, ok, _ := b.GetString("server.colour"); ok {
		t.Error("unknown key kept")
	}
	if v, ok, _ := b.GetString("telegram.webhook_url"); !ok || v != "https://hook.example" {
		t.Errorf("webhook_url = %q, %v", v, ok)
	}
	if v, ok, _ := b.GetString("outbox.enabled"); !ok || v != "false" {
		t.Errorf("outbox.enabled = %q, %v", v, ok)
	}
}

func TestFileBackendRejectsFractionalInt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("server:\n  port: 80.5\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, _, err := newFileBackend(path).GetInt("server.port"); err == nil {
		t.Error("expected error for fractional port")
	}
}

func TestDirVault(t *testing.T) {
	dir := t.TempDir()
	s := accountSecrets{v: dirVault{dir: dir}}

	if err := s.Set(secretRef{"telegram", "bot_token"}, "123:abc"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	p := filepath.Join(dir, "telegram.yaml")
	info, err := os.Stat(p)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("mode = %v, want 0600", info.Mode().Perm())
	}
	if got, err := s.Get(secretRef{"telegram", "bot_token"}); err != nil || got != "123:abc" {
		t.Errorf("bot_token = %q, %v", got, err)
	}

	if err := os.Chmod(p, 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Get(secretRef{"telegram", "bot_token"}); err == nil || !strings.Contains(err.Error(), "other users") {
		t.Errorf("world-readable secret err = %v", err)
	}
}

func TestPlatformSecretsUseDataDir(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", t.TempDir())

	cfg := defaults()
	tok, err := EnsureAPIToken(&cfg)
	if err != nil {
		t.Fatalf("EnsureAPIToken: %v", err)
	}
	got, err := newPlatformSecrets().Get(secretRef{"api", "token"})
	if err != nil || got != tok {
		t.Errorf("api token = %q, %v", got, err)
	}
	if _, err := os.Stat(filepath.Join(os.Getenv("XDG_DATA_HOME"), "chathub", "secrets", "api.yaml")); err != nil {
		t.Errorf("api.yaml not written: %v", err)
	}
}
