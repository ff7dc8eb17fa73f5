package config

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

// memVault is an in-memory vault.
type memVault map[string][]byte

func (v memVault) read(account string) ([]byte, error) {
	doc, ok := v[account]
	if !ok {
		return nil, fmt.Errorf("%w: no %s account", ErrSecretNotFound, account)
	}
	return doc, nil
}

func (v memVault) write(account string, doc []byte) error {
	v[account] = doc
	return nil
}

func TestSecretRefFor(t *testing.T) {
	ref, err := secretRefFor("whatsapp.app_secret")
	if err != nil || ref.Account != "whatsapp" || ref.Field != "app_secret" {
		t.Fatalf("secretRefFor = %+v, %v", ref, err)
	}
	if _, err := secretRefFor("server.port"); err == nil {
		t.Error("server.port accepted as a secret")
	}
	if _, err := secretRefFor("telegram.nope"); err == nil {
		t.Error("unknown key accepted")
	}
}

func TestSecretFields(t *testing.T) {
	got := strings.Join(secretFields("whatsapp"), ",")
	if got != "access_token,verify_token,app_secret" {
		t.Errorf("whatsapp fields = %s", got)
	}
	if len(secretFields("server")) != 0 {
		t.Error("server has no secrets")
	}
}

func TestAccountSecretsRoundTrip(t *testing.T) {
	v := memVault{}
	s := accountSecrets{v: v}

	if err := s.Set(secretRef{"whatsapp", "access_token"}, "EAAB"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := s.Set(secretRef{"whatsapp", "app_secret"}, "shh"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if doc := string(v["whatsapp"]); strings.Contains(doc, "\n") {
		t.Errorf("account document spans lines: %q", doc)
	}

	if got, err := s.Get(secretRef{"whatsapp", "access_token"}); err != nil || got != "EAAB" {
		t.Errorf("access_token = %q, %v", got, err)
	}
	if got, err := s.Get(secretRef{"whatsapp", "app_secret"}); err != nil || got != "shh" {
		t.Errorf("app_secret = %q, %v", got, err)
	}
	if _, err := s.Get(secretRef{"whatsapp", "verify_token"}); !errors.Is(err, ErrSecretNotFound) {
		t.Errorf("unset field err = %v, want ErrSecretNotFound", err)
	}
	if _, err := s.Get(secretRef{"telegram", "bot_token"}); !errors.Is(err, ErrSecretNotFound) {
		t.Errorf("missing account err = %v, want ErrSecretNotFound", err)
	}
}

func TestAccountSecretsValidation(t *testing.T) {
	v := memVault{"telegram": []byte("{bot_tokn: abc}")}
	s := accountSecrets{v: v}

	_, err := s.Get(secretRef{"telegram", "bot_token"})
	if err == nil || !strings.Contains(err.Error(), "bot_tokn") {
		t.Errorf("misspelt field err = %v", err)
	}
	if err := s.Set(secretRef{"smtp", "username"}, "me"); err == nil {
		t.Error("smtp.username is not a secret but was stored")
	}
	if err := s.Set(secretRef{"slack", "token"}, "x"); err == nil {
		t.Error("unknown account was stored")
	}

	v["smtp"] = []byte("password: [not, a, string]")
	if _, err := s.Get(secretRef{"smtp", "password"}); err == nil {
		t.Error("expected parse error")
	}
}

func TestEnsureAPITokenGeneratesAndStores(t *testing.T) {
	secrets := accountSecrets{v: memVault{}}

	cfg := defaults()
	tok, err := ensureAPITokenWith(&cfg, secrets)
	if err != nil {
		t.Fatalf("EnsureAPIToken: %v", err)
	}
	if len(tok) != 64 || cfg.API.Token != tok {
		t.Fatalf("token = %q, cfg.API.Token = %q", tok, cfg.API.Token)
	}
	stored, err := secrets.Get(secretRef{"api", "token"})
	if err != nil || stored != tok {
		t.Errorf("stored token = %q, %v", stored, err)
	}

	again, _ := ensureAPITokenWith(&cfg, secrets)
	if again != tok {
		t.Error("EnsureAPIToken regenerated an existing token")
	}
}
