package config

import (
	"bytes"
	"errors"
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// ConfigBackend persists non-secret keys. macOS uses UserDefaults, other
// platforms a sectioned YAML file.
type ConfigBackend interface {
	GetString(key string) (val string, ok bool, err error)
	GetInt(key string) (val int, ok bool, err error)
	SetString(key, val string) error
	SetInt(key string, val int) error
	Delete(key string) error
}

// Secrets are kept per collaborator: the "telegram" account holds
// bot_token, "whatsapp" its access, verify and app-secret tokens, "smtp" the
// password and "api" the admin token. Each account is one YAML document in
// the platform vault.
const secretService = "chathub"

// ErrSecretNotFound is returned when an account or field has no value.
var ErrSecretNotFound = errors.New("secret not found")

// secretRef locates a secret config key inside its account.
type secretRef struct {
	Account string
	Field   string
}

func (r secretRef) String() string { return r.Account + "." + r.Field }

// secretRefFor maps a secret key such as "whatsapp.app_secret" to its
// account and field.
func secretRefFor(key string) (secretRef, error) {
	s, ok := lookupSpec(key)
	if !ok {
		return secretRef{}, fmt.Errorf("unknown config key: %q", key)
	}
	if !s.secret {
		return secretRef{}, fmt.Errorf("%s is not a secret", key)
	}
	account, field, _ := strings.Cut(key, ".")
	return secretRef{Account: account, Field: field}, nil
}

// secretFields returns the secret fields an account may hold.
func secretFields(account string) []string {
	var fields []string
	for _, s := range specs {
		if a, f, _ := strings.Cut(s.key, "."); s.secret && a == account {
			fields = append(fields, f)
		}
	}
	return fields
}

// validateAccount rejects accounts chathub does not use and fields an
// account does not have, so a misspelt "bot_tokn" is reported instead of
// silently leaving the token unset.
func validateAccount(account string, doc map[string]string) error {
	known := secretFields(account)
	if len(known) == 0 {
		return fmt.Errorf("unknown secret account %q", account)
	}
	var unknown []string
	for field := range doc {
		if !contains(known, field) {
			unknown = append(unknown, field)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return fmt.Errorf("secret account %q has unknown fields %s (valid: %s)",
			account, strings.Join(unknown, ", "), strings.Join(known, ", "))
	}
	return nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// secretStore reads and writes single secret fields.
type secretStore interface {
	Get(ref secretRef) (string, error)
	Set(ref secretRef, value string) error
}

// vault stores one raw document per account. read returns an error wrapping
// ErrSecretNotFound when the account has never been written.
type vault interface {
	read(account string) ([]byte, error)
	write(account string, doc []byte) error
}

// accountSecrets is the secretStore over a platform vault.
type accountSecrets struct {
	v vault
}

func (s accountSecrets) load(account string) (map[string]string, error) {
	raw, err := s.v.read(account)
	if err != nil {
		return nil, err
	}
	doc := map[string]string{}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parsing secret account %q: %w", account, err)
	}
	if err := validateAccount(account, doc); err != nil {
		return nil, err
	}
	return doc, nil
}

func (s accountSecrets) Get(ref secretRef) (string, error) {
	doc, err := s.load(ref.Account)
	if err != nil {
		return "", err
	}
	v := strings.TrimSpace(doc[ref.Field])
	if v == "" {
		return "", fmt.Errorf("%w: %s", ErrSecretNotFound, ref)
	}
	return v, nil
}

func (s accountSecrets) Set(ref secretRef, value string) error {
	if err := validateAccount(ref.Account, map[string]string{ref.Field: value}); err != nil {
		return err
	}
	doc, err := s.load(ref.Account)
	if errors.Is(err, ErrSecretNotFound) {
		doc = map[string]string{}
	} else if err != nil {
		return err
	}
	doc[ref.Field] = value

	// One line, so the Keychain returns it as text rather than hex.
	var n yaml.Node
	if err := n.Encode(doc); err != nil {
		return fmt.Errorf("encoding secret account %q: %w", ref.Account, err)
	}
	n.Style = yaml.FlowStyle
	out, err := yaml.Marshal(&n)
	if err != nil {
		return fmt.Errorf("encoding secret account %q: %w", ref.Account, err)
	}
	return s.v.write(ref.Account, bytes.TrimSpace(out))
}
