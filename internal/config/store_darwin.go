//go:build darwin

package config

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
)

const defaultsDomain = "com.chathub.app"

func defaultDataDir() string {
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, "Library", "Application Support", "chathub")
	}
	return "chathub-data"
}

func secretHint(ref secretRef) string {
	return fmt.Sprintf(" or field %s of macOS Keychain item (service: %s, account: %s)", ref.Field, secretService, ref.Account)
}

// missingExit is the exit status of `defaults read` and
// `security find-generic-password` when nothing is stored.
func missingExit(err error) bool {
	var exitErr *exec.ExitError
	return errors.As(err, &exitErr) && (exitErr.ExitCode() == 1 || exitErr.ExitCode() == 44)
}

// defaultsBackend stores keys in UserDefaults under their dotted names.
type defaultsBackend struct {
	domain string
}

func newPlatformBackend() ConfigBackend {
	return defaultsBackend{domain: defaultsDomain}
}

func (b defaultsBackend) run(args ...string) (string, error) {
	out, err := exec.Command("defaults", args...).CombinedOutput()
	return strings.TrimSpace(string(out)), err
}

func (b defaultsBackend) GetString(key string) (string, bool, error) {
	s, err := b.run("read", b.domain, key)
	if missingExit(err) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("reading default %s: %w (%s)", key, err, s)
	}
	return s, true, nil
}

func (b defaultsBackend) GetInt(key string) (int, bool, error) {
	s, ok, err := b.GetString(key)
	if !ok || err != nil {
		return 0, ok, err
	}
	i, err := strconv.Atoi(s)
	if err != nil {
		return 0, true, fmt.Errorf("invalid integer for %s: %w", key, err)
	}
	return i, true, nil
}

func (b defaultsBackend) SetString(key, val string) error {
	_, err := b.run("write", b.domain, key, "-string", val)
	return err
}

func (b defaultsBackend) SetInt(key string, val int) error {
	_, err := b.run("write", b.domain, key, "-int", strconv.Itoa(val))
	return err
}

func (b defaultsBackend) Delete(key string) error {
	_, err := b.run("delete", b.domain, key)
	return err
}

func newPlatformSecrets() secretStore {
	return accountSecrets{v: keychainVault{}}
}

// keychainVault keeps each secret account as one generic password item.
type keychainVault struct{}

func (keychainVault) read(account string) ([]byte, error) {
	out, err := exec.Command("security", "find-generic-password", "-s", secretService, "-a", account, "-w").Output()
	if missingExit(err) {
		return nil, fmt.Errorf("%w: no %s account", ErrSecretNotFound, account)
	}
	return out, err
}

func (keychainVault) write(account string, doc []byte) error {
	return exec.Command("security", "add-generic-password", "-U",
		"-s", secretService, "-a", account, "-w", string(doc)).Run()
}
