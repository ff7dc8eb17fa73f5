//go:build !darwin

package config

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

func xdgDir(env, fallback string) string {
	if dir := os.Getenv(env); dir != "" {
		return filepath.Join(dir, "chathub")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, fallback, "chathub")
	}
	return "chathub-data"
}

func defaultDataDir() string { return xdgDir("XDG_DATA_HOME", filepath.Join(".local", "share")) }

func configFilePath() string {
	return filepath.Join(xdgDir("XDG_CONFIG_HOME", ".config"), "config.yaml")
}

func secretsDir() string { return filepath.Join(defaultDataDir(), "secrets") }

func secretHint(ref secretRef) string {
	return fmt.Sprintf(" or %s in %s", ref.Field, filepath.Join(secretsDir(), ref.Account+".yaml"))
}

// fileBackend keeps config in a YAML file with one mapping per section:
//
//	server:
//	  port: 8080
//	messenger:
//	  platform: whatsapp
type fileBackend struct {
	path     string
	sections map[string]map[string]any
}

func newPlatformBackend() ConfigBackend {
	return newFileBackend(configFilePath())
}

func newFileBackend(path string) *fileBackend {
	b := &fileBackend{path: path, sections: map[string]map[string]any{}}
	b.load()
	return b
}

// load reads the file and drops entries that are unknown or secret, with a
// warning for each.
func (b *fileBackend) load() {
	data, err := os.ReadFile(b.path)
	if err != nil {
		if !os.IsNotExist(err) {
			fmt.Fprintf(os.Stderr, "[WARN] could not read config file %s: %v. Using default values.\n", b.path, err)
		}
		return
	}
	if err := yaml.Unmarshal(data, &b.sections); err != nil {
		fmt.Fprintf(os.Stderr, "[WARN] could not parse config file %s: %v. Using default values.\n", b.path, err)
		b.sections = map[string]map[string]any{}
		return
	}
	for section, fields := range b.sections {
		for field := range fields {
			key := section + "." + field
			s, ok := lookupSpec(key)
			switch {
			case !ok:
				fmt.Fprintf(os.Stderr, "[WARN] ignoring unknown config key %s in %s\n", key, b.path)
			case s.secret:
				ref, _ := secretRefFor(key)
				fmt.Fprintf(os.Stderr, "[WARN] ignoring secret %s in %s; set %s%s\n", key, b.path, s.env, secretHint(ref))
			default:
				continue
			}
			delete(fields, field)
		}
	}
}

func (b *fileBackend) save() error {
	if err := os.MkdirAll(filepath.Dir(b.path), 0o700); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}
	data, err := yaml.Marshal(b.sections)
	if err != nil {
		return err
	}
	return os.WriteFile(b.path, data, 0o600)
}

func (b *fileBackend) lookup(key string) (any, bool) {
	section, field, _ := strings.Cut(key, ".")
	v, ok := b.sections[section][field]
	return v, ok
}

func (b *fileBackend) GetString(key string) (string, bool, error) {
	v, ok := b.lookup(key)
	if !ok || v == nil {
		return "", false, nil
	}
	if s, isStr := v.(string); isStr {
		return s, true, nil
	}
	return fmt.Sprint(v), true, nil
}

func (b *fileBackend) GetInt(key string) (int, bool, error) {
	v, ok := b.lookup(key)
	if !ok || v == nil {
		return 0, false, nil
	}
	switch val := v.(type) {
	case int:
		return val, true, nil
	case float64:
		if val < math.MinInt || val > math.MaxInt || val != math.Trunc(val) {
			return 0, true, fmt.Errorf("value %v for %s is not a valid integer or is out of range", val, key)
		}
		return int(val), true, nil
	case string:
		i, err := strconv.Atoi(val)
		if err != nil {
			return 0, true, fmt.Errorf("invalid integer for %s: %w", key, err)
		}
		return i, true, nil
	default:
		return 0, true, fmt.Errorf("invalid type %T for %s", v, key)
	}
}

func (b *fileBackend) set(key string, val any) error {
	section, field, _ := strings.Cut(key, ".")
	if b.sections[section] == nil {
		b.sections[section] = map[string]any{}
	}
	b.sections[section][field] = val
	return b.save()
}

func (b *fileBackend) SetString(key, val string) error { return b.set(key, val) }
func (b *fileBackend) SetInt(key string, val int) error { return b.set(key, val) }

func (b *fileBackend) Delete(key string) error {
	section, field, _ := strings.Cut(key, ".")
	delete(b.sections[section], field)
	if len(b.sections[section]) == 0 {
		delete(b.sections, section)
	}
	return b.save()
}

func newPlatformSecrets() secretStore {
	return accountSecrets{v: dirVault{dir: secretsDir()}}
}

// dirVault keeps each secret account in <dir>/<account>.yaml, readable by
// the owner only.
type dirVault struct {
	dir string
}

func (v dirVault) path(account string) string {
	return filepath.Join(v.dir, account+".yaml")
}

func (v dirVault) read(account string) ([]byte, error) {
	p := v.path(account)
	info, err := os.Stat(p)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: no %s account", ErrSecretNotFound, account)
		}
		return nil, err
	}
	if info.Mode().Perm()&0o077 != 0 {
		return nil, fmt.Errorf("secret file %s is accessible by other users (mode %v); run chmod 600", p, info.Mode().Perm())
	}
	return os.ReadFile(p)
}

func (v dirVault) write(account string, doc []byte) error {
	if err := os.MkdirAll(v.dir, 0o700); err != nil {
		return fmt.Errorf("creating secrets dir: %w", err)
	}
	p := v.path(account)
	if err := os.WriteFile(p, doc, 0o600); err != nil {
		return err
	}
	return os.Chmod(p, 0o600)
}
