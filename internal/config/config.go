package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/kalambet/chathub/internal/filestore"
)

type Config struct {
	Server    ServerConfig
	Storage   StorageConfig
	Messenger MessengerConfig
	Telegram  TelegramConfig
	WhatsApp  WhatsAppConfig
	SMTP      SMTPConfig
	Email     EmailConfig
	Scheduler SchedulerConfig
	Outbox    OutboxConfig
	Log       LogConfig
	API       APIConfig
}

type ServerConfig struct {
	Host string
	Port int
}

// Addr is the listen address of the HTTP server.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

type StorageConfig struct {
	DataDir string
	Format  string // "json" or "yaml"
}

// TodosPath is the todo list file inside DataDir.
func (s StorageConfig) TodosPath() string {
	return filepath.Join(s.DataDir, "todos"+filestore.ParseFormat(s.Format).Ext())
}

// RemindersPath is the reminder file inside DataDir.
func (s StorageConfig) RemindersPath() string {
	return filepath.Join(s.DataDir, "reminders"+filestore.ParseFormat(s.Format).Ext())
}

type MessengerConfig struct {
	Platform string // "telegram", "whatsapp" or "log"
}

type TelegramConfig struct {
	BotToken   string
	WebhookURL string
}

type WhatsAppConfig struct {
	PhoneNumberID string
	AccessToken   string
	VerifyToken   string
	AppSecret     string
}

type SMTPConfig struct {
	Server   string
	Port     int
	Username string
	Password string
	FromName string
}

type EmailConfig struct {
	Aliases string // "name=addr,name=addr"
}

type SchedulerConfig struct {
	PollInterval string
	Timezone     string
}

// Interval parses PollInterval.
func (s SchedulerConfig) Interval() (time.Duration, error) {
	d, err := time.ParseDuration(s.PollInterval)
	if err != nil {
		return 0, fmt.Errorf("scheduler.poll_interval: %w", err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("scheduler.poll_interval must be positive, got %s", s.PollInterval)
	}
	return d, nil
}

// Location loads Timezone. "Local" and "" mean the system zone.
func (s SchedulerConfig) Location() (*time.Location, error) {
	if s.Timezone == "" || strings.EqualFold(s.Timezone, "local") {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return nil, fmt.Errorf("scheduler.timezone: %w", err)
	}
	return loc, nil
}

type OutboxConfig struct {
	Enabled bool
}

type LogConfig struct {
	Level string
}

// SlogLevel maps Level to a slog level; unknown values mean info.
func (l LogConfig) SlogLevel() slog.Level {
	switch strings.ToLower(l.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

type APIConfig struct {
	Token string
}

func defaults() Config {
	return Config{
		Server:    ServerConfig{Host: "0.0.0.0", Port: 8000},
		Storage:   StorageConfig{DataDir: defaultDataDir(), Format: "json"},
		Messenger: MessengerConfig{Platform: "telegram"},
		SMTP:      SMTPConfig{Server: "smtp.gmail.com", Port: 587, FromName: "Chat Hub"},
		Scheduler: SchedulerConfig{PollInterval: "1s", Timezone: "Local"},
		Outbox:    OutboxConfig{Enabled: true},
		Log:       LogConfig{Level: "info"},
	}
}

// Load reads configuration from the platform-native backend, a .env file in
// the working directory, environment variables and the platform secret
// store, in increasing order of precedence for everything but secrets.
//
// On macOS the backend is UserDefaults (domain: com.chathub.app) and secret
// accounts are Keychain items. Elsewhere the backend is
// $XDG_CONFIG_HOME/chathub/config.yaml and each secret account is a file in
// $XDG_DATA_HOME/chathub/secrets.
//
// Variables already set in the environment win over the .env file.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("could not read .env file", "error", err)
	}
	return loadWith(newPlatformBackend(), newPlatformSecrets())
}

func loadWith(b ConfigBackend, secrets secretStore) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}
	applyEnvOverrides(&cfg)
	if err := applySecretFallback(&cfg, secrets); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks enumerations, durations and the credentials the selected
// messenger platform needs.
func (c Config) Validate() error {
	var errs []error

	switch c.Storage.Format {
	case "json", "yaml", "yml":
	default:
		errs = append(errs, fmt.Errorf("storage.format must be json or yaml, got %q", c.Storage.Format))
	}

	switch c.Messenger.Platform {
	case "telegram":
		if c.Telegram.BotToken == "" {
			errs = append(errs, missing("telegram.bot_token"))
		}
	case "whatsapp":
		if c.WhatsApp.PhoneNumberID == "" {
			errs = append(errs, missing("whatsapp.phone_number_id"))
		}
		if c.WhatsApp.AccessToken == "" {
			errs = append(errs, missing("whatsapp.access_token"))
		}
	case "log":
	default:
		errs = append(errs, fmt.Errorf("messenger.platform must be telegram, whatsapp or log, got %q", c.Messenger.Platform))
	}

	if _, err := c.Scheduler.Interval(); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.Scheduler.Location(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func missing(key string) error {
	s := specFor(key)
	msg := fmt.Sprintf("missing required config: %s. Set it via environment variable %s", key, s.env)
	if ref, err := secretRefFor(key); err == nil {
		msg += secretHint(ref)
	}
	return errors.New(msg)
}
