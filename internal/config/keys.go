package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
)

type keyType int

const (
	kString keyType = iota
	kInt
	kBool
)

type keySpec struct {
	key     string
	typ     keyType
	env     string
	secret  bool
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "server.host", typ: kString, env: "CHATHUB_SERVER_HOST",
		apply:   func(cfg *Config, v any) { cfg.Server.Host = v.(string) },
		extract: func(cfg Config) any { return cfg.Server.Host },
	},
	{
		key: "server.port", typ: kInt, env: "CHATHUB_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "storage.data_dir", typ: kString, env: "CHATHUB_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "storage.format", typ: kString, env: "CHATHUB_STORAGE_FORMAT",
		apply:   func(cfg *Config, v any) { cfg.Storage.Format = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.Format },
	},
	{
		key: "messenger.platform", typ: kString, env: "CHATHUB_MESSENGER_PLATFORM",
		apply:   func(cfg *Config, v any) { cfg.Messenger.Platform = v.(string) },
		extract: func(cfg Config) any { return cfg.Messenger.Platform },
	},
	{
		key: "telegram.bot_token", typ: kString, env: "CHATHUB_TELEGRAM_BOT_TOKEN",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Telegram.BotToken = v.(string) },
		extract: func(cfg Config) any { return cfg.Telegram.BotToken },
	},
	{
		key: "telegram.webhook_url", typ: kString, env: "CHATHUB_TELEGRAM_WEBHOOK_URL",
		apply:   func(cfg *Config, v any) { cfg.Telegram.WebhookURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Telegram.WebhookURL },
	},
	{
		key: "whatsapp.phone_number_id", typ: kString, env: "CHATHUB_WHATSAPP_PHONE_NUMBER_ID",
		apply:   func(cfg *Config, v any) { cfg.WhatsApp.PhoneNumberID = v.(string) },
		extract: func(cfg Config) any { return cfg.WhatsApp.PhoneNumberID },
	},
	{
		key: "whatsapp.access_token", typ: kString, env: "CHATHUB_WHATSAPP_ACCESS_TOKEN",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.WhatsApp.AccessToken = v.(string) },
		extract: func(cfg Config) any { return cfg.WhatsApp.AccessToken },
	},
	{
		key: "whatsapp.verify_token", typ: kString, env: "CHATHUB_WHATSAPP_VERIFY_TOKEN",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.WhatsApp.VerifyToken = v.(string) },
		extract: func(cfg Config) any { return cfg.WhatsApp.VerifyToken },
	},
	{
		key: "whatsapp.app_secret", typ: kString, env: "CHATHUB_WHATSAPP_APP_SECRET",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.WhatsApp.AppSecret = v.(string) },
		extract: func(cfg Config) any { return cfg.WhatsApp.AppSecret },
	},
	{
		key: "smtp.server", typ: kString, env: "CHATHUB_SMTP_SERVER",
		apply:   func(cfg *Config, v any) { cfg.SMTP.Server = v.(string) },
		extract: func(cfg Config) any { return cfg.SMTP.Server },
	},
	{
		key: "smtp.port", typ: kInt, env: "CHATHUB_SMTP_PORT",
		apply:   func(cfg *Config, v any) { cfg.SMTP.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.SMTP.Port },
	},
	{
		key: "smtp.username", typ: kString, env: "CHATHUB_SMTP_USERNAME",
		apply:   func(cfg *Config, v any) { cfg.SMTP.Username = v.(string) },
		extract: func(cfg Config) any { return cfg.SMTP.Username },
	},
	{
		key: "smtp.password", typ: kString, env: "CHATHUB_SMTP_PASSWORD",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.SMTP.Password = v.(string) },
		extract: func(cfg Config) any { return cfg.SMTP.Password },
	},
	{
		key: "smtp.from_name", typ: kString, env: "CHATHUB_SMTP_FROM_NAME",
		apply:   func(cfg *Config, v any) { cfg.SMTP.FromName = v.(string) },
		extract: func(cfg Config) any { return cfg.SMTP.FromName },
	},
	{
		key: "email.aliases", typ: kString, env: "CHATHUB_EMAIL_ALIASES",
		apply:   func(cfg *Config, v any) { cfg.Email.Aliases = v.(string) },
		extract: func(cfg Config) any { return cfg.Email.Aliases },
	},
	{
		key: "scheduler.poll_interval", typ: kString, env: "CHATHUB_SCHEDULER_POLL_INTERVAL",
		apply:   func(cfg *Config, v any) { cfg.Scheduler.PollInterval = v.(string) },
		extract: func(cfg Config) any { return cfg.Scheduler.PollInterval },
	},
	{
		key: "scheduler.timezone", typ: kString, env: "CHATHUB_SCHEDULER_TIMEZONE",
		apply:   func(cfg *Config, v any) { cfg.Scheduler.Timezone = v.(string) },
		extract: func(cfg Config) any { return cfg.Scheduler.Timezone },
	},
	{
		key: "outbox.enabled", typ: kBool, env: "CHATHUB_OUTBOX_ENABLED",
		apply:   func(cfg *Config, v any) { cfg.Outbox.Enabled = v.(bool) },
		extract: func(cfg Config) any { return cfg.Outbox.Enabled },
	},
	{
		key: "log.level", typ: kString, env: "CHATHUB_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
	{
		key: "api.token", typ: kString, env: "CHATHUB_API_TOKEN",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.API.Token = v.(string) },
		extract: func(cfg Config) any { return cfg.API.Token },
	},
}

func lookupSpec(key string) (keySpec, bool) {
	for _, s := range specs {
		if s.key == key {
			return s, true
		}
	}
	return keySpec{key: key}, false
}

func specFor(key string) keySpec {
	s, _ := lookupSpec(key)
	return s
}

func applyBackend(cfg *Config, b ConfigBackend) error {
	for _, s := range specs {
		if s.secret {
			continue
		}
		switch s.typ {
		case kString:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kInt:
			v, ok, err := b.GetInt(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kBool:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok && v != "" {
				if bv, err := strconv.ParseBool(v); err == nil {
					s.apply(cfg, bv)
				} else {
					fmt.Fprintf(os.Stderr, "[WARN] could not parse bool from config key %s=%q: %v. Using default value.\n", s.key, v, err)
				}
			}
		}
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		if s.env == "" {
			continue
		}
		raw := os.Getenv(s.env)
		if raw == "" {
			continue
		}
		switch s.typ {
		case kString:
			s.apply(cfg, raw)
		case kInt:
			if i, err := strconv.Atoi(raw); err == nil {
				s.apply(cfg, i)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse integer from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		case kBool:
			if b, err := strconv.ParseBool(raw); err == nil {
				s.apply(cfg, b)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse bool from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		}
	}
}

// applySecretFallback fills secrets the environment left empty from their
// accounts in the secret store. A malformed account is an error; a missing
// one is not.
func applySecretFallback(cfg *Config, store secretStore) error {
	if store == nil {
		return nil
	}
	var errs []error
	for _, s := range specs {
		if !s.secret || s.extract(*cfg).(string) != "" {
			continue
		}
		ref, err := secretRefFor(s.key)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		v, err := store.Get(ref)
		switch {
		case err == nil:
			s.apply(cfg, v)
		case !errors.Is(err, ErrSecretNotFound):
			errs = append(errs, fmt.Errorf("reading %s: %w", s.key, err))
		}
	}
	return errors.Join(errs...)
}
