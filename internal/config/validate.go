package config

import (
	"fmt"
	"strings"
	"time"
)

// Validate checks the parts of the config that would otherwise only
// fail deep inside a service at runtime. Used at startup and as the
// hot-reload gate.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}

	switch d := strings.ToLower(strings.TrimSpace(cfg.Storage.Driver)); d {
	case "", "memory":
	case "sqlite", "sqlite3":
		if strings.TrimSpace(cfg.Storage.Path) == "" {
			return fmt.Errorf("storage.path is required for the sqlite driver")
		}
	default:
		return fmt.Errorf("storage.driver: unknown driver %q", d)
	}
	if _, err := ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout); err != nil {
		return err
	}

	if tz := strings.TrimSpace(cfg.Scheduler.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			return fmt.Errorf("scheduler.timezone: %w", err)
		}
	}

	if cfg.SMS != nil && cfg.SMS.Enabled {
		if strings.TrimSpace(cfg.SMS.AccountSID) == "" || strings.TrimSpace(cfg.SMS.From) == "" {
			return fmt.Errorf("sms: account_sid and from are required when enabled")
		}
	}
	if cfg.Telegram != nil && cfg.Telegram.Enabled && strings.TrimSpace(cfg.Telegram.Token) == "" {
		return fmt.Errorf("telegram: token is required when enabled")
	}
	return nil
}
