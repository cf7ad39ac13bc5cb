package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadJSON(t *testing.T) {
	t.Parallel()
	path := writeFile(t, "config.json", `{
		"logging": {"level": "DEBUG", "console": true},
		"storage": {"driver": "sqlite", "path": "./x.db", "busy_timeout": "5s"},
		"scheduler": {"timezone": "UTC"},
		"http": {"enabled": true, "addr": "127.0.0.1:8080"}
	}`)

	m := NewConfigManager(path)
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Logging.Level != "DEBUG" || cfg.Storage.Driver != "sqlite" {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if !cfg.SchedulerEnabled() {
		t.Fatal("scheduler should default to enabled when omitted")
	}
	if m.Get() != cfg {
		t.Fatal("Get should return the committed config")
	}
}

func TestLoadYAML(t *testing.T) {
	t.Parallel()
	path := writeFile(t, "config.yaml", `
logging:
  level: INFO
  console: true
storage:
  driver: memory
scheduler:
  enabled: false
  timezone: America/New_York
http:
  enabled: false
sms:
  enabled: true
  account_sid: AC123
  auth_token: tok
  from: "+15550100"
  rate_per_sec: 2
`)

	cfg, err := NewConfigManager(path).Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.SchedulerEnabled() {
		t.Fatal("explicit enabled: false should win")
	}
	if cfg.Scheduler.Timezone != "America/New_York" {
		t.Fatalf("tz = %q", cfg.Scheduler.Timezone)
	}
	if cfg.SMS == nil || cfg.SMS.From != "+15550100" {
		t.Fatalf("sms = %+v", cfg.SMS)
	}
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	t.Parallel()
	path := writeFile(t, "config.json", `{"logging": {"console": true}, "storage": {"driver": "memory"}, "scheduler": {}, "http": {}, "bogus": 1}`)
	if _, err := NewConfigManager(path).Load(); err == nil {
		t.Fatal("expected error for unknown field")
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		cfg  Config
		ok   bool
	}{
		{name: "empty is fine", cfg: Config{}, ok: true},
		{name: "sqlite needs path", cfg: Config{Storage: StorageConfig{Driver: "sqlite"}}, ok: false},
		{name: "unknown driver", cfg: Config{Storage: StorageConfig{Driver: "postgres"}}, ok: false},
		{name: "bad timezone", cfg: Config{Scheduler: SchedulerConfig{Timezone: "Mars/Olympus"}}, ok: false},
		{name: "bad busy timeout", cfg: Config{Storage: StorageConfig{BusyTimeout: "soon"}}, ok: false},
		{name: "sms missing sid", cfg: Config{SMS: &SMSConfig{Enabled: true, From: "+1"}}, ok: false},
		{name: "telegram missing token", cfg: Config{Telegram: &TelegramConfig{Enabled: true}}, ok: false},
		{
			name: "full valid",
			cfg: Config{
				Storage:   StorageConfig{Driver: "sqlite", Path: "./x.db"},
				Scheduler: SchedulerConfig{Timezone: "UTC"},
				SMS:       &SMSConfig{Enabled: true, AccountSID: "AC1", From: "+1"},
			},
			ok: true,
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(&tt.cfg)
			if tt.ok && err != nil {
				t.Fatalf("Validate: %v", err)
			}
			if !tt.ok && err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}
