package store

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("REGISTRY_DSN", "")
	t.Setenv("LEDGER_DSN", "postgres://u:p@db/notifier")

	cfg, err := LoadConfig(writeConfig(t, "ledger:\n  backend: postgres\n"))
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.Timezone != "America/Sao_Paulo" || cfg.Source.Kind != "gsheet" {
		t.Errorf("unexpected defaults: timezone %q, source %q", cfg.Timezone, cfg.Source.Kind)
	}
	if cfg.Retry.TabAttempts != 3 || cfg.Retry.ReadMaxBackoffSeconds != 30 || cfg.Retry.SiteAttempts != 5 {
		t.Errorf("unexpected retry defaults: %+v", cfg.Retry)
	}
	if cfg.Jitter.MinSeconds != 3 || cfg.Jitter.MaxSeconds != 5 {
		t.Errorf("unexpected jitter: %+v", cfg.Jitter)
	}
	if strings.Join(cfg.Schedule.Times, ",") != strings.Join(DefaultScheduleTimes, ",") {
		t.Errorf("schedule = %v", cfg.Schedule.Times)
	}
	if cfg.Columns.ROAS != "ROAS Geral" || len(cfg.Channels) != 2 {
		t.Errorf("columns/channels not defaulted: %+v %+v", cfg.Columns, cfg.Channels)
	}
	if cfg.Ledger.DSN != "postgres://u:p@db/notifier" {
		t.Errorf("ledger dsn not read from env: %q", cfg.Ledger.DSN)
	}
	if cfg.Location().String() != "America/Sao_Paulo" {
		t.Errorf("location = %s", cfg.Location())
	}
	if cfg.RefillRate() != time.Second {
		t.Errorf("refill rate = %s, want 1s at 60 req/min", cfg.RefillRate())
	}
}

func TestLoadConfigOverrides(t *testing.T) {
	body := `
timezone: UTC
source:
  kind: XLSX
jitter:
  min_seconds: 0.5
  max_seconds: 1
schedule:
  times: ["08:00"]
columns:
  date: Dia
months: [Jan, Feb, Mar, Apr, May, Jun, Jul, Aug, Sep, Oct, Nov, Dec]
`
	cfg, err := LoadConfig(writeConfig(t, body))
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.Source.Kind != "xlsx" || cfg.Columns.Date != "Dia" || cfg.Columns.Revenue != "Receita" {
		t.Errorf("overrides not applied: %+v %+v", cfg.Source, cfg.Columns)
	}
	if len(cfg.Schedule.Times) != 1 || cfg.Months[2] != "Mar" {
		t.Errorf("schedule/months = %v %v", cfg.Schedule.Times, cfg.Months)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"bad timezone", "timezone: Mars/Olympus\n"},
		{"bad source", "source:\n  kind: csv\n"},
		{"inverted jitter", "jitter:\n  min_seconds: 5\n  max_seconds: 2\n"},
		{"short months", "months: [Jan, Feb]\n"},
		{"bad schedule", "schedule:\n  times: [\"25:99\"]\n"},
		{"channel without marker", "channels:\n  - title: FB ADS\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := LoadConfig(writeConfig(t, tt.body)); err == nil {
				t.Error("expected a validation error")
			}
		})
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected an error for a missing file")
	}
}

func TestDefaultConfigIsValid(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Errorf("DefaultConfig().Validate() = %v", err)
	}
}
