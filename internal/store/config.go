package store

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"roas-notifier/internal/ledger"
	"roas-notifier/internal/registry"
	"roas-notifier/internal/types"
)

type Config struct {
	Timezone string `yaml:"timezone"`
	DryRun   bool   `yaml:"dry_run"`

	Source struct {
		Kind              string `yaml:"kind"` // gsheet or xlsx
		TimeoutSeconds    int    `yaml:"timeout_seconds"`
		RequestsPerMinute int    `yaml:"requests_per_minute"`
		Burst             int    `yaml:"burst"`
		CacheDir          string `yaml:"cache_dir"`
		CacheTTLMinutes   int    `yaml:"cache_ttl_minutes"`
	} `yaml:"source"`

	Registry registry.Config `yaml:"registry"`
	Ledger   ledger.Config   `yaml:"ledger"`

	Notify struct {
		TimeoutSeconds int `yaml:"timeout_seconds"`
	} `yaml:"notify"`

	Retry struct {
		TabAttempts           int `yaml:"tab_attempts"`
		TabMaxBackoffSeconds  int `yaml:"tab_max_backoff_seconds"`
		ReadAttempts          int `yaml:"read_attempts"`
		ReadMaxBackoffSeconds int `yaml:"read_max_backoff_seconds"`
		SiteAttempts          int `yaml:"site_attempts"`
		SiteMaxBackoffSeconds int `yaml:"site_max_backoff_seconds"`
	} `yaml:"retry"`

	// pause between two sites
	Jitter struct {
		MinSeconds float64 `yaml:"min_seconds"`
		MaxSeconds float64 `yaml:"max_seconds"`
	} `yaml:"jitter"`

	Monitor struct {
		IntervalSeconds int `yaml:"interval_seconds"`
	} `yaml:"monitor"`

	Schedule struct {
		Times []string `yaml:"times"` // HH:MM in Timezone
	} `yaml:"schedule"`

	Columns  types.Columns       `yaml:"columns"`
	Channels []types.ChannelSpec `yaml:"channels"`
	Months   []string            `yaml:"months"`

	Status struct {
		Addr string `yaml:"addr"` // empty disables the status server
	} `yaml:"status"`

	DeliveryLog struct {
		Dir           string `yaml:"dir"`
		RetentionDays int    `yaml:"retention_days"`
	} `yaml:"delivery_log"`
}

// DefaultScheduleTimes are every three hours starting ten past midnight.
var DefaultScheduleTimes = []string{"00:10", "03:10", "06:10", "09:10", "12:10", "15:10", "18:10", "21:10"}

func (c *Config) Validate() error {
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("invalid timezone '%s': %w", c.Timezone, err)
	}
	if c.Source.Kind != "gsheet" && c.Source.Kind != "xlsx" {
		return fmt.Errorf("invalid source.kind '%s': must be 'gsheet' or 'xlsx'", c.Source.Kind)
	}
	if c.Retry.TabAttempts < 1 || c.Retry.ReadAttempts < 1 || c.Retry.SiteAttempts < 1 {
		return errors.New("retry attempts must be at least 1")
	}
	if c.Jitter.MinSeconds < 0 || c.Jitter.MaxSeconds < c.Jitter.MinSeconds {
		return fmt.Errorf("jitter must satisfy 0 <= min <= max, got %.1f..%.1f", c.Jitter.MinSeconds, c.Jitter.MaxSeconds)
	}
	if len(c.Months) != 0 && len(c.Months) != 12 {
		return fmt.Errorf("months must list all 12 names, got %d", len(c.Months))
	}
	for _, t := range c.Schedule.Times {
		if _, err := time.Parse("15:04", t); err != nil {
			return fmt.Errorf("invalid schedule time '%s': must be HH:MM", t)
		}
	}
	if c.Columns.Date == "" {
		return errors.New("columns.date cannot be empty")
	}
	for _, ch := range c.Channels {
		if ch.Title == "" || ch.MarkerField == "" {
			return fmt.Errorf("channel %+v needs a title and a marker field", ch)
		}
	}
	return nil
}

// Location returns the configured time zone.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func (c *Config) SourceTimeout() time.Duration {
	return time.Duration(c.Source.TimeoutSeconds) * time.Second
}

func (c *Config) NotifyTimeout() time.Duration {
	return time.Duration(c.Notify.TimeoutSeconds) * time.Second
}

func (c *Config) MonitorInterval() time.Duration {
	return time.Duration(c.Monitor.IntervalSeconds) * time.Second
}

func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.Source.CacheTTLMinutes) * time.Minute
}

// RefillRate is the token-bucket refill period for source requests.
func (c *Config) RefillRate() time.Duration {
	if c.Source.RequestsPerMinute <= 0 {
		return 0
	}
	return time.Minute / time.Duration(c.Source.RequestsPerMinute)
}

// DefaultConfig returns a Config with every default applied and no
// environment overrides.
func DefaultConfig() *Config {
	var c Config
	c.applyDefaults()
	return &c
}

func LoadConfig(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, err
	}

	c.applyDefaults()
	c.applyEnv()

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &c, nil
}

func (c *Config) applyDefaults() {
	if c.Timezone == "" {
		c.Timezone = "America/Sao_Paulo"
	}
	if c.Source.Kind == "" {
		c.Source.Kind = "gsheet"
	}
	c.Source.Kind = strings.ToLower(c.Source.Kind)
	if c.Source.TimeoutSeconds == 0 {
		c.Source.TimeoutSeconds = 30
	}
	if c.Source.RequestsPerMinute == 0 {
		c.Source.RequestsPerMinute = 60
	}
	if c.Source.Burst == 0 {
		c.Source.Burst = 5
	}
	if c.Source.CacheTTLMinutes == 0 {
		c.Source.CacheTTLMinutes = 30
	}
	if c.Ledger.Path == "" {
		c.Ledger.Path = "data/processed_records.json"
	}
	if c.Registry.Path == "" {
		c.Registry.Path = "sites.yaml"
	}
	if c.Notify.TimeoutSeconds == 0 {
		c.Notify.TimeoutSeconds = 10
	}

	if c.Retry.TabAttempts == 0 {
		c.Retry.TabAttempts = 3
	}
	if c.Retry.TabMaxBackoffSeconds == 0 {
		c.Retry.TabMaxBackoffSeconds = 60
	}
	if c.Retry.ReadAttempts == 0 {
		c.Retry.ReadAttempts = 3
	}
	if c.Retry.ReadMaxBackoffSeconds == 0 {
		c.Retry.ReadMaxBackoffSeconds = 30
	}
	if c.Retry.SiteAttempts == 0 {
		c.Retry.SiteAttempts = 5
	}
	if c.Retry.SiteMaxBackoffSeconds == 0 {
		c.Retry.SiteMaxBackoffSeconds = 60
	}

	if c.Jitter.MinSeconds == 0 && c.Jitter.MaxSeconds == 0 {
		c.Jitter.MinSeconds, c.Jitter.MaxSeconds = 3, 5
	}
	if c.Monitor.IntervalSeconds == 0 {
		c.Monitor.IntervalSeconds = 60
	}
	if len(c.Schedule.Times) == 0 {
		c.Schedule.Times = append([]string(nil), DefaultScheduleTimes...)
	}

	def := types.DefaultColumns()
	if c.Columns.Date == "" {
		c.Columns.Date = def.Date
	}
	if c.Columns.Investment == "" {
		c.Columns.Investment = def.Investment
	}
	if c.Columns.Revenue == "" {
		c.Columns.Revenue = def.Revenue
	}
	if c.Columns.ROAS == "" {
		c.Columns.ROAS = def.ROAS
	}
	if c.Columns.Margin == "" {
		c.Columns.Margin = def.Margin
	}
	if len(c.Channels) == 0 {
		c.Channels = types.DefaultChannels()
	}
	if c.DeliveryLog.RetentionDays == 0 {
		c.DeliveryLog.RetentionDays = 7
	}
}

// applyEnv reads secrets that never live in config.yaml.
func (c *Config) applyEnv() {
	if dsn := os.Getenv("REGISTRY_DSN"); dsn != "" {
		c.Registry.DSN = dsn
	}
	if dsn := os.Getenv("LEDGER_DSN"); dsn != "" {
		c.Ledger.DSN = dsn
	}
	if os.Getenv("DRY_RUN") == "true" {
		c.DryRun = true
	}
}
