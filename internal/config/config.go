package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"go.yaml.in/yaml/v4"
)

const (
	DriverBolt   = "bolt"
	DriverSQLite = "sqlite"
)

type OIDCProviderConfig struct {
	Id           string   `yaml:"id"`
	Name         string   `yaml:"name"`
	ClientID     string   `yaml:"client_id"`
	ClientSecret string   `yaml:"client_secret"`
	IssuerURL    string   `yaml:"issuer_url"`
	RedirectURL  string   `yaml:"redirect_url"`
	Scopes       []string `yaml:"scopes"`
}

type StorageConfig struct {
	Driver string `yaml:"driver"`
	Path   string `yaml:"path"`
}

type LogConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
}

type PartnershipConfig struct {
	InviteTTL time.Duration `yaml:"invite_ttl"`
	// Accept attempts allowed per user per minute, with a small burst.
	AcceptPerMinute int `yaml:"accept_per_minute"`
	AcceptBurst     int `yaml:"accept_burst"`
}

type NudgeConfig struct {
	UserID       string `yaml:"user_id"`
	Email        string `yaml:"email"`
	From         string `yaml:"from"`
	ResendAPIKey string `yaml:"resend_api_key"`
}

type Config struct {
	APIBaseURL    string               `yaml:"api_base_url"`
	ListenAddr    string               `yaml:"listen_addr"`
	AuthEnabled   bool                 `yaml:"auth_enabled"`
	AuthToken     string               `yaml:"auth_token"`
	OIDCProviders []OIDCProviderConfig `yaml:"oidc_providers"`
	Storage       StorageConfig        `yaml:"storage"`
	Log           LogConfig            `yaml:"log"`
	Partnership   PartnershipConfig    `yaml:"partnership"`
	Nudge         NudgeConfig          `yaml:"nudge"`
}

// Load reads the YAML file named by HABITS_CONFIG (config.yaml if unset),
// applies HABITS_* environment overrides and fills defaults.
func Load() (*Config, error) {
	path := getenv("HABITS_CONFIG", "config.yaml")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	c.APIBaseURL = getenv("HABITS_API_BASE", c.APIBaseURL)
	c.ListenAddr = getenv("HABITS_LISTEN_ADDR", c.ListenAddr)
	c.AuthToken = getenv("HABITS_AUTH_TOKEN", c.AuthToken)
	c.Storage.Driver = getenv("HABITS_STORAGE_DRIVER", c.Storage.Driver)
	c.Storage.Path = getenv("HABITS_DB_PATH", c.Storage.Path)
	c.Log.Level = getenv("HABITS_LOG_LEVEL", c.Log.Level)
	c.Log.Format = getenv("HABITS_LOG_FORMAT", c.Log.Format)
	c.Log.File = getenv("HABITS_LOG_FILE", c.Log.File)
	c.Nudge.UserID = getenv("HABITS_NUDGE_USER", c.Nudge.UserID)
	c.Nudge.Email = getenv("HABITS_NOTIFY_EMAIL", c.Nudge.Email)
	c.Nudge.ResendAPIKey = getenv("HABITS_RESEND_API_KEY", c.Nudge.ResendAPIKey)

	if v := os.Getenv("HABITS_AUTH_ENABLED"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("HABITS_AUTH_ENABLED must be a boolean: %w", err)
		}
		c.AuthEnabled = b
	}
	if v := os.Getenv("HABITS_INVITE_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("HABITS_INVITE_TTL must be a duration: %w", err)
		}
		c.Partnership.InviteTTL = d
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.APIBaseURL == "" {
		c.APIBaseURL = "http://localhost:8080"
	}
	if c.ListenAddr == "" {
		c.ListenAddr = ":8080"
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = DriverBolt
	}
	if c.Storage.Path == "" {
		c.Storage.Path = "habits.db"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
	if c.Partnership.InviteTTL == 0 {
		c.Partnership.InviteTTL = 7 * 24 * time.Hour
	}
	if c.Partnership.AcceptPerMinute == 0 {
		c.Partnership.AcceptPerMinute = 10
	}
	if c.Partnership.AcceptBurst == 0 {
		c.Partnership.AcceptBurst = 3
	}
	if c.Nudge.From == "" {
		c.Nudge.From = "onboarding@resend.dev"
	}
}

func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case DriverBolt, DriverSQLite:
	default:
		return fmt.Errorf("storage.driver must be %q or %q, got %q", DriverBolt, DriverSQLite, c.Storage.Driver)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json, got %q", c.Log.Format)
	}
	if c.Partnership.InviteTTL < 0 {
		return fmt.Errorf("partnership.invite_ttl must be positive")
	}
	seen := map[string]bool{}
	for _, p := range c.OIDCProviders {
		if p.Id == "" {
			return fmt.Errorf("oidc provider with issuer %q has no id", p.IssuerURL)
		}
		if seen[p.Id] {
			return fmt.Errorf("duplicate oidc provider id %q", p.Id)
		}
		seen[p.Id] = true
	}
	return nil
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
