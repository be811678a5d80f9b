package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.yaml.in/yaml/v4"
)

func writeConfig(t *testing.T, body []byte) {
	t.Helper()
	configFile := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configFile, body, 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	t.Setenv("HABITS_CONFIG", configFile)
}

func TestLoad_MissingConfig(t *testing.T) {
	t.Setenv("HABITS_CONFIG", "nonexistent.yaml")
	_, err := Load()
	if err == nil {
		t.Fatal("expected error for missing config file, got nil")
	}
}

func TestLoad_CustomConfig(t *testing.T) {
	c := Config{}
	d, err := yaml.Marshal(&c)
	if err != nil {
		t.Fatalf("failed to marshal config: %v", err)
	}
	writeConfig(t, d)

	_, err = Load()
	if err != nil {
		t.Fatal("error opening config:", err)
	}
}

func TestLoad_Defaults(t *testing.T) {
	writeConfig(t, []byte("{}\n"))

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Storage.Driver != DriverBolt || cfg.Storage.Path != "habits.db" {
		t.Fatalf("unexpected storage defaults: %+v", cfg.Storage)
	}
	if cfg.Partnership.InviteTTL != 7*24*time.Hour {
		t.Fatalf("got invite ttl %s, want 168h", cfg.Partnership.InviteTTL)
	}
	if cfg.ListenAddr != ":8080" {
		t.Fatalf("got listen addr %q", cfg.ListenAddr)
	}
}

func TestLoad_YAMLFields(t *testing.T) {
	writeConfig(t, []byte(`
api_base_url: https://habits.example.com
auth_enabled: true
oidc_providers:
  - id: google
    name: Google
    client_id: abc
    issuer_url: https://accounts.google.com
    scopes: [openid, email]
storage:
  driver: sqlite
  path: /var/lib/habits/habits.sqlite
log:
  level: debug
  format: json
partnership:
  invite_ttl: 48h
`))

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !cfg.AuthEnabled || len(cfg.OIDCProviders) != 1 || cfg.OIDCProviders[0].Id != "google" {
		t.Fatalf("auth settings not loaded: %+v", cfg)
	}
	if len(cfg.OIDCProviders[0].Scopes) != 2 {
		t.Fatalf("got scopes %v", cfg.OIDCProviders[0].Scopes)
	}
	if cfg.Storage.Driver != DriverSQLite {
		t.Fatalf("got driver %q", cfg.Storage.Driver)
	}
	if cfg.Partnership.InviteTTL != 48*time.Hour {
		t.Fatalf("got invite ttl %s, want 48h", cfg.Partnership.InviteTTL)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	writeConfig(t, []byte("storage:\n  path: from-file.db\n"))
	t.Setenv("HABITS_DB_PATH", "from-env.db")
	t.Setenv("HABITS_AUTH_ENABLED", "true")
	t.Setenv("HABITS_INVITE_TTL", "1h")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Storage.Path != "from-env.db" {
		t.Fatalf("got path %q, want env override", cfg.Storage.Path)
	}
	if !cfg.AuthEnabled {
		t.Fatal("HABITS_AUTH_ENABLED was not applied")
	}
	if cfg.Partnership.InviteTTL != time.Hour {
		t.Fatalf("got invite ttl %s", cfg.Partnership.InviteTTL)
	}

	t.Setenv("HABITS_AUTH_ENABLED", "maybe")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for non-boolean HABITS_AUTH_ENABLED")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"bad driver", Config{Storage: StorageConfig{Driver: "postgres"}, Log: LogConfig{Format: "text"}}},
		{"bad format", Config{Storage: StorageConfig{Driver: DriverBolt}, Log: LogConfig{Format: "xml"}}},
		{"provider without id", Config{
			Storage:       StorageConfig{Driver: DriverBolt},
			Log:           LogConfig{Format: "text"},
			OIDCProviders: []OIDCProviderConfig{{IssuerURL: "https://idp"}},
		}},
		{"duplicate provider", Config{
			Storage:       StorageConfig{Driver: DriverBolt},
			Log:           LogConfig{Format: "text"},
			OIDCProviders: []OIDCProviderConfig{{Id: "a"}, {Id: "a"}},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.cfg.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}
