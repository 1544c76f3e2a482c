package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestConfig_DefaultsAreValid(t *testing.T) {
	cfg := &Config{}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaulted config must validate: %v", err)
	}

	if cfg.Name != "planengine" || cfg.Environment != "development" || !cfg.Debug {
		t.Fatalf("unexpected base defaults: %+v", cfg)
	}
	if cfg.Database.Driver != "sqlite" {
		t.Fatalf("expected sqlite default driver, got %s", cfg.Database.Driver)
	}
	if cfg.Cleanup.RetentionTTL != "720h" || cfg.Cleanup.SweepInterval != "1h" {
		t.Fatalf("unexpected cleanup defaults: %+v", cfg.Cleanup)
	}
}

func TestConfig_RejectsBadEnvironment(t *testing.T) {
	cfg := &Config{Environment: "prod"}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for unknown environment")
	}
}

func TestConfig_RejectsBadDurations(t *testing.T) {
	cfg := &Config{}
	cfg.ApplyDefaults()
	cfg.Cleanup.RetentionTTL = "a-while"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for unparseable retention_ttl")
	}

	cfg = &Config{}
	cfg.ApplyDefaults()
	cfg.Metrics.PublishInterval = "often"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for unparseable publish_interval")
	}
}

func TestLoad_FromYAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yml")
	yaml := `
name: exec-engine
environment: production
database:
  dsn: "file:prod.db"
cleanup:
  enabled: true
  retention_ttl: 168h
`
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	cfg, err := Load(WithConfigFile(path))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Name != "exec-engine" || cfg.Environment != "production" {
		t.Fatalf("unexpected base config: %+v", cfg)
	}
	if cfg.Database.DSN != "file:prod.db" {
		t.Fatalf("unexpected dsn %s", cfg.Database.DSN)
	}
	if !cfg.Cleanup.Enabled || cfg.Cleanup.RetentionTTL != "168h" {
		t.Fatalf("unexpected cleanup config: %+v", cfg.Cleanup)
	}
	// Sections absent from the file still get defaults.
	if cfg.Redis.Addr != "localhost:6379" {
		t.Fatalf("expected redis default, got %s", cfg.Redis.Addr)
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yml")
	if err := os.WriteFile(path, []byte("database:\n  dsn: from-file\n"), 0o600); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	t.Setenv("PLANENGINE_DATABASE_DSN", "from-env")
	cfg, err := Load(WithConfigFile(path))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Database.DSN != "from-env" {
		t.Fatalf("expected env override, got %s", cfg.Database.DSN)
	}
}

func TestLoad_DotEnvFile(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env")
	if err := os.WriteFile(envPath, []byte("PLANENGINE_NAME=dotenv-engine\n"), 0o600); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	t.Cleanup(func() { os.Unsetenv("PLANENGINE_NAME") })

	cfg, err := Load(WithEnvFile(envPath))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Name != "dotenv-engine" {
		t.Fatalf("expected name from .env, got %s", cfg.Name)
	}
}

func TestLoad_MissingFilesFallBackToDefaults(t *testing.T) {
	cfg, err := Load(WithConfigFile(filepath.Join(t.TempDir(), "nope.yml")))
	if err != nil {
		t.Fatalf("load without files: %v", err)
	}
	if cfg.Name != "planengine" {
		t.Fatalf("expected defaults, got %+v", cfg)
	}
}
