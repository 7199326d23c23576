package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestLoadFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
data:
  source: sqlite
database:
  sqlite_path: /tmp/crimes.db
model:
  num_trees: 25
http:
  port: 9090
  request_timeout: 3s
watch:
  enabled: true
  debounce: 250ms
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("CRIMEWATCH_NUM_TREES", "40")
	t.Setenv("CRIMEWATCH_LOG_LEVEL", "debug")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Data.Source != "sqlite" || cfg.Database.SQLitePath != "/tmp/crimes.db" {
		t.Fatalf("file values not applied: %+v", cfg.Data)
	}
	if cfg.Model.NumTrees != 40 {
		t.Fatalf("expected env override 40 trees, got %d", cfg.Model.NumTrees)
	}
	if cfg.Model.Seed != 42 {
		t.Fatalf("expected default seed 42, got %d", cfg.Model.Seed)
	}
	if cfg.HTTP.Port != 9090 || cfg.HTTP.RequestTimeout != 3*time.Second {
		t.Fatalf("unexpected http config %+v", cfg.HTTP)
	}
	if !cfg.Watch.Enabled || cfg.Watch.Debounce != 250*time.Millisecond {
		t.Fatalf("unexpected watch config %+v", cfg.Watch)
	}
	if cfg.Log.Level != "debug" {
		t.Fatalf("expected log level debug, got %s", cfg.Log.Level)
	}
}

func TestLoadInvalidEnv(t *testing.T) {
	t.Setenv("CRIMEWATCH_HTTP_PORT", "eighty")
	if _, err := Load(""); err == nil {
		t.Fatalf("expected error for non-numeric port")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "unknown source", mutate: func(c *Config) { c.Data.Source = "excel" }, wantErr: "data.source"},
		{name: "mongo without uri", mutate: func(c *Config) { c.Data.Source = "mongo" }, wantErr: "mongo_uri"},
		{name: "redis without addr", mutate: func(c *Config) { c.Artifact.Store = "redis" }, wantErr: "redis_addr"},
		{name: "bad model", mutate: func(c *Config) { c.Model.Type = "svm" }, wantErr: "model.type"},
		{name: "bad ratio", mutate: func(c *Config) { c.Model.TestRatio = 1 }, wantErr: "test_ratio"},
		{name: "negative gzip threshold", mutate: func(c *Config) { c.HTTP.GzipMinSize = -1 }, wantErr: "gzip_min_size"},
		{name: "watch needs file store", mutate: func(c *Config) {
			c.Watch.Enabled = true
			c.Artifact.Store = "sqlite"
		}, wantErr: "watch.enabled"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}
