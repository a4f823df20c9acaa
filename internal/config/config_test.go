// ABOUTME: Tests for configuration loading and parsing
// ABOUTME: Covers YAML loading, env var expansion, and duration parsing

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return configPath
}

func TestLoad_ValidConfig(t *testing.T) {
	configPath := writeConfig(t, `
server:
  http_addr: "0.0.0.0:8080"

database:
  path: "./test.db"

conversation:
  expires: "90s"

logging:
  level: "debug"
  format: "json"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.HTTPAddr != "0.0.0.0:8080" {
		t.Errorf("HTTPAddr = %q, want %q", cfg.Server.HTTPAddr, "0.0.0.0:8080")
	}
	if cfg.Database.Path != "./test.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "./test.db")
	}
	if cfg.Conversation.Expires != 90*time.Second {
		t.Errorf("Conversation.Expires = %v, want 90s", cfg.Conversation.Expires)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want %q", cfg.Logging.Level, "debug")
	}
	if cfg.Logging.Format != "json" {
		t.Errorf("Logging.Format = %q, want %q", cfg.Logging.Format, "json")
	}
}

func TestLoad_DefaultExpiry(t *testing.T) {
	configPath := writeConfig(t, `
server:
  http_addr: "localhost:8080"

database:
  path: "./test.db"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Conversation.Expires != DefaultExpires {
		t.Errorf("Conversation.Expires = %v, want default %v", cfg.Conversation.Expires, DefaultExpires)
	}
}

func TestLoad_EnvVarExpansion(t *testing.T) {
	t.Setenv("EVA_TEST_DB_PATH", "/tmp/eva-test.db")

	configPath := writeConfig(t, `
server:
  http_addr: "localhost:8080"

database:
  path: "${EVA_TEST_DB_PATH}"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Database.Path != "/tmp/eva-test.db" {
		t.Errorf("Database.Path = %q, want expanded env var", cfg.Database.Path)
	}
}

func TestLoad_NegativeExpiry(t *testing.T) {
	configPath := writeConfig(t, `
server:
  http_addr: "localhost:8080"

database:
  path: "./test.db"

conversation:
  expires: "-10s"
`)

	_, err := Load(configPath)
	if err == nil {
		t.Fatal("Load() expected error for negative expiry")
	}
	if !strings.Contains(err.Error(), "expires") {
		t.Errorf("error = %v, want mention of expires", err)
	}
}

func TestLoad_InvalidDuration(t *testing.T) {
	configPath := writeConfig(t, `
server:
  http_addr: "localhost:8080"

database:
  path: "./test.db"

conversation:
  expires: "soon"
`)

	_, err := Load(configPath)
	if err == nil {
		t.Fatal("Load() expected error for unparseable duration")
	}
}

func TestLoad_MissingRequiredFields(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{
			name: "missing http_addr",
			content: `
database:
  path: "./test.db"
`,
			want: "http_addr",
		},
		{
			name: "missing database path",
			content: `
server:
  http_addr: "localhost:8080"
`,
			want: "database.path",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			configPath := writeConfig(t, tt.content)
			_, err := Load(configPath)
			if err == nil {
				t.Fatal("Load() expected validation error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %v, want mention of %q", err, tt.want)
			}
		})
	}
}

func TestLoad_FileNotFound(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	if err == nil {
		t.Fatal("Load() expected error for missing file")
	}
}
