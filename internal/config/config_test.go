package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func validConfig() *Config {
	cfg := Default()
	cfg.Telegram.Token = "123:abc"
	return cfg
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "defaults with token", mutate: func(*Config) {}},
		{name: "webhook mode", mutate: func(c *Config) { c.Telegram.Mode = ModeWebhook }},
		{name: "missing token", mutate: func(c *Config) { c.Telegram.Token = "" }, wantErr: true},
		{name: "unknown mode", mutate: func(c *Config) { c.Telegram.Mode = "push" }, wantErr: true},
		{name: "missing temp dir", mutate: func(c *Config) { c.Storage.TempPath = "" }, wantErr: true},
		{name: "zero max file size", mutate: func(c *Config) { c.Pipeline.MaxFileSize = 0 }, wantErr: true},
		{name: "zero concurrency", mutate: func(c *Config) { c.Pipeline.FetchConcurrency = 0 }, wantErr: true},
		{name: "negative max assets", mutate: func(c *Config) { c.Pipeline.MaxAssets = -1 }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr && err == nil {
				t.Error("expected validation error, got nil")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected validation error: %v", err)
			}
		})
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Pipeline.MaxFileSize != 50*1024*1024 {
		t.Errorf("MaxFileSize = %d", cfg.Pipeline.MaxFileSize)
	}
	if cfg.Pipeline.FetchConcurrency != 3 {
		t.Errorf("FetchConcurrency = %d, want 3", cfg.Pipeline.FetchConcurrency)
	}
	if cfg.Pipeline.MaxAssets != 5 {
		t.Errorf("MaxAssets = %d, want 5", cfg.Pipeline.MaxAssets)
	}
	if cfg.Server.Port != 5000 {
		t.Errorf("Port = %d, want 5000", cfg.Server.Port)
	}
	if cfg.Telegram.Mode != ModePolling {
		t.Errorf("Mode = %q", cfg.Telegram.Mode)
	}
	if cfg.Archive.Enabled() {
		t.Error("archive should be disabled without a bucket")
	}
}

func TestServerConfig_Address(t *testing.T) {
	tests := []struct {
		name string
		cfg  ServerConfig
		want string
	}{
		{
			name: "default",
			cfg:  ServerConfig{Host: "0.0.0.0", Port: 5000},
			want: "0.0.0.0:5000",
		},
		{
			name: "localhost",
			cfg:  ServerConfig{Host: "localhost", Port: 8080},
			want: "localhost:8080",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cfg.Address(); got != tt.want {
				t.Errorf("Address() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestHistoryConfig_Retention(t *testing.T) {
	if got := (HistoryConfig{RetentionDays: 2}).Retention(); got != 48*time.Hour {
		t.Errorf("Retention() = %v", got)
	}
	if got := (HistoryConfig{}).Retention(); got != 0 {
		t.Errorf("Retention() = %v, want 0", got)
	}
}

func TestLoad_FromYAMLFile(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")

	yamlContent := `
telegram:
  token: "yaml-token"
  mode: webhook
pipeline:
  max_assets: 8
download:
  timeout: 45s
  proxies:
    - http://proxy-a:8080
    - http://proxy-b:8080
archive:
  bucket: media
`
	if err := os.WriteFile(configPath, []byte(yamlContent), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Telegram.Token != "yaml-token" {
		t.Errorf("Token = %q", cfg.Telegram.Token)
	}
	if cfg.Telegram.Mode != ModeWebhook {
		t.Errorf("Mode = %q", cfg.Telegram.Mode)
	}
	if cfg.Pipeline.MaxAssets != 8 {
		t.Errorf("MaxAssets = %d, want 8", cfg.Pipeline.MaxAssets)
	}
	// Values absent from the file keep their defaults.
	if cfg.Pipeline.FetchConcurrency != 3 {
		t.Errorf("FetchConcurrency = %d, want 3", cfg.Pipeline.FetchConcurrency)
	}
	if cfg.Download.Timeout != 45*time.Second {
		t.Errorf("Timeout = %v", cfg.Download.Timeout)
	}
	if len(cfg.Download.Proxies) != 2 {
		t.Errorf("Proxies = %v", cfg.Download.Proxies)
	}
	if !cfg.Archive.Enabled() {
		t.Error("archive should be enabled")
	}
}

func TestLoad_EnvOverridesYAML(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")

	yamlContent := `
telegram:
  token: "yaml-token"
storage:
  temp_path: "/yaml/temp"
`
	if err := os.WriteFile(configPath, []byte(yamlContent), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	t.Setenv("TELEGRAM_TOKEN", "env-token")
	t.Setenv("TEMP_DIR", "/env/temp")
	t.Setenv("MAX_CONCURRENT_DOWNLOADS", "6")
	t.Setenv("PORT", "8443")

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Telegram.Token != "env-token" {
		t.Errorf("Token should be from env, got %q", cfg.Telegram.Token)
	}
	if cfg.Storage.TempPath != "/env/temp" {
		t.Errorf("TempPath should be from env, got %q", cfg.Storage.TempPath)
	}
	if cfg.Pipeline.FetchConcurrency != 6 {
		t.Errorf("FetchConcurrency = %d, want 6", cfg.Pipeline.FetchConcurrency)
	}
	if cfg.Server.Port != 8443 {
		t.Errorf("Port = %d, want 8443", cfg.Server.Port)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")

	invalidYAML := `
telegram:
  token: "abc
  mode: polling
`
	if err := os.WriteFile(configPath, []byte(invalidYAML), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	if _, err := Load(configPath); err == nil {
		t.Error("Load should fail for invalid YAML")
	}
}

func TestLoad_NonexistentFile(t *testing.T) {
	if _, err := Load("/nonexistent/config.yaml"); err == nil {
		t.Error("Load should fail for nonexistent file")
	}
}

func TestLoad_ValidationFailure(t *testing.T) {
	t.Setenv("TELEGRAM_TOKEN", "")

	if _, err := Load(""); err == nil {
		t.Error("Load should fail validation without a bot token")
	}
}
