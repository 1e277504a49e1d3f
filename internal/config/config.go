package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// Telegram update delivery modes.
const (
	ModePolling = "polling"
	ModeWebhook = "webhook"
)

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Telegram TelegramConfig `yaml:"telegram"`
	Storage  StorageConfig  `yaml:"storage"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	Download DownloadConfig `yaml:"download"`
	YtDLP    YtDLPConfig    `yaml:"ytdlp"`
	Worker   WorkerConfig   `yaml:"worker"`
	History  HistoryConfig  `yaml:"history"`
	Archive  ArchiveConfig  `yaml:"archive"`
	Janitor  JanitorConfig  `yaml:"janitor"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host         string        `yaml:"host" envconfig:"SERVER_HOST"`
	Port         int           `yaml:"port" envconfig:"PORT"`
	ReadTimeout  time.Duration `yaml:"read_timeout" envconfig:"SERVER_READ_TIMEOUT"`
	WriteTimeout time.Duration `yaml:"write_timeout" envconfig:"SERVER_WRITE_TIMEOUT"`
}

// TelegramConfig holds bot credentials and update intake settings.
type TelegramConfig struct {
	Token         string        `yaml:"token" envconfig:"TELEGRAM_TOKEN"`
	Mode          string        `yaml:"mode" envconfig:"TELEGRAM_MODE"`
	WebhookSecret string        `yaml:"webhook_secret" envconfig:"TELEGRAM_WEBHOOK_SECRET"`
	PollTimeout   int           `yaml:"poll_timeout" envconfig:"TELEGRAM_POLL_TIMEOUT"`
	PollInterval  time.Duration `yaml:"poll_interval" envconfig:"TELEGRAM_POLL_INTERVAL"`
	ErrorBackoff  time.Duration `yaml:"error_backoff" envconfig:"TELEGRAM_ERROR_BACKOFF"`
	Debug         bool          `yaml:"debug" envconfig:"TELEGRAM_DEBUG"`
}

// StorageConfig holds filesystem storage configuration.
type StorageConfig struct {
	TempPath string `yaml:"temp_path" envconfig:"TEMP_DIR"`
}

// PipelineConfig holds per-request limits.
type PipelineConfig struct {
	MaxFileSize      int64 `yaml:"max_file_size" envconfig:"MAX_FILE_SIZE"`
	FetchConcurrency int   `yaml:"fetch_concurrency" envconfig:"MAX_CONCURRENT_DOWNLOADS"`
	MaxAssets        int   `yaml:"max_assets" envconfig:"MAX_ASSETS"`
}

// DownloadConfig holds page and media HTTP settings.
type DownloadConfig struct {
	Timeout       time.Duration `yaml:"timeout" envconfig:"DOWNLOAD_TIMEOUT"`
	UserAgent     string        `yaml:"user_agent" envconfig:"DOWNLOAD_USER_AGENT"`
	Proxies       []string      `yaml:"proxies" envconfig:"PROXY_LIST"`
	ProxyUsername string        `yaml:"proxy_username" envconfig:"PROXY_USERNAME"`
	ProxyPassword string        `yaml:"proxy_password" envconfig:"PROXY_PASSWORD"`
	RateRequests  int           `yaml:"rate_requests" envconfig:"DOWNLOAD_RATE_REQUESTS"`
	RateWindow    time.Duration `yaml:"rate_window" envconfig:"DOWNLOAD_RATE_WINDOW"`
	MaxPageBytes  int64         `yaml:"max_page_bytes" envconfig:"DOWNLOAD_MAX_PAGE_BYTES"`
}

// YtDLPConfig holds media tool settings.
type YtDLPConfig struct {
	Binary  string        `yaml:"binary" envconfig:"YTDLP_PATH"`
	Timeout time.Duration `yaml:"timeout" envconfig:"YTDLP_TIMEOUT"`
	Format  string        `yaml:"format" envconfig:"YTDLP_FORMAT"`
}

// WorkerConfig holds the global request pool configuration.
type WorkerConfig struct {
	Count     int `yaml:"count" envconfig:"WORKER_COUNT"`
	QueueSize int `yaml:"queue_size" envconfig:"WORKER_QUEUE_SIZE"`
}

// HistoryConfig holds outcome history persistence.
type HistoryConfig struct {
	SQLitePath    string `yaml:"sqlite_path" envconfig:"HISTORY_SQLITE_PATH"`
	RetentionDays int    `yaml:"retention_days" envconfig:"HISTORY_RETENTION_DAYS"`
}

// Retention returns how long outcomes are kept. Zero keeps them forever.
func (c HistoryConfig) Retention() time.Duration {
	if c.RetentionDays <= 0 {
		return 0
	}
	return time.Duration(c.RetentionDays) * 24 * time.Hour
}

// ArchiveConfig holds optional S3 archiving of delivered files.
type ArchiveConfig struct {
	Bucket   string `yaml:"bucket" envconfig:"S3_BUCKET_NAME"`
	Region   string `yaml:"region" envconfig:"AWS_REGION"`
	Prefix   string `yaml:"prefix" envconfig:"S3_PREFIX"`
	Endpoint string `yaml:"endpoint" envconfig:"S3_ENDPOINT"`
}

// Enabled reports whether a bucket is configured.
func (c ArchiveConfig) Enabled() bool {
	return strings.TrimSpace(c.Bucket) != ""
}

// JanitorConfig holds the temp directory sweep schedule.
type JanitorConfig struct {
	Schedule string        `yaml:"schedule" envconfig:"JANITOR_SCHEDULE"`
	MaxAge   time.Duration `yaml:"max_age" envconfig:"JANITOR_MAX_AGE"`
}

// Default returns the configuration used when neither file nor environment set a value.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         5000,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		Telegram: TelegramConfig{
			Mode:         ModePolling,
			PollTimeout:  30,
			PollInterval: time.Second,
			ErrorBackoff: 5 * time.Second,
		},
		Storage: StorageConfig{
			TempPath: "temp",
		},
		Pipeline: PipelineConfig{
			MaxFileSize:      50 * 1024 * 1024, // 50MB Telegram limit
			FetchConcurrency: 3,
			MaxAssets:        5,
		},
		Download: DownloadConfig{
			Timeout:      30 * time.Second,
			UserAgent:    "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
			RateRequests: 10,
			RateWindow:   10 * time.Second,
			MaxPageBytes: 8 * 1024 * 1024,
		},
		YtDLP: YtDLPConfig{
			Binary:  "yt-dlp",
			Timeout: 120 * time.Second,
			Format:  "best[ext=mp4]/best[ext=jpg]/best[ext=png]/best",
		},
		Worker: WorkerConfig{
			Count:     4,
			QueueSize: 64,
		},
		History: HistoryConfig{
			SQLitePath:    "igrabba.db",
			RetentionDays: 30,
		},
		Archive: ArchiveConfig{
			Region: "us-east-1",
			Prefix: "instagram",
		},
		Janitor: JanitorConfig{
			Schedule: "@every 10m",
			MaxAge:   30 * time.Minute,
		},
	}
}

// Load reads configuration from defaults, an optional YAML file and environment variables.
// Environment variables override file values, file values override defaults.
func Load(configPath string) (*Config, error) {
	cfg := Default()

	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("process environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// Validate checks that required configuration values are set.
func (c *Config) Validate() error {
	if c.Telegram.Token == "" {
		return fmt.Errorf("TELEGRAM_TOKEN is required")
	}
	if c.Telegram.Mode != ModePolling && c.Telegram.Mode != ModeWebhook {
		return fmt.Errorf("TELEGRAM_MODE must be %q or %q", ModePolling, ModeWebhook)
	}
	if c.Storage.TempPath == "" {
		return fmt.Errorf("TEMP_DIR is required")
	}
	if c.Pipeline.MaxFileSize <= 0 {
		return fmt.Errorf("MAX_FILE_SIZE must be positive")
	}
	if c.Pipeline.FetchConcurrency <= 0 {
		return fmt.Errorf("MAX_CONCURRENT_DOWNLOADS must be positive")
	}
	if c.Pipeline.MaxAssets <= 0 {
		return fmt.Errorf("MAX_ASSETS must be positive")
	}
	return nil
}

// Address returns the server address in host:port format.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
