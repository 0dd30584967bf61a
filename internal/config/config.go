package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// Config is resolved in three layers: defaults, then the optional YAML file
// named by LEDGER_CONFIG, then environment variables.
type Config struct {
	// Logging
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	// HTTP Server
	Port               string `yaml:"port"`
	RateLimitPerMinute int    `yaml:"rate_limit_per_minute"`

	// Storage
	DataBackend    string        `yaml:"data_backend"`
	SQLiteDBPath   string        `yaml:"sqlite_db_path"`
	StorageTimeout time.Duration `yaml:"storage_timeout"`
	CacheTTL       time.Duration `yaml:"cache_ttl"`

	// AMQP. An empty URL disables posting events.
	AMQPURL      string `yaml:"amqp_url"`
	AMQPExchange string `yaml:"amqp_exchange"`
	AMQPQueue    string `yaml:"amqp_queue"`

	// Google Sheets mirror
	GoogleSpreadsheetID string `yaml:"google_spreadsheet_id"`
	GoogleSheetName     string `yaml:"google_sheet_name"`

	// Scheduler
	SchedulerCron        string `yaml:"scheduler_cron"`
	SchedulerRunOnStart  bool   `yaml:"scheduler_run_on_start"`
	SchedulerConcurrency int    `yaml:"scheduler_concurrency"`
	SchedulerTimezone    string `yaml:"scheduler_timezone"`
}

var validBackends = []string{"memory", "sqlite"}

func defaults() *Config {
	return &Config{
		LogLevel:             "info",
		LogFormat:            "text",
		Port:                 "8081",
		RateLimitPerMinute:   120,
		DataBackend:          "memory",
		SQLiteDBPath:         "./data/ledger.db",
		StorageTimeout:       5 * time.Second,
		CacheTTL:             30 * time.Second,
		AMQPExchange:         "ledger",
		AMQPQueue:            "income_posted",
		GoogleSheetName:      "Income",
		SchedulerCron:        "5 0 * * *",
		SchedulerRunOnStart:  true,
		SchedulerConcurrency: 4,
		SchedulerTimezone:    "UTC",
	}
}

// Load resolves the configuration. It fails only when LEDGER_CONFIG names
// a file that cannot be read or parsed; malformed environment values fall
// back to the previous layer.
func Load() (*Config, error) {
	cfg := defaults()

	if path := strings.TrimSpace(os.Getenv("LEDGER_CONFIG")); path != "" {
		if err := cfg.applyFile(path); err != nil {
			return nil, err
		}
	}

	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)
	cfg.LogFormat = getEnv("LOG_FORMAT", cfg.LogFormat)
	cfg.Port = getEnv("PORT", cfg.Port)
	cfg.RateLimitPerMinute = getEnvInt("RATE_LIMIT_PER_MINUTE", cfg.RateLimitPerMinute)
	cfg.DataBackend = getEnv("DATA_BACKEND", cfg.DataBackend)
	cfg.SQLiteDBPath = getEnv("SQLITE_DB_PATH", cfg.SQLiteDBPath)
	cfg.StorageTimeout = getEnvDuration("STORAGE_TIMEOUT", cfg.StorageTimeout)
	cfg.CacheTTL = getEnvDuration("CACHE_TTL", cfg.CacheTTL)
	cfg.AMQPURL = getEnv("AMQP_URL", cfg.AMQPURL)
	cfg.AMQPExchange = getEnv("AMQP_EXCHANGE", cfg.AMQPExchange)
	cfg.AMQPQueue = getEnv("AMQP_QUEUE", cfg.AMQPQueue)
	cfg.GoogleSpreadsheetID = getEnv("GOOGLE_SPREADSHEET_ID", cfg.GoogleSpreadsheetID)
	cfg.GoogleSheetName = getEnv("GOOGLE_SHEET_NAME", cfg.GoogleSheetName)
	cfg.SchedulerCron = getEnv("SCHEDULER_CRON", cfg.SchedulerCron)
	cfg.SchedulerRunOnStart = getEnvBool("SCHEDULER_RUN_ON_START", cfg.SchedulerRunOnStart)
	cfg.SchedulerConcurrency = getEnvInt("SCHEDULER_CONCURRENCY", cfg.SchedulerConcurrency)
	cfg.SchedulerTimezone = getEnv("SCHEDULER_TIMEZONE", cfg.SchedulerTimezone)

	return cfg, nil
}

// applyFile overlays the keys present in the YAML file.
func (c *Config) applyFile(path string) error {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

// Location is the scheduler's time zone, UTC when unset or unknown.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.SchedulerTimezone)
	if err != nil || c.SchedulerTimezone == "" {
		return time.UTC
	}
	return loc
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		errors = append(errors, fmt.Sprintf("invalid log level '%s': must be one of debug, info, warn, error", c.LogLevel))
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		errors = append(errors, fmt.Sprintf("invalid log format '%s': must be text or json", c.LogFormat))
	}

	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	if c.RateLimitPerMinute < 1 {
		errors = append(errors, fmt.Sprintf("invalid rate limit %d: must be at least 1 request per minute", c.RateLimitPerMinute))
	}

	if !slices.Contains(validBackends, c.DataBackend) {
		errors = append(errors, fmt.Sprintf("invalid data backend '%s': must be one of %v", c.DataBackend, validBackends))
	}

	if c.DataBackend == "sqlite" {
		if c.SQLiteDBPath == "" {
			errors = append(errors, "SQLite database path cannot be empty when using sqlite backend")
		} else {
			dir := filepath.Dir(c.SQLiteDBPath)
			if dir != "." && dir != "" {
				if _, err := os.Stat(dir); os.IsNotExist(err) {
					if err := os.MkdirAll(dir, 0755); err != nil {
						errors = append(errors, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
					}
				}
			}
		}
	}

	if c.StorageTimeout < 100*time.Millisecond || c.StorageTimeout > time.Minute {
		errors = append(errors, fmt.Sprintf("invalid storage timeout %v: must be between 100ms and 1m", c.StorageTimeout))
	}
	if c.CacheTTL < 0 || c.CacheTTL > time.Hour {
		errors = append(errors, fmt.Sprintf("invalid cache TTL %v: must be between 0 and 1h", c.CacheTTL))
	}

	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			errors = append(errors, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}

	if _, err := cron.ParseStandard(c.SchedulerCron); err != nil {
		errors = append(errors, fmt.Sprintf("invalid scheduler cron '%s': %v", c.SchedulerCron, err))
	}
	if c.SchedulerConcurrency < 1 || c.SchedulerConcurrency > 64 {
		errors = append(errors, fmt.Sprintf("invalid scheduler concurrency %d: must be between 1 and 64", c.SchedulerConcurrency))
	}
	if _, err := time.LoadLocation(c.SchedulerTimezone); err != nil {
		errors = append(errors, fmt.Sprintf("invalid scheduler timezone '%s': %v", c.SchedulerTimezone, err))
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
