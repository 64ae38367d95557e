package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Version is stamped at build time with -ldflags "-X outcode-retriever/config.Version=...".
var Version = "dev"

// Config holds all application configuration. Values come from built-in
// defaults, then config.yaml, then private_config.yaml, then the environment.
type Config struct {
	Requester RequesterConfig `yaml:"requester"`
	Limits    LimitsConfig    `yaml:"limits"`
	Fetch     FetchConfig     `yaml:"fetch"`
	Worker    WorkerConfig    `yaml:"worker"`
	Store     StoreConfig     `yaml:"store"`
	AccessLog AccessLogConfig `yaml:"access_log"`
	Log       LogConfig       `yaml:"logging"`

	Timezone       string `yaml:"timezone"`
	OutcodesFile   string `yaml:"outcodes_file"`
	VocabularyFile string `yaml:"vocabulary_file"`
	IssuesCSV      string `yaml:"issues_csv"`
}

type RequesterConfig struct {
	UserAgent   string `yaml:"user_agent"`
	RequestFrom string `yaml:"request_from"`
}

// LimitsConfig holds per-time-unit call budgets. Nil means unlimited.
type LimitsConfig struct {
	PerSecond *int `yaml:"per_second"`
	PerMinute *int `yaml:"per_minute"`
	PerHour   *int `yaml:"per_hour"`
	PerDay    *int `yaml:"per_day"`
	PerMonth  *int `yaml:"per_month"`
	PerYear   *int `yaml:"per_year"`
}

type FetchConfig struct {
	Mode             string `yaml:"mode"`
	PerPage          int    `yaml:"per_page"`
	PageRetries      int    `yaml:"page_retries"`
	PageRetryPauseMs int    `yaml:"page_retry_pause_ms"`
	IncludeSSTC      bool   `yaml:"include_sstc"`
	HTTPTimeoutMs    int    `yaml:"http_timeout_ms"`
	ChromeBin        string `yaml:"chrome_bin"`
}

type WorkerConfig struct {
	MaxRetries     int `yaml:"max_retries"`
	RetryPauseMs   int `yaml:"retry_pause_ms"`
	MaxConcurrency int `yaml:"max_concurrency"`
}

type StoreConfig struct {
	Backend  string `yaml:"backend"`
	MongoURI string `yaml:"mongo_uri"`
	MongoDB  string `yaml:"mongo_db"`
}

type AccessLogConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
	Table  string `yaml:"table"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Defaults returns the built-in configuration.
func Defaults() *Config {
	return &Config{
		Requester: RequesterConfig{
			UserAgent: "outcode-retriever/" + Version,
		},
		Limits: LimitsConfig{
			PerSecond: intPtr(2),
			PerHour:   intPtr(2000),
		},
		Fetch: FetchConfig{
			Mode:             "http",
			PerPage:          48,
			PageRetries:      3,
			PageRetryPauseMs: 5000,
			IncludeSSTC:      true,
			HTTPTimeoutMs:    30000,
		},
		Worker: WorkerConfig{
			MaxRetries:     3,
			RetryPauseMs:   60000,
			MaxConcurrency: 1,
		},
		Store: StoreConfig{
			Backend:  "mongo",
			MongoURI: "mongodb://localhost:27017",
			MongoDB:  "rightmove",
		},
		AccessLog: AccessLogConfig{
			Driver: "sqlite3",
			DSN:    "./data/access_log.db",
			Table:  "outcode_access_log",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Timezone: "Europe/London",
	}
}

// Load reads the .env file, the YAML config files and the environment, and
// returns a validated Config.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("[config] No .env file found, falling back to system env vars")
	}

	cfg := Defaults()

	for _, path := range []string{
		getEnv("CONFIG_FILE", "config.yaml"),
		getEnv("PRIVATE_CONFIG_FILE", "private_config.yaml"),
	} {
		if err := cfg.mergeFile(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// mergeFile overlays the YAML document at path onto cfg. Keys absent from
// the document leave the current values untouched. A missing file is ignored.
func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("config: read %q: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("config: decode %q: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	overrideString(&c.Requester.UserAgent, "USER_AGENT")
	overrideString(&c.Requester.RequestFrom, "REQUEST_FROM")

	overrideLimit(&c.Limits.PerSecond, "LIMIT_PER_SECOND")
	overrideLimit(&c.Limits.PerMinute, "LIMIT_PER_MINUTE")
	overrideLimit(&c.Limits.PerHour, "LIMIT_PER_HOUR")
	overrideLimit(&c.Limits.PerDay, "LIMIT_PER_DAY")
	overrideLimit(&c.Limits.PerMonth, "LIMIT_PER_MONTH")
	overrideLimit(&c.Limits.PerYear, "LIMIT_PER_YEAR")

	overrideString(&c.Fetch.Mode, "FETCH_MODE")
	overrideInt(&c.Fetch.PerPage, "PER_PAGE")
	overrideInt(&c.Fetch.PageRetries, "PAGE_RETRIES")
	overrideInt(&c.Fetch.PageRetryPauseMs, "PAGE_RETRY_PAUSE_MS")
	overrideBool(&c.Fetch.IncludeSSTC, "INCLUDE_SSTC")
	overrideInt(&c.Fetch.HTTPTimeoutMs, "HTTP_TIMEOUT_MS")
	overrideString(&c.Fetch.ChromeBin, "CHROME_BIN")

	overrideInt(&c.Worker.MaxRetries, "MAX_RETRIES")
	overrideInt(&c.Worker.RetryPauseMs, "RETRY_PAUSE_MS")
	overrideInt(&c.Worker.MaxConcurrency, "MAX_CONCURRENCY")

	overrideString(&c.Store.Backend, "STORE_BACKEND")
	overrideString(&c.Store.MongoURI, "MONGO_URI")
	overrideString(&c.Store.MongoDB, "MONGO_DB")

	overrideString(&c.AccessLog.Driver, "ACCESS_LOG_DRIVER")
	overrideString(&c.AccessLog.DSN, "ACCESS_LOG_DSN")
	overrideString(&c.AccessLog.Table, "ACCESS_LOG_TABLE")

	overrideString(&c.Log.Level, "LOG_LEVEL")
	overrideString(&c.Log.Format, "LOG_FORMAT")

	overrideString(&c.Timezone, "TIMEZONE")
	overrideString(&c.OutcodesFile, "OUTCODES_FILE")
	overrideString(&c.VocabularyFile, "VOCABULARY_FILE")
	overrideString(&c.IssuesCSV, "ISSUES_CSV")
}

// Validate checks enumerations and numeric bounds.
func (c *Config) Validate() error {
	switch c.Fetch.Mode {
	case "http", "browser":
	default:
		return fmt.Errorf("config: unknown fetch mode %q", c.Fetch.Mode)
	}
	switch c.Store.Backend {
	case "mongo", "memory":
	default:
		return fmt.Errorf("config: unknown store backend %q", c.Store.Backend)
	}
	switch c.AccessLog.Driver {
	case "sqlite3", "postgres":
	default:
		return fmt.Errorf("config: unknown access log driver %q", c.AccessLog.Driver)
	}
	if c.Fetch.PerPage <= 0 {
		return fmt.Errorf("config: per_page must be positive, got %d", c.Fetch.PerPage)
	}
	if c.Requester.UserAgent == "" {
		return errors.New("config: user_agent is required")
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}

// Location resolves the configured timezone.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("config: timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

func (c *Config) PageRetryPause() time.Duration {
	return time.Duration(c.Fetch.PageRetryPauseMs) * time.Millisecond
}

func (c *Config) RetryPause() time.Duration {
	return time.Duration(c.Worker.RetryPauseMs) * time.Millisecond
}

func (c *Config) HTTPTimeout() time.Duration {
	return time.Duration(c.Fetch.HTTPTimeoutMs) * time.Millisecond
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func overrideString(dst *string, key string) {
	if val := os.Getenv(key); val != "" {
		*dst = val
	}
}

func overrideInt(dst *int, key string) {
	if val := os.Getenv(key); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			*dst = n
		}
	}
}

func overrideBool(dst *bool, key string) {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(strings.TrimSpace(val)); err == nil {
			*dst = b
		}
	}
}

// overrideLimit treats zero or a negative value as "no limit".
func overrideLimit(dst **int, key string) {
	val := os.Getenv(key)
	if val == "" {
		return
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return
	}
	if n <= 0 {
		*dst = nil
		return
	}
	*dst = &n
}

func intPtr(n int) *int { return &n }
