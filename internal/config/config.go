package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds environment-driven configuration. It is read once at startup.
type Config struct {
	Clockify struct {
		APIKey         string
		BaseURL        string // default: https://api.clockify.me/api/v1
		ReportsURL     string // default: BaseURL
		Timeout        time.Duration
		PageSize       int
		MaxPages       int
		RateLimit      float64 // requests per second, 0 disables pacing
		ReportPageSize int
		ReportMaxPages int
		ReportWindow   time.Duration
	}
	DB struct {
		Driver string // mysql (default), postgres, sqlite
		DSN    string // e.g., user:pass@tcp(host:3306)/dbname?parseTime=true
	}
	Sync struct {
		Timezone          string // e.g., UTC (default), Europe/Berlin
		Schedule          string // cron expression; empty disables the scheduler
		Lookback          time.Duration
		CategoryRules     string
		CategoryRulesFile string
		LockTTL           time.Duration // refreshed while a Redis lock is held
	}
	HTTP struct {
		Addr         string
		AllowOrigins []string
	}
	Redis struct {
		Addr     string // empty keeps the run lock in-process
		Password string
		DB       int
	}
	Log struct {
		Level  string
		Format string
		File   string
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("CLOCKIFY_BASE_URL", "https://api.clockify.me/api/v1")
	v.SetDefault("CLOCKIFY_TIMEOUT", 10*time.Second)
	v.SetDefault("CLOCKIFY_PAGE_SIZE", 200)
	v.SetDefault("CLOCKIFY_MAX_PAGES", 50)
	v.SetDefault("CLOCKIFY_RATE_LIMIT", 10.0)
	v.SetDefault("CLOCKIFY_REPORT_PAGE_SIZE", 1000)
	v.SetDefault("CLOCKIFY_REPORT_MAX_PAGES", 100)
	v.SetDefault("CLOCKIFY_REPORT_WINDOW", 4*7*24*time.Hour)

	v.SetDefault("DB_DRIVER", "mysql")

	v.SetDefault("SYNC_TZ", "UTC")
	v.SetDefault("SYNC_SCHEDULE", "")
	v.SetDefault("SYNC_LOOKBACK", 24*time.Hour)
	v.SetDefault("SYNC_LOCK_TTL", time.Hour)

	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("CORS_ALLOW_ORIGINS", "*")

	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "text")
}

// Load reads configuration from a .env file (if present), an optional
// CONFIG_FILE and environment variables, in increasing precedence.
func Load() (Config, error) {
	var cfg Config

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return cfg, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return cfg, fmt.Errorf("read config file %s: %w", path, err)
		}
	}

	cfg.Clockify.APIKey = strings.TrimSpace(v.GetString("CLOCKIFY_API_KEY"))
	cfg.Clockify.BaseURL = strings.TrimRight(v.GetString("CLOCKIFY_BASE_URL"), "/")
	cfg.Clockify.ReportsURL = strings.TrimRight(v.GetString("CLOCKIFY_REPORTS_URL"), "/")
	cfg.Clockify.Timeout = v.GetDuration("CLOCKIFY_TIMEOUT")
	cfg.Clockify.PageSize = v.GetInt("CLOCKIFY_PAGE_SIZE")
	cfg.Clockify.MaxPages = v.GetInt("CLOCKIFY_MAX_PAGES")
	cfg.Clockify.RateLimit = v.GetFloat64("CLOCKIFY_RATE_LIMIT")
	cfg.Clockify.ReportPageSize = v.GetInt("CLOCKIFY_REPORT_PAGE_SIZE")
	cfg.Clockify.ReportMaxPages = v.GetInt("CLOCKIFY_REPORT_MAX_PAGES")
	cfg.Clockify.ReportWindow = v.GetDuration("CLOCKIFY_REPORT_WINDOW")

	cfg.DB.Driver = strings.ToLower(v.GetString("DB_DRIVER"))
	cfg.DB.DSN = v.GetString("DB_DSN")
	if cfg.DB.DSN == "" {
		cfg.DB.DSN = v.GetString("MYSQL_DSN")
	}

	cfg.Sync.Timezone = v.GetString("SYNC_TZ")
	cfg.Sync.Schedule = strings.TrimSpace(v.GetString("SYNC_SCHEDULE"))
	cfg.Sync.Lookback = v.GetDuration("SYNC_LOOKBACK")
	cfg.Sync.CategoryRules = v.GetString("CATEGORY_RULES")
	cfg.Sync.CategoryRulesFile = v.GetString("CATEGORY_RULES_FILE")
	cfg.Sync.LockTTL = v.GetDuration("SYNC_LOCK_TTL")

	cfg.HTTP.Addr = v.GetString("HTTP_ADDR")
	cfg.HTTP.AllowOrigins = splitList(v.GetString("CORS_ALLOW_ORIGINS"))

	cfg.Redis.Addr = v.GetString("REDIS_ADDR")
	cfg.Redis.Password = v.GetString("REDIS_PASSWORD")
	cfg.Redis.DB = v.GetInt("REDIS_DB")

	cfg.Log.Level = v.GetString("LOG_LEVEL")
	cfg.Log.Format = v.GetString("LOG_FORMAT")
	cfg.Log.File = v.GetString("LOG_FILE")

	return cfg, cfg.Validate()
}

// Validate checks settings that would otherwise fail late. The API key is
// not checked here: a missing key is reported per sync run.
func (c Config) Validate() error {
	var errs []string
	switch c.DB.Driver {
	case "mysql", "postgres", "postgresql", "sqlite", "sqlite3":
	default:
		errs = append(errs, fmt.Sprintf("DB_DRIVER %q is not supported", c.DB.Driver))
	}
	if c.DB.DSN == "" {
		errs = append(errs, "DB_DSN is required")
	}
	if _, err := time.LoadLocation(c.Sync.Timezone); err != nil {
		errs = append(errs, fmt.Sprintf("SYNC_TZ %q: %v", c.Sync.Timezone, err))
	}
	if c.Clockify.Timeout <= 0 {
		errs = append(errs, "CLOCKIFY_TIMEOUT must be positive")
	}
	if c.Clockify.PageSize <= 0 || c.Clockify.ReportPageSize <= 0 {
		errs = append(errs, "page sizes must be positive")
	}
	if c.Clockify.RateLimit < 0 {
		errs = append(errs, "CLOCKIFY_RATE_LIMIT must not be negative")
	}
	if c.Sync.Lookback <= 0 {
		errs = append(errs, "SYNC_LOOKBACK must be positive")
	}
	if len(errs) > 0 {
		return errors.New("invalid configuration: " + strings.Join(errs, "; "))
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
