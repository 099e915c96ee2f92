package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	DriverPostgres = "pgx"
	DriverSQLite   = "sqlite3"
)

type Config struct {
	Port string

	DatabaseDriver string
	DatabaseURL    string

	GeminiAPIKey  string
	GeminiModel   string
	OpenAIAPIKey  string
	OpenAIModel   string
	OpenAIBaseURL string
	DefaultEngine string

	BackendTimeout    time.Duration
	MaxRetries        int
	UploadConcurrency int
	WorkspaceDir      string
	MaxArchiveBytes   int64

	TelegramBotToken string
	WebhookURL       string

	LogLevel  string
	LogFormat string
}

var defaults = map[string]any{
	"port":               "8000",
	"database_driver":    DriverPostgres,
	"gemini_model":       "gemini-2.5-flash",
	"openai_model":       "gpt-4o",
	"openai_base_url":    "https://api.openai.com",
	"default_engine":     "gemini",
	"backend_timeout":    "120s",
	"max_retries":        3,
	"upload_concurrency": 4,
	"max_archive_bytes":  int64(512 << 20),
	"log_level":          "info",
	"log_format":         "json",
}

// LoadDotenv reads KEY=VALUE files into the process environment without
// overriding variables that are already set. Missing files are ignored.
func LoadDotenv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

// NewViper returns a viper instance reading the environment, with defaults
// set. Flags bound by the CLI take precedence over the environment.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()
	for k, d := range defaults {
		v.SetDefault(k, d)
	}
	return v
}

// Load reads the environment (after .env) into a Config.
func Load() (*Config, error) {
	if err := LoadDotenv(); err != nil {
		return nil, err
	}
	return FromViper(NewViper())
}

func FromViper(v *viper.Viper) (*Config, error) {
	timeout, err := seconds(v.GetString("backend_timeout"))
	if err != nil {
		return nil, fmt.Errorf("BACKEND_TIMEOUT: %w", err)
	}
	c := &Config{
		Port: strings.TrimSpace(v.GetString("port")),

		DatabaseDriver: strings.ToLower(strings.TrimSpace(v.GetString("database_driver"))),

		GeminiAPIKey:  strings.TrimSpace(v.GetString("gemini_api_key")),
		GeminiModel:   strings.TrimSpace(v.GetString("gemini_model")),
		OpenAIAPIKey:  strings.TrimSpace(v.GetString("openai_api_key")),
		OpenAIModel:   strings.TrimSpace(v.GetString("openai_model")),
		OpenAIBaseURL: strings.TrimRight(strings.TrimSpace(v.GetString("openai_base_url")), "/"),
		DefaultEngine: strings.ToLower(strings.TrimSpace(v.GetString("default_engine"))),

		BackendTimeout:    timeout,
		MaxRetries:        v.GetInt("max_retries"),
		UploadConcurrency: v.GetInt("upload_concurrency"),
		WorkspaceDir:      strings.TrimSpace(v.GetString("workspace_dir")),
		MaxArchiveBytes:   v.GetInt64("max_archive_bytes"),

		TelegramBotToken: strings.TrimSpace(v.GetString("telegram_bot_token")),
		WebhookURL:       strings.TrimSpace(v.GetString("webhook_url")),

		LogLevel:  v.GetString("log_level"),
		LogFormat: v.GetString("log_format"),
	}
	if c.Port == "" {
		c.Port = "8000"
	}
	c.DatabaseURL = resolveDSN(v, c.DatabaseDriver)
	return c, nil
}

// seconds accepts Go durations ("90s", "2m") and bare numbers of seconds.
func seconds(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	if n, err := strconv.Atoi(s); err == nil {
		return time.Duration(n) * time.Second, nil
	}
	return time.ParseDuration(s)
}

// resolveDSN prefers DATABASE_URL. For Postgres the DSN is otherwise built
// from POSTGRES_* / PG* parts; SQLite falls back to a local file.
func resolveDSN(v *viper.Viper, driver string) string {
	if s := strings.TrimSpace(v.GetString("database_url")); s != "" {
		return s
	}
	if driver == DriverSQLite {
		return "file:dents.db?_foreign_keys=on"
	}
	u := &url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(getOr(v, "postgres_user", "dents"), v.GetString("postgres_password")),
		Host:     net.JoinHostPort(getOr(v, "pghost", "db"), getOr(v, "pgport", "5432")),
		Path:     "/" + getOr(v, "postgres_db", "dents"),
		RawQuery: "sslmode=" + getOr(v, "pgsslmode", "disable"),
	}
	return u.String()
}

func getOr(v *viper.Viper, key, def string) string {
	if s := strings.TrimSpace(v.GetString(key)); s != "" {
		return s
	}
	return def
}

// Validate checks settings every command depends on.
func (c *Config) Validate() error {
	var errs []error
	switch c.DatabaseDriver {
	case DriverPostgres, DriverSQLite:
	default:
		errs = append(errs, fmt.Errorf("DATABASE_DRIVER must be %q or %q, got %q", DriverPostgres, DriverSQLite, c.DatabaseDriver))
	}
	if c.DatabaseURL == "" {
		errs = append(errs, errors.New("database DSN is empty: set DATABASE_URL or POSTGRES_* env vars"))
	}
	if c.BackendTimeout < 0 {
		errs = append(errs, errors.New("BACKEND_TIMEOUT must not be negative"))
	}
	if c.MaxRetries < 1 {
		errs = append(errs, errors.New("MAX_RETRIES must be at least 1"))
	}
	if c.UploadConcurrency < 1 {
		errs = append(errs, errors.New("UPLOAD_CONCURRENCY must be at least 1"))
	}
	switch c.DefaultEngine {
	case "gemini", "gpt":
	default:
		errs = append(errs, fmt.Errorf("DEFAULT_ENGINE must be gemini or gpt, got %q", c.DefaultEngine))
	}
	return errors.Join(errs...)
}

// RequireEngine checks that at least one model backend has a key.
func (c *Config) RequireEngine() error {
	if c.GeminiAPIKey == "" && c.OpenAIAPIKey == "" {
		return errors.New("missing required env GEMINI_API_KEY or OPENAI_API_KEY")
	}
	return nil
}

func (c *Config) RequireTelegram() error {
	if c.TelegramBotToken == "" {
		return errors.New("missing required env TELEGRAM_BOT_TOKEN")
	}
	return nil
}

func (c *Config) Addr() string { return "0.0.0.0:" + c.Port }
