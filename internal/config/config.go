package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config represents the complete application configuration.
// Keys are derived from field names: LICENSE_SERVER_ADDR, LICENSE_LICENSING_TRIAL_PERIOD_DAYS.
type Config struct {
	Server    ServerConfig    `split_words:"true"`
	Database  DatabaseConfig  `split_words:"true"`
	Redis     RedisConfig     `split_words:"true"`
	Licensing LicensingConfig `split_words:"true"`
	Auth      AuthConfig      `split_words:"true"`
	RateLimit RateLimitConfig `split_words:"true"`
	Email     EmailConfig     `split_words:"true"`
	Sheets    SheetsConfig    `split_words:"true"`
	Logging   LoggingConfig   `split_words:"true"`
	Tracing   TracingConfig   `split_words:"true"`
}

type ServerConfig struct {
	Addr            string        `split_words:"true" default:":8080"`
	ReadTimeout     time.Duration `split_words:"true" default:"15s"`
	WriteTimeout    time.Duration `split_words:"true" default:"15s"`
	IdleTimeout     time.Duration `split_words:"true" default:"60s"`
	ShutdownTimeout time.Duration `split_words:"true" default:"15s"`
	BodyLimit       int           `split_words:"true" default:"1048576"`
	// ProxyHeader carries the client address, honoured only from TrustedProxies.
	ProxyHeader    string   `split_words:"true" default:"X-Forwarded-For"`
	TrustedProxies []string `split_words:"true"`
}

type DatabaseConfig struct {
	Driver    string `split_words:"true" default:"sqlite"`
	Path      string `split_words:"true" default:"data/license.db"`
	MongoURI  string `split_words:"true" default:"mongodb://localhost:27017"`
	MongoName string `split_words:"true" default:"licenses"`
}

// RedisConfig enables the distributed per-license lock when Addr is set.
type RedisConfig struct {
	Addr       string        `split_words:"true"`
	Password   string        `split_words:"true"`
	DB         int           `split_words:"true" default:"0"`
	LockExpiry time.Duration `split_words:"true" default:"10s"`
	LockTries  int           `split_words:"true" default:"32"`
}

type LicensingConfig struct {
	KeyPrefix                  string `split_words:"true" default:"VM"`
	TrialPeriodDays            int    `split_words:"true" default:"7"`
	DefaultMaxDevices          int    `split_words:"true" default:"1"`
	DefaultLicenseDurationDays int    `split_words:"true" default:"365"`
	TrialPurgeAfterDays        int    `split_words:"true" default:"90"`
}

type AuthConfig struct {
	JWTSecret     string        `split_words:"true"`
	TokenTTL      time.Duration `split_words:"true" default:"24h"`
	AdminName     string        `split_words:"true" default:"Administrator"`
	AdminEmail    string        `split_words:"true" default:"admin@example.com"`
	AdminPassword string        `split_words:"true" default:"admin"`
}

type RateLimitConfig struct {
	Enabled bool    `split_words:"true" default:"true"`
	RPS     float64 `split_words:"true" default:"5"`
	Burst   int     `split_words:"true" default:"20"`
}

type EmailConfig struct {
	Enabled  bool   `split_words:"true" default:"false"`
	Host     string `split_words:"true"`
	Port     int    `split_words:"true" default:"587"`
	User     string `split_words:"true"`
	Password string `split_words:"true"`
	From     string `split_words:"true" default:"noreply@example.com"`
}

type SheetsConfig struct {
	Enabled         bool   `split_words:"true" default:"false"`
	CredentialsPath string `split_words:"true"`
	SpreadsheetID   string `split_words:"true"`
	SheetName       string `split_words:"true" default:"Licenses"`
}

type LoggingConfig struct {
	Level       string `split_words:"true" default:"info"`
	Development bool   `split_words:"true" default:"false"`
}

type TracingConfig struct {
	Enabled     bool    `split_words:"true" default:"false"`
	SampleRatio float64 `split_words:"true" default:"1"`
}

// Load reads configuration from LICENSE_* environment variables and validates it.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("LICENSE", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	var errs []error

	switch c.Database.Driver {
	case "sqlite", "mongo":
	default:
		errs = append(errs, fmt.Errorf("unsupported database driver %q", c.Database.Driver))
	}
	if strings.TrimSpace(c.Auth.JWTSecret) == "" {
		errs = append(errs, errors.New("auth jwt secret is required"))
	}
	if c.Licensing.TrialPeriodDays < 1 || c.Licensing.TrialPeriodDays > 30 {
		errs = append(errs, fmt.Errorf("trial period days must be 1-30, got %d", c.Licensing.TrialPeriodDays))
	}
	if c.Licensing.DefaultMaxDevices < 1 || c.Licensing.DefaultMaxDevices > 10 {
		errs = append(errs, fmt.Errorf("default max devices must be 1-10, got %d", c.Licensing.DefaultMaxDevices))
	}
	if c.Licensing.DefaultLicenseDurationDays < 1 || c.Licensing.DefaultLicenseDurationDays > 3650 {
		errs = append(errs, fmt.Errorf("default license duration must be 1-3650 days, got %d", c.Licensing.DefaultLicenseDurationDays))
	}
	if c.Licensing.TrialPurgeAfterDays < 1 {
		errs = append(errs, errors.New("trial purge age must be positive"))
	}
	if c.RateLimit.Enabled && (c.RateLimit.RPS <= 0 || c.RateLimit.Burst < 1) {
		errs = append(errs, errors.New("rate limit rps and burst must be positive"))
	}
	if c.Email.Enabled && c.Email.Host == "" {
		errs = append(errs, errors.New("email host is required when email is enabled"))
	}
	if c.Sheets.Enabled && (c.Sheets.CredentialsPath == "" || c.Sheets.SpreadsheetID == "") {
		errs = append(errs, errors.New("sheets credentials path and spreadsheet id are required when sheets sync is enabled"))
	}

	return errors.Join(errs...)
}
