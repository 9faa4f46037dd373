package config

import (
	"log"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the overall application configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Locale   LocaleConfig   `yaml:"locale"`
	Identity IdentityConfig `yaml:"identity"`
	Events   EventsConfig   `yaml:"events"`
	Auth     AuthConfig     `yaml:"auth"`
	Quota    QuotaConfig    `yaml:"quota"`
}

// ServerConfig holds the server-related configuration.
type ServerConfig struct {
	Port            int     `yaml:"port"`
	RequestIPHeader string  `yaml:"request_ip_header"`
	RateLimitPerSec float64 `yaml:"rate_limit_per_sec"`
	RateLimitBurst  int     `yaml:"rate_limit_burst"`
	CacheTTLSeconds int     `yaml:"cache_ttl_seconds"`
	RequestTimeout  int     `yaml:"request_timeout_seconds"`
}

// DatabaseConfig holds the database connection configuration.
type DatabaseConfig struct {
	DSN                    string `yaml:"dsn"`
	MaxOpenConns           int    `yaml:"max_open_conns"`
	MaxIdleConns           int    `yaml:"max_idle_conns"`
	ConnMaxLifetimeMinutes int    `yaml:"conn_max_lifetime_minutes"`
}

// LocaleConfig holds the default zone used for all civil-time conversions.
type LocaleConfig struct {
	Timezone string `yaml:"timezone"`
}

// IdentityConfig holds the connection settings for the identity collaborator.
type IdentityConfig struct {
	BaseURL         string        `yaml:"base_url"`
	TimeoutSeconds  int           `yaml:"timeout_seconds"`
	Timeout         time.Duration `yaml:"-"` // Ignored by YAML parser
	CacheTTLSeconds int           `yaml:"cache_ttl_seconds"`
}

// EventsConfig holds the connection settings for the event-link collaborator.
type EventsConfig struct {
	BaseURL        string        `yaml:"base_url"`
	TimeoutSeconds int           `yaml:"timeout_seconds"`
	Timeout        time.Duration `yaml:"-"`
}

// AuthConfig holds the settings for validating session bearer tokens.
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
}

// QuotaConfig holds the location and reload cadence of the quota table.
type QuotaConfig struct {
	Path            string        `yaml:"path"`
	ReloadSeconds   int           `yaml:"reload_seconds"`
	Reload          time.Duration `yaml:"-"`
	WatchFileEvents bool          `yaml:"watch_file_events"`
}

// Load reads the configuration from the given path.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg Config
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, err
	}

	if cfg.Server.RateLimitPerSec <= 0 {
		cfg.Server.RateLimitPerSec = 10
	}
	if cfg.Server.RateLimitBurst <= 0 {
		cfg.Server.RateLimitBurst = 5
	}
	if cfg.Server.CacheTTLSeconds <= 0 {
		cfg.Server.CacheTTLSeconds = 10
	}
	if cfg.Server.RequestTimeout <= 0 {
		cfg.Server.RequestTimeout = 15
	}

	if cfg.Locale.Timezone == "" {
		log.Printf("locale.timezone is not set; defaulting to Europe/Oslo")
		cfg.Locale.Timezone = "Europe/Oslo"
	}

	if cfg.Identity.TimeoutSeconds <= 0 {
		cfg.Identity.TimeoutSeconds = 5
	}
	cfg.Identity.Timeout = time.Duration(cfg.Identity.TimeoutSeconds) * time.Second
	if cfg.Identity.CacheTTLSeconds <= 0 {
		cfg.Identity.CacheTTLSeconds = 30
	}

	if cfg.Events.TimeoutSeconds <= 0 {
		cfg.Events.TimeoutSeconds = 5
	}
	cfg.Events.Timeout = time.Duration(cfg.Events.TimeoutSeconds) * time.Second

	if cfg.Quota.ReloadSeconds <= 0 {
		cfg.Quota.ReloadSeconds = 300
	}
	cfg.Quota.Reload = time.Duration(cfg.Quota.ReloadSeconds) * time.Second

	return &cfg, nil
}
