// Package config manages environment variables.
//
// It reads variables (optionally from a `.env` file), loads them into
// structured Go types and validates that required values are present so
// they can be reused across the application runtime.
//
// Responsibilities:
//   - Load environment variables (optionally from a `.env` file).
//   - Map env vars into a structured Go config (structs).
//   - Validate required values so the app fails fast on bad/missing config.
//   - Provide sane defaults for optional config blocks (e.g. observability).
//   - Answer "are we in development?" and "which build is this?".
package config

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	// Side-effect import: if a `.env` file exists, it is loaded into the
	// process env before anything reads from it.
	_ "github.com/joho/godotenv/autoload"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix is the prefix of every variable read by Load.
//
// Nesting is expressed with a double underscore:
//
//	UWECECA_DATABASE__HOST     -> database.host
//	UWECECA_DATABASE__SSL_MODE -> database.ssl_mode
const EnvPrefix = "UWECECA_"

// Config is the root configuration object for the application.
//
// Observability is a pointer because it is optional. If not provided,
// defaults are injected by Load.
type Config struct {
	Primary       Primary              `koanf:"primary"`
	Database      DatabaseConfig       `koanf:"database" validate:"required"`
	Observability *ObservabilityConfig `koanf:"observability"`
}

// Primary holds top-level information about the runtime environment.
// Env defaults to the value of Current() when unset.
type Primary struct {
	Env string `koanf:"env" validate:"omitempty,oneof=development production local test"`
}

// DatabaseConfig contains PostgreSQL connection parameters and pool settings.
//
// URL, when set, wins over the individual fields.
type DatabaseConfig struct {
	URL             string        `koanf:"url" validate:"omitempty,url"`
	Host            string        `koanf:"host" validate:"required_without=URL"`
	Port            int           `koanf:"port" validate:"omitempty,min=1,max=65535"`
	User            string        `koanf:"user" validate:"required_without=URL"`
	Password        string        `koanf:"password"`
	Name            string        `koanf:"name" validate:"required_without=URL"`
	SSLMode         string        `koanf:"ssl_mode" validate:"omitempty,oneof=disable allow prefer require verify-ca verify-full"`
	MaxOpenConns    int           `koanf:"max_open_conns" validate:"min=0"`
	MaxIdleConns    int           `koanf:"max_idle_conns" validate:"min=0"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `koanf:"conn_max_idle_time"`
}

// DSN returns the connection string for this config.
//
// The password is URL-escaped so that characters like ':' or '@' do not
// break the URL structure, and host/port are joined IPv6-safely.
func (c *DatabaseConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}

	port := c.Port
	if port == 0 {
		port = 5432
	}
	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}

	hostPort := net.JoinHostPort(c.Host, strconv.Itoa(port))
	userInfo := url.QueryEscape(c.User)
	if c.Password != "" {
		userInfo += ":" + url.QueryEscape(c.Password)
	}

	return fmt.Sprintf("postgres://%s@%s/%s?sslmode=%s", userInfo, hostPort, c.Name, sslMode)
}

// Load reads configuration from environment variables, unmarshals it into
// Config, validates it and applies defaults.
//
// Unlike a typical main-package loader it never exits the process; callers
// decide what a bad config means.
func Load() (*Config, error) {
	k := koanf.New(".")

	err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		key := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
		return strings.ReplaceAll(key, "__", ".")
	}), nil)
	if err != nil {
		return nil, fmt.Errorf("loading env variables: %w", err)
	}

	mainConfig := &Config{}
	if err := k.Unmarshal("", mainConfig); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	if mainConfig.Primary.Env == "" {
		mainConfig.Primary.Env = Current().String()
	}

	validate := validator.New()
	if err := validate.Struct(mainConfig); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	if mainConfig.Observability == nil {
		mainConfig.Observability = DefaultObservabilityConfig()
	}

	// Service name and environment always follow the primary config so logs
	// and traces are labelled consistently.
	mainConfig.Observability.ServiceName = "dblayer"
	mainConfig.Observability.Environment = mainConfig.Primary.Env

	if err := mainConfig.Observability.Validate(); err != nil {
		return nil, fmt.Errorf("invalid observability config: %w", err)
	}

	return mainConfig, nil
}
