package relmap

import (
	"net"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	_ "github.com/joho/godotenv/autoload"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// Config holds the structured connection parameters a Conn is built from.
// It is treated as immutable once passed to Open.
//
// Dialect is required. Driver is optional; when empty the effective driver
// identifier degrades to the dialect alone.
type Config struct {
	Dialect  string `koanf:"dialect" validate:"required"`
	Driver   string `koanf:"driver"`
	Username string `koanf:"username"`
	Password string `koanf:"password"`
	Host     string `koanf:"host"`
	Port     int    `koanf:"port"`
	Database string `koanf:"database"`
}

var validate = validator.New()

// Name returns the dialect+driver identifier, e.g. "postgres+pq" or just
// "sqlite" when no driver is set.
func (c Config) Name() string {
	if c.Driver == "" {
		return c.Dialect
	}
	return c.Dialect + "+" + c.Driver
}

// URL assembles the data source name for the configured dialect.
func (c Config) URL() (string, error) {
	if err := validate.Struct(c); err != nil {
		return "", &ConnError{Stage: "config", Err: err}
	}
	switch c.Dialect {
	case "sqlite", "sqlite3":
		// The database field is the file path, or ":memory:".
		return c.Database, nil
	default:
		u := url.URL{
			Scheme: c.Dialect,
			Path:   "/" + c.Database,
		}
		if c.Host != "" {
			if c.Port > 0 {
				u.Host = net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
			} else {
				u.Host = c.Host
			}
		}
		if c.Username != "" {
			u.User = url.UserPassword(c.Username, c.Password)
		}
		return u.String(), nil
	}
}

// driverName maps the dialect to a registered database/sql driver. Unknown
// dialects fall back to the driver field, then the dialect itself, so callers
// can register their own drivers.
func (c Config) driverName() string {
	switch c.Dialect {
	case "postgres", "postgresql":
		return "postgres"
	case "sqlite", "sqlite3":
		return "sqlite"
	default:
		if c.Driver != "" {
			return c.Driver
		}
		return c.Dialect
	}
}

// EnvPrefix is the prefix FromEnv reads connection parameters from, e.g.
// RELMAP_DIALECT, RELMAP_HOST, RELMAP_DATABASE.
const EnvPrefix = "RELMAP_"

// FromEnv loads a Config from environment variables. A .env file in the
// working directory is picked up automatically.
func FromEnv() (Config, error) {
	k := koanf.New(".")
	err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	}), nil)
	if err != nil {
		return Config{}, &ConnError{Stage: "config", Err: err}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, &ConnError{Stage: "config", Err: err}
	}
	if err := validate.Struct(cfg); err != nil {
		return Config{}, &ConnError{Stage: "config", Err: err}
	}
	return cfg, nil
}
