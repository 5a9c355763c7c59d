/*
config.go - Server configuration

PURPOSE:
  Loads the server settings from an optional YAML file, a .env file and
  REVENUE_* environment variables, in increasing order of precedence.

KEYS:
  http.port               REVENUE_HTTP_PORT               8080
  http.allowed_origins    REVENUE_HTTP_ALLOWED_ORIGINS    localhost dev origins
  database.path           REVENUE_DATABASE_PATH           revenue.db
  log.level               REVENUE_LOG_LEVEL               info
  log.encoding            REVENUE_LOG_ENCODING            json
  invoice.prefixes.<line> REVENUE_INVOICE_PREFIXES_<LINE> PRO- CON- GRW- DIG-
  scheduler.enabled       REVENUE_SCHEDULER_ENABLED       false
  scheduler.spec          REVENUE_SCHEDULER_SPEC          "0 2 1 * *"
  metrics.enabled         REVENUE_METRICS_ENABLED         true
  catalog.path            REVENUE_CATALOG_PATH            (none)

  Comma-separated env values are split into lists.

SEE ALSO:
  - cmd/server/main.go: consumes Config
*/
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"
	"github.com/warp/revenue-engine/revenue"
)

const envPrefix = "REVENUE"

// Config holds the server configuration.
type Config struct {
	HTTP      HTTPConfig      `mapstructure:"http"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Log       LogConfig       `mapstructure:"log"`
	Invoice   InvoiceConfig   `mapstructure:"invoice"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Catalog   CatalogConfig   `mapstructure:"catalog"`
}

type HTTPConfig struct {
	Port           int      `mapstructure:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type DatabaseConfig struct {
	// Path of the SQLite file; ":memory:" for an in-memory database.
	Path string `mapstructure:"path"`
}

type LogConfig struct {
	Level    string `mapstructure:"level"`
	Encoding string `mapstructure:"encoding"`
}

type InvoiceConfig struct {
	// Prefixes maps a line name to its invoice number prefix.
	Prefixes map[string]string `mapstructure:"prefixes"`
}

type SchedulerConfig struct {
	Enabled bool `mapstructure:"enabled"`
	// Spec is a standard five-field cron expression.
	Spec string `mapstructure:"spec"`
}

type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

type CatalogConfig struct {
	// Path of a JSON catalog imported at startup, if set.
	Path string `mapstructure:"path"`
}

// Load reads the configuration. An empty path searches for revenue.yaml in
// the working directory and tolerates its absence; an explicit path must
// exist. Load does not validate: callers apply their overrides first and
// then call Validate.
func Load(path string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("revenue")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to decode config: %w", err)
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("http.port", 8080)
	v.SetDefault("http.allowed_origins", []string{"http://localhost:5173", "http://localhost:8080"})
	v.SetDefault("database.path", "revenue.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.encoding", "json")
	for line, prefix := range revenue.DefaultPrefixes {
		v.SetDefault("invoice.prefixes."+string(line), prefix)
	}
	v.SetDefault("scheduler.enabled", false)
	v.SetDefault("scheduler.spec", "0 2 1 * *")
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("catalog.path", "")
}

// Validate rejects settings the server cannot start with.
func (c Config) Validate() error {
	if c.HTTP.Port < 1 || c.HTTP.Port > 65535 {
		return fmt.Errorf("invalid http.port %d", c.HTTP.Port)
	}
	if strings.TrimSpace(c.Database.Path) == "" {
		return errors.New("database.path is required")
	}
	for name := range c.Invoice.Prefixes {
		if !revenue.Line(name).Valid() {
			return fmt.Errorf("invoice.prefixes: unknown line %q", name)
		}
	}
	if c.Scheduler.Enabled {
		if _, err := cron.ParseStandard(c.Scheduler.Spec); err != nil {
			return fmt.Errorf("invalid scheduler.spec %q: %w", c.Scheduler.Spec, err)
		}
	}
	return nil
}

// Prefixes returns the invoice prefixes keyed by line.
func (c Config) Prefixes() map[revenue.Line]string {
	out := make(map[revenue.Line]string, len(c.Invoice.Prefixes))
	for name, prefix := range c.Invoice.Prefixes {
		out[revenue.Line(name)] = prefix
	}
	return out
}

// Addr is the listen address for the HTTP server.
func (c Config) Addr() string {
	return fmt.Sprintf(":%d", c.HTTP.Port)
}
