package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/revenue-engine/revenue"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.HTTP.Port)
	assert.Equal(t, ":8080", cfg.Addr())
	assert.Equal(t, "revenue.db", cfg.Database.Path)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.False(t, cfg.Scheduler.Enabled)
	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, revenue.DefaultPrefixes, cfg.Prefixes())
}

func TestLoad_FileAndEnvOverrides(t *testing.T) {
	// GIVEN: a YAML file and environment overrides
	// WHEN: loading
	// THEN: env beats file, file beats defaults

	path := writeFile(t, "revenue.yaml", `
http:
  port: 9000
database:
  path: /tmp/revenue-test.db
invoice:
  prefixes:
    connect: "C"
scheduler:
  enabled: true
  spec: "@monthly"
`)
	t.Setenv("REVENUE_HTTP_PORT", "9090")
	t.Setenv("REVENUE_HTTP_ALLOWED_ORIGINS", "https://a.example,https://b.example")
	t.Setenv("REVENUE_LOG_LEVEL", "debug")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.HTTP.Port)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.HTTP.AllowedOrigins)
	assert.Equal(t, "/tmp/revenue-test.db", cfg.Database.Path)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.True(t, cfg.Scheduler.Enabled)
	assert.Equal(t, "@monthly", cfg.Scheduler.Spec)

	prefixes := cfg.Prefixes()
	assert.Equal(t, "C", prefixes[revenue.LineConnect])
	assert.Equal(t, "PRO-", prefixes[revenue.LineProsper], "unset lines keep defaults")
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestLoad_LeavesValidationToCaller(t *testing.T) {
	// GIVEN: a file with an empty database path
	// WHEN: loading, then overriding the path the way -db does
	// THEN: Load succeeds and only the unpatched config fails Validate

	path := writeFile(t, "revenue.yaml", `
database:
  path: ""
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Empty(t, cfg.Database.Path)
	assert.Error(t, cfg.Validate())

	cfg.Database.Path = ":memory:"
	assert.NoError(t, cfg.Validate())
}

func TestValidate(t *testing.T) {
	valid := Config{
		HTTP:     HTTPConfig{Port: 8080},
		Database: DatabaseConfig{Path: ":memory:"},
	}
	require.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"port zero", func(c *Config) { c.HTTP.Port = 0 }},
		{"port too large", func(c *Config) { c.HTTP.Port = 70000 }},
		{"empty db path", func(c *Config) { c.Database.Path = "  " }},
		{"unknown prefix line", func(c *Config) { c.Invoice.Prefixes = map[string]string{"retail": "R"} }},
		{"bad cron spec", func(c *Config) {
			c.Scheduler = SchedulerConfig{Enabled: true, Spec: "every tuesday"}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid
			tt.mutate(&c)
			assert.Error(t, c.Validate())
		})
	}
}

func TestValidate_SpecIgnoredWhenDisabled(t *testing.T) {
	c := Config{
		HTTP:      HTTPConfig{Port: 1},
		Database:  DatabaseConfig{Path: "x.db"},
		Scheduler: SchedulerConfig{Enabled: false, Spec: "nonsense"},
	}
	assert.NoError(t, c.Validate())
}
