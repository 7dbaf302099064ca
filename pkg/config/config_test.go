package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, 30, cfg.Instagram.RequestsPerMinute)
	assert.Equal(t, "gemini-2.0-flash", cfg.Gemini.Model)
	assert.Equal(t, "state.json", cfg.Monitor.StateFile)
	assert.Equal(t, "accounts.json", cfg.Monitor.AccountsFile)
	assert.Equal(t, 20*time.Second, cfg.Monitor.AccountDelayMin)
	assert.Equal(t, 40*time.Second, cfg.Monitor.AccountDelayMax)
	assert.Equal(t, 465, cfg.SMTP.Port)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestDefaultConfigValidates(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("IGMONITOR_SESSION_ID", "env-session")
	t.Setenv("IGMONITOR_CSRF_TOKEN", "env-csrf")
	t.Setenv("GEMINI_API_KEY", "env-gemini")
	t.Setenv("SMTP_PORT", "587")
	t.Setenv("IGMONITOR_LOG_LEVEL", "debug")

	cfg := DefaultConfig()
	cfg.LoadFromEnv()

	assert.Equal(t, "env-session", cfg.Instagram.SessionID)
	assert.Equal(t, "env-csrf", cfg.Instagram.CSRFToken)
	assert.Equal(t, "env-gemini", cfg.Gemini.APIKey)
	assert.Equal(t, 587, cfg.SMTP.Port)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadFromEnvIgnoresBadPort(t *testing.T) {
	t.Setenv("SMTP_PORT", "not-a-port")

	cfg := DefaultConfig()
	cfg.LoadFromEnv()
	assert.Equal(t, 465, cfg.SMTP.Port)
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
instagram:
  requests_per_minute: 10
gemini:
  model: gemini-2.5-pro
monitor:
  state_file: /var/lib/igmonitor/state.json
logging:
  level: warn
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg := DefaultConfig()
	require.NoError(t, cfg.LoadFromFile(path))

	assert.Equal(t, 10, cfg.Instagram.RequestsPerMinute)
	assert.Equal(t, "gemini-2.5-pro", cfg.Gemini.Model)
	assert.Equal(t, "/var/lib/igmonitor/state.json", cfg.Monitor.StateFile)
	assert.Equal(t, "warn", cfg.Logging.Level)

	// untouched sections keep their defaults
	assert.Equal(t, "accounts.json", cfg.Monitor.AccountsFile)
}

func TestLoadFromFileMissing(t *testing.T) {
	cfg := DefaultConfig()
	err := cfg.LoadFromFile(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestLoadFromFileBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("{{not yaml"), 0o644))

	cfg := DefaultConfig()
	require.Error(t, cfg.LoadFromFile(path))
}

func TestValidateRejectsBadConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing accounts file", func(c *Config) { c.Monitor.AccountsFile = "" }},
		{"missing state file", func(c *Config) { c.Monitor.StateFile = "" }},
		{"inverted delay range", func(c *Config) {
			c.Monitor.AccountDelayMin = time.Minute
			c.Monitor.AccountDelayMax = time.Second
		}},
		{"zero rate limit", func(c *Config) { c.Instagram.RequestsPerMinute = 0 }},
		{"missing gemini model", func(c *Config) { c.Gemini.Model = "" }},
		{"drive enabled without creds", func(c *Config) {
			c.Drive.Enabled = true
			c.Drive.ServiceAccountPath = ""
		}},
		{"smtp enabled without server", func(c *Config) {
			c.SMTP.Enabled = true
			c.SMTP.Server = ""
		}},
		{"bad log level", func(c *Config) { c.Logging.Level = "verbose" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestFlagsOverrideEverything(t *testing.T) {
	t.Setenv("IGMONITOR_STATE_FILE", "/from/env/state.json")

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("monitor:\n  state_file: /from/file/state.json\n"), 0o644))

	cfg, err := Load(path, Flags{
		StateFile: "/from/flag/state.json",
		MaxItems:  5,
		LogLevel:  "error",
	})
	require.NoError(t, err)

	assert.Equal(t, "/from/flag/state.json", cfg.Monitor.StateFile)
	assert.Equal(t, 5, cfg.Monitor.MaxItems)
	assert.Equal(t, "error", cfg.Logging.Level)
}

func TestEnvOverridesFile(t *testing.T) {
	t.Setenv("IGMONITOR_STATE_FILE", "/from/env/state.json")

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("monitor:\n  state_file: /from/file/state.json\n"), 0o644))

	cfg, err := Load(path, Flags{})
	require.NoError(t, err)
	assert.Equal(t, "/from/env/state.json", cfg.Monitor.StateFile)
}
