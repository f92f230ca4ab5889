// ABOUTME: Tests for configuration loading and parsing
// ABOUTME: Covers YAML loading, env var expansion, defaults, duration parsing and validation

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimalConfig = `
server:
  http_addr: "127.0.0.1:8080"
database:
  path: "./pool.db"
agents:
  file: "agents.toml"
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pool.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad_ValidConfig(t *testing.T) {
	path := writeConfig(t, `
server:
  http_addr: "0.0.0.0:8080"
database:
  path: "/var/lib/agentpool/pool.db"
auth:
  jwt_secret: "0123456789abcdef0123456789abcdef"
agents:
  file: "/etc/agentpool/agents.toml"
  watch: true
  reload_debounce: "1s"
  attempt_window: "10m"
  attempt_capacity: 50
logging:
  level: "debug"
  format: "json"
metrics:
  enabled: true
  path: "/internal/metrics"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:8080", cfg.Server.HTTPAddr)
	assert.Equal(t, "/var/lib/agentpool/pool.db", cfg.Database.Path)
	assert.Equal(t, "/etc/agentpool/agents.toml", cfg.Agents.File)
	assert.True(t, cfg.Agents.Watch)
	assert.Equal(t, time.Second, cfg.Agents.ReloadDebounce)
	assert.Equal(t, 10*time.Minute, cfg.Agents.AttemptWindow)
	assert.Equal(t, 50, cfg.Agents.AttemptCapacity)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, "/internal/metrics", cfg.Metrics.Path)
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalConfig))
	require.NoError(t, err)

	assert.Equal(t, DefaultReloadDebounce, cfg.Agents.ReloadDebounce)
	assert.Equal(t, DefaultAttemptWindow, cfg.Agents.AttemptWindow)
	assert.Equal(t, DefaultAttemptCapacity, cfg.Agents.AttemptCapacity)
	assert.Equal(t, DefaultMetricsPath, cfg.Metrics.Path)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)
	assert.False(t, cfg.Agents.Watch)
	assert.Empty(t, cfg.Auth.JWTSecret)
}

func TestLoad_RelativeAgentsFile(t *testing.T) {
	path := writeConfig(t, minimalConfig)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(filepath.Dir(path), "agents.toml"), cfg.Agents.File)
}

func TestLoad_EnvVarExpansion(t *testing.T) {
	t.Setenv("AGENTPOOL_TEST_SECRET", strings.Repeat("s", 40))
	t.Setenv("AGENTPOOL_TEST_ADDR", "127.0.0.1:9999")

	cfg, err := Load(writeConfig(t, `
server:
  http_addr: "${AGENTPOOL_TEST_ADDR}"
database:
  path: "pool.db"
auth:
  jwt_secret: "${AGENTPOOL_TEST_SECRET}"
agents:
  file: "agents.toml"
`))
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9999", cfg.Server.HTTPAddr)
	assert.Equal(t, strings.Repeat("s", 40), cfg.Auth.JWTSecret)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.ErrorContains(t, err, "reading config file")
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name:    "bad yaml",
			content: "server: [",
			wantErr: "parsing config file",
		},
		{
			name:    "missing http addr",
			content: "database:\n  path: x\nagents:\n  file: a.toml\n",
			wantErr: "server.http_addr is required",
		},
		{
			name:    "missing database",
			content: "server:\n  http_addr: x\nagents:\n  file: a.toml\n",
			wantErr: "database.path is required",
		},
		{
			name:    "missing agents file",
			content: "server:\n  http_addr: x\ndatabase:\n  path: x\n",
			wantErr: "agents.file is required",
		},
		{
			name:    "short secret",
			content: minimalConfig + "auth:\n  jwt_secret: short\n",
			wantErr: "auth.jwt_secret: jwt secret must be at least 32 bytes",
		},
		{
			name:    "bad duration",
			content: strings.Replace(minimalConfig, `file: "agents.toml"`, "file: a.toml\n  reload_debounce: soon", 1),
			wantErr: "parsing reload_debounce",
		},
		{
			name:    "negative window",
			content: strings.Replace(minimalConfig, `file: "agents.toml"`, "file: a.toml\n  attempt_window: -1m", 1),
			wantErr: "agents.attempt_window must not be negative",
		},
		{
			name:    "bad log level",
			content: minimalConfig + "logging:\n  level: loud\n",
			wantErr: "logging.level",
		},
		{
			name:    "bad log format",
			content: minimalConfig + "logging:\n  format: xml\n",
			wantErr: "logging.format",
		},
		{
			name:    "relative metrics path",
			content: minimalConfig + "metrics:\n  enabled: true\n  path: metrics\n",
			wantErr: "metrics.path",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestExpandEnvVars_Unset(t *testing.T) {
	assert.Equal(t, "a--b", expandEnvVars("a-${AGENTPOOL_SURELY_UNSET_VAR}-b"))
}
