package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_DefaultValues(t *testing.T) {
	cfg, err := Load(Options{
		Path:        writeFile(t, "config.yaml", ""),
		Environment: map[string]string{},
	})
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:8000", cfg.BaseURL)
	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Equal(t, 30*time.Second, cfg.Timeout)
	assert.Equal(t, 3, cfg.Retries)
	assert.Equal(t, "auto", cfg.Delivery.Strategy)
	assert.Equal(t, 2*time.Second, cfg.Delivery.PollingInterval)
	assert.Zero(t, cfg.KDF)
}

func TestLoad_YAMLFile(t *testing.T) {
	path := writeFile(t, "config.yaml", `
base_url: https://relay.example.com
email: alice@example.com
log_level: debug
timeout: 10s
delivery:
  strategy: polling
  polling_interval: 500ms
kdf:
  time: 4
  memory_kib: 131072
  parallelism: 2
`)

	cfg, err := Load(Options{Path: path, Environment: map[string]string{}})
	require.NoError(t, err)

	assert.Equal(t, "https://relay.example.com", cfg.BaseURL)
	assert.Equal(t, "alice@example.com", cfg.Email)
	assert.Equal(t, 10*time.Second, cfg.Timeout)
	assert.Equal(t, 3, cfg.Retries, "unset keys keep defaults")
	assert.Equal(t, "polling", cfg.Delivery.Strategy)
	assert.Equal(t, 500*time.Millisecond, cfg.Delivery.PollingInterval)
	assert.Equal(t, KDF{Time: 4, MemoryKiB: 131072, Parallelism: 2}, cfg.KDF)

	level, err := cfg.Level()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, level)
}

func TestLoad_YAMLNeverSetsPassword(t *testing.T) {
	path := writeFile(t, "config.yaml", "password: hunter2hunter2\n")

	cfg, err := Load(Options{Path: path, Environment: map[string]string{}})
	require.NoError(t, err)
	assert.Empty(t, cfg.Password)
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	tests := []struct {
		name     string
		envVars  map[string]string
		expected func(*testing.T, *Config)
	}{
		{
			name:    "base url",
			envVars: map[string]string{"SEALDROP_BASE_URL": "https://env.example.com"},
			expected: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "https://env.example.com", cfg.BaseURL)
			},
		},
		{
			name: "credentials",
			envVars: map[string]string{
				"SEALDROP_EMAIL":    "bob@example.com",
				"SEALDROP_PASSWORD": "correct horse battery",
			},
			expected: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "bob@example.com", cfg.Email)
				assert.Equal(t, "correct horse battery", cfg.Password)
			},
		},
		{
			name: "delivery",
			envVars: map[string]string{
				"SEALDROP_DELIVERY_STRATEGY":         "websocket",
				"SEALDROP_DELIVERY_POLLING_INTERVAL": "5s",
			},
			expected: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "websocket", cfg.Delivery.Strategy)
				assert.Equal(t, 5*time.Second, cfg.Delivery.PollingInterval)
			},
		},
		{
			name: "kdf",
			envVars: map[string]string{
				"SEALDROP_KDF_TIME":        "2",
				"SEALDROP_KDF_MEMORY_KIB":  "32768",
				"SEALDROP_KDF_PARALLELISM": "1",
			},
			expected: func(t *testing.T, cfg *Config) {
				assert.Equal(t, KDF{Time: 2, MemoryKiB: 32768, Parallelism: 1}, cfg.KDF)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load(Options{
				Path:        writeFile(t, "config.yaml", "base_url: https://file.example.com\n"),
				Environment: tt.envVars,
			})
			require.NoError(t, err)
			tt.expected(t, cfg)
		})
	}
}

func TestLoad_DotEnv(t *testing.T) {
	const key = "SEALDROP_EMAIL"
	require.Empty(t, os.Getenv(key))
	t.Cleanup(func() { os.Unsetenv(key) })

	dotenv := writeFile(t, ".env", key+"=dot@example.com\n")
	cfg, err := Load(Options{
		Path:   writeFile(t, "config.yaml", ""),
		DotEnv: dotenv,
	})
	require.NoError(t, err)
	assert.Equal(t, "dot@example.com", cfg.Email)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name string
		opts Options
	}{
		{
			name: "missing explicit file",
			opts: Options{Path: filepath.Join(t.TempDir(), "nope.yaml"), Environment: map[string]string{}},
		},
		{
			name: "malformed yaml",
			opts: Options{Path: writeFile(t, "bad.yaml", "base_url: [\n"), Environment: map[string]string{}},
		},
		{
			name: "bad duration",
			opts: Options{
				Path:        writeFile(t, "ok.yaml", ""),
				Environment: map[string]string{"SEALDROP_TIMEOUT": "soon"},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(tt.opts)
			assert.Error(t, err)
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"https", func(c *Config) { c.BaseURL = "https://relay.example.com" }, false},
		{"ftp scheme", func(c *Config) { c.BaseURL = "ftp://relay.example.com" }, true},
		{"no host", func(c *Config) { c.BaseURL = "http://" }, true},
		{"bad level", func(c *Config) { c.LogLevel = "loud" }, true},
		{"bad strategy", func(c *Config) { c.Delivery.Strategy = "sse" }, true},
		{"negative retries", func(c *Config) { c.Retries = -1 }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
