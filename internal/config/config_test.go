package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Validate ---

func TestValidate_ValidConfig(t *testing.T) {
	assert.NoError(t, Validate(Defaults()))
}

func TestValidate_MissingHost(t *testing.T) {
	cfg := Defaults()
	cfg.Gateway.Host = " "
	assert.Error(t, Validate(cfg))
}

func TestValidate_HostWithScheme(t *testing.T) {
	cfg := Defaults()
	cfg.Gateway.Host = "ws://127.0.0.1:5612"
	assert.Error(t, Validate(cfg))
}

func TestValidate_Timings(t *testing.T) {
	cfg := Defaults()
	cfg.Gateway.ConnectTimeoutMs = 0
	assert.Error(t, Validate(cfg), "connectTimeoutMs=0")

	cfg = Defaults()
	cfg.Gateway.ReconnectDelayMs = 0
	assert.Error(t, Validate(cfg), "reconnectDelayMs=0")

	cfg = Defaults()
	cfg.Gateway.DrainTimeoutMs = 0
	assert.NoError(t, Validate(cfg), "drainTimeoutMs=0")
}

func TestValidate_QueryRetriesBoundary(t *testing.T) {
	cfg := Defaults()

	cfg.API.QueryRetries = 0
	assert.NoError(t, Validate(cfg))
	cfg.API.QueryRetries = 10
	assert.NoError(t, Validate(cfg))
	cfg.API.QueryRetries = 11
	assert.Error(t, Validate(cfg))
}

func TestValidate_RetryBackoff(t *testing.T) {
	cfg := Defaults()
	assert.Equal(t, time.Second, cfg.API.RetryBackoff())

	cfg.API.RetryBackoffMs = 0
	assert.Error(t, Validate(cfg))
}

func TestValidate_LogLevels(t *testing.T) {
	for _, level := range []string{"debug", "info", "warn", "error"} {
		cfg := Defaults()
		cfg.Log.Level = level
		assert.NoError(t, Validate(cfg), "level %q", level)
	}

	cfg := Defaults()
	cfg.Log.Level = "verbose"
	assert.Error(t, Validate(cfg))
}

func TestValidate_MetricsAddrRequired(t *testing.T) {
	cfg := Defaults()
	cfg.Metrics.Enabled = true
	cfg.Metrics.Addr = ""
	assert.Error(t, Validate(cfg))
}

// --- Load / Save ---

func TestLoadSave_RoundTrip(t *testing.T) {
	for _, name := range []string{"config.json", "config.yaml"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), name)

			original := Defaults()
			original.Gateway.Host = "10.0.0.5:5612"
			original.API.QueryRetries = 4
			original.API.RetryBackoffMs = 250

			require.NoError(t, Save(path, original))

			loaded, err := Load(path)
			require.NoError(t, err)
			assert.Equal(t, "10.0.0.5:5612", loaded.Gateway.Host)
			assert.Equal(t, 4, loaded.API.QueryRetries)
			assert.Equal(t, 250*time.Millisecond, loaded.API.RetryBackoff())
		})
	}
}

func TestLoad_PartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte("gateway:\n  host: bot.local:5612\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "bot.local:5612", cfg.Gateway.Host)
	assert.Equal(t, 3000, cfg.Gateway.ReconnectDelayMs)
	assert.Equal(t, 1000, cfg.API.RetryBackoffMs)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.json")
	assert.Error(t, err)
}

func TestLoad_InvalidJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json}"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_ExpandsEnvVars(t *testing.T) {
	t.Setenv("TEST_LUNA_GW", "gw.internal:7000")
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"gateway":{"host":"${TEST_LUNA_GW}","path":"${TEST_LUNA_UNSET:-/stream}"}}`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "gw.internal:7000", cfg.Gateway.Host)
	assert.Equal(t, "/stream", cfg.Gateway.Path)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("LUNA_HOST", "override:1")
	t.Setenv("LUNA_RECONNECT_DELAY_MS", "250")
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"gateway":{"host":"file:1"}}`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "override:1", cfg.Gateway.Host)
	assert.Equal(t, 250, cfg.Gateway.ReconnectDelayMs)
}

// --- Accessor ---

func TestGetByPath_ValidPath(t *testing.T) {
	val, err := GetByPath(Defaults(), "gateway.host")
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:5612", val)
}

func TestGetByPath_InvalidPath(t *testing.T) {
	_, err := GetByPath(Defaults(), "nonexistent.path")
	assert.Error(t, err)
	_, err = GetByPath(Defaults(), "gateway.host.deeper")
	assert.Error(t, err, "traversing into a leaf")
}

func TestSetByPath_Conversions(t *testing.T) {
	cfg := Defaults()
	require.NoError(t, SetByPath(cfg, "metrics.enabled", "true"))
	assert.True(t, cfg.Metrics.Enabled)

	require.NoError(t, SetByPath(cfg, "gateway.reconnectDelayMs", "1500"))
	assert.Equal(t, 1500, cfg.Gateway.ReconnectDelayMs)
}

func TestSetByPath_RejectsInvalidResult(t *testing.T) {
	cfg := Defaults()
	assert.Error(t, SetByPath(cfg, "log.level", "loud"))
	assert.Equal(t, "info", cfg.Log.Level, "config must be unchanged")
}

func TestSetByPath_UnknownKey(t *testing.T) {
	assert.Error(t, SetByPath(Defaults(), "gateway.nope", "1"))
}

func TestListPaths_Sorted(t *testing.T) {
	paths := ListPaths(Defaults())
	require.NotEmpty(t, paths)
	for i := 1; i < len(paths); i++ {
		assert.LessOrEqual(t, paths[i-1].Path, paths[i].Path)
	}
}

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("TEST_LUNA_SET", "value")

	tests := []struct{ in, want string }{
		{"${TEST_LUNA_SET}", "value"},
		{"${TEST_LUNA_MISSING:-fallback}", "fallback"},
		{"${TEST_LUNA_MISSING}", "${TEST_LUNA_MISSING}"},
		{"plain", "plain"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ExpandEnvVars(tt.in), "ExpandEnvVars(%q)", tt.in)
	}
}
