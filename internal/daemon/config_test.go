package daemon

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ─── Defaults ───────────────────────────────────────────────────────────────

func TestDefaultConfig(t *testing.T) {
	t.Setenv("IRIS_HOME", t.TempDir())

	cfg := DefaultConfig()

	assert.Equal(t, "127.0.0.1", cfg.API.Host)
	assert.Equal(t, 9800, cfg.API.Port)
	assert.Equal(t, "lexical", cfg.Classifier.Mode)
	assert.Equal(t, "https://openrouter.ai/api/v1", cfg.Multimodal.Endpoint)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.True(t, cfg.Telemetry.Prometheus)
	assert.Equal(t, os.Getenv("IRIS_HOME"), cfg.Coordinator.DataDir)
}

// ─── Load and Save ──────────────────────────────────────────────────────────

func TestLoadConfigWithoutFileUsesDefaults(t *testing.T) {
	t.Setenv("IRIS_HOME", t.TempDir())

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	t.Setenv("IRIS_HOME", t.TempDir())

	cfg := DefaultConfig()
	cfg.API.Port = 7777
	cfg.Classifier.Mode = "worker"
	cfg.Logging.Level = "debug"
	cfg.Logging.JSON = true
	cfg.Telemetry.Prometheus = false

	require.NoError(t, SaveConfig(cfg))

	loaded, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, 7777, loaded.API.Port)
	assert.Equal(t, "worker", loaded.Classifier.Mode)
	assert.Equal(t, "debug", loaded.Logging.Level)
	assert.True(t, loaded.Logging.JSON)
	assert.False(t, loaded.Telemetry.Prometheus)
}

func TestLoadConfigRejectsMalformedTOML(t *testing.T) {
	home := t.TempDir()
	t.Setenv("IRIS_HOME", home)

	path := filepath.Join(home, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("[coordinator\ndata_dir ="), 0o600))

	_, err := LoadConfig()
	require.Error(t, err)
}

// ─── Environment Overrides ──────────────────────────────────────────────────

func TestEnvOverridesSecrets(t *testing.T) {
	t.Setenv("IRIS_HOME", t.TempDir())
	t.Setenv("IRIS_ADMIN_KEY", "sesame")
	t.Setenv("IRIS_MULTIMODAL_KEY", "sk-or-test")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "sesame", cfg.Coordinator.AdminKey)
	assert.Equal(t, "sk-or-test", cfg.Multimodal.APIKey)
}

func TestDotEnvFileLoaded(t *testing.T) {
	home := t.TempDir()
	t.Setenv("IRIS_HOME", home)
	t.Setenv("IRIS_ADMIN_KEY", "")
	os.Unsetenv("IRIS_ADMIN_KEY")

	envFile := filepath.Join(home, ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("IRIS_ADMIN_KEY=from-dotenv\n"), 0o600))

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "from-dotenv", cfg.Coordinator.AdminKey)
}
