package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadAppliesDefaults(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
target:
  name: "iqn.2026-01.com.example:target0"
`
	require.NoError(t, os.WriteFile(configPath, []byte(configContent), 0644))

	cfg, err := Load(configPath)
	require.NoError(t, err)

	assert.Equal(t, "INFO", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)
	assert.Equal(t, "stdout", cfg.Logging.Output)
	assert.Equal(t, "0.0.0.0", cfg.Target.BindAddress)
	assert.Equal(t, 3260, cfg.Target.Port)
	assert.Equal(t, 256, cfg.Target.MaxConnections)
	assert.Equal(t, "memory", cfg.Storage.Backend)
	assert.True(t, cfg.AdminAPI.IsEnabled())
	assert.Equal(t, 9260, cfg.AdminAPI.Port)
	assert.Equal(t, 12*time.Hour, cfg.AdminAPI.TokenTTL)
	assert.Equal(t, 30*time.Second, cfg.ShutdownTimeout)
	assert.False(t, cfg.Telemetry.Enabled)
	assert.Equal(t, "localhost:4317", cfg.Telemetry.Endpoint)
	assert.Equal(t, 1.0, cfg.Telemetry.SampleRate)
}

func TestLoadParsesDurationStrings(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
target:
  name: "iqn.2026-01.com.example:target0"
shutdown_timeout: 45s
admin_api:
  token_ttl: 2h
`
	require.NoError(t, os.WriteFile(configPath, []byte(configContent), 0644))

	cfg, err := Load(configPath)
	require.NoError(t, err)

	assert.Equal(t, 45*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, 2*time.Hour, cfg.AdminAPI.TokenTTL)
}

func TestLoadWithMissingFileFailsValidation(t *testing.T) {
	tmpDir := t.TempDir()
	nonExistentPath := filepath.Join(tmpDir, "nonexistent.yaml")

	// No file means Target.Name is never set; it is required, so
	// validation (not file reading) is what fails here.
	_, err := Load(nonExistentPath)
	assert.Error(t, err)
}

func TestLoadRejectsMissingTargetName(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("logging:\n  level: DEBUG\n"), 0644))

	_, err := Load(configPath)
	assert.Error(t, err)
}

func TestLoadRejectsBadgerBackendWithoutPath(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	configContent := `
target:
  name: "iqn.2026-01.com.example:target0"
storage:
  backend: badger
`
	require.NoError(t, os.WriteFile(configPath, []byte(configContent), 0644))

	_, err := Load(configPath)
	assert.Error(t, err)
}

func TestLoadRejectsInvalidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "invalid.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("target:\n  name: [[[not valid\n"), 0644))

	_, err := Load(configPath)
	assert.Error(t, err)
}

func TestLoadHonorsEnvironmentOverride(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	configContent := `
target:
  name: "iqn.2026-01.com.example:target0"
logging:
  level: INFO
`
	require.NoError(t, os.WriteFile(configPath, []byte(configContent), 0644))

	t.Setenv("ISCSID_LOGGING_LEVEL", "DEBUG")

	cfg, err := Load(configPath)
	require.NoError(t, err)
	assert.Equal(t, "DEBUG", cfg.Logging.Level)
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	original := &Config{
		Target: TargetConfig{Name: "iqn.2026-01.com.example:target0"},
	}
	ApplyDefaults(original)
	require.NoError(t, Validate(original))

	require.NoError(t, Save(original, configPath))

	info, err := os.Stat(configPath)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	loaded, err := Load(configPath)
	require.NoError(t, err)
	assert.Equal(t, original.Target.Name, loaded.Target.Name)
	assert.Equal(t, original.Target.Port, loaded.Target.Port)
}

func TestDefaultConfigPathUsesXDGConfigHome(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", tmpDir)

	assert.Equal(t, filepath.Join(tmpDir, "iscsid", "config.yaml"), DefaultConfigPath())
	assert.False(t, DefaultConfigExists())
}
