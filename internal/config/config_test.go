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

	assert.Equal(t, 30*time.Second, cfg.Device.Timeout)
	assert.Equal(t, 10*time.Minute, cfg.Device.CommitTimeout)
	assert.Equal(t, 2*time.Second, cfg.Device.PollInterval)
	assert.False(t, cfg.Device.InsecureSkipVerify)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "console", cfg.Logging.Format)
	assert.Empty(t, cfg.Profiles.Default)
	assert.Empty(t, cfg.Tracing.Endpoint)
	assert.Empty(t, cfg.Metrics.Textfile)
}

func TestLoadMissing(t *testing.T) {
	t.Setenv("PANOS_IKE_CONFIG_DIR", t.TempDir())

	_, err := Load("")
	assert.ErrorIs(t, err, ErrConfigNotFound)

	_, err = Load(filepath.Join(t.TempDir(), "other.yaml"))
	assert.ErrorIs(t, err, ErrConfigNotFound)
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("PANOS_IKE_CONFIG_DIR", dir)

	content := `device:
  timeout: 5s
  commit_timeout: 2m
  insecure_skip_verify: true
logging:
  level: debug
  format: json
metrics:
  textfile: /var/lib/node_exporter/panos_ike.prom
tracing:
  endpoint: otel-collector:4318
  insecure: true
profiles:
  default: lab
`
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 5*time.Second, cfg.Device.Timeout)
	assert.Equal(t, 2*time.Minute, cfg.Device.CommitTimeout)
	assert.Equal(t, 2*time.Second, cfg.Device.PollInterval, "unset keys keep defaults")
	assert.True(t, cfg.Device.InsecureSkipVerify)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, filepath.Join(dir, "audit.log"), cfg.Logging.AuditFile)
	assert.Equal(t, "/var/lib/node_exporter/panos_ike.prom", cfg.Metrics.Textfile)
	assert.Equal(t, "otel-collector:4318", cfg.Tracing.Endpoint)
	assert.True(t, cfg.Tracing.Insecure)
	assert.Equal(t, "lab", cfg.Profiles.Default)
}

func TestLoadEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("PANOS_IKE_CONFIG_DIR", dir)
	t.Setenv("PANOS_IKE_LOG_LEVEL", "warn")
	t.Setenv("PANOS_IKE_DEVICE", "edge")
	t.Setenv("PANOS_IKE_BATCH_MODE", "true")

	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("logging:\n  level: debug\n"), 0600))

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.Equal(t, "edge", cfg.Profiles.Default)
	assert.True(t, cfg.Security.BatchMode)
}

func TestLoadInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("device: [unclosed"), 0600))

	_, err := Load(path)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrConfigNotFound)
}

func TestSaveAndLoad(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("PANOS_IKE_CONFIG_DIR", dir)

	cfg := DefaultConfig()
	cfg.Device.Timeout = 45 * time.Second
	cfg.Security.BatchMode = true
	cfg.Keeper.Config = "/etc/panos-ike/ksm.json"
	cfg.Tracing.URLPath = "/v1/traces"
	cfg.Logging.AuditFile = filepath.Join(dir, "custom-audit.log")

	path := filepath.Join(dir, "nested", "config.yaml")
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestLoadOrCreate(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("PANOS_IKE_CONFIG_DIR", dir)

	cfg, err := LoadOrCreate("")
	require.NoError(t, err)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.FileExists(t, filepath.Join(dir, "config.yaml"))

	again, err := LoadOrCreate("")
	require.NoError(t, err)
	assert.Equal(t, cfg, again)
}

func TestGetConfigDir(t *testing.T) {
	t.Setenv("PANOS_IKE_CONFIG_DIR", "/tmp/custom-panos-ike")
	assert.Equal(t, "/tmp/custom-panos-ike", GetConfigDir())

	t.Setenv("PANOS_IKE_CONFIG_DIR", "")
	assert.Equal(t, ".panos-ike", filepath.Base(GetConfigDir()))
}

func TestEnsureConfigDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "cfg")
	t.Setenv("PANOS_IKE_CONFIG_DIR", dir)

	require.NoError(t, EnsureConfigDir())
	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}
