package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigFromYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
security:
  shared_secret: "topsecret"
admission:
  replay_window_seconds: 90
policy:
  severity_floor: 3
`), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "topsecret", cfg.Security.SharedSecret)
	assert.Equal(t, 90, cfg.Admission.ReplayWindowSeconds)
	assert.Equal(t, 3, cfg.Policy.SeverityFloor)
}

func TestApplyDefaultsFillsSpecLiterals(t *testing.T) {
	cfg := &Config{}
	cfg.applyDefaults()

	assert.Equal(t, 120, cfg.Admission.ReplayWindowSeconds)
	assert.Equal(t, 300, cfg.RateLimit.PerMinute)
	assert.Equal(t, 120, cfg.Policy.CooldownSeconds)
	assert.Equal(t, 300, cfg.Alerts.DedupSeconds)
	require.NotNil(t, cfg.Store.UsePersistent)
	assert.True(t, *cfg.Store.UsePersistent)
	assert.Equal(t, "8080", cfg.Server.Port)
}

func TestExplicitFalseUsePersistentSurvivesDefaults(t *testing.T) {
	no := false
	cfg := &Config{}
	cfg.Store.UsePersistent = &no
	cfg.applyDefaults()

	require.NotNil(t, cfg.Store.UsePersistent)
	assert.False(t, *cfg.Store.UsePersistent, "an explicit false must not be overridden back to the persistent default")
}

func TestEnvOverrideExplicitFalseIsNotOverriddenByDefaults(t *testing.T) {
	t.Setenv("ARES_USE_PERSISTENT_STORE", "false")

	cfg := &Config{}
	cfg.applyEnvOverrides()
	cfg.applyDefaults()

	require.NotNil(t, cfg.Store.UsePersistent)
	assert.False(t, *cfg.Store.UsePersistent)
}

func TestEnvOverridesTakePrecedenceOverYAML(t *testing.T) {
	t.Setenv("ARES_SHARED_SECRET", "env-secret")
	t.Setenv("ARES_RATE_LIMIT_PER_MINUTE", "42")

	cfg := &Config{}
	cfg.Security.SharedSecret = "yaml-secret"
	cfg.applyEnvOverrides()
	cfg.applyDefaults()

	assert.Equal(t, "env-secret", cfg.Security.SharedSecret)
	assert.Equal(t, 42, cfg.RateLimit.PerMinute)
}

func TestSeverityFloorOfZeroSurvivesEnvOverridePass(t *testing.T) {
	cfg := &Config{}
	cfg.Policy.SeverityFloor = 0
	cfg.applyEnvOverrides()
	cfg.applyDefaults()

	assert.Equal(t, 0, cfg.Policy.SeverityFloor)
}
