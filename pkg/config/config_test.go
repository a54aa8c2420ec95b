package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "config", cfg.ConfigDir)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, int64(64<<20), cfg.RotateBytes)
	assert.False(t, cfg.AllowHMAC)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("AXP_PORT", "9191")
	t.Setenv("AXP_ALLOW_HMAC", "true")
	t.Setenv("AXP_LLM_MODEL", "local-model")
	t.Setenv("AXP_LLM_TIMEOUT", "30s")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 9191, cfg.Port)
	assert.True(t, cfg.AllowHMAC)
	assert.Equal(t, "local-model", cfg.LLMModel)
	assert.Equal(t, "30s", cfg.LLMTimeout.String())
}

func TestLoadFileOverlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "axp.yaml")
	require.NoError(t, os.WriteFile(path, []byte(
		"port: 9000\nlogs_dir: /var/lib/axp\nllm_model: local-model\nllm_timeout: 45s\n"), 0o644))
	t.Setenv("AXP_CONFIG_FILE", path)
	t.Setenv("AXP_PORT", "9001")

	cfg, err := Load()
	require.NoError(t, err)
	// Environment beats the file; the file beats the defaults.
	assert.Equal(t, 9001, cfg.Port)
	assert.Equal(t, "/var/lib/axp", cfg.LogsDir)
	assert.Equal(t, "local-model", cfg.LLMModel)
	assert.Equal(t, "45s", cfg.LLMTimeout.String())
	assert.Equal(t, "config", cfg.ConfigDir)
}

func TestLoadRejectsBadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "axp.yaml")
	require.NoError(t, os.WriteFile(path, []byte("port: [not a port"), 0o644))
	t.Setenv("AXP_CONFIG_FILE", path)
	_, err := Load()
	assert.Error(t, err)
}

func TestLoadRejectsBadPort(t *testing.T) {
	t.Setenv("AXP_PORT", "70000")
	_, err := Load()
	assert.Error(t, err)
}

func TestFingerprintInputsFixedList(t *testing.T) {
	// Point at an empty directory to show the list is fixed, not a scan of
	// what happens to exist on disk.
	t.Setenv("AXP_CONFIG_DIR", t.TempDir())
	cfg, err := Load()
	require.NoError(t, err)

	inputs := cfg.FingerprintInputs()
	want := []string{
		cfg.CouplingPath(),
		cfg.RoleShapesPath(),
		cfg.TAESWeightsPath(),
		filepath.Join(cfg.DirectivesDir(), "AUTHORITY_LAYER.md"),
		filepath.Join(cfg.DirectivesDir(), "CORE_DIRECTIVES.md"),
		filepath.Join(cfg.DirectivesDir(), "D0_CHANGE_CONTROL.md"),
		filepath.Join(cfg.DirectivesDir(), "REDTEAM_LAYER.md"),
		filepath.Join(cfg.DirectivesDir(), "TAES_EVALUATION.md"),
		filepath.Join(cfg.DirectivesDir(), "WARROOM_ADDENDUM.md"),
	}
	assert.Equal(t, want, inputs)
}

func TestCheckProtocolFloor(t *testing.T) {
	assert.NoError(t, CheckProtocolFloor(""))
	assert.NoError(t, CheckProtocolFloor("1.0.0"))
	assert.NoError(t, CheckProtocolFloor(ProtocolVersion))
	assert.Error(t, CheckProtocolFloor("99.0.0"))
	assert.Error(t, CheckProtocolFloor("not-a-version"))
}
