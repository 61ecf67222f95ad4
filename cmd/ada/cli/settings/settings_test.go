package settings

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, root, name, content string) {
	t.Helper()
	dir := filepath.Join(root, ".ada")
	require.NoError(t, os.MkdirAll(dir, 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600))
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, AgentClaude, cfg.Agent)
	assert.Equal(t, DefaultModel, cfg.Model)
	assert.Equal(t, DefaultMaxRetries, cfg.MaxRetries)
	assert.Equal(t, DefaultSessionTimeout, cfg.SessionTimeout())
	assert.Equal(t, DefaultStallTimeout, cfg.StallTimeout())
	assert.Equal(t, DefaultContextThreshold, cfg.ContextThreshold)
	assert.Equal(t, DefaultContextWindow, cfg.ContextWindow)
	assert.Equal(t, DefaultAPIAddr, cfg.APIAddr)
	assert.True(t, cfg.AutoCommitEnabled())
}

func TestLoadLocalOverridesBase(t *testing.T) {
	root := t.TempDir()
	writeConfig(t, root, "config.json", `{"model":"claude-sonnet-4-5","max_retries":5,"api_addr":"127.0.0.1:9000"}`)
	writeConfig(t, root, "config.local.json", `{"model":"claude-opus-4-5","auto_commit":false}`)

	cfg, err := Load(root)
	require.NoError(t, err)

	assert.Equal(t, "claude-opus-4-5", cfg.Model, "local file wins")
	assert.Equal(t, 5, cfg.MaxRetries, "base value survives when local omits it")
	assert.Equal(t, "127.0.0.1:9000", cfg.APIAddr)
	assert.False(t, cfg.AutoCommitEnabled())
}

func TestLoadEnvOverrides(t *testing.T) {
	root := t.TempDir()
	writeConfig(t, root, "config.json", `{"model":"claude-sonnet-4-5"}`)
	t.Setenv("ADA_MODEL", "claude-haiku-4-5")
	t.Setenv("ADA_MAX_RETRIES", "1")

	cfg, err := Load(root)
	require.NoError(t, err)

	assert.Equal(t, "claude-haiku-4-5", cfg.Model)
	assert.Equal(t, 1, cfg.MaxRetries)
}

func TestLoadEnvIgnoresInvalidRetries(t *testing.T) {
	t.Setenv("ADA_MAX_RETRIES", "not-a-number")

	cfg, err := Load(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, DefaultMaxRetries, cfg.MaxRetries)
}

func TestLoadMalformedConfig(t *testing.T) {
	root := t.TempDir()
	writeConfig(t, root, "config.json", `{not json`)

	_, err := Load(root)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config.json")
}

func TestLoadDotenv(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, ".env"), []byte("ADA_TEST_CREDENTIAL=sekrit\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("ADA_TEST_CREDENTIAL") })

	_, err := Load(root)
	require.NoError(t, err)
	assert.Equal(t, "sekrit", os.Getenv("ADA_TEST_CREDENTIAL"))
}

func TestRequiresApproval(t *testing.T) {
	cfg := &Config{}
	assert.False(t, cfg.RequiresApproval("feat-1"))

	cfg.Verification.ApprovalFeatures = []string{"feat-2"}
	assert.False(t, cfg.RequiresApproval("feat-1"))
	assert.True(t, cfg.RequiresApproval("feat-2"))

	cfg.Verification.RequireApproval = true
	assert.True(t, cfg.RequiresApproval("feat-1"))
}
