package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnvDefaults(t *testing.T) {
	for _, key := range []string{"APPTHWACK_API_KEY", "APPTHWACK_DOMAIN", "APPTHWACK_API_ROOT", "APPTHWACK_TIMEOUT", "APPTHWACK_POLL_INTERVAL", "LOG_LEVEL"} {
		t.Setenv(key, "")
	}

	c, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, DefaultDomain, c.Domain)
	assert.Equal(t, DefaultAPIRoot, c.APIRoot)
	assert.Equal(t, DefaultTimeout, c.Timeout)
	assert.Equal(t, DefaultPollInterval, c.PollInterval)
	assert.Equal(t, "info", c.LogLevel)
	assert.ErrorIs(t, c.RequireAPIKey(), ErrNoAPIKey)
}

func TestFromEnv(t *testing.T) {
	t.Setenv("APPTHWACK_API_KEY", "secret")
	t.Setenv("APPTHWACK_DOMAIN", "http://localhost:8080")
	t.Setenv("APPTHWACK_TIMEOUT", "5s")
	t.Setenv("APPTHWACK_POLL_INTERVAL", "250ms")

	c, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, "secret", c.APIKey)
	assert.Equal(t, "http://localhost:8080", c.Domain)
	assert.Equal(t, 5*time.Second, c.Timeout)
	assert.Equal(t, 250*time.Millisecond, c.PollInterval)
	assert.NoError(t, c.RequireAPIKey())
}

func TestFromEnvBadDuration(t *testing.T) {
	t.Setenv("APPTHWACK_TIMEOUT", "soon")
	_, err := FromEnv()
	assert.ErrorContains(t, err, "APPTHWACK_TIMEOUT")
}

func TestApplyHCLOverridesOnlySetAttributes(t *testing.T) {
	c := Config{APIKey: "env-key", Domain: DefaultDomain, Timeout: DefaultTimeout}
	src := []byte(`
domain        = "http://127.0.0.1:9000"
poll_interval = "2s"
`)
	require.NoError(t, c.ApplyHCL("thwack.hcl", src))
	assert.Equal(t, "env-key", c.APIKey)
	assert.Equal(t, "http://127.0.0.1:9000", c.Domain)
	assert.Equal(t, DefaultTimeout, c.Timeout)
	assert.Equal(t, 2*time.Second, c.PollInterval)
}

func TestApplyHCLErrors(t *testing.T) {
	var c Config
	assert.Error(t, c.ApplyHCL("thwack.hcl", []byte(`timeout = "forever"`)))
	assert.Error(t, c.ApplyHCL("thwack.hcl", []byte(`unknown = "x"`)))
}

func TestLoad(t *testing.T) {
	t.Setenv("APPTHWACK_API_KEY", "env-key")
	path := filepath.Join(t.TempDir(), "thwack.hcl")
	require.NoError(t, os.WriteFile(path, []byte(`api_key = "file-key"`), 0o644))

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "file-key", c.APIKey)

	_, err = Load(filepath.Join(t.TempDir(), "missing.hcl"))
	assert.Error(t, err)
}
