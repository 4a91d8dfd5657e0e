package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"

	"github.com/ouest/trip-engine/config"
)

func writeConf(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_FileThenEnv(t *testing.T) {
	// GIVEN: a config file and an env override
	t.Setenv("CONF_FILE", writeConf(t, `
port: "9000"
dbPath: /tmp/ouest.db
apns:
  keyID: KEY123
  teamID: TEAM456
  bundleID: app.ouest.ios
  privateKeySecret: projects/p/secrets/apns-key
push:
  timeout: 3s
  concurrency: 8
`))
	t.Setenv("PORT", "9100")
	t.Setenv("APNS_PRODUCTION", "true")

	// WHEN
	conf, err := config.Load()

	// THEN
	require.NoError(t, err)
	assert.Equal(t, "9100", conf.Port)
	assert.Equal(t, "/tmp/ouest.db", conf.DBPath)
	assert.Equal(t, "info", conf.LogLevel)
	assert.Equal(t, 3*time.Second, conf.Push.Timeout)
	assert.Equal(t, 8, conf.Push.Concurrency)
	assert.True(t, conf.APNs.Production)
	assert.True(t, conf.APNs.HasKey())
	assert.NoError(t, conf.Validate())
}

func TestLoad_DefaultFileOptional(t *testing.T) {
	// no config.yml next to the test binary
	t.Setenv("CONF_FILE", "")
	t.Setenv("PUSH_TIMEOUT", "250ms")

	conf, err := config.Load()

	require.NoError(t, err)
	assert.Equal(t, "8080", conf.Port)
	assert.Equal(t, 250*time.Millisecond, conf.Push.Timeout)
	assert.False(t, conf.APNs.HasKey())
	assert.NoError(t, conf.Validate())
}

func TestLoad_Errors(t *testing.T) {
	t.Run("explicit file missing", func(t *testing.T) {
		t.Setenv("CONF_FILE", filepath.Join(t.TempDir(), "missing.yml"))
		_, err := config.Load()
		assert.Error(t, err)
	})

	t.Run("bad env values are all reported", func(t *testing.T) {
		t.Setenv("CONF_FILE", writeConf(t, "port: \"8080\"\n"))
		t.Setenv("PUSH_TIMEOUT", "soon")
		t.Setenv("PUSH_CONCURRENCY", "many")
		_, err := config.Load()
		require.Error(t, err)
		assert.Len(t, multierr.Errors(err), 2)
	})
}

func TestValidate_AggregatesProblems(t *testing.T) {
	conf := config.Default()
	conf.Port = "http"
	conf.LogLevel = "chatty"
	conf.Push.Timeout = 0
	conf.APNs.PrivateKey = "key"

	err := conf.Validate()

	require.Error(t, err)
	// port, logLevel, timeout, keyID, teamID, bundleID
	assert.Len(t, multierr.Errors(err), 6)
}
