package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/illarion/lockbot/internal/crypto"
)

func envMap(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func noToken() (string, error) { return "", errors.New("no keyring") }

func TestDefaults(t *testing.T) {
	dir := t.TempDir()
	cfg, err := load("", envMap(map[string]string{"LOCKBOT_DATA_DIR": dir}), noToken)
	require.NoError(t, err)

	require.Equal(t, dir, cfg.DataDir)
	require.Equal(t, DefaultSessionTimeout, cfg.SessionTimeout)
	require.Equal(t, DefaultOpTimeout, cfg.OpTimeout)
	require.Equal(t, crypto.DefaultIters, cfg.KDFIterations)
	require.Len(t, cfg.Roots, 1)
	require.Equal(t, filepath.Join(dir, "registry.db"), cfg.RegistryPath())

	require.ErrorIs(t, cfg.ValidateServe(), ErrMissingToken)
}

func TestYAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bot.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
token: "123:file"
owner_id: 42
data_dir: /var/lib/lockbot
roots:
  - /sdcard
  - /data/docs
session_timeout: 90s
op_timeout: 2m
kdf_iterations: 300000
unlock_per_minute: 10
unlock_burst: 2
log_level: debug
`), 0600))

	cfg, err := load(path, envMap(nil), noToken)
	require.NoError(t, err)
	require.Equal(t, "123:file", cfg.Token)
	require.Equal(t, int64(42), cfg.OwnerID)
	require.Equal(t, []string{"/sdcard", "/data/docs"}, cfg.Roots)
	require.Equal(t, 90*time.Second, cfg.SessionTimeout)
	require.Equal(t, 2*time.Minute, cfg.OpTimeout)
	require.Equal(t, 300000, cfg.KDFIterations)
	require.Equal(t, 10, cfg.UnlockPerMinute)
	require.Equal(t, "debug", cfg.LogLevel)
	require.NoError(t, cfg.ValidateServe())
}

func TestDefaultFileInDataDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, DefaultFileName), []byte("owner_id: 7\n"), 0600))

	cfg, err := load("", envMap(map[string]string{"LOCKBOT_DATA_DIR": dir}), noToken)
	require.NoError(t, err)
	require.Equal(t, int64(7), cfg.OwnerID)
}

func TestEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bot.yaml")
	require.NoError(t, os.WriteFile(path, []byte("token: from-file\nowner_id: 1\n"), 0600))

	cfg, err := load(path, envMap(map[string]string{
		"BOT_TOKEN":         "from-env",
		"CHAT_ID":           "555",
		"LOCKBOT_ROOTS":     "/a" + string(os.PathListSeparator) + "/b",
		"LOCKBOT_LOG_LEVEL": "warn",
	}), noToken)
	require.NoError(t, err)
	require.Equal(t, "from-env", cfg.Token)
	require.Equal(t, int64(555), cfg.OwnerID)
	require.Equal(t, []string{"/a", "/b"}, cfg.Roots)
	require.Equal(t, "warn", cfg.LogLevel)

	// The LOCKBOT_ names win over the short aliases
	cfg, err = load(path, envMap(map[string]string{"BOT_TOKEN": "alias", "LOCKBOT_TOKEN": "primary"}), noToken)
	require.NoError(t, err)
	require.Equal(t, "primary", cfg.Token)
}

func TestConfigFileFromEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "custom.yaml")
	require.NoError(t, os.WriteFile(path, []byte("owner_id: 9\n"), 0600))

	cfg, err := load("", envMap(map[string]string{"LOCKBOT_CONFIG": path}), noToken)
	require.NoError(t, err)
	require.Equal(t, int64(9), cfg.OwnerID)
}

func TestMissingExplicitFile(t *testing.T) {
	_, err := load(filepath.Join(t.TempDir(), "nope.yaml"), envMap(nil), noToken)
	require.Error(t, err)
}

func TestInvalidValues(t *testing.T) {
	dir := t.TempDir()

	_, err := load("", envMap(map[string]string{"LOCKBOT_DATA_DIR": dir, "LOCKBOT_OWNER_ID": "me"}), noToken)
	require.ErrorIs(t, err, ErrInvalid)

	path := filepath.Join(dir, "weak.yaml")
	require.NoError(t, os.WriteFile(path, []byte("kdf_iterations: 1000\n"), 0600))
	_, err = load(path, envMap(nil), noToken)
	require.ErrorIs(t, err, ErrInvalid)

	path = filepath.Join(dir, "slow.yaml")
	require.NoError(t, os.WriteFile(path, []byte("kdf_iterations: 200000000\n"), 0600))
	_, err = load(path, envMap(nil), noToken)
	require.ErrorIs(t, err, ErrInvalid)

	path = filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("session_timeout: [1, 2]\n"), 0600))
	_, err = load(path, envMap(nil), noToken)
	require.Error(t, err)
}

func TestValidateServe(t *testing.T) {
	dir := t.TempDir()
	env := envMap(map[string]string{"LOCKBOT_DATA_DIR": dir, "LOCKBOT_OWNER_ID": "1"})

	cfg, err := load("", env, func() (string, error) { return " 123:keyring \n", nil })
	require.NoError(t, err)
	require.NoError(t, cfg.ValidateServe())
	require.Equal(t, "123:keyring", cfg.Token)

	cfg, err = load("", envMap(map[string]string{"LOCKBOT_DATA_DIR": dir, "LOCKBOT_TOKEN": "t"}), noToken)
	require.NoError(t, err)
	require.ErrorIs(t, cfg.ValidateServe(), ErrMissingOwner)
}
