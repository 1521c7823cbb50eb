package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "polyscript.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func noEnv(string) (string, bool) { return "", false }

func TestLoad(t *testing.T) {
	t.Run("defaults without a file", func(t *testing.T) {
		cfg, err := ApplyEnv(Default(), noEnv)
		require.NoError(t, err)
		assert.Equal(t, Default(), cfg)
		assert.Equal(t, "javascript", cfg.Engine)
	})

	t.Run("reads every key", func(t *testing.T) {
		path := writeConfig(t, `
engine = "lua"
log_level = "debug"
nats_url = " nats://localhost:4222 "
subject = "scripts"
prelude = ["x = 1", "  ", "y = 2"]
`)
		cfg, err := loadFile(Default(), path)
		require.NoError(t, err)
		assert.Equal(t, Config{
			Engine:   "lua",
			LogLevel: slog.LevelDebug,
			NATSURL:  "nats://localhost:4222",
			Subject:  "scripts",
			Prelude:  []string{"x = 1", "y = 2"},
		}, cfg)
	})

	t.Run("keeps defaults for blank values", func(t *testing.T) {
		path := writeConfig(t, `engine = " "`)
		cfg, err := loadFile(Default(), path)
		require.NoError(t, err)
		assert.Equal(t, "javascript", cfg.Engine)
	})

	t.Run("rejects unknown keys", func(t *testing.T) {
		path := writeConfig(t, `engines = ["lua"]`)
		_, err := loadFile(Default(), path)
		assert.ErrorContains(t, err, "engines")
	})

	t.Run("rejects bad levels", func(t *testing.T) {
		path := writeConfig(t, `log_level = "chatty"`)
		_, err := loadFile(Default(), path)
		assert.ErrorContains(t, err, "log_level")
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
		assert.Error(t, err)
	})
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		EnvEngine:   "lua",
		EnvLogLevel: "WARN",
		EnvNATSURL:  "nats://events:4222",
		EnvSubject:  "custom",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	cfg, err := ApplyEnv(Default(), lookup)
	require.NoError(t, err)
	assert.Equal(t, "lua", cfg.Engine)
	assert.Equal(t, slog.LevelWarn, cfg.LogLevel)
	assert.Equal(t, "nats://events:4222", cfg.NATSURL)
	assert.Equal(t, "custom", cfg.Subject)

	env[EnvLogLevel] = "loud"
	_, err = ApplyEnv(Default(), lookup)
	assert.ErrorContains(t, err, EnvLogLevel)
}
