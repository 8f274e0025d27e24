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
	assert.Equal(t, "postgres", cfg.Dialect)
	assert.Equal(t, "public", cfg.DBSchema)
	assert.Equal(t, 256, cfg.StatementCache)
	assert.Equal(t, ":8080", cfg.Addr())
}

func TestLoadEnv(t *testing.T) {
	t.Setenv("DIALECT", "sqlite")
	t.Setenv("PORT", "9090")
	t.Setenv("STATEMENT_CACHE", "0")
	t.Setenv("LOG_FORMAT", "text")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "sqlite", cfg.Dialect)
	assert.Equal(t, ":9090", cfg.Addr())
	assert.Equal(t, 0, cfg.StatementCache)
	assert.Equal(t, "text", cfg.LogFormat)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rq.yaml")
	require.NoError(t, os.WriteFile(path, []byte("dialect: sqlite\nsqlite_path: /tmp/x.db\nport: \"7000\"\n"), 0o600))
	t.Setenv(ConfigFileEnv, path)
	t.Setenv("PORT", "7001")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "sqlite", cfg.Dialect)
	assert.Equal(t, "/tmp/x.db", cfg.SQLitePath)
	assert.Equal(t, "7001", cfg.Port, "environment wins over the file")
}

func TestLoadInvalid(t *testing.T) {
	t.Setenv("DIALECT", "oracle")
	_, err := Load()
	assert.ErrorContains(t, err, "unsupported dialect")

	t.Setenv("DIALECT", "postgres")
	t.Setenv(ConfigFileEnv, filepath.Join(t.TempDir(), "missing.yaml"))
	_, err = Load()
	assert.ErrorContains(t, err, "read config")
}
