package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memFs swaps AppFs for an in-memory filesystem for the duration of the test.
func memFs(t *testing.T) afero.Fs {
	t.Helper()
	fs := afero.NewMemMapFs()
	prev := AppFs
	AppFs = fs
	t.Cleanup(func() { AppFs = prev })
	return fs
}

// unsetEnv clears keys and restores them after the test.
func unsetEnv(t *testing.T, keys ...string) {
	t.Helper()
	for _, k := range keys {
		t.Setenv(k, "")
		require.NoError(t, os.Unsetenv(k))
	}
}

func writeConfig(t *testing.T, fs afero.Fs, body string) {
	t.Helper()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, afero.WriteFile(fs, filepath.Join(wd, configName+".yaml"), []byte(body), 0o644))
}

var engineEnv = []string{
	"DATABASE_URL",
	"PRISMA_ENGINE_DATASOURCE_URL",
	"PRISMA_ENGINE_BATCH_SIZE",
	"PRISMA_ENGINE_MAX_DEPTH",
	"PRISMA_ENGINE_TX_TIMEOUT",
}

func TestLoadDefaults(t *testing.T) {
	memFs(t)
	unsetEnv(t, engineEnv...)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, Defaults(), cfg)
}

func TestLoadConfigFile(t *testing.T) {
	fs := memFs(t)
	unsetEnv(t, engineEnv...)
	writeConfig(t, fs, `
datasource_url: postgresql://app@localhost:5432/bookings
driver: pgx
batch_size: 250
tx_timeout: 10s
tx_isolation_level: Serializable
log_level: debug
log_queries: true
`)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "postgresql://app@localhost:5432/bookings", cfg.DatasourceURL)
	assert.Equal(t, "pgx", cfg.Driver)
	assert.Equal(t, 250, cfg.BatchSize)
	assert.Equal(t, 10*time.Second, cfg.TxTimeout)
	assert.Equal(t, 2*time.Second, cfg.TxMaxWait)
	assert.Equal(t, "Serializable", cfg.TxIsolationLevel)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.True(t, cfg.LogQueries)
}

func TestLoadEnvironmentOverridesFile(t *testing.T) {
	fs := memFs(t)
	unsetEnv(t, engineEnv...)
	writeConfig(t, fs, "batch_size: 250\n")
	t.Setenv("PRISMA_ENGINE_BATCH_SIZE", "64")
	t.Setenv("PRISMA_ENGINE_TX_TIMEOUT", "1m")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 64, cfg.BatchSize)
	assert.Equal(t, time.Minute, cfg.TxTimeout)
}

func TestLoadDotEnv(t *testing.T) {
	fs := memFs(t)
	unsetEnv(t, engineEnv...)
	require.NoError(t, afero.WriteFile(fs, ".env", []byte("DATABASE_URL=sqlite://./dev.db\nPRISMA_ENGINE_MAX_DEPTH=3\n"), 0o644))
	require.NoError(t, afero.WriteFile(fs, ".env.local", []byte("PRISMA_ENGINE_MAX_DEPTH=4\n"), 0o644))

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "sqlite://./dev.db", cfg.DatasourceURL)
	assert.Equal(t, 4, cfg.MaxDepth)
}

func TestLoadDotEnvDoesNotOverrideProcess(t *testing.T) {
	fs := memFs(t)
	unsetEnv(t, engineEnv...)
	t.Setenv("DATABASE_URL", "postgresql://prod/bookings")
	require.NoError(t, afero.WriteFile(fs, ".env", []byte("DATABASE_URL=sqlite://./dev.db\n"), 0o644))

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "postgresql://prod/bookings", cfg.DatasourceURL)
}

func TestLoadInvalidFile(t *testing.T) {
	fs := memFs(t)
	unsetEnv(t, engineEnv...)
	writeConfig(t, fs, "batch_size: [1, 2\n")

	_, err := Load()
	assert.Error(t, err)
}
