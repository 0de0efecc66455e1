package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"ghminer/internal/config"
)

func TestLoad_AppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
clients:
  - token: ghp_abc123
`), 0o644))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	require.Equal(t, 5, cfg.Queue.MaxPerRequest)
	require.Equal(t, 5000, cfg.Queue.MaxTotal)
	require.Equal(t, "./logs", cfg.Logging.Dir)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestLoad_NoClients_Invalid(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`queue:
  max_per_request: 3
`), 0o644))

	_, err := config.Load(path)
	require.ErrorContains(t, err, "at least one client")
}

func TestLoad_EmptyToken_Invalid(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`clients:
  - token: ""
`), 0o644))

	_, err := config.Load(path)
	require.ErrorContains(t, err, "token is required")
}
