package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	require.Equal(t, ":8554", cfg.PublishAddress)
	require.Equal(t, ":8554", cfg.ClientAddress)
	require.Equal(t, 10000, cfg.RTPPortCount)
	require.Equal(t, 60*time.Second, cfg.KeepaliveInterval)
}

func TestLoadOverridesAndKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "relay.yaml")
	err := os.WriteFile(path, []byte(
		"publishAddress: :9554\n"+
			"auth:\n"+
			"  user: admin\n"+
			"  pass: secret\n"+
			"  realm: myrealm\n"), 0o600)
	require.NoError(t, err)

	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, ":9554", cfg.PublishAddress)
	// unset fields keep the reference defaults.
	require.Equal(t, ":8554", cfg.ClientAddress)
	require.Equal(t, 10000, cfg.RTPPortCount)

	require.NotNil(t, cfg.Auth)
	require.Equal(t, "admin", cfg.Auth.User)
	require.Equal(t, "secret", cfg.Auth.Pass)
	require.Equal(t, "myrealm", cfg.Auth.Realm)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
