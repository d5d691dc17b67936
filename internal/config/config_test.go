package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_CreatesDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg", "config.yaml")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, BackendFile, cfg.Backend)
	assert.Equal(t, "argon2id", cfg.MasterScheme)
	assert.Equal(t, 3, cfg.MaxUnlockAttempts)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestLoadConfig_ReadsOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	data := []byte(`vault_dir: ` + dir + `/v
backend: bolt
master_scheme: legacy
max_unlock_attempts: 5
clipboard_ttl: 10s
audit_log: false
kdf:
  memory: 1024
  iterations: 1
  parallelism: 1
`)
	require.NoError(t, os.WriteFile(path, data, 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, BackendBolt, cfg.Backend)
	assert.Equal(t, "legacy", cfg.MasterScheme)
	assert.Equal(t, 5, cfg.MaxUnlockAttempts)
	assert.Equal(t, 10*time.Second, cfg.ClipboardTTL)
	assert.Equal(t, uint32(1024), cfg.Argon2Params().Memory)
	assert.Equal(t, "", cfg.AuditPath())
	assert.Equal(t, filepath.Join(dir, "v", "vault.db"), cfg.BoltPath())
}

func TestLoadConfig_RejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("backend: sqlite\n"), 0o600))

	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty dir", func(c *Config) { c.VaultDir = "" }},
		{"bad scheme", func(c *Config) { c.MasterScheme = "plain" }},
		{"no attempts", func(c *Config) { c.MaxUnlockAttempts = 0 }},
		{"negative ttl", func(c *Config) { c.ClipboardTTL = -time.Second }},
		{"bad kdf", func(c *Config) { c.KDF.Iterations = 0 }},
	}

	require.NoError(t, DefaultConfig().Validate())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestDerivedPaths(t *testing.T) {
	cfg := DefaultConfig()
	cfg.VaultDir = "/data/vault"

	assert.Equal(t, filepath.Join("/data/vault", "masterpsw.txt"), cfg.MasterPath())
	assert.Equal(t, filepath.Join("/data/vault", "psw"), cfg.RecordsDir())
	assert.Equal(t, filepath.Join("/data/vault", "audit.jsonl"), cfg.AuditPath())
	assert.Equal(t, filepath.Join("/data/vault", ".lock"), cfg.LockPath())
}
