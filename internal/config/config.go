// Package config handles the configuration management for sitevault.
// It provides functionality to load, save, and validate the YAML settings
// file and derives every on-disk location of a vault from its directory.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sitevault/sitevault/internal/vault"
)

// Storage backends.
const (
	BackendFile = "file"
	BackendBolt = "bolt"
)

// Config represents the vault configuration
type Config struct {
	VaultDir           string        `yaml:"vault_dir"`
	Backend            string        `yaml:"backend"`
	MasterScheme       string        `yaml:"master_scheme"`
	MaxUnlockAttempts  int           `yaml:"max_unlock_attempts"`
	ClipboardTTL       time.Duration `yaml:"clipboard_ttl"`
	ConfirmDestructive bool          `yaml:"confirm_destructive"`
	AuditLog           bool          `yaml:"audit_log"`
	KDF                KDFConfig     `yaml:"kdf"`
}

// KDFConfig represents Argon2id parameters for new master verifiers
type KDFConfig struct {
	Memory      uint32 `yaml:"memory"`
	Iterations  uint32 `yaml:"iterations"`
	Parallelism uint8  `yaml:"parallelism"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		VaultDir:           filepath.Join(home, ".local", "share", "sitevault"),
		Backend:            BackendFile,
		MasterScheme:       "argon2id",
		MaxUnlockAttempts:  3,
		ClipboardTTL:       30 * time.Second,
		ConfirmDestructive: true,
		AuditLog:           true,
		KDF: KDFConfig{
			Memory:      vault.DefaultArgon2Memory,
			Iterations:  vault.DefaultArgon2Iterations,
			Parallelism: vault.DefaultArgon2Parallelism,
		},
	}
}

// DefaultConfigPath returns $HOME/.config/sitevault/config.yaml.
func DefaultConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".config", "sitevault", "config.yaml"), nil
}

// LoadConfig loads configuration from file or returns default
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if configPath == "" {
		return cfg, nil
	}

	// Clean the file path to prevent directory traversal
	cleanPath := filepath.Clean(configPath)

	// Check if config file exists
	if _, err := os.Stat(cleanPath); os.IsNotExist(err) {
		// Create default config file
		if err := SaveConfig(cfg, cleanPath); err != nil {
			return cfg, fmt.Errorf("failed to create default config: %w", err)
		}
		return cfg, nil
	}

	// Read config file
	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config file: %w", err)
	}

	// Parse YAML
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config file %s: %w", cleanPath, err)
	}

	return cfg, nil
}

// SaveConfig saves configuration to file
func SaveConfig(cfg *Config, configPath string) error {
	// Clean the file path to prevent directory traversal
	cleanPath := filepath.Clean(configPath)

	// Create directory if it doesn't exist
	dir := filepath.Dir(cleanPath)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	// Marshal to YAML
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// Write to file using cleaned path
	if err := os.WriteFile(cleanPath, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate checks field values.
func (c *Config) Validate() error {
	if c.VaultDir == "" {
		return fmt.Errorf("vault_dir must be set")
	}
	switch c.Backend {
	case BackendFile, BackendBolt:
	default:
		return fmt.Errorf("backend must be %q or %q, got %q", BackendFile, BackendBolt, c.Backend)
	}
	switch c.MasterScheme {
	case "argon2id", "legacy":
	default:
		return fmt.Errorf("master_scheme must be \"argon2id\" or \"legacy\", got %q", c.MasterScheme)
	}
	if c.MaxUnlockAttempts < 1 {
		return fmt.Errorf("max_unlock_attempts must be at least 1")
	}
	if c.ClipboardTTL < 0 {
		return fmt.Errorf("clipboard_ttl cannot be negative")
	}
	if err := vault.ValidateArgon2Params(c.Argon2Params()); err != nil {
		return fmt.Errorf("kdf: %w", err)
	}
	return nil
}

// Argon2Params converts the kdf section.
func (c *Config) Argon2Params() vault.Argon2Params {
	return vault.Argon2Params{
		Memory:      c.KDF.Memory,
		Iterations:  c.KDF.Iterations,
		Parallelism: c.KDF.Parallelism,
	}
}

// MasterPath is the master blob file of the file backend.
func (c *Config) MasterPath() string {
	return filepath.Join(c.VaultDir, "masterpsw.txt")
}

// RecordsDir is the record directory of the file backend.
func (c *Config) RecordsDir() string {
	return filepath.Join(c.VaultDir, "psw")
}

// BoltPath is the database file of the bolt backend.
func (c *Config) BoltPath() string {
	return filepath.Join(c.VaultDir, "vault.db")
}

// AuditPath is the audit log, or "" when auditing is off.
func (c *Config) AuditPath() string {
	if !c.AuditLog {
		return ""
	}
	return filepath.Join(c.VaultDir, "audit.jsonl")
}

// LockPath is the session lock file.
func (c *Config) LockPath() string {
	return filepath.Join(c.VaultDir, ".lock")
}
