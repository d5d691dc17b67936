package cli

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/sitevault/sitevault/internal/config"
)

// configField reads and writes one config key as text.
type configField struct {
	get func(c *config.Config) string
	set func(c *config.Config, value string) error
}

// configKeys lists the settable keys in display order.
var configKeys = []string{
	"vault_dir",
	"backend",
	"master_scheme",
	"max_unlock_attempts",
	"clipboard_ttl",
	"confirm_destructive",
	"audit_log",
	"kdf.memory",
	"kdf.iterations",
	"kdf.parallelism",
}

var configFields = map[string]configField{
	"vault_dir": {
		get: func(c *config.Config) string { return c.VaultDir },
		set: func(c *config.Config, v string) error { c.VaultDir = v; return nil },
	},
	"backend": {
		get: func(c *config.Config) string { return c.Backend },
		set: func(c *config.Config, v string) error { c.Backend = v; return nil },
	},
	"master_scheme": {
		get: func(c *config.Config) string { return c.MasterScheme },
		set: func(c *config.Config, v string) error { c.MasterScheme = v; return nil },
	},
	"max_unlock_attempts": {
		get: func(c *config.Config) string { return strconv.Itoa(c.MaxUnlockAttempts) },
		set: func(c *config.Config, v string) error {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("invalid integer value: %w", err)
			}
			c.MaxUnlockAttempts = n
			return nil
		},
	},
	"clipboard_ttl": {
		get: func(c *config.Config) string { return c.ClipboardTTL.String() },
		set: func(c *config.Config, v string) error {
			d, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("invalid duration: %w", err)
			}
			c.ClipboardTTL = d
			return nil
		},
	},
	"confirm_destructive": {
		get: func(c *config.Config) string { return strconv.FormatBool(c.ConfirmDestructive) },
		set: func(c *config.Config, v string) error {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("invalid boolean value: %w", err)
			}
			c.ConfirmDestructive = b
			return nil
		},
	},
	"audit_log": {
		get: func(c *config.Config) string { return strconv.FormatBool(c.AuditLog) },
		set: func(c *config.Config, v string) error {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("invalid boolean value: %w", err)
			}
			c.AuditLog = b
			return nil
		},
	},
	"kdf.memory": {
		get: func(c *config.Config) string { return strconv.FormatUint(uint64(c.KDF.Memory), 10) },
		set: func(c *config.Config, v string) error {
			n, err := strconv.ParseUint(v, 10, 32)
			if err != nil {
				return fmt.Errorf("invalid integer value: %w", err)
			}
			c.KDF.Memory = uint32(n)
			return nil
		},
	},
	"kdf.iterations": {
		get: func(c *config.Config) string { return strconv.FormatUint(uint64(c.KDF.Iterations), 10) },
		set: func(c *config.Config, v string) error {
			n, err := strconv.ParseUint(v, 10, 32)
			if err != nil {
				return fmt.Errorf("invalid integer value: %w", err)
			}
			c.KDF.Iterations = uint32(n)
			return nil
		},
	},
	"kdf.parallelism": {
		get: func(c *config.Config) string { return strconv.FormatUint(uint64(c.KDF.Parallelism), 10) },
		set: func(c *config.Config, v string) error {
			n, err := strconv.ParseUint(v, 10, 8)
			if err != nil {
				return fmt.Errorf("invalid integer value: %w", err)
			}
			c.KDF.Parallelism = uint8(n)
			return nil
		},
	},
}

func lookupConfigField(key string) (string, configField, error) {
	normalized := strings.ReplaceAll(strings.ToLower(key), "-", "_")
	field, ok := configFields[normalized]
	if !ok {
		return "", configField{}, fmt.Errorf("unknown configuration key: %s", key)
	}
	return normalized, field, nil
}

func newConfigCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage sitevault configuration",
		Long: `Manage sitevault configuration settings.

You can view, set, or get individual configuration values.
Configuration is stored in ~/.config/sitevault/config.yaml by default.

Example:
  sitevault config path                      # Show config file path
  sitevault config get clipboard_ttl         # Get clipboard timeout
  sitevault config set clipboard_ttl 60s     # Set clipboard timeout
  sitevault config get                       # Show all configuration`,
	}

	getCmd := &cobra.Command{
		Use:   "get [key]",
		Short: "Get configuration value(s)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return runConfigGetAll(cmd, opts)
			}
			return runConfigGet(cmd, opts, args[0])
		},
	}

	setCmd := &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set configuration value",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigSet(cmd, opts, args[0], args[1])
		},
	}

	pathCmd := &cobra.Command{
		Use:   "path",
		Short: "Show configuration file path",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), opts.cfgFile)
			return nil
		},
	}

	cmd.AddCommand(getCmd, setCmd, pathCmd)
	return cmd
}

func runConfigGetAll(cmd *cobra.Command, opts *rootOptions) error {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Configuration file: %s\n\n", opts.cfgFile)
	for _, key := range configKeys {
		fmt.Fprintf(out, "%s: %s\n", key, configFields[key].get(opts.cfg))
	}
	return nil
}

func runConfigGet(cmd *cobra.Command, opts *rootOptions, key string) error {
	_, field, err := lookupConfigField(key)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), field.get(opts.cfg))
	return nil
}

// runConfigSet edits the file as stored, so --vault-dir and --backend
// overrides of this invocation are not persisted.
func runConfigSet(cmd *cobra.Command, opts *rootOptions, key, value string) error {
	normalized, field, err := lookupConfigField(key)
	if err != nil {
		return err
	}

	stored, err := config.LoadConfig(opts.cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := field.set(stored, value); err != nil {
		return err
	}
	if err := stored.Validate(); err != nil {
		return fmt.Errorf("invalid value for %s: %w", normalized, err)
	}

	if err := config.SaveConfig(stored, opts.cfgFile); err != nil {
		return fmt.Errorf("failed to save configuration: %w", err)
	}

	printSuccess(cmd.OutOrStdout(), "Configuration updated: %s = %s", normalized, field.get(stored))
	return nil
}
