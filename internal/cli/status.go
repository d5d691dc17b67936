package cli

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/sitevault/sitevault/internal/session"
	"github.com/sitevault/sitevault/internal/vault"
)

type statusInfo struct {
	VaultDir     string             `json:"vault_dir"`
	Backend      string             `json:"backend"`
	Initialized  bool               `json:"initialized"`
	MasterScheme string             `json:"master_scheme,omitempty"`
	KDF          vault.Argon2Params `json:"kdf"`
	AuditLog     string             `json:"audit_log,omitempty"`
	LastActivity *time.Time         `json:"last_activity,omitempty"`
}

func newStatusCommand(opts *rootOptions) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show vault status",
		Long:  "Display where the vault lives, its backend and master scheme, and the last recorded activity. Does not need the master passphrase.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(cmd, opts, asJSON)
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Output status as JSON")
	return cmd
}

func runStatus(cmd *cobra.Command, opts *rootOptions, asJSON bool) error {
	s, err := session.Open(opts.cfg, opts.logger)
	if err != nil {
		return err
	}
	defer opts.closeVault(s)

	result := statusInfo{
		VaultDir:    opts.cfg.VaultDir,
		Backend:     opts.cfg.Backend,
		Initialized: s.Initialized(),
		KDF:         opts.cfg.Argon2Params(),
		AuditLog:    s.Audit().Path(),
	}
	if result.Initialized {
		result.MasterScheme = string(s.Scheme())
	}

	entries, err := s.Audit().Entries()
	if err != nil {
		opts.logger.Warnf("%v", err)
	}
	if len(entries) > 0 {
		last := entries[len(entries)-1].Timestamp
		result.LastActivity = &last
	}

	out := cmd.OutOrStdout()
	if asJSON {
		payload, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal status: %w", err)
		}
		fmt.Fprintln(out, string(payload))
		return nil
	}

	fmt.Fprintf(out, "Vault: %s\n", highlight(result.VaultDir))
	fmt.Fprintf(out, "Backend: %s\n", result.Backend)
	if result.Initialized {
		fmt.Fprintf(out, "Master: %s\n", result.MasterScheme)
	} else {
		fmt.Fprintln(out, "Master: not initialized (run 'sitevault init')")
	}
	fmt.Fprintf(out, "KDF: Argon2id (memory %d KB, iterations %d, parallelism %d)\n",
		result.KDF.Memory, result.KDF.Iterations, result.KDF.Parallelism)
	if result.AuditLog == "" {
		fmt.Fprintln(out, "Audit log: disabled")
	} else {
		fmt.Fprintf(out, "Audit log: %s\n", result.AuditLog)
	}
	if result.LastActivity != nil {
		fmt.Fprintf(out, "Last activity: %s\n", result.LastActivity.Local().Format(time.RFC3339))
	} else {
		fmt.Fprintln(out, "Last activity: n/a")
	}
	return nil
}
