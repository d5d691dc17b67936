package cli

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/sitevault/sitevault/internal/audit"
)

type auditLogOptions struct {
	limit int
	json  bool
}

func newAuditLogCommand(opts *rootOptions) *cobra.Command {
	auditOpts := &auditLogOptions{limit: 20}

	cmd := &cobra.Command{
		Use:   "audit-log",
		Short: "Show recent vault operations",
		Long: `Show the most recent entries of the vault's audit log.

The audit log records which operation ran on which record and whether it
succeeded. It never contains passwords or passphrases.

Example:
  sitevault audit-log
  sitevault audit-log --limit 100 --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAuditLog(cmd, opts, auditOpts)
		},
	}

	cmd.Flags().IntVarP(&auditOpts.limit, "limit", "n", auditOpts.limit, "number of entries to show (0 for all)")
	cmd.Flags().BoolVar(&auditOpts.json, "json", false, "output entries as JSON")
	return cmd
}

func runAuditLog(cmd *cobra.Command, opts *rootOptions, auditOpts *auditLogOptions) error {
	if auditOpts.limit < 0 {
		return fmt.Errorf("--limit cannot be negative")
	}

	out := cmd.OutOrStdout()
	path := opts.cfg.AuditPath()
	if path == "" {
		fmt.Fprintln(out, "Audit logging is disabled (audit_log: false).")
		return nil
	}

	entries, err := audit.Open(path).Entries()
	if err != nil {
		return err
	}
	if auditOpts.limit > 0 && len(entries) > auditOpts.limit {
		entries = entries[len(entries)-auditOpts.limit:]
	}

	if auditOpts.json {
		payload, err := json.MarshalIndent(entries, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal audit entries: %w", err)
		}
		fmt.Fprintln(out, string(payload))
		return nil
	}

	if len(entries) == 0 {
		fmt.Fprintln(out, "No audit entries.")
		return nil
	}

	for _, e := range entries {
		status := successMark
		if !e.Success {
			status = failureMark
		}
		line := fmt.Sprintf("%s %s %-16s", status, e.Timestamp.Local().Format(time.DateTime), e.Type)
		if e.Record != "" {
			line += " " + e.Record
		}
		if e.Detail != "" {
			line += " (" + e.Detail + ")"
		}
		fmt.Fprintln(out, line)
	}
	return nil
}
