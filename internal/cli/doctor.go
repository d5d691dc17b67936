package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/sitevault/sitevault/internal/config"
	"github.com/sitevault/sitevault/internal/master"
	"github.com/sitevault/sitevault/internal/session"
	"github.com/sitevault/sitevault/internal/store"
	"github.com/sitevault/sitevault/internal/vault"
)

type doctorReport struct {
	out      io.Writer
	issues   int
	warnings int
	corrupt  int
}

func (r *doctorReport) ok(format string, args ...interface{}) {
	fmt.Fprintf(r.out, "   "+successMark+" "+format+"\n", args...)
}

func (r *doctorReport) warn(format string, args ...interface{}) {
	r.warnings++
	fmt.Fprintf(r.out, "   "+warningMark+" "+format+"\n", args...)
}

func (r *doctorReport) fail(format string, args ...interface{}) {
	r.issues++
	fmt.Fprintf(r.out, "   "+failureMark+" "+format+"\n", args...)
}

func newDoctorCommand(opts *rootOptions) *cobra.Command {
	var skipRecords bool

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Perform security and health checks",
		Long: `Perform security and health checks on the vault.

This command checks:
- File permissions of the vault directory, its files and the config file
- The master passphrase scheme and Argon2id parameters
- That every record can be read and decrypted (asks for the master passphrase)

Example:
  sitevault doctor
  sitevault doctor --skip-records`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDoctor(cmd, opts, skipRecords)
		},
	}

	cmd.Flags().BoolVar(&skipRecords, "skip-records", false, "skip the record check that needs the master passphrase")
	return cmd
}

func runDoctor(cmd *cobra.Command, opts *rootOptions, skipRecords bool) error {
	r := &doctorReport{out: cmd.OutOrStdout()}
	cfg := opts.cfg

	fmt.Fprintln(r.out, "Vault Security & Health Check")
	fmt.Fprintln(r.out, "=============================")

	fmt.Fprintln(r.out, "\n1. File Security")
	checkPermissions(r, "Vault directory", cfg.VaultDir, 0o700)
	switch cfg.Backend {
	case config.BackendBolt:
		checkPermissions(r, "Vault database", cfg.BoltPath(), 0o600)
	default:
		checkPermissions(r, "Master file", cfg.MasterPath(), 0o600)
		checkPermissions(r, "Record directory", cfg.RecordsDir(), 0o700)
	}
	if path := cfg.AuditPath(); path != "" {
		checkPermissions(r, "Audit log", path, 0o600)
	}
	checkPermissions(r, "Config file", opts.cfgFile, 0o600)

	fmt.Fprintln(r.out, "\n2. Master Passphrase")
	s, err := opts.openVault()
	if err != nil {
		return err
	}
	defer opts.closeVault(s)

	if s.Scheme() == master.SchemeLegacy {
		r.warn("Master scheme: legacy (reversible, run 'sitevault rotate-master' with master_scheme: argon2id to upgrade)")
	} else {
		r.ok("Master scheme: %s", s.Scheme())
	}
	if cfg.MasterScheme == string(master.SchemeLegacy) {
		r.warn("master_scheme is set to legacy, new passphrases will be stored reversibly")
	}
	checkKDF(r, cfg.Argon2Params())

	fmt.Fprintln(r.out, "\n3. Record Integrity")
	if skipRecords {
		r.warn("Record check skipped")
	} else {
		checkRecords(cmd, opts, r, s)
	}

	fmt.Fprintln(r.out, "\n4. Clipboard")
	if cfg.ClipboardTTL > 60*time.Second {
		r.warn("Clipboard timeout is %v (consider reducing for better security)", cfg.ClipboardTTL)
	} else {
		r.ok("Clipboard timeout: %v", cfg.ClipboardTTL)
	}

	fmt.Fprintln(r.out, "\n"+strings.Repeat("=", 40))
	switch {
	case r.corrupt > 0:
		return fmt.Errorf("%w: %d record(s) cannot be read", store.ErrCorruptRecord, r.corrupt)
	case r.issues > 0:
		if r.warnings > 0 {
			fmt.Fprintf(r.out, "Found %d warning(s) for consideration\n", r.warnings)
		}
		return fmt.Errorf("found %d issue(s) that should be fixed", r.issues)
	case r.warnings > 0:
		fmt.Fprintf(r.out, "No issues, %d warning(s) for consideration\n", r.warnings)
	default:
		printSuccess(r.out, "All checks passed")
	}
	return nil
}

func checkPermissions(r *doctorReport, label, path string, want os.FileMode) {
	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		r.ok("%s not present: %s", label, path)
		return
	}
	if err != nil {
		r.fail("Cannot check %s: %v", strings.ToLower(label), err)
		return
	}

	perm := info.Mode().Perm()
	switch {
	case perm&0o077 == 0:
		r.ok("%s permissions: %o", label, perm)
	case perm&0o007 != 0:
		r.fail("%s permissions: %o (too permissive, should be %o)", label, perm, want)
		fmt.Fprintf(r.out, "      Fix with: chmod %o %s\n", want, path)
	default:
		r.warn("%s permissions: %o (%o recommended)", label, perm, want)
	}
}

func checkKDF(r *doctorReport, params vault.Argon2Params) {
	switch {
	case params.Memory >= vault.DefaultArgon2Memory:
		r.ok("KDF memory parameter: %d KB", params.Memory)
	case params.Memory >= 8192:
		r.warn("KDF memory parameter: %d KB (acceptable but consider increasing)", params.Memory)
	default:
		r.fail("KDF memory parameter: %d KB (weak, should be at least 8192 KB)", params.Memory)
	}

	if params.Iterations >= vault.DefaultArgon2Iterations {
		r.ok("KDF iterations: %d", params.Iterations)
	} else {
		r.warn("KDF iterations: %d (consider increasing for better security)", params.Iterations)
	}
}

func checkRecords(cmd *cobra.Command, opts *rootOptions, r *doctorReport, s *session.Session) {
	p := newPrompter(cmd)
	err := s.UnlockWith(func(int) ([]byte, error) {
		return p.Password("Master passphrase: ")
	})
	if err != nil {
		r.fail("Cannot unlock the vault: %v", err)
		return
	}

	checked, bad, err := s.Check()
	if err != nil {
		r.fail("Cannot list records: %v", err)
		return
	}

	names := make([]string, 0, len(bad))
	for name := range bad {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		r.corrupt++
		r.fail("%s: %v", name, bad[name])
	}
	if len(bad) == 0 {
		r.ok("%d record(s) readable", checked)
	}
	opts.logger.Debugf("checked %d records, %d unreadable", checked, len(bad))
}
