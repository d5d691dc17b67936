package cli

import (
	"github.com/spf13/cobra"

	"github.com/sitevault/sitevault/internal/master"
	"github.com/sitevault/sitevault/internal/session"
	"github.com/sitevault/sitevault/internal/vault"
)

func newInitCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create a new vault",
		Long: `Create the vault directory and set the master passphrase.

The master passphrase is both the unlock secret and the key every record
password is encrypted with. It cannot be recovered if lost.

Example:
  sitevault init
  sitevault init --backend bolt --vault-dir ~/vaults/work`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit(cmd, opts)
		},
	}
}

func runInit(cmd *cobra.Command, opts *rootOptions) error {
	s, err := session.Open(opts.cfg, opts.logger)
	if err != nil {
		return err
	}
	defer opts.closeVault(s)

	if s.Initialized() {
		return master.ErrAlreadyInitialized
	}

	p := newPrompter(cmd)
	passphrase, err := p.PasswordConfirm("New master passphrase: ")
	if err != nil {
		return err
	}
	defer vault.Zeroize(passphrase)

	if err := s.Bootstrap(passphrase); err != nil {
		return err
	}

	printSuccess(cmd.OutOrStdout(), "Vault initialized at %s (backend %s, master scheme %s)",
		highlight(opts.cfg.VaultDir), opts.cfg.Backend, s.Scheme())
	return nil
}
