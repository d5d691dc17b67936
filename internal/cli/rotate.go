package cli

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/briandowns/spinner"
	"github.com/spf13/cobra"

	"github.com/sitevault/sitevault/internal/rotation"
	"github.com/sitevault/sitevault/internal/session"
	"github.com/sitevault/sitevault/internal/vault"
)

func newRotateMasterCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "rotate-master",
		Aliases: []string{"passwd"},
		Short:   "Change the master passphrase",
		Long: `Change the master passphrase and re-encrypt every record with it.

Every record is read and re-encrypted in memory before anything is written,
then the records and the new master passphrase are committed together. If
any step fails the vault keeps the old passphrase and the old records. A
rotation interrupted by a crash is finished or undone the next time the
vault is opened.

Example:
  sitevault rotate-master`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRotateMaster(cmd, opts)
		},
	}
}

func runRotateMaster(cmd *cobra.Command, opts *rootOptions) error {
	p := newPrompter(cmd)
	s, err := opts.openVault()
	if err != nil {
		return err
	}
	defer opts.closeVault(s)

	var current []byte
	defer func() { vault.Zeroize(current) }()

	err = s.UnlockWith(func(int) ([]byte, error) {
		candidate, err := p.Password("Current master passphrase: ")
		if err != nil {
			return nil, err
		}
		vault.Zeroize(current)
		current = append([]byte(nil), candidate...)
		return candidate, nil
	})
	if err != nil {
		return err
	}

	return rotateMaster(cmd, opts, s, p, current)
}

// rotateMaster asks for the new passphrase and rotates an unlocked session
// from current to it.
func rotateMaster(cmd *cobra.Command, opts *rootOptions, s *session.Session, p *Prompter, current []byte) error {
	next, err := p.PasswordConfirm("New master passphrase: ")
	if err != nil {
		return err
	}
	defer vault.Zeroize(next)

	if len(next) == 0 {
		return fmt.Errorf("%w: the new master passphrase cannot be empty", vault.ErrInvalidKey)
	}

	ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt)
	defer stop()

	sp := startSpinner(cmd, opts, "Re-encrypting records")
	result, err := s.Rotate(ctx, current, next, func(done, total int) {
		sp.Lock()
		sp.Suffix = fmt.Sprintf(" Re-encrypting records (%d/%d)", done, total)
		sp.Unlock()
		opts.logger.Debugf("re-encrypted %d of %d records", done, total)
	})
	sp.Stop()

	out := cmd.OutOrStdout()
	if err != nil {
		if errors.Is(err, rotation.ErrRestoreFailed) {
			printFailure(cmd.ErrOrStderr(), "Master passphrase change failed and the vault could not be fully restored")
		} else {
			printFailure(cmd.ErrOrStderr(), "Master passphrase unchanged")
		}
		return err
	}

	printSuccess(out, "Master passphrase changed, %d record(s) re-encrypted in %s",
		len(result.Rotated), result.Duration.Round(time.Millisecond))
	return nil
}

func startSpinner(cmd *cobra.Command, opts *rootOptions, message string) *spinner.Spinner {
	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(cmd.ErrOrStderr()))
	s.Suffix = " " + message

	// An unsupported color leaves the spinner plain.
	_ = s.Color("cyan")

	if !opts.logger.Verbose {
		s.Start()
	}
	return s
}
