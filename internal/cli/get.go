package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/sitevault/sitevault/internal/domain"
	"github.com/sitevault/sitevault/internal/vault"
)

type getOptions struct {
	copy bool
	ttl  int
}

func newGetCommand(opts *rootOptions) *cobra.Command {
	getOpts := &getOptions{ttl: -1}

	cmd := &cobra.Command{
		Use:   "get <name>",
		Short: "Show a record",
		Long: `Show the URL, login and password of a record.

With --copy the password is put on the clipboard instead of printed and the
command waits until the clipboard is cleared.

Example:
  sitevault get github
  sitevault get github --copy --ttl 15`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGet(cmd, opts, getOpts, args[0])
		},
	}

	cmd.Flags().BoolVarP(&getOpts.copy, "copy", "c", false, "copy the password to the clipboard")
	cmd.Flags().IntVar(&getOpts.ttl, "ttl", getOpts.ttl, "clipboard clear timeout in seconds (-1 to use config default)")
	return cmd
}

func runGet(cmd *cobra.Command, opts *rootOptions, getOpts *getOptions, name string) error {
	ttl, err := resolveClipboardTTL(getOpts.ttl, opts.cfg)
	if err != nil {
		return err
	}

	s, err := opts.openUnlocked(newPrompter(cmd))
	if err != nil {
		return err
	}
	defer opts.closeVault(s)

	rec, password, err := s.Get(name)
	if err != nil {
		return err
	}
	defer vault.Zeroize(password)

	out := cmd.OutOrStdout()
	if !getOpts.copy {
		printRecord(out, rec, password)
		return nil
	}

	printRecord(out, rec, nil)
	// The lock is released before waiting on the clipboard.
	opts.closeVault(s)
	return copySecret(cmd, string(password), ttl)
}

// printRecord prints rec; a nil password is masked.
func printRecord(w io.Writer, rec *domain.Record, password []byte) {
	fmt.Fprintf(w, "Name:     %s\n", highlight(rec.Name))
	fmt.Fprintf(w, "URL:      %s\n", rec.URL)
	fmt.Fprintf(w, "Login:    %s\n", rec.Login)
	if password == nil {
		fmt.Fprintln(w, "Password: ********")
		return
	}
	fmt.Fprintf(w, "Password: %s\n", password)
}
