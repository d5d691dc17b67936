package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newDeleteCommand(opts *rootOptions) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:     "delete <name>",
		Aliases: []string{"rm"},
		Short:   "Delete a record",
		Long: `Delete a record permanently. Asks for confirmation unless --yes is given or
confirm_destructive is off.

Example:
  sitevault delete old-forum
  sitevault delete old-forum --yes`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDelete(cmd, opts, args[0], yes)
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip the confirmation prompt")
	return cmd
}

func runDelete(cmd *cobra.Command, opts *rootOptions, name string, yes bool) error {
	p := newPrompter(cmd)
	s, err := opts.openUnlocked(p)
	if err != nil {
		return err
	}
	defer opts.closeVault(s)

	if !yes && opts.cfg.ConfirmDestructive {
		ok, err := p.Confirm(fmt.Sprintf("Delete record %q permanently?", name), false)
		if err != nil {
			return err
		}
		if !ok {
			fmt.Fprintln(cmd.OutOrStdout(), "Deletion cancelled.")
			return nil
		}
	}

	if err := s.Delete(name); err != nil {
		return err
	}

	printSuccess(cmd.OutOrStdout(), "Deleted %s", highlight(name))
	return nil
}
