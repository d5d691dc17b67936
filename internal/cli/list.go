package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newListCommand(opts *rootOptions) *cobra.Command {
	var search string

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List stored records",
		Long: `List the names of all records in sorted order.

Example:
  sitevault list
  sitevault list --search mail`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runList(cmd, opts, search)
		},
	}

	cmd.Flags().StringVarP(&search, "search", "s", "", "only show names containing this text")
	return cmd
}

func runList(cmd *cobra.Command, opts *rootOptions, search string) error {
	s, err := opts.openUnlocked(newPrompter(cmd))
	if err != nil {
		return err
	}
	defer opts.closeVault(s)

	names, err := s.List()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	shown := 0
	for i, name := range names {
		if search != "" && !strings.Contains(strings.ToLower(name), strings.ToLower(search)) {
			continue
		}
		fmt.Fprintf(out, "%d. %s\n", i+1, name)
		shown++
	}

	if shown == 0 {
		fmt.Fprintln(out, "No records found.")
	}
	return nil
}
