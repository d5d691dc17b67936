package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	internalcrypto "github.com/sitevault/sitevault/internal/crypto"
	"github.com/sitevault/sitevault/internal/domain"
	"github.com/sitevault/sitevault/internal/vault"
)

type updateOptions struct {
	name     string
	url      string
	login    string
	password bool
	generate bool
	length   int
	charset  string
}

// recordFields are the fields a record modification can target.
var recordFields = []string{"name", "url", "login", "password"}

func newUpdateCommand(opts *rootOptions) *cobra.Command {
	updateOpts := &updateOptions{
		length:  internalcrypto.DefaultLength,
		charset: string(internalcrypto.CharsetAlnumSpecial),
	}

	cmd := &cobra.Command{
		Use:     "update <name>",
		Aliases: []string{"modify"},
		Short:   "Modify a record",
		Long: `Change the name, URL, login or password of a record. Without flags the
field to change is asked for interactively.

Renaming never overwrites another record.

Example:
  sitevault update github --login new-handle
  sitevault update github --name github-work
  sitevault update github --password
  sitevault update github --generate`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUpdate(cmd, opts, updateOpts, args[0])
		},
	}

	cmd.Flags().StringVar(&updateOpts.name, "name", "", "rename the record")
	cmd.Flags().StringVar(&updateOpts.url, "url", "", "new URL")
	cmd.Flags().StringVar(&updateOpts.login, "login", "", "new login")
	cmd.Flags().BoolVar(&updateOpts.password, "password", false, "prompt for a new password")
	cmd.Flags().BoolVarP(&updateOpts.generate, "generate", "g", false, "generate a new password")
	cmd.Flags().IntVar(&updateOpts.length, "length", updateOpts.length, "length of a generated password")
	cmd.Flags().StringVar(&updateOpts.charset, "charset", updateOpts.charset, "charset of a generated password (alpha|alnum|alnum_special)")
	return cmd
}

func runUpdate(cmd *cobra.Command, opts *rootOptions, updateOpts *updateOptions, name string) error {
	p := newPrompter(cmd)
	s, err := opts.openUnlocked(p)
	if err != nil {
		return err
	}
	defer opts.closeVault(s)

	var change domain.RecordChange
	flags := cmd.Flags()
	if flags.Changed("name") {
		change.Name = &updateOpts.name
	}
	if flags.Changed("url") {
		change.URL = &updateOpts.url
	}
	if flags.Changed("login") {
		change.Login = &updateOpts.login
	}
	if updateOpts.password || updateOpts.generate {
		change.Password, err = newRecordPassword(p, updateOpts.generate, updateOpts.length, updateOpts.charset)
		if err != nil {
			return err
		}
	}

	if change.IsEmpty() {
		change, err = promptChange(p)
		if err != nil {
			return err
		}
		if change.IsEmpty() {
			fmt.Fprintln(cmd.OutOrStdout(), "Nothing changed.")
			return nil
		}
	}
	defer vault.Zeroize(change.Password)

	if err := s.Update(name, change); err != nil {
		return err
	}

	if change.Name != nil && *change.Name != name {
		printSuccess(cmd.OutOrStdout(), "Renamed %s to %s", highlight(name), highlight(*change.Name))
	} else {
		printSuccess(cmd.OutOrStdout(), "Updated %s", highlight(name))
	}
	return nil
}

// promptChange asks which field to modify and its new value. An empty
// choice returns an empty change.
func promptChange(p *Prompter) (domain.RecordChange, error) {
	var change domain.RecordChange

	field, err := p.Choice("Which field do you want to modify?", recordFields)
	if err != nil || field < 0 {
		return change, err
	}

	switch recordFields[field] {
	case "name":
		value, err := p.Input("New name: ")
		if err != nil {
			return change, err
		}
		change.Name = &value
	case "url":
		value, err := p.Input("New URL: ")
		if err != nil {
			return change, err
		}
		change.URL = &value
	case "login":
		value, err := p.Input("New login: ")
		if err != nil {
			return change, err
		}
		change.Login = &value
	case "password":
		password, err := p.PasswordConfirm("New password: ")
		if err != nil {
			return change, err
		}
		change.Password = password
	}
	return change, nil
}
