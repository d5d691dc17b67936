package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	internalcrypto "github.com/sitevault/sitevault/internal/crypto"
	"github.com/sitevault/sitevault/internal/vault"
)

type addOptions struct {
	url      string
	login    string
	generate bool
	length   int
	charset  string
}

func newAddCommand(opts *rootOptions) *cobra.Command {
	addOpts := &addOptions{
		length:  internalcrypto.DefaultLength,
		charset: string(internalcrypto.CharsetAlnumSpecial),
	}

	cmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Add a new record",
		Long: `Add a record for a website. The URL and login are asked for when not
given as flags, and the password is always typed twice or generated.

An existing record is never overwritten; use update to change one.

Example:
  sitevault add github --url https://github.com --login octocat
  sitevault add forum --generate --length 32`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAdd(cmd, opts, addOpts, args[0])
		},
	}

	cmd.Flags().StringVar(&addOpts.url, "url", "", "website URL")
	cmd.Flags().StringVar(&addOpts.login, "login", "", "login or user name")
	cmd.Flags().BoolVarP(&addOpts.generate, "generate", "g", false, "generate the password")
	cmd.Flags().IntVar(&addOpts.length, "length", addOpts.length, "length of a generated password")
	cmd.Flags().StringVar(&addOpts.charset, "charset", addOpts.charset, "charset of a generated password (alpha|alnum|alnum_special)")
	return cmd
}

func runAdd(cmd *cobra.Command, opts *rootOptions, addOpts *addOptions, name string) error {
	p := newPrompter(cmd)
	s, err := opts.openUnlocked(p)
	if err != nil {
		return err
	}
	defer opts.closeVault(s)

	url := addOpts.url
	if !cmd.Flags().Changed("url") {
		if url, err = p.Input("URL: "); err != nil {
			return err
		}
	}
	login := addOpts.login
	if !cmd.Flags().Changed("login") {
		if login, err = p.Input("Login: "); err != nil {
			return err
		}
	}

	password, err := newRecordPassword(p, addOpts.generate, addOpts.length, addOpts.charset)
	if err != nil {
		return err
	}
	defer vault.Zeroize(password)

	if err := s.Add(name, url, login, password); err != nil {
		return err
	}

	printSuccess(cmd.OutOrStdout(), "Added %s", highlight(name))
	if addOpts.generate {
		fmt.Fprintf(cmd.OutOrStdout(), "  generated a %d-character password, use 'sitevault get %s' to see it\n", len(password), name)
	}
	return nil
}

// newRecordPassword generates a password or prompts for one twice.
func newRecordPassword(p *Prompter, generate bool, length int, charsetName string) ([]byte, error) {
	if generate {
		charset, err := internalcrypto.ParseCharset(charsetName)
		if err != nil {
			return nil, err
		}
		password, err := internalcrypto.GeneratePassword(length, charset)
		if err != nil {
			return nil, fmt.Errorf("failed to generate password: %w", err)
		}
		return password, nil
	}

	return p.PasswordConfirm("Password: ")
}
