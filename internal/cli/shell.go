package cli

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	internalcrypto "github.com/sitevault/sitevault/internal/crypto"
	"github.com/sitevault/sitevault/internal/domain"
	"github.com/sitevault/sitevault/internal/master"
	"github.com/sitevault/sitevault/internal/session"
	"github.com/sitevault/sitevault/internal/vault"
)

// Action is an entry of the interactive menu.
type Action int

// Menu actions, numbered as shown to the user.
const (
	ActionView Action = iota + 1
	ActionAdd
	ActionDelete
	ActionModify
	ActionChangeMaster
	ActionQuit
)

var actions = []Action{ActionView, ActionAdd, ActionDelete, ActionModify, ActionChangeMaster, ActionQuit}

func (a Action) String() string {
	switch a {
	case ActionView:
		return "View a record"
	case ActionAdd:
		return "Add a record"
	case ActionDelete:
		return "Delete a record"
	case ActionModify:
		return "Modify a record"
	case ActionChangeMaster:
		return "Change the master passphrase"
	case ActionQuit:
		return "Quit"
	default:
		return fmt.Sprintf("Action(%d)", int(a))
	}
}

// errUnknownAction is returned for menu input that names no action
var errUnknownAction = errors.New("unknown menu choice")

// parseAction maps menu input, a number or "q", to an Action.
func parseAction(input string) (Action, error) {
	input = strings.ToLower(strings.TrimSpace(input))
	if input == "q" || input == "quit" {
		return ActionQuit, nil
	}

	n, err := strconv.Atoi(input)
	if err != nil || n < int(ActionView) || n > int(ActionQuit) {
		return 0, fmt.Errorf("%w: %q", errUnknownAction, input)
	}
	return Action(n), nil
}

func newShellCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "shell",
		Short: "Open the interactive menu",
		Long: `Open the interactive menu. On first use it creates the vault; afterwards it
asks for the master passphrase and gives up after max_unlock_attempts wrong
answers.

Running sitevault without a subcommand does the same.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runShell(cmd, opts)
		},
	}
}

// shell is one interactive menu session over an unlocked vault.
type shell struct {
	cmd  *cobra.Command
	opts *rootOptions
	s    *session.Session
	p    *Prompter
	out  io.Writer
}

func runShell(cmd *cobra.Command, opts *rootOptions) error {
	s, err := session.Open(opts.cfg, opts.logger)
	if err != nil {
		return err
	}
	defer opts.closeVault(s)

	sh := &shell{cmd: cmd, opts: opts, s: s, p: newPrompter(cmd), out: cmd.OutOrStdout()}
	if err := sh.unlock(); err != nil {
		if errors.Is(err, errInputClosed) {
			return nil
		}
		return err
	}
	return sh.loop()
}

func (sh *shell) unlock() error {
	if !sh.s.Initialized() {
		fmt.Fprintln(sh.out, "No vault found, choose a master passphrase to create one.")
		passphrase, err := sh.p.PasswordConfirm("New master passphrase: ")
		if err != nil {
			return err
		}
		defer vault.Zeroize(passphrase)
		if err := sh.s.Bootstrap(passphrase); err != nil {
			return err
		}
		printSuccess(sh.out, "Vault created at %s", highlight(sh.opts.cfg.VaultDir))
		return nil
	}

	return sh.s.UnlockWith(func(attempt int) ([]byte, error) {
		return sh.p.Password(fmt.Sprintf("Master passphrase (attempt %d of %d): ", attempt, sh.s.MaxAttempts()))
	})
}

func (sh *shell) loop() error {
	for {
		fmt.Fprintln(sh.out)
		for _, a := range actions {
			fmt.Fprintf(sh.out, "%d. %s\n", int(a), a)
		}

		input, err := sh.p.Input("Choice: ")
		if err != nil {
			if errors.Is(err, errInputClosed) {
				return nil
			}
			return err
		}

		action, err := parseAction(input)
		if err != nil {
			printWarning(sh.out, "%v", err)
			continue
		}
		if action == ActionQuit {
			return nil
		}

		if err := sh.dispatch(action); err != nil {
			if errors.Is(err, errInputClosed) {
				return nil
			}
			printFailure(sh.out, "%v", err)
		}
	}
}

func (sh *shell) dispatch(action Action) error {
	switch action {
	case ActionView:
		return sh.view()
	case ActionAdd:
		return sh.add()
	case ActionDelete:
		return sh.delete()
	case ActionModify:
		return sh.modify()
	case ActionChangeMaster:
		return sh.changeMaster()
	default:
		return fmt.Errorf("%w: %d", errUnknownAction, int(action))
	}
}

// pickRecord lists the records and returns the one chosen, or "" when
// there are none or the user chose nothing.
func (sh *shell) pickRecord() (string, error) {
	names, err := sh.s.List()
	if err != nil {
		return "", err
	}
	if len(names) == 0 {
		fmt.Fprintln(sh.out, "No records stored.")
		return "", nil
	}

	i, err := sh.p.Choice("Records:", names)
	if err != nil || i < 0 {
		return "", err
	}
	return names[i], nil
}

func (sh *shell) view() error {
	name, err := sh.pickRecord()
	if err != nil || name == "" {
		return err
	}

	rec, password, err := sh.s.Get(name)
	if err != nil {
		return err
	}
	defer vault.Zeroize(password)

	fmt.Fprintln(sh.out)
	printRecord(sh.out, rec, password)
	return nil
}

func (sh *shell) add() error {
	name, err := sh.p.Input("Name: ")
	if err != nil {
		return err
	}
	url, err := sh.p.Input("URL: ")
	if err != nil {
		return err
	}
	login, err := sh.p.Input("Login: ")
	if err != nil {
		return err
	}

	password, err := sh.p.Password("Password (empty to generate): ")
	if err != nil {
		return err
	}
	defer func() { vault.Zeroize(password) }()

	if len(password) == 0 {
		password, err = internalcrypto.GeneratePassword(internalcrypto.DefaultLength, internalcrypto.CharsetAlnumSpecial)
		if err != nil {
			return fmt.Errorf("failed to generate password: %w", err)
		}
		fmt.Fprintf(sh.out, "Generated a %d-character password.\n", len(password))
	} else {
		confirm, err := sh.p.Password("Confirm: ")
		if err != nil {
			return err
		}
		match := vault.SecureCompare(password, confirm)
		vault.Zeroize(confirm)
		if !match {
			return errPassphraseMismatch
		}
	}

	if err := sh.s.Add(name, url, login, password); err != nil {
		return err
	}
	printSuccess(sh.out, "Added %s", highlight(name))
	return nil
}

func (sh *shell) delete() error {
	name, err := sh.pickRecord()
	if err != nil || name == "" {
		return err
	}

	if sh.opts.cfg.ConfirmDestructive {
		ok, err := sh.p.Confirm(fmt.Sprintf("Delete %q permanently?", name), false)
		if err != nil {
			return err
		}
		if !ok {
			fmt.Fprintln(sh.out, "Deletion cancelled.")
			return nil
		}
	}

	if err := sh.s.Delete(name); err != nil {
		return err
	}
	printSuccess(sh.out, "Deleted %s", highlight(name))
	return nil
}

func (sh *shell) modify() error {
	name, err := sh.pickRecord()
	if err != nil || name == "" {
		return err
	}

	change, err := promptChange(sh.p)
	if err != nil {
		return err
	}
	defer vault.Zeroize(change.Password)
	if change.IsEmpty() {
		return nil
	}

	if err := sh.s.Update(name, change); err != nil {
		return err
	}
	printSuccess(sh.out, "Updated %s", highlight(recordName(name, change)))
	return nil
}

func (sh *shell) changeMaster() error {
	current, err := sh.p.Password("Current master passphrase: ")
	if err != nil {
		return err
	}
	defer vault.Zeroize(current)

	if !sh.s.VerifyPassphrase(current) {
		return master.ErrAuthenticationFailed
	}
	return rotateMaster(sh.cmd, sh.opts, sh.s, sh.p, current)
}

// recordName is the name of the record after change is applied.
func recordName(name string, change domain.RecordChange) string {
	if change.Name != nil {
		return *change.Name
	}
	return name
}
