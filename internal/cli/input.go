package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/sitevault/sitevault/internal/vault"
)

var (
	// errPassphraseMismatch is returned when a confirmation does not match
	errPassphraseMismatch = errors.New("passwords do not match")
	// errInputClosed is returned when input ends before an answer is read
	errInputClosed = errors.New("input closed")
	// errAmbiguousChoice is returned when a typed name matches several choices
	errAmbiguousChoice = errors.New("ambiguous choice")
)

// Prompter reads answers from a command's input. Passwords are read without
// echo when the input is a terminal and as plain lines otherwise, so
// scripted input works the same as typed input.
type Prompter struct {
	in  *bufio.Reader
	out io.Writer
	fd  int
	tty bool
}

func newPrompter(cmd *cobra.Command) *Prompter {
	in := cmd.InOrStdin()
	p := &Prompter{in: bufio.NewReader(in), out: cmd.ErrOrStderr()}
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		p.fd = int(f.Fd())
		p.tty = true
	}
	return p
}

func (p *Prompter) readLine() (string, error) {
	line, err := p.in.ReadString('\n')
	if err != nil {
		if errors.Is(err, io.EOF) && line != "" {
			return strings.TrimRight(line, "\r\n"), nil
		}
		if errors.Is(err, io.EOF) {
			return "", errInputClosed
		}
		return "", fmt.Errorf("failed to read input: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// Password prompts for a secret without echoing it.
func (p *Prompter) Password(prompt string) ([]byte, error) {
	fmt.Fprint(p.out, prompt)

	if p.tty {
		password, err := term.ReadPassword(p.fd)
		fmt.Fprintln(p.out)
		if err != nil {
			return nil, fmt.Errorf("failed to read password: %w", err)
		}
		return password, nil
	}

	line, err := p.readLine()
	if err != nil {
		return nil, err
	}
	return []byte(line), nil
}

// PasswordConfirm prompts for a secret twice and fails if the two differ.
func (p *Prompter) PasswordConfirm(prompt string) ([]byte, error) {
	password, err := p.Password(prompt)
	if err != nil {
		return nil, err
	}

	confirm, err := p.Password("Confirm: ")
	if err != nil {
		vault.Zeroize(password)
		return nil, err
	}
	defer vault.Zeroize(confirm)

	if !vault.SecureCompare(password, confirm) {
		vault.Zeroize(password)
		return nil, errPassphraseMismatch
	}
	return password, nil
}

// Input prompts for a single line of text.
func (p *Prompter) Input(prompt string) (string, error) {
	fmt.Fprint(p.out, prompt)
	line, err := p.readLine()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// Confirm prompts for yes/no confirmation
func (p *Prompter) Confirm(prompt string, defaultYes bool) (bool, error) {
	suffix := " [y/N]: "
	if defaultYes {
		suffix = " [Y/n]: "
	}

	input, err := p.Input(prompt + suffix)
	if err != nil {
		return false, err
	}

	switch strings.ToLower(input) {
	case "":
		return defaultYes, nil
	case "y", "yes", "o", "oui":
		return true, nil
	default:
		return false, nil
	}
}

// Choice prints the numbered choices and returns the index of the one
// picked, by number or by name. An exact name wins over a case-insensitive
// one. An empty answer returns -1.
func (p *Prompter) Choice(prompt string, choices []string) (int, error) {
	fmt.Fprintln(p.out, prompt)
	for i, choice := range choices {
		fmt.Fprintf(p.out, "  %d) %s\n", i+1, choice)
	}

	input, err := p.Input(fmt.Sprintf("Enter choice (1-%d): ", len(choices)))
	if err != nil {
		return -1, err
	}
	if input == "" {
		return -1, nil
	}

	if n, err := strconv.Atoi(input); err == nil && n >= 1 && n <= len(choices) {
		return n - 1, nil
	}
	for i, choice := range choices {
		if choice == input {
			return i, nil
		}
	}

	// A case-insensitive match only counts when it is unique.
	picked := -1
	for i, choice := range choices {
		if !strings.EqualFold(choice, input) {
			continue
		}
		if picked >= 0 {
			return -1, fmt.Errorf("%w: %q matches more than one choice, enter its number", errAmbiguousChoice, input)
		}
		picked = i
	}
	if picked < 0 {
		return -1, fmt.Errorf("invalid choice: %s", input)
	}
	return picked, nil
}
