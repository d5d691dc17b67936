// Package util maps vault errors to process exit codes for the CLI.
package util

import (
	"errors"
	"fmt"
	"io"

	"github.com/sitevault/sitevault/internal/master"
	"github.com/sitevault/sitevault/internal/rotation"
	"github.com/sitevault/sitevault/internal/session"
	"github.com/sitevault/sitevault/internal/store"
	"github.com/sitevault/sitevault/internal/vault"
)

// Exit codes
const (
	ExitOK           = 0
	ExitError        = 1
	ExitInvalidInput = 2
	ExitVaultLocked  = 3
	ExitIntegrityErr = 4
	ExitAuthFailed   = 5
)

// ExitCode returns the exit code for err.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, store.ErrVaultLocked):
		return ExitVaultLocked
	case errors.Is(err, store.ErrCorruptRecord),
		errors.Is(err, master.ErrCorruptMaster),
		errors.Is(err, rotation.ErrRestoreFailed):
		return ExitIntegrityErr
	case errors.Is(err, master.ErrAuthenticationFailed),
		errors.Is(err, session.ErrTooManyAttempts):
		return ExitAuthFailed
	case errors.Is(err, store.ErrInvalidName),
		errors.Is(err, store.ErrInvalidField),
		errors.Is(err, vault.ErrInvalidKey):
		return ExitInvalidInput
	default:
		return ExitError
	}
}

// HandleError reports err on w and returns the exit code to use.
func HandleError(w io.Writer, err error) int {
	if err == nil {
		return ExitOK
	}

	code := ExitCode(err)
	fmt.Fprintf(w, "Error: %v\n", err)
	if code == ExitIntegrityErr {
		fmt.Fprintln(w, "The vault may need manual repair; back up the vault directory before retrying.")
	}
	return code
}
