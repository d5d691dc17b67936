package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/sitevault/sitevault/internal/clipboard"
	"github.com/sitevault/sitevault/internal/config"
)

var (
	successMark = color.New(color.FgGreen).Sprint("✓")
	failureMark = color.New(color.FgRed).Sprint("✗")
	warningMark = color.New(color.FgYellow).Sprint("!")
	highlight   = color.New(color.FgCyan).SprintFunc()
)

func printSuccess(w io.Writer, format string, args ...interface{}) {
	fmt.Fprintf(w, successMark+" "+format+"\n", args...)
}

func printFailure(w io.Writer, format string, args ...interface{}) {
	fmt.Fprintf(w, failureMark+" "+format+"\n", args...)
}

func printWarning(w io.Writer, format string, args ...interface{}) {
	fmt.Fprintf(w, warningMark+" "+format+"\n", args...)
}

// clipboardCopy is a secret placed on the clipboard.
type clipboardCopy interface {
	Clear() error
	Done() <-chan struct{}
}

// Overridable for tests.
var (
	copyToClipboard = func(text string, ttl time.Duration) (clipboardCopy, error) {
		return clipboard.CopyWithTimeout(text, ttl)
	}
	clipboardIsAvailable = clipboard.IsAvailable
)

// resolveClipboardTTL picks the --ttl override in seconds, the configured
// clipboard_ttl, or 30s, in that order.
func resolveClipboardTTL(override int, conf *config.Config) (time.Duration, error) {
	if override < -1 {
		return 0, fmt.Errorf("--ttl must be -1 (config default) or a non-negative number of seconds")
	}

	if override >= 0 {
		return time.Duration(override) * time.Second, nil
	}

	if conf != nil && conf.ClipboardTTL > 0 {
		return conf.ClipboardTTL, nil
	}

	return 30 * time.Second, nil
}

// copySecret puts secret on the clipboard and blocks until it is cleared,
// either by the timeout or early on interrupt.
func copySecret(cmd *cobra.Command, secret string, ttl time.Duration) error {
	if !clipboardIsAvailable() {
		return fmt.Errorf("clipboard not available, remove --copy to print instead")
	}

	c, err := copyToClipboard(secret, ttl)
	if err != nil {
		return fmt.Errorf("failed to copy to clipboard: %w", err)
	}

	printSuccess(cmd.OutOrStdout(), "Copied to clipboard (clears in %s, Ctrl+C to clear now)", ttl.Round(time.Second))

	ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt)
	defer stop()

	select {
	case <-c.Done():
	case <-ctx.Done():
		if err := c.Clear(); err != nil {
			return fmt.Errorf("failed to clear clipboard: %w", err)
		}
	}
	return nil
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
