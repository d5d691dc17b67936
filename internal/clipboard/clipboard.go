// Package clipboard copies secrets to the system clipboard and clears them
// again after a timeout.
package clipboard

import (
	"fmt"
	"sync"
	"time"

	"github.com/atotto/clipboard"
)

// Overridable for tests.
var (
	writeAll = clipboard.WriteAll
	readAll  = clipboard.ReadAll
)

// Copy is a secret placed on the clipboard. It is cleared once, either when
// the timeout fires or when Clear is called, and only if the clipboard
// still holds the secret.
type Copy struct {
	text string
	once sync.Once
	stop chan struct{}
	done chan struct{}
	err  error
}

// CopyWithTimeout copies text to clipboard and clears it after timeout
func CopyWithTimeout(text string, timeout time.Duration) (*Copy, error) {
	if err := writeAll(text); err != nil {
		return nil, fmt.Errorf("failed to copy to clipboard: %w", err)
	}

	c := &Copy{text: text, stop: make(chan struct{}), done: make(chan struct{})}
	go func() {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		select {
		case <-timer.C:
			_ = c.Clear()
		case <-c.stop:
		}
	}()
	return c, nil
}

// Clear wipes the clipboard now if it still holds the copied text.
func (c *Copy) Clear() error {
	c.once.Do(func() {
		close(c.stop)

		// Leave the clipboard alone if the user copied something else since.
		current, err := readAll()
		if err == nil && current == c.text {
			c.err = writeAll("")
		}
		c.text = ""
		close(c.done)
	})
	return c.err
}

// Done is closed once the clipboard has been cleared.
func (c *Copy) Done() <-chan struct{} {
	return c.done
}

// IsAvailable returns true if clipboard functionality is available
func IsAvailable() bool {
	if clipboard.Unsupported {
		return false
	}
	// Try to read from clipboard to test availability
	_, err := readAll()
	return err == nil
}
