// Package audit keeps an append-only JSON Lines log of vault operations.
// Entries never contain secrets: only the operation, the record name and
// whether it succeeded.
package audit

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/sitevault/sitevault/internal/domain"
)

// Log appends operations to a file. A Log with an empty path records nothing.
type Log struct {
	path string
}

// Open returns a Log writing to path.
func Open(path string) *Log {
	return &Log{path: path}
}

// Path returns the log file path.
func (l *Log) Path() string {
	if l == nil {
		return ""
	}
	return l.path
}

// NewOperation builds an entry stamped with a fresh ID and the current time.
func NewOperation(opType, record string, success bool) domain.Operation {
	return domain.Operation{
		ID:        uuid.NewString(),
		Type:      opType,
		Record:    record,
		Timestamp: time.Now().UTC(),
		Success:   success,
	}
}

// Append writes op as one line. Callers treat failures as warnings; an
// operation never fails because auditing did.
func (l *Log) Append(op domain.Operation) error {
	if l == nil || l.path == "" {
		return nil
	}
	if op.ID == "" {
		op.ID = uuid.NewString()
	}
	if op.Timestamp.IsZero() {
		op.Timestamp = time.Now().UTC()
	}

	data, err := json.Marshal(op)
	if err != nil {
		return fmt.Errorf("failed to encode audit entry: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(l.path), 0o700); err != nil {
		return fmt.Errorf("failed to create audit directory: %w", err)
	}
	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("failed to open audit log: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write audit entry: %w", err)
	}
	return nil
}

// Entries reads all entries. A missing log yields no entries.
func (l *Log) Entries() ([]domain.Operation, error) {
	if l == nil || l.path == "" {
		return nil, nil
	}

	data, err := os.ReadFile(l.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read audit log: %w", err)
	}

	return ParseEntries(data), nil
}

// ParseEntries parses JSON Lines data. Malformed lines are skipped.
func ParseEntries(data []byte) []domain.Operation {
	var entries []domain.Operation
	start := 0

	for i := 0; i <= len(data); i++ {
		if i == len(data) || data[i] == '\n' {
			line := data[start:i]
			start = i + 1

			if len(line) == 0 {
				continue
			}

			var entry domain.Operation
			if err := json.Unmarshal(line, &entry); err != nil {
				continue
			}
			entries = append(entries, entry)
		}
	}

	return entries
}
