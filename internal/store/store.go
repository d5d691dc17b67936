// Package store persists credential records. Each record is a self-contained
// unit of three newline-separated fields (url, login, encrypted password)
// addressed by the record name. Two backends are provided: FileStore keeps
// one file per record in a directory and BoltStore keeps one value per
// record in a bbolt bucket.
//
// Stores are not safe for concurrent use; cross-process exclusion is the job
// of FileLock.
package store

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/sitevault/sitevault/internal/domain"
	"github.com/sitevault/sitevault/internal/vault"
)

// Error variables for record store operations
var (
	// ErrRecordNotFound is returned when the named record does not exist
	ErrRecordNotFound = errors.New("record not found")
	// ErrRecordExists is returned when a create or rename would collide with an existing record
	ErrRecordExists = errors.New("record already exists")
	// ErrCorruptRecord is returned when a persisted unit is missing required fields
	ErrCorruptRecord = errors.New("record data is corrupted")
	// ErrInvalidName is returned for record names that cannot be used as storage keys
	ErrInvalidName = errors.New("invalid record name")
	// ErrInvalidField is returned when url or login would break the record format
	ErrInvalidField = errors.New("invalid record field")
	// ErrVaultLocked is returned when the vault is locked by another process
	ErrVaultLocked = errors.New("vault is locked by another process")
	// ErrIO marks failures of the underlying storage
	ErrIO = errors.New("storage i/o failure")
	// ErrStoreClosed is returned when a closed store is used
	ErrStoreClosed = errors.New("store is closed")
)

// RecordStore defines the record persistence operations. Callers always pass
// the master key explicitly; stores never hold it.
type RecordStore interface {
	// List returns the current record names in sorted order.
	List() ([]string, error)
	// Walk calls fn for each record name, stopping at the first error.
	Walk(fn func(name string) error) error
	Read(name string) (*domain.Record, error)
	Create(name, url, login string, password, key []byte) error
	Update(name string, change domain.RecordChange, key []byte) error
	// Replace overwrites an existing record with an already encrypted unit.
	Replace(rec *domain.Record) error
	Delete(name string) error
	Exists(name string) bool
	Close() error
}

// Unlister is implemented by stores that can hold units under names that
// are not valid record names. Such units are never listed or read.
type Unlister interface {
	Unlisted() ([]string, error)
}

// Batcher is implemented by stores that can stage a set of record rewrites
// as one recoverable unit, with a journal of the original units.
type Batcher interface {
	// StageRotation atomically replaces the given records and keeps the
	// originals in a journal tagged with masterDigest. On error nothing is
	// left changed.
	StageRotation(records []*domain.Record, masterDigest string) (Batch, error)
	// PendingRotation returns the journal of an unfinished rotation, or nil.
	PendingRotation() (*Journal, Batch, error)
}

// Batch is a staged rotation awaiting a decision.
type Batch interface {
	// Commit keeps the staged records and discards the journal.
	Commit() error
	// Rollback restores the original records and discards the journal.
	Rollback() error
}

// Journal is the undo log written before a rotation touches any record.
type Journal struct {
	ID           string           `json:"id"`
	MasterDigest string           `json:"master_digest"`
	Originals    []*domain.Record `json:"originals"`
	CreatedAt    time.Time        `json:"created_at"`
}

// ValidateName checks that name can be used as a storage key.
func ValidateName(name string) error {
	switch {
	case name == "":
		return fmt.Errorf("%w: name cannot be empty", ErrInvalidName)
	case strings.HasPrefix(name, ".") || strings.Contains(name, ".."):
		return fmt.Errorf("%w: %q cannot start with '.' or contain '..'", ErrInvalidName, name)
	case strings.ContainsAny(name, `/\:`):
		return fmt.Errorf("%w: %q contains a path separator", ErrInvalidName, name)
	case strings.ContainsAny(name, `*?"<>|`):
		return fmt.Errorf("%w: %q contains reserved characters", ErrInvalidName, name)
	}
	for _, r := range name {
		if unicode.IsControl(r) {
			return fmt.Errorf("%w: %q contains control characters", ErrInvalidName, name)
		}
	}
	return nil
}

func validateField(field, value string) error {
	if strings.ContainsAny(value, "\r\n") {
		return fmt.Errorf("%w: %s cannot contain line breaks", ErrInvalidField, field)
	}
	return nil
}

// EncodeRecord serializes a record into its three-field unit. The encrypted
// password is written last and verbatim, without a trailing newline.
func EncodeRecord(rec *domain.Record) ([]byte, error) {
	if err := validateField("url", rec.URL); err != nil {
		return nil, err
	}
	if err := validateField("login", rec.Login); err != nil {
		return nil, err
	}

	buf := make([]byte, 0, len(rec.URL)+len(rec.Login)+len(rec.EncryptedPassword)+2)
	buf = append(buf, rec.URL...)
	buf = append(buf, '\n')
	buf = append(buf, rec.Login...)
	buf = append(buf, '\n')
	buf = append(buf, rec.EncryptedPassword...)
	return buf, nil
}

// DecodeRecord parses a three-field unit. Everything after the second
// newline is the encrypted password, so ciphertext bytes that happen to be
// newlines survive.
func DecodeRecord(name string, data []byte) (*domain.Record, error) {
	fields := bytes.SplitN(data, []byte{'\n'}, 3)
	if len(fields) < 3 {
		return nil, fmt.Errorf("%w: %q has %d of 3 fields", ErrCorruptRecord, name, len(fields))
	}

	return &domain.Record{
		Name:              name,
		URL:               string(fields[0]),
		Login:             string(fields[1]),
		EncryptedPassword: append([]byte(nil), fields[2]...),
	}, nil
}

// newRecord builds and encrypts a record for Create.
func newRecord(name, url, login string, password, key []byte) (*domain.Record, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}

	encrypted, err := vault.Encrypt(password, key)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt password: %w", err)
	}

	rec := &domain.Record{Name: name, URL: url, Login: login, EncryptedPassword: encrypted}
	if _, err := EncodeRecord(rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// applyChange returns a copy of rec with change applied.
func applyChange(rec *domain.Record, change domain.RecordChange, key []byte) (*domain.Record, error) {
	updated := rec.Clone()

	if change.Name != nil {
		if err := ValidateName(*change.Name); err != nil {
			return nil, err
		}
		updated.Name = *change.Name
	}
	if change.URL != nil {
		updated.URL = *change.URL
	}
	if change.Login != nil {
		updated.Login = *change.Login
	}
	if change.Password != nil {
		encrypted, err := vault.Encrypt(change.Password, key)
		if err != nil {
			return nil, fmt.Errorf("failed to encrypt password: %w", err)
		}
		updated.EncryptedPassword = encrypted
	}

	if _, err := EncodeRecord(updated); err != nil {
		return nil, err
	}
	return updated, nil
}

func ioError(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrIO, op, err)
}
