// Package session owns an open vault: the directory lock, the record
// store, the master secret and, once unlocked, the master passphrase used
// as the record key. Every user-facing operation goes through a Session so
// the lock is held and the audit log is written in one place.
package session

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/sitevault/sitevault/internal/audit"
	"github.com/sitevault/sitevault/internal/config"
	"github.com/sitevault/sitevault/internal/domain"
	"github.com/sitevault/sitevault/internal/logging"
	"github.com/sitevault/sitevault/internal/master"
	"github.com/sitevault/sitevault/internal/rotation"
	"github.com/sitevault/sitevault/internal/store"
	"github.com/sitevault/sitevault/internal/vault"
)

// Error variables for session operations
var (
	// ErrTooManyAttempts is returned once the unlock attempt budget is spent
	ErrTooManyAttempts = errors.New("too many failed unlock attempts")
	// ErrLocked is returned for record operations before a successful unlock
	ErrLocked = errors.New("vault is locked")
	// ErrClosed is returned when a closed session is used
	ErrClosed = errors.New("session is closed")
)

// LockTimeout bounds how long Open waits for another process to release
// the vault.
var LockTimeout = 2 * time.Second

// Session is a single-user handle on an open vault. It is not safe for
// concurrent use.
type Session struct {
	cfg     *config.Config
	logger  *logging.Logger
	lock    *store.FileLock
	records store.RecordStore
	master  *master.Store
	audit   *audit.Log

	key      []byte
	failures int
	closed   bool
}

// Open locks the vault directory, opens the configured backend, loads the
// master secret and resolves any interrupted rotation.
func Open(cfg *config.Config, logger *logging.Logger) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if err := os.MkdirAll(cfg.VaultDir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create vault directory: %w", err)
	}

	lock := store.NewFileLock(cfg.LockPath())
	if err := lock.Lock(LockTimeout); err != nil {
		return nil, err
	}

	s := &Session{cfg: cfg, logger: logger, lock: lock, audit: audit.Open(cfg.AuditPath())}
	if err := s.open(); err != nil {
		if closeErr := s.Close(); closeErr != nil {
			logger.Warnf("failed to release vault: %v", closeErr)
		}
		return nil, err
	}
	return s, nil
}

func (s *Session) open() error {
	var blobs master.BlobStore
	switch s.cfg.Backend {
	case config.BackendBolt:
		bs, err := store.OpenBoltStore(s.cfg.BoltPath())
		if err != nil {
			return err
		}
		s.records = bs
		blobs = bs.MasterBlob()
	default:
		fs, err := store.OpenFileStore(s.cfg.RecordsDir())
		if err != nil {
			return err
		}
		s.records = fs
		blobs = master.NewFileBlob(s.cfg.MasterPath())
	}

	scheme, err := master.ParseScheme(s.cfg.MasterScheme)
	if err != nil {
		return err
	}
	s.master = master.New(blobs, master.Options{Scheme: scheme, Argon2: s.cfg.Argon2Params()})

	found, err := s.master.LoadOrEmpty()
	if err != nil {
		return err
	}
	s.logger.Debugf("vault %s opened (backend %s, initialized %t)", s.cfg.VaultDir, s.cfg.Backend, found)

	unlisted, err := s.unlisted()
	if err != nil {
		return err
	}
	for _, name := range unlisted {
		s.logger.Warnf("ignoring record file %q: not a valid record name", name+store.RecordExt)
	}

	outcome, err := rotation.Recover(s.records, s.master, s.logger)
	if err != nil {
		return err
	}
	if outcome != rotation.NothingPending {
		op := audit.NewOperation(domain.OpRecoverRotate, "", true)
		op.Detail = outcome.String()
		s.record(op)
	}
	return nil
}

func (s *Session) record(op domain.Operation) {
	if err := s.audit.Append(op); err != nil {
		s.logger.Warnf("audit log: %v", err)
	}
}

func (s *Session) recordResult(opType, name string, err error) {
	s.record(audit.NewOperation(opType, name, err == nil))
}

// Initialized reports whether the vault has a master passphrase.
func (s *Session) Initialized() bool {
	return s.master != nil && s.master.Initialized()
}

// Scheme returns the master scheme in effect.
func (s *Session) Scheme() master.Scheme {
	return s.master.Scheme()
}

// Audit returns the session's audit log.
func (s *Session) Audit() *audit.Log {
	return s.audit
}

// MaxAttempts is the unlock attempt budget.
func (s *Session) MaxAttempts() int {
	return s.cfg.MaxUnlockAttempts
}

// Bootstrap sets the first master passphrase and unlocks the session.
func (s *Session) Bootstrap(passphrase []byte) error {
	if s.closed {
		return ErrClosed
	}

	err := s.master.Bootstrap(passphrase)
	s.recordResult(domain.OpInit, "", err)
	if err != nil {
		return err
	}

	s.setKey(passphrase)
	return nil
}

// Unlock checks candidate against the master passphrase. Once
// MaxAttempts candidates have failed, it returns ErrTooManyAttempts and
// the session stays locked for good.
func (s *Session) Unlock(candidate []byte) error {
	if s.closed {
		return ErrClosed
	}
	if !s.Initialized() {
		return master.ErrNotInitialized
	}
	if s.failures >= s.cfg.MaxUnlockAttempts {
		return ErrTooManyAttempts
	}

	if !s.master.Verify(candidate) {
		s.failures++
		s.recordResult(domain.OpUnlock, "", master.ErrAuthenticationFailed)
		if s.failures >= s.cfg.MaxUnlockAttempts {
			return fmt.Errorf("%w: %d of %d", ErrTooManyAttempts, s.failures, s.cfg.MaxUnlockAttempts)
		}
		return master.ErrAuthenticationFailed
	}

	s.failures = 0
	s.recordResult(domain.OpUnlock, "", nil)
	s.setKey(candidate)
	return nil
}

// UnlockWith prompts until a candidate matches or the attempt budget is
// spent. attempt counts from 1.
func (s *Session) UnlockWith(prompt func(attempt int) ([]byte, error)) error {
	for attempt := 1; ; attempt++ {
		candidate, err := prompt(attempt)
		if err != nil {
			return err
		}

		err = s.Unlock(candidate)
		vault.Zeroize(candidate)
		if err == nil || !errors.Is(err, master.ErrAuthenticationFailed) {
			return err
		}
		s.logger.Warnf("wrong master passphrase (%d of %d attempts)", attempt, s.cfg.MaxUnlockAttempts)
	}
}

// VerifyPassphrase reports whether candidate is the master passphrase. It
// does not count against the unlock attempt budget.
func (s *Session) VerifyPassphrase(candidate []byte) bool {
	return !s.closed && s.master.Verify(candidate)
}

// Unlocked reports whether record operations are available.
func (s *Session) Unlocked() bool {
	return !s.closed && s.key != nil
}

func (s *Session) setKey(key []byte) {
	vault.Zeroize(s.key)
	s.key = append([]byte(nil), key...)
}

func (s *Session) ready() error {
	if s.closed {
		return ErrClosed
	}
	if s.key == nil {
		return ErrLocked
	}
	return nil
}

// List returns the record names in sorted order.
func (s *Session) List() ([]string, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	return s.records.List()
}

// Get returns the named record and its decrypted password. The caller
// should zeroize the password when done with it.
func (s *Session) Get(name string) (*domain.Record, []byte, error) {
	if err := s.ready(); err != nil {
		return nil, nil, err
	}

	rec, err := s.records.Read(name)
	if err != nil {
		s.recordResult(domain.OpView, name, err)
		return nil, nil, err
	}

	password, err := vault.Decrypt(rec.EncryptedPassword, s.key)
	s.recordResult(domain.OpView, name, err)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to decrypt %s: %w", name, err)
	}
	return rec, password, nil
}

// Add creates a new record. An existing record is never overwritten.
func (s *Session) Add(name, url, login string, password []byte) error {
	if err := s.ready(); err != nil {
		return err
	}

	err := s.records.Create(name, url, login, password, s.key)
	s.recordResult(domain.OpCreate, name, err)
	return err
}

// Update applies a field-level change to the named record.
func (s *Session) Update(name string, change domain.RecordChange) error {
	if err := s.ready(); err != nil {
		return err
	}
	if change.IsEmpty() {
		return nil
	}

	err := s.records.Update(name, change, s.key)
	opType := domain.OpUpdate
	if change.Name != nil && *change.Name != name {
		opType = domain.OpRename
	}
	op := audit.NewOperation(opType, name, err == nil)
	if opType == domain.OpRename {
		op.Detail = "to " + *change.Name
	}
	s.record(op)
	return err
}

// Delete removes the named record permanently.
func (s *Session) Delete(name string) error {
	if err := s.ready(); err != nil {
		return err
	}

	err := s.records.Delete(name)
	s.recordResult(domain.OpDelete, name, err)
	return err
}

// Rotate changes the master passphrase from current to next and
// re-encrypts every record. progress may be nil.
func (s *Session) Rotate(ctx context.Context, current, next []byte, progress func(done, total int)) (*domain.RotationResult, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}

	coordinator := rotation.NewCoordinator(s.records, s.master, s.logger)
	coordinator.Progress = progress

	result, err := coordinator.Rotate(ctx, current, next)
	op := audit.NewOperation(domain.OpRotateMaster, "", err == nil)
	if result != nil {
		op.Detail = fmt.Sprintf("%d records", len(result.Rotated))
	}
	s.record(op)
	if err != nil {
		return nil, err
	}

	s.setKey(next)
	return result, nil
}

// Check reads and decrypts every record without recording views. It
// returns the number of records checked and the error for each record that
// could not be read.
func (s *Session) Check() (int, map[string]error, error) {
	if err := s.ready(); err != nil {
		return 0, nil, err
	}

	names, err := s.records.List()
	if err != nil {
		return 0, nil, err
	}

	bad := make(map[string]error)
	unlisted, err := s.unlisted()
	if err != nil {
		return 0, nil, err
	}
	for _, name := range unlisted {
		bad[name] = fmt.Errorf("%w: %q, rename the file to use it", store.ErrInvalidName, name)
	}

	for _, name := range names {
		rec, err := s.records.Read(name)
		if err != nil {
			bad[name] = err
			continue
		}
		password, err := vault.Decrypt(rec.EncryptedPassword, s.key)
		if err != nil {
			bad[name] = err
			continue
		}
		vault.Zeroize(password)
	}
	return len(names) + len(unlisted), bad, nil
}

func (s *Session) unlisted() ([]string, error) {
	u, ok := s.records.(store.Unlister)
	if !ok {
		return nil, nil
	}
	return u.Unlisted()
}

// Close wipes the key, closes the store and releases the vault lock.
func (s *Session) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true

	vault.Zeroize(s.key)
	s.key = nil

	var errs []error
	if s.records != nil {
		if err := s.records.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close records: %w", err))
		}
	}
	if s.lock != nil && s.lock.IsLocked() {
		if err := s.lock.Unlock(); err != nil {
			errs = append(errs, fmt.Errorf("failed to release lock: %w", err))
		}
	}
	return errors.Join(errs...)
}
