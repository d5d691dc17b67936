// Package master persists and verifies the master passphrase. The
// passphrase is never stored in clear: it is sealed into a blob by one of
// two schemes (see Scheme) and the blob is written through a BlobStore.
package master

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"

	"github.com/sitevault/sitevault/internal/vault"
)

// Error variables for master secret operations
var (
	// ErrAuthenticationFailed is returned when a candidate passphrase does not match
	ErrAuthenticationFailed = errors.New("authentication failed: wrong master passphrase")
	// ErrAlreadyInitialized is returned when bootstrapping a vault that has a master secret
	ErrAlreadyInitialized = errors.New("master passphrase already set")
	// ErrNotInitialized is returned when an operation needs a master secret and none exists
	ErrNotInitialized = errors.New("master passphrase not set")
	// ErrIrreversible is returned when recovering a secret from a one-way verifier
	ErrIrreversible = errors.New("master secret cannot be recovered from this scheme")
	// ErrCorruptMaster is returned when the persisted blob cannot be parsed
	ErrCorruptMaster = errors.New("master blob is corrupted")
)

// Options configures how new blobs are sealed.
type Options struct {
	Scheme Scheme
	Argon2 vault.Argon2Params
}

// DefaultOptions seals with Argon2id at default cost.
func DefaultOptions() Options {
	return Options{Scheme: SchemeArgon2id, Argon2: vault.DefaultArgon2Params()}
}

// Store holds the persisted master blob. Reading is lazy: call LoadOrEmpty
// before anything else.
type Store struct {
	blobs BlobStore
	opts  Options

	blob     []byte
	verifier *argon2Verifier
	loaded   bool
}

// New returns a Store reading and writing through blobs.
func New(blobs BlobStore, opts Options) *Store {
	if opts.Scheme == "" {
		opts.Scheme = SchemeArgon2id
	}
	return &Store{blobs: blobs, opts: opts}
}

// LoadOrEmpty reads the persisted blob. It reports false with no error when
// the vault has no master secret yet.
func (s *Store) LoadOrEmpty() (bool, error) {
	blob, err := s.blobs.ReadBlob()
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			s.reset()
			return false, nil
		}
		return false, fmt.Errorf("failed to read master blob: %w", err)
	}
	if len(blob) == 0 {
		return false, fmt.Errorf("%w: empty blob", ErrCorruptMaster)
	}

	if err := s.adopt(blob); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Store) adopt(blob []byte) error {
	var verifier *argon2Verifier
	if DetectScheme(blob) == SchemeArgon2id {
		v, err := parseArgon2id(blob)
		if err != nil {
			return err
		}
		verifier = v
	}

	s.blob = append([]byte(nil), blob...)
	s.verifier = verifier
	s.loaded = true
	return nil
}

func (s *Store) reset() {
	s.blob = nil
	s.verifier = nil
	s.loaded = false
}

// Initialized reports whether a master secret is loaded.
func (s *Store) Initialized() bool {
	return s.loaded
}

// Scheme returns the scheme of the loaded blob, or the configured one for
// an empty vault.
func (s *Store) Scheme() Scheme {
	if !s.loaded {
		return s.opts.Scheme
	}
	return DetectScheme(s.blob)
}

// Recover returns the master secret held in a legacy blob. Argon2id blobs
// return ErrIrreversible.
func (s *Store) Recover() ([]byte, error) {
	if !s.loaded {
		return nil, ErrNotInitialized
	}
	if s.verifier != nil {
		return nil, ErrIrreversible
	}
	return openLegacy(s.blob)
}

// Bootstrap sets the first master secret. It fails with
// ErrAlreadyInitialized if one is loaded.
func (s *Store) Bootstrap(candidate []byte) error {
	if s.loaded {
		return ErrAlreadyInitialized
	}
	return s.Persist(candidate)
}

// Verify reports whether candidate equals the loaded master secret.
func (s *Store) Verify(candidate []byte) bool {
	if !s.loaded || len(candidate) == 0 {
		return false
	}
	if s.verifier != nil {
		return s.verifier.matches(candidate)
	}

	secret, err := openLegacy(s.blob)
	if err != nil {
		return false
	}
	defer vault.Zeroize(secret)
	return len(secret) == len(candidate) && vault.SecureCompare(secret, candidate)
}

// Seal produces the blob for secret under the configured scheme without
// persisting it.
func (s *Store) Seal(secret []byte) ([]byte, error) {
	if len(secret) == 0 {
		return nil, vault.ErrInvalidKey
	}

	switch s.opts.Scheme {
	case SchemeLegacy:
		return sealLegacy(secret)
	case SchemeArgon2id:
		return sealArgon2id(secret, s.opts.Argon2)
	default:
		return nil, fmt.Errorf("unknown master scheme %q", s.opts.Scheme)
	}
}

// Commit persists a blob produced by Seal and makes it current.
func (s *Store) Commit(blob []byte) error {
	if len(blob) == 0 {
		return fmt.Errorf("%w: empty blob", ErrCorruptMaster)
	}
	if err := s.blobs.WriteBlob(blob); err != nil {
		return fmt.Errorf("failed to persist master blob: %w", err)
	}
	return s.adopt(blob)
}

// Persist seals secret and atomically replaces the stored blob.
func (s *Store) Persist(secret []byte) error {
	blob, err := s.Seal(secret)
	if err != nil {
		return err
	}
	return s.Commit(blob)
}

// Digest returns the hex SHA-256 of the loaded blob, or "" when empty.
func (s *Store) Digest() string {
	if !s.loaded {
		return ""
	}
	return BlobDigest(s.blob)
}

// BlobDigest returns the hex SHA-256 of blob.
func BlobDigest(blob []byte) string {
	sum := sha256.Sum256(blob)
	return hex.EncodeToString(sum[:])
}
