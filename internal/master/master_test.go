package master

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sitevault/sitevault/internal/store"
	"github.com/sitevault/sitevault/internal/vault"
)

var testArgon2 = vault.Argon2Params{Memory: 1024, Iterations: 1, Parallelism: 1}

func newTestStore(t *testing.T, scheme Scheme) (*Store, *FileBlob) {
	t.Helper()
	blob := NewFileBlob(filepath.Join(t.TempDir(), "masterpsw.txt"))
	return New(blob, Options{Scheme: scheme, Argon2: testArgon2}), blob
}

func TestLoadOrEmpty_Absent(t *testing.T) {
	for _, scheme := range []Scheme{SchemeLegacy, SchemeArgon2id} {
		t.Run(string(scheme), func(t *testing.T) {
			s, _ := newTestStore(t, scheme)

			found, err := s.LoadOrEmpty()
			require.NoError(t, err)
			assert.False(t, found)
			assert.False(t, s.Initialized())
			assert.Equal(t, "", s.Digest())
			assert.False(t, s.Verify([]byte("anything")))
		})
	}
}

func TestBootstrapAndVerify(t *testing.T) {
	for _, scheme := range []Scheme{SchemeLegacy, SchemeArgon2id} {
		t.Run(string(scheme), func(t *testing.T) {
			s, blob := newTestStore(t, scheme)
			_, err := s.LoadOrEmpty()
			require.NoError(t, err)

			require.NoError(t, s.Bootstrap([]byte("hunter2")))
			assert.True(t, s.Verify([]byte("hunter2")))
			assert.False(t, s.Verify([]byte("hunter3")))
			assert.False(t, s.Verify([]byte("hunter")))
			assert.False(t, s.Verify(nil))

			// A fresh store over the same location sees the same secret.
			reopened := New(blob, Options{Scheme: scheme, Argon2: testArgon2})
			found, err := reopened.LoadOrEmpty()
			require.NoError(t, err)
			assert.True(t, found)
			assert.Equal(t, scheme, reopened.Scheme())
			assert.True(t, reopened.Verify([]byte("hunter2")))
			assert.Equal(t, s.Digest(), reopened.Digest())

			err = reopened.Bootstrap([]byte("other"))
			assert.ErrorIs(t, err, ErrAlreadyInitialized)
		})
	}
}

func TestBootstrap_EmptyCandidate(t *testing.T) {
	s, blob := newTestStore(t, SchemeArgon2id)
	_, err := s.LoadOrEmpty()
	require.NoError(t, err)

	assert.ErrorIs(t, s.Bootstrap(nil), vault.ErrInvalidKey)
	_, statErr := os.Stat(blob.Path())
	assert.True(t, os.IsNotExist(statErr), "nothing should be persisted")
}

func TestLegacyBlobFormat(t *testing.T) {
	s, blob := newTestStore(t, SchemeLegacy)
	require.NoError(t, s.Bootstrap([]byte("abc")))

	raw, err := os.ReadFile(blob.Path())
	require.NoError(t, err)

	want, err := vault.Encrypt([]byte("abc"), []byte("default_key"))
	require.NoError(t, err)
	assert.Equal(t, want, raw)

	secret, err := s.Recover()
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), secret)
}

func TestLegacyBlobIsRawBytes(t *testing.T) {
	s, blob := newTestStore(t, SchemeLegacy)
	require.NoError(t, s.Bootstrap([]byte("abc")))

	raw, err := os.ReadFile(blob.Path())
	require.NoError(t, err)
	// 'a'+'d', 'b'+'e', 'c'+'f': every byte is above 0x7f and stored as-is.
	assert.Equal(t, []byte{0xc5, 0xc7, 0xc9}, raw)

	// The same shifted characters written as UTF-8 text are a different blob.
	text := []byte(string([]rune{0xc5, 0xc7, 0xc9}))
	require.Len(t, text, 6)
	require.NoError(t, os.WriteFile(blob.Path(), text, 0o600))

	reopened := New(blob, Options{Scheme: SchemeLegacy, Argon2: testArgon2})
	found, err := reopened.LoadOrEmpty()
	require.NoError(t, err)
	assert.True(t, found)
	assert.False(t, reopened.Verify([]byte("abc")))
}

func TestArgon2idBlobFormat(t *testing.T) {
	s, blob := newTestStore(t, SchemeArgon2id)
	require.NoError(t, s.Bootstrap([]byte("correct horse")))

	raw, err := os.ReadFile(blob.Path())
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(raw), "$argon2id$v=19$m=1024,t=1,p=1$"), string(raw))
	assert.NotContains(t, string(raw), "correct horse")
	assert.Equal(t, SchemeArgon2id, DetectScheme(raw))

	_, err = s.Recover()
	assert.ErrorIs(t, err, ErrIrreversible)
}

func TestCorruptArgon2idBlob(t *testing.T) {
	s, blob := newTestStore(t, SchemeArgon2id)
	require.NoError(t, os.WriteFile(blob.Path(), []byte("$argon2id$v=19$garbage"), 0o600))

	_, err := s.LoadOrEmpty()
	assert.ErrorIs(t, err, ErrCorruptMaster)
}

func TestPersistReplacesSecret(t *testing.T) {
	for _, scheme := range []Scheme{SchemeLegacy, SchemeArgon2id} {
		t.Run(string(scheme), func(t *testing.T) {
			s, _ := newTestStore(t, scheme)
			require.NoError(t, s.Bootstrap([]byte("first")))
			before := s.Digest()

			require.NoError(t, s.Persist([]byte("second")))
			assert.True(t, s.Verify([]byte("second")))
			assert.False(t, s.Verify([]byte("first")))
			assert.NotEqual(t, before, s.Digest())
		})
	}
}

func TestSealDoesNotPersist(t *testing.T) {
	s, _ := newTestStore(t, SchemeArgon2id)
	require.NoError(t, s.Bootstrap([]byte("first")))
	digest := s.Digest()

	sealed, err := s.Seal([]byte("second"))
	require.NoError(t, err)
	assert.Equal(t, digest, s.Digest())
	assert.True(t, s.Verify([]byte("first")))

	require.NoError(t, s.Commit(sealed))
	assert.Equal(t, BlobDigest(sealed), s.Digest())
	assert.True(t, s.Verify([]byte("second")))
}

type failingBlob struct {
	BlobStore
}

func (failingBlob) WriteBlob([]byte) error {
	return errors.New("read-only filesystem")
}

func TestCommitFailureKeepsState(t *testing.T) {
	s, blob := newTestStore(t, SchemeLegacy)
	require.NoError(t, s.Bootstrap([]byte("first")))

	broken := New(failingBlob{blob}, Options{Scheme: SchemeLegacy})
	_, err := broken.LoadOrEmpty()
	require.NoError(t, err)

	assert.Error(t, broken.Persist([]byte("second")))
	assert.True(t, broken.Verify([]byte("first")))
}

func TestSchemeMigrationOnPersist(t *testing.T) {
	legacy, blob := newTestStore(t, SchemeLegacy)
	require.NoError(t, legacy.Bootstrap([]byte("pass")))

	upgraded := New(blob, Options{Scheme: SchemeArgon2id, Argon2: testArgon2})
	_, err := upgraded.LoadOrEmpty()
	require.NoError(t, err)
	assert.Equal(t, SchemeLegacy, upgraded.Scheme())

	require.NoError(t, upgraded.Persist([]byte("pass")))
	assert.Equal(t, SchemeArgon2id, upgraded.Scheme())
	assert.True(t, upgraded.Verify([]byte("pass")))
}

func TestBoltBackedStore(t *testing.T) {
	bs, err := store.OpenBoltStore(filepath.Join(t.TempDir(), "vault.db"))
	require.NoError(t, err)
	defer bs.Close()

	s := New(bs.MasterBlob(), Options{Scheme: SchemeArgon2id, Argon2: testArgon2})
	found, err := s.LoadOrEmpty()
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, s.Bootstrap([]byte("bolt-pass")))

	again := New(bs.MasterBlob(), Options{Scheme: SchemeArgon2id, Argon2: testArgon2})
	found, err = again.LoadOrEmpty()
	require.NoError(t, err)
	assert.True(t, found)
	assert.True(t, again.Verify([]byte("bolt-pass")))
}

func TestParseScheme(t *testing.T) {
	scheme, err := ParseScheme("legacy")
	require.NoError(t, err)
	assert.Equal(t, SchemeLegacy, scheme)

	_, err = ParseScheme("rot13")
	assert.Error(t, err)
}
