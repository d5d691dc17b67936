package session

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sitevault/sitevault/internal/config"
	"github.com/sitevault/sitevault/internal/domain"
	"github.com/sitevault/sitevault/internal/logging"
	"github.com/sitevault/sitevault/internal/master"
	"github.com/sitevault/sitevault/internal/store"
)

func testConfig(t *testing.T, backend string) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.VaultDir = t.TempDir()
	cfg.Backend = backend
	cfg.KDF = config.KDFConfig{Memory: 1024, Iterations: 1, Parallelism: 1}
	return cfg
}

func openSession(t *testing.T, cfg *config.Config) *Session {
	t.Helper()
	s, err := Open(cfg, logging.Discard)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestFirstRunAndReopen(t *testing.T) {
	for _, backend := range []string{config.BackendFile, config.BackendBolt} {
		t.Run(backend, func(t *testing.T) {
			cfg := testConfig(t, backend)

			s := openSession(t, cfg)
			assert.False(t, s.Initialized())
			assert.False(t, s.Unlocked())

			require.NoError(t, s.Bootstrap([]byte("first-pass")))
			assert.True(t, s.Unlocked())
			require.NoError(t, s.Add("github", "https://github.com", "octocat", []byte("tok3n")))
			require.NoError(t, s.Close())

			reopened := openSession(t, cfg)
			assert.True(t, reopened.Initialized())
			assert.ErrorIs(t, reopened.Bootstrap([]byte("other")), master.ErrAlreadyInitialized)

			_, err := reopened.List()
			assert.ErrorIs(t, err, ErrLocked)

			require.NoError(t, reopened.Unlock([]byte("first-pass")))
			rec, password, err := reopened.Get("github")
			require.NoError(t, err)
			assert.Equal(t, "octocat", rec.Login)
			assert.Equal(t, "tok3n", string(password))
		})
	}
}

func TestSecondSessionIsLockedOut(t *testing.T) {
	orig := LockTimeout
	LockTimeout = 0
	t.Cleanup(func() { LockTimeout = orig })

	cfg := testConfig(t, config.BackendFile)
	openSession(t, cfg)

	_, err := Open(cfg, logging.Discard)
	assert.ErrorIs(t, err, store.ErrVaultLocked)
}

func TestUnlockAttemptBudget(t *testing.T) {
	cfg := testConfig(t, config.BackendFile)
	s := openSession(t, cfg)
	require.NoError(t, s.Bootstrap([]byte("right")))
	require.NoError(t, s.Close())

	s = openSession(t, cfg)
	assert.ErrorIs(t, s.Unlock([]byte("wrong1")), master.ErrAuthenticationFailed)
	assert.ErrorIs(t, s.Unlock([]byte("wrong2")), master.ErrAuthenticationFailed)
	assert.ErrorIs(t, s.Unlock([]byte("wrong3")), ErrTooManyAttempts)

	// The budget is spent even for the right passphrase.
	assert.ErrorIs(t, s.Unlock([]byte("right")), ErrTooManyAttempts)
	assert.False(t, s.Unlocked())
}

func TestUnlockWith(t *testing.T) {
	cfg := testConfig(t, config.BackendBolt)
	s := openSession(t, cfg)
	require.NoError(t, s.Bootstrap([]byte("right")))
	require.NoError(t, s.Close())

	t.Run("succeeds on a later attempt", func(t *testing.T) {
		s := openSession(t, cfg)
		answers := []string{"nope", "right"}
		var seen []int
		err := s.UnlockWith(func(attempt int) ([]byte, error) {
			seen = append(seen, attempt)
			return []byte(answers[attempt-1]), nil
		})
		require.NoError(t, err)
		assert.Equal(t, []int{1, 2}, seen)
		assert.True(t, s.Unlocked())
		require.NoError(t, s.Close())
	})

	t.Run("gives up after the budget", func(t *testing.T) {
		s := openSession(t, cfg)
		calls := 0
		err := s.UnlockWith(func(int) ([]byte, error) {
			calls++
			return []byte("bad"), nil
		})
		assert.ErrorIs(t, err, ErrTooManyAttempts)
		assert.Equal(t, 3, calls)
		require.NoError(t, s.Close())
	})

	t.Run("prompt error stops", func(t *testing.T) {
		s := openSession(t, cfg)
		boom := errors.New("stdin closed")
		err := s.UnlockWith(func(int) ([]byte, error) { return nil, boom })
		assert.ErrorIs(t, err, boom)
		require.NoError(t, s.Close())
	})
}

func TestRecordOperations(t *testing.T) {
	cfg := testConfig(t, config.BackendFile)
	s := openSession(t, cfg)
	require.NoError(t, s.Bootstrap([]byte("pass")))

	require.NoError(t, s.Add("mail", "https://mail.example", "me", []byte("pw1")))
	assert.ErrorIs(t, s.Add("mail", "x", "y", []byte("z")), store.ErrRecordExists)

	newName := "webmail"
	login := "me@example"
	require.NoError(t, s.Update("mail", domain.RecordChange{Name: &newName, Login: &login, Password: []byte("pw2")}))

	names, err := s.List()
	require.NoError(t, err)
	assert.Equal(t, []string{"webmail"}, names)

	rec, password, err := s.Get("webmail")
	require.NoError(t, err)
	assert.Equal(t, "me@example", rec.Login)
	assert.Equal(t, "pw2", string(password))

	require.NoError(t, s.Delete("webmail"))
	_, _, err = s.Get("webmail")
	assert.ErrorIs(t, err, store.ErrRecordNotFound)

	entries, err := s.Audit().Entries()
	require.NoError(t, err)
	var types []string
	for _, e := range entries {
		types = append(types, e.Type)
	}
	assert.Equal(t, []string{
		domain.OpInit, domain.OpCreate, domain.OpCreate, domain.OpRename,
		domain.OpView, domain.OpDelete, domain.OpView,
	}, types)
	assert.False(t, entries[2].Success)
}

func TestRotate(t *testing.T) {
	for _, backend := range []string{config.BackendFile, config.BackendBolt} {
		t.Run(backend, func(t *testing.T) {
			cfg := testConfig(t, backend)
			s := openSession(t, cfg)
			require.NoError(t, s.Bootstrap([]byte("old")))
			require.NoError(t, s.Add("a", "u", "l", []byte("secret-a")))

			_, err := s.Rotate(context.Background(), []byte("wrong"), []byte("new"), nil)
			assert.ErrorIs(t, err, master.ErrAuthenticationFailed)

			result, err := s.Rotate(context.Background(), []byte("old"), []byte("new"), nil)
			require.NoError(t, err)
			assert.Equal(t, []string{"a"}, result.Rotated)

			// The session keeps working under the new key.
			_, password, err := s.Get("a")
			require.NoError(t, err)
			assert.Equal(t, "secret-a", string(password))
			require.NoError(t, s.Close())

			reopened := openSession(t, cfg)
			assert.ErrorIs(t, reopened.Unlock([]byte("old")), master.ErrAuthenticationFailed)
			require.NoError(t, reopened.Unlock([]byte("new")))
			_, password, err = reopened.Get("a")
			require.NoError(t, err)
			assert.Equal(t, "secret-a", string(password))
		})
	}
}

func TestLegacyScheme(t *testing.T) {
	cfg := testConfig(t, config.BackendFile)
	cfg.MasterScheme = "legacy"

	s := openSession(t, cfg)
	require.NoError(t, s.Bootstrap([]byte("legacy-pass")))
	assert.Equal(t, master.SchemeLegacy, s.Scheme())
	require.NoError(t, s.Close())

	reopened := openSession(t, cfg)
	require.NoError(t, reopened.Unlock([]byte("legacy-pass")))
}

func TestClosedSession(t *testing.T) {
	cfg := testConfig(t, config.BackendFile)
	s := openSession(t, cfg)
	require.NoError(t, s.Bootstrap([]byte("pass")))
	require.NoError(t, s.Close())

	_, err := s.List()
	assert.ErrorIs(t, err, ErrClosed)
	assert.False(t, s.Unlocked())

	// The lock is free again.
	other := openSession(t, cfg)
	assert.True(t, other.Initialized())
}

func TestCheck(t *testing.T) {
	cfg := testConfig(t, config.BackendFile)
	s := openSession(t, cfg)

	_, _, err := s.Check()
	assert.ErrorIs(t, err, ErrLocked)

	require.NoError(t, s.Bootstrap([]byte("pass")))
	require.NoError(t, s.Add("good", "u", "l", []byte("pw")))
	require.NoError(t, os.WriteFile(filepath.Join(cfg.RecordsDir(), "bad.txt"), []byte("no fields"), 0o600))

	require.NoError(t, os.WriteFile(filepath.Join(cfg.RecordsDir(), "my..site.txt"), []byte("u\nl\npw"), 0o600))

	checked, bad, err := s.Check()
	require.NoError(t, err)
	assert.Equal(t, 3, checked)
	require.Len(t, bad, 2)
	assert.ErrorIs(t, bad["bad"], store.ErrCorruptRecord)
	assert.ErrorIs(t, bad["my..site"], store.ErrInvalidName)
}

func TestRotateSkipsInvalidRecordFileNames(t *testing.T) {
	cfg := testConfig(t, config.BackendFile)
	s := openSession(t, cfg)
	require.NoError(t, s.Bootstrap([]byte("old")))
	require.NoError(t, s.Add("github", "u", "l", []byte("pw")))
	require.NoError(t, os.WriteFile(filepath.Join(cfg.RecordsDir(), "my..site.txt"), []byte("u\nl\npw"), 0o600))

	names, err := s.List()
	require.NoError(t, err)
	assert.Equal(t, []string{"github"}, names)

	result, err := s.Rotate(context.Background(), []byte("old"), []byte("new"), nil)
	require.NoError(t, err)
	assert.Len(t, result.Rotated, 1)
}
