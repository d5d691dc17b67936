package store

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.etcd.io/bbolt"

	"github.com/sitevault/sitevault/internal/domain"
	"github.com/sitevault/sitevault/internal/vault"
)

var testKey = []byte("master-passphrase")

type testBackend struct {
	name string
	open func(t *testing.T) RecordStore
	// corrupt stores raw bytes as the unit of name, bypassing validation.
	corrupt func(t *testing.T, s RecordStore, name string, raw []byte)
	// fault installs a write hook on the store.
	fault func(s RecordStore, hook func(name string) error)
}

func backends() []testBackend {
	return []testBackend{
		{
			name: "file",
			open: func(t *testing.T) RecordStore {
				s, err := OpenFileStore(filepath.Join(t.TempDir(), "psw"))
				if err != nil {
					t.Fatalf("Failed to open file store: %v", err)
				}
				t.Cleanup(func() { s.Close() })
				return s
			},
			corrupt: func(t *testing.T, s RecordStore, name string, raw []byte) {
				fs := s.(*FileStore)
				if err := os.WriteFile(fs.path(name), raw, 0o600); err != nil {
					t.Fatalf("Failed to write raw unit: %v", err)
				}
			},
			fault: func(s RecordStore, hook func(name string) error) {
				s.(*FileStore).beforeWrite = hook
			},
		},
		{
			name: "bolt",
			open: func(t *testing.T) RecordStore {
				s, err := OpenBoltStore(filepath.Join(t.TempDir(), "vault.db"))
				if err != nil {
					t.Fatalf("Failed to open bolt store: %v", err)
				}
				t.Cleanup(func() { s.Close() })
				return s
			},
			corrupt: func(t *testing.T, s RecordStore, name string, raw []byte) {
				bs := s.(*BoltStore)
				err := bs.db.Update(func(tx *bbolt.Tx) error {
					return tx.Bucket(RecordsBucket).Put([]byte(name), raw)
				})
				if err != nil {
					t.Fatalf("Failed to write raw unit: %v", err)
				}
			},
			fault: func(s RecordStore, hook func(name string) error) {
				s.(*BoltStore).beforeWrite = hook
			},
		},
	}
}

func mustCreate(t *testing.T, s RecordStore, name, url, login, password string) {
	t.Helper()
	if err := s.Create(name, url, login, []byte(password), testKey); err != nil {
		t.Fatalf("Failed to create %s: %v", name, err)
	}
}

func decryptPassword(t *testing.T, rec *domain.Record, key []byte) string {
	t.Helper()
	plain, err := vault.Decrypt(rec.EncryptedPassword, key)
	if err != nil {
		t.Fatalf("Failed to decrypt %s: %v", rec.Name, err)
	}
	return string(plain)
}

func TestRecordStore_CreateAndRead(t *testing.T) {
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			s := b.open(t)
			mustCreate(t, s, "github", "https://github.com", "alice", "s3cret")

			rec, err := s.Read("github")
			if err != nil {
				t.Fatalf("Failed to read record: %v", err)
			}
			if rec.URL != "https://github.com" || rec.Login != "alice" {
				t.Errorf("Unexpected fields: url=%q login=%q", rec.URL, rec.Login)
			}
			if bytes.Equal(rec.EncryptedPassword, []byte("s3cret")) {
				t.Error("Password must not be stored in plaintext")
			}
			if got := decryptPassword(t, rec, testKey); got != "s3cret" {
				t.Errorf("Password mismatch: got %q", got)
			}
			if !s.Exists("github") {
				t.Error("Record should exist")
			}
		})
	}
}

func TestRecordStore_CreateDuplicate(t *testing.T) {
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			s := b.open(t)
			mustCreate(t, s, "mail", "https://mail.example", "bob", "first")

			err := s.Create("mail", "https://other.example", "eve", []byte("second"), testKey)
			if !errors.Is(err, ErrRecordExists) {
				t.Fatalf("Expected ErrRecordExists, got %v", err)
			}

			rec, err := s.Read("mail")
			if err != nil {
				t.Fatalf("Failed to read record: %v", err)
			}
			if rec.Login != "bob" || decryptPassword(t, rec, testKey) != "first" {
				t.Error("Existing record must not be overwritten")
			}
		})
	}
}

func TestRecordStore_ReadMissing(t *testing.T) {
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			s := b.open(t)
			if _, err := s.Read("nope"); !errors.Is(err, ErrRecordNotFound) {
				t.Errorf("Expected ErrRecordNotFound, got %v", err)
			}
			if err := s.Delete("nope"); !errors.Is(err, ErrRecordNotFound) {
				t.Errorf("Expected ErrRecordNotFound on delete, got %v", err)
			}
			if s.Exists("nope") {
				t.Error("Missing record should not exist")
			}
		})
	}
}

func TestRecordStore_CorruptRecord(t *testing.T) {
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			s := b.open(t)
			b.corrupt(t, s, "broken", []byte("https://only-url.example\n"))

			if _, err := s.Read("broken"); !errors.Is(err, ErrCorruptRecord) {
				t.Errorf("Expected ErrCorruptRecord, got %v", err)
			}
		})
	}
}

func TestRecordStore_Delete(t *testing.T) {
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			s := b.open(t)
			mustCreate(t, s, "a", "u", "l", "p")
			mustCreate(t, s, "b", "u", "l", "p")

			if err := s.Delete("a"); err != nil {
				t.Fatalf("Failed to delete: %v", err)
			}

			names, err := s.List()
			if err != nil {
				t.Fatalf("Failed to list: %v", err)
			}
			if len(names) != 1 || names[0] != "b" {
				t.Errorf("Unexpected names after delete: %v", names)
			}
		})
	}
}

func TestRecordStore_ListIsSortedAndRepeatable(t *testing.T) {
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			s := b.open(t)
			for _, name := range []string{"zeta", "alpha", "mid"} {
				mustCreate(t, s, name, "u", "l", "p")
			}

			first, err := s.List()
			if err != nil {
				t.Fatalf("Failed to list: %v", err)
			}
			second, err := s.List()
			if err != nil {
				t.Fatalf("Failed to list again: %v", err)
			}

			want := []string{"alpha", "mid", "zeta"}
			for i, name := range want {
				if first[i] != name || second[i] != name {
					t.Fatalf("Listing mismatch: first=%v second=%v want=%v", first, second, want)
				}
			}
		})
	}
}

func TestFileStore_SkipsInvalidNames(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "psw")
	s, err := OpenFileStore(dir)
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	mustCreate(t, s, "github", "u", "l", "p")
	if err := os.WriteFile(filepath.Join(dir, "my..site.txt"), []byte("u\nl\np"), 0o600); err != nil {
		t.Fatalf("Failed to write file: %v", err)
	}

	names, err := s.List()
	if err != nil {
		t.Fatalf("Failed to list: %v", err)
	}
	if len(names) != 1 || names[0] != "github" {
		t.Fatalf("Expected only github, got %v", names)
	}

	unlisted, err := s.Unlisted()
	if err != nil {
		t.Fatalf("Failed to list skipped files: %v", err)
	}
	if len(unlisted) != 1 || unlisted[0] != "my..site" {
		t.Fatalf("Expected my..site to be unlisted, got %v", unlisted)
	}
}

func TestRecordStore_EmptyList(t *testing.T) {
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			s := b.open(t)
			names, err := s.List()
			if err != nil {
				t.Fatalf("Failed to list: %v", err)
			}
			if len(names) != 0 {
				t.Errorf("Expected no records, got %v", names)
			}
		})
	}
}

func TestRecordStore_UpdateFields(t *testing.T) {
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			s := b.open(t)
			mustCreate(t, s, "bank", "https://bank.example", "carol", "old")

			url := "https://new.bank.example"
			err := s.Update("bank", domain.RecordChange{URL: &url, Password: []byte("new")}, testKey)
			if err != nil {
				t.Fatalf("Failed to update: %v", err)
			}

			rec, err := s.Read("bank")
			if err != nil {
				t.Fatalf("Failed to read: %v", err)
			}
			if rec.URL != url || rec.Login != "carol" {
				t.Errorf("Unexpected fields: %+v", rec)
			}
			if got := decryptPassword(t, rec, testKey); got != "new" {
				t.Errorf("Password mismatch: got %q", got)
			}
		})
	}
}

func TestRecordStore_Rename(t *testing.T) {
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			s := b.open(t)
			mustCreate(t, s, "old", "u", "dave", "pw")

			newName := "new"
			if err := s.Update("old", domain.RecordChange{Name: &newName}, testKey); err != nil {
				t.Fatalf("Failed to rename: %v", err)
			}

			if s.Exists("old") {
				t.Error("Old name should be gone")
			}
			rec, err := s.Read("new")
			if err != nil {
				t.Fatalf("Failed to read renamed record: %v", err)
			}
			if rec.Login != "dave" || decryptPassword(t, rec, testKey) != "pw" {
				t.Errorf("Renamed record lost data: %+v", rec)
			}
		})
	}
}

func TestRecordStore_RenameCollision(t *testing.T) {
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			s := b.open(t)
			mustCreate(t, s, "one", "u1", "l1", "p1")
			mustCreate(t, s, "two", "u2", "l2", "p2")

			target := "two"
			err := s.Update("one", domain.RecordChange{Name: &target}, testKey)
			if !errors.Is(err, ErrRecordExists) {
				t.Fatalf("Expected ErrRecordExists, got %v", err)
			}

			for name, login := range map[string]string{"one": "l1", "two": "l2"} {
				rec, err := s.Read(name)
				if err != nil {
					t.Fatalf("Failed to read %s: %v", name, err)
				}
				if rec.Login != login {
					t.Errorf("%s was modified: %+v", name, rec)
				}
			}
		})
	}
}

func TestRecordStore_Replace(t *testing.T) {
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			s := b.open(t)
			mustCreate(t, s, "site", "u", "l", "p")

			enc, _ := vault.Encrypt([]byte("replaced"), testKey)
			if err := s.Replace(&domain.Record{Name: "site", URL: "u2", Login: "l2", EncryptedPassword: enc}); err != nil {
				t.Fatalf("Failed to replace: %v", err)
			}
			rec, _ := s.Read("site")
			if rec.URL != "u2" || decryptPassword(t, rec, testKey) != "replaced" {
				t.Errorf("Replace did not overwrite: %+v", rec)
			}

			err := s.Replace(&domain.Record{Name: "ghost", EncryptedPassword: enc})
			if !errors.Is(err, ErrRecordNotFound) {
				t.Errorf("Expected ErrRecordNotFound, got %v", err)
			}
		})
	}
}

func TestRecordStore_RejectsInvalidInput(t *testing.T) {
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			s := b.open(t)

			if err := s.Create("../escape", "u", "l", []byte("p"), testKey); !errors.Is(err, ErrInvalidName) {
				t.Errorf("Expected ErrInvalidName, got %v", err)
			}
			if err := s.Create("ok", "u\nx", "l", []byte("p"), testKey); !errors.Is(err, ErrInvalidField) {
				t.Errorf("Expected ErrInvalidField, got %v", err)
			}
			if err := s.Create("ok", "u", "l", []byte("p"), nil); !errors.Is(err, vault.ErrInvalidKey) {
				t.Errorf("Expected ErrInvalidKey, got %v", err)
			}
			if s.Exists("ok") {
				t.Error("Rejected record must not be persisted")
			}
		})
	}
}

func TestRecordStore_PasswordWithNewlineCiphertext(t *testing.T) {
	// 'a'(97) + key byte 169 wraps to 10, a newline in the ciphertext.
	key := []byte{169}
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			s := b.open(t)
			if err := s.Create("nl", "u", "l", []byte("aaa"), key); err != nil {
				t.Fatalf("Failed to create: %v", err)
			}
			rec, err := s.Read("nl")
			if err != nil {
				t.Fatalf("Failed to read: %v", err)
			}
			if !bytes.Equal(rec.EncryptedPassword, []byte("\n\n\n")) {
				t.Fatalf("Unexpected ciphertext %v", rec.EncryptedPassword)
			}
			if got := decryptPassword(t, rec, key); got != "aaa" {
				t.Errorf("Password mismatch: got %q", got)
			}
		})
	}
}

func TestRecordStore_Closed(t *testing.T) {
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			s := b.open(t)
			if err := s.Close(); err != nil {
				t.Fatalf("Failed to close: %v", err)
			}
			if _, err := s.List(); !errors.Is(err, ErrStoreClosed) {
				t.Errorf("Expected ErrStoreClosed, got %v", err)
			}
		})
	}
}

func TestEncodeDecodeRecord(t *testing.T) {
	rec := &domain.Record{Name: "n", URL: "https://x", Login: "me", EncryptedPassword: []byte{1, '\n', 2}}
	data, err := EncodeRecord(rec)
	if err != nil {
		t.Fatalf("Failed to encode: %v", err)
	}
	if string(data) != "https://x\nme\n\x01\n\x02" {
		t.Errorf("Unexpected unit %q", data)
	}

	decoded, err := DecodeRecord("n", data)
	if err != nil {
		t.Fatalf("Failed to decode: %v", err)
	}
	if decoded.URL != rec.URL || decoded.Login != rec.Login || !bytes.Equal(decoded.EncryptedPassword, rec.EncryptedPassword) {
		t.Errorf("Decoded record mismatch: %+v", decoded)
	}

	// Empty fields are valid as long as both separators are present.
	empty, err := DecodeRecord("e", []byte("\n\n"))
	if err != nil {
		t.Fatalf("Failed to decode empty unit: %v", err)
	}
	if empty.URL != "" || empty.Login != "" || len(empty.EncryptedPassword) != 0 {
		t.Errorf("Unexpected empty record: %+v", empty)
	}

	for _, raw := range []string{"", "only", "url\nlogin"} {
		if _, err := DecodeRecord("bad", []byte(raw)); !errors.Is(err, ErrCorruptRecord) {
			t.Errorf("DecodeRecord(%q): expected ErrCorruptRecord, got %v", raw, err)
		}
	}
}

func TestValidateName(t *testing.T) {
	valid := []string{"github", "My Bank", "mail.example.com", "ü-name"}
	for _, name := range valid {
		if err := ValidateName(name); err != nil {
			t.Errorf("ValidateName(%q) = %v, want nil", name, err)
		}
	}

	invalid := []string{"", ".hidden", "a/b", `a\b`, "c:d", "a..b", "tab\tname", "star*", "q?"}
	for _, name := range invalid {
		if err := ValidateName(name); !errors.Is(err, ErrInvalidName) {
			t.Errorf("ValidateName(%q) = %v, want ErrInvalidName", name, err)
		}
	}
}

func TestFileLock(t *testing.T) {
	lockPath := filepath.Join(t.TempDir(), LockFileName)

	// Test basic locking
	lock1 := NewFileLock(lockPath)
	if err := lock1.Lock(1 * time.Second); err != nil {
		t.Fatalf("Failed to acquire lock: %v", err)
	}

	if !lock1.IsLocked() {
		t.Error("Lock should be held")
	}

	// Test lock contention
	lock2 := NewFileLock(lockPath)
	err := lock2.Lock(100 * time.Millisecond)
	if !errors.Is(err, ErrVaultLocked) {
		t.Errorf("Expected ErrVaultLocked, got %v", err)
	}

	// Release first lock
	if err := lock1.Unlock(); err != nil {
		t.Fatalf("Failed to release lock: %v", err)
	}

	if lock1.IsLocked() {
		t.Error("Lock should be released")
	}

	// Now second lock should succeed
	if err := lock2.Lock(1 * time.Second); err != nil {
		t.Fatalf("Failed to acquire lock after release: %v", err)
	}

	if err := lock2.Unlock(); err != nil {
		t.Fatalf("Failed to release second lock: %v", err)
	}
	if err := lock2.Unlock(); !errors.Is(err, ErrLockNotHeld) {
		t.Errorf("Expected ErrLockNotHeld, got %v", err)
	}
}

func TestFileLock_StaleLockFile(t *testing.T) {
	lockPath := filepath.Join(t.TempDir(), LockFileName)
	if err := os.WriteFile(lockPath, []byte("99999"), 0o600); err != nil {
		t.Fatalf("Failed to create stale lock file: %v", err)
	}

	lock := NewFileLock(lockPath)
	if err := lock.Lock(100 * time.Millisecond); err != nil {
		t.Fatalf("Stale lock file should not block: %v", err)
	}
	lock.Unlock()
}

func TestAtomicWriter(t *testing.T) {
	tempDir := t.TempDir()
	targetPath := filepath.Join(tempDir, "test.txt")

	// Test successful write
	writer, err := NewAtomicWriter(targetPath)
	if err != nil {
		t.Fatalf("Failed to create atomic writer: %v", err)
	}

	testData := []byte("Hello, World!")
	if _, err := writer.Write(testData); err != nil {
		t.Fatalf("Failed to write data: %v", err)
	}

	if err := writer.Commit(); err != nil {
		t.Fatalf("Failed to commit: %v", err)
	}

	// Verify file exists and contains correct data
	data, err := os.ReadFile(targetPath)
	if err != nil {
		t.Fatalf("Failed to read target file: %v", err)
	}

	if string(data) != string(testData) {
		t.Errorf("File content mismatch: got %s, want %s", string(data), string(testData))
	}

	// Test abort
	writer2, err := NewAtomicWriter(targetPath + ".2")
	if err != nil {
		t.Fatalf("Failed to create second atomic writer: %v", err)
	}

	writer2.Write([]byte("This should be aborted"))
	if err := writer2.Abort(); err != nil {
		t.Fatalf("Failed to abort: %v", err)
	}

	// Verify target file doesn't exist
	if _, err := os.Stat(targetPath + ".2"); !os.IsNotExist(err) {
		t.Error("Aborted file should not exist")
	}

	entries, err := os.ReadDir(tempDir)
	if err != nil {
		t.Fatalf("Failed to read dir: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("Temp files left behind: %v", entries)
	}
}

func TestAtomicCreateFile(t *testing.T) {
	target := filepath.Join(t.TempDir(), "unit.txt")

	if err := AtomicCreateFile(target, []byte("first")); err != nil {
		t.Fatalf("Failed to create: %v", err)
	}
	if err := AtomicCreateFile(target, []byte("second")); !errors.Is(err, ErrTargetExists) {
		t.Fatalf("Expected ErrTargetExists, got %v", err)
	}

	data, err := os.ReadFile(target)
	if err != nil {
		t.Fatalf("Failed to read: %v", err)
	}
	if string(data) != "first" {
		t.Errorf("Existing file was clobbered: %q", data)
	}

	entries, _ := os.ReadDir(filepath.Dir(target))
	if len(entries) != 1 {
		t.Errorf("Temp files left behind: %v", entries)
	}
}
