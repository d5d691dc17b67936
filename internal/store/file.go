package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sitevault/sitevault/internal/domain"
)

const (
	// RecordExt is the file extension of record units.
	RecordExt = ".txt"

	journalFile = ".rotation.journal"
)

// FileStore implements RecordStore with one file per record in a directory,
// named <name>.txt.
type FileStore struct {
	dir    string
	closed bool

	// beforeWrite is called before each record write; tests use it to inject faults.
	beforeWrite func(name string) error
}

var (
	_ RecordStore = (*FileStore)(nil)
	_ Batcher     = (*FileStore)(nil)
	_ Unlister    = (*FileStore)(nil)
)

// OpenFileStore opens (creating if necessary) a record directory.
func OpenFileStore(dir string) (*FileStore, error) {
	dir = filepath.Clean(dir)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, ioError("create records directory", err)
	}
	return &FileStore{dir: dir}, nil
}

func (fs *FileStore) path(name string) string {
	return filepath.Join(fs.dir, name+RecordExt)
}

// List returns the record names in sorted order.
func (fs *FileStore) List() ([]string, error) {
	names := []string{}
	err := fs.Walk(func(name string) error {
		names = append(names, name)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(names)
	return names, nil
}

// Walk enumerates record names straight from the directory. Files whose
// name is not a valid record name are skipped; see Unlisted.
func (fs *FileStore) Walk(fn func(name string) error) error {
	return fs.scan(func(name string) error {
		if ValidateName(name) != nil {
			return nil
		}
		return fn(name)
	})
}

// Unlisted returns the sorted stems of record files that Walk skips because
// they are not valid record names, such as "my..site".
func (fs *FileStore) Unlisted() ([]string, error) {
	names := []string{}
	err := fs.scan(func(name string) error {
		if ValidateName(name) != nil {
			names = append(names, name)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(names)
	return names, nil
}

func (fs *FileStore) scan(fn func(name string) error) error {
	if fs.closed {
		return ErrStoreClosed
	}

	dir, err := os.Open(fs.dir)
	if err != nil {
		return ioError("open records directory", err)
	}
	defer dir.Close()

	for {
		entries, err := dir.ReadDir(64)
		for _, entry := range entries {
			fileName := entry.Name()
			if entry.IsDir() || strings.HasPrefix(fileName, ".") || !strings.HasSuffix(fileName, RecordExt) {
				continue
			}
			if err := fn(strings.TrimSuffix(fileName, RecordExt)); err != nil {
				return err
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return ioError("read records directory", err)
		}
	}
}

// Read loads the named record.
func (fs *FileStore) Read(name string) (*domain.Record, error) {
	if fs.closed {
		return nil, ErrStoreClosed
	}
	if err := ValidateName(name); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(fs.path(name))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrRecordNotFound, name)
		}
		return nil, ioError("read record "+name, err)
	}

	return DecodeRecord(name, data)
}

// Exists reports whether the named record is present.
func (fs *FileStore) Exists(name string) bool {
	if fs.closed || ValidateName(name) != nil {
		return false
	}
	_, err := os.Stat(fs.path(name))
	return err == nil
}

// Create encrypts password with key and writes a new record. An existing
// record with the same name is never overwritten.
func (fs *FileStore) Create(name, url, login string, password, key []byte) error {
	if fs.closed {
		return ErrStoreClosed
	}

	rec, err := newRecord(name, url, login, password, key)
	if err != nil {
		return err
	}
	return fs.create(rec)
}

func (fs *FileStore) create(rec *domain.Record) error {
	data, err := EncodeRecord(rec)
	if err != nil {
		return err
	}
	if err := fs.hook(rec.Name); err != nil {
		return err
	}

	if err := AtomicCreateFile(fs.path(rec.Name), data); err != nil {
		if errors.Is(err, ErrTargetExists) {
			return fmt.Errorf("%w: %s", ErrRecordExists, rec.Name)
		}
		return ioError("write record "+rec.Name, err)
	}
	return nil
}

func (fs *FileStore) write(rec *domain.Record) error {
	data, err := EncodeRecord(rec)
	if err != nil {
		return err
	}
	if err := fs.hook(rec.Name); err != nil {
		return err
	}

	if err := AtomicWriteFile(fs.path(rec.Name), data); err != nil {
		return ioError("write record "+rec.Name, err)
	}
	return nil
}

func (fs *FileStore) hook(name string) error {
	if fs.beforeWrite == nil {
		return nil
	}
	if err := fs.beforeWrite(name); err != nil {
		return ioError("write record "+name, err)
	}
	return nil
}

// Update applies change to the named record. A rename publishes the record
// under the new name first and only then removes the old unit.
func (fs *FileStore) Update(name string, change domain.RecordChange, key []byte) error {
	rec, err := fs.Read(name)
	if err != nil {
		return err
	}

	updated, err := applyChange(rec, change, key)
	if err != nil {
		return err
	}

	if updated.Name == rec.Name {
		return fs.write(updated)
	}

	if err := fs.create(updated); err != nil {
		return err
	}
	if err := os.Remove(fs.path(rec.Name)); err != nil {
		return ioError("remove renamed record "+rec.Name, err)
	}
	return nil
}

// Replace overwrites an existing record with rec as-is.
func (fs *FileStore) Replace(rec *domain.Record) error {
	if fs.closed {
		return ErrStoreClosed
	}
	if err := ValidateName(rec.Name); err != nil {
		return err
	}
	if !fs.Exists(rec.Name) {
		return fmt.Errorf("%w: %s", ErrRecordNotFound, rec.Name)
	}
	return fs.write(rec)
}

// Delete removes the named record permanently.
func (fs *FileStore) Delete(name string) error {
	if fs.closed {
		return ErrStoreClosed
	}
	if err := ValidateName(name); err != nil {
		return err
	}

	if err := os.Remove(fs.path(name)); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrRecordNotFound, name)
		}
		return ioError("delete record "+name, err)
	}
	return nil
}

// Close marks the store closed.
func (fs *FileStore) Close() error {
	fs.closed = true
	return nil
}

// StageRotation writes the journal of original units, then each new unit.
// If any write fails the originals written so far are put back.
func (fs *FileStore) StageRotation(records []*domain.Record, masterDigest string) (Batch, error) {
	if fs.closed {
		return nil, ErrStoreClosed
	}

	journal := &Journal{
		ID:           uuid.NewString(),
		MasterDigest: masterDigest,
		CreatedAt:    time.Now().UTC(),
	}
	for _, rec := range records {
		original, err := fs.Read(rec.Name)
		if err != nil {
			return nil, fmt.Errorf("failed to snapshot %s: %w", rec.Name, err)
		}
		journal.Originals = append(journal.Originals, original)
	}

	data, err := json.Marshal(journal)
	if err != nil {
		return nil, fmt.Errorf("failed to encode rotation journal: %w", err)
	}
	if err := AtomicWriteFile(filepath.Join(fs.dir, journalFile), data); err != nil {
		return nil, ioError("write rotation journal", err)
	}

	batch := &fileBatch{fs: fs, journal: journal}
	for i, rec := range records {
		if err := fs.write(rec); err != nil {
			restoreErr := batch.restore(journal.Originals[:i])
			if restoreErr == nil {
				restoreErr = batch.discard()
			}
			return nil, errors.Join(fmt.Errorf("failed to stage %s: %w", rec.Name, err), restoreErr)
		}
	}
	return batch, nil
}

// PendingRotation loads a journal left behind by an interrupted rotation.
func (fs *FileStore) PendingRotation() (*Journal, Batch, error) {
	data, err := os.ReadFile(filepath.Join(fs.dir, journalFile))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil, nil
		}
		return nil, nil, ioError("read rotation journal", err)
	}

	var journal Journal
	if err := json.Unmarshal(data, &journal); err != nil {
		return nil, nil, fmt.Errorf("%w: rotation journal: %v", ErrCorruptRecord, err)
	}
	return &journal, &fileBatch{fs: fs, journal: &journal}, nil
}

type fileBatch struct {
	fs      *FileStore
	journal *Journal
}

func (b *fileBatch) Commit() error {
	return b.discard()
}

func (b *fileBatch) Rollback() error {
	if err := b.restore(b.journal.Originals); err != nil {
		return err
	}
	return b.discard()
}

func (b *fileBatch) restore(originals []*domain.Record) error {
	var errs []error
	for _, rec := range originals {
		data, err := EncodeRecord(rec)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if err := AtomicWriteFile(b.fs.path(rec.Name), data); err != nil {
			errs = append(errs, ioError("restore record "+rec.Name, err))
		}
	}
	return errors.Join(errs...)
}

func (b *fileBatch) discard() error {
	err := os.Remove(filepath.Join(b.fs.dir, journalFile))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return ioError("remove rotation journal", err)
	}
	return nil
}
