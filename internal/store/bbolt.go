package store

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.etcd.io/bbolt"

	"github.com/sitevault/sitevault/internal/domain"
)

// Bucket names
var (
	RecordsBucket = []byte("records")
	MasterBucket  = []byte("master")
	JournalBucket = []byte("journal")
)

var (
	masterKey  = []byte("blob")
	pendingKey = []byte("pending")
)

// BoltStore implements RecordStore using BoltDB. Each record unit is one
// value in the records bucket keyed by name; the master blob and the
// rotation journal live in their own buckets of the same file.
type BoltStore struct {
	db     *bbolt.DB
	isOpen bool

	// beforeWrite is called before each record write; tests use it to inject faults.
	beforeWrite func(name string) error
}

var (
	_ RecordStore = (*BoltStore)(nil)
	_ Batcher     = (*BoltStore)(nil)
)

// OpenBoltStore opens (creating if necessary) the database at path.
func OpenBoltStore(path string) (*BoltStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, ioError("create vault directory", err)
	}

	db, err := bbolt.Open(path, 0o600, &bbolt.Options{
		Timeout: 1 * time.Second,
	})
	if err != nil {
		if err == bbolt.ErrTimeout {
			return nil, fmt.Errorf("%w: %s", ErrVaultLocked, path)
		}
		return nil, ioError("open vault database", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{RecordsBucket, MasterBucket, JournalBucket} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("failed to create %s bucket: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		if closeErr := db.Close(); closeErr != nil {
			log.Printf("Warning: failed to close database: %v", closeErr)
		}
		return nil, err
	}

	return &BoltStore{db: db, isOpen: true}, nil
}

func (bs *BoltStore) view(fn func(records *bbolt.Bucket) error) error {
	if !bs.isOpen {
		return ErrStoreClosed
	}
	return bs.db.View(func(tx *bbolt.Tx) error {
		return fn(tx.Bucket(RecordsBucket))
	})
}

func (bs *BoltStore) update(fn func(tx *bbolt.Tx, records *bbolt.Bucket) error) error {
	if !bs.isOpen {
		return ErrStoreClosed
	}
	return bs.db.Update(func(tx *bbolt.Tx) error {
		return fn(tx, tx.Bucket(RecordsBucket))
	})
}

// List returns the record names in sorted order.
func (bs *BoltStore) List() ([]string, error) {
	names := []string{}
	err := bs.Walk(func(name string) error {
		names = append(names, name)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return names, nil
}

// Walk iterates record names in key order inside one read transaction.
func (bs *BoltStore) Walk(fn func(name string) error) error {
	return bs.view(func(records *bbolt.Bucket) error {
		return records.ForEach(func(k, _ []byte) error {
			return fn(string(k))
		})
	})
}

// Read loads the named record.
func (bs *BoltStore) Read(name string) (*domain.Record, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}

	var rec *domain.Record
	err := bs.view(func(records *bbolt.Bucket) error {
		data := records.Get([]byte(name))
		if data == nil {
			return fmt.Errorf("%w: %s", ErrRecordNotFound, name)
		}
		var err error
		rec, err = DecodeRecord(name, data)
		return err
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// Exists reports whether the named record is present.
func (bs *BoltStore) Exists(name string) bool {
	if ValidateName(name) != nil {
		return false
	}
	found := false
	_ = bs.view(func(records *bbolt.Bucket) error {
		found = records.Get([]byte(name)) != nil
		return nil
	})
	return found
}

func (bs *BoltStore) put(records *bbolt.Bucket, rec *domain.Record) error {
	data, err := EncodeRecord(rec)
	if err != nil {
		return err
	}
	if bs.beforeWrite != nil {
		if err := bs.beforeWrite(rec.Name); err != nil {
			return ioError("write record "+rec.Name, err)
		}
	}
	if err := records.Put([]byte(rec.Name), data); err != nil {
		return ioError("write record "+rec.Name, err)
	}
	return nil
}

// Create encrypts password with key and stores a new record. The collision
// check runs in the same write transaction as the insert.
func (bs *BoltStore) Create(name, url, login string, password, key []byte) error {
	rec, err := newRecord(name, url, login, password, key)
	if err != nil {
		return err
	}

	return bs.update(func(_ *bbolt.Tx, records *bbolt.Bucket) error {
		if records.Get([]byte(name)) != nil {
			return fmt.Errorf("%w: %s", ErrRecordExists, name)
		}
		return bs.put(records, rec)
	})
}

// Update applies change to the named record in one transaction.
func (bs *BoltStore) Update(name string, change domain.RecordChange, key []byte) error {
	if err := ValidateName(name); err != nil {
		return err
	}

	return bs.update(func(_ *bbolt.Tx, records *bbolt.Bucket) error {
		data := records.Get([]byte(name))
		if data == nil {
			return fmt.Errorf("%w: %s", ErrRecordNotFound, name)
		}
		rec, err := DecodeRecord(name, data)
		if err != nil {
			return err
		}

		updated, err := applyChange(rec, change, key)
		if err != nil {
			return err
		}

		if updated.Name != name {
			if records.Get([]byte(updated.Name)) != nil {
				return fmt.Errorf("%w: %s", ErrRecordExists, updated.Name)
			}
			if err := bs.put(records, updated); err != nil {
				return err
			}
			return records.Delete([]byte(name))
		}
		return bs.put(records, updated)
	})
}

// Replace overwrites an existing record with rec as-is.
func (bs *BoltStore) Replace(rec *domain.Record) error {
	if err := ValidateName(rec.Name); err != nil {
		return err
	}

	return bs.update(func(_ *bbolt.Tx, records *bbolt.Bucket) error {
		if records.Get([]byte(rec.Name)) == nil {
			return fmt.Errorf("%w: %s", ErrRecordNotFound, rec.Name)
		}
		return bs.put(records, rec)
	})
}

// Delete removes the named record permanently.
func (bs *BoltStore) Delete(name string) error {
	if err := ValidateName(name); err != nil {
		return err
	}

	return bs.update(func(_ *bbolt.Tx, records *bbolt.Bucket) error {
		if records.Get([]byte(name)) == nil {
			return fmt.Errorf("%w: %s", ErrRecordNotFound, name)
		}
		return records.Delete([]byte(name))
	})
}

// Close closes the database.
func (bs *BoltStore) Close() error {
	if !bs.isOpen {
		return nil
	}
	bs.isOpen = false
	return bs.db.Close()
}

// StageRotation writes the journal and the new units in a single
// transaction, so a failure leaves the database untouched.
func (bs *BoltStore) StageRotation(records []*domain.Record, masterDigest string) (Batch, error) {
	journal := &Journal{
		ID:           uuid.NewString(),
		MasterDigest: masterDigest,
		CreatedAt:    time.Now().UTC(),
	}

	err := bs.update(func(tx *bbolt.Tx, bucket *bbolt.Bucket) error {
		for _, rec := range records {
			data := bucket.Get([]byte(rec.Name))
			if data == nil {
				return fmt.Errorf("failed to snapshot %s: %w", rec.Name, ErrRecordNotFound)
			}
			original, err := DecodeRecord(rec.Name, data)
			if err != nil {
				return fmt.Errorf("failed to snapshot %s: %w", rec.Name, err)
			}
			journal.Originals = append(journal.Originals, original)
		}

		encoded, err := json.Marshal(journal)
		if err != nil {
			return fmt.Errorf("failed to encode rotation journal: %w", err)
		}
		if err := tx.Bucket(JournalBucket).Put(pendingKey, encoded); err != nil {
			return ioError("write rotation journal", err)
		}

		for _, rec := range records {
			if err := bs.put(bucket, rec); err != nil {
				return fmt.Errorf("failed to stage %s: %w", rec.Name, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &boltBatch{bs: bs, journal: journal}, nil
}

// PendingRotation loads a journal left behind by an interrupted rotation.
func (bs *BoltStore) PendingRotation() (*Journal, Batch, error) {
	if !bs.isOpen {
		return nil, nil, ErrStoreClosed
	}

	var journal *Journal
	err := bs.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(JournalBucket).Get(pendingKey)
		if data == nil {
			return nil
		}
		journal = &Journal{}
		if err := json.Unmarshal(data, journal); err != nil {
			return fmt.Errorf("%w: rotation journal: %v", ErrCorruptRecord, err)
		}
		return nil
	})
	if err != nil || journal == nil {
		return nil, nil, err
	}
	return journal, &boltBatch{bs: bs, journal: journal}, nil
}

type boltBatch struct {
	bs      *BoltStore
	journal *Journal
}

func (b *boltBatch) Commit() error {
	return b.bs.update(func(tx *bbolt.Tx, _ *bbolt.Bucket) error {
		return tx.Bucket(JournalBucket).Delete(pendingKey)
	})
}

func (b *boltBatch) Rollback() error {
	return b.bs.update(func(tx *bbolt.Tx, records *bbolt.Bucket) error {
		for _, rec := range b.journal.Originals {
			data, err := EncodeRecord(rec)
			if err != nil {
				return err
			}
			if err := records.Put([]byte(rec.Name), data); err != nil {
				return ioError("restore record "+rec.Name, err)
			}
		}
		return tx.Bucket(JournalBucket).Delete(pendingKey)
	})
}

// MasterBlob returns the master blob location inside this database.
func (bs *BoltStore) MasterBlob() *BoltBlob {
	return &BoltBlob{bs: bs}
}

// BoltBlob stores the master blob in the master bucket.
type BoltBlob struct {
	bs *BoltStore
}

// ReadBlob returns the stored blob, or an error wrapping os.ErrNotExist.
func (b *BoltBlob) ReadBlob() ([]byte, error) {
	if !b.bs.isOpen {
		return nil, ErrStoreClosed
	}

	var blob []byte
	err := b.bs.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(MasterBucket).Get(masterKey)
		if data == nil {
			return fmt.Errorf("master blob: %w", os.ErrNotExist)
		}
		blob = append([]byte(nil), data...)
		return nil
	})
	return blob, err
}

// WriteBlob replaces the stored blob in one transaction.
func (b *BoltBlob) WriteBlob(blob []byte) error {
	return b.bs.update(func(tx *bbolt.Tx, _ *bbolt.Bucket) error {
		if err := tx.Bucket(MasterBucket).Put(masterKey, blob); err != nil {
			return ioError("write master blob", err)
		}
		return nil
	})
}
