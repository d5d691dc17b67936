// Package rotation changes the master passphrase and re-encrypts every
// record under the new one as a single all-or-nothing operation.
//
// A rotation runs in two passes. The prepare pass reads and re-encrypts
// every record in memory without touching storage, so a corrupt record or
// a wrong key aborts before anything changes. The commit pass then swaps
// the records and the master blob. Stores that implement store.Batcher
// stage the records behind a journal tagged with the digest of the new
// master blob; if the process dies between the two writes, Recover uses
// that digest to decide which side won. Other stores are rewritten record
// by record with compensating restores on failure.
package rotation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sitevault/sitevault/internal/domain"
	"github.com/sitevault/sitevault/internal/logging"
	"github.com/sitevault/sitevault/internal/master"
	"github.com/sitevault/sitevault/internal/store"
	"github.com/sitevault/sitevault/internal/vault"
)

// ErrRestoreFailed is returned when a failed rotation could not put the
// previous state back. The vault needs manual attention.
var ErrRestoreFailed = errors.New("rotation failed and previous state could not be fully restored")

// MasterStore is the part of master.Store the coordinator needs.
type MasterStore interface {
	Verify(candidate []byte) bool
	Seal(secret []byte) ([]byte, error)
	Commit(blob []byte) error
	Digest() string
}

var _ MasterStore = (*master.Store)(nil)

// Coordinator rotates the master passphrase of one vault.
type Coordinator struct {
	records store.RecordStore
	master  MasterStore
	logger  *logging.Logger

	// Progress, if set, is called after each record is prepared.
	Progress func(done, total int)
}

// NewCoordinator returns a Coordinator over records and m.
func NewCoordinator(records store.RecordStore, m MasterStore, logger *logging.Logger) *Coordinator {
	return &Coordinator{records: records, master: m, logger: logger}
}

// Rotate re-encrypts every record from current to next and persists next as
// the master passphrase. On any error the vault is left as it was.
func (c *Coordinator) Rotate(ctx context.Context, current, next []byte) (*domain.RotationResult, error) {
	started := time.Now()

	if !c.master.Verify(current) {
		return nil, master.ErrAuthenticationFailed
	}
	if len(next) == 0 {
		return nil, vault.ErrInvalidKey
	}

	names, err := c.records.List()
	if err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}

	originals, staged, err := c.prepare(ctx, names, current, next)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if batcher, ok := c.records.(store.Batcher); ok {
		err = c.commitBatch(batcher, staged, next)
	} else {
		err = c.commitSequential(originals, staged, next)
	}
	if err != nil {
		return nil, err
	}

	return &domain.RotationResult{
		Rotated:   names,
		StartedAt: started.UTC(),
		Duration:  time.Since(started),
	}, nil
}

// prepare decrypts and re-encrypts every record in memory.
func (c *Coordinator) prepare(ctx context.Context, names []string, current, next []byte) ([]*domain.Record, []*domain.Record, error) {
	originals := make([]*domain.Record, 0, len(names))
	staged := make([]*domain.Record, 0, len(names))

	for i, name := range names {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}

		rec, err := c.records.Read(name)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to read record %s: %w", name, err)
		}

		encrypted, err := vault.Reencrypt(rec.EncryptedPassword, current, next)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to re-encrypt record %s: %w", name, err)
		}

		rotated := rec.Clone()
		rotated.EncryptedPassword = encrypted
		originals = append(originals, rec)
		staged = append(staged, rotated)

		c.logger.Debugf("prepared %s", name)
		if c.Progress != nil {
			c.Progress(i+1, len(names))
		}
	}
	return originals, staged, nil
}

func (c *Coordinator) commitBatch(batcher store.Batcher, staged []*domain.Record, next []byte) error {
	blob, err := c.master.Seal(next)
	if err != nil {
		return fmt.Errorf("failed to seal new master passphrase: %w", err)
	}

	batch, err := batcher.StageRotation(staged, master.BlobDigest(blob))
	if err != nil {
		return fmt.Errorf("failed to stage rotated records: %w", err)
	}

	if err := c.master.Commit(blob); err != nil {
		if rbErr := batch.Rollback(); rbErr != nil {
			return fmt.Errorf("%w: %w", ErrRestoreFailed, errors.Join(err, rbErr))
		}
		return fmt.Errorf("failed to persist new master passphrase: %w", err)
	}

	// The rotation is durable once the master blob is written; a journal
	// left behind here is resolved forward by Recover.
	if err := batch.Commit(); err != nil {
		c.logger.Warnf("rotation committed but journal cleanup failed: %v", err)
	}
	return nil
}

func (c *Coordinator) commitSequential(originals, staged []*domain.Record, next []byte) error {
	for i, rec := range staged {
		if err := c.records.Replace(rec); err != nil {
			if restoreErr := c.restore(originals[:i]); restoreErr != nil {
				return fmt.Errorf("%w: %w", ErrRestoreFailed, errors.Join(err, restoreErr))
			}
			return fmt.Errorf("failed to write record %s: %w", rec.Name, err)
		}
	}

	blob, err := c.master.Seal(next)
	if err == nil {
		err = c.master.Commit(blob)
	}
	if err != nil {
		if restoreErr := c.restore(originals); restoreErr != nil {
			return fmt.Errorf("%w: %w", ErrRestoreFailed, errors.Join(err, restoreErr))
		}
		return fmt.Errorf("failed to persist new master passphrase: %w", err)
	}
	return nil
}

func (c *Coordinator) restore(originals []*domain.Record) error {
	var errs []error
	for _, rec := range originals {
		if err := c.records.Replace(rec); err != nil {
			errs = append(errs, fmt.Errorf("restore %s: %w", rec.Name, err))
		}
	}
	return errors.Join(errs...)
}
