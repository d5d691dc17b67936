package rotation

import (
	"fmt"

	"github.com/sitevault/sitevault/internal/logging"
	"github.com/sitevault/sitevault/internal/store"
)

// Outcome is the result of resolving an interrupted rotation.
type Outcome int

const (
	// NothingPending means no rotation was interrupted.
	NothingPending Outcome = iota
	// RolledForward means the new master blob had been persisted; the
	// staged records were kept.
	RolledForward
	// RolledBack means the master blob was never replaced; the original
	// records were restored.
	RolledBack
)

func (o Outcome) String() string {
	switch o {
	case RolledForward:
		return "rolled forward"
	case RolledBack:
		return "rolled back"
	default:
		return "nothing pending"
	}
}

// Recover resolves a rotation journal left by a crash. It must run before
// any record is read. Stores without journals never have anything pending.
func Recover(records store.RecordStore, m interface{ Digest() string }, logger *logging.Logger) (Outcome, error) {
	batcher, ok := records.(store.Batcher)
	if !ok {
		return NothingPending, nil
	}

	journal, batch, err := batcher.PendingRotation()
	if err != nil {
		return NothingPending, fmt.Errorf("failed to read rotation journal: %w", err)
	}
	if journal == nil {
		return NothingPending, nil
	}

	if journal.MasterDigest != "" && journal.MasterDigest == m.Digest() {
		logger.Warnf("completing interrupted rotation %s", journal.ID)
		if err := batch.Commit(); err != nil {
			return NothingPending, fmt.Errorf("failed to complete rotation %s: %w", journal.ID, err)
		}
		return RolledForward, nil
	}

	logger.Warnf("undoing interrupted rotation %s (%d records)", journal.ID, len(journal.Originals))
	if err := batch.Rollback(); err != nil {
		return NothingPending, fmt.Errorf("failed to undo rotation %s: %w", journal.ID, err)
	}
	return RolledBack, nil
}
