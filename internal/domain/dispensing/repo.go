package dispensing

import (
	"context"

	"github.com/google/uuid"
)

type EntryRepository interface {
	Create(ctx context.Context, e *Entry) error
	GetByID(ctx context.Context, id uuid.UUID) (*Entry, error)
	// GetOpenByPrescription returns the non-terminal entry for a
	// prescription, or nil when none exists.
	GetOpenByPrescription(ctx context.Context, prescriptionID uuid.UUID) (*Entry, error)
	Update(ctx context.Context, e *Entry) error
	// ListQueued returns all queued entries ordered by
	// (priority rank desc, queued_at asc, id asc).
	ListQueued(ctx context.Context) ([]*Entry, error)
	// UpdatePositions writes the recomputed queue positions in one statement
	// batch. Entries absent from the map keep their stored position.
	UpdatePositions(ctx context.Context, positions map[uuid.UUID]int) error
	// Claim performs the atomic compare-and-set that backs the
	// at-most-one-worker invariant: it assigns workerID and moves the entry
	// to in_progress only if the entry is still queued and unassigned.
	// Returns false when the entry was already claimed or not claimable.
	Claim(ctx context.Context, entryID, workerID uuid.UUID) (bool, error)
	List(ctx context.Context, status *Status, limit, offset int) ([]*Entry, int, error)
}

type ScanRepository interface {
	// Create appends a scan record. Records are immutable afterwards.
	Create(ctx context.Context, rec *ScanRecord) error
	ListByEntry(ctx context.Context, entryID uuid.UUID) ([]*ScanRecord, error)
}

type VerificationRepository interface {
	// Create appends a verification record. Records are immutable afterwards.
	Create(ctx context.Context, rec *VerificationRecord) error
	// GetByEntryAttempt returns the record for (entry, attempt), or nil.
	GetByEntryAttempt(ctx context.Context, entryID uuid.UUID, attempt int) (*VerificationRecord, error)
	ListByEntry(ctx context.Context, entryID uuid.UUID) ([]*VerificationRecord, error)
}
