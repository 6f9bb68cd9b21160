package dispensing

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/rebekz/simRS-sub002/internal/domain/prescription"
	"github.com/rebekz/simRS-sub002/internal/domain/stock"
	"github.com/rebekz/simRS-sub002/internal/platform/events"
)

// StockChecker exposes the stock check records the queue manager reads at
// admission time. Satisfied by stock.Repository.
type StockChecker interface {
	ListByPrescription(ctx context.Context, prescriptionID uuid.UUID) ([]*stock.CheckRecord, error)
}

// Publisher emits completion events. Satisfied by events.Dispatcher.
type Publisher interface {
	Publish(ev events.DispenseCompleted)
}

// Service is the dispensing workflow for one department queue. Queue-position
// recomputation is serialized through queueMu; per-entry operations rely on
// repository-level compare-and-set.
type Service struct {
	entries       EntryRepository
	scans         ScanRepository
	verifications VerificationRepository
	prescriptions prescription.Repository
	stockChecks   StockChecker
	publisher     Publisher
	logger        zerolog.Logger

	queueMu sync.Mutex

	// now is swappable for tests.
	now func() time.Time
}

func NewService(
	entries EntryRepository,
	scans ScanRepository,
	verifications VerificationRepository,
	prescriptions prescription.Repository,
	stockChecks StockChecker,
	publisher Publisher,
	logger zerolog.Logger,
) *Service {
	return &Service{
		entries:       entries,
		scans:         scans,
		verifications: verifications,
		prescriptions: prescriptions,
		stockChecks:   stockChecks,
		publisher:     publisher,
		logger:        logger,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// Admit creates a dispensing entry for a prescription whose stock checks all
// passed, and relists the queue. Admission is refused when any item lacks
// stock (and has no accepted alternative), or when an open entry already
// exists for the prescription.
func (s *Service) Admit(ctx context.Context, prescriptionID uuid.UUID, priority Priority) (*Entry, error) {
	if !priority.Valid() {
		return nil, fmt.Errorf("invalid priority: %s", priority)
	}

	open, err := s.entries.GetOpenByPrescription(ctx, prescriptionID)
	if err != nil {
		return nil, err
	}
	if open != nil {
		return nil, fmt.Errorf("prescription %s: %w", prescriptionID, ErrOpenEntryExists)
	}

	items, err := s.prescriptions.ListItems(ctx, prescriptionID)
	if err != nil {
		return nil, fmt.Errorf("list prescription items: %w", err)
	}
	if len(items) == 0 {
		if _, err := s.prescriptions.GetByID(ctx, prescriptionID); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("prescription %s has no items", prescriptionID)
	}

	checks, err := s.stockChecks.ListByPrescription(ctx, prescriptionID)
	if err != nil {
		return nil, fmt.Errorf("list stock checks: %w", err)
	}
	checked := make(map[uuid.UUID]*stock.CheckRecord, len(checks))
	for _, rec := range checks {
		checked[rec.DrugID] = rec
	}
	for _, item := range items {
		rec, ok := checked[item.DrugID]
		if !ok || !rec.Admissible() {
			return nil, fmt.Errorf("drug %s (%s): %w", item.DrugName, item.DrugID, ErrStockUnavailable)
		}
	}

	now := s.now()
	entry := &Entry{
		ID:             uuid.New(),
		PrescriptionID: prescriptionID,
		Status:         StatusQueued,
		Priority:       priority,
		TotalItems:     len(items),
		QueuedAt:       now,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.entries.Create(ctx, entry); err != nil {
		return nil, err
	}

	if err := s.recomputeQueue(ctx); err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("entry_id", entry.ID.String()).
		Str("prescription_id", prescriptionID.String()).
		Str("priority", string(priority)).
		Int("total_items", entry.TotalItems).
		Msg("entry admitted")

	// Positions were just recomputed; re-read to return the assigned slot.
	return s.entries.GetByID(ctx, entry.ID)
}

// Claim assigns the entry to a worker, queued -> in_progress. The repository
// performs an atomic compare-and-set on assigned_worker so exactly one of
// two concurrent claims succeeds; the loser gets ErrAlreadyClaimed and must
// pick another entry.
func (s *Service) Claim(ctx context.Context, entryID, workerID uuid.UUID) (*Entry, error) {
	entry, err := s.entries.GetByID(ctx, entryID)
	if err != nil {
		return nil, err
	}
	if entry.Status == StatusCancelled {
		return nil, fmt.Errorf("entry %s: %w", entryID, ErrEntryCancelled)
	}

	ok, err := s.entries.Claim(ctx, entryID, workerID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("entry %s: %w", entryID, ErrAlreadyClaimed)
	}

	if err := s.recomputeQueue(ctx); err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("entry_id", entryID.String()).
		Str("worker_id", workerID.String()).
		Msg("entry claimed")

	return s.entries.GetByID(ctx, entryID)
}

// Release clears the worker assignment and returns the entry to queued.
// The original queued_at is preserved so the relist keeps its fair position.
// Releasing a held entry back to the queue also clears its hold fields.
func (s *Service) Release(ctx context.Context, entryID uuid.UUID) (*Entry, error) {
	entry, err := s.entries.GetByID(ctx, entryID)
	if err != nil {
		return nil, err
	}
	if entry.Status == StatusCancelled {
		return nil, fmt.Errorf("entry %s: %w", entryID, ErrEntryCancelled)
	}
	if err := entry.transition(StatusQueued, s.now()); err != nil {
		return nil, err
	}
	entry.AssignedWorker = nil
	entry.StartedAt = nil
	entry.HoldReason = nil
	entry.HeldBy = nil
	entry.UpdatedAt = s.now()
	if err := s.entries.Update(ctx, entry); err != nil {
		return nil, err
	}

	if err := s.recomputeQueue(ctx); err != nil {
		return nil, err
	}

	s.logger.Info().Str("entry_id", entryID.String()).Msg("entry released")
	return s.entries.GetByID(ctx, entryID)
}

// Hold pauses a non-terminal entry. The reason is mandatory and kept for audit.
func (s *Service) Hold(ctx context.Context, entryID, actorID uuid.UUID, reason string) (*Entry, error) {
	if reason == "" {
		return nil, fmt.Errorf("hold: %w", ErrEmptyReason)
	}
	entry, err := s.entries.GetByID(ctx, entryID)
	if err != nil {
		return nil, err
	}
	if entry.Status == StatusCancelled {
		return nil, fmt.Errorf("entry %s: %w", entryID, ErrEntryCancelled)
	}
	if err := entry.transition(StatusOnHold, s.now()); err != nil {
		return nil, err
	}
	entry.HoldReason = &reason
	entry.HeldBy = &actorID
	entry.QueuePosition = nil
	entry.UpdatedAt = s.now()
	if err := s.entries.Update(ctx, entry); err != nil {
		return nil, err
	}

	if err := s.recomputeQueue(ctx); err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("entry_id", entryID.String()).
		Str("actor_id", actorID.String()).
		Str("reason", reason).
		Msg("entry held")

	return entry, nil
}

// Cancel terminates a non-terminal entry regardless of worker assignment.
// Takes precedence over in-flight operations: anything after this fails with
// ErrEntryCancelled. The entry is retained for audit.
func (s *Service) Cancel(ctx context.Context, entryID, actorID uuid.UUID, reason string) (*Entry, error) {
	if reason == "" {
		return nil, fmt.Errorf("cancel: %w", ErrEmptyReason)
	}
	entry, err := s.entries.GetByID(ctx, entryID)
	if err != nil {
		return nil, err
	}
	if entry.Status == StatusCancelled {
		return nil, fmt.Errorf("entry %s: %w", entryID, ErrEntryCancelled)
	}
	if err := entry.transition(StatusCancelled, s.now()); err != nil {
		return nil, err
	}
	entry.CancelReason = &reason
	entry.CancelledBy = &actorID
	entry.QueuePosition = nil
	entry.UpdatedAt = s.now()
	if err := s.entries.Update(ctx, entry); err != nil {
		return nil, err
	}

	if err := s.recomputeQueue(ctx); err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("entry_id", entryID.String()).
		Str("actor_id", actorID.String()).
		Str("reason", reason).
		Msg("entry cancelled")

	return entry, nil
}

// Ready marks a verified entry ready for pickup (labeling complete).
func (s *Service) Ready(ctx context.Context, entryID uuid.UUID) (*Entry, error) {
	entry, err := s.entries.GetByID(ctx, entryID)
	if err != nil {
		return nil, err
	}
	if entry.Status == StatusCancelled {
		return nil, fmt.Errorf("entry %s: %w", entryID, ErrEntryCancelled)
	}
	if err := entry.transition(StatusReadyForPickup, s.now()); err != nil {
		return nil, err
	}
	entry.UpdatedAt = s.now()
	if err := s.entries.Update(ctx, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

// Get returns one entry.
func (s *Service) Get(ctx context.Context, entryID uuid.UUID) (*Entry, error) {
	return s.entries.GetByID(ctx, entryID)
}

// Queue returns the queued entries in dispensing order.
func (s *Service) Queue(ctx context.Context) ([]*Entry, error) {
	return s.entries.ListQueued(ctx)
}

// ListEntries returns entries filtered by status with pagination.
func (s *Service) ListEntries(ctx context.Context, status *Status, limit, offset int) ([]*Entry, int, error) {
	return s.entries.List(ctx, status, limit, offset)
}

// recomputeQueue relists every queued entry and assigns positions 1..n by
// (priority rank desc, queued_at asc, id asc). A full relist, not an
// incremental patch: the whole ordered set is read and rewritten under one
// mutex so concurrent admissions cannot interleave and produce duplicate
// positions.
func (s *Service) recomputeQueue(ctx context.Context) error {
	s.queueMu.Lock()
	defer s.queueMu.Unlock()

	queued, err := s.entries.ListQueued(ctx)
	if err != nil {
		return fmt.Errorf("list queued entries: %w", err)
	}

	sort.SliceStable(queued, func(i, j int) bool {
		if queued[i].Priority.Rank() != queued[j].Priority.Rank() {
			return queued[i].Priority.Rank() > queued[j].Priority.Rank()
		}
		if !queued[i].QueuedAt.Equal(queued[j].QueuedAt) {
			return queued[i].QueuedAt.Before(queued[j].QueuedAt)
		}
		return queued[i].ID.String() < queued[j].ID.String()
	})

	positions := make(map[uuid.UUID]int, len(queued))
	for i, entry := range queued {
		positions[entry.ID] = i + 1
	}

	if err := s.entries.UpdatePositions(ctx, positions); err != nil {
		return fmt.Errorf("update queue positions: %w", err)
	}
	return nil
}
