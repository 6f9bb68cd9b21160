package dispensing

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/rebekz/simRS-sub002/internal/domain/prescription"
)

// ScanInput is one barcode read from the dispensing bench.
type ScanInput struct {
	Barcode         string     `json:"barcode"`
	DrugID          uuid.UUID  `json:"drug_id"`
	Batch           *string    `json:"batch,omitempty"`
	BatchExpiry     *time.Time `json:"batch_expiry,omitempty"`
	QuantityScanned float64    `json:"quantity_scanned"`
	ScannedBy       uuid.UUID  `json:"scanned_by"`
}

// RecordScan matches a barcode read against the next incomplete item of the
// entry's prescription and appends the outcome. Mismatches are recorded data,
// not errors: the call succeeds and the record carries the outcome codes, so
// the bench can re-scan without any server-side reset. The entry moves to
// awaiting_verification when the last item completes.
func (s *Service) RecordScan(ctx context.Context, entryID uuid.UUID, in ScanInput) (*ScanRecord, error) {
	entry, err := s.entries.GetByID(ctx, entryID)
	if err != nil {
		return nil, err
	}
	if entry.Status == StatusCancelled {
		return nil, fmt.Errorf("entry %s: %w", entryID, ErrEntryCancelled)
	}
	if entry.Status != StatusInProgress {
		return nil, errInvalidTransition(entry.Status, StatusAwaitingVerification)
	}
	if in.QuantityScanned <= 0 {
		return nil, fmt.Errorf("quantity scanned must be positive, got %v", in.QuantityScanned)
	}

	items, err := s.prescriptions.ListItems(ctx, entry.PrescriptionID)
	if err != nil {
		return nil, fmt.Errorf("list prescription items: %w", err)
	}
	prior, err := s.scans.ListByEntry(ctx, entryID)
	if err != nil {
		return nil, fmt.Errorf("list scans: %w", err)
	}
	matched := matchedQuantities(prior)

	item := nextIncompleteItem(items, matched)
	if item == nil {
		// Every item already has its full quantity scanned. Record the
		// read anyway so the audit trail shows the extra scan.
		item = items[len(items)-1]
	}

	now := s.now()
	rec := &ScanRecord{
		ID:               uuid.New(),
		EntryID:          entryID,
		ItemID:           item.ID,
		ScannedBarcode:   in.Barcode,
		ScannedDrugID:    in.DrugID,
		ScannedBatch:     in.Batch,
		BatchExpiry:      in.BatchExpiry,
		ExpectedDrugID:   item.DrugID,
		ExpectedQuantity: item.Quantity,
		QuantityScanned:  in.QuantityScanned,
		Warnings:         []string{},
		Errors:           []string{},
		ScannedBy:        in.ScannedBy,
		CreatedAt:        now,
	}

	// The checks are independent so the record carries every applicable
	// outcome code. Any error code forces a non-match.
	remaining := item.Quantity - matched[item.ID]
	if remaining <= 0 {
		rec.Warnings = append(rec.Warnings, ScanWarnItemAlreadyComplete)
	}
	if in.DrugID != item.DrugID {
		rec.Errors = append(rec.Errors, ScanErrDrugMismatch)
	} else if remaining > 0 {
		rec.QuantityApplied = in.QuantityScanned
		if in.QuantityScanned > remaining {
			rec.Warnings = append(rec.Warnings, ScanWarnQuantityExceeds)
			rec.QuantityApplied = remaining
		}
	}
	if in.BatchExpiry != nil && !in.BatchExpiry.After(now) {
		rec.Errors = append(rec.Errors, ScanErrExpiredBatch)
		rec.QuantityApplied = 0
	}
	rec.IsMatch = len(rec.Errors) == 0 && remaining > 0

	if err := s.scans.Create(ctx, rec); err != nil {
		return nil, err
	}

	if rec.IsMatch {
		matched[item.ID] += rec.QuantityApplied
		entry.ItemsScanned = completedItems(items, matched)
		if entry.ItemsScanned == entry.TotalItems {
			if err := entry.transition(StatusAwaitingVerification, now); err != nil {
				return nil, err
			}
		}
		entry.UpdatedAt = now
		if err := s.entries.Update(ctx, entry); err != nil {
			return nil, err
		}
	}

	s.logger.Info().
		Str("entry_id", entryID.String()).
		Str("item_id", item.ID.String()).
		Bool("is_match", rec.IsMatch).
		Strs("errors", rec.Errors).
		Strs("warnings", rec.Warnings).
		Msg("scan recorded")

	return rec, nil
}

// Scans returns the append-only scan trail of an entry.
func (s *Service) Scans(ctx context.Context, entryID uuid.UUID) ([]*ScanRecord, error) {
	if _, err := s.entries.GetByID(ctx, entryID); err != nil {
		return nil, err
	}
	return s.scans.ListByEntry(ctx, entryID)
}

// matchedQuantities sums the applied quantity of matching scans per item.
func matchedQuantities(scans []*ScanRecord) map[uuid.UUID]float64 {
	matched := make(map[uuid.UUID]float64, len(scans))
	for _, rec := range scans {
		if rec.IsMatch {
			matched[rec.ItemID] += rec.QuantityApplied
		}
	}
	return matched
}

// nextIncompleteItem returns the lowest-seq item whose matched quantity is
// still below its prescribed quantity, or nil when all are complete. Items
// arrive ordered by seq from the repository.
func nextIncompleteItem(items []*prescription.Item, matched map[uuid.UUID]float64) *prescription.Item {
	for _, item := range items {
		if matched[item.ID] < item.Quantity {
			return item
		}
	}
	return nil
}

func completedItems(items []*prescription.Item, matched map[uuid.UUID]float64) int {
	n := 0
	for _, item := range items {
		if matched[item.ID] >= item.Quantity {
			n++
		}
	}
	return n
}
