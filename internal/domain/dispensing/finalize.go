package dispensing

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/rebekz/simRS-sub002/internal/platform/events"
)

// Finalize commits the dispense: each item's dispensed quantity is set from
// its matched scans (capped at the prescribed quantity), refill counters
// advance, the entry becomes dispensed, and a completion event is published
// after the state is committed. Requires a verified or ready_for_pickup entry.
func (s *Service) Finalize(ctx context.Context, entryID, dispenserID uuid.UUID, isRefill bool) (*Entry, error) {
	entry, err := s.entries.GetByID(ctx, entryID)
	if err != nil {
		return nil, err
	}
	if entry.Status == StatusCancelled {
		return nil, fmt.Errorf("entry %s: %w", entryID, ErrEntryCancelled)
	}
	if entry.Status != StatusVerified && entry.Status != StatusReadyForPickup {
		return nil, fmt.Errorf("entry %s in %s: %w", entryID, entry.Status, ErrNotYetVerified)
	}

	items, err := s.prescriptions.ListItems(ctx, entry.PrescriptionID)
	if err != nil {
		return nil, fmt.Errorf("list prescription items: %w", err)
	}
	scans, err := s.scans.ListByEntry(ctx, entryID)
	if err != nil {
		return nil, fmt.Errorf("list scans: %w", err)
	}
	matched := matchedQuantities(scans)

	finalized := make([]events.ItemFinalized, 0, len(items))
	for _, item := range items {
		if err := item.ApplyDispense(matched[item.ID], isRefill); err != nil {
			return nil, fmt.Errorf("item %s: %w", item.ID, err)
		}
		if err := s.prescriptions.UpdateItemDispense(ctx, item); err != nil {
			return nil, fmt.Errorf("update item %s: %w", item.ID, err)
		}
		finalized = append(finalized, events.ItemFinalized{
			ItemID:            item.ID,
			DrugID:            item.DrugID,
			QuantityDispensed: item.QuantityDispensed,
			DispenseStatus:    string(item.DispenseStatus),
		})
	}

	now := s.now()
	if err := entry.transition(StatusDispensed, now); err != nil {
		return nil, err
	}
	entry.UpdatedAt = now
	if err := s.entries.Update(ctx, entry); err != nil {
		return nil, err
	}

	// Publish only after the state is durably committed. Delivery is
	// at-least-once; consumers dedupe on event_id.
	s.publisher.Publish(events.DispenseCompleted{
		EventID:        uuid.New(),
		EntryID:        entry.ID,
		PrescriptionID: entry.PrescriptionID,
		DispenserID:    dispenserID,
		ItemsFinalized: finalized,
		Timestamp:      now,
	})

	s.logger.Info().
		Str("entry_id", entryID.String()).
		Str("dispenser_id", dispenserID.String()).
		Int("items", len(finalized)).
		Msg("dispense finalized")

	return entry, nil
}
