package dispensing

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/rebekz/simRS-sub002/internal/domain/prescription"
)

func TestFinalize(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	entry := f.advance(t, f.admit(t, PriorityRoutine))
	if _, err := f.svc.Verify(ctx, entry.ID, approvedVerify()); err != nil {
		t.Fatalf("Verify: %v", err)
	}

	dispenser := uuid.New()
	got, err := f.svc.Finalize(ctx, entry.ID, dispenser, false)
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if got.Status != StatusDispensed || got.DispensedAt == nil {
		t.Errorf("expected dispensed entry, got %+v", got)
	}

	item := f.presc.items[entry.PrescriptionID][0]
	if item.QuantityDispensed != item.Quantity {
		t.Errorf("expected full quantity dispensed, got %v", item.QuantityDispensed)
	}
	if item.DispenseStatus != prescription.DispenseDispensed {
		t.Errorf("expected dispensed status, got %s", item.DispenseStatus)
	}
	if item.RefillsUsed != 0 {
		t.Errorf("non-refill dispense must not consume refills, got %d", item.RefillsUsed)
	}

	if len(f.published.events) != 1 {
		t.Fatalf("expected 1 completion event, got %d", len(f.published.events))
	}
	ev := f.published.events[0]
	if ev.EntryID != entry.ID || ev.DispenserID != dispenser || len(ev.ItemsFinalized) != 1 {
		t.Errorf("unexpected event: %+v", ev)
	}
}

func TestFinalize_RequiresVerification(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	entry := f.advance(t, f.admit(t, PriorityRoutine))

	if _, err := f.svc.Finalize(ctx, entry.ID, uuid.New(), false); !errors.Is(err, ErrNotYetVerified) {
		t.Errorf("expected ErrNotYetVerified, got %v", err)
	}
	if len(f.published.events) != 0 {
		t.Error("refused finalize must not publish")
	}
}

func TestFinalize_FromReadyForPickup(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	entry := f.advance(t, f.admit(t, PriorityRoutine))
	if _, err := f.svc.Verify(ctx, entry.ID, approvedVerify()); err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if _, err := f.svc.Ready(ctx, entry.ID); err != nil {
		t.Fatalf("Ready: %v", err)
	}
	if _, err := f.svc.Finalize(ctx, entry.ID, uuid.New(), false); err != nil {
		t.Errorf("finalize from ready_for_pickup: %v", err)
	}
}

func TestFinalize_QuantityCappedByScans(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	rxID := f.addPrescription(1, 30)
	entry, err := f.svc.Admit(ctx, rxID, PriorityRoutine)
	if err != nil {
		t.Fatalf("Admit: %v", err)
	}
	if _, err := f.svc.Claim(ctx, entry.ID, uuid.New()); err != nil {
		t.Fatalf("Claim: %v", err)
	}
	item := f.presc.items[rxID][0]

	// the bench scans more than prescribed; the applied quantity caps
	if _, err := f.svc.RecordScan(ctx, entry.ID, ScanInput{
		Barcode:         "0100012345",
		DrugID:          item.DrugID,
		QuantityScanned: 45,
		ScannedBy:       uuid.New(),
	}); err != nil {
		t.Fatalf("RecordScan: %v", err)
	}
	if _, err := f.svc.Verify(ctx, entry.ID, approvedVerify()); err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if _, err := f.svc.Finalize(ctx, entry.ID, uuid.New(), false); err != nil {
		t.Fatalf("Finalize: %v", err)
	}

	if item.QuantityDispensed != 30 {
		t.Errorf("dispensed quantity must not exceed prescribed, got %v", item.QuantityDispensed)
	}
}

func TestFinalize_RefillConsumesCounter(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	rxID := f.addPrescription(1, 30)
	item := f.presc.items[rxID][0]
	item.RefillsAllowed = 2

	entry, err := f.svc.Admit(ctx, rxID, PriorityRoutine)
	if err != nil {
		t.Fatalf("Admit: %v", err)
	}
	entry = f.advance(t, entry)
	if _, err := f.svc.Verify(ctx, entry.ID, approvedVerify()); err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if _, err := f.svc.Finalize(ctx, entry.ID, uuid.New(), true); err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if item.RefillsUsed != 1 {
		t.Errorf("refill dispense should consume one refill, got %d", item.RefillsUsed)
	}
}

func TestFinalize_CancelledWins(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	entry := f.advance(t, f.admit(t, PriorityRoutine))
	if _, err := f.svc.Verify(ctx, entry.ID, approvedVerify()); err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if _, err := f.svc.Cancel(ctx, entry.ID, uuid.New(), "patient declined pickup"); err != nil {
		t.Fatalf("Cancel: %v", err)
	}

	if _, err := f.svc.Finalize(ctx, entry.ID, uuid.New(), false); !errors.Is(err, ErrEntryCancelled) {
		t.Errorf("expected ErrEntryCancelled, got %v", err)
	}
	if len(f.published.events) != 0 {
		t.Error("cancelled entry must not publish a completion event")
	}
}
