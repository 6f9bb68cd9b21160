package dispensing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestRecordScan_HappyPath(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	rxID := f.addPrescription(2, 30)
	entry, err := f.svc.Admit(ctx, rxID, PriorityRoutine)
	if err != nil {
		t.Fatalf("Admit: %v", err)
	}
	if _, err := f.svc.Claim(ctx, entry.ID, uuid.New()); err != nil {
		t.Fatalf("Claim: %v", err)
	}

	items := f.presc.items[rxID]
	rec, err := f.svc.RecordScan(ctx, entry.ID, ScanInput{
		Barcode:         "0100012345",
		DrugID:          items[0].DrugID,
		QuantityScanned: 30,
		ScannedBy:       uuid.New(),
	})
	if err != nil {
		t.Fatalf("RecordScan: %v", err)
	}
	if !rec.IsMatch || len(rec.Errors) != 0 {
		t.Fatalf("expected clean match, got %+v", rec)
	}
	if rec.ItemID != items[0].ID {
		t.Errorf("expected first item by seq, got %s", rec.ItemID)
	}

	got, _ := f.svc.Get(ctx, entry.ID)
	if got.ItemsScanned != 1 {
		t.Errorf("expected 1 item scanned, got %d", got.ItemsScanned)
	}
	if got.Status != StatusInProgress {
		t.Errorf("one of two items scanned, expected in_progress, got %s", got.Status)
	}

	if _, err := f.svc.RecordScan(ctx, entry.ID, ScanInput{
		Barcode:         "0100067890",
		DrugID:          items[1].DrugID,
		QuantityScanned: 30,
		ScannedBy:       uuid.New(),
	}); err != nil {
		t.Fatalf("second scan: %v", err)
	}

	got, _ = f.svc.Get(ctx, entry.ID)
	if got.Status != StatusAwaitingVerification {
		t.Errorf("all items scanned, expected awaiting_verification, got %s", got.Status)
	}
	if got.ScanCompletedAt == nil {
		t.Error("expected scan_completed_at stamped")
	}
}

func TestRecordScan_DrugMismatchThenCorrection(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	entry := f.admit(t, PriorityRoutine)
	if _, err := f.svc.Claim(ctx, entry.ID, uuid.New()); err != nil {
		t.Fatalf("Claim: %v", err)
	}
	item := f.presc.items[entry.PrescriptionID][0]

	// wrong drug scanned
	rec, err := f.svc.RecordScan(ctx, entry.ID, ScanInput{
		Barcode:         "0100099999",
		DrugID:          uuid.New(),
		QuantityScanned: 30,
		ScannedBy:       uuid.New(),
	})
	if err != nil {
		t.Fatalf("mismatch scan must not be an error: %v", err)
	}
	if rec.IsMatch {
		t.Error("expected mismatch")
	}
	if len(rec.Errors) != 1 || rec.Errors[0] != ScanErrDrugMismatch {
		t.Errorf("expected drug_mismatch code, got %v", rec.Errors)
	}

	got, _ := f.svc.Get(ctx, entry.ID)
	if got.ItemsScanned != 0 || got.Status != StatusInProgress {
		t.Errorf("mismatch must not advance the entry, got %+v", got)
	}

	// corrective re-scan with the right drug
	rec, err = f.svc.RecordScan(ctx, entry.ID, ScanInput{
		Barcode:         "0100012345",
		DrugID:          item.DrugID,
		QuantityScanned: item.Quantity,
		ScannedBy:       uuid.New(),
	})
	if err != nil {
		t.Fatalf("corrective scan: %v", err)
	}
	if !rec.IsMatch {
		t.Error("expected corrective scan to match")
	}

	got, _ = f.svc.Get(ctx, entry.ID)
	if got.Status != StatusAwaitingVerification {
		t.Errorf("expected awaiting_verification after correction, got %s", got.Status)
	}

	// both records survive in the audit trail
	recs, _ := f.svc.Scans(ctx, entry.ID)
	if len(recs) != 2 {
		t.Errorf("expected 2 scan records, got %d", len(recs))
	}
}

func TestRecordScan_QuantityExceedsRemaining(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	entry := f.admit(t, PriorityRoutine)
	if _, err := f.svc.Claim(ctx, entry.ID, uuid.New()); err != nil {
		t.Fatalf("Claim: %v", err)
	}
	item := f.presc.items[entry.PrescriptionID][0]

	rec, err := f.svc.RecordScan(ctx, entry.ID, ScanInput{
		Barcode:         "0100012345",
		DrugID:          item.DrugID,
		QuantityScanned: item.Quantity + 10,
		ScannedBy:       uuid.New(),
	})
	if err != nil {
		t.Fatalf("RecordScan: %v", err)
	}
	if !rec.IsMatch {
		t.Error("over-quantity scan of the right drug still matches")
	}
	if len(rec.Warnings) != 1 || rec.Warnings[0] != ScanWarnQuantityExceeds {
		t.Errorf("expected quantity_exceeds_remaining warning, got %v", rec.Warnings)
	}
	if rec.QuantityApplied != item.Quantity {
		t.Errorf("applied quantity must cap at remaining, got %v", rec.QuantityApplied)
	}
}

func TestRecordScan_ExpiredBatch(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	entry := f.admit(t, PriorityRoutine)
	if _, err := f.svc.Claim(ctx, entry.ID, uuid.New()); err != nil {
		t.Fatalf("Claim: %v", err)
	}
	item := f.presc.items[entry.PrescriptionID][0]

	batch := "LOT-2024-07"
	expiry := time.Now().Add(-24 * time.Hour)
	rec, err := f.svc.RecordScan(ctx, entry.ID, ScanInput{
		Barcode:         "0100012345",
		DrugID:          item.DrugID,
		Batch:           &batch,
		BatchExpiry:     &expiry,
		QuantityScanned: item.Quantity,
		ScannedBy:       uuid.New(),
	})
	if err != nil {
		t.Fatalf("RecordScan: %v", err)
	}
	if rec.IsMatch {
		t.Error("expired batch must not match even with the right drug")
	}
	if len(rec.Errors) != 1 || rec.Errors[0] != ScanErrExpiredBatch {
		t.Errorf("expected expired_batch code, got %v", rec.Errors)
	}

	got, _ := f.svc.Get(ctx, entry.ID)
	if got.Status != StatusInProgress || got.ItemsScanned != 0 {
		t.Errorf("expired batch must not advance the entry, got %+v", got)
	}
}

func TestRecordScan_WrongDrugAndExpiredBatch(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	entry := f.admit(t, PriorityRoutine)
	if _, err := f.svc.Claim(ctx, entry.ID, uuid.New()); err != nil {
		t.Fatalf("Claim: %v", err)
	}

	batch := "LOT-2023-11"
	expiry := time.Now().Add(-48 * time.Hour)
	rec, err := f.svc.RecordScan(ctx, entry.ID, ScanInput{
		Barcode:         "0100099999",
		DrugID:          uuid.New(),
		Batch:           &batch,
		BatchExpiry:     &expiry,
		QuantityScanned: 30,
		ScannedBy:       uuid.New(),
	})
	if err != nil {
		t.Fatalf("RecordScan: %v", err)
	}
	if rec.IsMatch {
		t.Error("wrong expired drug must not match")
	}
	// the audit record carries every applicable code, not just the first
	if len(rec.Errors) != 2 || rec.Errors[0] != ScanErrDrugMismatch || rec.Errors[1] != ScanErrExpiredBatch {
		t.Errorf("expected drug_mismatch and expired_batch codes, got %v", rec.Errors)
	}
	if rec.QuantityApplied != 0 {
		t.Errorf("non-match must not apply quantity, got %v", rec.QuantityApplied)
	}

	got, _ := f.svc.Get(ctx, entry.ID)
	if got.Status != StatusInProgress || got.ItemsScanned != 0 {
		t.Errorf("failed scan must not advance the entry, got %+v", got)
	}
}

func TestRecordScan_WrongState(t *testing.T) {
	f := newFixture()
	entry := f.admit(t, PriorityRoutine)

	_, err := f.svc.RecordScan(context.Background(), entry.ID, ScanInput{
		Barcode:         "0100012345",
		DrugID:          uuid.New(),
		QuantityScanned: 1,
		ScannedBy:       uuid.New(),
	})
	if !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("scanning a queued entry should fail, got %v", err)
	}
}

func TestRecordScan_AlreadyComplete(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	entry := f.advance(t, f.admit(t, PriorityRoutine))
	if entry.Status != StatusAwaitingVerification {
		t.Fatalf("expected awaiting_verification, got %s", entry.Status)
	}

	// one more scan after completion is rejected by the state guard
	item := f.presc.items[entry.PrescriptionID][0]
	_, err := f.svc.RecordScan(ctx, entry.ID, ScanInput{
		Barcode:         "0100012345",
		DrugID:          item.DrugID,
		QuantityScanned: 1,
		ScannedBy:       uuid.New(),
	})
	if !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("expected ErrInvalidTransition, got %v", err)
	}
}
