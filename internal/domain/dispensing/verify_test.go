package dispensing

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
)

func TestVerify_Approved(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	entry := f.advance(t, f.admit(t, PriorityRoutine))

	rec, err := f.svc.Verify(ctx, entry.ID, approvedVerify())
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if rec.Status != VerificationApproved || !rec.CanProceed {
		t.Errorf("expected approved record, got %+v", rec)
	}
	if rec.Attempt != 0 {
		t.Errorf("first attempt should be 0, got %d", rec.Attempt)
	}

	got, _ := f.svc.Get(ctx, entry.ID)
	if got.Status != StatusVerified || got.VerifiedAt == nil {
		t.Errorf("expected verified entry, got %+v", got)
	}
}

func TestVerify_WrongState(t *testing.T) {
	f := newFixture()
	entry := f.admit(t, PriorityRoutine)

	if _, err := f.svc.Verify(context.Background(), entry.ID, approvedVerify()); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("verifying a queued entry should fail, got %v", err)
	}
}

func TestVerify_OverrideRequiresJustification(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	entry := f.advance(t, f.admit(t, PriorityRoutine))

	in := approvedVerify()
	in.RequiresIntervention = true
	in.InteractionsOverridden = true
	in.IssuesFound = []string{"warfarin + aspirin interaction"}

	// no reason at all
	if _, err := f.svc.Verify(ctx, entry.ID, in); !errors.Is(err, ErrMissingOverrideJustification) {
		t.Fatalf("expected ErrMissingOverrideJustification, got %v", err)
	}
	// empty reason
	empty := ""
	in.OverrideReason = &empty
	if _, err := f.svc.Verify(ctx, entry.ID, in); !errors.Is(err, ErrMissingOverrideJustification) {
		t.Fatalf("expected ErrMissingOverrideJustification for empty reason, got %v", err)
	}
	// nothing persisted by the refused submissions
	recs, _ := f.svc.Verifications(ctx, entry.ID)
	if len(recs) != 0 {
		t.Fatalf("refused verification must not persist, found %d records", len(recs))
	}

	reason := "prescriber confirmed dosage adjustment by phone"
	in.OverrideReason = &reason
	rec, err := f.svc.Verify(ctx, entry.ID, in)
	if err != nil {
		t.Fatalf("Verify with justification: %v", err)
	}
	if rec.Status != VerificationApproved || !rec.CanProceed {
		t.Errorf("overridden interaction with justification should approve, got %+v", rec)
	}
}

func TestVerify_FlaggedGoesOnHold(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	entry := f.advance(t, f.admit(t, PriorityRoutine))

	in := approvedVerify()
	in.RequiresIntervention = true
	in.IssuesFound = []string{"dose exceeds max daily"}

	rec, err := f.svc.Verify(ctx, entry.ID, in)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if rec.Status != VerificationFlagged || rec.CanProceed {
		t.Errorf("expected flagged record, got %+v", rec)
	}

	got, _ := f.svc.Get(ctx, entry.ID)
	if got.Status != StatusOnHold {
		t.Errorf("flagged verification should hold the entry, got %s", got.Status)
	}
	if got.HoldReason == nil {
		t.Error("expected hold reason from the finding")
	}
}

func TestVerify_RejectedWhenPatientUnverified(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	entry := f.advance(t, f.admit(t, PriorityRoutine))

	in := approvedVerify()
	in.PatientVerified = false

	rec, err := f.svc.Verify(ctx, entry.ID, in)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if rec.Status != VerificationRejected || rec.CanProceed {
		t.Errorf("expected rejected record, got %+v", rec)
	}
	got, _ := f.svc.Get(ctx, entry.ID)
	if got.Status != StatusOnHold {
		t.Errorf("rejected verification should hold the entry, got %s", got.Status)
	}
}

func TestVerify_OnePerAttempt(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	entry := f.advance(t, f.admit(t, PriorityRoutine))

	in := approvedVerify()
	in.RequiresIntervention = true
	if _, err := f.svc.Verify(ctx, entry.ID, in); err != nil {
		t.Fatalf("Verify: %v", err)
	}

	// held entries cannot take another verification without a reopen
	if _, err := f.svc.Verify(ctx, entry.ID, approvedVerify()); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition on held entry, got %v", err)
	}

	reopened, err := f.svc.Reopen(ctx, entry.ID)
	if err != nil {
		t.Fatalf("Reopen: %v", err)
	}
	if reopened.Status != StatusAwaitingVerification || reopened.ReopenCount != 1 {
		t.Fatalf("expected reopened attempt 1, got %+v", reopened)
	}
	if reopened.HoldReason != nil {
		t.Error("reopen should clear the hold reason")
	}

	rec, err := f.svc.Verify(ctx, entry.ID, approvedVerify())
	if err != nil {
		t.Fatalf("Verify after reopen: %v", err)
	}
	if rec.Attempt != 1 {
		t.Errorf("expected attempt 1, got %d", rec.Attempt)
	}

	recs, _ := f.svc.Verifications(ctx, entry.ID)
	if len(recs) != 2 {
		t.Errorf("both attempts must be retained, got %d records", len(recs))
	}
}

func TestReopen_RequiresHeldEntry(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	entry := f.admit(t, PriorityRoutine)
	if _, err := f.svc.Claim(ctx, entry.ID, uuid.New()); err != nil {
		t.Fatalf("Claim: %v", err)
	}

	// an in_progress entry with zero scans must not jump to verification
	if _, err := f.svc.Reopen(ctx, entry.ID); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("reopening an in_progress entry should fail, got %v", err)
	}

	got, _ := f.svc.Get(ctx, entry.ID)
	if got.Status != StatusInProgress || got.ReopenCount != 0 {
		t.Errorf("refused reopen must not change the entry, got %+v", got)
	}
}

func TestReopen_RequiresCompletedScans(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	entry := f.admit(t, PriorityRoutine)
	if _, err := f.svc.Claim(ctx, entry.ID, uuid.New()); err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if _, err := f.svc.Hold(ctx, entry.ID, uuid.New(), "prescriber callback pending"); err != nil {
		t.Fatalf("Hold: %v", err)
	}

	// held before any scan completed: nothing to re-verify
	if _, err := f.svc.Reopen(ctx, entry.ID); err == nil {
		t.Fatal("reopening a hold with incomplete scans should fail")
	}

	got, _ := f.svc.Get(ctx, entry.ID)
	if got.Status != StatusOnHold || got.ReopenCount != 0 {
		t.Errorf("refused reopen must not change the entry, got %+v", got)
	}
}

func TestVerify_DuplicateAttemptRejected(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	entry := f.advance(t, f.admit(t, PriorityRoutine))

	// seed a record for attempt 0 directly, as if a concurrent submit won
	if err := f.verifs.Create(ctx, &VerificationRecord{
		ID:      uuid.New(),
		EntryID: entry.ID,
		Attempt: 0,
		Status:  VerificationApproved,
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	if _, err := f.svc.Verify(ctx, entry.ID, approvedVerify()); !errors.Is(err, ErrAlreadyVerified) {
		t.Errorf("expected ErrAlreadyVerified, got %v", err)
	}
}
