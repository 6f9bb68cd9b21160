package dispensing

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// VerifyInput is the pharmacist's second-check decision for one attempt.
type VerifyInput struct {
	VerifierID             uuid.UUID `json:"verifier_id"`
	VerifierRole           string    `json:"verifier_role"`
	PatientVerified        bool      `json:"patient_verified"`
	IdentityMethod         string    `json:"identity_method"`
	IssuesFound            []string  `json:"issues_found"`
	RequiresIntervention   bool      `json:"requires_intervention"`
	InteractionsOverridden bool      `json:"interactions_overridden"`
	OverrideReason         *string   `json:"override_reason,omitempty"`
}

// Verify records the pharmacist check for the entry's current attempt. One
// record per (entry, attempt); a second submission for the same attempt fails
// with ErrAlreadyVerified and the entry must be reopened first. An interaction
// override with no written justification is refused before anything is
// persisted. An approved check moves the entry to verified; a flagged or
// rejected one puts it on hold with the finding as the hold reason.
func (s *Service) Verify(ctx context.Context, entryID uuid.UUID, in VerifyInput) (*VerificationRecord, error) {
	entry, err := s.entries.GetByID(ctx, entryID)
	if err != nil {
		return nil, err
	}
	if entry.Status == StatusCancelled {
		return nil, fmt.Errorf("entry %s: %w", entryID, ErrEntryCancelled)
	}
	if entry.Status != StatusAwaitingVerification {
		return nil, errInvalidTransition(entry.Status, StatusVerified)
	}

	if in.InteractionsOverridden && (in.OverrideReason == nil || *in.OverrideReason == "") {
		return nil, fmt.Errorf("entry %s: %w", entryID, ErrMissingOverrideJustification)
	}

	attempt := entry.ReopenCount
	existing, err := s.verifications.GetByEntryAttempt(ctx, entryID, attempt)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, fmt.Errorf("entry %s attempt %d: %w", entryID, attempt, ErrAlreadyVerified)
	}

	now := s.now()
	rec := &VerificationRecord{
		ID:                     uuid.New(),
		EntryID:                entryID,
		Attempt:                attempt,
		VerifierID:             in.VerifierID,
		VerifierRole:           in.VerifierRole,
		PatientVerified:        in.PatientVerified,
		IdentityMethod:         in.IdentityMethod,
		IssuesFound:            in.IssuesFound,
		RequiresIntervention:   in.RequiresIntervention,
		InteractionsOverridden: in.InteractionsOverridden,
		OverrideReason:         in.OverrideReason,
		CreatedAt:              now,
	}
	if rec.IssuesFound == nil {
		rec.IssuesFound = []string{}
	}

	switch {
	case in.RequiresIntervention && !in.InteractionsOverridden:
		rec.Status = VerificationFlagged
		rec.CanProceed = false
	case !in.PatientVerified:
		rec.Status = VerificationRejected
		rec.CanProceed = false
	default:
		rec.Status = VerificationApproved
		rec.CanProceed = true
	}

	if err := s.verifications.Create(ctx, rec); err != nil {
		return nil, err
	}

	if rec.CanProceed {
		if err := entry.transition(StatusVerified, now); err != nil {
			return nil, err
		}
		entry.ItemsVerified = entry.TotalItems
	} else {
		if err := entry.transition(StatusOnHold, now); err != nil {
			return nil, err
		}
		reason := string(rec.Status)
		if len(rec.IssuesFound) > 0 {
			reason = fmt.Sprintf("%s: %s", rec.Status, rec.IssuesFound[0])
		}
		entry.HoldReason = &reason
		entry.HeldBy = &in.VerifierID
	}
	entry.UpdatedAt = now
	if err := s.entries.Update(ctx, entry); err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("entry_id", entryID.String()).
		Str("verifier_id", in.VerifierID.String()).
		Int("attempt", attempt).
		Str("status", string(rec.Status)).
		Bool("can_proceed", rec.CanProceed).
		Msg("verification recorded")

	return rec, nil
}

// Reopen returns a held entry to awaiting_verification and opens a fresh
// verification attempt. The prior attempt's record is untouched. Only held
// entries can be reopened; the in_progress -> awaiting_verification edge is
// reserved for scan completion and must not be reachable from here.
func (s *Service) Reopen(ctx context.Context, entryID uuid.UUID) (*Entry, error) {
	entry, err := s.entries.GetByID(ctx, entryID)
	if err != nil {
		return nil, err
	}
	if entry.Status == StatusCancelled {
		return nil, fmt.Errorf("entry %s: %w", entryID, ErrEntryCancelled)
	}
	if entry.Status != StatusOnHold {
		return nil, errInvalidTransition(entry.Status, StatusAwaitingVerification)
	}
	// An entry held before its scans completed has nothing to re-verify.
	if entry.ScanCompletedAt == nil {
		return nil, fmt.Errorf("entry %s: scanning incomplete, cannot reopen verification", entryID)
	}
	if err := entry.transition(StatusAwaitingVerification, s.now()); err != nil {
		return nil, err
	}
	entry.ReopenCount++
	entry.HoldReason = nil
	entry.HeldBy = nil
	entry.UpdatedAt = s.now()
	if err := s.entries.Update(ctx, entry); err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("entry_id", entryID.String()).
		Int("attempt", entry.ReopenCount).
		Msg("verification reopened")

	return entry, nil
}

// Verifications returns all verification records of an entry, one per attempt.
func (s *Service) Verifications(ctx context.Context, entryID uuid.UUID) ([]*VerificationRecord, error) {
	if _, err := s.entries.GetByID(ctx, entryID); err != nil {
		return nil, err
	}
	return s.verifications.ListByEntry(ctx, entryID)
}
