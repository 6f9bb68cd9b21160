// Package dispensing implements the pharmacy fulfillment workflow: the
// priority queue of dispensing entries, barcode scan verification, the
// pharmacist second check with interaction overrides, and finalization.
package dispensing

import (
	"time"

	"github.com/google/uuid"
)

// Status is the closed state set of a dispensing entry.
type Status string

const (
	StatusQueued               Status = "queued"
	StatusInProgress           Status = "in_progress"
	StatusAwaitingVerification Status = "awaiting_verification"
	StatusVerified             Status = "verified"
	StatusReadyForPickup       Status = "ready_for_pickup"
	StatusDispensed            Status = "dispensed"
	StatusOnHold               Status = "on_hold"
	StatusCancelled            Status = "cancelled"
)

// transitions is the exhaustive edge table of the entry state machine.
// on_hold and cancelled are reachable from every non-terminal state; the
// happy path is queued -> in_progress -> awaiting_verification -> verified
// -> ready_for_pickup -> dispensed.
var transitions = map[Status][]Status{
	StatusQueued:               {StatusInProgress, StatusOnHold, StatusCancelled},
	StatusInProgress:           {StatusQueued, StatusAwaitingVerification, StatusOnHold, StatusCancelled},
	StatusAwaitingVerification: {StatusVerified, StatusOnHold, StatusCancelled},
	StatusVerified:             {StatusReadyForPickup, StatusDispensed, StatusOnHold, StatusCancelled},
	StatusReadyForPickup:       {StatusDispensed, StatusOnHold, StatusCancelled},
	StatusOnHold:               {StatusQueued, StatusInProgress, StatusAwaitingVerification, StatusVerified, StatusReadyForPickup, StatusCancelled},
	StatusDispensed:            {},
	StatusCancelled:            {},
}

func (s Status) Valid() bool {
	_, ok := transitions[s]
	return ok
}

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	return s == StatusDispensed || s == StatusCancelled
}

// CanTransitionTo reports whether the edge s -> target exists.
func (s Status) CanTransitionTo(target Status) bool {
	for _, next := range transitions[s] {
		if next == target {
			return true
		}
	}
	return false
}

// Priority orders entries in the dispensing queue.
type Priority string

const (
	PriorityStat    Priority = "stat"
	PriorityUrgent  Priority = "urgent"
	PriorityRoutine Priority = "routine"
)

func (p Priority) Valid() bool {
	switch p {
	case PriorityStat, PriorityUrgent, PriorityRoutine:
		return true
	}
	return false
}

// Rank returns the sort weight: higher dispenses first.
func (p Priority) Rank() int {
	switch p {
	case PriorityStat:
		return 3
	case PriorityUrgent:
		return 2
	case PriorityRoutine:
		return 1
	}
	return 0
}

// Entry maps to the dispensing_entry table: one open entry per prescription,
// retained forever for audit once terminal.
type Entry struct {
	ID              uuid.UUID  `db:"id" json:"id"`
	PrescriptionID  uuid.UUID  `db:"prescription_id" json:"prescription_id"`
	Status          Status     `db:"status" json:"status"`
	Priority        Priority   `db:"priority" json:"priority"`
	QueuePosition   *int       `db:"queue_position" json:"queue_position,omitempty"`
	AssignedWorker  *uuid.UUID `db:"assigned_worker" json:"assigned_worker,omitempty"`
	TotalItems      int        `db:"total_items" json:"total_items"`
	ItemsScanned    int        `db:"items_scanned" json:"items_scanned"`
	ItemsVerified   int        `db:"items_verified" json:"items_verified"`
	ReopenCount     int        `db:"reopen_count" json:"reopen_count"`
	HoldReason      *string    `db:"hold_reason" json:"hold_reason,omitempty"`
	HeldBy          *uuid.UUID `db:"held_by" json:"held_by,omitempty"`
	CancelReason    *string    `db:"cancel_reason" json:"cancel_reason,omitempty"`
	CancelledBy     *uuid.UUID `db:"cancelled_by" json:"cancelled_by,omitempty"`
	QueuedAt        time.Time  `db:"queued_at" json:"queued_at"`
	StartedAt       *time.Time `db:"started_at" json:"started_at,omitempty"`
	ScanCompletedAt *time.Time `db:"scan_completed_at" json:"scan_completed_at,omitempty"`
	VerifiedAt      *time.Time `db:"verified_at" json:"verified_at,omitempty"`
	ReadyAt         *time.Time `db:"ready_at" json:"ready_at,omitempty"`
	DispensedAt     *time.Time `db:"dispensed_at" json:"dispensed_at,omitempty"`
	HeldAt          *time.Time `db:"held_at" json:"held_at,omitempty"`
	CancelledAt     *time.Time `db:"cancelled_at" json:"cancelled_at,omitempty"`
	CreatedAt       time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time  `db:"updated_at" json:"updated_at"`
}

// transition moves the entry to target, stamping the matching timestamp.
// Returns ErrInvalidTransition when the edge does not exist.
func (e *Entry) transition(target Status, now time.Time) error {
	if !e.Status.CanTransitionTo(target) {
		return errInvalidTransition(e.Status, target)
	}
	e.Status = target
	switch target {
	case StatusInProgress:
		e.StartedAt = &now
	case StatusAwaitingVerification:
		e.ScanCompletedAt = &now
	case StatusVerified:
		e.VerifiedAt = &now
	case StatusReadyForPickup:
		e.ReadyAt = &now
	case StatusDispensed:
		e.DispensedAt = &now
	case StatusOnHold:
		e.HeldAt = &now
	case StatusCancelled:
		e.CancelledAt = &now
	}
	return nil
}

// Scan outcome codes. Matching outcomes are recorded data, not errors:
// the operator resolves them with a corrective re-scan.
const (
	ScanErrDrugMismatch         = "drug_mismatch"
	ScanErrExpiredBatch         = "expired_batch"
	ScanWarnQuantityExceeds     = "quantity_exceeds_remaining"
	ScanWarnItemAlreadyComplete = "item_already_complete"
)

// ScanRecord maps to the scan_record table. Append-only: corrections are new
// records, never edits.
type ScanRecord struct {
	ID               uuid.UUID  `db:"id" json:"id"`
	EntryID          uuid.UUID  `db:"entry_id" json:"entry_id"`
	ItemID           uuid.UUID  `db:"item_id" json:"item_id"`
	ScannedBarcode   string     `db:"scanned_barcode" json:"scanned_barcode"`
	ScannedDrugID    uuid.UUID  `db:"scanned_drug_id" json:"scanned_drug_id"`
	ScannedBatch     *string    `db:"scanned_batch" json:"scanned_batch,omitempty"`
	BatchExpiry      *time.Time `db:"batch_expiry" json:"batch_expiry,omitempty"`
	ExpectedDrugID   uuid.UUID  `db:"expected_drug_id" json:"expected_drug_id"`
	ExpectedQuantity float64    `db:"expected_quantity" json:"expected_quantity"`
	QuantityScanned  float64    `db:"quantity_scanned" json:"quantity_scanned"`
	QuantityApplied  float64    `db:"quantity_applied" json:"quantity_applied"`
	IsMatch          bool       `db:"is_match" json:"is_match"`
	Warnings         []string   `db:"warnings" json:"warnings"`
	Errors           []string   `db:"errors" json:"errors"`
	ScannedBy        uuid.UUID  `db:"scanned_by" json:"scanned_by"`
	CreatedAt        time.Time  `db:"created_at" json:"created_at"`
}

// VerificationStatus is the closed state set of a verification record.
type VerificationStatus string

const (
	VerificationPending  VerificationStatus = "pending"
	VerificationApproved VerificationStatus = "approved"
	VerificationFlagged  VerificationStatus = "flagged"
	VerificationRejected VerificationStatus = "rejected"
)

// VerificationRecord maps to the verification_record table: one per
// (entry, reopen attempt), never deleted.
type VerificationRecord struct {
	ID                     uuid.UUID          `db:"id" json:"id"`
	EntryID                uuid.UUID          `db:"entry_id" json:"entry_id"`
	Attempt                int                `db:"attempt" json:"attempt"`
	Status                 VerificationStatus `db:"status" json:"status"`
	VerifierID             uuid.UUID          `db:"verifier_id" json:"verifier_id"`
	VerifierRole           string             `db:"verifier_role" json:"verifier_role"`
	PatientVerified        bool               `db:"patient_verified" json:"patient_verified"`
	IdentityMethod         string             `db:"identity_method" json:"identity_method"`
	IssuesFound            []string           `db:"issues_found" json:"issues_found"`
	RequiresIntervention   bool               `db:"requires_intervention" json:"requires_intervention"`
	InteractionsOverridden bool               `db:"interactions_overridden" json:"interactions_overridden"`
	OverrideReason         *string            `db:"override_reason" json:"override_reason,omitempty"`
	CanProceed             bool               `db:"can_proceed" json:"can_proceed"`
	CreatedAt              time.Time          `db:"created_at" json:"created_at"`
}
