// Package prescription holds the read model for prescriptions entering the
// pharmacy workflow. Prescriptions arrive already active from order entry;
// the only mutation this subsystem performs is the finalizer's dispense
// write-back on individual items.
package prescription

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// DispenseStatus is the fulfillment state of a single prescription item.
type DispenseStatus string

const (
	DispensePending      DispenseStatus = "pending"
	DispensePartial      DispenseStatus = "partial"
	DispenseDispensed    DispenseStatus = "dispensed"
	DispenseNotDispensed DispenseStatus = "not_dispensed"
)

func (s DispenseStatus) Valid() bool {
	switch s {
	case DispensePending, DispensePartial, DispenseDispensed, DispenseNotDispensed:
		return true
	}
	return false
}

// Prescription maps to the prescription table.
type Prescription struct {
	ID           uuid.UUID `db:"id" json:"id"`
	PatientID    uuid.UUID `db:"patient_id" json:"patient_id"`
	PrescriberID uuid.UUID `db:"prescriber_id" json:"prescriber_id"`
	Status       string    `db:"status" json:"status"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// Item maps to the prescription_item table.
type Item struct {
	ID                uuid.UUID      `db:"id" json:"id"`
	PrescriptionID    uuid.UUID      `db:"prescription_id" json:"prescription_id"`
	Seq               int            `db:"seq" json:"seq"`
	DrugID            uuid.UUID      `db:"drug_id" json:"drug_id"`
	DrugName          string         `db:"drug_name" json:"drug_name"`
	Quantity          float64        `db:"quantity" json:"quantity"`
	QuantityDispensed float64        `db:"quantity_dispensed" json:"quantity_dispensed"`
	RefillsAllowed    int            `db:"refills_allowed" json:"refills_allowed"`
	RefillsUsed       int            `db:"refills_used" json:"refills_used"`
	DispenseStatus    DispenseStatus `db:"dispense_status" json:"dispense_status"`
	CreatedAt         time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time      `db:"updated_at" json:"updated_at"`
}

// Remaining returns the quantity still to be dispensed.
func (it *Item) Remaining() float64 {
	rem := it.Quantity - it.QuantityDispensed
	if rem < 0 {
		return 0
	}
	return rem
}

// ApplyDispense adds qty to the dispensed total, capped at the ordered
// quantity, updates the dispense status and optionally consumes a refill.
// Invariants: 0 <= quantity_dispensed <= quantity and
// 0 <= refills_used <= refills_allowed hold before and after.
func (it *Item) ApplyDispense(qty float64, refill bool) error {
	if qty < 0 {
		return fmt.Errorf("dispense quantity must not be negative: %f", qty)
	}
	it.QuantityDispensed += qty
	if it.QuantityDispensed > it.Quantity {
		it.QuantityDispensed = it.Quantity
	}
	if it.QuantityDispensed >= it.Quantity {
		it.DispenseStatus = DispenseDispensed
	} else if it.QuantityDispensed > 0 {
		it.DispenseStatus = DispensePartial
	}
	if refill && it.RefillsUsed < it.RefillsAllowed {
		it.RefillsUsed++
	}
	return nil
}
