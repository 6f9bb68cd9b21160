// Package stock implements the stock availability checker that gates
// admission into the dispensing queue.
package stock

import (
	"time"

	"github.com/google/uuid"
)

// CheckRecord maps to the stock_check table: one row per
// (prescription, drug) pair, replaced on re-check.
type CheckRecord struct {
	ID                  uuid.UUID  `db:"id" json:"id"`
	PrescriptionID      uuid.UUID  `db:"prescription_id" json:"prescription_id"`
	DrugID              uuid.UUID  `db:"drug_id" json:"drug_id"`
	DrugName            string     `db:"drug_name" json:"drug_name"`
	RequiredQuantity    float64    `db:"required_quantity" json:"required_quantity"`
	AvailableQuantity   float64    `db:"available_quantity" json:"available_quantity"`
	StockAvailable      bool       `db:"stock_available" json:"stock_available"`
	AlternativeDrugID   *uuid.UUID `db:"alternative_drug_id" json:"alternative_drug_id,omitempty"`
	AlternativeDrugName *string    `db:"alternative_drug_name" json:"alternative_drug_name,omitempty"`
	AlternativeAccepted bool       `db:"alternative_accepted" json:"alternative_accepted"`
	AcceptedBy          *uuid.UUID `db:"accepted_by" json:"accepted_by,omitempty"`
	Backordered         bool       `db:"backordered" json:"backordered"`
	EstimatedRestock    *time.Time `db:"estimated_restock" json:"estimated_restock,omitempty"`
	CheckedAt           time.Time  `db:"checked_at" json:"checked_at"`
}

// Admissible reports whether this record clears its drug for queue admission:
// either stock is on hand or a proposed alternative has been accepted.
func (r *CheckRecord) Admissible() bool {
	return r.StockAvailable || (r.AlternativeDrugID != nil && r.AlternativeAccepted)
}
