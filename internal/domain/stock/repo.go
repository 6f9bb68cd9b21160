package stock

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// ErrCheckNotFound is returned when a stock check record does not exist.
var ErrCheckNotFound = errors.New("stock check record not found")

type Repository interface {
	// Upsert stores a check record, replacing any prior record for the same
	// (prescription, drug) pair. Checks reflect current state, not history.
	Upsert(ctx context.Context, rec *CheckRecord) error
	GetByID(ctx context.Context, id uuid.UUID) (*CheckRecord, error)
	ListByPrescription(ctx context.Context, prescriptionID uuid.UUID) ([]*CheckRecord, error)
	Update(ctx context.Context, rec *CheckRecord) error
}
