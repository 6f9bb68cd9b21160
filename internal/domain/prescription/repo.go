package prescription

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a prescription or item does not exist.
var ErrNotFound = errors.New("prescription not found")

type Repository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Prescription, error)
	// ListItems returns the prescription's items ordered by seq.
	ListItems(ctx context.Context, prescriptionID uuid.UUID) ([]*Item, error)
	// UpdateItemDispense persists the finalizer's write-back on one item.
	UpdateItemDispense(ctx context.Context, item *Item) error
}
