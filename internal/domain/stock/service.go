package stock

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/rebekz/simRS-sub002/internal/domain/prescription"
)

type Service struct {
	prescriptions prescription.Repository
	inventory     Inventory
	checks        Repository
	logger        zerolog.Logger
}

func NewService(prescriptions prescription.Repository, inventory Inventory, checks Repository, logger zerolog.Logger) *Service {
	return &Service{
		prescriptions: prescriptions,
		inventory:     inventory,
		checks:        checks,
		logger:        logger,
	}
}

// CheckAvailability compares each line item's remaining quantity against
// on-hand inventory, proposing a therapeutic alternative when short and
// flagging a backorder when no alternative exists. One CheckRecord is
// persisted per item; the prescription itself is never mutated.
func (s *Service) CheckAvailability(ctx context.Context, prescriptionID uuid.UUID) ([]*CheckRecord, error) {
	items, err := s.prescriptions.ListItems(ctx, prescriptionID)
	if err != nil {
		return nil, fmt.Errorf("list prescription items: %w", err)
	}
	if len(items) == 0 {
		if _, err := s.prescriptions.GetByID(ctx, prescriptionID); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("prescription %s has no items", prescriptionID)
	}

	var records []*CheckRecord
	for _, item := range items {
		required := item.Remaining()
		level, err := s.inventory.CheckStock(ctx, item.DrugID, required)
		if err != nil {
			// DrugNotFound included: reported, not retried.
			return nil, err
		}

		rec := &CheckRecord{
			ID:                uuid.New(),
			PrescriptionID:    prescriptionID,
			DrugID:            item.DrugID,
			DrugName:          item.DrugName,
			RequiredQuantity:  required,
			AvailableQuantity: level.OnHand,
			StockAvailable:    level.Available && level.OnHand >= required,
			CheckedAt:         time.Now().UTC(),
		}

		if !rec.StockAvailable {
			alt, err := s.inventory.FindAlternative(ctx, item.DrugID)
			if err != nil {
				return nil, err
			}
			if alt != nil {
				rec.AlternativeDrugID = &alt.DrugID
				rec.AlternativeDrugName = &alt.DrugName
			} else {
				rec.Backordered = true
				rec.EstimatedRestock = level.EstimatedRestock
			}
		}

		if err := s.checks.Upsert(ctx, rec); err != nil {
			return nil, fmt.Errorf("persist stock check: %w", err)
		}
		records = append(records, rec)

		s.logger.Info().
			Str("prescription_id", prescriptionID.String()).
			Str("drug_id", item.DrugID.String()).
			Bool("stock_available", rec.StockAvailable).
			Bool("backordered", rec.Backordered).
			Msg("stock check")
	}

	return records, nil
}

// AcceptAlternative marks a proposed substitution as accepted, which makes
// the record admissible for queue admission.
func (s *Service) AcceptAlternative(ctx context.Context, recordID, actorID uuid.UUID) (*CheckRecord, error) {
	rec, err := s.checks.GetByID(ctx, recordID)
	if err != nil {
		return nil, err
	}
	if rec.AlternativeDrugID == nil {
		return nil, fmt.Errorf("stock check %s has no proposed alternative", recordID)
	}
	rec.AlternativeAccepted = true
	rec.AcceptedBy = &actorID
	if err := s.checks.Update(ctx, rec); err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("stock_check_id", recordID.String()).
		Str("accepted_by", actorID.String()).
		Str("alternative_drug_id", rec.AlternativeDrugID.String()).
		Msg("alternative accepted")

	return rec, nil
}

// ListChecks returns the current stock check records for a prescription.
func (s *Service) ListChecks(ctx context.Context, prescriptionID uuid.UUID) ([]*CheckRecord, error) {
	return s.checks.ListByPrescription(ctx, prescriptionID)
}
