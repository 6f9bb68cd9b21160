package stock

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rebekz/simRS-sub002/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const checkCols = `id, prescription_id, drug_id, drug_name, required_quantity,
	available_quantity, stock_available, alternative_drug_id, alternative_drug_name,
	alternative_accepted, accepted_by, backordered, estimated_restock, checked_at`

func scanCheck(row pgx.Row) (*CheckRecord, error) {
	var rec CheckRecord
	err := row.Scan(&rec.ID, &rec.PrescriptionID, &rec.DrugID, &rec.DrugName, &rec.RequiredQuantity,
		&rec.AvailableQuantity, &rec.StockAvailable, &rec.AlternativeDrugID, &rec.AlternativeDrugName,
		&rec.AlternativeAccepted, &rec.AcceptedBy, &rec.Backordered, &rec.EstimatedRestock, &rec.CheckedAt)
	return &rec, err
}

func (r *repoPG) Upsert(ctx context.Context, rec *CheckRecord) error {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO stock_check (id, prescription_id, drug_id, drug_name, required_quantity,
			available_quantity, stock_available, alternative_drug_id, alternative_drug_name,
			alternative_accepted, accepted_by, backordered, estimated_restock, checked_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
		ON CONFLICT (prescription_id, drug_id) DO UPDATE SET
			drug_name=EXCLUDED.drug_name,
			required_quantity=EXCLUDED.required_quantity,
			available_quantity=EXCLUDED.available_quantity,
			stock_available=EXCLUDED.stock_available,
			alternative_drug_id=EXCLUDED.alternative_drug_id,
			alternative_drug_name=EXCLUDED.alternative_drug_name,
			alternative_accepted=EXCLUDED.alternative_accepted,
			accepted_by=EXCLUDED.accepted_by,
			backordered=EXCLUDED.backordered,
			estimated_restock=EXCLUDED.estimated_restock,
			checked_at=EXCLUDED.checked_at`,
		rec.ID, rec.PrescriptionID, rec.DrugID, rec.DrugName, rec.RequiredQuantity,
		rec.AvailableQuantity, rec.StockAvailable, rec.AlternativeDrugID, rec.AlternativeDrugName,
		rec.AlternativeAccepted, rec.AcceptedBy, rec.Backordered, rec.EstimatedRestock, rec.CheckedAt)
	return err
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*CheckRecord, error) {
	rec, err := scanCheck(r.conn(ctx).QueryRow(ctx,
		`SELECT `+checkCols+` FROM stock_check WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrCheckNotFound
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func (r *repoPG) ListByPrescription(ctx context.Context, prescriptionID uuid.UUID) ([]*CheckRecord, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+checkCols+` FROM stock_check
		WHERE prescription_id = $1 ORDER BY drug_name ASC`, prescriptionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var records []*CheckRecord
	for rows.Next() {
		rec, err := scanCheck(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (r *repoPG) Update(ctx context.Context, rec *CheckRecord) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE stock_check SET alternative_accepted=$2, accepted_by=$3
		WHERE id = $1`,
		rec.ID, rec.AlternativeAccepted, rec.AcceptedBy)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrCheckNotFound
	}
	return nil
}
