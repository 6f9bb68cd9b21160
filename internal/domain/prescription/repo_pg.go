package prescription

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

const itemCols = `id, prescription_id, seq, drug_id, drug_name, quantity,
	quantity_dispensed, refills_allowed, refills_used, dispense_status,
	created_at, updated_at`

func scanItem(row pgx.Row) (*Item, error) {
	var it Item
	err := row.Scan(&it.ID, &it.PrescriptionID, &it.Seq, &it.DrugID, &it.DrugName, &it.Quantity,
		&it.QuantityDispensed, &it.RefillsAllowed, &it.RefillsUsed, &it.DispenseStatus,
		&it.CreatedAt, &it.UpdatedAt)
	return &it, err
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Prescription, error) {
	var p Prescription
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT id, patient_id, prescriber_id, status, created_at, updated_at
		FROM prescription WHERE id = $1`, id).
		Scan(&p.ID, &p.PatientID, &p.PrescriberID, &p.Status, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *repoPG) ListItems(ctx context.Context, prescriptionID uuid.UUID) ([]*Item, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+itemCols+` FROM prescription_item
		WHERE prescription_id = $1 ORDER BY seq ASC`, prescriptionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Item
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func (r *repoPG) UpdateItemDispense(ctx context.Context, item *Item) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE prescription_item
		SET quantity_dispensed=$2, refills_used=$3, dispense_status=$4, updated_at=NOW()
		WHERE id = $1`,
		item.ID, item.QuantityDispensed, item.RefillsUsed, item.DispenseStatus)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
