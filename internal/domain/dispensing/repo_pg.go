package dispensing

import (
	"context"
	"errors"
	"fmt"
	"strings"

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

func conn(ctx context.Context, pool *pgxpool.Pool) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return pool
}

const entryCols = `id, prescription_id, status, priority, queue_position,
	assigned_worker, total_items, items_scanned, items_verified, reopen_count,
	hold_reason, held_by, cancel_reason, cancelled_by,
	queued_at, started_at, scan_completed_at, verified_at, ready_at,
	dispensed_at, held_at, cancelled_at, created_at, updated_at`

func scanEntry(row pgx.Row) (*Entry, error) {
	var e Entry
	err := row.Scan(&e.ID, &e.PrescriptionID, &e.Status, &e.Priority, &e.QueuePosition,
		&e.AssignedWorker, &e.TotalItems, &e.ItemsScanned, &e.ItemsVerified, &e.ReopenCount,
		&e.HoldReason, &e.HeldBy, &e.CancelReason, &e.CancelledBy,
		&e.QueuedAt, &e.StartedAt, &e.ScanCompletedAt, &e.VerifiedAt, &e.ReadyAt,
		&e.DispensedAt, &e.HeldAt, &e.CancelledAt, &e.CreatedAt, &e.UpdatedAt)
	return &e, err
}

type entryRepoPG struct{ pool *pgxpool.Pool }

func NewEntryRepoPG(pool *pgxpool.Pool) EntryRepository {
	return &entryRepoPG{pool: pool}
}

func (r *entryRepoPG) Create(ctx context.Context, e *Entry) error {
	_, err := conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO dispensing_entry (`+entryCols+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24)`,
		e.ID, e.PrescriptionID, e.Status, e.Priority, e.QueuePosition,
		e.AssignedWorker, e.TotalItems, e.ItemsScanned, e.ItemsVerified, e.ReopenCount,
		e.HoldReason, e.HeldBy, e.CancelReason, e.CancelledBy,
		e.QueuedAt, e.StartedAt, e.ScanCompletedAt, e.VerifiedAt, e.ReadyAt,
		e.DispensedAt, e.HeldAt, e.CancelledAt, e.CreatedAt, e.UpdatedAt)
	return err
}

func (r *entryRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Entry, error) {
	e, err := scanEntry(conn(ctx, r.pool).QueryRow(ctx, `
		SELECT `+entryCols+` FROM dispensing_entry WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrEntryNotFound
	}
	if err != nil {
		return nil, err
	}
	return e, nil
}

func (r *entryRepoPG) GetOpenByPrescription(ctx context.Context, prescriptionID uuid.UUID) (*Entry, error) {
	e, err := scanEntry(conn(ctx, r.pool).QueryRow(ctx, `
		SELECT `+entryCols+` FROM dispensing_entry
		WHERE prescription_id = $1 AND status NOT IN ('dispensed', 'cancelled')
		LIMIT 1`, prescriptionID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return e, nil
}

func (r *entryRepoPG) Update(ctx context.Context, e *Entry) error {
	tag, err := conn(ctx, r.pool).Exec(ctx, `
		UPDATE dispensing_entry SET
			status=$2, priority=$3, queue_position=$4, assigned_worker=$5,
			total_items=$6, items_scanned=$7, items_verified=$8, reopen_count=$9,
			hold_reason=$10, held_by=$11, cancel_reason=$12, cancelled_by=$13,
			queued_at=$14, started_at=$15, scan_completed_at=$16, verified_at=$17,
			ready_at=$18, dispensed_at=$19, held_at=$20, cancelled_at=$21,
			updated_at=NOW()
		WHERE id = $1`,
		e.ID, e.Status, e.Priority, e.QueuePosition, e.AssignedWorker,
		e.TotalItems, e.ItemsScanned, e.ItemsVerified, e.ReopenCount,
		e.HoldReason, e.HeldBy, e.CancelReason, e.CancelledBy,
		e.QueuedAt, e.StartedAt, e.ScanCompletedAt, e.VerifiedAt,
		e.ReadyAt, e.DispensedAt, e.HeldAt, e.CancelledAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrEntryNotFound
	}
	return nil
}

func (r *entryRepoPG) ListQueued(ctx context.Context) ([]*Entry, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, `
		SELECT `+entryCols+` FROM dispensing_entry
		WHERE status = 'queued'
		ORDER BY CASE priority WHEN 'stat' THEN 3 WHEN 'urgent' THEN 2 ELSE 1 END DESC,
			queued_at ASC, id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectEntries(rows)
}

func (r *entryRepoPG) UpdatePositions(ctx context.Context, positions map[uuid.UUID]int) error {
	if len(positions) == 0 {
		return nil
	}
	ids := make([]uuid.UUID, 0, len(positions))
	pos := make([]int, 0, len(positions))
	for id, p := range positions {
		ids = append(ids, id)
		pos = append(pos, p)
	}
	_, err := conn(ctx, r.pool).Exec(ctx, `
		UPDATE dispensing_entry AS e
		SET queue_position = u.pos, updated_at = NOW()
		FROM unnest($1::uuid[], $2::int[]) AS u(id, pos)
		WHERE e.id = u.id`, ids, pos)
	return err
}

func (r *entryRepoPG) Claim(ctx context.Context, entryID, workerID uuid.UUID) (bool, error) {
	tag, err := conn(ctx, r.pool).Exec(ctx, `
		UPDATE dispensing_entry
		SET status='in_progress', assigned_worker=$2, queue_position=NULL,
			started_at=NOW(), updated_at=NOW()
		WHERE id = $1 AND status = 'queued' AND assigned_worker IS NULL`,
		entryID, workerID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *entryRepoPG) List(ctx context.Context, status *Status, limit, offset int) ([]*Entry, int, error) {
	var where string
	args := []interface{}{}
	if status != nil {
		where = "WHERE status = $1"
		args = append(args, *status)
	}

	var total int
	if err := conn(ctx, r.pool).QueryRow(ctx,
		"SELECT COUNT(*) FROM dispensing_entry "+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf(`SELECT %s FROM dispensing_entry %s
		ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		entryCols, where, len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	rows, err := conn(ctx, r.pool).Query(ctx, strings.TrimSpace(query), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	entries, err := collectEntries(rows)
	if err != nil {
		return nil, 0, err
	}
	return entries, total, nil
}

func collectEntries(rows pgx.Rows) ([]*Entry, error) {
	var entries []*Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

const scanCols = `id, entry_id, item_id, scanned_barcode, scanned_drug_id,
	scanned_batch, batch_expiry, expected_drug_id, expected_quantity,
	quantity_scanned, quantity_applied, is_match, warnings, errors,
	scanned_by, created_at`

type scanRepoPG struct{ pool *pgxpool.Pool }

func NewScanRepoPG(pool *pgxpool.Pool) ScanRepository {
	return &scanRepoPG{pool: pool}
}

func (r *scanRepoPG) Create(ctx context.Context, rec *ScanRecord) error {
	_, err := conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO scan_record (`+scanCols+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)`,
		rec.ID, rec.EntryID, rec.ItemID, rec.ScannedBarcode, rec.ScannedDrugID,
		rec.ScannedBatch, rec.BatchExpiry, rec.ExpectedDrugID, rec.ExpectedQuantity,
		rec.QuantityScanned, rec.QuantityApplied, rec.IsMatch, rec.Warnings, rec.Errors,
		rec.ScannedBy, rec.CreatedAt)
	return err
}

func (r *scanRepoPG) ListByEntry(ctx context.Context, entryID uuid.UUID) ([]*ScanRecord, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, `
		SELECT `+scanCols+` FROM scan_record
		WHERE entry_id = $1 ORDER BY created_at ASC, id ASC`, entryID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var recs []*ScanRecord
	for rows.Next() {
		var rec ScanRecord
		if err := rows.Scan(&rec.ID, &rec.EntryID, &rec.ItemID, &rec.ScannedBarcode, &rec.ScannedDrugID,
			&rec.ScannedBatch, &rec.BatchExpiry, &rec.ExpectedDrugID, &rec.ExpectedQuantity,
			&rec.QuantityScanned, &rec.QuantityApplied, &rec.IsMatch, &rec.Warnings, &rec.Errors,
			&rec.ScannedBy, &rec.CreatedAt); err != nil {
			return nil, err
		}
		recs = append(recs, &rec)
	}
	return recs, rows.Err()
}

const verificationCols = `id, entry_id, attempt, status, verifier_id, verifier_role,
	patient_verified, identity_method, issues_found, requires_intervention,
	interactions_overridden, override_reason, can_proceed, created_at`

type verificationRepoPG struct{ pool *pgxpool.Pool }

func NewVerificationRepoPG(pool *pgxpool.Pool) VerificationRepository {
	return &verificationRepoPG{pool: pool}
}

func (r *verificationRepoPG) Create(ctx context.Context, rec *VerificationRecord) error {
	_, err := conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO verification_record (`+verificationCols+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`,
		rec.ID, rec.EntryID, rec.Attempt, rec.Status, rec.VerifierID, rec.VerifierRole,
		rec.PatientVerified, rec.IdentityMethod, rec.IssuesFound, rec.RequiresIntervention,
		rec.InteractionsOverridden, rec.OverrideReason, rec.CanProceed, rec.CreatedAt)
	return err
}

func (r *verificationRepoPG) GetByEntryAttempt(ctx context.Context, entryID uuid.UUID, attempt int) (*VerificationRecord, error) {
	rec, err := scanVerification(conn(ctx, r.pool).QueryRow(ctx, `
		SELECT `+verificationCols+` FROM verification_record
		WHERE entry_id = $1 AND attempt = $2`, entryID, attempt))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func (r *verificationRepoPG) ListByEntry(ctx context.Context, entryID uuid.UUID) ([]*VerificationRecord, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, `
		SELECT `+verificationCols+` FROM verification_record
		WHERE entry_id = $1 ORDER BY attempt ASC`, entryID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var recs []*VerificationRecord
	for rows.Next() {
		rec, err := scanVerification(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

func scanVerification(row pgx.Row) (*VerificationRecord, error) {
	var rec VerificationRecord
	err := row.Scan(&rec.ID, &rec.EntryID, &rec.Attempt, &rec.Status, &rec.VerifierID, &rec.VerifierRole,
		&rec.PatientVerified, &rec.IdentityMethod, &rec.IssuesFound, &rec.RequiresIntervention,
		&rec.InteractionsOverridden, &rec.OverrideReason, &rec.CanProceed, &rec.CreatedAt)
	return &rec, err
}
