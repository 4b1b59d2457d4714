package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mkaneda/lotimport/internal/domain"

	"github.com/jackc/pgx/v5"
)

// recordRepository implements RecordRepository for the three target record
// families.
type recordRepository struct {
	db DBTX
}

func (r *recordRepository) FindLot(ctx context.Context, key domain.LotKey) (domain.ProductLot, error) {
	row := r.db.QueryRow(ctx,
		`SELECT id, tenant_id, lot_number, lot_norm, schema_version, extras, created_at, updated_at
		 FROM product_lots
		 WHERE tenant_id = $1 AND lot_norm = $2`,
		key.TenantID, key.LotNorm,
	)

	var (
		rec        domain.ProductLot
		extrasJSON []byte
	)
	err := row.Scan(&rec.ID, &rec.TenantID, &rec.LotNumber, &rec.LotNorm,
		&rec.SchemaVersion, &extrasJSON, &rec.CreatedAt, &rec.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ProductLot{}, ErrNotFound
	}
	if err != nil {
		return domain.ProductLot{}, fmt.Errorf("failed to scan product lot: %w", err)
	}
	if err := json.Unmarshal(extrasJSON, &rec.Extras); err != nil {
		return domain.ProductLot{}, fmt.Errorf("failed to unmarshal extras: %w", err)
	}
	return rec, nil
}

// SaveLot upserts on the (tenant, lot) business key. The unique constraint
// turns a concurrent double-insert into an update instead of a duplicate.
func (r *recordRepository) SaveLot(ctx context.Context, rec domain.ProductLot) error {
	extrasJSON, err := marshalExtras(rec.Extras)
	if err != nil {
		return err
	}

	_, err = r.db.Exec(ctx,
		`INSERT INTO product_lots (id, tenant_id, lot_number, lot_norm, schema_version, extras, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT ON CONSTRAINT uq_product_lots_key DO UPDATE
		 SET extras = EXCLUDED.extras, updated_at = EXCLUDED.updated_at`,
		rec.ID, rec.TenantID, rec.LotNumber, rec.LotNorm, rec.SchemaVersion,
		extrasJSON, rec.CreatedAt, rec.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save product lot: %w", err)
	}
	return nil
}

func (r *recordRepository) FindWinder(ctx context.Context, key domain.WinderKey) (domain.WinderRecord, error) {
	row := r.db.QueryRow(ctx,
		`SELECT id, tenant_id, lot_number, lot_norm, winder_no, schema_version, extras, created_at, updated_at
		 FROM winder_records
		 WHERE tenant_id = $1 AND lot_norm = $2 AND winder_no = $3`,
		key.TenantID, key.LotNorm, key.WinderNo,
	)

	var (
		rec        domain.WinderRecord
		extrasJSON []byte
	)
	err := row.Scan(&rec.ID, &rec.TenantID, &rec.LotNumber, &rec.LotNorm, &rec.WinderNo,
		&rec.SchemaVersion, &extrasJSON, &rec.CreatedAt, &rec.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.WinderRecord{}, ErrNotFound
	}
	if err != nil {
		return domain.WinderRecord{}, fmt.Errorf("failed to scan winder record: %w", err)
	}
	if err := json.Unmarshal(extrasJSON, &rec.Extras); err != nil {
		return domain.WinderRecord{}, fmt.Errorf("failed to unmarshal extras: %w", err)
	}
	return rec, nil
}

func (r *recordRepository) SaveWinder(ctx context.Context, rec domain.WinderRecord) error {
	extrasJSON, err := marshalExtras(rec.Extras)
	if err != nil {
		return err
	}

	_, err = r.db.Exec(ctx,
		`INSERT INTO winder_records (id, tenant_id, lot_number, lot_norm, winder_no, schema_version, extras, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT ON CONSTRAINT uq_winder_records_key DO UPDATE
		 SET extras = EXCLUDED.extras, updated_at = EXCLUDED.updated_at`,
		rec.ID, rec.TenantID, rec.LotNumber, rec.LotNorm, rec.WinderNo,
		rec.SchemaVersion, extrasJSON, rec.CreatedAt, rec.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save winder record: %w", err)
	}
	return nil
}

func (r *recordRepository) FindMolding(ctx context.Context, key domain.MoldingKey) (domain.MoldingRecord, error) {
	row := r.db.QueryRow(ctx,
		`SELECT id, tenant_id, lot_number, lot_norm, produced_on, machine_id, mold_id,
		   product_code, schema_version, extras, created_at, updated_at
		 FROM molding_records
		 WHERE tenant_id = $1 AND produced_on = $2 AND machine_id = $3 AND mold_id = $4 AND lot_norm = $5`,
		key.TenantID, key.ProducedOn, key.MachineID, key.MoldID, key.LotNorm,
	)

	var (
		rec        domain.MoldingRecord
		extrasJSON []byte
	)
	err := row.Scan(&rec.ID, &rec.TenantID, &rec.LotNumber, &rec.LotNorm, &rec.ProducedOn,
		&rec.MachineID, &rec.MoldID, &rec.ProductCode, &rec.SchemaVersion,
		&extrasJSON, &rec.CreatedAt, &rec.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.MoldingRecord{}, ErrNotFound
	}
	if err != nil {
		return domain.MoldingRecord{}, fmt.Errorf("failed to scan molding record: %w", err)
	}
	if err := json.Unmarshal(extrasJSON, &rec.Extras); err != nil {
		return domain.MoldingRecord{}, fmt.Errorf("failed to unmarshal extras: %w", err)
	}
	return rec, nil
}

// SaveMolding additionally refreshes the derived product code on update.
func (r *recordRepository) SaveMolding(ctx context.Context, rec domain.MoldingRecord) error {
	extrasJSON, err := marshalExtras(rec.Extras)
	if err != nil {
		return err
	}

	_, err = r.db.Exec(ctx,
		`INSERT INTO molding_records (id, tenant_id, lot_number, lot_norm, produced_on, machine_id,
		   mold_id, product_code, schema_version, extras, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		 ON CONFLICT ON CONSTRAINT uq_molding_records_key DO UPDATE
		 SET extras = EXCLUDED.extras, product_code = EXCLUDED.product_code, updated_at = EXCLUDED.updated_at`,
		rec.ID, rec.TenantID, rec.LotNumber, rec.LotNorm, rec.ProducedOn, rec.MachineID,
		rec.MoldID, rec.ProductCode, rec.SchemaVersion, extrasJSON, rec.CreatedAt, rec.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save molding record: %w", err)
	}
	return nil
}

func marshalExtras(extras []domain.RowPayload) ([]byte, error) {
	if extras == nil {
		extras = []domain.RowPayload{}
	}
	data, err := json.Marshal(extras)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal extras: %w", err)
	}
	return data, nil
}
