package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mkaneda/lotimport/internal/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// stagingRepository implements StagingRepository
type stagingRepository struct {
	db DBTX
}

// InsertBatch bulk-inserts staged rows with the COPY protocol. The parser
// calls this in bounded batches so memory use stays flat on large files.
func (r *stagingRepository) InsertBatch(ctx context.Context, rows []domain.StagingRow) error {
	if len(rows) == 0 {
		return nil
	}

	source := make([][]any, 0, len(rows))
	for _, row := range rows {
		fieldsJSON, err := json.Marshal(row.Fields)
		if err != nil {
			return fmt.Errorf("failed to marshal row fields: %w", err)
		}
		errorsJSON, err := marshalRowErrors(row.Errors)
		if err != nil {
			return err
		}
		source = append(source, []any{
			row.ID, row.JobID, row.FileID, row.RowIndex, fieldsJSON, row.IsValid, errorsJSON, row.CreatedAt,
		})
	}

	_, err := r.db.CopyFrom(ctx,
		pgx.Identifier{"staging_rows"},
		[]string{"id", "job_id", "file_id", "row_index", "fields", "is_valid", "errors", "created_at"},
		pgx.CopyFromRows(source),
	)
	if err != nil {
		return fmt.Errorf("failed to copy staging rows: %w", err)
	}
	return nil
}

func (r *stagingRepository) ListByFile(ctx context.Context, fileID uuid.UUID) ([]domain.StagingRow, error) {
	return r.list(ctx,
		`SELECT id, job_id, file_id, row_index, fields, is_valid, errors, created_at
		 FROM staging_rows WHERE file_id = $1 ORDER BY row_index`,
		fileID,
	)
}

func (r *stagingRepository) ListValidByFile(ctx context.Context, fileID uuid.UUID) ([]domain.StagingRow, error) {
	return r.list(ctx,
		`SELECT id, job_id, file_id, row_index, fields, is_valid, errors, created_at
		 FROM staging_rows WHERE file_id = $1 AND is_valid ORDER BY row_index`,
		fileID,
	)
}

func (r *stagingRepository) ListInvalidByJob(ctx context.Context, jobID uuid.UUID, limit, offset int) ([]domain.StagingRow, error) {
	if limit <= 0 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	return r.list(ctx,
		`SELECT id, job_id, file_id, row_index, fields, is_valid, errors, created_at
		 FROM staging_rows
		 WHERE job_id = $1 AND NOT is_valid
		 ORDER BY file_id, row_index
		 LIMIT $2 OFFSET $3`,
		jobID, limit, offset,
	)
}

// UpdateValidation writes validator results back in one round trip per
// batch.
func (r *stagingRepository) UpdateValidation(ctx context.Context, rows []domain.StagingRow) error {
	if len(rows) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, row := range rows {
		errorsJSON, err := marshalRowErrors(row.Errors)
		if err != nil {
			return err
		}
		batch.Queue(
			`UPDATE staging_rows SET is_valid = $2, errors = $3 WHERE id = $1`,
			row.ID, row.IsValid, errorsJSON,
		)
	}

	results := r.db.SendBatch(ctx, batch)
	defer results.Close()

	for range rows {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("failed to update staging row validation: %w", err)
		}
	}
	return nil
}

// DeleteByJob prunes staged rows of a terminal job. The pipeline never calls
// this; it exists for operator cleanup.
func (r *stagingRepository) DeleteByJob(ctx context.Context, jobID uuid.UUID) error {
	_, err := r.db.Exec(ctx, `DELETE FROM staging_rows WHERE job_id = $1`, jobID)
	if err != nil {
		return fmt.Errorf("failed to delete staging rows: %w", err)
	}
	return nil
}

func (r *stagingRepository) list(ctx context.Context, sql string, args ...any) ([]domain.StagingRow, error) {
	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query staging rows: %w", err)
	}
	defer rows.Close()

	var result []domain.StagingRow
	for rows.Next() {
		var (
			row        domain.StagingRow
			fieldsJSON []byte
			errorsJSON []byte
		)
		if err := rows.Scan(
			&row.ID, &row.JobID, &row.FileID, &row.RowIndex, &fieldsJSON, &row.IsValid, &errorsJSON, &row.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan staging row: %w", err)
		}
		if err := json.Unmarshal(fieldsJSON, &row.Fields); err != nil {
			return nil, fmt.Errorf("failed to unmarshal row fields: %w", err)
		}
		if err := json.Unmarshal(errorsJSON, &row.Errors); err != nil {
			return nil, fmt.Errorf("failed to unmarshal row errors: %w", err)
		}
		result = append(result, row)
	}
	return result, rows.Err()
}

func marshalRowErrors(errs []domain.RowError) ([]byte, error) {
	if errs == nil {
		errs = []domain.RowError{}
	}
	data, err := json.Marshal(errs)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal row errors: %w", err)
	}
	return data, nil
}
