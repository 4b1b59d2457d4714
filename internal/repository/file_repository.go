package repository

import (
	"context"
	"fmt"

	"github.com/mkaneda/lotimport/internal/domain"

	"github.com/google/uuid"
)

// fileRepository implements FileRepository
type fileRepository struct {
	db DBTX
}

func (r *fileRepository) Create(ctx context.Context, file domain.ImportFile) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO import_files (id, job_id, tenant_id, table_code, file_name,
		   content_hash, storage_path, byte_size, row_count, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		file.ID, file.JobID, file.TenantID, file.TableCode, file.FileName,
		file.ContentHash, file.StoragePath, file.ByteSize, file.RowCount, file.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create import file: %w", err)
	}
	return nil
}

// ExistsByHash is the duplicate-content lookup on (tenant, table, hash).
func (r *fileRepository) ExistsByHash(ctx context.Context, tenantID uuid.UUID, tableCode, contentHash string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS (
		   SELECT 1 FROM import_files
		   WHERE tenant_id = $1 AND table_code = $2 AND content_hash = $3
		 )`,
		tenantID, tableCode, contentHash,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check file hash: %w", err)
	}
	return exists, nil
}

func (r *fileRepository) ListByJob(ctx context.Context, jobID uuid.UUID) ([]domain.ImportFile, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, job_id, tenant_id, table_code, file_name, content_hash,
		   storage_path, byte_size, row_count, created_at
		 FROM import_files
		 WHERE job_id = $1
		 ORDER BY created_at, id`,
		jobID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list import files: %w", err)
	}
	defer rows.Close()

	var files []domain.ImportFile
	for rows.Next() {
		var f domain.ImportFile
		if err := rows.Scan(
			&f.ID, &f.JobID, &f.TenantID, &f.TableCode, &f.FileName, &f.ContentHash,
			&f.StoragePath, &f.ByteSize, &f.RowCount, &f.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan import file: %w", err)
		}
		files = append(files, f)
	}
	return files, rows.Err()
}

func (r *fileRepository) SetRowCount(ctx context.Context, id uuid.UUID, rowCount int) error {
	_, err := r.db.Exec(ctx,
		`UPDATE import_files SET row_count = $2 WHERE id = $1`,
		id, rowCount,
	)
	if err != nil {
		return fmt.Errorf("failed to set file row count: %w", err)
	}
	return nil
}
