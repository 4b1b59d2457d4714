package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mkaneda/lotimport/internal/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// jobRepository implements JobRepository
type jobRepository struct {
	db DBTX
}

const jobColumns = `id, tenant_id, table_code, batch_label, status, total_rows,
	error_count, error_summary, changed_by, changed_at, created_at, updated_at`

// Create persists a new job.
func (r *jobRepository) Create(ctx context.Context, job domain.ImportJob) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO import_jobs (id, tenant_id, table_code, batch_label, status, total_rows,
		   error_count, error_summary, changed_by, changed_at, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		job.ID, job.TenantID, job.TableCode, job.BatchLabel, job.Status, job.TotalRows,
		job.ErrorCount, job.ErrorSummary, job.ChangedBy, job.ChangedAt, job.CreatedAt, job.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}
	return nil
}

// Get retrieves a job scoped to a tenant.
func (r *jobRepository) Get(ctx context.Context, id, tenantID uuid.UUID) (domain.ImportJob, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM import_jobs WHERE id = $1 AND tenant_id = $2`,
		id, tenantID,
	)
	return scanJob(row)
}

// GetByID retrieves a job without tenant scoping, for background tasks.
func (r *jobRepository) GetByID(ctx context.Context, id uuid.UUID) (domain.ImportJob, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM import_jobs WHERE id = $1`,
		id,
	)
	return scanJob(row)
}

// List returns a tenant's jobs, newest first.
func (r *jobRepository) List(ctx context.Context, tenantID uuid.UUID, limit, offset int) ([]domain.ImportJob, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := r.db.Query(ctx,
		`SELECT `+jobColumns+` FROM import_jobs
		 WHERE tenant_id = $1
		 ORDER BY created_at DESC
		 LIMIT $2 OFFSET $3`,
		tenantID, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []domain.ImportJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// Transition flips the status only when the current status matches one of
// from, making the flip safe against concurrent requests.
func (r *jobRepository) Transition(ctx context.Context, id uuid.UUID, from []domain.JobStatus, to domain.JobStatus, actor string) (domain.ImportJob, error) {
	states := make([]string, len(from))
	for i, s := range from {
		states[i] = string(s)
	}

	now := time.Now()
	row := r.db.QueryRow(ctx,
		`UPDATE import_jobs
		 SET status = $2, changed_by = $3, changed_at = $4, updated_at = $4
		 WHERE id = $1 AND status = ANY($5)
		 RETURNING `+jobColumns,
		id, to, actor, now, states,
	)

	job, err := scanJob(row)
	if errors.Is(err, ErrNotFound) {
		return domain.ImportJob{}, ErrStatusConflict
	}
	return job, err
}

// SetCounts records the parse/validate totals.
func (r *jobRepository) SetCounts(ctx context.Context, id uuid.UUID, totalRows, errorCount int) error {
	_, err := r.db.Exec(ctx,
		`UPDATE import_jobs SET total_rows = $2, error_count = $3, updated_at = now() WHERE id = $1`,
		id, totalRows, errorCount,
	)
	if err != nil {
		return fmt.Errorf("failed to set job counts: %w", err)
	}
	return nil
}

// Fail marks the job FAILED with a diagnostic summary, regardless of its
// current state.
func (r *jobRepository) Fail(ctx context.Context, id uuid.UUID, summary, actor string) error {
	now := time.Now()
	_, err := r.db.Exec(ctx,
		`UPDATE import_jobs
		 SET status = $2, error_summary = $3, changed_by = $4, changed_at = $5, updated_at = $5
		 WHERE id = $1`,
		id, domain.JobFailed, summary, actor, now,
	)
	if err != nil {
		return fmt.Errorf("failed to mark job failed: %w", err)
	}
	return nil
}

func scanJob(row pgx.Row) (domain.ImportJob, error) {
	var job domain.ImportJob
	err := row.Scan(
		&job.ID, &job.TenantID, &job.TableCode, &job.BatchLabel, &job.Status, &job.TotalRows,
		&job.ErrorCount, &job.ErrorSummary, &job.ChangedBy, &job.ChangedAt, &job.CreatedAt, &job.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ImportJob{}, ErrNotFound
	}
	if err != nil {
		return domain.ImportJob{}, fmt.Errorf("failed to scan job: %w", err)
	}
	return job, nil
}
