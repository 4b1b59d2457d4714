package repository

import (
	"context"
	"errors"

	"github.com/mkaneda/lotimport/internal/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrNotFound is returned when a row does not exist or is not visible
	// to the requesting tenant.
	ErrNotFound = errors.New("not found")

	// ErrStatusConflict is returned by conditional status transitions when
	// the job was not in any of the expected states.
	ErrStatusConflict = errors.New("job status conflict")
)

// DBTX is the subset of pgx operations the repositories need. Satisfied by
// both *pgxpool.Pool and pgx.Tx, so the same repository code runs inside
// and outside a transaction.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
	CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error)
}

// JobRepository defines the interface for import job persistence.
type JobRepository interface {
	Create(ctx context.Context, job domain.ImportJob) error
	Get(ctx context.Context, id, tenantID uuid.UUID) (domain.ImportJob, error)
	GetByID(ctx context.Context, id uuid.UUID) (domain.ImportJob, error)
	List(ctx context.Context, tenantID uuid.UUID, limit, offset int) ([]domain.ImportJob, error)
	// Transition updates the job status only if the current status is one
	// of from, recording the actor and transition time. Returns the updated
	// job, or ErrStatusConflict if the job was in none of the from states.
	Transition(ctx context.Context, id uuid.UUID, from []domain.JobStatus, to domain.JobStatus, actor string) (domain.ImportJob, error)
	SetCounts(ctx context.Context, id uuid.UUID, totalRows, errorCount int) error
	Fail(ctx context.Context, id uuid.UUID, summary, actor string) error
}

// FileRepository defines the interface for uploaded file metadata.
type FileRepository interface {
	Create(ctx context.Context, file domain.ImportFile) error
	ExistsByHash(ctx context.Context, tenantID uuid.UUID, tableCode, contentHash string) (bool, error)
	ListByJob(ctx context.Context, jobID uuid.UUID) ([]domain.ImportFile, error)
	SetRowCount(ctx context.Context, id uuid.UUID, rowCount int) error
}

// StagingRepository defines the interface for staged rows.
type StagingRepository interface {
	InsertBatch(ctx context.Context, rows []domain.StagingRow) error
	ListByFile(ctx context.Context, fileID uuid.UUID) ([]domain.StagingRow, error)
	ListValidByFile(ctx context.Context, fileID uuid.UUID) ([]domain.StagingRow, error)
	ListInvalidByJob(ctx context.Context, jobID uuid.UUID, limit, offset int) ([]domain.StagingRow, error)
	UpdateValidation(ctx context.Context, rows []domain.StagingRow) error
	DeleteByJob(ctx context.Context, jobID uuid.UUID) error
}

// RecordRepository defines the interface for the three target record
// families. Save operations are upserts keyed on the family's business-key
// tuple; the storage-level unique constraint is the final backstop against
// concurrent find-or-insert races.
type RecordRepository interface {
	FindLot(ctx context.Context, key domain.LotKey) (domain.ProductLot, error)
	SaveLot(ctx context.Context, rec domain.ProductLot) error
	FindWinder(ctx context.Context, key domain.WinderKey) (domain.WinderRecord, error)
	SaveWinder(ctx context.Context, rec domain.WinderRecord) error
	FindMolding(ctx context.Context, key domain.MoldingKey) (domain.MoldingRecord, error)
	SaveMolding(ctx context.Context, rec domain.MoldingRecord) error
}

// Store bundles the repositories over one database handle and provides the
// transaction boundary. Background tasks create no long-lived handle of
// their own; each InTx call owns the lifetime of its transaction.
type Store interface {
	Jobs() JobRepository
	Files() FileRepository
	Staging() StagingRepository
	Records() RecordRepository
	InTx(ctx context.Context, fn func(Store) error) error
}
