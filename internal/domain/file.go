package domain

import (
	"time"

	"github.com/google/uuid"
)

// ImportFile is one uploaded file belonging to an import job. TenantID and
// TableCode are carried redundantly so the duplicate-content lookup on
// (tenant, table, hash) does not need a join back to the job.
type ImportFile struct {
	ID          uuid.UUID `json:"id"`
	JobID       uuid.UUID `json:"job_id"`
	TenantID    uuid.UUID `json:"tenant_id"`
	TableCode   string    `json:"table_code"`
	FileName    string    `json:"file_name"`
	ContentHash string    `json:"content_hash"`
	StoragePath string    `json:"storage_path"`
	ByteSize    int64     `json:"byte_size"`
	RowCount    int       `json:"row_count"`
	CreatedAt   time.Time `json:"created_at"`
}

// NewImportFile creates a file record for a freshly stored upload. RowCount
// is filled in after parsing.
func NewImportFile(job ImportJob, fileName, contentHash, storagePath string, byteSize int64) ImportFile {
	return ImportFile{
		ID:          uuid.New(),
		JobID:       job.ID,
		TenantID:    job.TenantID,
		TableCode:   job.TableCode,
		FileName:    fileName,
		ContentHash: contentHash,
		StoragePath: storagePath,
		ByteSize:    byteSize,
		CreatedAt:   time.Now(),
	}
}
