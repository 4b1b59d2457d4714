package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Error codes attached to staging rows by the validator.
const (
	ErrCodeRequired     = "E_REQUIRED"
	ErrCodeNumeric      = "E_NUMERIC"
	ErrCodeDate         = "E_DATE"
	ErrCodeUniqueInFile = "E_UNIQUE_IN_FILE"
	ErrCodeUniqueInDB   = "E_UNIQUE_IN_DB"
)

// RowError is one validation failure on a staged row.
type RowError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// FieldValue is a single column of a parsed row. Rows are kept as ordered
// pairs rather than a map so the source column order survives the round trip
// through storage.
type FieldValue struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// RowFields is the ordered field set of one parsed row.
type RowFields []FieldValue

// Get returns the value for a column name.
func (f RowFields) Get(name string) (string, bool) {
	for _, fv := range f {
		if fv.Name == name {
			return fv.Value, true
		}
	}
	return "", false
}

// Hash returns a content digest of the field set, used to de-duplicate row
// payloads merged into a record's extras across repeated commits.
func (f RowFields) Hash() string {
	data, _ := json.Marshal(f)
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// StagingRow is the intermediate representation of one source row. Created
// by the parser, mutated by the validator, read by the commit engine.
type StagingRow struct {
	ID        uuid.UUID  `json:"id"`
	JobID     uuid.UUID  `json:"job_id"`
	FileID    uuid.UUID  `json:"file_id"`
	RowIndex  int        `json:"row_index"` // 1-based within its file
	Fields    RowFields  `json:"fields"`
	IsValid   bool       `json:"is_valid"`
	Errors    []RowError `json:"errors,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// NewStagingRow creates a staged row pending validation.
func NewStagingRow(jobID, fileID uuid.UUID, rowIndex int, fields RowFields) StagingRow {
	return StagingRow{
		ID:        uuid.New(),
		JobID:     jobID,
		FileID:    fileID,
		RowIndex:  rowIndex,
		Fields:    fields,
		IsValid:   true,
		CreatedAt: time.Now(),
	}
}

// AddError appends a validation error and marks the row invalid.
func (r *StagingRow) AddError(field, code, message string) {
	r.IsValid = false
	r.Errors = append(r.Errors, RowError{Field: field, Code: code, Message: message})
}
