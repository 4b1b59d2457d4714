package domain

import (
	"time"

	"github.com/google/uuid"
)

// JobStatus is the lifecycle state of an import job.
type JobStatus string

const (
	JobUploaded   JobStatus = "UPLOADED"
	JobParsing    JobStatus = "PARSING"
	JobValidating JobStatus = "VALIDATING"
	JobReady      JobStatus = "READY"
	JobCommitting JobStatus = "COMMITTING"
	JobCompleted  JobStatus = "COMPLETED"
	JobFailed     JobStatus = "FAILED"
	JobCancelled  JobStatus = "CANCELLED"
)

// ActorSystem marks transitions triggered by background processing rather
// than an external caller.
const ActorSystem = "system"

// transitions lists the states reachable from each state. CANCELLED is
// handled separately: it is reachable from anything that is not already
// CANCELLED and is never left.
var transitions = map[JobStatus][]JobStatus{
	JobUploaded:   {JobParsing, JobFailed},
	JobParsing:    {JobValidating, JobFailed},
	JobValidating: {JobReady, JobFailed},
	JobReady:      {JobCommitting, JobFailed},
	JobCommitting: {JobCommitting, JobCompleted, JobFailed},
}

// Terminal reports whether no further pipeline work happens in this state.
func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobFailed || s == JobCancelled
}

// CanTransition reports whether moving from s to next is a legal lifecycle
// transition.
func (s JobStatus) CanTransition(next JobStatus) bool {
	if next == JobCancelled {
		return s != JobCancelled
	}
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// statusOrder fixes the iteration order for derived source lists.
var statusOrder = []JobStatus{
	JobUploaded, JobParsing, JobValidating, JobReady,
	JobCommitting, JobCompleted, JobFailed, JobCancelled,
}

// TransitionSources returns every state from which to is directly reachable.
// Conditional status updates pass this as their expected-state list so the
// lifecycle is defined here only.
func TransitionSources(to JobStatus) []JobStatus {
	var sources []JobStatus
	for _, s := range statusOrder {
		if s.CanTransition(to) {
			sources = append(sources, s)
		}
	}
	return sources
}

// ImportJob tracks one staged import batch through the pipeline. It is
// created on submission and mutated only through status transitions.
type ImportJob struct {
	ID           uuid.UUID `json:"id"`
	TenantID     uuid.UUID `json:"tenant_id"`
	TableCode    string    `json:"table_code"`
	BatchLabel   string    `json:"batch_label"`
	Status       JobStatus `json:"status"`
	TotalRows    int       `json:"total_rows"`
	ErrorCount   int       `json:"error_count"`
	ErrorSummary string    `json:"error_summary,omitempty"`
	ChangedBy    string    `json:"changed_by"`
	ChangedAt    time.Time `json:"changed_at"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// NewImportJob creates a job in the UPLOADED state.
func NewImportJob(tenantID uuid.UUID, tableCode, batchLabel, actor string) ImportJob {
	now := time.Now()
	return ImportJob{
		ID:         uuid.New(),
		TenantID:   tenantID,
		TableCode:  tableCode,
		BatchLabel: batchLabel,
		Status:     JobUploaded,
		ChangedBy:  actor,
		ChangedAt:  now,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}
