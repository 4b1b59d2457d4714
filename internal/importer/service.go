// Package importer implements the staged import pipeline: file ingestion
// with content-hash dedup, parsing into staging rows, rule and uniqueness
// validation, and the commit of valid rows into the target record families.
package importer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"path/filepath"
	"strings"
	"time"

	"github.com/mkaneda/lotimport/internal/domain"
	"github.com/mkaneda/lotimport/internal/filestore"
	"github.com/mkaneda/lotimport/internal/repository"
	"github.com/mkaneda/lotimport/internal/schema"

	"github.com/google/uuid"
)

var (
	// ErrUnknownTableCode is returned when the target table code is not in
	// the schema registry.
	ErrUnknownTableCode = errors.New("unknown table code")

	// ErrNoFiles is returned when a job is submitted without file content.
	ErrNoFiles = errors.New("at least one file is required")

	// ErrMixedFileTypes is returned when one batch mixes file extensions.
	ErrMixedFileTypes = errors.New("mixed file types in batch")

	// ErrUnsupportedFormat is returned when an uploaded file is not supported.
	ErrUnsupportedFormat = errors.New("unsupported file format")

	// ErrDuplicateFile is returned when a file's content hash already
	// exists for the tenant and table and duplicates were not allowed.
	ErrDuplicateFile = errors.New("duplicate file content")

	// ErrInvalidState is returned when an operation is not permitted from
	// the job's current status.
	ErrInvalidState = errors.New("invalid job state")
)

// Scheduler accepts background tasks. Implemented by the worker pool.
type Scheduler interface {
	Enqueue(task Task) error
}

// Service orchestrates the import job lifecycle.
type Service struct {
	store repository.Store
	files *filestore.Store
	queue Scheduler
}

// NewService creates the pipeline service. The scheduler is attached
// separately because the worker pool needs the service to run tasks.
func NewService(store repository.Store, files *filestore.Store) *Service {
	return &Service{store: store, files: files}
}

// SetScheduler attaches the background task scheduler.
func (s *Service) SetScheduler(queue Scheduler) {
	s.queue = queue
}

// FileUpload is one file of a submitted batch.
type FileUpload struct {
	Name string
	Data io.Reader
}

// CreateRequest describes a job submission. TenantID arrives already
// resolved by the caller.
type CreateRequest struct {
	TenantID       uuid.UUID
	TableCode      string
	BatchLabel     string
	AllowDuplicate bool
	Actor          string
	Files          []FileUpload
}

// CreateJob validates the batch, streams the files to durable storage,
// persists the job and its files in one transaction, and schedules
// background parse+validate. A failure during any file's ingestion rolls
// back the whole batch and removes the stored artifacts.
func (s *Service) CreateJob(ctx context.Context, req CreateRequest) (domain.ImportJob, error) {
	def, ok := schema.Lookup(req.TableCode)
	if !ok {
		return domain.ImportJob{}, fmt.Errorf("%w: %q", ErrUnknownTableCode, req.TableCode)
	}
	if len(req.Files) == 0 {
		return domain.ImportJob{}, ErrNoFiles
	}
	if err := checkExtensions(req.Files); err != nil {
		return domain.ImportJob{}, err
	}

	actor := req.Actor
	if actor == "" {
		actor = domain.ActorSystem
	}
	label := strings.TrimSpace(req.BatchLabel)
	if label == "" {
		label = fmt.Sprintf("%s-%s", def.Code, time.Now().Format("20060102-150405"))
	}

	job := domain.NewImportJob(req.TenantID, def.Code, label, actor)

	var (
		saved []domain.ImportFile
		paths []string
	)
	cleanup := func() {
		for _, p := range paths {
			if err := s.files.Remove(p); err != nil {
				log.Printf("Failed to clean up storage artifact %s: %v", p, err)
			}
		}
	}

	for _, up := range req.Files {
		path, hash, size, err := s.files.Save(req.TenantID, up.Name, up.Data)
		if err != nil {
			cleanup()
			return domain.ImportJob{}, fmt.Errorf("failed to store %s: %w", up.Name, err)
		}
		paths = append(paths, path)
		saved = append(saved, domain.NewImportFile(job, up.Name, hash, path, size))
	}

	err := s.store.InTx(ctx, func(tx repository.Store) error {
		if err := tx.Jobs().Create(ctx, job); err != nil {
			return err
		}
		seen := make(map[string]struct{}, len(saved))
		for _, file := range saved {
			if !req.AllowDuplicate {
				if _, dup := seen[file.ContentHash]; dup {
					return fmt.Errorf("%w: %s", ErrDuplicateFile, file.FileName)
				}
				exists, err := tx.Files().ExistsByHash(ctx, file.TenantID, file.TableCode, file.ContentHash)
				if err != nil {
					return err
				}
				if exists {
					return fmt.Errorf("%w: %s", ErrDuplicateFile, file.FileName)
				}
			}
			seen[file.ContentHash] = struct{}{}
			if err := tx.Files().Create(ctx, file); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		cleanup()
		return domain.ImportJob{}, err
	}

	if err := s.schedule(ctx, job.ID, TaskProcess); err != nil {
		return job, err
	}
	return job, nil
}

// GetJob retrieves a job scoped to its tenant.
func (s *Service) GetJob(ctx context.Context, jobID, tenantID uuid.UUID) (domain.ImportJob, error) {
	return s.store.Jobs().Get(ctx, jobID, tenantID)
}

// ListJobs returns a tenant's jobs, newest first.
func (s *Service) ListJobs(ctx context.Context, tenantID uuid.UUID, limit, offset int) ([]domain.ImportJob, error) {
	return s.store.Jobs().List(ctx, tenantID, limit, offset)
}

// GetJobErrors returns the job's invalid staging rows, ordered by row
// index, paginated. page is 1-based.
func (s *Service) GetJobErrors(ctx context.Context, jobID, tenantID uuid.UUID, page, pageSize int) ([]domain.StagingRow, error) {
	if _, err := s.store.Jobs().Get(ctx, jobID, tenantID); err != nil {
		return nil, err
	}
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 100
	}
	return s.store.Staging().ListInvalidByJob(ctx, jobID, pageSize, (page-1)*pageSize)
}

// CommitJob flips a READY or COMMITTING job to COMMITTING synchronously and
// schedules the background commit. Accepting COMMITTING as a starting state
// lets a crashed commit be re-issued; the commit itself is idempotent per
// business key.
func (s *Service) CommitJob(ctx context.Context, jobID, tenantID uuid.UUID, actor string) (domain.ImportJob, error) {
	current, err := s.store.Jobs().Get(ctx, jobID, tenantID)
	if err != nil {
		return domain.ImportJob{}, err
	}

	job, err := s.store.Jobs().Transition(ctx, jobID,
		domain.TransitionSources(domain.JobCommitting), domain.JobCommitting, actor)
	if errors.Is(err, repository.ErrStatusConflict) {
		return domain.ImportJob{}, fmt.Errorf("%w: job is %s", ErrInvalidState, current.Status)
	}
	if err != nil {
		return domain.ImportJob{}, err
	}

	if err := s.schedule(ctx, job.ID, TaskCommit); err != nil {
		return job, err
	}
	return job, nil
}

// CancelJob is idempotent. It only marks the status; it neither interrupts
// an in-flight background task nor rolls back records already committed.
func (s *Service) CancelJob(ctx context.Context, jobID, tenantID uuid.UUID, actor string) (domain.ImportJob, error) {
	job, err := s.store.Jobs().Get(ctx, jobID, tenantID)
	if err != nil {
		return domain.ImportJob{}, err
	}
	if job.Status == domain.JobCancelled {
		return job, nil
	}

	job, err = s.store.Jobs().Transition(ctx, jobID,
		domain.TransitionSources(domain.JobCancelled), domain.JobCancelled, actor)
	if errors.Is(err, repository.ErrStatusConflict) {
		// Lost the race to another cancel; report the current state.
		return s.store.Jobs().Get(ctx, jobID, tenantID)
	}
	return job, err
}

// ProcessJob runs parse then validate for one job. Called by the worker
// pool. Any failure is converted into a FAILED status with a diagnostic
// summary rather than propagated as a worker crash.
func (s *Service) ProcessJob(ctx context.Context, jobID uuid.UUID) error {
	jobs := s.store.Jobs()

	job, err := jobs.Transition(ctx, jobID,
		domain.TransitionSources(domain.JobParsing), domain.JobParsing, domain.ActorSystem)
	if errors.Is(err, repository.ErrStatusConflict) {
		// Cancelled before processing started, or picked up twice.
		return nil
	}
	if err != nil {
		return err
	}

	def, ok := schema.Lookup(job.TableCode)
	if !ok {
		return s.failJob(ctx, jobID, fmt.Sprintf("unknown table code %q", job.TableCode))
	}

	totalRows, err := s.parseJob(ctx, job, def)
	if err != nil {
		return s.failJob(ctx, jobID, "parse failed: "+err.Error())
	}

	if _, err := jobs.Transition(ctx, jobID,
		domain.TransitionSources(domain.JobValidating), domain.JobValidating, domain.ActorSystem); err != nil {
		if errors.Is(err, repository.ErrStatusConflict) {
			return nil
		}
		return err
	}

	errorCount, err := s.validateJob(ctx, job, def)
	if err != nil {
		return s.failJob(ctx, jobID, "validation failed: "+err.Error())
	}

	if err := jobs.SetCounts(ctx, jobID, totalRows, errorCount); err != nil {
		return s.failJob(ctx, jobID, "failed to record counts: "+err.Error())
	}

	// Validation is exhaustive and never fails the job: READY is reached
	// even when every row is invalid.
	if _, err := jobs.Transition(ctx, jobID,
		domain.TransitionSources(domain.JobReady), domain.JobReady, domain.ActorSystem); err != nil {
		if errors.Is(err, repository.ErrStatusConflict) {
			return nil
		}
		return err
	}
	return nil
}

// RunCommit executes the commit engine for one job. Called by the worker
// pool after CommitJob flipped the status.
func (s *Service) RunCommit(ctx context.Context, jobID uuid.UUID) error {
	job, err := s.store.Jobs().GetByID(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Status != domain.JobCommitting {
		// Cancelled between scheduling and execution.
		return nil
	}

	def, ok := schema.Lookup(job.TableCode)
	if !ok {
		return s.failJob(ctx, jobID, fmt.Sprintf("unknown table code %q", job.TableCode))
	}

	if err := s.commitJob(ctx, job, def); err != nil {
		return s.failJob(ctx, jobID, "commit failed: "+err.Error())
	}

	if _, err := s.store.Jobs().Transition(ctx, jobID,
		domain.TransitionSources(domain.JobCompleted), domain.JobCompleted, domain.ActorSystem); err != nil {
		if errors.Is(err, repository.ErrStatusConflict) {
			return nil
		}
		return err
	}
	return nil
}

func (s *Service) failJob(ctx context.Context, jobID uuid.UUID, summary string) error {
	if err := s.store.Jobs().Fail(ctx, jobID, summary, domain.ActorSystem); err != nil {
		return fmt.Errorf("failed to record job failure: %w", err)
	}
	return nil
}

func (s *Service) schedule(ctx context.Context, jobID uuid.UUID, kind TaskKind) error {
	if s.queue == nil {
		return nil
	}
	if err := s.queue.Enqueue(Task{JobID: jobID, Kind: kind}); err != nil {
		summary := "failed to schedule background work: " + err.Error()
		if failErr := s.store.Jobs().Fail(ctx, jobID, summary, domain.ActorSystem); failErr != nil {
			return fmt.Errorf("%v; %w", err, failErr)
		}
		return fmt.Errorf("failed to schedule job %s: %w", jobID, err)
	}
	return nil
}

// checkExtensions rejects a batch whose files carry mixed or unsupported
// extensions.
func checkExtensions(files []FileUpload) error {
	first := ""
	for _, f := range files {
		ext := strings.ToLower(filepath.Ext(f.Name))
		if !supportedExtension(ext) {
			return fmt.Errorf("%w: %s", ErrUnsupportedFormat, ext)
		}
		if first == "" {
			first = ext
			continue
		}
		if ext != first {
			return fmt.Errorf("%w: %s and %s", ErrMixedFileTypes, first, ext)
		}
	}
	return nil
}

func supportedExtension(ext string) bool {
	switch ext {
	case ".csv", ".tsv", ".xlsx":
		return true
	}
	return false
}
