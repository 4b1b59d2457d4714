package importer

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/mkaneda/lotimport/internal/domain"
	"github.com/mkaneda/lotimport/internal/repository"

	"github.com/google/uuid"
)

// memStore is an in-memory repository.Store for pipeline tests. InTx
// snapshots the whole state and restores it when the callback fails, which
// is enough transactionality for single-goroutine tests.
type memStore struct {
	mu sync.Mutex

	jobs     map[uuid.UUID]domain.ImportJob
	files    []domain.ImportFile
	rows     []domain.StagingRow
	lots     map[string]domain.ProductLot
	winders  map[string]domain.WinderRecord
	moldings map[string]domain.MoldingRecord
}

func newMemStore() *memStore {
	return &memStore{
		jobs:     make(map[uuid.UUID]domain.ImportJob),
		lots:     make(map[string]domain.ProductLot),
		winders:  make(map[string]domain.WinderRecord),
		moldings: make(map[string]domain.MoldingRecord),
	}
}

func (s *memStore) Jobs() repository.JobRepository        { return (*memJobs)(s) }
func (s *memStore) Files() repository.FileRepository      { return (*memFiles)(s) }
func (s *memStore) Staging() repository.StagingRepository { return (*memStaging)(s) }
func (s *memStore) Records() repository.RecordRepository  { return (*memRecords)(s) }
func (s *memStore) InTx(ctx context.Context, fn func(repository.Store) error) error {
	snap := s.snapshot()
	if err := fn(s); err != nil {
		s.restore(snap)
		return err
	}
	return nil
}

type memSnapshot struct {
	jobs     map[uuid.UUID]domain.ImportJob
	files    []domain.ImportFile
	rows     []domain.StagingRow
	lots     map[string]domain.ProductLot
	winders  map[string]domain.WinderRecord
	moldings map[string]domain.MoldingRecord
}

func (s *memStore) snapshot() memSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := memSnapshot{
		jobs:     make(map[uuid.UUID]domain.ImportJob, len(s.jobs)),
		files:    append([]domain.ImportFile(nil), s.files...),
		rows:     append([]domain.StagingRow(nil), s.rows...),
		lots:     make(map[string]domain.ProductLot, len(s.lots)),
		winders:  make(map[string]domain.WinderRecord, len(s.winders)),
		moldings: make(map[string]domain.MoldingRecord, len(s.moldings)),
	}
	for k, v := range s.jobs {
		snap.jobs[k] = v
	}
	for k, v := range s.lots {
		snap.lots[k] = v
	}
	for k, v := range s.winders {
		snap.winders[k] = v
	}
	for k, v := range s.moldings {
		snap.moldings[k] = v
	}
	return snap
}

func (s *memStore) restore(snap memSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs = snap.jobs
	s.files = snap.files
	s.rows = snap.rows
	s.lots = snap.lots
	s.winders = snap.winders
	s.moldings = snap.moldings
}

// flakyStore injects write failures into the record layer while keeping the
// rest of memStore intact, for commit rollback tests.
type flakyStore struct {
	*memStore
	failSaveLot func(rec domain.ProductLot) error
}

func (s *flakyStore) Records() repository.RecordRepository {
	return &flakyRecords{RecordRepository: s.memStore.Records(), failSaveLot: s.failSaveLot}
}

func (s *flakyStore) InTx(ctx context.Context, fn func(repository.Store) error) error {
	snap := s.memStore.snapshot()
	if err := fn(s); err != nil {
		s.memStore.restore(snap)
		return err
	}
	return nil
}

type flakyRecords struct {
	repository.RecordRepository
	failSaveLot func(rec domain.ProductLot) error
}

func (r *flakyRecords) SaveLot(ctx context.Context, rec domain.ProductLot) error {
	if err := r.failSaveLot(rec); err != nil {
		return err
	}
	return r.RecordRepository.SaveLot(ctx, rec)
}

type memJobs memStore

func (r *memJobs) Create(ctx context.Context, job domain.ImportJob) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs[job.ID] = job
	return nil
}

func (r *memJobs) Get(ctx context.Context, id, tenantID uuid.UUID) (domain.ImportJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok || job.TenantID != tenantID {
		return domain.ImportJob{}, repository.ErrNotFound
	}
	return job, nil
}

func (r *memJobs) GetByID(ctx context.Context, id uuid.UUID) (domain.ImportJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok {
		return domain.ImportJob{}, repository.ErrNotFound
	}
	return job, nil
}

func (r *memJobs) List(ctx context.Context, tenantID uuid.UUID, limit, offset int) ([]domain.ImportJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var jobs []domain.ImportJob
	for _, job := range r.jobs {
		if job.TenantID == tenantID {
			jobs = append(jobs, job)
		}
	}
	sort.Slice(jobs, func(i, j int) bool { return jobs[i].CreatedAt.After(jobs[j].CreatedAt) })
	if offset > len(jobs) {
		offset = len(jobs)
	}
	jobs = jobs[offset:]
	if limit > 0 && limit < len(jobs) {
		jobs = jobs[:limit]
	}
	return jobs, nil
}

func (r *memJobs) Transition(ctx context.Context, id uuid.UUID, from []domain.JobStatus, to domain.JobStatus, actor string) (domain.ImportJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok {
		return domain.ImportJob{}, repository.ErrNotFound
	}
	matched := false
	for _, status := range from {
		if job.Status == status {
			matched = true
			break
		}
	}
	if !matched {
		return domain.ImportJob{}, repository.ErrStatusConflict
	}
	now := time.Now()
	job.Status = to
	job.ChangedBy = actor
	job.ChangedAt = now
	job.UpdatedAt = now
	r.jobs[id] = job
	return job, nil
}

func (r *memJobs) SetCounts(ctx context.Context, id uuid.UUID, totalRows, errorCount int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok {
		return repository.ErrNotFound
	}
	job.TotalRows = totalRows
	job.ErrorCount = errorCount
	job.UpdatedAt = time.Now()
	r.jobs[id] = job
	return nil
}

func (r *memJobs) Fail(ctx context.Context, id uuid.UUID, summary, actor string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok {
		return repository.ErrNotFound
	}
	now := time.Now()
	job.Status = domain.JobFailed
	job.ErrorSummary = summary
	job.ChangedBy = actor
	job.ChangedAt = now
	job.UpdatedAt = now
	r.jobs[id] = job
	return nil
}

type memFiles memStore

func (r *memFiles) Create(ctx context.Context, file domain.ImportFile) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.files = append(r.files, file)
	return nil
}

func (r *memFiles) ExistsByHash(ctx context.Context, tenantID uuid.UUID, tableCode, contentHash string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, f := range r.files {
		if f.TenantID == tenantID && f.TableCode == tableCode && f.ContentHash == contentHash {
			return true, nil
		}
	}
	return false, nil
}

func (r *memFiles) ListByJob(ctx context.Context, jobID uuid.UUID) ([]domain.ImportFile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var files []domain.ImportFile
	for _, f := range r.files {
		if f.JobID == jobID {
			files = append(files, f)
		}
	}
	return files, nil
}

func (r *memFiles) SetRowCount(ctx context.Context, id uuid.UUID, rowCount int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.files {
		if r.files[i].ID == id {
			r.files[i].RowCount = rowCount
			return nil
		}
	}
	return repository.ErrNotFound
}

type memStaging memStore

func (r *memStaging) InsertBatch(ctx context.Context, rows []domain.StagingRow) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows = append(r.rows, rows...)
	return nil
}

func (r *memStaging) ListByFile(ctx context.Context, fileID uuid.UUID) ([]domain.StagingRow, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var rows []domain.StagingRow
	for _, row := range r.rows {
		if row.FileID == fileID {
			rows = append(rows, row)
		}
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].RowIndex < rows[j].RowIndex })
	return rows, nil
}

func (r *memStaging) ListValidByFile(ctx context.Context, fileID uuid.UUID) ([]domain.StagingRow, error) {
	rows, _ := r.ListByFile(ctx, fileID)
	var valid []domain.StagingRow
	for _, row := range rows {
		if row.IsValid {
			valid = append(valid, row)
		}
	}
	return valid, nil
}

func (r *memStaging) ListInvalidByJob(ctx context.Context, jobID uuid.UUID, limit, offset int) ([]domain.StagingRow, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var invalid []domain.StagingRow
	for _, row := range r.rows {
		if row.JobID == jobID && !row.IsValid {
			invalid = append(invalid, row)
		}
	}
	sort.Slice(invalid, func(i, j int) bool { return invalid[i].RowIndex < invalid[j].RowIndex })
	if offset > len(invalid) {
		offset = len(invalid)
	}
	invalid = invalid[offset:]
	if limit > 0 && limit < len(invalid) {
		invalid = invalid[:limit]
	}
	return invalid, nil
}

func (r *memStaging) UpdateValidation(ctx context.Context, rows []domain.StagingRow) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, updated := range rows {
		for i := range r.rows {
			if r.rows[i].ID == updated.ID {
				r.rows[i].IsValid = updated.IsValid
				r.rows[i].Errors = updated.Errors
				break
			}
		}
	}
	return nil
}

func (r *memStaging) DeleteByJob(ctx context.Context, jobID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	kept := r.rows[:0]
	for _, row := range r.rows {
		if row.JobID != jobID {
			kept = append(kept, row)
		}
	}
	r.rows = kept
	return nil
}

type memRecords memStore

func (r *memRecords) FindLot(ctx context.Context, key domain.LotKey) (domain.ProductLot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.lots[key.String()]
	if !ok {
		return domain.ProductLot{}, repository.ErrNotFound
	}
	return rec, nil
}

func (r *memRecords) SaveLot(ctx context.Context, rec domain.ProductLot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lots[rec.Key().String()] = rec
	return nil
}

func (r *memRecords) FindWinder(ctx context.Context, key domain.WinderKey) (domain.WinderRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.winders[key.String()]
	if !ok {
		return domain.WinderRecord{}, repository.ErrNotFound
	}
	return rec, nil
}

func (r *memRecords) SaveWinder(ctx context.Context, rec domain.WinderRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.winders[rec.Key().String()] = rec
	return nil
}

func (r *memRecords) FindMolding(ctx context.Context, key domain.MoldingKey) (domain.MoldingRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.moldings[key.String()]
	if !ok {
		return domain.MoldingRecord{}, repository.ErrNotFound
	}
	return rec, nil
}

func (r *memRecords) SaveMolding(ctx context.Context, rec domain.MoldingRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.moldings[rec.Key().String()] = rec
	return nil
}
