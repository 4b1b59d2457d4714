package importer

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/mkaneda/lotimport/internal/repository"

	"github.com/google/uuid"
)

// Handler exposes the job lifecycle as HTTP endpoints. Tenant resolution
// and auth are external concerns: the tenant id arrives as an
// already-resolved value.
type Handler struct {
	service *Service
}

// NewHTTPHandler wires the lifecycle routes.
func NewHTTPHandler(service *Service) http.Handler {
	h := &Handler{service: service}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /jobs", h.createJob)
	mux.HandleFunc("GET /jobs", h.listJobs)
	mux.HandleFunc("GET /jobs/{id}", h.getJob)
	mux.HandleFunc("GET /jobs/{id}/errors", h.getJobErrors)
	mux.HandleFunc("POST /jobs/{id}/commit", h.commitJob)
	mux.HandleFunc("POST /jobs/{id}/cancel", h.cancelJob)
	return mux
}

func (h *Handler) createJob(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		http.Error(w, fmt.Sprintf("invalid form data: %v", err), http.StatusBadRequest)
		return
	}

	tenantID, err := uuid.Parse(strings.TrimSpace(r.FormValue("tenantId")))
	if err != nil {
		http.Error(w, fmt.Sprintf("invalid tenant id: %v", err), http.StatusBadRequest)
		return
	}

	tableCode := strings.TrimSpace(r.FormValue("tableCode"))
	if tableCode == "" {
		http.Error(w, "tableCode is required", http.StatusBadRequest)
		return
	}

	allowDuplicate, _ := strconv.ParseBool(r.FormValue("allowDuplicate"))

	headers := r.MultipartForm.File["files"]
	if len(headers) == 0 {
		http.Error(w, "at least one file is required", http.StatusBadRequest)
		return
	}

	var uploads []FileUpload
	for _, header := range headers {
		file, err := header.Open()
		if err != nil {
			http.Error(w, fmt.Sprintf("failed to open %s: %v", header.Filename, err), http.StatusBadRequest)
			return
		}
		defer file.Close()
		uploads = append(uploads, FileUpload{Name: header.Filename, Data: file})
	}

	job, err := h.service.CreateJob(r.Context(), CreateRequest{
		TenantID:       tenantID,
		TableCode:      tableCode,
		BatchLabel:     strings.TrimSpace(r.FormValue("batchLabel")),
		AllowDuplicate: allowDuplicate,
		Actor:          actorFrom(r),
		Files:          uploads,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, job)
}

func (h *Handler) listJobs(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := tenantFrom(w, r)
	if !ok {
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	jobs, err := h.service.ListJobs(r.Context(), tenantID, limit, offset)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, jobs)
}

func (h *Handler) getJob(w http.ResponseWriter, r *http.Request) {
	jobID, tenantID, ok := jobScope(w, r)
	if !ok {
		return
	}

	job, err := h.service.GetJob(r.Context(), jobID, tenantID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (h *Handler) getJobErrors(w http.ResponseWriter, r *http.Request) {
	jobID, tenantID, ok := jobScope(w, r)
	if !ok {
		return
	}

	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	pageSize, _ := strconv.Atoi(r.URL.Query().Get("pageSize"))

	rows, err := h.service.GetJobErrors(r.Context(), jobID, tenantID, page, pageSize)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (h *Handler) commitJob(w http.ResponseWriter, r *http.Request) {
	jobID, tenantID, ok := jobScope(w, r)
	if !ok {
		return
	}

	job, err := h.service.CommitJob(r.Context(), jobID, tenantID, actorFrom(r))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (h *Handler) cancelJob(w http.ResponseWriter, r *http.Request) {
	jobID, tenantID, ok := jobScope(w, r)
	if !ok {
		return
	}

	job, err := h.service.CancelJob(r.Context(), jobID, tenantID, actorFrom(r))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func jobScope(w http.ResponseWriter, r *http.Request) (jobID, tenantID uuid.UUID, ok bool) {
	jobID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, fmt.Sprintf("invalid job id: %v", err), http.StatusBadRequest)
		return uuid.Nil, uuid.Nil, false
	}
	tenantID, ok = tenantFrom(w, r)
	return jobID, tenantID, ok
}

func tenantFrom(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	raw := strings.TrimSpace(r.URL.Query().Get("tenantId"))
	if raw == "" {
		raw = strings.TrimSpace(r.Header.Get("X-Tenant-ID"))
	}
	tenantID, err := uuid.Parse(raw)
	if err != nil {
		http.Error(w, fmt.Sprintf("invalid tenant id: %v", err), http.StatusBadRequest)
		return uuid.Nil, false
	}
	return tenantID, true
}

func actorFrom(r *http.Request) string {
	if actor := strings.TrimSpace(r.Header.Get("X-Actor")); actor != "" {
		return actor
	}
	return "api"
}

func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, ErrInvalidState), errors.Is(err, ErrDuplicateFile):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, ErrUnknownTableCode), errors.Is(err, ErrMixedFileTypes),
		errors.Is(err, ErrUnsupportedFormat), errors.Is(err, ErrNoFiles):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(payload)
}
