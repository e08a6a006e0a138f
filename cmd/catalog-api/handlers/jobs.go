package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/jungwonlee1988/wedealize-sub000/internal/domain"
	"github.com/jungwonlee1988/wedealize-sub000/internal/observability"
)

// JobLookup returns the last known status of a server-tracked job.
type JobLookup interface {
	Status(ctx context.Context, jobID string) (*domain.Job, error)
}

// UploadLister lists recorded uploads, newest first.
type UploadLister interface {
	List(ctx context.Context, limit int) ([]*domain.UploadRecord, error)
}

// JobHandler serves job status and upload history lookups.
type JobHandler struct {
	logger  *observability.Logger
	jobs    JobLookup
	uploads UploadLister
}

// NewJobHandler creates a new job handler. uploads may be nil when history
// is not kept locally.
func NewJobHandler(logger *observability.Logger, jobs JobLookup, uploads UploadLister) *JobHandler {
	return &JobHandler{
		logger:  logger.WithComponent("api"),
		jobs:    jobs,
		uploads: uploads,
	}
}

// Get handles GET /jobs/{jobId}.
func (h *JobHandler) Get(w http.ResponseWriter, r *http.Request) {
	job, err := h.jobs.Status(r.Context(), chi.URLParam(r, "jobId"))
	if err != nil {
		writeDomainError(w, h.logger.WithContext(r.Context()), err)
		return
	}

	step, _ := job.Stage.ProgressStep()
	writeJSON(w, http.StatusOK, map[string]any{
		"job":      job,
		"step":     step,
		"terminal": job.Stage.IsTerminal(),
	})
}

// ListUploads handles GET /uploads?limit=n.
func (h *JobHandler) ListUploads(w http.ResponseWriter, r *http.Request) {
	if h.uploads == nil {
		writeError(w, http.StatusNotFound, "upload history is not kept by this server", "")
		return
	}

	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 500 {
			writeError(w, http.StatusBadRequest, "limit must be between 1 and 500", v)
			return
		}
		limit = n
	}

	records, err := h.uploads.List(r.Context(), limit)
	if err != nil {
		writeDomainError(w, h.logger.WithContext(r.Context()), err)
		return
	}
	if records == nil {
		records = []*domain.UploadRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"uploads": records, "count": len(records)})
}
