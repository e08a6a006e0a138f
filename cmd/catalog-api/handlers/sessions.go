package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/jungwonlee1988/wedealize-sub000/internal/cache"
	"github.com/jungwonlee1988/wedealize-sub000/internal/domain"
	"github.com/jungwonlee1988/wedealize-sub000/internal/extract"
	"github.com/jungwonlee1988/wedealize-sub000/internal/observability"
	"github.com/jungwonlee1988/wedealize-sub000/internal/pricing"
	"github.com/jungwonlee1988/wedealize-sub000/internal/progress"
	"github.com/jungwonlee1988/wedealize-sub000/internal/workflow"
)

const (
	multipartMemory = 32 << 20
	publishTimeout  = 2 * time.Second

	// phaseReset is the last event on a session's stream; it carries the
	// id of the session that replaced it.
	phaseReset = "reset"
)

// SessionHandler serves the upload session routes.
type SessionHandler struct {
	logger   *observability.Logger
	sessions *Registry
	broker   cache.Broker
	maxBytes int64
}

// NewSessionHandler creates a new session handler. broker may be nil, in
// which case progress is only logged.
func NewSessionHandler(logger *observability.Logger, sessions *Registry, broker cache.Broker, maxBytes int64) *SessionHandler {
	return &SessionHandler{
		logger:   logger.WithComponent("api"),
		sessions: sessions,
		broker:   broker,
		maxBytes: maxBytes,
	}
}

// UploadResponse is returned by the upload route.
type UploadResponse struct {
	Status  extract.Status    `json:"status"`
	Reason  string            `json:"reason,omitempty"`
	Source  domain.DataSource `json:"source,omitempty"`
	Pages   int               `json:"pages"`
	Batches int               `json:"batches"`
	Session workflow.Snapshot `json:"session"`
}

// JobUploadResponse is returned by the server-driven upload route.
type JobUploadResponse struct {
	Job     *domain.Job       `json:"job,omitempty"`
	Pending bool              `json:"pending"`
	Session workflow.Snapshot `json:"session"`
}

// PricesResponse is returned by the price matching route.
type PricesResponse struct {
	Pricing *pricing.Summary  `json:"pricing"`
	Session workflow.Snapshot `json:"session"`
}

// SelectionRequest replaces the selection, or selects everything when All is set.
type SelectionRequest struct {
	IDs []string `json:"ids"`
	All bool     `json:"all"`
}

// Create handles POST /sessions.
func (h *SessionHandler) Create(w http.ResponseWriter, r *http.Request) {
	m := h.sessions.Create()
	snap := m.Snapshot()

	h.logger.WithContext(r.Context()).Info().Str("session_id", snap.ID).Msg("Session created")
	writeJSON(w, http.StatusCreated, map[string]any{
		"sessionId": snap.ID,
		"step":      snap.Step,
		"stepName":  snap.StepName,
	})
}

// Get handles GET /sessions/{id}.
func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	m, ok := h.machine(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, m.Snapshot())
}

// Upload handles POST /sessions/{id}/upload.
func (h *SessionHandler) Upload(w http.ResponseWriter, r *http.Request) {
	m, ok := h.machine(w, r)
	if !ok {
		return
	}
	doc, ok := h.readFile(w, r)
	if !ok {
		return
	}

	sessionID := m.SessionID()
	logger := h.logger.WithContext(r.Context()).WithSession(sessionID)
	sink := progress.FanOut(progress.NewLogSink(logger), h.publishSink(sessionID, logger))

	result, err := m.Upload(r.Context(), doc, sink)
	if err != nil {
		writeDomainError(w, logger, err)
		return
	}

	writeJSON(w, http.StatusOK, UploadResponse{
		Status:  result.Status,
		Reason:  result.Reason,
		Source:  result.Source,
		Pages:   result.Pages,
		Batches: result.Batches,
		Session: m.Snapshot(),
	})
}

// UploadJob handles POST /sessions/{id}/upload-job. When the job outlives
// the poller's max wait the response is 202 with the job id on the session.
func (h *SessionHandler) UploadJob(w http.ResponseWriter, r *http.Request) {
	m, ok := h.machine(w, r)
	if !ok {
		return
	}
	doc, ok := h.readFile(w, r)
	if !ok {
		return
	}

	sessionID := m.SessionID()
	logger := h.logger.WithContext(r.Context()).WithSession(sessionID)

	onStep := func(step int, job *domain.Job) {
		logger.Debug().Str("job_id", job.JobID).Int("step", step).Str("stage", string(job.Stage)).Msg("Job step")
		h.publish(sessionID, map[string]any{"phase": "job", "step": step, "stage": job.Stage, "jobId": job.JobID})
	}

	job, err := m.UploadAsJob(r.Context(), doc, onStep)
	switch {
	case errors.Is(err, domain.ErrStillProcessing):
		writeJSON(w, http.StatusAccepted, JobUploadResponse{Job: job, Pending: true, Session: m.Snapshot()})
	case err != nil:
		writeDomainError(w, logger, err)
	default:
		writeJSON(w, http.StatusOK, JobUploadResponse{Job: job, Session: m.Snapshot()})
	}
}

// Prices handles POST /sessions/{id}/prices.
func (h *SessionHandler) Prices(w http.ResponseWriter, r *http.Request) {
	m, ok := h.machine(w, r)
	if !ok {
		return
	}
	doc, ok := h.readFile(w, r)
	if !ok {
		return
	}

	summary, err := m.MatchPrices(r.Context(), doc)
	if err != nil {
		writeDomainError(w, h.logger.WithContext(r.Context()), err)
		return
	}
	writeJSON(w, http.StatusOK, PricesResponse{Pricing: summary, Session: m.Snapshot()})
}

// Products handles GET /sessions/{id}/products.
func (h *SessionHandler) Products(w http.ResponseWriter, r *http.Request) {
	m, ok := h.machine(w, r)
	if !ok {
		return
	}
	snap := m.Snapshot()
	writeJSON(w, http.StatusOK, map[string]any{
		"products":    snap.Products,
		"selectedIds": snap.SelectedIDs,
		"total":       len(snap.Products),
	})
}

// EditProduct handles PATCH /sessions/{id}/products/{pid}.
func (h *SessionHandler) EditProduct(w http.ResponseWriter, r *http.Request) {
	m, ok := h.machine(w, r)
	if !ok {
		return
	}

	var edit workflow.ProductEdit
	if err := json.NewDecoder(r.Body).Decode(&edit); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	product, err := m.EditProduct(chi.URLParam(r, "pid"), edit)
	if err != nil {
		writeDomainError(w, h.logger.WithContext(r.Context()), err)
		return
	}
	writeJSON(w, http.StatusOK, product)
}

// Selection handles POST /sessions/{id}/selection.
func (h *SessionHandler) Selection(w http.ResponseWriter, r *http.Request) {
	m, ok := h.machine(w, r)
	if !ok {
		return
	}

	var req SelectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	var err error
	if req.All {
		err = m.SelectAll()
	} else {
		err = m.SetSelection(req.IDs...)
	}
	if err != nil {
		writeDomainError(w, h.logger.WithContext(r.Context()), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"selectedIds": m.Snapshot().SelectedIDs})
}

// Step handles POST /sessions/{id}/steps/{step}. Moving to upload starts a
// new session; the response carries its id.
func (h *SessionHandler) Step(w http.ResponseWriter, r *http.Request) {
	m, ok := h.machine(w, r)
	if !ok {
		return
	}

	step, valid := domain.ParseStep(chi.URLParam(r, "step"))
	if !valid {
		writeError(w, http.StatusBadRequest, "unknown step", chi.URLParam(r, "step"))
		return
	}

	oldID := m.SessionID()
	if err := m.GoTo(r.Context(), step); err != nil {
		writeDomainError(w, h.logger.WithContext(r.Context()).WithSession(oldID), err)
		return
	}
	snap := m.Snapshot()
	if snap.ID != oldID {
		h.sessions.Rekey(oldID, m)
		h.publish(oldID, map[string]any{"phase": phaseReset, "sessionId": snap.ID})
	}

	writeJSON(w, http.StatusOK, snap)
}

// Events handles GET /sessions/{id}/events, streaming progress as
// server-sent events until the client disconnects. When the session is reset
// the stream sends a reset event with the new session id and ends; clients
// subscribe again under that id.
func (h *SessionHandler) Events(w http.ResponseWriter, r *http.Request) {
	m, ok := h.machine(w, r)
	if !ok {
		return
	}
	if h.broker == nil {
		writeError(w, http.StatusServiceUnavailable, "progress streaming is not configured", "")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported", "")
		return
	}

	ctx := r.Context()
	msgs, unsubscribe, err := h.broker.Subscribe(ctx, cache.ProgressChannel(m.SessionID()))
	if err != nil {
		writeDomainError(w, h.logger.WithContext(ctx), err)
		return
	}
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-ctx.Done():
			return
		case msg, open := <-msgs:
			if !open {
				return
			}
			fmt.Fprintf(w, "data: %s\n\n", msg)
			flusher.Flush()

			var evt struct {
				Phase string `json:"phase"`
			}
			if json.Unmarshal(msg, &evt) == nil && evt.Phase == phaseReset {
				return
			}
		}
	}
}

// ReviewObserver publishes a review event when a session enters Review.
func ReviewObserver(broker cache.Broker, logger *observability.Logger) workflow.Observer {
	return workflow.ObserverFunc(func(s workflow.Snapshot) {
		logger.Info().Str("session_id", s.ID).Int("products", len(s.Products)).Msg("Review ready")
		if broker == nil {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		defer cancel()
		if err := broker.Publish(ctx, cache.ProgressChannel(s.ID), map[string]any{
			"phase":    "review",
			"products": len(s.Products),
			"selected": len(s.SelectedIDs),
		}); err != nil {
			logger.Warn().Err(err).Str("session_id", s.ID).Msg("Failed to publish review event")
		}
	})
}

func (h *SessionHandler) machine(w http.ResponseWriter, r *http.Request) (*workflow.Machine, bool) {
	m, err := h.sessions.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, h.logger, err)
		return nil, false
	}
	return m, true
}

// readFile reads the multipart "file" field into a Document.
func (h *SessionHandler) readFile(w http.ResponseWriter, r *http.Request) (domain.Document, bool) {
	if h.maxBytes > 0 {
		// headroom for the multipart envelope; the validator enforces the file limit
		r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes+1<<20)
	}

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "file too large", err.Error())
			return domain.Document{}, false
		}
		writeError(w, http.StatusBadRequest, "invalid multipart form", err.Error())
		return domain.Document{}, false
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file is required", err.Error())
		return domain.Document{}, false
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read file", err.Error())
		return domain.Document{}, false
	}
	return domain.Document{FileName: header.Filename, Data: data}, true
}

func (h *SessionHandler) publishSink(sessionID string, logger *observability.Logger) domain.ProgressSink {
	if h.broker == nil {
		return nil
	}
	return progress.NewPublishSink(h.broker, sessionID, logger)
}

func (h *SessionHandler) publish(sessionID string, msg any) {
	if h.broker == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	if err := h.broker.Publish(ctx, cache.ProgressChannel(sessionID), msg); err != nil {
		h.logger.Warn().Err(err).Str("session_id", sessionID).Msg("Failed to publish session event")
	}
}
