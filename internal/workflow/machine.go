// Package workflow sequences an upload session through Upload, Review and
// Complete, and commits the reviewed selection to the catalog.
package workflow

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jungwonlee1988/wedealize-sub000/internal/domain"
	"github.com/jungwonlee1988/wedealize-sub000/internal/extract"
	"github.com/jungwonlee1988/wedealize-sub000/internal/jobs"
	"github.com/jungwonlee1988/wedealize-sub000/internal/observability"
	"github.com/jungwonlee1988/wedealize-sub000/internal/pricing"
)

const historyTimeout = 10 * time.Second

// Pipeline extracts products from a document.
type Pipeline interface {
	Run(ctx context.Context, doc domain.Document, sink domain.ProgressSink) (*extract.Result, error)
}

// PriceReconciler applies a price list to products in place.
type PriceReconciler interface {
	Reconcile(ctx context.Context, priceList domain.Document, products []*domain.ExtractedProduct) (*pricing.Summary, error)
}

// CatalogCommitter writes products to the catalog.
type CatalogCommitter interface {
	Commit(ctx context.Context, products []*domain.ExtractedProduct) (int, error)
}

// JobWaiter waits for a server-tracked job to finish.
type JobWaiter interface {
	Wait(ctx context.Context, jobID string, onStep jobs.StepFunc) (*domain.Job, error)
}

// Observer is notified when a session enters Review.
type Observer interface {
	ReviewReady(s Snapshot)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(s Snapshot)

// ReviewReady calls f(s).
func (f ObserverFunc) ReviewReady(s Snapshot) { f(s) }

// Deps are the collaborators of a Machine. Pipeline is required; the others
// are only needed by the operations that use them. Validator screens
// documents submitted as server jobs; Pipeline validates its own input.
type Deps struct {
	Pipeline  Pipeline
	Validator extract.DocumentValidator
	Pricing   PriceReconciler
	Committer CatalogCommitter
	Jobs      domain.JobSubmitter
	Poller    JobWaiter
	History   domain.UploadHistory
	Observer  Observer
	Logger    *observability.Logger
}

// Machine owns one Session and serializes access to it. Long-running calls
// (extraction, price matching, job polling) run without the lock held; a
// session reset while such a call is in flight discards its result.
type Machine struct {
	mu      sync.Mutex
	session *Session
	deps    Deps
	logger  *observability.Logger
	bg      sync.WaitGroup
}

// NewMachine creates a Machine in the Upload step with a fresh session.
func NewMachine(deps Deps) *Machine {
	logger := deps.Logger
	if logger == nil {
		logger = observability.NopLogger()
	}
	m := &Machine{
		session: newSession(),
		deps:    deps,
		logger:  logger.WithComponent("workflow"),
	}
	m.logger.Debug().Str("session_id", m.session.ID).Msg("Session started")
	return m
}

// SessionID returns the id of the current session.
func (m *Machine) SessionID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session.ID
}

// Step returns the current step.
func (m *Machine) Step() domain.WorkflowStep {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session.Step
}

// Snapshot returns a copy of the current session.
func (m *Machine) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session.snapshot()
}

// GoTo moves to step. Moving to Upload always starts a new session; any other
// backward move fails with domain.ErrInvalidTransition. Entering Review
// refreshes display fields and notifies the observer. Entering Complete
// commits the current selection, including on re-entry.
func (m *Machine) GoTo(ctx context.Context, step domain.WorkflowStep) error {
	if !step.Valid() {
		return domain.WorkflowError(fmt.Sprintf("unknown step %d", int(step)), nil)
	}

	if step == domain.StepUpload {
		m.reset()
		return nil
	}

	m.mu.Lock()
	sess := m.session
	logger := m.logger.WithContext(ctx).WithSession(sess.ID)

	if sess.busy {
		m.mu.Unlock()
		return errBusy()
	}
	if step < sess.Step {
		m.mu.Unlock()
		return fmt.Errorf("%s to %s: %w", sess.Step, step, domain.ErrInvalidTransition)
	}

	switch step {
	case domain.StepReview:
		for _, p := range sess.Products {
			p.Refresh()
		}
		sess.Step = domain.StepReview
		sess.touch()
		snap := sess.snapshot()
		m.mu.Unlock()

		logger.Info().Int("products", len(snap.Products)).Msg("Entered review")
		if m.deps.Observer != nil {
			m.deps.Observer.ReviewReady(snap)
		}
		return nil

	case domain.StepComplete:
		if m.deps.Committer == nil {
			m.mu.Unlock()
			return domain.ConfigError("no catalog committer configured", nil)
		}
		reentry := sess.Step == domain.StepComplete
		if reentry {
			logger.Warn().Int("previous_commits", sess.CommitCount).Msg("Re-entering complete, committing selection again")
		}
		selected := sess.selectedProducts()
		sess.busy = true
		m.mu.Unlock()

		count, err := m.deps.Committer.Commit(ctx, selected)

		m.mu.Lock()
		defer m.mu.Unlock()
		sess.busy = false
		if err != nil {
			return err
		}
		if m.session != sess {
			logger.Warn().Int("committed", count).Msg("Session reset during commit")
			return domain.WorkflowError("session was reset during commit", nil)
		}

		sess.Committed = count
		sess.CommitCount++
		sess.Step = domain.StepComplete
		sess.touch()
		logger.Info().Int("committed", count).Int("commit_count", sess.CommitCount).Bool("reentry", reentry).Msg("Entered complete")
		return nil
	}

	m.mu.Unlock()
	return nil
}

// Upload runs the extraction pipeline on doc and replaces the session's
// products with the result. It is only allowed in the Upload step.
func (m *Machine) Upload(ctx context.Context, doc domain.Document, sink domain.ProgressSink) (*extract.Result, error) {
	sess, err := m.begin("upload")
	if err != nil {
		return nil, err
	}
	defer m.end(sess)

	logger := m.logger.WithContext(ctx).WithSession(sess.ID).With().Str("file", doc.FileName).Logger()
	logger.Debug().Int64("size", doc.Size()).Msg("Upload received")

	result, runErr := m.deps.Pipeline.Run(ctx, doc, sink)
	if domain.IsType(runErr, domain.ErrorTypeValidation) {
		logger.Info().Err(runErr).Msg("Upload rejected")
		return result, runErr
	}
	if result == nil {
		result = &extract.Result{Status: extract.StatusFailed}
		if runErr != nil {
			result.Reason = runErr.Error()
		}
	}

	m.recordUpload(ctx, sess.ID, doc, result.UploadStatus(), len(result.Products))

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session != sess {
		logger.Warn().Msg("Session reset during upload, discarding result")
		return result, domain.WorkflowError("session was reset during upload", nil)
	}

	sess.FileName = doc.FileName
	sess.JobID = ""
	sess.Status = result.Status
	sess.Source = result.Source
	sess.Reason = result.Reason
	sess.Pricing = nil
	if runErr != nil {
		sess.setProducts(nil)
		sess.touch()
		return result, runErr
	}

	sess.setProducts(result.Products)
	sess.touch()
	logger.Info().Str("status", string(result.Status)).Int("products", len(result.Products)).Msg("Upload processed")
	return result, nil
}

// UploadAsJob submits doc as a server-tracked job, waits for it, and loads
// the job's products. onStep receives progress steps as they change. When
// the job outlives the poller's max wait, the job id stays on the session
// and domain.ErrStillProcessing is returned.
func (m *Machine) UploadAsJob(ctx context.Context, doc domain.Document, onStep jobs.StepFunc) (*domain.Job, error) {
	if m.deps.Jobs == nil || m.deps.Poller == nil {
		return nil, domain.ConfigError("server job processing is not configured", nil)
	}
	if m.deps.Validator != nil {
		if _, err := m.deps.Validator.Validate(doc); err != nil {
			return nil, err
		}
	}

	sess, err := m.begin("upload")
	if err != nil {
		return nil, err
	}
	defer m.end(sess)

	logger := m.logger.WithContext(ctx).WithSession(sess.ID).With().Str("file", doc.FileName).Logger()

	jobID, err := m.deps.Jobs.SubmitJob(ctx, doc)
	if err != nil {
		m.recordUpload(ctx, sess.ID, doc, domain.UploadStatusFailed, 0)
		return nil, err
	}
	logger.Info().Str("job_id", jobID).Msg("Job submitted")

	m.mu.Lock()
	if m.session == sess {
		sess.JobID = jobID
		sess.FileName = doc.FileName
		sess.touch()
	}
	m.mu.Unlock()

	job, err := m.deps.Poller.Wait(ctx, jobID, onStep)
	if err != nil {
		if job != nil && job.Stage == domain.JobStageError {
			m.recordUpload(ctx, sess.ID, doc, domain.UploadStatusFailed, 0)
		}
		return job, err
	}

	products, err := m.deps.Jobs.JobProducts(ctx, jobID)
	if err != nil {
		m.recordUpload(ctx, sess.ID, doc, domain.UploadStatusFailed, 0)
		return job, err
	}
	products = extract.Normalize(products)
	m.recordUpload(ctx, sess.ID, doc, domain.UploadStatusCompleted, len(products))

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session != sess {
		logger.Warn().Str("job_id", jobID).Msg("Session reset during job, discarding result")
		return job, domain.WorkflowError("session was reset during upload", nil)
	}

	sess.setProducts(products)
	sess.Status = extract.StatusSuccess
	sess.Source = domain.SourceService
	sess.Reason = ""
	sess.Pricing = nil
	sess.touch()
	logger.Info().Str("job_id", jobID).Int("products", len(products)).Msg("Job products loaded")
	return job, nil
}

// MatchPrices reconciles a price list against the session's products. It is
// only allowed in the Upload step, after products have been extracted.
func (m *Machine) MatchPrices(ctx context.Context, priceList domain.Document) (*pricing.Summary, error) {
	if m.deps.Pricing == nil {
		return nil, domain.ConfigError("no price reconciler configured", nil)
	}

	sess, err := m.begin("price matching")
	if err != nil {
		return nil, err
	}
	defer m.end(sess)

	m.mu.Lock()
	working := make([]*domain.ExtractedProduct, len(sess.Products))
	for i, p := range sess.Products {
		working[i] = p.Clone()
	}
	m.mu.Unlock()

	if len(working) == 0 {
		return nil, domain.ValidationError("upload a catalog before matching prices", nil)
	}

	summary, err := m.deps.Pricing.Reconcile(ctx, priceList, working)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session != sess {
		return summary, domain.WorkflowError("session was reset during price matching", nil)
	}
	sess.Products = working
	sess.Pricing = summary
	sess.touch()
	return summary, nil
}

// ProductEdit is a manual correction. Nil fields are left unchanged; blank
// optional fields are cleared.
type ProductEdit struct {
	ProductName    *string   `json:"productName,omitempty"`
	Brand          *string   `json:"brand,omitempty"`
	UnitSpec       *string   `json:"unitSpec,omitempty"`
	Category       *string   `json:"category,omitempty"`
	UnitPrice      *string   `json:"unitPrice,omitempty"`
	CasePrice      *string   `json:"casePrice,omitempty"`
	Currency       *string   `json:"currency,omitempty"`
	PriceBasis     *string   `json:"priceBasis,omitempty"`
	ShelfLife      *string   `json:"shelfLife,omitempty"`
	Certifications *[]string `json:"certifications,omitempty"`
}

// EditProduct applies edit to product id and returns a copy of the result.
func (m *Machine) EditProduct(id string, edit ProductEdit) (*domain.ExtractedProduct, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.editable(); err != nil {
		return nil, err
	}
	p := m.session.product(id)
	if p == nil {
		return nil, fmt.Errorf("%s: %w", id, domain.ErrProductNotFound)
	}

	if edit.ProductName != nil {
		name := strings.TrimSpace(*edit.ProductName)
		if name == "" {
			return nil, domain.ValidationError("product name cannot be empty", nil)
		}
		p.ProductName = name
	}
	for _, f := range []struct {
		dst **string
		src *string
	}{
		{&p.Brand, edit.Brand},
		{&p.UnitSpec, edit.UnitSpec},
		{&p.Category, edit.Category},
		{&p.UnitPrice, edit.UnitPrice},
		{&p.CasePrice, edit.CasePrice},
		{&p.Currency, edit.Currency},
		{&p.PriceBasis, edit.PriceBasis},
		{&p.ShelfLife, edit.ShelfLife},
	} {
		if f.src != nil {
			*f.dst = domain.StringPtr(strings.TrimSpace(*f.src))
		}
	}
	if edit.Certifications != nil {
		p.Certifications = append([]string{}, (*edit.Certifications)...)
	}

	p.Refresh()
	m.session.touch()
	return p.Clone(), nil
}

// Select adds products to the selection. Unknown ids fail the whole call.
func (m *Machine) Select(ids ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.editable(); err != nil {
		return err
	}
	for _, id := range ids {
		if m.session.product(id) == nil {
			return fmt.Errorf("%s: %w", id, domain.ErrProductNotFound)
		}
	}
	for _, id := range ids {
		m.session.selected[id] = struct{}{}
	}
	m.session.touch()
	return nil
}

// SetSelection replaces the selection with ids. Unknown ids fail the whole
// call and leave the selection unchanged.
func (m *Machine) SetSelection(ids ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.editable(); err != nil {
		return err
	}
	selected := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if m.session.product(id) == nil {
			return fmt.Errorf("%s: %w", id, domain.ErrProductNotFound)
		}
		selected[id] = struct{}{}
	}
	m.session.selected = selected
	m.session.touch()
	return nil
}

// SelectAll selects every product.
func (m *Machine) SelectAll() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.editable(); err != nil {
		return err
	}
	for _, p := range m.session.Products {
		m.session.selected[p.ID] = struct{}{}
	}
	m.session.touch()
	return nil
}

// Deselect removes products from the selection; no ids clears it.
func (m *Machine) Deselect(ids ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.editable(); err != nil {
		return err
	}
	if len(ids) == 0 {
		m.session.selected = make(map[string]struct{})
	}
	for _, id := range ids {
		delete(m.session.selected, id)
	}
	m.session.touch()
	return nil
}

// Close waits for background history writes to finish.
func (m *Machine) Close() {
	m.bg.Wait()
}

func (m *Machine) reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	old := m.session.ID
	m.session = newSession()
	m.logger.Info().Str("previous_session", old).Str("session_id", m.session.ID).Msg("Started new session")
}

// begin claims the session for a long-running Upload-step operation.
func (m *Machine) begin(op string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.session.Step != domain.StepUpload {
		return nil, domain.WorkflowError(
			fmt.Sprintf("%s is only allowed in the upload step (current: %s)", op, m.session.Step),
			domain.ErrInvalidTransition)
	}
	if m.session.busy {
		return nil, errBusy()
	}
	m.session.busy = true
	return m.session, nil
}

func (m *Machine) end(sess *Session) {
	m.mu.Lock()
	sess.busy = false
	m.mu.Unlock()
}

// editable reports whether products and selection may change. Caller holds mu.
func (m *Machine) editable() error {
	if m.session.busy {
		return errBusy()
	}
	if m.session.Step == domain.StepComplete {
		return domain.WorkflowError("session is complete; start a new upload to make changes", nil)
	}
	return nil
}

// recordUpload writes an upload history entry in the background. Failures
// are logged only.
func (m *Machine) recordUpload(ctx context.Context, sessionID string, doc domain.Document, status domain.UploadStatus, products int) {
	if m.deps.History == nil {
		return
	}

	rec := domain.UploadRecord{
		SessionID:         sessionID,
		FileName:          doc.FileName,
		FileType:          doc.FileType(),
		FileSize:          doc.Size(),
		Status:            status,
		ProductsExtracted: products,
		CreatedAt:         time.Now().UTC(),
	}

	m.bg.Add(1)
	go func() {
		defer m.bg.Done()

		hctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), historyTimeout)
		defer cancel()

		if err := m.deps.History.RecordUpload(hctx, rec); err != nil {
			m.logger.Warn().Err(err).Str("session_id", sessionID).Str("file", doc.FileName).
				Msg("Failed to record upload history")
		}
	}()
}

func errBusy() error {
	return domain.WorkflowError("another operation is in progress for this session", nil)
}
