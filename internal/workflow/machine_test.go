package workflow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jungwonlee1988/wedealize-sub000/internal/domain"
	"github.com/jungwonlee1988/wedealize-sub000/internal/extract"
	"github.com/jungwonlee1988/wedealize-sub000/internal/jobs"
	"github.com/jungwonlee1988/wedealize-sub000/internal/observability"
	"github.com/jungwonlee1988/wedealize-sub000/internal/pricing"
)

type fakePipeline struct {
	result *extract.Result
	err    error
	calls  int
}

func (p *fakePipeline) Run(_ context.Context, _ domain.Document, sink domain.ProgressSink) (*extract.Result, error) {
	p.calls++
	if sink != nil && p.err == nil {
		sink.Report(domain.Progress{Phase: domain.PhaseComplete, Percent: 100})
	}
	if p.result == nil {
		return nil, p.err
	}
	// fresh copies per run, like a real pipeline
	res := *p.result
	res.Products = make([]*domain.ExtractedProduct, len(p.result.Products))
	for i, prod := range p.result.Products {
		res.Products[i] = prod.Clone()
	}
	return &res, p.err
}

type fakeStore struct {
	mu    sync.Mutex
	calls [][]domain.CommitItem
	err   error
}

func (s *fakeStore) BulkCreate(_ context.Context, items []domain.CommitItem) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, items)
	if s.err != nil {
		return 0, s.err
	}
	return len(items), nil
}

type fakeHistory struct {
	mu      sync.Mutex
	records []domain.UploadRecord
	err     error
}

func (h *fakeHistory) RecordUpload(_ context.Context, rec domain.UploadRecord) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.records = append(h.records, rec)
	return h.err
}

type fakeMatcher struct {
	matches []domain.PriceMatch
}

func (m *fakeMatcher) MatchPrices(_ context.Context, _ domain.PriceListRequest) ([]domain.PriceMatch, error) {
	return m.matches, nil
}

type fakeJobs struct {
	jobID     string
	products  []*domain.ExtractedProduct
	submitted []string
}

func (j *fakeJobs) SubmitJob(_ context.Context, doc domain.Document) (string, error) {
	j.submitted = append(j.submitted, doc.FileName)
	return j.jobID, nil
}

func (j *fakeJobs) JobProducts(context.Context, string) ([]*domain.ExtractedProduct, error) {
	return j.products, nil
}

type fakeStatus struct {
	mu     sync.Mutex
	stages []domain.JobStage
	errors []string
	calls  int
}

func (f *fakeStatus) JobStatus(_ context.Context, id string) (*domain.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	st := f.stages[min(f.calls, len(f.stages)-1)]
	f.calls++
	job := &domain.Job{JobID: id, Stage: st}
	if st == domain.JobStageError {
		job.Errors = f.errors
	}
	return job, nil
}

type extensionValidator struct{}

func (extensionValidator) Validate(doc domain.Document) (int, error) {
	if doc.FileType() != "pdf" {
		return 0, domain.ValidationError(fmt.Sprintf("unsupported file type %q", doc.FileType()), nil)
	}
	return 1, nil
}

// blockingStore holds BulkCreate open until release is closed.
type blockingStore struct {
	started chan struct{}
	release chan struct{}
}

func (s *blockingStore) BulkCreate(_ context.Context, items []domain.CommitItem) (int, error) {
	close(s.started)
	<-s.release
	return len(items), nil
}

func newJobPoller(t *testing.T, status *fakeStatus) *jobs.Poller {
	t.Helper()
	poller, err := jobs.NewPoller(status, nil, jobs.Options{Interval: time.Millisecond, MaxWait: time.Second}, observability.NopLogger())
	require.NoError(t, err)
	return poller
}

var catalogDoc = domain.Document{FileName: "catalog.pdf", Data: []byte("%PDF-1.4")}

func sampleProducts() []*domain.ExtractedProduct {
	s := domain.StringPtr
	return []*domain.ExtractedProduct{
		{ID: "a", ProductName: "Kimchi", Brand: s("Jongga"), UnitPrice: s("12.00"), Category: s("Produce")},
		{ID: "b", ProductName: "Gochujang", Brand: s("CJ"), UnitPrice: s("4.00"), Category: s("Sauce")},
		{ID: "c", ProductName: "Barley Tea", UnitPrice: s("3.00"), Category: s("Beverage")},
	}
}

type harness struct {
	m        *Machine
	pipeline *fakePipeline
	store    *fakeStore
	history  *fakeHistory
	reviews  []Snapshot
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		pipeline: &fakePipeline{result: &extract.Result{
			Status: extract.StatusSuccess, Source: domain.SourceService, Products: sampleProducts(),
		}},
		store:   &fakeStore{},
		history: &fakeHistory{},
	}
	logger := observability.NopLogger()
	h.m = NewMachine(Deps{
		Pipeline:  h.pipeline,
		Pricing:   pricing.NewReconciler(&fakeMatcher{matches: []domain.PriceMatch{{ID: "b", Price: "5.50"}}}, pricing.Options{}, logger, nil),
		Committer: NewCommitter(h.store, logger, nil),
		History:   h.history,
		Observer:  ObserverFunc(func(s Snapshot) { h.reviews = append(h.reviews, s) }),
		Logger:    logger,
	})
	t.Cleanup(h.m.Close)
	return h
}

func (h *harness) upload(t *testing.T) {
	t.Helper()
	_, err := h.m.Upload(context.Background(), catalogDoc, nil)
	require.NoError(t, err)
}

func TestMachine_InitialState(t *testing.T) {
	h := newHarness(t)
	snap := h.m.Snapshot()

	assert.Equal(t, domain.StepUpload, snap.Step)
	assert.NotEmpty(t, snap.ID)
	assert.Empty(t, snap.Products)
	assert.Zero(t, h.pipeline.calls, "pipeline runs only on explicit upload")
}

func TestMachine_UploadSelectsAllAndRecordsHistory(t *testing.T) {
	h := newHarness(t)

	var last domain.Progress
	res, err := h.m.Upload(context.Background(), catalogDoc, domain.ProgressFunc(func(p domain.Progress) { last = p }))
	require.NoError(t, err)
	assert.Equal(t, extract.StatusSuccess, res.Status)
	assert.Equal(t, 100, last.Percent)

	snap := h.m.Snapshot()
	assert.Equal(t, domain.StepUpload, snap.Step)
	assert.Equal(t, "catalog.pdf", snap.FileName)
	assert.Equal(t, []string{"a", "b", "c"}, snap.SelectedIDs)

	h.m.Close()
	require.Len(t, h.history.records, 1)
	rec := h.history.records[0]
	assert.Equal(t, snap.ID, rec.SessionID)
	assert.Equal(t, "pdf", rec.FileType)
	assert.Equal(t, int64(len(catalogDoc.Data)), rec.FileSize)
	assert.Equal(t, domain.UploadStatusCompleted, rec.Status)
	assert.Equal(t, 3, rec.ProductsExtracted)
}

func TestMachine_UploadFailure(t *testing.T) {
	h := newHarness(t)
	h.pipeline.result = &extract.Result{Status: extract.StatusFailed, Reason: "boom"}
	h.pipeline.err = domain.ExtractionError("boom", nil)

	_, err := h.m.Upload(context.Background(), catalogDoc, nil)
	require.Error(t, err)

	snap := h.m.Snapshot()
	assert.Empty(t, snap.Products)
	assert.Equal(t, extract.StatusFailed, snap.Status)

	h.m.Close()
	require.Len(t, h.history.records, 1)
	assert.Equal(t, domain.UploadStatusFailed, h.history.records[0].Status)
}

func TestMachine_HistoryFailureIsNotFatal(t *testing.T) {
	h := newHarness(t)
	h.history.err = errors.New("db down")
	h.upload(t)
	h.m.Close()
	assert.Len(t, h.m.Snapshot().Products, 3)
}

func TestMachine_CompleteBeforeReviewCommitsSelection(t *testing.T) {
	h := newHarness(t)
	h.upload(t)
	require.NoError(t, h.m.Deselect("b"))

	require.NoError(t, h.m.GoTo(context.Background(), domain.StepComplete))

	snap := h.m.Snapshot()
	assert.Equal(t, domain.StepComplete, snap.Step)
	assert.Equal(t, 2, snap.Committed)
	require.Len(t, h.store.calls, 1)
	assert.Equal(t, "Kimchi", h.store.calls[0][0].Name)
	assert.Equal(t, "Barley Tea", h.store.calls[0][1].Name)
	assert.Empty(t, h.reviews, "review was skipped")
}

func TestMachine_ReenteringCompleteCommitsAgain(t *testing.T) {
	h := newHarness(t)
	h.upload(t)
	ctx := context.Background()

	require.NoError(t, h.m.GoTo(ctx, domain.StepReview))
	require.NoError(t, h.m.GoTo(ctx, domain.StepComplete))
	require.NoError(t, h.m.GoTo(ctx, domain.StepComplete))

	assert.Len(t, h.store.calls, 2)
	assert.Equal(t, 2, h.m.Snapshot().CommitCount)
}

func TestMachine_CommitFailureStaysInStep(t *testing.T) {
	h := newHarness(t)
	h.upload(t)
	h.store.err = errors.New("500")

	err := h.m.GoTo(context.Background(), domain.StepComplete)
	assert.True(t, domain.IsType(err, domain.ErrorTypeCommit))
	assert.Equal(t, domain.StepUpload, h.m.Step())
}

func TestMachine_BackwardTransitions(t *testing.T) {
	h := newHarness(t)
	h.upload(t)
	ctx := context.Background()

	require.NoError(t, h.m.GoTo(ctx, domain.StepComplete))
	err := h.m.GoTo(ctx, domain.StepReview)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	assert.Equal(t, domain.StepComplete, h.m.Step())

	assert.Error(t, h.m.GoTo(ctx, domain.WorkflowStep(9)))
}

func TestMachine_GoToUploadStartsNewSession(t *testing.T) {
	h := newHarness(t)
	h.upload(t)
	ctx := context.Background()
	require.NoError(t, h.m.GoTo(ctx, domain.StepReview))
	before := h.m.SessionID()

	require.NoError(t, h.m.GoTo(ctx, domain.StepUpload))

	snap := h.m.Snapshot()
	assert.NotEqual(t, before, snap.ID)
	assert.Equal(t, domain.StepUpload, snap.Step)
	assert.Empty(t, snap.Products)
	assert.Empty(t, snap.SelectedIDs)
	assert.Equal(t, 1, h.pipeline.calls, "reset does not rerun the pipeline")

	// Upload from Upload also resets.
	again := h.m.SessionID()
	require.NoError(t, h.m.GoTo(ctx, domain.StepUpload))
	assert.NotEqual(t, again, h.m.SessionID())
}

func TestMachine_ReviewRefreshesAndNotifies(t *testing.T) {
	h := newHarness(t)
	h.upload(t)

	require.NoError(t, h.m.GoTo(context.Background(), domain.StepReview))

	require.Len(t, h.reviews, 1)
	snap := h.reviews[0]
	assert.Equal(t, domain.StepReview, snap.Step)
	require.Len(t, snap.Products, 3)
	assert.Equal(t, "produce", snap.Products[0].CategoryIcon)
	assert.Equal(t, "sauce", snap.Products[1].CategoryIcon)
	assert.Equal(t, 1, h.pipeline.calls)
}

func TestMachine_MatchPricesOnlyInUpload(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	prices := domain.Document{FileName: "prices.xlsx", Data: []byte("x")}

	_, err := h.m.MatchPrices(ctx, prices)
	assert.True(t, domain.IsType(err, domain.ErrorTypeValidation), "nothing to match yet")

	h.upload(t)
	sum, err := h.m.MatchPrices(ctx, prices)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Matched)
	assert.Equal(t, 3, sum.Total)

	snap := h.m.Snapshot()
	assert.Equal(t, "5.50", *snap.Products[1].UnitPrice)
	assert.Equal(t, "12.00", *snap.Products[0].UnitPrice)
	assert.Equal(t, []string{"a", "b", "c"}, snap.SelectedIDs, "selection survives matching")

	require.NoError(t, h.m.GoTo(ctx, domain.StepReview))
	_, err = h.m.MatchPrices(ctx, prices)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	_, err = h.m.Upload(ctx, catalogDoc, nil)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
}

func TestMachine_EditProduct(t *testing.T) {
	h := newHarness(t)
	h.upload(t)

	price := "15.00"
	blank := ""
	edited, err := h.m.EditProduct("a", ProductEdit{UnitPrice: &price, Brand: &blank})
	require.NoError(t, err)
	assert.Equal(t, "15.00", *edited.UnitPrice)
	assert.Nil(t, edited.Brand)
	assert.Contains(t, edited.FormattedPrice, "15.00")

	_, err = h.m.EditProduct("zzz", ProductEdit{UnitPrice: &price})
	assert.ErrorIs(t, err, domain.ErrProductNotFound)

	_, err = h.m.EditProduct("a", ProductEdit{ProductName: &blank})
	assert.True(t, domain.IsType(err, domain.ErrorTypeValidation))
}

func TestMachine_Selection(t *testing.T) {
	h := newHarness(t)
	h.upload(t)

	require.NoError(t, h.m.Deselect())
	assert.Empty(t, h.m.Snapshot().SelectedIDs)

	require.NoError(t, h.m.Select("c", "a"))
	assert.Equal(t, []string{"a", "c"}, h.m.Snapshot().SelectedIDs, "selection follows sequence order")

	assert.ErrorIs(t, h.m.Select("a", "nope"), domain.ErrProductNotFound)

	require.NoError(t, h.m.SelectAll())
	assert.Len(t, h.m.Snapshot().SelectedIDs, 3)

	require.NoError(t, h.m.GoTo(context.Background(), domain.StepComplete))
	assert.Error(t, h.m.Deselect("a"), "complete sessions are read-only")
}

func TestMachine_SetSelection(t *testing.T) {
	h := newHarness(t)
	h.upload(t)

	require.NoError(t, h.m.SetSelection("b"))
	assert.Equal(t, []string{"b"}, h.m.Snapshot().SelectedIDs)

	assert.ErrorIs(t, h.m.SetSelection("a", "missing"), domain.ErrProductNotFound)
	assert.Equal(t, []string{"b"}, h.m.Snapshot().SelectedIDs, "failed call leaves selection unchanged")

	require.NoError(t, h.m.SetSelection())
	assert.Empty(t, h.m.Snapshot().SelectedIDs)
}

func TestMachine_SnapshotIsACopy(t *testing.T) {
	h := newHarness(t)
	h.upload(t)

	snap := h.m.Snapshot()
	snap.Products[0].ProductName = "mutated"
	assert.Equal(t, "Kimchi", h.m.Snapshot().Products[0].ProductName)
}

func TestMachine_UploadAsJob(t *testing.T) {
	status := &fakeStatus{stages: []domain.JobStage{
		domain.JobStageUploading, domain.JobStageExtracting, domain.JobStageComplete,
	}}
	poller, err := jobs.NewPoller(status, nil, jobs.Options{Interval: time.Millisecond, MaxWait: time.Second}, observability.NopLogger())
	require.NoError(t, err)

	s := domain.StringPtr
	jobProducts := []*domain.ExtractedProduct{
		{ProductName: "Kimchi", Brand: s("Jongga")},
		{ProductName: "kimchi", Brand: s("JONGGA")},
		{ProductName: "Tofu"},
	}
	history := &fakeHistory{}
	m := NewMachine(Deps{
		Pipeline: &fakePipeline{},
		Jobs:     &fakeJobs{jobID: "job-42", products: jobProducts},
		Poller:   poller,
		History:  history,
	})

	var steps []int
	job, err := m.UploadAsJob(context.Background(), catalogDoc, func(step int, _ *domain.Job) {
		steps = append(steps, step)
	})
	require.NoError(t, err)
	m.Close()

	assert.Equal(t, domain.JobStageComplete, job.Stage)
	assert.Equal(t, []int{0, 2, 4}, steps)

	snap := m.Snapshot()
	assert.Equal(t, "job-42", snap.JobID)
	require.Len(t, snap.Products, 2, "job products are deduplicated")
	for _, p := range snap.Products {
		assert.NotEmpty(t, p.ID)
	}
	require.Len(t, history.records, 1)
	assert.Equal(t, 2, history.records[0].ProductsExtracted)
}

func TestMachine_UploadAsJobNotConfigured(t *testing.T) {
	m := NewMachine(Deps{Pipeline: &fakePipeline{}})
	_, err := m.UploadAsJob(context.Background(), catalogDoc, nil)
	assert.True(t, domain.IsType(err, domain.ErrorTypeConfig))
}

func TestMachine_RejectedUploadLeavesSessionUnchanged(t *testing.T) {
	h := newHarness(t)
	h.upload(t)
	require.NoError(t, h.m.Deselect("b"))
	before := h.m.Snapshot()

	h.pipeline.result = &extract.Result{Status: extract.StatusFailed, Reason: "unsupported"}
	h.pipeline.err = domain.ValidationError(`unsupported file type "txt"`, nil)

	_, err := h.m.Upload(context.Background(), domain.Document{FileName: "notes.txt", Data: []byte("hi")}, nil)
	require.Error(t, err)
	assert.True(t, domain.IsType(err, domain.ErrorTypeValidation))

	after := h.m.Snapshot()
	assert.Equal(t, "catalog.pdf", after.FileName)
	assert.Equal(t, extract.StatusSuccess, after.Status)
	assert.Len(t, after.Products, 3)
	assert.Equal(t, before.SelectedIDs, after.SelectedIDs)

	h.m.Close()
	assert.Len(t, h.history.records, 1, "rejected documents are not recorded")

	// The session is released for the next attempt.
	h.pipeline.err = nil
	h.pipeline.result = &extract.Result{Status: extract.StatusSuccess, Products: sampleProducts()}
	h.upload(t)
}

func TestMachine_UploadAsJobRejectsInvalidDocument(t *testing.T) {
	submitter := &fakeJobs{jobID: "job-1"}
	history := &fakeHistory{}
	m := NewMachine(Deps{
		Pipeline:  &fakePipeline{},
		Validator: extensionValidator{},
		Jobs:      submitter,
		Poller:    newJobPoller(t, &fakeStatus{stages: []domain.JobStage{domain.JobStageComplete}}),
		History:   history,
	})

	_, err := m.UploadAsJob(context.Background(), domain.Document{FileName: "malware.exe", Data: make([]byte, 1024)}, nil)
	require.Error(t, err)
	assert.True(t, domain.IsType(err, domain.ErrorTypeValidation))

	m.Close()
	assert.Empty(t, submitter.submitted)
	assert.Empty(t, history.records)
	assert.Empty(t, m.Snapshot().JobID)
	assert.Empty(t, m.Snapshot().FileName)

	_, err = m.UploadAsJob(context.Background(), catalogDoc, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"catalog.pdf"}, submitter.submitted)
}

func TestMachine_UploadAsJobErrorStage(t *testing.T) {
	h := newHarness(t)
	h.upload(t)

	status := &fakeStatus{
		stages: []domain.JobStage{domain.JobStageParsing, domain.JobStageError},
		errors: []string{"page 2 unreadable", "page 5 unreadable"},
	}
	h.m.deps.Jobs = &fakeJobs{jobID: "job-9"}
	h.m.deps.Poller = newJobPoller(t, status)

	job, err := h.m.UploadAsJob(context.Background(), catalogDoc, nil)
	require.Error(t, err)

	var jobErr *domain.JobError
	require.ErrorAs(t, err, &jobErr)
	assert.Equal(t, "job-9", jobErr.JobID)
	assert.Equal(t, "page 2 unreadable", jobErr.Message)
	require.NotNil(t, job)
	assert.Equal(t, domain.JobStageError, job.Stage)

	snap := h.m.Snapshot()
	assert.Len(t, snap.Products, 3, "products from the earlier upload are kept")
	assert.Equal(t, "job-9", snap.JobID)

	h.m.Close()
	require.Len(t, h.history.records, 2)
	assert.Equal(t, domain.UploadStatusFailed, h.history.records[1].Status)
	assert.Zero(t, h.history.records[1].ProductsExtracted)
}

func TestMachine_CommitRunsWithoutHoldingLock(t *testing.T) {
	h := newHarness(t)
	h.upload(t)

	store := &blockingStore{started: make(chan struct{}), release: make(chan struct{})}
	h.m.deps.Committer = NewCommitter(store, observability.NopLogger(), nil)

	done := make(chan error, 1)
	go func() { done <- h.m.GoTo(context.Background(), domain.StepComplete) }()
	<-store.started

	snap := h.m.Snapshot()
	assert.Equal(t, domain.StepUpload, snap.Step, "step changes only after the commit returns")
	assert.True(t, domain.IsType(h.m.Deselect("a"), domain.ErrorTypeWorkflow), "edits wait for the commit")
	assert.True(t, domain.IsType(h.m.GoTo(context.Background(), domain.StepComplete), domain.ErrorTypeWorkflow))

	close(store.release)
	require.NoError(t, <-done)

	snap = h.m.Snapshot()
	assert.Equal(t, domain.StepComplete, snap.Step)
	assert.Equal(t, 3, snap.Committed)
}
