// Package extract runs batch extraction over rendered catalog pages and
// merges the results into one deduplicated product sequence.
package extract

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"time"

	"github.com/google/uuid"

	"github.com/jungwonlee1988/wedealize-sub000/internal/domain"
	"github.com/jungwonlee1988/wedealize-sub000/internal/observability"
)

// Progress bands. Rendering owns [0, ExtractStart); extraction batches fill
// [ExtractStart, ExtractEnd]; 100 is reserved for the terminal notification.
const (
	ExtractStart = 30
	ExtractEnd   = 95
)

// DefaultCallTimeout bounds a single extraction call.
const DefaultCallTimeout = 120 * time.Second

// Status is the outcome of an extraction run.
type Status string

const (
	StatusSuccess  Status = "success"
	StatusDegraded Status = "degraded"
	StatusFailed   Status = "failed"
)

// Result is the outcome of one extraction run. Degraded results carry the
// fallback catalog and the reason the live path failed.
type Result struct {
	Status   Status                     `json:"status"`
	Reason   string                     `json:"reason,omitempty"`
	Products []*domain.ExtractedProduct `json:"products"`
	Source   domain.DataSource          `json:"source,omitempty"`
	Pages    int                        `json:"pages"`
	Batches  int                        `json:"batches"`
}

// UploadStatus maps the result onto the upload history status.
func (r *Result) UploadStatus() domain.UploadStatus {
	switch r.Status {
	case StatusSuccess:
		return domain.UploadStatusCompleted
	case StatusDegraded:
		return domain.UploadStatusDegraded
	default:
		return domain.UploadStatusFailed
	}
}

// PageRenderer produces the pages of a document in order.
type PageRenderer interface {
	Render(ctx context.Context, doc domain.Document, sink domain.ProgressSink) iter.Seq2[domain.SourcePage, error]
}

// DocumentValidator rejects unusable documents before any rendering.
type DocumentValidator interface {
	Validate(doc domain.Document) (pages int, err error)
}

// Options configures an Orchestrator.
type Options struct {
	BatchSize       int
	CallTimeout     time.Duration
	FallbackEnabled bool
}

// Orchestrator renders a document, sends its pages to the extractor in
// sequential batches, and deduplicates the combined output.
type Orchestrator struct {
	validator DocumentValidator
	renderer  PageRenderer
	extractor domain.Extractor
	opts      Options
	logger    *observability.Logger
	metrics   *observability.Metrics
}

// NewOrchestrator creates an Orchestrator. validator and metrics may be nil.
func NewOrchestrator(validator DocumentValidator, renderer PageRenderer, extractor domain.Extractor,
	opts Options, logger *observability.Logger, metrics *observability.Metrics) *Orchestrator {
	if opts.BatchSize < 1 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = DefaultCallTimeout
	}
	return &Orchestrator{
		validator: validator,
		renderer:  renderer,
		extractor: extractor,
		opts:      opts,
		logger:    logger.WithComponent("orchestrator"),
		metrics:   metrics,
	}
}

// Run extracts products from doc. Progress is reported to sink, which may be nil.
//
// A validation failure or cancelled context returns a Failed result and an
// error. A render or extraction failure returns a Degraded result with the
// fallback catalog when fallback is enabled, and a Failed result and error
// otherwise.
func (o *Orchestrator) Run(ctx context.Context, doc domain.Document, sink domain.ProgressSink) (*Result, error) {
	if sink == nil {
		sink = domain.NopSink
	}
	logger := o.logger.WithContext(ctx).With().Str("file", doc.FileName).Logger()
	start := time.Now()

	if o.validator != nil {
		if _, err := o.validator.Validate(doc); err != nil {
			logger.Warn().Err(err).Msg("Document rejected")
			return &Result{Status: StatusFailed, Reason: err.Error()}, err
		}
	}

	var pages []domain.SourcePage
	for page, err := range o.renderer.Render(ctx, doc, sink) {
		if err != nil {
			if ctx.Err() != nil {
				return o.fail(logger, fmt.Errorf("render cancelled: %w", ctx.Err()))
			}
			return o.degrade(logger, sink, len(pages), 0, fmt.Sprintf("render failed: %v", err), err)
		}
		pages = append(pages, page)
	}

	batches := Partition(pages, o.opts.BatchSize)
	total := len(batches)
	logger.Info().Int("pages", len(pages)).Int("batches", total).Msg("Extraction started")

	var collected []*domain.ExtractedProduct
	for i, batch := range batches {
		if err := ctx.Err(); err != nil {
			return o.fail(logger, fmt.Errorf("extraction cancelled: %w", err))
		}

		products, err := o.extractBatch(ctx, domain.ExtractionRequest{
			Images:       batch,
			FileName:     doc.FileName,
			BatchIndex:   i,
			TotalBatches: total,
		})
		if err != nil {
			if ctx.Err() != nil {
				return o.fail(logger, fmt.Errorf("extraction cancelled: %w", ctx.Err()))
			}
			reason := fmt.Sprintf("batch %d/%d failed: %v", i+1, total, err)
			return o.degrade(logger, sink, len(pages), total, reason, err)
		}

		logger.Debug().Int("batch", i+1).Int("products", len(products)).Msg("Batch extracted")
		collected = append(collected, products...)

		sink.Report(domain.Progress{
			Phase:   domain.PhaseExtracting,
			Current: i + 1,
			Total:   total,
			Percent: ExtractStart + (ExtractEnd-ExtractStart)*(i+1)/total,
		})
	}

	products := Normalize(collected)

	o.metrics.ProductsExtracted(len(products))
	sink.Report(domain.Progress{
		Phase:   domain.PhaseComplete,
		Current: len(products),
		Total:   len(products),
		Percent: 100,
	})

	logger.Info().
		Int("raw", len(collected)).
		Int("products", len(products)).
		Dur("duration", time.Since(start)).
		Msg("Extraction complete")

	return &Result{
		Status:   StatusSuccess,
		Products: products,
		Source:   domain.SourceService,
		Pages:    len(pages),
		Batches:  total,
	}, nil
}

func (o *Orchestrator) extractBatch(ctx context.Context, req domain.ExtractionRequest) ([]*domain.ExtractedProduct, error) {
	callCtx, cancel := context.WithTimeout(ctx, o.opts.CallTimeout)
	defer cancel()

	started := time.Now()
	products, err := o.extractor.ExtractBatch(callCtx, req)
	o.metrics.BatchDone(err == nil, time.Since(started))

	if err == nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) {
		err = callCtx.Err()
	}
	return products, err
}

func (o *Orchestrator) degrade(logger *observability.Logger, sink domain.ProgressSink, pages, batches int, reason string, cause error) (*Result, error) {
	if !o.opts.FallbackEnabled {
		return o.fail(logger, domain.ExtractionError(reason, cause))
	}

	products := FallbackProducts()
	o.metrics.Fallback("extraction")
	logger.Warn().Err(cause).Str("reason", reason).Int("products", len(products)).
		Msg("Extraction failed, using fallback catalog")

	sink.Report(domain.Progress{
		Phase:   domain.PhaseComplete,
		Current: len(products),
		Total:   len(products),
		Percent: 100,
	})

	return &Result{
		Status:   StatusDegraded,
		Reason:   reason,
		Products: products,
		Source:   domain.SourceFallback,
		Pages:    pages,
		Batches:  batches,
	}, nil
}

func (o *Orchestrator) fail(logger *observability.Logger, err error) (*Result, error) {
	logger.Error().Err(err).Msg("Extraction failed")
	return &Result{Status: StatusFailed, Reason: err.Error()}, err
}

// Normalize deduplicates products, gives every product a unique id, and
// refreshes display fields. It is applied to products from any source before
// they enter a session.
func Normalize(products []*domain.ExtractedProduct) []*domain.ExtractedProduct {
	out := Deduplicate(products)
	assignIDs(out)
	for _, p := range out {
		p.Refresh()
	}
	return out
}

// assignIDs gives a fresh id to every product whose id is blank or already
// used earlier in the sequence.
func assignIDs(products []*domain.ExtractedProduct) {
	used := make(map[string]struct{}, len(products))
	for _, p := range products {
		if _, dup := used[p.ID]; p.ID == "" || dup {
			p.ID = uuid.NewString()
		}
		used[p.ID] = struct{}{}
	}
}
