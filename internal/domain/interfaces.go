package domain

import "context"

// Extractor turns one batch of page images into product records.
type Extractor interface {
	ExtractBatch(ctx context.Context, req ExtractionRequest) ([]*ExtractedProduct, error)
}

// PriceMatcher matches a submitted price list against extracted products.
type PriceMatcher interface {
	MatchPrices(ctx context.Context, req PriceListRequest) ([]PriceMatch, error)
}

// JobStatusClient queries the status of a server-tracked job.
type JobStatusClient interface {
	JobStatus(ctx context.Context, jobID string) (*Job, error)
}

// JobSubmitter starts server-tracked extraction jobs and fetches their results.
type JobSubmitter interface {
	SubmitJob(ctx context.Context, doc Document) (jobID string, err error)
	JobProducts(ctx context.Context, jobID string) ([]*ExtractedProduct, error)
}

// CatalogStore is the product catalog that receives committed records.
type CatalogStore interface {
	BulkCreate(ctx context.Context, items []CommitItem) (count int, err error)
}

// UploadHistory records processed uploads for auditing.
type UploadHistory interface {
	RecordUpload(ctx context.Context, rec UploadRecord) error
}

// ProgressSink receives pipeline progress notifications.
type ProgressSink interface {
	Report(p Progress)
}

// ProgressFunc adapts a function to ProgressSink.
type ProgressFunc func(p Progress)

// Report calls f(p).
func (f ProgressFunc) Report(p Progress) { f(p) }

// NopSink discards progress notifications.
var NopSink ProgressSink = ProgressFunc(func(Progress) {})
