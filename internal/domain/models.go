package domain

import (
	"strings"
	"time"
)

// Document is a supplier-submitted file held in memory for one pipeline run.
type Document struct {
	FileName string
	Data     []byte
}

// Size returns the document size in bytes.
func (d Document) Size() int64 {
	return int64(len(d.Data))
}

// FileType returns the lowercased extension without the dot, e.g. "pdf".
func (d Document) FileType() string {
	idx := strings.LastIndex(d.FileName, ".")
	if idx < 0 || idx == len(d.FileName)-1 {
		return ""
	}
	return strings.ToLower(d.FileName[idx+1:])
}

// SourcePage is one rendered page of a source document.
type SourcePage struct {
	PageNumber int    `json:"pageNumber"`
	Data       []byte `json:"-"`
	MIMEType   string `json:"mimeType"`
	Width      int    `json:"width"`
	Height     int    `json:"height"`
}

// ExtractedProduct is a candidate catalog record produced by extraction.
type ExtractedProduct struct {
	ID             string   `json:"id"`
	ProductName    string   `json:"productName"`
	Brand          *string  `json:"brand,omitempty"`
	UnitSpec       *string  `json:"unitSpec,omitempty"`
	Category       *string  `json:"category,omitempty"`
	UnitPrice      *string  `json:"unitPrice"`
	CasePrice      *string  `json:"casePrice,omitempty"`
	Currency       *string  `json:"currency,omitempty"`
	PriceBasis     *string  `json:"priceBasis,omitempty"`
	ShelfLife      *string  `json:"shelfLife,omitempty"`
	Certifications []string `json:"certifications"`

	// Derived display fields, recomputed by Refresh.
	FormattedPrice string `json:"formattedPrice"`
	CategoryIcon   string `json:"categoryIcon"`
}

// CompositeKey identifies the product entity for deduplication.
func (p *ExtractedProduct) CompositeKey() string {
	return normalizeKeyPart(p.ProductName) + "|" +
		normalizeKeyPart(deref(p.Brand)) + "|" +
		normalizeKeyPart(deref(p.UnitSpec))
}

// Refresh recomputes the derived display fields.
func (p *ExtractedProduct) Refresh() {
	p.FormattedPrice = FormatPrice(p.UnitPrice, p.Currency, p.PriceBasis)
	p.CategoryIcon = CategoryIconKey(deref(p.Category))
}

// Clone returns a deep copy, used for snapshots handed to observers.
func (p *ExtractedProduct) Clone() *ExtractedProduct {
	c := *p
	c.Brand = cloneStr(p.Brand)
	c.UnitSpec = cloneStr(p.UnitSpec)
	c.Category = cloneStr(p.Category)
	c.UnitPrice = cloneStr(p.UnitPrice)
	c.CasePrice = cloneStr(p.CasePrice)
	c.Currency = cloneStr(p.Currency)
	c.PriceBasis = cloneStr(p.PriceBasis)
	c.ShelfLife = cloneStr(p.ShelfLife)
	c.Certifications = append([]string(nil), p.Certifications...)
	return &c
}

// PriceMatch is a price found for an existing product id.
type PriceMatch struct {
	ID    string `json:"id"`
	Price string `json:"price"`
}

// JobStage is a backend processing stage of a server-tracked job.
type JobStage string

const (
	JobStageUploading  JobStage = "uploading"
	JobStageParsing    JobStage = "parsing"
	JobStageExtracting JobStage = "extracting"
	JobStageValidating JobStage = "validating"
	JobStageComplete   JobStage = "complete"
	JobStageError      JobStage = "error"
)

// IsTerminal reports whether no further stage changes will happen.
func (s JobStage) IsTerminal() bool {
	return s == JobStageComplete || s == JobStageError
}

// stageSteps maps backend stages onto the workflow progress steps.
var stageSteps = map[JobStage]int{
	JobStageUploading:  0,
	JobStageParsing:    1,
	JobStageExtracting: 2,
	JobStageValidating: 3,
	JobStageComplete:   4,
}

// ProgressStep returns the progress step for a stage; ok is false for
// stages with no step (error and unknown values).
func (s JobStage) ProgressStep() (step int, ok bool) {
	step, ok = stageSteps[s]
	return step, ok
}

// Job is the server-side view of an asynchronous extraction job.
type Job struct {
	JobID             string   `json:"jobId"`
	Stage             JobStage `json:"status"`
	ProductsExtracted int      `json:"products_extracted,omitempty"`
	Errors            []string `json:"errors,omitempty"`
}

// WorkflowStep is one stage of the upload session.
type WorkflowStep int

const (
	StepUpload WorkflowStep = iota + 1
	StepReview
	StepComplete
)

func (s WorkflowStep) String() string {
	switch s {
	case StepUpload:
		return "upload"
	case StepReview:
		return "review"
	case StepComplete:
		return "complete"
	default:
		return "unknown"
	}
}

// ParseStep accepts a step number ("2") or name ("review").
func ParseStep(v string) (WorkflowStep, bool) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "upload":
		return StepUpload, true
	case "2", "review":
		return StepReview, true
	case "3", "complete":
		return StepComplete, true
	}
	return 0, false
}

// Valid reports whether s is a known step.
func (s WorkflowStep) Valid() bool {
	return s >= StepUpload && s <= StepComplete
}

// ProgressPhase names the pipeline phase of a progress notification.
type ProgressPhase string

const (
	PhaseRendering  ProgressPhase = "rendering"
	PhaseExtracting ProgressPhase = "extracting"
	PhaseComplete   ProgressPhase = "complete"
)

// Progress is one pipeline progress notification.
type Progress struct {
	Phase   ProgressPhase `json:"phase"`
	Current int           `json:"current"`
	Total   int           `json:"total"`
	Percent int           `json:"percent"`
}

// DataSource tells whether results came from the live service or canned data.
type DataSource string

const (
	SourceService  DataSource = "service"
	SourceFallback DataSource = "fallback"
)

// ExtractionRequest is one batch call to the extraction service.
type ExtractionRequest struct {
	Images       []SourcePage
	FileName     string
	BatchIndex   int
	TotalBatches int
}

// PriceListRequest asks the price matcher to match a price list against products.
type PriceListRequest struct {
	FileName string
	Data     []byte
	Products []*ExtractedProduct
}

// CommitItem is one record of a bulk-create request to the catalog store.
type CommitItem struct {
	Name           string   `json:"name"`
	SKU            *string  `json:"sku,omitempty"`
	Category       *string  `json:"category,omitempty"`
	Description    *string  `json:"description,omitempty"`
	MinPrice       *float64 `json:"minPrice,omitempty"`
	MaxPrice       *float64 `json:"maxPrice,omitempty"`
	Certifications []string `json:"certifications,omitempty"`
}

// UploadStatus is the final status of an upload recorded in history.
type UploadStatus string

const (
	UploadStatusCompleted UploadStatus = "completed"
	UploadStatusDegraded  UploadStatus = "degraded"
	UploadStatusFailed    UploadStatus = "failed"
)

// UploadRecord is an audit entry describing one processed upload.
type UploadRecord struct {
	ID                string       `json:"id,omitempty"`
	SessionID         string       `json:"sessionId,omitempty"`
	FileName          string       `json:"fileName"`
	FileType          string       `json:"fileType"`
	FileSize          int64        `json:"fileSize"`
	Status            UploadStatus `json:"status"`
	ProductsExtracted int          `json:"productsExtracted"`
	CreatedAt         time.Time    `json:"createdAt"`
}

func normalizeKeyPart(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func cloneStr(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

// StringPtr returns a pointer to s, or nil when s is blank.
func StringPtr(s string) *string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return &s
}
