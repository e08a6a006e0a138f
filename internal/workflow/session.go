package workflow

import (
	"time"

	"github.com/google/uuid"

	"github.com/jungwonlee1988/wedealize-sub000/internal/domain"
	"github.com/jungwonlee1988/wedealize-sub000/internal/extract"
	"github.com/jungwonlee1988/wedealize-sub000/internal/pricing"
)

// Session is the state of one upload-review-commit cycle. It is owned by a
// Machine and only touched with the Machine's lock held.
type Session struct {
	ID       string
	Step     domain.WorkflowStep
	JobID    string
	FileName string

	Products []*domain.ExtractedProduct
	selected map[string]struct{}

	Status  extract.Status
	Source  domain.DataSource
	Reason  string
	Pricing *pricing.Summary

	Committed   int
	CommitCount int

	busy bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

func newSession() *Session {
	now := time.Now().UTC()
	return &Session{
		ID:        uuid.NewString(),
		Step:      domain.StepUpload,
		selected:  make(map[string]struct{}),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// setProducts replaces the product sequence and selects every product.
func (s *Session) setProducts(products []*domain.ExtractedProduct) {
	s.Products = products
	s.selected = make(map[string]struct{}, len(products))
	for _, p := range products {
		s.selected[p.ID] = struct{}{}
	}
}

func (s *Session) product(id string) *domain.ExtractedProduct {
	for _, p := range s.Products {
		if p.ID == id {
			return p
		}
	}
	return nil
}

// selectedProducts returns the selected products in sequence order.
func (s *Session) selectedProducts() []*domain.ExtractedProduct {
	out := make([]*domain.ExtractedProduct, 0, len(s.selected))
	for _, p := range s.Products {
		if _, ok := s.selected[p.ID]; ok {
			out = append(out, p)
		}
	}
	return out
}

func (s *Session) touch() {
	s.UpdatedAt = time.Now().UTC()
}

// Snapshot is a copy of session state that is safe to hand out.
type Snapshot struct {
	ID          string                     `json:"sessionId"`
	Step        domain.WorkflowStep        `json:"step"`
	StepName    string                     `json:"stepName"`
	JobID       string                     `json:"jobId,omitempty"`
	FileName    string                     `json:"fileName,omitempty"`
	Status      extract.Status             `json:"status,omitempty"`
	Source      domain.DataSource          `json:"source,omitempty"`
	Reason      string                     `json:"reason,omitempty"`
	Products    []*domain.ExtractedProduct `json:"products"`
	SelectedIDs []string                   `json:"selectedIds"`
	Pricing     *pricing.Summary           `json:"pricing,omitempty"`
	Committed   int                        `json:"committed"`
	CommitCount int                        `json:"commitCount"`
	CreatedAt   time.Time                  `json:"createdAt"`
	UpdatedAt   time.Time                  `json:"updatedAt"`
}

func (s *Session) snapshot() Snapshot {
	products := make([]*domain.ExtractedProduct, len(s.Products))
	for i, p := range s.Products {
		products[i] = p.Clone()
	}

	selected := make([]string, 0, len(s.selected))
	for _, p := range s.selectedProducts() {
		selected = append(selected, p.ID)
	}

	var summary *pricing.Summary
	if s.Pricing != nil {
		cp := *s.Pricing
		summary = &cp
	}

	return Snapshot{
		ID:          s.ID,
		Step:        s.Step,
		StepName:    s.Step.String(),
		JobID:       s.JobID,
		FileName:    s.FileName,
		Status:      s.Status,
		Source:      s.Source,
		Reason:      s.Reason,
		Products:    products,
		SelectedIDs: selected,
		Pricing:     summary,
		Committed:   s.Committed,
		CommitCount: s.CommitCount,
		CreatedAt:   s.CreatedAt,
		UpdatedAt:   s.UpdatedAt,
	}
}
