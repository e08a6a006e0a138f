package workflow

import (
	"context"
	"strings"

	"github.com/jungwonlee1988/wedealize-sub000/internal/domain"
	"github.com/jungwonlee1988/wedealize-sub000/internal/observability"
)

// Committer turns selected products into a bulk-create request.
type Committer struct {
	store   domain.CatalogStore
	logger  *observability.Logger
	metrics *observability.Metrics
}

// NewCommitter creates a Committer. metrics may be nil.
func NewCommitter(store domain.CatalogStore, logger *observability.Logger, metrics *observability.Metrics) *Committer {
	return &Committer{
		store:   store,
		logger:  logger.WithComponent("committer"),
		metrics: metrics,
	}
}

// Commit sends products to the catalog store in one request and returns the
// number created. Any failure fails the whole request.
func (c *Committer) Commit(ctx context.Context, products []*domain.ExtractedProduct) (int, error) {
	if len(products) == 0 {
		return 0, domain.ValidationError("no products selected", nil)
	}

	items := make([]domain.CommitItem, len(products))
	for i, p := range products {
		items[i] = ToCommitItem(p)
	}

	logger := c.logger.WithContext(ctx).WithOperation("bulk_create")

	count, err := c.store.BulkCreate(ctx, items)
	c.metrics.Commit(err == nil)
	if err != nil {
		logger.Error().Err(err).Int("items", len(items)).Msg("Bulk create failed")
		return 0, domain.CommitError("bulk create failed", err)
	}

	logger.Info().Int("items", len(items)).Int("created", count).Msg("Products committed")
	return count, nil
}

// ToCommitItem maps an extracted product onto a catalog record.
func ToCommitItem(p *domain.ExtractedProduct) domain.CommitItem {
	item := domain.CommitItem{
		Name:           strings.TrimSpace(p.ProductName),
		Category:       trimmed(p.Category),
		Description:    describe(p),
		Certifications: append([]string(nil), p.Certifications...),
	}

	var prices []float64
	for _, s := range []*string{p.UnitPrice, p.CasePrice} {
		if s == nil {
			continue
		}
		if v, ok := domain.ParsePrice(*s); ok {
			prices = append(prices, v)
		}
	}
	if len(prices) > 0 {
		lo, hi := prices[0], prices[0]
		for _, v := range prices[1:] {
			lo = min(lo, v)
			hi = max(hi, v)
		}
		item.MinPrice = &lo
		item.MaxPrice = &hi
	}

	return item
}

// describe joins the product attributes that have no dedicated catalog field.
func describe(p *domain.ExtractedProduct) *string {
	var parts []string
	add := func(label string, v *string) {
		if v := trimmed(v); v != nil {
			parts = append(parts, label+": "+*v)
		}
	}
	add("Brand", p.Brand)
	add("Unit", p.UnitSpec)
	add("Shelf life", p.ShelfLife)
	add("Currency", p.Currency)

	if len(parts) == 0 {
		return nil
	}
	d := strings.Join(parts, " | ")
	return &d
}

func trimmed(s *string) *string {
	if s == nil {
		return nil
	}
	return domain.StringPtr(strings.TrimSpace(*s))
}
