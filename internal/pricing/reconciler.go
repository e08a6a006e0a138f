// Package pricing overlays prices from a supplier price list onto extracted
// products.
package pricing

import (
	"context"
	"fmt"
	"time"

	"github.com/jungwonlee1988/wedealize-sub000/internal/domain"
	"github.com/jungwonlee1988/wedealize-sub000/internal/observability"
)

// Summary reports the outcome of one reconciliation pass.
type Summary struct {
	Matched  int               `json:"matched"`
	Total    int               `json:"total"`
	Degraded bool              `json:"degraded"`
	Reason   string            `json:"reason,omitempty"`
	Source   domain.DataSource `json:"source"`
}

// Options configures a Reconciler.
type Options struct {
	CallTimeout     time.Duration
	FallbackEnabled bool
}

// Reconciler sends a price list to the price matcher and applies the result.
type Reconciler struct {
	matcher domain.PriceMatcher
	opts    Options
	logger  *observability.Logger
	metrics *observability.Metrics
}

// NewReconciler creates a Reconciler. metrics may be nil.
func NewReconciler(matcher domain.PriceMatcher, opts Options, logger *observability.Logger, metrics *observability.Metrics) *Reconciler {
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = 60 * time.Second
	}
	return &Reconciler{
		matcher: matcher,
		opts:    opts,
		logger:  logger.WithComponent("pricing"),
		metrics: metrics,
	}
}

// Reconcile matches priceList against products and overwrites the unit price
// of every matched product in place. When the matcher fails and fallback is
// enabled, the demo match table is applied instead and the summary is marked
// degraded.
func (r *Reconciler) Reconcile(ctx context.Context, priceList domain.Document, products []*domain.ExtractedProduct) (*Summary, error) {
	if len(priceList.Data) == 0 {
		return nil, domain.ValidationError("price list file is empty", nil)
	}

	logger := r.logger.WithContext(ctx).WithOperation("reconcile").With().Str("file", priceList.FileName).Logger()

	callCtx, cancel := context.WithTimeout(ctx, r.opts.CallTimeout)
	defer cancel()

	matches, err := r.matcher.MatchPrices(callCtx, domain.PriceListRequest{
		FileName: priceList.FileName,
		Data:     priceList.Data,
		Products: products,
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("price matching cancelled: %w", ctx.Err())
		}
		if !r.opts.FallbackEnabled {
			logger.Error().Err(err).Msg("Price matching failed")
			return nil, domain.APIError("price matching failed", err)
		}

		matched := Apply(products, DemoMatches())
		r.metrics.Fallback("pricing")
		logger.Warn().Err(err).Bool("degraded", true).Int("matched", matched).Msg("Price matching failed, applied demo prices")

		return &Summary{
			Matched:  matched,
			Total:    len(products),
			Degraded: true,
			Reason:   err.Error(),
			Source:   domain.SourceFallback,
		}, nil
	}

	matched := Apply(products, matches)
	logger.Info().Int("matches", len(matches)).Int("matched", matched).Int("total", len(products)).
		Msgf("Price list reconciled, %d of %d products priced", matched, len(products))

	return &Summary{
		Matched: matched,
		Total:   len(products),
		Source:  domain.SourceService,
	}, nil
}

// Apply overwrites the unit price of each product whose id appears in
// matches and refreshes its display fields. Later matches for the same id
// win. Ids with no product are ignored. It returns the number of distinct
// products updated.
func Apply(products []*domain.ExtractedProduct, matches []domain.PriceMatch) int {
	byID := make(map[string]*domain.ExtractedProduct, len(products))
	for _, p := range products {
		if p != nil {
			byID[p.ID] = p
		}
	}

	updated := make(map[string]struct{})
	for _, m := range matches {
		p, ok := byID[m.ID]
		if !ok {
			continue
		}
		price := m.Price
		p.UnitPrice = &price
		p.Refresh()
		updated[m.ID] = struct{}{}
	}
	return len(updated)
}

// DemoMatches is the fixed match table used when the price matcher is
// unavailable. It targets the fallback catalog's ids.
func DemoMatches() []domain.PriceMatch {
	return []domain.PriceMatch{
		{ID: "demo-1", Price: "7.90"},
		{ID: "demo-2", Price: "22.50"},
		{ID: "demo-3", Price: "5.80"},
		{ID: "demo-5", Price: "0.85"},
	}
}
