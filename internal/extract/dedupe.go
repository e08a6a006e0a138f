package extract

import "github.com/jungwonlee1988/wedealize-sub000/internal/domain"

// Deduplicator drops products whose composite key (name, brand, unit spec)
// has already been seen. The first instance of each key wins.
type Deduplicator struct {
	seen map[string]struct{}
}

// NewDeduplicator creates an empty Deduplicator.
func NewDeduplicator() *Deduplicator {
	return &Deduplicator{seen: make(map[string]struct{})}
}

// Add returns the products from in whose key has not been seen, in order,
// and marks their keys as seen.
func (d *Deduplicator) Add(in []*domain.ExtractedProduct) []*domain.ExtractedProduct {
	out := make([]*domain.ExtractedProduct, 0, len(in))
	for _, p := range in {
		if p == nil {
			continue
		}
		key := p.CompositeKey()
		if _, dup := d.seen[key]; dup {
			continue
		}
		d.seen[key] = struct{}{}
		out = append(out, p)
	}
	return out
}

// Deduplicate returns products with later duplicates removed. It does not
// modify its input, and Deduplicate(Deduplicate(x)) equals Deduplicate(x).
func Deduplicate(products []*domain.ExtractedProduct) []*domain.ExtractedProduct {
	return NewDeduplicator().Add(products)
}
