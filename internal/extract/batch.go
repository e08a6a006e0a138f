package extract

import "github.com/jungwonlee1988/wedealize-sub000/internal/domain"

// DefaultBatchSize is the number of pages sent per extraction call.
const DefaultBatchSize = 5

// Partition splits pages into consecutive batches of size pages; the last
// batch holds the remainder. Order is preserved and no page is repeated.
func Partition(pages []domain.SourcePage, size int) [][]domain.SourcePage {
	if size < 1 {
		size = DefaultBatchSize
	}
	if len(pages) == 0 {
		return nil
	}

	batches := make([][]domain.SourcePage, 0, (len(pages)+size-1)/size)
	for start := 0; start < len(pages); start += size {
		end := min(start+size, len(pages))
		batches = append(batches, pages[start:end:end])
	}
	return batches
}
