package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/jungwonlee1988/wedealize-sub000/internal/domain"
)

func makePages(n int) []domain.SourcePage {
	pages := make([]domain.SourcePage, n)
	for i := range pages {
		pages[i] = domain.SourcePage{PageNumber: i + 1, MIMEType: "image/jpeg"}
	}
	return pages
}

func TestPartition(t *testing.T) {
	tests := []struct {
		name      string
		pages     int
		size      int
		wantSizes []int
	}{
		{"empty", 0, 5, nil},
		{"single page", 1, 5, []int{1}},
		{"exact multiple", 10, 5, []int{5, 5}},
		{"remainder", 12, 5, []int{5, 5, 2}},
		{"batch of one", 3, 1, []int{1, 1, 1}},
		{"size larger than input", 4, 10, []int{4}},
		{"invalid size uses default", 7, 0, []int{5, 2}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			batches := Partition(makePages(tt.pages), tt.size)

			var sizes []int
			next := 1
			for _, b := range batches {
				sizes = append(sizes, len(b))
				for _, p := range b {
					assert.Equal(t, next, p.PageNumber, "pages stay in order without repeats")
					next++
				}
			}
			assert.Equal(t, tt.wantSizes, sizes)
			assert.Equal(t, tt.pages, next-1)
		})
	}
}

func TestPartition_BatchesDoNotAlias(t *testing.T) {
	batches := Partition(makePages(6), 3)
	batches[0] = append(batches[0], domain.SourcePage{PageNumber: 99})
	assert.Equal(t, 4, batches[1][0].PageNumber)
}
