package ui

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/jungwonlee1988/wedealize-sub000/internal/domain"
)

// Table displays data in a formatted table on stdout.
func Table(headers []string, rows [][]string) {
	WriteTable(os.Stdout, headers, rows)
}

// WriteTable writes a tab-aligned table to w.
func WriteTable(w io.Writer, headers []string, rows [][]string) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)

	fmt.Fprintln(tw, strings.Join(headers, "\t"))

	separator := make([]string, len(headers))
	for i := range separator {
		separator[i] = strings.Repeat("-", len(headers[i]))
	}
	fmt.Fprintln(tw, strings.Join(separator, "\t"))

	for _, row := range rows {
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}

	_ = tw.Flush()
}

// ProductHeaders are the columns of ProductRows.
var ProductHeaders = []string{"", "ID", "Product", "Brand", "Unit", "Price", "Category"}

// ProductRows renders products as table rows; selected products are
// marked with '*'.
func ProductRows(products []*domain.ExtractedProduct, selected []string) [][]string {
	isSelected := make(map[string]bool, len(selected))
	for _, id := range selected {
		isSelected[id] = true
	}

	out := make([][]string, 0, len(products))
	for _, p := range products {
		mark := " "
		if isSelected[p.ID] {
			mark = "*"
		}
		out = append(out, []string{
			mark,
			shortID(p.ID),
			p.ProductName,
			orDash(p.Brand),
			orDash(p.UnitSpec),
			p.FormattedPrice,
			orDash(p.Category),
		})
	}
	return out
}

// FormatDuration formats a duration in a human-readable way.
func FormatDuration(d time.Duration) string {
	d = d.Round(time.Second)

	minutes := d / time.Minute
	d -= minutes * time.Minute
	seconds := d / time.Second

	if minutes > 0 {
		return fmt.Sprintf("%dm %ds", minutes, seconds)
	}
	return fmt.Sprintf("%ds", seconds)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func orDash(s *string) string {
	if s == nil || strings.TrimSpace(*s) == "" {
		return "-"
	}
	return *s
}
