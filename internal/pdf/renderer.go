// Package pdf validates uploaded catalog documents and renders their pages
// to JPEG images for the extraction service.
package pdf

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"iter"

	"github.com/disintegration/imaging"
	"github.com/gen2brain/go-fitz"

	"github.com/jungwonlee1988/wedealize-sub000/internal/config"
	"github.com/jungwonlee1988/wedealize-sub000/internal/domain"
	"github.com/jungwonlee1988/wedealize-sub000/internal/observability"
)

// RenderBand is the share of overall pipeline progress owned by rendering.
const RenderBand = 30

// Renderer rasterizes PDF pages using go-fitz.
type Renderer struct {
	dpi     float64
	maxEdge int
	quality int
	logger  *observability.Logger
}

// NewRenderer creates a renderer from render settings.
func NewRenderer(cfg config.RenderConfig, logger *observability.Logger) *Renderer {
	return &Renderer{
		dpi:     cfg.DPI,
		maxEdge: cfg.MaxEdge,
		quality: cfg.JPEGQuality,
		logger:  logger.WithComponent("renderer"),
	}
}

// Render returns the document's pages in order. Pages are rendered one at a
// time as the sequence is consumed; the first failure is yielded and ends the
// sequence. The sequence can be ranged over once.
func (r *Renderer) Render(ctx context.Context, doc domain.Document, sink domain.ProgressSink) iter.Seq2[domain.SourcePage, error] {
	if sink == nil {
		sink = domain.NopSink
	}

	return func(yield func(domain.SourcePage, error) bool) {
		fz, err := fitz.NewFromMemory(doc.Data)
		if err != nil {
			yield(domain.SourcePage{}, domain.ConversionError("Failed to open PDF", err))
			return
		}
		defer fz.Close()

		total := fz.NumPage()
		if total == 0 {
			yield(domain.SourcePage{}, domain.ValidationError("PDF has no pages", nil))
			return
		}

		r.logger.Debug().Str("file", doc.FileName).Int("pages", total).Msg("Rendering document")

		for i := 0; i < total; i++ {
			if err := ctx.Err(); err != nil {
				yield(domain.SourcePage{}, err)
				return
			}

			page, err := r.renderPage(fz, i)
			if err != nil {
				yield(domain.SourcePage{}, err)
				return
			}

			sink.Report(domain.Progress{
				Phase:   domain.PhaseRendering,
				Current: i + 1,
				Total:   total,
				Percent: RenderBand * (i + 1) / total,
			})

			if !yield(page, nil) {
				return
			}
		}
	}
}

func (r *Renderer) renderPage(fz *fitz.Document, index int) (domain.SourcePage, error) {
	pageNumber := index + 1

	var img image.Image
	rgba, err := fz.ImageDPI(index, r.dpi)
	if err != nil {
		return domain.SourcePage{}, domain.ConversionError(fmt.Sprintf("Failed to render page %d", pageNumber), err)
	}
	img = rgba

	if r.maxEdge > 0 {
		b := img.Bounds()
		if b.Dx() > r.maxEdge || b.Dy() > r.maxEdge {
			img = imaging.Fit(img, r.maxEdge, r.maxEdge, imaging.Lanczos)
		}
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(r.quality)); err != nil {
		return domain.SourcePage{}, domain.ConversionError(fmt.Sprintf("Failed to encode page %d as JPG", pageNumber), err)
	}

	bounds := img.Bounds()
	return domain.SourcePage{
		PageNumber: pageNumber,
		Data:       buf.Bytes(),
		MIMEType:   "image/jpeg",
		Width:      bounds.Dx(),
		Height:     bounds.Dy(),
	}, nil
}
