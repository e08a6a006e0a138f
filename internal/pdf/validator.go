package pdf

import (
	"bytes"
	"fmt"
	"slices"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/jungwonlee1988/wedealize-sub000/internal/config"
	"github.com/jungwonlee1988/wedealize-sub000/internal/domain"
)

// Validator checks uploaded documents before any rendering or service call.
type Validator struct {
	maxBytes int64
	allowed  []string
	maxPages int
}

// NewValidator creates a validator from upload settings.
func NewValidator(cfg config.UploadConfig) *Validator {
	allowed := make([]string, 0, len(cfg.AllowedExtensions))
	for _, ext := range cfg.AllowedExtensions {
		ext = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(ext)), ".")
		if ext != "" {
			allowed = append(allowed, ext)
		}
	}
	return &Validator{
		maxBytes: cfg.MaxBytes,
		allowed:  allowed,
		maxPages: cfg.MaxPages,
	}
}

// Validate checks file type, size and structure, and returns the page count.
func (v *Validator) Validate(doc domain.Document) (int, error) {
	if strings.TrimSpace(doc.FileName) == "" {
		return 0, domain.ValidationError("file name cannot be empty", nil)
	}

	ext := doc.FileType()
	if len(v.allowed) > 0 && !slices.Contains(v.allowed, ext) {
		return 0, domain.ValidationError(fmt.Sprintf("unsupported file type %q (allowed: %s)", ext, strings.Join(v.allowed, ", ")), nil)
	}

	if doc.Size() == 0 {
		return 0, domain.ValidationError("file is empty", nil)
	}

	if v.maxBytes > 0 && doc.Size() > v.maxBytes {
		return 0, domain.ValidationError(fmt.Sprintf("file is too large (%d MB, limit %d MB)", doc.Size()>>20, v.maxBytes>>20), nil)
	}

	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed

	ctx, err := api.ReadValidateAndOptimize(bytes.NewReader(doc.Data), conf)
	if err != nil {
		return 0, domain.ValidationError("file is not a valid PDF", err)
	}

	if ctx.PageCount == 0 {
		return 0, domain.ValidationError("PDF has no pages", nil)
	}

	if v.maxPages > 0 && ctx.PageCount > v.maxPages {
		return 0, domain.ValidationError(fmt.Sprintf("PDF has %d pages, limit is %d", ctx.PageCount, v.maxPages), nil)
	}

	return ctx.PageCount, nil
}
