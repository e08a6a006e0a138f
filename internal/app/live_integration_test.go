//go:build integration

package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/joho/godotenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jungwonlee1988/wedealize-sub000/internal/config"
	"github.com/jungwonlee1988/wedealize-sub000/internal/domain"
	"github.com/jungwonlee1988/wedealize-sub000/internal/extract"
	"github.com/jungwonlee1988/wedealize-sub000/internal/observability"
	"github.com/jungwonlee1988/wedealize-sub000/internal/progress"
)

func init() {
	_ = godotenv.Load("../../.env")
}

// TestLiveExtraction runs a real supplier catalog through the vision model.
// Set CATALOG_SAMPLE_PDF and OPENROUTER_API_KEY to enable it.
func TestLiveExtraction(t *testing.T) {
	path := os.Getenv("CATALOG_SAMPLE_PDF")
	if path == "" {
		t.Skip("CATALOG_SAMPLE_PDF not set")
	}
	if os.Getenv("OPENROUTER_API_KEY") == "" {
		t.Skip("OPENROUTER_API_KEY not set")
	}

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	cfg := config.DefaultConfig()
	cfg.LLM.APIKey = os.Getenv("OPENROUTER_API_KEY")
	cfg.Extraction.FallbackEnabled = false
	cfg.Backend.History = "none"

	logger := observability.NewLogger(observability.LogConfig{Level: "debug", Format: "console", Output: os.Stderr})
	a, err := New(context.Background(), cfg, logger, nil)
	require.NoError(t, err)
	defer a.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	rec := &progress.Recorder{}
	result, err := a.Pipeline.Run(ctx, domain.Document{FileName: filepath.Base(path), Data: data}, rec)
	require.NoError(t, err)

	assert.Equal(t, extract.StatusSuccess, result.Status)
	assert.NotEmpty(t, result.Products)
	for _, p := range result.Products {
		assert.NotEmpty(t, p.ID)
		assert.NotEmpty(t, p.ProductName)
		t.Logf("%-40s %-20s %s", p.ProductName, p.FormattedPrice, p.CategoryIcon)
	}

	last, _ := rec.Last()
	assert.Equal(t, 100, last.Percent)
}
