package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jungwonlee1988/wedealize-sub000/cmd/catalogctl/ui"
	"github.com/jungwonlee1988/wedealize-sub000/internal/domain"
	"github.com/jungwonlee1988/wedealize-sub000/internal/extract"
	"github.com/jungwonlee1988/wedealize-sub000/internal/workflow"
)

var (
	extractFile      string
	extractPrices    string
	extractCommit    bool
	extractServerJob bool
	extractOutput    string
	extractTimeout   time.Duration
)

var extractCmd = &cobra.Command{
	Use:   "extract",
	Short: "Extract products from a supplier PDF catalog",
	Long: `Extract renders the catalog, extracts products batch by batch, and shows
them for review. With --prices a price list is matched onto the products;
with --commit every product is written to the catalog API.`,
	RunE: runExtract,
}

func init() {
	extractCmd.Flags().StringVarP(&extractFile, "file", "f", "", "Path to the PDF catalog (required)")
	extractCmd.Flags().StringVarP(&extractPrices, "prices", "p", "", "Path to a price list to match onto the products")
	extractCmd.Flags().BoolVar(&extractCommit, "commit", false, "Commit the products to the catalog API")
	extractCmd.Flags().BoolVar(&extractServerJob, "server-job", false, "Let the catalog API run extraction as a tracked job")
	extractCmd.Flags().StringVarP(&extractOutput, "output", "o", "", "Write the session snapshot as JSON to this path")
	extractCmd.Flags().DurationVar(&extractTimeout, "timeout", 30*time.Minute, "Overall time limit")
	extractCmd.MarkFlagRequired("file")
	rootCmd.AddCommand(extractCmd)
}

func runExtract(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), extractTimeout)
	defer cancel()
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	doc, err := readDocument(extractFile)
	if err != nil {
		return err
	}

	a, err := loadApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	m := a.NewMachine(nil)
	defer m.Close()

	ui.Section("Catalog Extraction")
	ui.Info("Catalog: %s (%d KB)", doc.FileName, doc.Size()/1024)
	ui.Info("Session: %s", m.SessionID())
	ui.Newline()

	start := time.Now()
	if extractServerJob {
		if err := runServerJob(ctx, m, doc); err != nil {
			return err
		}
	} else {
		if err := runLocalExtraction(ctx, m, doc); err != nil {
			return err
		}
	}

	if extractPrices != "" {
		if err := matchPrices(ctx, m, extractPrices); err != nil {
			return err
		}
	}

	if err := m.GoTo(ctx, domain.StepReview); err != nil {
		return err
	}

	snap := m.Snapshot()
	ui.Section("Products")
	ui.Table(ui.ProductHeaders, ui.ProductRows(snap.Products, snap.SelectedIDs))
	ui.Newline()

	if extractCommit {
		spin := ui.NewSpinner(fmt.Sprintf("Committing %d products...", len(snap.SelectedIDs)))
		spin.Start()
		err := m.GoTo(ctx, domain.StepComplete)
		spin.Stop()
		if err != nil {
			return fmt.Errorf("commit failed: %w", err)
		}
		snap = m.Snapshot()
		ui.Success("Committed %d products to the catalog", snap.Committed)
	}

	ui.Section("Summary")
	ui.Table([]string{"Metric", "Value"}, summaryRows(snap, time.Since(start)))

	if extractOutput != "" {
		if err := writeSnapshot(extractOutput, snap); err != nil {
			return err
		}
		ui.Success("Snapshot saved to: %s", extractOutput)
	}
	return nil
}

func runLocalExtraction(ctx context.Context, m *workflow.Machine, doc domain.Document) error {
	bar := ui.NewProgressBar(100, "Validating")
	result, err := m.Upload(ctx, doc, ui.PercentSink(bar))
	bar.Finish()
	if err != nil {
		return fmt.Errorf("extraction failed: %w", err)
	}

	switch result.Status {
	case extract.StatusDegraded:
		ui.Warning("Extraction service unavailable (%s); showing sample products", result.Reason)
	default:
		ui.Success("Extracted %d products from %d pages in %d batches", len(result.Products), result.Pages, result.Batches)
	}
	return nil
}

func runServerJob(ctx context.Context, m *workflow.Machine, doc domain.Document) error {
	spin := ui.NewSpinner("Uploading catalog...")
	spin.Start()
	job, err := m.UploadAsJob(ctx, doc, func(step int, job *domain.Job) {
		spin.UpdateMessage(fmt.Sprintf("Job %s: %s (step %d/4)", job.JobID, job.Stage, step))
	})
	spin.Stop()

	if errors.Is(err, domain.ErrStillProcessing) {
		jobID := m.Snapshot().JobID
		ui.Warning("Job %s is still processing; check later with: catalogctl job watch %s", jobID, jobID)
		return err
	}
	if err != nil {
		return fmt.Errorf("server job failed: %w", err)
	}
	ui.Success("Job %s complete (%d products)", job.JobID, len(m.Snapshot().Products))
	return nil
}

func matchPrices(ctx context.Context, m *workflow.Machine, path string) error {
	priceList, err := readDocument(path)
	if err != nil {
		return err
	}

	spin := ui.NewSpinner("Matching prices...")
	spin.Start()
	summary, err := m.MatchPrices(ctx, priceList)
	spin.Stop()
	if err != nil {
		return fmt.Errorf("price matching failed: %w", err)
	}

	if summary.Degraded {
		ui.Warning("Price matcher unavailable (%s); applied sample prices to %d products", summary.Reason, summary.Matched)
	} else {
		ui.Success("Matched prices for %d of %d products", summary.Matched, summary.Total)
	}
	return nil
}

func summaryRows(snap workflow.Snapshot, took time.Duration) [][]string {
	rows := [][]string{
		{"Session", snap.ID},
		{"Step", snap.StepName},
		{"Products", fmt.Sprintf("%d", len(snap.Products))},
		{"Selected", fmt.Sprintf("%d", len(snap.SelectedIDs))},
		{"Source", string(snap.Source)},
		{"Duration", ui.FormatDuration(took)},
	}
	if snap.JobID != "" {
		rows = append(rows, []string{"Job", snap.JobID})
	}
	if snap.Pricing != nil {
		rows = append(rows, []string{"Prices matched", fmt.Sprintf("%d/%d", snap.Pricing.Matched, snap.Pricing.Total)})
	}
	if snap.CommitCount > 0 {
		rows = append(rows, []string{"Committed", fmt.Sprintf("%d", snap.Committed)})
	}
	return rows
}

func readDocument(path string) (domain.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return domain.Document{}, fmt.Errorf("read %s: %w", path, err)
	}
	return domain.Document{FileName: filepath.Base(path), Data: data}, nil
}

func writeSnapshot(path string, snap workflow.Snapshot) error {
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	return nil
}
