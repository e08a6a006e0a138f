package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jungwonlee1988/wedealize-sub000/cmd/catalogctl/ui"
	"github.com/jungwonlee1988/wedealize-sub000/internal/domain"
)

var jobCmd = &cobra.Command{
	Use:   "job",
	Short: "Inspect server-tracked extraction jobs",
}

var jobWatchCmd = &cobra.Command{
	Use:   "watch <job-id>",
	Short: "Poll a job until it completes, fails, or the max wait elapses",
	Args:  cobra.ExactArgs(1),
	RunE:  runJobWatch,
}

var jobStatusCmd = &cobra.Command{
	Use:   "status <job-id>",
	Short: "Show the current status of a job",
	Args:  cobra.ExactArgs(1),
	RunE:  runJobStatus,
}

func init() {
	jobCmd.AddCommand(jobWatchCmd, jobStatusCmd)
	rootCmd.AddCommand(jobCmd)
}

func runJobWatch(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := loadApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	jobID := args[0]
	spin := ui.NewSpinner(fmt.Sprintf("Waiting for job %s...", jobID))
	spin.Start()
	job, err := a.Poller.Wait(ctx, jobID, func(step int, job *domain.Job) {
		spin.UpdateMessage(fmt.Sprintf("Job %s: %s (step %d/4)", jobID, job.Stage, step))
	})
	spin.Stop()

	var jobErr *domain.JobError
	switch {
	case errors.Is(err, domain.ErrStillProcessing):
		stage := "unknown"
		if job != nil {
			stage = string(job.Stage)
		}
		ui.Warning("Job %s is still processing (last stage: %s)", jobID, stage)
		return nil
	case errors.As(err, &jobErr):
		ui.Error("Job %s failed: %s", jobID, jobErr.Message)
		return err
	case err != nil:
		return err
	}

	ui.Success("Job %s complete", jobID)
	return showJobProducts(ctx, a.Backend, jobID)
}

func runJobStatus(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := loadApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	job, err := a.Poller.Status(ctx, args[0])
	if err != nil {
		return err
	}

	step, _ := job.Stage.ProgressStep()
	rows := [][]string{
		{"Job", job.JobID},
		{"Stage", string(job.Stage)},
		{"Step", fmt.Sprintf("%d/4", step)},
		{"Products", fmt.Sprintf("%d", job.ProductsExtracted)},
	}
	for _, msg := range job.Errors {
		rows = append(rows, []string{"Error", msg})
	}
	ui.Table([]string{"Field", "Value"}, rows)
	return nil
}

func showJobProducts(ctx context.Context, jobs domain.JobSubmitter, jobID string) error {
	products, err := jobs.JobProducts(ctx, jobID)
	if err != nil {
		return fmt.Errorf("fetch job products: %w", err)
	}
	for _, p := range products {
		p.Refresh()
	}
	ui.Section("Products")
	ui.Table(ui.ProductHeaders, ui.ProductRows(products, nil))
	return nil
}
