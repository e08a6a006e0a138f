// Package jobs follows server-tracked extraction jobs until they finish.
package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jungwonlee1988/wedealize-sub000/internal/cache"
	"github.com/jungwonlee1988/wedealize-sub000/internal/domain"
	"github.com/jungwonlee1988/wedealize-sub000/internal/observability"
)

// DefaultInterval is the delay between status queries.
const DefaultInterval = time.Second

const genericJobFailure = "processing failed"

// StepFunc is notified when a job moves to a new progress step.
type StepFunc func(step int, job *domain.Job)

// Options configures a Poller.
type Options struct {
	Interval  time.Duration
	MaxWait   time.Duration
	StatusTTL time.Duration
}

// Poller queries job status at a fixed interval until the job reaches a
// terminal stage or the maximum wait elapses.
type Poller struct {
	client   domain.JobStatusClient
	cache    cache.Client
	interval time.Duration
	maxWait  time.Duration
	ttl      time.Duration
	logger   *observability.Logger
}

// NewPoller creates a Poller. store may be nil; when set, every observed
// status is cached under cache.JobKey. MaxWait is required.
func NewPoller(client domain.JobStatusClient, store cache.Client, opts Options, logger *observability.Logger) (*Poller, error) {
	if opts.MaxWait <= 0 {
		return nil, domain.ConfigError("job poller requires a positive max wait", nil)
	}
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.StatusTTL <= 0 {
		opts.StatusTTL = time.Hour
	}
	return &Poller{
		client:   client,
		cache:    store,
		interval: opts.Interval,
		maxWait:  opts.MaxWait,
		ttl:      opts.StatusTTL,
		logger:   logger.WithComponent("job-poller"),
	}, nil
}

// Wait polls jobID until it completes. onStep, if set, is called once per
// distinct progress step in the order observed.
//
// It returns the completed job, or the last observed job together with
// *domain.JobError when the job fails, domain.ErrStillProcessing when the
// maximum wait elapses first, or the context error when ctx ends.
func (p *Poller) Wait(ctx context.Context, jobID string, onStep StepFunc) (*domain.Job, error) {
	logger := p.logger.WithContext(ctx).With().Str("job_id", jobID).Logger()

	deadline := time.NewTimer(p.maxWait)
	defer deadline.Stop()
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	var last *domain.Job
	lastStep := -1
	polls := 0

	for {
		polls++
		job, err := p.client.JobStatus(ctx, jobID)
		switch {
		case errors.Is(err, domain.ErrJobNotFound):
			return last, err
		case err != nil:
			if ctx.Err() != nil {
				return last, ctx.Err()
			}
			logger.Warn().Err(err).Int("poll", polls).Msg("Job status query failed")
		default:
			if job.JobID == "" {
				job.JobID = jobID
			}
			last = job
			p.store(ctx, job)

			if step, ok := job.Stage.ProgressStep(); ok && step != lastStep {
				lastStep = step
				logger.Debug().Str("stage", string(job.Stage)).Int("step", step).Msg("Job advanced")
				if onStep != nil {
					onStep(step, job)
				}
			}

			switch job.Stage {
			case domain.JobStageComplete:
				logger.Info().Int("products", job.ProductsExtracted).Int("polls", polls).Msg("Job complete")
				return job, nil
			case domain.JobStageError:
				msg := genericJobFailure
				if len(job.Errors) > 0 && job.Errors[0] != "" {
					msg = job.Errors[0]
				}
				logger.Warn().Str("error", msg).Msg("Job failed")
				return job, &domain.JobError{JobID: jobID, Message: msg}
			}
		}

		select {
		case <-ctx.Done():
			return last, ctx.Err()
		case <-deadline.C:
			logger.Warn().Dur("max_wait", p.maxWait).Int("polls", polls).Msg("Job still processing after max wait")
			return last, fmt.Errorf("job %s: %w", jobID, domain.ErrStillProcessing)
		case <-ticker.C:
		}
	}
}

// Cached returns the last status stored for jobID.
func (p *Poller) Cached(ctx context.Context, jobID string) (*domain.Job, error) {
	if p.cache == nil {
		return nil, cache.ErrCacheMiss
	}
	data, err := p.cache.Get(ctx, cache.JobKey(jobID))
	if err != nil {
		return nil, err
	}
	var job domain.Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("decode cached job: %w", err)
	}
	return &job, nil
}

// Status returns the cached status of jobID, querying the backend on a miss.
func (p *Poller) Status(ctx context.Context, jobID string) (*domain.Job, error) {
	if job, err := p.Cached(ctx, jobID); err == nil {
		return job, nil
	}
	job, err := p.client.JobStatus(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.JobID == "" {
		job.JobID = jobID
	}
	p.store(ctx, job)
	return job, nil
}

func (p *Poller) store(ctx context.Context, job *domain.Job) {
	if p.cache == nil || job == nil {
		return
	}
	data, err := json.Marshal(job)
	if err != nil {
		return
	}
	if err := p.cache.Set(ctx, cache.JobKey(job.JobID), data, p.ttl); err != nil {
		p.logger.Debug().Err(err).Str("job_id", job.JobID).Msg("Failed to cache job status")
	}
}
