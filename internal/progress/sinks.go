// Package progress provides ProgressSink implementations: structured logging,
// pub/sub publishing, in-memory recording, and fan-out.
package progress

import (
	"context"
	"sync"
	"time"

	"github.com/jungwonlee1988/wedealize-sub000/internal/cache"
	"github.com/jungwonlee1988/wedealize-sub000/internal/domain"
	"github.com/jungwonlee1988/wedealize-sub000/internal/observability"
)

// LogSink writes every notification as a debug log line, and the terminal
// one at info.
type LogSink struct {
	logger *observability.Logger
}

// NewLogSink creates a LogSink.
func NewLogSink(logger *observability.Logger) *LogSink {
	return &LogSink{logger: logger.WithComponent("progress")}
}

// Report logs p.
func (s *LogSink) Report(p domain.Progress) {
	ev := s.logger.Debug()
	if p.Phase == domain.PhaseComplete {
		ev = s.logger.Info()
	}
	ev.Str("phase", string(p.Phase)).
		Int("current", p.Current).
		Int("total", p.Total).
		Int("percent", p.Percent).
		Msg("Pipeline progress")
}

// PublishSink publishes notifications on a broker channel so that other
// processes (the API's SSE endpoint, a watching CLI) can follow a session.
type PublishSink struct {
	broker  cache.Broker
	channel string
	timeout time.Duration
	logger  *observability.Logger
}

// NewPublishSink creates a PublishSink for one session's channel.
func NewPublishSink(broker cache.Broker, sessionID string, logger *observability.Logger) *PublishSink {
	return &PublishSink{
		broker:  broker,
		channel: cache.ProgressChannel(sessionID),
		timeout: 2 * time.Second,
		logger:  logger.WithComponent("progress").WithSession(sessionID),
	}
}

// Report publishes p. Publish failures are logged and otherwise ignored.
func (s *PublishSink) Report(p domain.Progress) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	if err := s.broker.Publish(ctx, s.channel, p); err != nil {
		s.logger.Warn().Err(err).Int("percent", p.Percent).Msg("Failed to publish progress")
	}
}

// Recorder keeps every notification it receives. It is safe for concurrent use.
type Recorder struct {
	mu     sync.Mutex
	events []domain.Progress
}

// Report appends p.
func (r *Recorder) Report(p domain.Progress) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, p)
}

// Events returns a copy of the recorded notifications.
func (r *Recorder) Events() []domain.Progress {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.Progress, len(r.events))
	copy(out, r.events)
	return out
}

// Last returns the most recent notification, if any.
func (r *Recorder) Last() (domain.Progress, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.events) == 0 {
		return domain.Progress{}, false
	}
	return r.events[len(r.events)-1], true
}

// FanOut forwards each notification to every sink in order. Nil sinks are skipped.
func FanOut(sinks ...domain.ProgressSink) domain.ProgressSink {
	live := make([]domain.ProgressSink, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			live = append(live, s)
		}
	}
	return domain.ProgressFunc(func(p domain.Progress) {
		for _, s := range live {
			s.Report(p)
		}
	})
}
