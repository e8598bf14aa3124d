// Package persist schedules the deferred download of a finished song. A job
// fires once after a grace period so the remote stream has settled.
package persist

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"songify/internal/logging"
)

// DefaultGrace is the wait between playback delivery and download.
const DefaultGrace = 240 * time.Second

// Job is one pending download.
type Job struct {
	URL      string    `json:"url"`
	Filename string    `json:"filename"`
	FireAt   time.Time `json:"fire_at"`
}

// Downloader persists audio at url under filename.
type Downloader interface {
	Download(ctx context.Context, url, filename string) error
}

// Reporter receives the result of each fired job. It may be nil.
type Reporter func(job Job, err error)

// Scheduler holds at most one pending job. Arming a job for a different URL
// supersedes the unfired one; arming the same URL again is a no-op.
type Scheduler struct {
	ctx        context.Context
	clock      clockwork.Clock
	downloader Downloader
	report     Reporter
	logger     *slog.Logger

	mu      sync.Mutex
	pending *Job
	timer   clockwork.Timer
	wg      sync.WaitGroup
}

// NewScheduler builds a scheduler whose downloads run under ctx.
func NewScheduler(ctx context.Context, clock clockwork.Clock, downloader Downloader, report Reporter, logger *slog.Logger) *Scheduler {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Scheduler{
		ctx:        ctx,
		clock:      clock,
		downloader: downloader,
		report:     report,
		logger:     logging.NewComponentLogger(logger, "persist"),
	}
}

// Arm schedules job. It returns false when an identical URL is already pending.
func (s *Scheduler) Arm(job Job) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pending != nil && s.pending.URL == job.URL {
		s.logger.Debug("persistence already armed",
			logging.Args(logging.DecisionAttrs("persistence_arm", "skipped", "same url pending")...)...)
		return false
	}
	if s.pending != nil {
		s.release()
		s.logger.Info("persistence superseded",
			logging.String("previous_url", s.pending.URL),
			logging.String("audio_url", job.URL),
		)
	}

	delay := job.FireAt.Sub(s.clock.Now())
	if delay < 0 {
		delay = 0
	}
	armed := job
	s.pending = &armed
	s.wg.Add(1)
	s.timer = s.clock.AfterFunc(delay, func() {
		go func() {
			defer s.wg.Done()
			s.fire(armed)
		}()
	})
	s.logger.Info("persistence armed",
		logging.String("audio_url", job.URL),
		logging.String("filename", job.Filename),
		logging.Duration("delay", delay),
	)
	return true
}

// Cancel drops the pending job when it targets url.
func (s *Scheduler) Cancel(url string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending == nil || s.pending.URL != url {
		return false
	}
	s.release()
	s.pending = nil
	s.logger.Info("persistence cancelled", logging.String("audio_url", url))
	return true
}

// Pending returns the unfired job, if any.
func (s *Scheduler) Pending() (Job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending == nil {
		return Job{}, false
	}
	return *s.pending, true
}

// Wait blocks until no job is pending and every fired download has returned.
// Call Stop first to drop an unfired job.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

// Stop cancels the pending job without firing it.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending != nil {
		s.release()
		s.pending = nil
	}
}

// release stops the pending timer. Each armed job holds one wait group slot;
// a timer stopped before firing gives it back here, otherwise the fire
// goroutine does. Callers hold s.mu.
func (s *Scheduler) release() {
	if s.timer.Stop() {
		s.wg.Done()
	}
}

func (s *Scheduler) fire(job Job) {
	s.mu.Lock()
	if s.pending == nil || s.pending.URL != job.URL || !s.pending.FireAt.Equal(job.FireAt) {
		s.mu.Unlock()
		return
	}
	s.pending = nil
	s.mu.Unlock()

	err := s.downloader.Download(s.ctx, job.URL, job.Filename)
	if err != nil {
		logging.WarnWithContext(s.logger, "song download failed", "persistence_failed",
			logging.String("audio_url", job.URL),
			logging.String("filename", job.Filename),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check the download directory or browser download settings"),
			logging.String(logging.FieldImpact, "song was played but not saved"),
		)
	} else {
		s.logger.Info("song downloaded",
			logging.String("audio_url", job.URL),
			logging.String("filename", job.Filename),
		)
	}
	if s.report != nil {
		s.report(job, err)
	}
}
