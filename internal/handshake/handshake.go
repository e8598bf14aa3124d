// Package handshake delivers a playback command to a tab once its extraction
// endpoint answers a readiness probe. Not-ready is never fatal: the runner
// waits a fixed delay and repeats the probe-then-deliver cycle.
package handshake

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"songify/internal/logging"
	"songify/internal/song"
	"songify/internal/tabs"
)

// Policy controls retry behaviour.
type Policy struct {
	// MaxAttempts caps probe-then-deliver cycles. Zero retries forever.
	MaxAttempts int
	// Delay is the fixed wait between cycles.
	Delay time.Duration
	// ProbeTimeout bounds each probe and each delivery.
	ProbeTimeout time.Duration
}

// DefaultPolicy retries every second without a ceiling.
func DefaultPolicy() Policy {
	return Policy{Delay: time.Second, ProbeTimeout: 5 * time.Second}
}

// Target identifies what to deliver and where.
type Target struct {
	RequestID string
	TabID     song.TabID
	URL       string
	Title     string
}

// Result classifies how a run ended.
type Result string

const (
	Delivered Result = "delivered"
	Abandoned Result = "abandoned"
	Cancelled Result = "cancelled"
)

// Outcome reports a finished run.
type Outcome struct {
	Target   Target
	Result   Result
	Attempts int
	At       time.Time
	// Err is the last probe or delivery error when the run did not deliver.
	Err error
}

// Runner executes handshakes against a tab messenger.
type Runner struct {
	messenger tabs.Messenger
	clock     clockwork.Clock
	policy    Policy
	logger    *slog.Logger
}

// NewRunner builds a Runner. A nil clock uses the real clock.
func NewRunner(messenger tabs.Messenger, clock clockwork.Clock, policy Policy, logger *slog.Logger) *Runner {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if policy.Delay <= 0 {
		policy.Delay = time.Second
	}
	if policy.ProbeTimeout <= 0 {
		policy.ProbeTimeout = 5 * time.Second
	}
	return &Runner{
		messenger: messenger,
		clock:     clock,
		policy:    policy,
		logger:    logging.NewComponentLogger(logger, "handshake"),
	}
}

// Run probes and delivers until the tab accepts the playback command, the
// attempt ceiling is reached, or ctx ends. Playback is delivered at most once.
func (r *Runner) Run(ctx context.Context, target Target) Outcome {
	logger := logging.WithContext(logging.WithRequestID(ctx, target.RequestID), r.logger).With(
		logging.Int(logging.FieldTabID, int(target.TabID)),
	)
	var lastErr error
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return Outcome{Target: target, Result: Cancelled, Attempts: attempt - 1, At: r.clock.Now(), Err: err}
		}

		delivered, err := r.attempt(ctx, logger, target)
		if delivered {
			logger.Info("playback delivered",
				logging.String("audio_url", target.URL),
				logging.Int("attempts", attempt),
			)
			return Outcome{Target: target, Result: Delivered, Attempts: attempt, At: r.clock.Now()}
		}
		lastErr = err

		if r.policy.MaxAttempts > 0 && attempt >= r.policy.MaxAttempts {
			logging.WarnWithContext(logger, "tab never became ready", "handshake_abandoned",
				logging.Int("attempts", attempt),
				logging.Error(lastErr),
				logging.String(logging.FieldErrorHint, "reload the tab or trigger a new song"),
				logging.String(logging.FieldImpact, "song will not play automatically"),
			)
			return Outcome{Target: target, Result: Abandoned, Attempts: attempt, At: r.clock.Now(), Err: lastErr}
		}

		attrs := []logging.Attr{logging.Int("attempt", attempt), logging.Duration("retry_in", r.policy.Delay)}
		if lastErr != nil {
			attrs = append(attrs, logging.Error(lastErr))
		}
		if attempt == 1 {
			logger.Info("tab not ready, retrying", logging.Args(attrs...)...)
		} else {
			logger.Debug("tab not ready, retrying", logging.Args(attrs...)...)
		}

		select {
		case <-ctx.Done():
			return Outcome{Target: target, Result: Cancelled, Attempts: attempt, At: r.clock.Now(), Err: ctx.Err()}
		case <-r.clock.After(r.policy.Delay):
		}
	}
}

// attempt probes once and, when the tab is ready, sends playAudio once. After
// a ready probe only errors proving the command never reached the tab allow a
// retry; a lost or bad reply counts as delivered so the song cannot play twice.
func (r *Runner) attempt(ctx context.Context, logger *slog.Logger, target Target) (bool, error) {
	probeCtx, cancel := context.WithTimeout(ctx, r.policy.ProbeTimeout)
	ready, err := tabs.Probe(probeCtx, r.messenger, target.TabID)
	cancel()
	if !ready {
		return false, err
	}

	deliverCtx, cancel := context.WithTimeout(ctx, r.policy.ProbeTimeout)
	defer cancel()
	_, err = tabs.PlayAudio(deliverCtx, r.messenger, target.TabID, target.URL)
	switch {
	case err == nil:
	case tabs.NotDelivered(err):
		return false, err
	case errors.Is(err, tabs.ErrMalformedReply):
		logger.Debug("playback reply not decoded", logging.Error(err))
	default:
		logging.WarnWithContext(logger, "playback reply lost", "playback_reply_lost",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check the tab if no audio is heard"),
			logging.String(logging.FieldImpact, "playback is assumed started and will not be resent"),
		)
	}
	return true, nil
}
