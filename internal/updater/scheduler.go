package updater

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/glowkit/glowd/internal/eventbus"
	"github.com/glowkit/glowd/internal/state"
)

// Default cadence.
const (
	DefaultTTL          = 8 * time.Hour
	DefaultTickInterval = 10 * time.Second
)

// Scheduler decides when a catalog sync is due. A short periodic tick
// recomputes remaining time-to-next-check, publishes countdown events,
// and triggers at most one attempt at a time. After an attempt finishes,
// successful or not, the next automatic attempt waits a full interval;
// there is no immediate retry against a broken endpoint.
type Scheduler struct {
	fetcher *Fetcher
	state   *state.Store
	bus     *eventbus.Bus
	ttl     time.Duration
	tick    time.Duration
	force   chan struct{}
}

// NewScheduler creates a Scheduler. Zero ttl/tick fall back to defaults.
// The countdown cadence (tick) and the sync cadence (ttl) are tuned
// independently.
func NewScheduler(fetcher *Fetcher, st *state.Store, bus *eventbus.Bus, ttl, tick time.Duration) *Scheduler {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if tick <= 0 {
		tick = DefaultTickInterval
	}
	return &Scheduler{
		fetcher: fetcher,
		state:   st,
		bus:     bus,
		ttl:     ttl,
		tick:    tick,
		force:   make(chan struct{}, 1),
	}
}

// ForceSync requests an immediate sync, bypassing the interval check.
// Non-blocking; a force issued while an attempt is already in flight or
// pending is coalesced, never double-executed.
func (s *Scheduler) ForceSync() {
	select {
	case s.force <- struct{}{}:
	default:
		// Already pending
	}
}

// RemainingTTL returns the time until the next automatic check. Zero
// means a check is due now (or syncing is disabled).
func (s *Scheduler) RemainingTTL() time.Duration {
	st := s.state.Snapshot()
	if st.FetchMode == state.ModeDisabled {
		return 0
	}
	return s.remaining(st)
}

func (s *Scheduler) remaining(st state.SyncState) time.Duration {
	if st.LastAttemptAt.IsZero() {
		return 0
	}
	d := s.ttl - time.Since(st.LastAttemptAt)
	if d < 0 {
		return 0
	}
	return d
}

// Run drives the tick loop until ctx is cancelled. Fetch attempts run off
// the loop goroutine so ticks and countdown events keep flowing while a
// sync is in flight.
func (s *Scheduler) Run(ctx context.Context) error {
	log.Info().Dur("ttl", s.ttl).Dur("tick", s.tick).Msg("Sync scheduler started")

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	done := make(chan struct{}, 1)
	inFlight := false

	start := func(source Source) {
		inFlight = true
		go func() {
			if err := s.fetcher.Sync(ctx, source); err != nil && !isSkip(err) {
				log.Debug().Err(err).Str("source", string(source)).Msg("Sync attempt failed")
			}
			done <- struct{}{}
		}()
	}

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Sync scheduler stopped")
			return nil

		case <-done:
			inFlight = false

		case <-s.force:
			if inFlight {
				log.Debug().Msg("Forced sync coalesced with in-flight attempt")
				continue
			}
			start(SourceForced)

		case <-ticker.C:
			st := s.state.Snapshot()
			if st.FetchMode == state.ModeDisabled {
				continue
			}

			remaining := s.remaining(st)
			s.bus.Publish(eventbus.Countdown(int64(remaining / time.Second)))

			if remaining == 0 && !inFlight {
				start(SourceAuto)
			}
		}
	}
}
