package app

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/glowkit/glowd/internal/config"
	"github.com/glowkit/glowd/internal/eventbus"
	"github.com/glowkit/glowd/internal/ledger"
	"github.com/glowkit/glowd/internal/state"
	"github.com/glowkit/glowd/internal/updater"
)

// SyncService wraps the sync scheduler and related periodic tasks.
type SyncService struct {
	cfg       *config.Config
	Scheduler *updater.Scheduler
	ledger    *ledger.Ledger
}

// NewSyncService creates a new SyncService.
func NewSyncService(
	cfg *config.Config,
	fetcher *updater.Fetcher,
	st *state.Store,
	bus *eventbus.Bus,
	l *ledger.Ledger,
) *SyncService {
	sched := updater.NewScheduler(
		fetcher,
		st,
		bus,
		cfg.Catalog.TTL.Duration(),
		cfg.Catalog.TickInterval.Duration(),
	)

	return &SyncService{
		cfg:       cfg,
		Scheduler: sched,
		ledger:    l,
	}
}

// Start begins the scheduler and related periodic tasks.
func (s *SyncService) Start(ctx context.Context) {
	go func() {
		if err := s.Scheduler.Run(ctx); err != nil {
			log.Error().Err(err).Msg("Sync scheduler error")
		}
	}()

	// Ledger cleanup (if ledger is enabled)
	if s.ledger != nil {
		go s.runLedgerCleanup(ctx)
	}
}

// runLedgerCleanup periodically removes old sync attempt records.
func (s *SyncService) runLedgerCleanup(ctx context.Context) {
	retention := s.cfg.Ledger.Retention.Duration()
	interval := s.cfg.Ledger.CleanupInterval.Duration()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			deleted, err := s.ledger.DeleteOlderThan(retention)
			if err != nil {
				log.Error().Err(err).Msg("Failed to cleanup old sync attempts")
			} else if deleted > 0 {
				log.Info().Int64("deleted", deleted).Dur("retention", retention).Msg("Cleaned up old sync attempts")
			}
		}
	}
}
