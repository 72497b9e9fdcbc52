package app

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/glowkit/glowd/internal/catalog"
	"github.com/glowkit/glowd/internal/config"
	"github.com/glowkit/glowd/internal/db"
	"github.com/glowkit/glowd/internal/eventbus"
	"github.com/glowkit/glowd/internal/imagecache"
	"github.com/glowkit/glowd/internal/ledger"
	"github.com/glowkit/glowd/internal/state"
	"github.com/glowkit/glowd/internal/store"
	"github.com/glowkit/glowd/internal/updater"
)

// Services is a container for all application services.
// It manages service initialization order and dependencies.
type Services struct {
	cfg *config.Config

	// Core infrastructure
	DB     *db.DB
	State  *state.Store
	Store  *store.Store
	Ledger *ledger.Ledger

	// Catalog core
	Catalog *catalog.Cache
	Bus     *eventbus.Bus
	Fetcher *updater.Fetcher
	Sync    *SyncService
	Images  *imagecache.Cache

	// Local surfaces
	Status *StatusService
}

// NewServices creates all services with proper dependency injection.
func NewServices(cfg *config.Config) (*Services, error) {
	s := &Services{cfg: cfg}

	// Initialize database
	database, err := db.Open(cfg.Database.Path)
	if err != nil {
		return nil, err
	}
	s.DB = database

	// Initialize persisted sync state (self-healing on corruption)
	s.State, err = state.NewStore(database.DB)
	if err != nil {
		s.Close()
		return nil, err
	}

	// Config-supplied overrides take effect at startup; absent keys keep
	// whatever was configured last run.
	if cfg.Catalog.FetchMode != "" {
		if err := s.State.SetFetchMode(state.FetchMode(cfg.Catalog.FetchMode)); err != nil {
			s.Close()
			return nil, err
		}
	}
	if cfg.Catalog.CustomURL != "" {
		if err := s.State.SetCustomURL(cfg.Catalog.CustomURL); err != nil {
			s.Close()
			return nil, err
		}
	}

	// Initialize the disk store and the in-memory catalog projection
	s.Store, err = store.New(cfg.DataDir)
	if err != nil {
		s.Close()
		return nil, err
	}
	s.Catalog = catalog.NewCache()
	s.loadPersistedCatalog()

	// Initialize event bus
	s.Bus = eventbus.NewWithConfig(cfg.EventBus.GetWorkers(), cfg.EventBus.GetQueueSize())

	// Initialize sync attempt ledger
	if cfg.Ledger.IsEnabled() {
		s.Ledger = ledger.New(database.DB)
	}

	// Initialize fetcher and scheduler
	s.Fetcher = updater.NewFetcher(
		s.State,
		s.Store,
		s.Catalog,
		s.Bus,
		s.Ledger,
		cfg.Catalog.DefaultURL,
		cfg.Catalog.HTTPTimeout.Duration(),
	)
	s.Sync = NewSyncService(cfg, s.Fetcher, s.State, s.Bus, s.Ledger)

	// Initialize image cache
	s.Images = imagecache.New(
		s.Store,
		s.Catalog,
		cfg.Images.Workers,
		cfg.Images.RateLimitRPS,
		cfg.Images.HTTPTimeout.Duration(),
	)

	// Initialize status server
	s.Status = NewStatusService(cfg, s.Sync.Scheduler, s.State, s.Catalog, s.Store, s.Images, s.Ledger)

	return s, nil
}

// loadPersistedCatalog restores the last-known-good catalog, if any.
// An unsupported persisted version is reported distinctly from ordinary
// corruption so the user can be prompted to update the app.
func (s *Services) loadPersistedCatalog() {
	cat, err := s.Store.LoadCatalog()
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			log.Info().Msg("No persisted catalog yet, waiting for first sync")
			return
		}
		var se *catalog.SchemaError
		if errors.As(err, &se) && se.Reason == catalog.ReasonUnsupportedVersion {
			log.Error().Int("version", se.Version).
				Int("supported", catalog.MaxSupportedVersion).
				Msg("Persisted catalog requires a newer app version; update glowd")
			return
		}
		log.Warn().Err(err).Msg("Failed to load persisted catalog")
		return
	}
	s.Catalog.Replace(cat)
	log.Info().Int("version", cat.Version).Int("models", cat.Len()).Msg("Loaded persisted catalog")
}

// Start starts all background services.
func (s *Services) Start(ctx context.Context) {
	s.Sync.Start(ctx)
	s.Status.Start(ctx)
}

// Stop gracefully stops all services.
func (s *Services) Stop() error {
	if s.Bus != nil {
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.GetShutdownTimeout())
		defer cancel()
		s.Bus.Close(ctx)
	}
	s.Close()
	return nil
}

// Close releases all resources.
func (s *Services) Close() {
	if s.DB != nil {
		s.DB.Close()
	}
}
