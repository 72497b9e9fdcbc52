package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/glowkit/glowd/internal/catalog"
	"github.com/glowkit/glowd/internal/config"
	"github.com/glowkit/glowd/internal/imagecache"
	"github.com/glowkit/glowd/internal/ledger"
	"github.com/glowkit/glowd/internal/state"
	"github.com/glowkit/glowd/internal/store"
	"github.com/glowkit/glowd/internal/updater"
)

// StatusService exposes a small local HTTP surface: liveness, sync status,
// force-sync, and cached artwork. Image serving is cache-only and never
// blocks on the network.
type StatusService struct {
	cfg       *config.Config
	scheduler *updater.Scheduler
	state     *state.Store
	catalog   *catalog.Cache
	store     *store.Store
	images    *imagecache.Cache
	ledger    *ledger.Ledger
	server    *http.Server
}

// NewStatusService creates a new StatusService.
func NewStatusService(
	cfg *config.Config,
	scheduler *updater.Scheduler,
	st *state.Store,
	cat *catalog.Cache,
	str *store.Store,
	images *imagecache.Cache,
	l *ledger.Ledger,
) *StatusService {
	return &StatusService{
		cfg:       cfg,
		scheduler: scheduler,
		state:     st,
		catalog:   cat,
		store:     str,
		images:    images,
		ledger:    l,
	}
}

// Start begins the status server if enabled.
func (s *StatusService) Start(ctx context.Context) {
	if !s.cfg.Status.Enabled {
		return
	}

	go s.run(ctx)
}

func (s *StatusService) run(ctx context.Context) {
	addr := fmt.Sprintf("%s:%d", s.cfg.Status.Host, s.cfg.Status.Port)

	r := chi.NewRouter()
	r.Get("/health", s.handleHealth)
	r.Get("/status", s.handleStatus)
	r.Post("/sync", s.handleForceSync)
	r.Post("/images/reset-failures", s.handleResetFailures)
	r.Get("/models/{modelID}/image", s.handleModelImage)

	s.server = &http.Server{
		Addr:    addr,
		Handler: r,
	}

	log.Info().Str("addr", addr).Msg("Starting status server")

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.GetShutdownTimeout())
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Status server shutdown error")
		}
	}()

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error().Err(err).Msg("Status server error")
	}
}

func (s *StatusService) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"healthy"}`))
}

type attemptResponse struct {
	StartedAt time.Time `json:"started_at"`
	Source    string    `json:"source"`
	Outcome   string    `json:"outcome"`
	Detail    string    `json:"detail,omitempty"`
}

type statusResponse struct {
	CatalogVersion      int               `json:"catalog_version"`
	Models              int               `json:"models"`
	FetchMode           string            `json:"fetch_mode"`
	RemainingTTLSeconds int64             `json:"remaining_ttl_seconds"`
	LastAttemptAt       *time.Time        `json:"last_attempt_at,omitempty"`
	FailedImageLocators int               `json:"failed_image_locators"`
	RecentAttempts      []attemptResponse `json:"recent_attempts,omitempty"`
}

func (s *StatusService) handleStatus(w http.ResponseWriter, r *http.Request) {
	st := s.state.Snapshot()

	resp := statusResponse{
		CatalogVersion:      s.catalog.Version(),
		Models:              s.catalog.Len(),
		FetchMode:           string(st.FetchMode),
		RemainingTTLSeconds: int64(s.scheduler.RemainingTTL() / time.Second),
		FailedImageLocators: s.images.FailedCount(),
	}
	if !st.LastAttemptAt.IsZero() {
		t := st.LastAttemptAt
		resp.LastAttemptAt = &t
	}

	if s.ledger != nil {
		attempts, err := s.ledger.Recent(10)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to read recent sync attempts")
		}
		for _, a := range attempts {
			resp.RecentAttempts = append(resp.RecentAttempts, attemptResponse{
				StartedAt: a.StartedAt,
				Source:    a.Source,
				Outcome:   string(a.Outcome),
				Detail:    a.Detail,
			})
		}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		log.Warn().Err(err).Msg("Failed to encode status response")
	}
}

func (s *StatusService) handleForceSync(w http.ResponseWriter, r *http.Request) {
	s.scheduler.ForceSync()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	w.Write([]byte(`{"status":"accepted"}`))
}

func (s *StatusService) handleResetFailures(w http.ResponseWriter, r *http.Request) {
	s.images.ResetFailures()
	w.WriteHeader(http.StatusNoContent)
}

// handleModelImage serves the cached artifact bytes for a model. It is a
// cache-only path: a miss is a 404, never a download.
func (s *StatusService) handleModelImage(w http.ResponseWriter, r *http.Request) {
	modelID := chi.URLParam(r, "modelID")

	data, err := s.store.ReadImage(modelID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			http.Error(w, "image not cached", http.StatusNotFound)
			return
		}
		log.Warn().Err(err).Str("model_id", modelID).Msg("Failed to read cached image")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", http.DetectContentType(data))
	w.Write(data)
}
