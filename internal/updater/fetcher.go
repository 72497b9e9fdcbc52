// Package updater keeps the local light catalog in sync with its remote
// source: a Fetcher performing one attempt end-to-end, and a Scheduler
// driving attempts on a bounded cadence.
package updater

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/glowkit/glowd/internal/catalog"
	"github.com/glowkit/glowd/internal/eventbus"
	"github.com/glowkit/glowd/internal/ledger"
	"github.com/glowkit/glowd/internal/state"
	"github.com/glowkit/glowd/internal/store"
)

// DefaultCatalogURL is the well-known remote used under ModeDefault.
const DefaultCatalogURL = "https://catalog.glowkit.dev/v2/catalog.json"

// Source identifies what triggered a sync attempt.
type Source string

const (
	SourceAuto   Source = "auto"
	SourceForced Source = "forced"
)

// Fetcher performs one catalog sync attempt end-to-end: locator selection,
// retrieval, validation, persistence, and the in-memory swap. A failed
// attempt never regresses a previously good catalog, on disk or in memory.
type Fetcher struct {
	client     *http.Client
	defaultURL string
	state      *state.Store
	store      *store.Store
	catalog    *catalog.Cache
	ledger     *ledger.Ledger // optional
	bus        *eventbus.Bus
}

// NewFetcher creates a Fetcher. defaultURL falls back to DefaultCatalogURL
// when empty; ldg may be nil to disable attempt history.
func NewFetcher(st *state.Store, str *store.Store, cat *catalog.Cache, bus *eventbus.Bus, ldg *ledger.Ledger, defaultURL string, timeout time.Duration) *Fetcher {
	if defaultURL == "" {
		defaultURL = DefaultCatalogURL
	}
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &Fetcher{
		client:     &http.Client{Timeout: timeout},
		defaultURL: defaultURL,
		state:      st,
		store:      str,
		catalog:    cat,
		ledger:     ldg,
		bus:        bus,
	}
}

// Sync runs one attempt, records it in the ledger, and publishes the
// outcome on the bus. LastAttemptAt advances for every attempt that
// reached the network (success or failure) so the scheduler rate limit
// holds; config errors (disabled mode, invalid locator) involve no
// network activity and leave it untouched.
func (f *Fetcher) Sync(ctx context.Context, source Source) error {
	started := time.Now()
	err := f.sync(ctx, source)
	finished := time.Now()

	outcome := ledger.OutcomeSuccess
	reason := ""
	switch {
	case err == nil:
	case isSkip(err):
		outcome = ledger.OutcomeSkipped
		reason = string(ReasonFetchDisabled)
	default:
		outcome = ledger.OutcomeFailure
		reason = failureReason(err)
	}

	var ce *ConfigError
	if err == nil || !errors.As(err, &ce) {
		if markErr := f.state.MarkAttempt(started); markErr != nil {
			log.Error().Err(markErr).Msg("Failed to persist sync attempt timestamp")
		}
	}

	if f.ledger != nil {
		detail := ""
		if err != nil {
			detail = err.Error()
		}
		if recErr := f.ledger.Record(ledger.Entry{
			StartedAt:  started,
			FinishedAt: finished,
			Source:     string(source),
			Outcome:    outcome,
			Detail:     detail,
		}); recErr != nil {
			log.Error().Err(recErr).Msg("Failed to record sync attempt")
		}
	}

	f.bus.Publish(eventbus.SyncOutcome(string(outcome), reason, string(source), f.catalog.Version()))
	return err
}

func (f *Fetcher) sync(ctx context.Context, source Source) error {
	st := f.state.Snapshot()

	var locator string
	switch st.FetchMode {
	case state.ModeDisabled:
		if source == SourceAuto {
			log.Debug().Msg("Catalog sync disabled, skipping")
		}
		return &ConfigError{Reason: ReasonFetchDisabled}
	case state.ModeCustom:
		u, err := url.Parse(st.CustomURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			return &ConfigError{Reason: ReasonInvalidLocator, Locator: st.CustomURL}
		}
		locator = st.CustomURL
	default:
		locator = f.defaultURL
	}

	raw, err := f.download(ctx, locator)
	if err != nil {
		// Expected in disconnected operation, so warn, not error.
		log.Warn().Err(err).Str("locator", locator).Msg("Catalog fetch failed")
		return err
	}

	cat, err := catalog.Decode(raw)
	if err != nil {
		// Previously loaded catalog stays authoritative, on disk and in memory.
		var se *catalog.SchemaError
		if errors.As(err, &se) && se.Reason == catalog.ReasonUnsupportedVersion {
			log.Error().Int("version", se.Version).
				Int("supported", catalog.MaxSupportedVersion).
				Msg("Remote catalog requires a newer app version")
		} else {
			log.Warn().Err(err).Msg("Remote catalog failed validation")
		}
		return err
	}

	if err := f.store.SaveCatalog(raw); err != nil {
		return fmt.Errorf("failed to persist catalog: %w", err)
	}
	f.catalog.Replace(cat)

	log.Info().Int("version", cat.Version).Int("models", cat.Len()).
		Str("source", string(source)).Msg("Catalog updated")
	return nil
}

func (f *Fetcher) download(ctx context.Context, locator string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, locator, nil)
	if err != nil {
		return nil, &FetchError{Reason: ReasonUnreachable, Locator: locator, Err: err}
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &FetchError{Reason: ReasonUnreachable, Locator: locator, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &FetchError{Reason: ReasonBadStatus, Locator: locator, Status: resp.StatusCode}
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &FetchError{Reason: ReasonUnreachable, Locator: locator, Err: err}
	}
	return raw, nil
}

// isSkip reports whether err is the disabled-mode no-op.
func isSkip(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce) && ce.Reason == ReasonFetchDisabled
}

// failureReason maps an attempt error to the outcome event reason.
func failureReason(err error) string {
	var ce *ConfigError
	if errors.As(err, &ce) {
		return string(ce.Reason)
	}
	var fe *FetchError
	if errors.As(err, &fe) {
		return string(fe.Reason)
	}
	var se *catalog.SchemaError
	if errors.As(err, &se) {
		return string(se.Reason)
	}
	return "internal"
}
