// Package imagecache retrieves and caches per-model artwork referenced by
// catalog entries. Fetches are lazy and independent of the main sync
// cycle; a locator that fails once is not retried for the rest of the
// process lifetime.
package imagecache

import (
	"bytes"
	"context"
	"errors"
	"image"
	"io"
	"net/http"
	"sync"
	"time"

	// Artwork ships as PNG or JPEG.
	_ "image/jpeg"
	_ "image/png"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/glowkit/glowd/internal/catalog"
	"github.com/glowkit/glowd/internal/store"
	"github.com/glowkit/glowd/internal/updater"
)

// ErrNotFound is returned when no image is cached and no locator is known
// for the model.
var ErrNotFound = errors.New("image not found")

// Defaults.
const (
	DefaultWorkers      = 10
	DefaultRateLimitRPS = 4.0
)

// Cache is the per-model image cache: disk-backed artifacts keyed by
// model ID, plus an in-memory set of locators that failed this session.
// Distinct models fetch independently; concurrent fetches for the same
// model coalesce into one network request, and total in-flight fetches
// are bounded.
type Cache struct {
	store   *store.Store
	catalog *catalog.Cache
	client  *http.Client

	group   singleflight.Group
	limiter *rate.Limiter
	sem     chan struct{}

	mu     sync.Mutex
	failed map[string]struct{} // locators, process lifetime only
}

// New creates a Cache. Zero workers/rps/timeout fall back to defaults.
func New(str *store.Store, cat *catalog.Cache, workers int, rps float64, timeout time.Duration) *Cache {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	if rps <= 0 {
		rps = DefaultRateLimitRPS
	}
	if timeout == 0 {
		timeout = 20 * time.Second
	}
	burst := int(rps)
	if burst < 1 {
		burst = 1
	}
	return &Cache{
		store:   str,
		catalog: cat,
		client:  &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
		sem:     make(chan struct{}, workers),
		failed:  make(map[string]struct{}),
	}
}

// FetchCached returns the cached image for a model without ever touching
// the network. UI paths that must not stall use this.
func (c *Cache) FetchCached(modelID string) (image.Image, error) {
	data, err := c.store.ReadImage(modelID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		// Unreadable artifact: drop it so the next Fetch refetches.
		log.Warn().Err(err).Str("model_id", modelID).Msg("Cached image undecodable, removed")
		if rmErr := c.store.RemoveImage(modelID); rmErr != nil {
			log.Warn().Err(rmErr).Str("model_id", modelID).Msg("Failed to remove cached image")
		}
		return nil, ErrNotFound
	}
	return img, nil
}

// Fetch returns the model's image, downloading and caching it on a miss.
// A locator that failed earlier this session fails immediately with
// FetchError(known_bad) and no network I/O.
func (c *Cache) Fetch(ctx context.Context, modelID string) (image.Image, error) {
	if img, err := c.FetchCached(modelID); err == nil {
		return img, nil
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	m, ok := c.catalog.Lookup(modelID)
	if !ok || m.ImageRef == "" {
		return nil, ErrNotFound
	}
	if c.isFailed(m.ImageRef) {
		return nil, &updater.FetchError{Reason: updater.ReasonKnownBad, Locator: m.ImageRef}
	}

	v, err, _ := c.group.Do(modelID, func() (any, error) {
		return c.download(ctx, modelID, m.ImageRef)
	})
	if err != nil {
		return nil, err
	}
	return v.(image.Image), nil
}

func (c *Cache) download(ctx context.Context, modelID, locator string) (image.Image, error) {
	// Another flight may have filled the cache while this one queued.
	if img, err := c.FetchCached(modelID); err == nil {
		return img, nil
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, &updater.FetchError{Reason: updater.ReasonUnreachable, Locator: locator, Err: err}
	}
	select {
	case c.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, &updater.FetchError{Reason: updater.ReasonUnreachable, Locator: locator, Err: ctx.Err()}
	}
	defer func() { <-c.sem }()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, locator, nil)
	if err != nil {
		c.markFailed(locator)
		return nil, &updater.FetchError{Reason: updater.ReasonUnreachable, Locator: locator, Err: err}
	}

	resp, err := c.client.Do(req)
	if err != nil {
		c.markFailed(locator)
		return nil, &updater.FetchError{Reason: updater.ReasonUnreachable, Locator: locator, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.markFailed(locator)
		return nil, &updater.FetchError{Reason: updater.ReasonBadStatus, Locator: locator, Status: resp.StatusCode}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		c.markFailed(locator)
		return nil, &updater.FetchError{Reason: updater.ReasonUnreachable, Locator: locator, Err: err}
	}

	// Validate before persisting so the cache never holds junk.
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		c.markFailed(locator)
		return nil, &updater.FetchError{Reason: updater.ReasonBadPayload, Locator: locator, Err: err}
	}

	if err := c.store.WriteImage(modelID, data); err != nil {
		return nil, err
	}

	log.Debug().Str("model_id", modelID).Int("bytes", len(data)).Msg("Image cached")
	return img, nil
}

// ResetFailures clears the failed-locator set. Operator action; the set
// is never persisted and also resets on restart.
func (c *Cache) ResetFailures() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failed = make(map[string]struct{})
}

// FailedCount returns the number of locators memoized as failed.
func (c *Cache) FailedCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.failed)
}

func (c *Cache) isFailed(locator string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.failed[locator]
	return ok
}

func (c *Cache) markFailed(locator string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failed[locator] = struct{}{}
}
