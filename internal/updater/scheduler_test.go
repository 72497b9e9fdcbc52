package updater

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/glowkit/glowd/internal/eventbus"
	"github.com/glowkit/glowd/internal/state"
)

func countingServer(t *testing.T, status int, delay time.Duration) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var count atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		count.Add(1)
		if delay > 0 {
			time.Sleep(delay)
		}
		if status != http.StatusOK {
			http.Error(w, "nope", status)
			return
		}
		w.Write(validCatalog)
	}))
	t.Cleanup(srv.Close)
	return srv, &count
}

func startScheduler(t *testing.T, h *harness, ttl, tick time.Duration) *Scheduler {
	t.Helper()
	sched := NewScheduler(h.fetcher, h.state, h.bus, ttl, tick)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go sched.Run(ctx)
	return sched
}

func waitForCount(t *testing.T, count *atomic.Int32, want int32, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if count.Load() >= want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("count = %d, want %d within %v", count.Load(), want, timeout)
}

func TestScheduler_FirstCheckDueImmediately(t *testing.T) {
	srv, count := countingServer(t, http.StatusOK, 0)
	h := newHarness(t, srv.URL)

	startScheduler(t, h, time.Hour, 10*time.Millisecond)

	// No prior attempt exists, so the first tick triggers a fetch.
	waitForCount(t, count, 1, 2*time.Second)

	// With the TTL reset to a full hour, no further fetches follow.
	time.Sleep(150 * time.Millisecond)
	if got := count.Load(); got != 1 {
		t.Errorf("fetch count = %d, want 1", got)
	}
}

func TestScheduler_NoRetryBeforeFullInterval(t *testing.T) {
	srv, count := countingServer(t, http.StatusInternalServerError, 0)
	h := newHarness(t, srv.URL)

	startScheduler(t, h, time.Hour, 10*time.Millisecond)

	waitForCount(t, count, 1, 2*time.Second)

	// The attempt failed, but the next automatic attempt still waits a
	// full interval from the first one.
	time.Sleep(200 * time.Millisecond)
	if got := count.Load(); got != 1 {
		t.Errorf("fetch count = %d, want 1 (no immediate retry)", got)
	}
}

func TestScheduler_ForceBypassesInterval(t *testing.T) {
	srv, count := countingServer(t, http.StatusOK, 0)
	h := newHarness(t, srv.URL)

	// Pretend a check just happened so nothing is due.
	if err := h.state.MarkAttempt(time.Now()); err != nil {
		t.Fatal(err)
	}

	sched := startScheduler(t, h, time.Hour, 10*time.Millisecond)

	time.Sleep(100 * time.Millisecond)
	if got := count.Load(); got != 0 {
		t.Fatalf("fetch count = %d before force, want 0", got)
	}

	sched.ForceSync()
	waitForCount(t, count, 1, 2*time.Second)
}

func TestScheduler_ConcurrentForceCoalesced(t *testing.T) {
	srv, count := countingServer(t, http.StatusOK, 300*time.Millisecond)
	h := newHarness(t, srv.URL)

	if err := h.state.MarkAttempt(time.Now()); err != nil {
		t.Fatal(err)
	}

	sched := startScheduler(t, h, time.Hour, 10*time.Millisecond)

	sched.ForceSync()
	sched.ForceSync()
	sched.ForceSync()

	waitForCount(t, count, 1, 2*time.Second)
	time.Sleep(500 * time.Millisecond)
	if got := count.Load(); got != 1 {
		t.Errorf("fetch count = %d, want 1 (forces while in flight coalesce)", got)
	}
}

func TestScheduler_DisabledPublishesNothing(t *testing.T) {
	srv, count := countingServer(t, http.StatusOK, 0)
	h := newHarness(t, srv.URL)

	if err := h.state.SetFetchMode(state.ModeDisabled); err != nil {
		t.Fatal(err)
	}

	countdowns := make(chan eventbus.Event, 32)
	h.bus.Subscribe(eventbus.EventTypeCountdown, func(e eventbus.Event) { countdowns <- e })

	startScheduler(t, h, time.Hour, 10*time.Millisecond)

	time.Sleep(150 * time.Millisecond)
	if got := count.Load(); got != 0 {
		t.Errorf("fetch count = %d, want 0 while disabled", got)
	}
	select {
	case e := <-countdowns:
		t.Errorf("unexpected countdown event while disabled: %+v", e)
	default:
	}
}

func TestScheduler_CountdownPublished(t *testing.T) {
	srv, _ := countingServer(t, http.StatusOK, 0)
	h := newHarness(t, srv.URL)

	if err := h.state.MarkAttempt(time.Now()); err != nil {
		t.Fatal(err)
	}

	countdowns := make(chan eventbus.Event, 32)
	h.bus.Subscribe(eventbus.EventTypeCountdown, func(e eventbus.Event) { countdowns <- e })

	startScheduler(t, h, time.Hour, 10*time.Millisecond)

	select {
	case e := <-countdowns:
		remaining := e.Data["remaining_seconds"].(int64)
		if remaining <= 0 || remaining > 3600 {
			t.Errorf("remaining_seconds = %d, want within (0, 3600]", remaining)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no countdown event published")
	}
}

func TestScheduler_RemainingTTL(t *testing.T) {
	srv, count := countingServer(t, http.StatusOK, 0)
	h := newHarness(t, srv.URL)

	sched := NewScheduler(h.fetcher, h.state, h.bus, time.Hour, 10*time.Millisecond)

	// Nothing attempted yet: a check is due now.
	if r := sched.RemainingTTL(); r != 0 {
		t.Errorf("RemainingTTL = %v before first attempt, want 0", r)
	}

	if err := h.fetcher.Sync(context.Background(), SourceForced); err != nil {
		t.Fatalf("Sync failed: %v", err)
	}
	if count.Load() != 1 {
		t.Fatalf("expected one fetch, got %d", count.Load())
	}

	// The interval resets to (nearly) the full TTL after an attempt...
	r1 := sched.RemainingTTL()
	if r1 <= 59*time.Minute {
		t.Errorf("RemainingTTL = %v after attempt, want close to 1h", r1)
	}

	// ...and strictly decreases as time passes without another sync.
	time.Sleep(30 * time.Millisecond)
	if r2 := sched.RemainingTTL(); r2 >= r1 {
		t.Errorf("RemainingTTL did not decrease: %v -> %v", r1, r2)
	}
}
