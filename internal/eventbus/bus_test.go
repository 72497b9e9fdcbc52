package eventbus

import (
	"context"
	"testing"
	"time"
)

func TestPublishSubscribe(t *testing.T) {
	b := NewWithConfig(2, 10)
	defer closeBus(b)

	got := make(chan Event, 1)
	b.Subscribe(EventTypeCountdown, func(e Event) {
		got <- e
	})

	b.Publish(Countdown(42))

	select {
	case e := <-got:
		if e.Type != EventTypeCountdown {
			t.Errorf("Type = %s, want %s", e.Type, EventTypeCountdown)
		}
		if e.Data["remaining_seconds"].(int64) != 42 {
			t.Errorf("remaining_seconds = %v, want 42", e.Data["remaining_seconds"])
		}
	case <-time.After(2 * time.Second):
		t.Fatal("event not delivered")
	}
}

func TestPublish_OnlyMatchingType(t *testing.T) {
	b := NewWithConfig(2, 10)
	defer closeBus(b)

	countdown := make(chan Event, 4)
	b.Subscribe(EventTypeCountdown, func(e Event) { countdown <- e })

	b.Publish(SyncOutcome("success", "", "auto", 2))
	b.Publish(Countdown(1))

	select {
	case e := <-countdown:
		if e.Type != EventTypeCountdown {
			t.Errorf("received %s on countdown subscription", e.Type)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("countdown event not delivered")
	}

	select {
	case e := <-countdown:
		t.Errorf("unexpected extra event: %+v", e)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestPublish_HandlerPanicDoesNotKillWorkers(t *testing.T) {
	b := NewWithConfig(1, 10)
	defer closeBus(b)

	got := make(chan Event, 1)
	b.Subscribe(EventTypeSyncOutcome, func(Event) { panic("boom") })
	b.Subscribe(EventTypeSyncOutcome, func(e Event) { got <- e })

	b.Publish(SyncOutcome("failure", "unreachable", "auto", 0))

	select {
	case <-got:
	case <-time.After(2 * time.Second):
		t.Fatal("second handler never ran after first panicked")
	}
}

func TestPublish_AfterCloseDropsEvent(t *testing.T) {
	b := NewWithConfig(1, 1)
	b.Subscribe(EventTypeCountdown, func(Event) {})
	closeBus(b)

	// A publisher outliving shutdown must never panic or block, no matter
	// how many times it fires into the stopped bus.
	for i := 0; i < 1000; i++ {
		b.Publish(Countdown(int64(i)))
	}
}

func TestClose_ConcurrentWithPublish(t *testing.T) {
	b := NewWithConfig(2, 4)
	b.Subscribe(EventTypeSyncOutcome, func(Event) {})

	stop := make(chan struct{})
	published := make(chan struct{})
	go func() {
		defer close(published)
		for i := 0; ; i++ {
			select {
			case <-stop:
				return
			default:
				b.Publish(SyncOutcome("failure", "unreachable", "auto", i))
			}
		}
	}()

	time.Sleep(10 * time.Millisecond)
	closeBus(b)
	close(stop)
	<-published
}

func TestSyncOutcomeEvent(t *testing.T) {
	e := SyncOutcome("failure", "bad_status", "forced", 2)
	if e.Data["status"] != "failure" || e.Data["reason"] != "bad_status" {
		t.Errorf("unexpected data: %+v", e.Data)
	}
	if e.Data["source"] != "forced" || e.Data["catalog_version"] != 2 {
		t.Errorf("unexpected data: %+v", e.Data)
	}
}

func closeBus(b *Bus) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	b.Close(ctx)
}
