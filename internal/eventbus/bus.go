// Package eventbus delivers core events (sync countdown ticks, sync
// outcomes) to in-process subscribers. Delivery is best-effort and
// fire-and-forget: slow or absent subscribers never block the scheduler.
package eventbus

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"
)

// EventType represents the type of event
type EventType string

const (
	// EventTypeCountdown carries remaining seconds until the next
	// scheduled catalog check. Published on every scheduler tick while
	// syncing is not disabled.
	EventTypeCountdown EventType = "countdown"

	// EventTypeSyncOutcome carries the result of a sync attempt,
	// automatic or forced.
	EventTypeSyncOutcome EventType = "sync_outcome"
)

// Default configuration
const (
	DefaultWorkerCount = 4
	DefaultQueueSize   = 100
)

// Event is one published event.
type Event struct {
	Type EventType
	Data map[string]any
}

// Countdown builds a countdown tick event.
func Countdown(remainingSeconds int64) Event {
	return Event{
		Type: EventTypeCountdown,
		Data: map[string]any{"remaining_seconds": remainingSeconds},
	}
}

// SyncOutcome builds a sync outcome event. Reason is empty on success.
func SyncOutcome(status, reason, source string, catalogVersion int) Event {
	return Event{
		Type: EventTypeSyncOutcome,
		Data: map[string]any{
			"status":          status,
			"reason":          reason,
			"source":          source,
			"catalog_version": catalogVersion,
		},
	}
}

// Handler is a function that handles events
type Handler func(Event)

// work represents a unit of work for the worker pool
type work struct {
	event   Event
	handler Handler
}

// Bus provides event routing with a bounded worker pool
type Bus struct {
	mu       sync.RWMutex
	handlers map[EventType][]Handler

	// Worker pool. The queue is never closed; workers exit on the closing
	// signal instead, so a publisher racing shutdown can never hit a
	// closed channel.
	workQueue chan work
	wg        sync.WaitGroup

	// Shutdown signaling - closing this channel signals publishers and
	// workers to stop. Using a channel in select is race-free (unlike
	// mutex + bool)
	closing   chan struct{}
	closeOnce sync.Once
}

// New creates a new event bus with default settings
func New() *Bus {
	return NewWithConfig(DefaultWorkerCount, DefaultQueueSize)
}

// NewWithConfig creates a new event bus with custom worker count and queue size
func NewWithConfig(workerCount, queueSize int) *Bus {
	b := &Bus{
		handlers:  make(map[EventType][]Handler),
		workQueue: make(chan work, queueSize),
		closing:   make(chan struct{}),
	}

	for i := 0; i < workerCount; i++ {
		b.wg.Add(1)
		go b.worker(i)
	}

	log.Debug().Int("workers", workerCount).Int("queue_size", queueSize).Msg("Event bus worker pool started")
	return b
}

// worker processes events from the work queue until the bus is closing,
// then drains whatever is already queued and exits.
func (b *Bus) worker(id int) {
	defer b.wg.Done()

	for {
		select {
		case <-b.closing:
			for {
				select {
				case w := <-b.workQueue:
					b.handle(id, w)
				default:
					return
				}
			}
		case w := <-b.workQueue:
			b.handle(id, w)
		}
	}
}

// handle runs one handler with panic isolation.
func (b *Bus) handle(id int, w work) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Interface("panic", r).
				Str("event_type", string(w.event.Type)).
				Int("worker", id).
				Msg("Event handler panicked")
		}
	}()
	w.handler(w.event)
}

// Subscribe registers a handler for a specific event type
func (b *Bus) Subscribe(eventType EventType, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.handlers[eventType] = append(b.handlers[eventType], handler)
}

// Publish sends an event to all subscribed handlers.
// Non-blocking: if the work queue is full or bus is closing, events are dropped.
func (b *Bus) Publish(event Event) {
	b.mu.RLock()
	handlers := b.handlers[event.Type]
	b.mu.RUnlock()

	for _, handler := range handlers {
		select {
		case <-b.closing:
			log.Warn().Str("event_type", string(event.Type)).Msg("Event bus closing, dropping event")
			return
		case b.workQueue <- work{event: event, handler: handler}:
			// Successfully queued
		default:
			// Queue full - drop event with warning
			log.Warn().
				Str("event_type", string(event.Type)).
				Msg("Event bus queue full, dropping event")
		}
	}
}

// Close shuts down the worker pool gracefully. Workers drain the queued
// backlog and exit; anything published after that is dropped, never a
// panic, even from goroutines still running past shutdown.
func (b *Bus) Close(ctx context.Context) {
	b.closeOnce.Do(func() {
		close(b.closing)
	})

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Debug().Msg("Event bus workers stopped gracefully")
	case <-ctx.Done():
		log.Warn().Msg("Event bus shutdown timed out, some events may be lost")
	}
}

// Clear removes all handlers
func (b *Bus) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.handlers = make(map[EventType][]Handler)
}
