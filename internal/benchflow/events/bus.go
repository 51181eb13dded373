// Package events provides the in-process notification bus that decouples the
// run tracker from the reporting side of the engine. The sequencer drives
// state transitions; result extraction, leaderboard updates and
// post-processing triggers all react to events instead of being called
// inline.
package events

import (
	"context"
	"sync"
	"time"

	"github.com/benchflow/benchflow/internal/benchflow/run"
	"github.com/benchflow/benchflow/pkg/errors"
)

// EventType identifies a run lifecycle transition.
type EventType string

const (
	RunStarted   EventType = "run.started"
	RunSucceeded EventType = "run.succeeded"
	RunFailed    EventType = "run.failed"
	RunCanceled  EventType = "run.canceled"
)

// ForState maps a terminal or running state to its event type.
func ForState(s run.State) (EventType, bool) {
	switch s {
	case run.StateRunning:
		return RunStarted, true
	case run.StateSuccess:
		return RunSucceeded, true
	case run.StateError:
		return RunFailed, true
	case run.StateCanceled:
		return RunCanceled, true
	default:
		return "", false
	}
}

// Event carries a snapshot of the run at the moment of the transition.
// Handlers own the snapshot and may read it without further locking.
type Event struct {
	Type      EventType
	RunID     string
	Run       *run.Run
	Timestamp time.Time
}

// Handler receives run lifecycle events.
type Handler interface {
	Handle(ctx context.Context, event Event) error
	SupportedEvents() []EventType
}

// Bus manages event publication and subscription.
type Bus interface {
	Publish(ctx context.Context, event Event) error
	Subscribe(handler Handler)
}

// InMemoryBus is a mutex-guarded bus that delivers each event to its
// handlers concurrently and waits for all of them before returning.
type InMemoryBus struct {
	handlers map[EventType][]Handler
	mutex    sync.RWMutex
}

func NewInMemoryBus() *InMemoryBus {
	return &InMemoryBus{
		handlers: make(map[EventType][]Handler),
	}
}

// Subscribe registers the handler for every event type it supports.
func (b *InMemoryBus) Subscribe(handler Handler) {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	for _, t := range handler.SupportedEvents() {
		b.handlers[t] = append(b.handlers[t], handler)
	}
}

// Publish delivers the event to all registered handlers and collects their
// errors. Handler errors never affect the run's state; the caller decides
// whether to log or escalate them.
func (b *InMemoryBus) Publish(ctx context.Context, event Event) error {
	b.mutex.RLock()
	handlers := append([]Handler(nil), b.handlers[event.Type]...)
	b.mutex.RUnlock()

	if len(handlers) == 0 {
		return nil
	}

	var wg sync.WaitGroup
	errs := make([]error, len(handlers))
	for i, handler := range handlers {
		wg.Add(1)
		go func(i int, h Handler) {
			defer wg.Done()
			errs[i] = h.Handle(ctx, event)
		}(i, handler)
	}
	wg.Wait()

	return errors.Join(errs...)
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc struct {
	Types []EventType
	Func  func(ctx context.Context, event Event) error
}

func (h HandlerFunc) Handle(ctx context.Context, event Event) error {
	return h.Func(ctx, event)
}

func (h HandlerFunc) SupportedEvents() []EventType {
	return h.Types
}
