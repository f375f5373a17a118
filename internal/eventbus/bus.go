// Package eventbus provides an in-process pub/sub bus. Events received from
// the preview frame and drag-and-drop lifecycle events are published here;
// subscribers process them asynchronously on a single consumer goroutine.
package eventbus

import (
	"context"
	"log"
	"sync"

	"github.com/matthewbaird/pagecomposer/internal/event"
)

// Handler processes an event.
type Handler interface {
	HandleEvent(ctx context.Context, evt event.Event) error
}

// HandlerFunc adapts a plain function to the Handler interface.
type HandlerFunc func(ctx context.Context, evt event.Event) error

func (f HandlerFunc) HandleEvent(ctx context.Context, evt event.Event) error {
	return f(ctx, evt)
}

// Bus is a simple in-process event bus. Events are published to a buffered
// channel and dispatched to all subscribers in order, one event at a time.
type Bus struct {
	mu          sync.RWMutex
	subscribers []namedHandler
	events      chan event.Event
	done        chan struct{}
	startOnce   sync.Once
	stopOnce    sync.Once
	stopped     bool
	nextID      int
}

type namedHandler struct {
	id      int
	name    string
	topic   string // empty matches every event
	handler Handler
}

// New creates a new Bus with the given channel buffer size.
func New(bufSize int) *Bus {
	if bufSize < 1 {
		bufSize = 256
	}
	return &Bus{
		events: make(chan event.Event, bufSize),
		done:   make(chan struct{}),
	}
}

// Subscribe registers a named handler for every event.
func (b *Bus) Subscribe(name string, h Handler) (unsubscribe func()) {
	return b.subscribe(name, "", h)
}

// SubscribeTopic registers a named handler for events with the given name.
func (b *Bus) SubscribeTopic(name, topic string, h Handler) (unsubscribe func()) {
	return b.subscribe(name, topic, h)
}

func (b *Bus) subscribe(name, topic string, h Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	id := b.nextID
	b.subscribers = append(b.subscribers, namedHandler{id: id, name: name, topic: topic, handler: h})
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		subs := make([]namedHandler, 0, len(b.subscribers))
		for _, s := range b.subscribers {
			if s.id != id {
				subs = append(subs, s)
			}
		}
		b.subscribers = subs
	}
}

// Publish sends an event to the bus. Non-blocking: if the buffer is full or
// the bus has been stopped the event is dropped and a warning is logged.
func (b *Bus) Publish(_ context.Context, evt event.Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.stopped {
		log.Printf("eventbus: stopped, dropping event %s (%s)", evt.Name, evt.ID)
		return
	}
	select {
	case b.events <- evt:
	default:
		log.Printf("eventbus: buffer full, dropping event %s (%s)", evt.Name, evt.ID)
	}
}

// Start begins the consumer goroutine. It processes events until the
// context is cancelled or Stop is called. Calling Start more than once is a no-op.
func (b *Bus) Start(ctx context.Context) {
	b.startOnce.Do(func() {
		go b.run(ctx)
	})
}

func (b *Bus) run(ctx context.Context) {
	defer close(b.done)
	for {
		select {
		case evt, ok := <-b.events:
			if !ok {
				return
			}
			b.dispatch(ctx, evt)
		case <-ctx.Done():
			// Drain remaining events before exiting.
			for {
				select {
				case evt, ok := <-b.events:
					if !ok {
						return
					}
					b.dispatch(ctx, evt)
				default:
					return
				}
			}
		}
	}
}

// Stop closes the bus and waits for queued events to be dispatched.
func (b *Bus) Stop() {
	b.stopOnce.Do(func() {
		b.mu.Lock()
		b.stopped = true
		close(b.events)
		b.mu.Unlock()
		// Never started: nothing to wait for.
		started := true
		b.startOnce.Do(func() { started = false })
		if started {
			<-b.done
		}
	})
}

func (b *Bus) dispatch(ctx context.Context, evt event.Event) {
	b.mu.RLock()
	subs := b.subscribers
	b.mu.RUnlock()

	for _, s := range subs {
		if s.topic != "" && s.topic != evt.Name {
			continue
		}
		if err := s.handler.HandleEvent(ctx, evt); err != nil {
			log.Printf("eventbus: %s handler error for %s: %v", s.name, evt.Name, err)
		}
	}
}
