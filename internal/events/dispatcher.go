package events

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"
)

// ErrDispatcherClosed is returned by Publish after Close.
var ErrDispatcherClosed = errors.New("events: dispatcher closed")

// ErrQueueFull is returned when the async queue cannot take more events.
var ErrQueueFull = errors.New("events: queue full")

// EventHandler handles a published event.
type EventHandler func(context.Context, Event) error

// Dispatcher interface allows event publication/subscription.
type Dispatcher interface {
	Publish(ctx context.Context, event Event) error
	Subscribe(eventType EventType, handler EventHandler)
}

type registry struct {
	mu        sync.RWMutex
	listeners map[EventType][]EventHandler
}

func (r *registry) Subscribe(eventType EventType, handler EventHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners[eventType] = append(r.listeners[eventType], handler)
}

func (r *registry) handlers(eventType EventType) []EventHandler {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]EventHandler{}, r.listeners[eventType]...)
}

// inMemoryDispatcher invokes handlers synchronously. Used in tests.
type inMemoryDispatcher struct {
	registry
	logger *zap.Logger
}

// NewInMemoryDispatcher creates a synchronous dispatcher. Handler errors are
// logged and do not stop the remaining handlers.
func NewInMemoryDispatcher(logger *zap.Logger) Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &inMemoryDispatcher{
		registry: registry{listeners: make(map[EventType][]EventHandler)},
		logger:   logger,
	}
}

func (d *inMemoryDispatcher) Publish(ctx context.Context, event Event) error {
	for _, handler := range d.handlers(event.Type) {
		if err := handler(ctx, event); err != nil {
			d.logger.Warn("event handler failed",
				zap.String("event", string(event.Type)),
				zap.String("ticket_id", event.TicketID),
				zap.Error(err))
		}
	}
	return nil
}

// AsyncDispatcher queues events and runs handlers on a fixed worker pool so
// publishers never wait on delivery.
type AsyncDispatcher struct {
	registry
	logger  *zap.Logger
	queue   chan Event
	wg      sync.WaitGroup
	mu      sync.RWMutex
	closed  bool
	onError func(Event, error)
}

// NewAsyncDispatcher starts workers goroutines reading from a queue of size
// queueSize.
func NewAsyncDispatcher(workers, queueSize int, logger *zap.Logger) *AsyncDispatcher {
	if workers <= 0 {
		workers = 1
	}
	if queueSize <= 0 {
		queueSize = 64
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	d := &AsyncDispatcher{
		registry: registry{listeners: make(map[EventType][]EventHandler)},
		logger:   logger,
		queue:    make(chan Event, queueSize),
	}
	for i := 0; i < workers; i++ {
		d.wg.Add(1)
		go d.run()
	}
	return d
}

// OnError sets a hook invoked for every failed handler. Must be called
// before events are published.
func (d *AsyncDispatcher) OnError(fn func(Event, error)) {
	d.onError = fn
}

// Publish enqueues event without blocking.
func (d *AsyncDispatcher) Publish(ctx context.Context, event Event) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrDispatcherClosed
	}
	select {
	case d.queue <- event:
		return nil
	default:
		return ErrQueueFull
	}
}

// Close stops accepting events and waits until queued events are handled
// or ctx is done.
func (d *AsyncDispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *AsyncDispatcher) run() {
	defer d.wg.Done()
	for event := range d.queue {
		for _, handler := range d.handlers(event.Type) {
			if err := handler(context.Background(), event); err != nil {
				d.logger.Warn("event handler failed",
					zap.String("event", string(event.Type)),
					zap.String("ticket_id", event.TicketID),
					zap.Error(err))
				if d.onError != nil {
					d.onError(event, err)
				}
			}
		}
	}
}
