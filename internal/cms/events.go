package cms

import (
	"fmt"
	"sync"
)

// EventType names a notification raised by the service.
type EventType string

const (
	// EventPublishProject fires once per publish run with the full result.
	EventPublishProject EventType = "publish_project"
	// EventPublishResource fires once per successfully promoted resource,
	// and once more for the target of every direct publish run, whether or
	// not the target itself was promoted.
	EventPublishResource EventType = "publish_resource"
)

// Event carries the payload of a notification.
type Event struct {
	Type     EventType
	Result   *PublishResult
	Resource *Resource
}

// Listener handles an event. Listeners must not block for long: they run
// on the publishing goroutine.
type Listener func(Event)

// EventBus dispatches events to registered listeners. Delivery is
// best-effort: a panicking listener is logged and skipped.
type EventBus struct {
	mu        sync.RWMutex
	listeners map[EventType][]Listener
	logger    Logger
}

// NewEventBus creates an empty bus.
func NewEventBus(logger Logger) *EventBus {
	return &EventBus{listeners: make(map[EventType][]Listener), logger: logger}
}

// On registers a listener for an event type.
func (b *EventBus) On(t EventType, l Listener) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.listeners[t] = append(b.listeners[t], l)
}

// Emit delivers e to every listener registered for its type.
func (b *EventBus) Emit(e Event) {
	b.mu.RLock()
	listeners := append([]Listener(nil), b.listeners[e.Type]...)
	b.mu.RUnlock()

	for _, l := range listeners {
		b.deliver(l, e)
	}
}

func (b *EventBus) deliver(l Listener, e Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event listener panicked", "event", string(e.Type), "panic", fmt.Sprint(r))
		}
	}()
	l(e)
}

// Reporter receives structured publish progress. Presentation is up to the
// implementation.
type Reporter interface {
	// Stage announces the start of a publish phase.
	Stage(name string, count int)
	// Published records a successfully promoted resource.
	Published(path string, state State)
	// Failed records a resource that could not be promoted.
	Failed(path string, state State, err error)
}

// NopReporter discards all progress.
type NopReporter struct{}

func (NopReporter) Stage(string, int)           {}
func (NopReporter) Published(string, State)     {}
func (NopReporter) Failed(string, State, error) {}
