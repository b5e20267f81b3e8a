package coordinator

import (
	"log/slog"
	"sync"

	"zigbee-gadgets/internal/gadget"
)

// Indication types pushed to the UI transports.
const (
	IndReady         = "ready"
	IndPermitJoining = "permitJoining"
	IndError         = "error"
	IndDevIncoming   = "devIncoming"
	IndDevStatus     = "devStatus"
	IndAttrsChange   = "attrsChange"
)

// PermitJoiningData is the payload of IndPermitJoining.
type PermitJoiningData struct {
	TimeLeft int `json:"timeLeft"`
}

// ErrorData is the payload of IndError.
type ErrorData struct {
	Msg string `json:"msg"`
}

// DevIncomingData is the payload of IndDevIncoming.
type DevIncomingData struct {
	Dev DeviceRecord `json:"dev"`
}

// DevStatusData is the payload of IndDevStatus.
type DevStatusData struct {
	PermAddr string `json:"permAddr"`
	Status   string `json:"status"`
}

// AttrsChangeData is the payload of IndAttrsChange.
type AttrsChangeData struct {
	PermAddr string        `json:"permAddr"`
	Gad      gadget.Record `json:"gad"`
}

// Event is an indication. Data holds one of the *Data payload types above;
// IndReady carries an empty struct.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// EventHandler is a callback for events.
type EventHandler func(Event)

// EventBus provides pub/sub for indications.
type EventBus struct {
	mu          sync.RWMutex
	handlers    map[string]map[uint64]EventHandler
	allHandlers map[uint64]EventHandler
	nextID      uint64
	logger      *slog.Logger
}

// NewEventBus creates a new event bus.
func NewEventBus(logger *slog.Logger) *EventBus {
	return &EventBus{
		handlers:    make(map[string]map[uint64]EventHandler),
		allHandlers: make(map[uint64]EventHandler),
		logger:      logger,
	}
}

// On registers a handler for a specific event type.
// Returns an unsubscribe function.
func (eb *EventBus) On(eventType string, handler EventHandler) func() {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	id := eb.nextID
	eb.nextID++
	if eb.handlers[eventType] == nil {
		eb.handlers[eventType] = make(map[uint64]EventHandler)
	}
	eb.handlers[eventType][id] = handler
	return func() {
		eb.mu.Lock()
		defer eb.mu.Unlock()
		delete(eb.handlers[eventType], id)
	}
}

// OnAll registers a handler that receives all events.
// Returns an unsubscribe function.
func (eb *EventBus) OnAll(handler EventHandler) func() {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	id := eb.nextID
	eb.nextID++
	eb.allHandlers[id] = handler
	return func() {
		eb.mu.Lock()
		defer eb.mu.Unlock()
		delete(eb.allHandlers, id)
	}
}

// Emit sends an event to all matching handlers.
// Handlers are called synchronously; a panicking handler is recovered.
func (eb *EventBus) Emit(event Event) {
	eb.mu.RLock()
	handlers := make([]EventHandler, 0, len(eb.handlers[event.Type])+len(eb.allHandlers))
	for _, h := range eb.handlers[event.Type] {
		handlers = append(handlers, h)
	}
	for _, h := range eb.allHandlers {
		handlers = append(handlers, h)
	}
	eb.mu.RUnlock()

	for _, h := range handlers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					eb.logger.Error("event handler panic", "type", event.Type, "panic", r)
				}
			}()
			h(event)
		}()
	}
}
