package events

import (
	"context"
	"sync"
	"time"

	"github.com/frankfrisby/backbone/pkg/logging"
)

// Type identifies a kind of state-change notification
type Type string

const (
	// TypeCircuitStateChange - a circuit breaker transitioned between states
	TypeCircuitStateChange Type = "circuit.state-change"
	// TypeModelSwitched - the fallback manager selected a different provider
	TypeModelSwitched Type = "model.switched"
	// TypeModelError - a provider failed but remains selected
	TypeModelError Type = "model.error"
	// TypeAllModelsFailed - no configured provider is available
	TypeAllModelsFailed Type = "model.all-failed"
	// TypeServiceError - a registered service call failed
	TypeServiceError Type = "service.error"
	// TypeHealthCheckFailed - an explicit health check probe failed
	TypeHealthCheckFailed Type = "health.check-failed"
	// TypeTaskCompleted - a task reached terminal COMPLETED status
	TypeTaskCompleted Type = "task.completed"
	// TypeTaskFailed - a task reached terminal FAILED status
	TypeTaskFailed Type = "task.failed"
)

// Event is a state-change notification published after the state it
// describes has already been committed, so subscribers never observe a
// transitional state.
type Event struct {
	Type      Type                   `json:"type"`
	Source    string                 `json:"source"`
	Timestamp time.Time              `json:"timestamp"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

// Handler defines the interface for event subscribers
type Handler interface {
	HandleEvent(ctx context.Context, event Event) error
	Name() string
}

// Bus routes events to subscribed handlers
type Bus struct {
	handlers []Handler
	mutex    sync.RWMutex
	logger   *logging.Logger
}

// NewBus creates a new event bus
func NewBus(logger *logging.Logger) *Bus {
	if logger == nil {
		logger = logging.GetLogger()
	}
	return &Bus{
		handlers: make([]Handler, 0),
		logger:   logger,
	}
}

// Subscribe adds a handler to the bus
func (b *Bus) Subscribe(handler Handler) {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	b.handlers = append(b.handlers, handler)
	b.logger.Debug("Event handler subscribed", "handler", handler.Name())
}

// Publish delivers an event to every subscribed handler. Handler errors are
// logged and swallowed; publication never fails the caller.
func (b *Bus) Publish(ctx context.Context, event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	b.mutex.RLock()
	handlers := make([]Handler, len(b.handlers))
	copy(handlers, b.handlers)
	b.mutex.RUnlock()

	for _, handler := range handlers {
		if err := handler.HandleEvent(ctx, event); err != nil {
			b.logger.Error("Event handler failed",
				"handler", handler.Name(),
				"event_type", string(event.Type),
				"source", event.Source,
				"error", err,
			)
		}
	}
}

// LoggingHandler logs every event to the application logger
type LoggingHandler struct {
	logger *logging.Logger
}

// NewLoggingHandler creates a new logging event handler
func NewLoggingHandler(logger *logging.Logger) *LoggingHandler {
	if logger == nil {
		logger = logging.GetLogger()
	}
	return &LoggingHandler{logger: logger}
}

// HandleEvent handles an event by logging it
func (h *LoggingHandler) HandleEvent(ctx context.Context, event Event) error {
	fields := []interface{}{
		"event_type", string(event.Type),
		"source", event.Source,
		"timestamp", event.Timestamp,
	}
	for key, value := range event.Fields {
		fields = append(fields, key, value)
	}

	switch event.Type {
	case TypeAllModelsFailed, TypeHealthCheckFailed:
		h.logger.Error("EVENT: "+string(event.Type), fields...)
	case TypeModelError, TypeServiceError, TypeTaskFailed:
		h.logger.Warn("EVENT: "+string(event.Type), fields...)
	default:
		h.logger.Info("EVENT: "+string(event.Type), fields...)
	}

	return nil
}

// Name returns the name of the handler
func (h *LoggingHandler) Name() string {
	return "logging"
}
