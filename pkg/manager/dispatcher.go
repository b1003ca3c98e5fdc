package manager

import (
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/grothdavid/ccdashboard-freepbx2/pkg/wire"
)

// EventHandler processes one inbound message. A returned error is logged;
// it never stops delivery to the remaining handlers.
type EventHandler func(msg *wire.Message) error

// Dispatcher routes inbound messages that are not responses to pending
// actions. Events go first to the built-in tracker handler, then to every
// handler registered for the event name in registration order, then to the
// catch-all handlers. Unknown blocks are logged and dropped.
//
// Dispatch is called from the single listener goroutine, so handlers see
// events in exact wire order. Registration is safe at any time; handlers
// registered after dispatch has started see subsequent events only.
type Dispatcher struct {
	mu sync.RWMutex

	// Built-in handler, invoked before registered handlers for every
	// event. The call tracker installs itself here.
	builtin EventHandler

	// Per-event handlers keyed by lowercased event name.
	handlers map[string][]EventHandler

	// Catch-all handlers, invoked for every event and for unmatched
	// responses.
	catchAll []EventHandler

	// Invoked when a handler panics, after the panic is logged.
	onPanic func(eventName string)

	logger zerolog.Logger
}

// NewDispatcher creates a dispatcher logging through logger.
func NewDispatcher(logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		handlers: make(map[string][]EventHandler),
		logger:   logger.With().Str("component", "dispatcher").Logger(),
	}
}

// SetBuiltin installs the built-in handler invoked before registered
// handlers for every event.
func (d *Dispatcher) SetBuiltin(h EventHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.builtin = h
}

// Register adds a handler for the named event. Event names are matched
// case-insensitively.
func (d *Dispatcher) Register(eventName string, h EventHandler) {
	key := strings.ToLower(eventName)
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[key] = append(d.handlers[key], h)
}

// RegisterCatchAll adds a handler invoked for every event and for
// unmatched responses, after the per-event handlers.
func (d *Dispatcher) RegisterCatchAll(h EventHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.catchAll = append(d.catchAll, h)
}

// OnHandlerPanic sets a hook invoked with the event name whenever a
// handler panics.
func (d *Dispatcher) OnHandlerPanic(fn func(eventName string)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.onPanic = fn
}

// HandlerCount returns the number of handlers registered for the named
// event.
func (d *Dispatcher) HandlerCount(eventName string) int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.handlers[strings.ToLower(eventName)])
}

// Dispatch delivers one message. Events reach the built-in handler, then
// the per-event handlers, then the catch-all handlers. Unmatched responses
// reach only the catch-all handlers. Unknown blocks are dropped.
func (d *Dispatcher) Dispatch(msg *wire.Message) {
	switch msg.Kind() {
	case wire.KindEvent:
		d.dispatchEvent(msg)
	case wire.KindResponse:
		// A response nobody is waiting for. Hand it to the catch-all
		// handlers rather than dropping it on the floor.
		d.mu.RLock()
		catchAll := d.catchAll
		d.mu.RUnlock()
		for _, h := range catchAll {
			d.invoke("", h, msg)
		}
	default:
		d.logger.Debug().
			Int("headers", msg.Len()).
			Msg("dropping unclassifiable block")
	}
}

func (d *Dispatcher) dispatchEvent(msg *wire.Message) {
	name := msg.Name()

	d.mu.RLock()
	builtin := d.builtin
	named := d.handlers[strings.ToLower(name)]
	catchAll := d.catchAll
	d.mu.RUnlock()

	if builtin != nil {
		d.invoke(name, builtin, msg)
	}
	for _, h := range named {
		d.invoke(name, h, msg)
	}
	for _, h := range catchAll {
		d.invoke(name, h, msg)
	}
}

// invoke runs one handler, containing errors and panics so a misbehaving
// handler cannot break the listener loop or starve later handlers.
func (d *Dispatcher) invoke(eventName string, h EventHandler, msg *wire.Message) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error().
				Str("event", eventName).
				Interface("panic", r).
				Msg("event handler panicked")

			d.mu.RLock()
			hook := d.onPanic
			d.mu.RUnlock()
			if hook != nil {
				hook(eventName)
			}
		}
	}()

	if err := h(msg); err != nil {
		d.logger.Warn().
			Str("event", eventName).
			Err(err).
			Msg("event handler failed")
	}
}
