package protocol

import (
	"fmt"

	"github.com/jabolina/sensor-mesh/internal/logging"
)

// Handler processes one decoded Message. A handler that returns an
// error is understood to have hit a programmer error: the dispatcher
// re-raises it to its own caller, which for the inbound server means
// the error is absorbed per-connection without tearing down anything
// else.
type Handler func(Message) error

// ErrDuplicateHandler is returned by Register when kind already has a
// handler bound — fail-fast against double wiring.
type ErrDuplicateHandler struct {
	Kind Kind
}

func (e *ErrDuplicateHandler) Error() string {
	return fmt.Sprintf("protocol: handler already registered for kind %s", e.Kind)
}

// Dispatcher routes decoded messages to registered per-kind handlers.
// It owns no network state; it is purely a kind -> handler map.
type Dispatcher struct {
	log      logging.Logger
	handlers map[Kind]Handler
}

// NewDispatcher builds an empty Dispatcher.
func NewDispatcher(log logging.Logger) *Dispatcher {
	return &Dispatcher{
		log:      log,
		handlers: make(map[Kind]Handler),
	}
}

// Register binds handler to kind. Registering the same kind twice is
// a configuration error, fatal at startup: it returns
// ErrDuplicateHandler rather than panicking so callers can decide how
// loudly to fail.
func (d *Dispatcher) Register(kind Kind, handler Handler) error {
	if _, exists := d.handlers[kind]; exists {
		return &ErrDuplicateHandler{Kind: kind}
	}
	d.handlers[kind] = handler
	return nil
}

// MustRegister is Register, panicking on a duplicate registration.
// Protocol wiring happens once at startup from a single goroutine, so
// this is the ergonomic entry point for cmd/sensor-mesh.
func (d *Dispatcher) MustRegister(kind Kind, handler Handler) {
	if err := d.Register(kind, handler); err != nil {
		panic(err)
	}
}

// NotImplementedHandler builds a Handler for a kind that is registered
// but has no behavior yet (PING/PONG). It never panics; it returns a
// *HandlerValidationError that the dispatcher's caller logs and
// swallows.
func NotImplementedHandler(kind Kind) Handler {
	return func(Message) error {
		return &HandlerValidationError{Kind: kind, Reason: "not implemented"}
	}
}

// Dispatch looks up the handler for msg.Kind. An unknown kind is
// logged and ignored — unknown kinds are non-fatal at the protocol
// layer. A handler error is returned to the caller, which for the
// inbound server means the connection loop absorbs it and keeps
// reading the next frame.
func (d *Dispatcher) Dispatch(msg Message) error {
	handler, ok := d.handlers[msg.Kind]
	if !ok {
		d.log.Debugf("dispatch: no handler registered for kind %s, ignoring", msg.Kind)
		return nil
	}
	return handler(msg)
}
