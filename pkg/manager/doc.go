// Package manager provides the client side of the Asterisk Manager
// Interface: sending actions, correlating their responses, and dispatching
// the event stream.
//
// # Pipeline
//
// One listener goroutine (owned by pkg/service) reads blocks off the
// connection and feeds every classified message into the Client:
//
//	read loop -> wire.ParseBlock -> Client.HandleMessage
//	                                   |
//	                 response with known ActionID -> waiting Send call
//	                 everything else              -> Dispatcher
//
// Any number of goroutines may call Send concurrently. The connection is a
// single shared stream, so events arrive interleaved with responses; a Send
// call only resolves on the response carrying its own correlation token and
// never consumes other traffic.
//
// # Correlation
//
// Every outbound action carries an ActionID. Callers may set their own;
// otherwise a fresh UUID is attached. A response matching no pending action
// is forwarded to the Dispatcher so it is not silently dropped, except when
// its token belongs to an action that already timed out - those late
// responses are discarded.
//
// # Dispatch
//
// The Dispatcher delivers each event first to the built-in tracker handler,
// then to registered per-event handlers in registration order, then to
// catch-all handlers. A handler error or panic is logged and never stops
// delivery to the remaining handlers.
package manager
