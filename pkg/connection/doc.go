// Package connection provides lifecycle management for the manager link.
//
// This package handles:
//   - Link state tracking (disconnected, connecting, connected, ready)
//   - Automatic reconnection on connection loss
//   - Retry delay calculation (fixed by default, exponential optional)
//
// # Link States
//
//	DISCONNECTED -> CONNECTING -> CONNECTED -> READY
//
// CONNECTED means the TCP connection and greeting banner are done but the
// Login action has not succeeded yet. READY means authenticated and
// receiving events. Any loss drops the link straight back to DISCONNECTED;
// there is no intermediate state for a reconnect in progress.
//
// # Reconnection Strategy
//
// The read loop and keepalive only report a dead link via
// NotifyConnectionLost; the Supervisor owns the reconnect decision. By
// default attempts are retried every 2 seconds. Exponential backoff with
// jitter is available for deployments where many connectors share a switch:
//
//	actual_delay = base_delay + random(0, base_delay * 0.25)
//
// Backoff resets only after a full login succeeds; transport success with
// authentication failure does not reset it.
package connection
