// Package service orchestrates one supervised manager session: the framed
// connection, action correlation, event dispatch, derived call and queue
// state, and reconnection.
//
// # Lifecycle
//
//	cfg := service.DefaultConfig()
//	cfg.Address = "pbx.example.com:5038"
//	cfg.Username = "dashboard_user"
//	cfg.Secret = secret
//
//	svc, err := service.New(cfg)
//	if err := svc.Start(ctx); err != nil { ... }
//	defer svc.Stop()
//
// Start dials, validates the greeting, authenticates, and requests the
// bulk state snapshot (QueueStatus, ExtensionStateList, DeviceStateList)
// so the tracker starts warm. A failed first connection fails Start; a
// later loss is detected by the read loop or keepalive, reported to the
// supervisor, and retried with exponential backoff while AutoReconnect is
// on. Derived state is cleared on every disconnect and rebuilt from the
// next connection's events.
//
// # Consuming state
//
// Live state is pulled through ActiveCalls, DeviceStates, and QueueStats,
// or pushed through the OnCallStarted, OnCallEnded, OnDeviceState, and
// OnConnectionState callbacks. SnapshotBuilder joins this live state with
// a directory.Store into the dashboard views served over HTTP and pushed
// upstream.
//
// Arbitrary manager actions go through SendAction; handlers for
// additional events register through RegisterEventHandler.
package service
