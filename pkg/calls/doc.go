// Package calls derives live call and device state from the manager event
// stream.
//
// The [Tracker] consumes channel lifecycle events (Newchannel, Newstate,
// BridgeEnter, Hangup) and device reports (DeviceStateChange,
// ExtensionStatus) and maintains two maps: active calls keyed by the
// switch's unique channel ID, and device states keyed by device name.
// Everything it knows is derived; on reconnect the state is cleared and
// rebuilt from the new connection's events.
//
// # Call Lifecycle
//
// A call appears on Newchannel in state "ringing", moves through the
// channel states the switch reports (lowercased, e.g. "up"), reaches
// "bridged" when the channel enters a bridge, and is removed on Hangup.
// Events about channels the tracker never saw are ignored: the channel
// may predate the connection.
//
// # Direction and Extension
//
// Direction is derived from the dialplan context: contexts containing
// "from-external" or "from-pstn" are inbound, "from-internal" outbound,
// anything else internal. The local extension is extracted from SIP and
// PJSIP channel names of the form TECH/NNNN-suffix.
//
// Install the tracker as the dispatcher's built-in handler so it observes
// every event before user handlers run.
package calls
