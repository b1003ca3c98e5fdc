package calls

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/grothdavid/ccdashboard-freepbx2/pkg/capture"
	"github.com/grothdavid/ccdashboard-freepbx2/pkg/wire"
)

// Tracker derives live call and device state from the event stream. It
// installs itself as the dispatcher's built-in handler and is mutated only
// from the listener goroutine; accessors return copies so readers never
// race with event application.
//
// Event application performs no I/O. Callbacks run synchronously on the
// listener goroutine and must return quickly.
type Tracker struct {
	mu sync.RWMutex

	calls   map[string]*Call
	devices map[string]*Device

	// Callbacks for state transitions.
	onCallStarted func(call Call)
	onCallUpdated func(call Call)
	onCallEnded   func(call Call)
	onDeviceState func(device Device)

	capture capture.Logger
	connID  string

	logger zerolog.Logger

	// now is replaceable for tests.
	now func() time.Time
}

// NewTracker creates an empty tracker logging through logger.
func NewTracker(logger zerolog.Logger) *Tracker {
	return &Tracker{
		calls:   make(map[string]*Call),
		devices: make(map[string]*Device),
		logger:  logger.With().Str("component", "tracker").Logger(),
		now:     time.Now,
	}
}

// SetCapture attaches a capture logger recording call and device state
// changes.
func (t *Tracker) SetCapture(logger capture.Logger, connID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.capture = logger
	t.connID = connID
}

// OnCallStarted sets a callback invoked when a new call appears.
func (t *Tracker) OnCallStarted(fn func(call Call)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onCallStarted = fn
}

// OnCallUpdated sets a callback invoked when a tracked call changes state.
func (t *Tracker) OnCallUpdated(fn func(call Call)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onCallUpdated = fn
}

// OnCallEnded sets a callback invoked when a tracked call hangs up. The
// call carries its final pre-hangup state.
func (t *Tracker) OnCallEnded(fn func(call Call)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onCallEnded = fn
}

// OnDeviceState sets a callback invoked on every device state report.
func (t *Tracker) OnDeviceState(fn func(device Device)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onDeviceState = fn
}

// HandleEvent applies one event to the derived state. Events the tracker
// does not recognize (queue traffic and the like) pass through untouched;
// they are the registered handlers' business.
func (t *Tracker) HandleEvent(msg *wire.Message) error {
	switch strings.ToLower(msg.Name()) {
	case "newchannel":
		t.handleNewChannel(msg)
	case "newstate":
		t.handleNewState(msg)
	case "hangup":
		t.handleHangup(msg)
	case "bridgeenter":
		t.handleBridgeEnter(msg)
	case "bridge":
		t.handleLegacyBridge(msg)
	case "devicestatechange":
		t.handleDeviceState(msg)
	case "extensionstatus":
		t.handleExtensionStatus(msg)
	}
	return nil
}

// ActiveCalls returns a point-in-time copy of every tracked call, ordered
// by start time (unique ID as tiebreak).
func (t *Tracker) ActiveCalls() []Call {
	t.mu.RLock()
	out := make([]Call, 0, len(t.calls))
	for _, c := range t.calls {
		out = append(out, *c)
	}
	t.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].StartedAt.Before(out[j].StartedAt)
		}
		return out[i].UniqueID < out[j].UniqueID
	})
	return out
}

// Call returns a copy of the call with the given unique ID.
func (t *Tracker) Call(uniqueID string) (Call, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	c, ok := t.calls[uniqueID]
	if !ok {
		return Call{}, false
	}
	return *c, true
}

// CallForExtension returns the oldest tracked call on the given local
// extension.
func (t *Tracker) CallForExtension(extension string) (Call, bool) {
	if extension == "" {
		return Call{}, false
	}
	var found *Call
	t.mu.RLock()
	for _, c := range t.calls {
		if c.Extension != extension {
			continue
		}
		if found == nil || c.StartedAt.Before(found.StartedAt) {
			found = c
		}
	}
	t.mu.RUnlock()
	if found == nil {
		return Call{}, false
	}
	return *found, true
}

// CallCount returns the number of tracked calls.
func (t *Tracker) CallCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.calls)
}

// DeviceStates returns a point-in-time copy of the device state map.
func (t *Tracker) DeviceStates() map[string]Device {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[string]Device, len(t.devices))
	for name, d := range t.devices {
		out[name] = *d
	}
	return out
}

// DeviceState returns a copy of the named device's last report.
func (t *Tracker) DeviceState(name string) (Device, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	d, ok := t.devices[name]
	if !ok {
		return Device{}, false
	}
	return *d, true
}

// DeviceCount returns the number of devices with a known state.
func (t *Tracker) DeviceCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.devices)
}

// Clear wipes all tracked state. The supervisor calls this on disconnect:
// calls and device states are only valid for the connection that produced
// them.
func (t *Tracker) Clear() {
	t.mu.Lock()
	calls := len(t.calls)
	devices := len(t.devices)
	t.calls = make(map[string]*Call)
	t.devices = make(map[string]*Device)
	t.mu.Unlock()

	if calls > 0 || devices > 0 {
		t.logger.Debug().
			Int("calls", calls).
			Int("devices", devices).
			Msg("cleared tracked state")
	}
}

func (t *Tracker) handleNewChannel(msg *wire.Message) {
	uniqueID := msg.Get("Uniqueid")
	if uniqueID == "" {
		return
	}

	channel := msg.Get("Channel")
	call := &Call{
		UniqueID:    uniqueID,
		Channel:     channel,
		CallerID:    msg.Get("CallerIDNum"),
		Destination: msg.Get("Exten"),
		Context:     msg.Get("Context"),
		Extension:   ExtractExtension(channel),
		State:       StateRinging,
		Direction:   DeriveDirection(msg.Get("Context")),
		StartedAt:   t.now(),
	}

	t.mu.Lock()
	t.calls[uniqueID] = call
	cb := t.onCallStarted
	snapshot := *call
	t.mu.Unlock()

	t.logger.Debug().
		Str("uniqueid", uniqueID).
		Str("channel", channel).
		Str("direction", string(call.Direction)).
		Msg("call started")
	t.captureState("call", uniqueID, "", StateRinging, "")

	if cb != nil {
		cb(snapshot)
	}
}

func (t *Tracker) handleNewState(msg *wire.Message) {
	uniqueID := msg.Get("Uniqueid")
	if uniqueID == "" {
		return
	}

	// Prefer the descriptive state; older switches only send the numeric
	// ChannelState.
	state := msg.Get("ChannelStateDesc")
	if state == "" {
		state = msg.Get("ChannelState")
	}
	if state == "" {
		return
	}
	state = strings.ToLower(state)

	t.updateCallState(uniqueID, state)
}

func (t *Tracker) handleBridgeEnter(msg *wire.Message) {
	t.updateCallState(msg.Get("Uniqueid"), StateBridged)
}

// handleLegacyBridge covers the pre-bridge-model Bridge event, which names
// both legs at once.
func (t *Tracker) handleLegacyBridge(msg *wire.Message) {
	t.updateCallState(msg.Get("Uniqueid1"), StateBridged)
	t.updateCallState(msg.Get("Uniqueid2"), StateBridged)
}

// updateCallState moves a tracked call to state. Unknown unique IDs are
// ignored: the channel may predate this connection.
func (t *Tracker) updateCallState(uniqueID, state string) {
	if uniqueID == "" || state == "" {
		return
	}

	t.mu.Lock()
	call, ok := t.calls[uniqueID]
	if !ok || call.State == state {
		t.mu.Unlock()
		return
	}
	oldState := call.State
	call.State = state
	cb := t.onCallUpdated
	snapshot := *call
	t.mu.Unlock()

	t.logger.Debug().
		Str("uniqueid", uniqueID).
		Str("state", state).
		Msg("call state changed")
	t.captureState("call", uniqueID, oldState, state, "")

	if cb != nil {
		cb(snapshot)
	}
}

func (t *Tracker) handleHangup(msg *wire.Message) {
	uniqueID := msg.Get("Uniqueid")
	if uniqueID == "" {
		return
	}

	t.mu.Lock()
	call, ok := t.calls[uniqueID]
	if !ok {
		// Hangup for a channel we never saw. Not an error.
		t.mu.Unlock()
		return
	}
	delete(t.calls, uniqueID)
	cb := t.onCallEnded
	snapshot := *call
	t.mu.Unlock()

	cause := msg.Get("Cause-txt")
	if cause == "" {
		cause = msg.Get("Cause")
	}
	t.logger.Debug().
		Str("uniqueid", uniqueID).
		Str("cause", cause).
		Msg("call ended")
	t.captureState("call", uniqueID, snapshot.State, StateEnded, cause)

	if cb != nil {
		cb(snapshot)
	}
}

func (t *Tracker) handleDeviceState(msg *wire.Message) {
	t.upsertDevice(msg.Get("Device"), msg.Get("State"))
}

// handleExtensionStatus maps hint status reports onto device state. The
// event identifies the device by hint; fall back to the bare extension
// when the switch omits it.
func (t *Tracker) handleExtensionStatus(msg *wire.Message) {
	name := msg.Get("Device")
	if name == "" {
		name = msg.Get("Exten")
	}
	state := msg.Get("State")
	if state == "" {
		state = msg.Get("StatusText")
	}
	if state == "" {
		state = msg.Get("Status")
	}
	t.upsertDevice(name, state)
}

func (t *Tracker) upsertDevice(name, state string) {
	if name == "" {
		return
	}

	t.mu.Lock()
	oldState := ""
	if existing, ok := t.devices[name]; ok {
		oldState = existing.State
	}
	device := &Device{
		Name:      name,
		State:     state,
		UpdatedAt: t.now(),
	}
	t.devices[name] = device
	cb := t.onDeviceState
	snapshot := *device
	t.mu.Unlock()

	if oldState != state {
		t.logger.Debug().
			Str("device", name).
			Str("state", state).
			Msg("device state changed")
		t.captureState("device", name, oldState, state, "")
	}

	if cb != nil {
		cb(snapshot)
	}
}

func (t *Tracker) captureState(entity, entityID, oldState, newState, reason string) {
	t.mu.RLock()
	logger := t.capture
	connID := t.connID
	t.mu.RUnlock()
	if logger == nil {
		return
	}

	logger.Log(capture.Record{
		Timestamp:    time.Now(),
		ConnectionID: connID,
		Direction:    capture.DirectionIn,
		Layer:        capture.LayerService,
		Category:     capture.CategoryState,
		StateChange: &capture.StateChangeRecord{
			Entity:   entity,
			EntityID: entityID,
			OldState: oldState,
			NewState: newState,
			Reason:   reason,
		},
	})
}
