package calls

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/grothdavid/ccdashboard-freepbx2/pkg/capture"
	"github.com/grothdavid/ccdashboard-freepbx2/pkg/wire"
)

func testEvent(t *testing.T, lines ...string) *wire.Message {
	t.Helper()
	msg, err := wire.ParseBlock(lines)
	if err != nil {
		t.Fatalf("ParseBlock: %v", err)
	}
	return msg
}

// tickingClock returns strictly increasing timestamps.
type tickingClock struct {
	t time.Time
}

func (c *tickingClock) Now() time.Time {
	c.t = c.t.Add(time.Second)
	return c.t
}

func newTestTracker() (*Tracker, *tickingClock) {
	clock := &tickingClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	tr := NewTracker(zerolog.Nop())
	tr.now = clock.Now
	return tr, clock
}

type recordingCapture struct {
	mu      sync.Mutex
	records []capture.Record
}

func (r *recordingCapture) Log(rec capture.Record) {
	r.mu.Lock()
	r.records = append(r.records, rec)
	r.mu.Unlock()
}

func (r *recordingCapture) all() []capture.Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]capture.Record(nil), r.records...)
}

func TestNewChannel(t *testing.T) {
	t.Run("TracksCall", func(t *testing.T) {
		tr, _ := newTestTracker()

		tr.HandleEvent(testEvent(t,
			"Event: Newchannel",
			"Channel: SIP/1001-00000001",
			"Uniqueid: 1234567890.123",
			"CallerIDNum: 1001",
			"Exten: 2002",
			"Context: from-internal",
		))

		call, ok := tr.Call("1234567890.123")
		if !ok {
			t.Fatal("call not tracked")
		}
		if call.Channel != "SIP/1001-00000001" {
			t.Errorf("Channel = %q", call.Channel)
		}
		if call.Extension != "1001" {
			t.Errorf("Extension = %q, want 1001", call.Extension)
		}
		if call.Direction != DirectionOutbound {
			t.Errorf("Direction = %q, want outbound", call.Direction)
		}
		if call.State != StateRinging {
			t.Errorf("State = %q, want ringing", call.State)
		}
		if call.CallerID != "1001" || call.Destination != "2002" {
			t.Errorf("CallerID = %q, Destination = %q", call.CallerID, call.Destination)
		}
		if call.StartedAt.IsZero() {
			t.Error("StartedAt not set")
		}
	})

	t.Run("InboundFromPSTN", func(t *testing.T) {
		tr, _ := newTestTracker()

		tr.HandleEvent(testEvent(t,
			"Event: Newchannel",
			"Channel: PJSIP/trunk-00000002",
			"Uniqueid: 100.1",
			"CallerIDNum: 5551234567",
			"Exten: 2000",
			"Context: from-pstn",
		))

		call, ok := tr.Call("100.1")
		if !ok {
			t.Fatal("call not tracked")
		}
		if call.Direction != DirectionInbound {
			t.Errorf("Direction = %q, want inbound", call.Direction)
		}
		if call.Extension != "" {
			t.Errorf("Extension = %q, want empty for trunk channel", call.Extension)
		}
	})

	t.Run("MissingUniqueidIgnored", func(t *testing.T) {
		tr, _ := newTestTracker()

		tr.HandleEvent(testEvent(t,
			"Event: Newchannel",
			"Channel: SIP/1001-00000001",
		))

		if tr.CallCount() != 0 {
			t.Errorf("CallCount() = %d, want 0", tr.CallCount())
		}
	})

	t.Run("DuplicateOverwrites", func(t *testing.T) {
		tr, _ := newTestTracker()

		tr.HandleEvent(testEvent(t,
			"Event: Newchannel",
			"Channel: SIP/1001-00000001",
			"Uniqueid: 100.1",
			"Context: from-internal",
		))
		tr.HandleEvent(testEvent(t,
			"Event: Newchannel",
			"Channel: SIP/2002-00000009",
			"Uniqueid: 100.1",
			"Context: from-pstn",
		))

		if tr.CallCount() != 1 {
			t.Fatalf("CallCount() = %d, want 1", tr.CallCount())
		}
		call, _ := tr.Call("100.1")
		if call.Channel != "SIP/2002-00000009" {
			t.Errorf("Channel = %q, want the replacement", call.Channel)
		}
	})
}

func TestNewState(t *testing.T) {
	newCall := func(t *testing.T, tr *Tracker) {
		t.Helper()
		tr.HandleEvent(testEvent(t,
			"Event: Newchannel",
			"Channel: SIP/1001-00000001",
			"Uniqueid: 100.1",
			"Context: from-internal",
		))
	}

	t.Run("DescriptivePreferred", func(t *testing.T) {
		tr, _ := newTestTracker()
		newCall(t, tr)

		tr.HandleEvent(testEvent(t,
			"Event: Newstate",
			"Uniqueid: 100.1",
			"ChannelState: 6",
			"ChannelStateDesc: Up",
		))

		call, _ := tr.Call("100.1")
		if call.State != "up" {
			t.Errorf("State = %q, want up", call.State)
		}
	})

	t.Run("NumericFallback", func(t *testing.T) {
		tr, _ := newTestTracker()
		newCall(t, tr)

		tr.HandleEvent(testEvent(t,
			"Event: Newstate",
			"Uniqueid: 100.1",
			"ChannelState: 5",
		))

		call, _ := tr.Call("100.1")
		if call.State != "5" {
			t.Errorf("State = %q, want 5", call.State)
		}
	})

	t.Run("UnknownUniqueidIgnored", func(t *testing.T) {
		tr, _ := newTestTracker()

		tr.HandleEvent(testEvent(t,
			"Event: Newstate",
			"Uniqueid: 999.9",
			"ChannelStateDesc: Up",
		))

		if tr.CallCount() != 0 {
			t.Errorf("CallCount() = %d, want 0", tr.CallCount())
		}
	})

	t.Run("SameStateNoCallback", func(t *testing.T) {
		tr, _ := newTestTracker()
		newCall(t, tr)

		updates := 0
		tr.OnCallUpdated(func(Call) { updates++ })

		tr.HandleEvent(testEvent(t,
			"Event: Newstate",
			"Uniqueid: 100.1",
			"ChannelStateDesc: Ringing",
		))

		if updates != 0 {
			t.Errorf("updates = %d, want 0 for unchanged state", updates)
		}
	})
}

func TestHangup(t *testing.T) {
	t.Run("RemovesCall", func(t *testing.T) {
		tr, _ := newTestTracker()

		tr.HandleEvent(testEvent(t,
			"Event: Newchannel",
			"Channel: SIP/1001-00000001",
			"Uniqueid: 100.1",
			"Context: from-internal",
		))
		tr.HandleEvent(testEvent(t,
			"Event: Hangup",
			"Uniqueid: 100.1",
			"Cause: 16",
			"Cause-txt: Normal Clearing",
		))

		if tr.CallCount() != 0 {
			t.Errorf("CallCount() = %d, want 0", tr.CallCount())
		}
		if _, ok := tr.Call("100.1"); ok {
			t.Error("call still tracked after hangup")
		}
	})

	t.Run("UnknownUniqueidNoOp", func(t *testing.T) {
		tr, _ := newTestTracker()

		ended := 0
		tr.OnCallEnded(func(Call) { ended++ })

		tr.HandleEvent(testEvent(t,
			"Event: Hangup",
			"Uniqueid: 999.9",
			"Cause: 16",
		))

		if ended != 0 {
			t.Errorf("ended = %d, want 0", ended)
		}
	})
}

func TestBridge(t *testing.T) {
	t.Run("BridgeEnter", func(t *testing.T) {
		tr, _ := newTestTracker()

		tr.HandleEvent(testEvent(t,
			"Event: Newchannel",
			"Channel: SIP/1001-00000001",
			"Uniqueid: 100.1",
			"Context: from-internal",
		))
		tr.HandleEvent(testEvent(t,
			"Event: BridgeEnter",
			"Uniqueid: 100.1",
			"BridgeUniqueid: ffffffff-1111",
		))

		call, _ := tr.Call("100.1")
		if call.State != StateBridged {
			t.Errorf("State = %q, want bridged", call.State)
		}
	})

	t.Run("LegacyBridgeBothLegs", func(t *testing.T) {
		tr, _ := newTestTracker()

		for i := 1; i <= 2; i++ {
			tr.HandleEvent(testEvent(t,
				"Event: Newchannel",
				fmt.Sprintf("Channel: SIP/100%d-0000000%d", i, i),
				fmt.Sprintf("Uniqueid: 100.%d", i),
				"Context: from-internal",
			))
		}
		tr.HandleEvent(testEvent(t,
			"Event: Bridge",
			"Uniqueid1: 100.1",
			"Uniqueid2: 100.2",
		))

		for _, id := range []string{"100.1", "100.2"} {
			call, _ := tr.Call(id)
			if call.State != StateBridged {
				t.Errorf("call %s State = %q, want bridged", id, call.State)
			}
		}
	})
}

func TestDeviceStates(t *testing.T) {
	t.Run("DeviceStateChange", func(t *testing.T) {
		tr, _ := newTestTracker()

		tr.HandleEvent(testEvent(t,
			"Event: DeviceStateChange",
			"Device: SIP/1001",
			"State: INUSE",
		))

		dev, ok := tr.DeviceState("SIP/1001")
		if !ok {
			t.Fatal("device not tracked")
		}
		if dev.State != "INUSE" {
			t.Errorf("State = %q, want INUSE", dev.State)
		}
		if dev.UpdatedAt.IsZero() {
			t.Error("UpdatedAt not set")
		}
	})

	t.Run("ExtensionStatusFallbacks", func(t *testing.T) {
		tr, _ := newTestTracker()

		// No Device key, textual status.
		tr.HandleEvent(testEvent(t,
			"Event: ExtensionStatus",
			"Exten: 2002",
			"Context: ext-local",
			"StatusText: Idle",
		))

		dev, ok := tr.DeviceState("2002")
		if !ok {
			t.Fatal("device not tracked under extension")
		}
		if dev.State != "Idle" {
			t.Errorf("State = %q, want Idle", dev.State)
		}

		// Numeric status only.
		tr.HandleEvent(testEvent(t,
			"Event: ExtensionStatus",
			"Exten: 2002",
			"Status: 1",
		))

		dev, _ = tr.DeviceState("2002")
		if dev.State != "1" {
			t.Errorf("State = %q, want 1", dev.State)
		}
	})

	t.Run("MissingNameIgnored", func(t *testing.T) {
		tr, _ := newTestTracker()

		tr.HandleEvent(testEvent(t,
			"Event: DeviceStateChange",
			"State: INUSE",
		))

		if tr.DeviceCount() != 0 {
			t.Errorf("DeviceCount() = %d, want 0", tr.DeviceCount())
		}
	})
}

func TestCallbacks(t *testing.T) {
	tr, _ := newTestTracker()

	var started, updated, ended []Call
	var devices []Device

	tr.OnCallStarted(func(c Call) { started = append(started, c) })
	tr.OnCallUpdated(func(c Call) { updated = append(updated, c) })
	tr.OnCallEnded(func(c Call) { ended = append(ended, c) })
	tr.OnDeviceState(func(d Device) { devices = append(devices, d) })

	tr.HandleEvent(testEvent(t,
		"Event: Newchannel",
		"Channel: SIP/1001-00000001",
		"Uniqueid: 100.1",
		"Context: from-internal",
	))
	tr.HandleEvent(testEvent(t,
		"Event: BridgeEnter",
		"Uniqueid: 100.1",
	))
	tr.HandleEvent(testEvent(t,
		"Event: Hangup",
		"Uniqueid: 100.1",
		"Cause: 16",
	))
	tr.HandleEvent(testEvent(t,
		"Event: DeviceStateChange",
		"Device: SIP/1001",
		"State: NOT_INUSE",
	))

	if len(started) != 1 || started[0].UniqueID != "100.1" {
		t.Errorf("started = %+v", started)
	}
	if len(updated) != 1 || updated[0].State != StateBridged {
		t.Errorf("updated = %+v", updated)
	}
	if len(ended) != 1 {
		t.Fatalf("ended = %+v", ended)
	}
	if ended[0].State != StateBridged {
		t.Errorf("ended state = %q, want final pre-hangup state", ended[0].State)
	}
	if len(devices) != 1 || devices[0].Name != "SIP/1001" {
		t.Errorf("devices = %+v", devices)
	}
}

func TestActiveCalls(t *testing.T) {
	tr, _ := newTestTracker()

	// Inserted out of lexical order; the ticking clock orders them.
	for _, id := range []string{"300.3", "100.1", "200.2"} {
		tr.HandleEvent(testEvent(t,
			"Event: Newchannel",
			"Channel: SIP/1001-00000001",
			"Uniqueid: "+id,
			"Context: from-internal",
		))
	}

	calls := tr.ActiveCalls()
	if len(calls) != 3 {
		t.Fatalf("len = %d, want 3", len(calls))
	}
	want := []string{"300.3", "100.1", "200.2"}
	for i, id := range want {
		if calls[i].UniqueID != id {
			t.Errorf("calls[%d] = %s, want %s (start-time order)", i, calls[i].UniqueID, id)
		}
	}

	// Returned slice is a copy.
	calls[0].State = "mutated"
	fresh, _ := tr.Call("300.3")
	if fresh.State != StateRinging {
		t.Error("mutating the returned slice affected tracker state")
	}
}

func TestCallForExtension(t *testing.T) {
	tr, _ := newTestTracker()

	tr.HandleEvent(testEvent(t,
		"Event: Newchannel",
		"Channel: SIP/1001-00000001",
		"Uniqueid: 100.1",
		"Context: from-internal",
	))
	tr.HandleEvent(testEvent(t,
		"Event: Newchannel",
		"Channel: SIP/1001-00000002",
		"Uniqueid: 100.2",
		"Context: from-internal",
	))

	call, ok := tr.CallForExtension("1001")
	if !ok {
		t.Fatal("no call found")
	}
	if call.UniqueID != "100.1" {
		t.Errorf("UniqueID = %s, want the oldest (100.1)", call.UniqueID)
	}

	if _, ok := tr.CallForExtension("9999"); ok {
		t.Error("found call for unknown extension")
	}
	if _, ok := tr.CallForExtension(""); ok {
		t.Error("found call for empty extension")
	}
}

func TestClear(t *testing.T) {
	tr, _ := newTestTracker()

	tr.HandleEvent(testEvent(t,
		"Event: Newchannel",
		"Channel: SIP/1001-00000001",
		"Uniqueid: 100.1",
		"Context: from-internal",
	))
	tr.HandleEvent(testEvent(t,
		"Event: DeviceStateChange",
		"Device: SIP/1001",
		"State: INUSE",
	))

	tr.Clear()

	if tr.CallCount() != 0 || tr.DeviceCount() != 0 {
		t.Errorf("CallCount() = %d, DeviceCount() = %d after Clear", tr.CallCount(), tr.DeviceCount())
	}
}

func TestUnrelatedEventsIgnored(t *testing.T) {
	tr, _ := newTestTracker()

	err := tr.HandleEvent(testEvent(t,
		"Event: QueueMember",
		"Queue: support",
		"Location: SIP/1001",
	))
	if err != nil {
		t.Errorf("HandleEvent() error = %v", err)
	}
	if tr.CallCount() != 0 || tr.DeviceCount() != 0 {
		t.Error("unrelated event mutated state")
	}
}

func TestCaptureRecords(t *testing.T) {
	tr, _ := newTestTracker()
	rec := &recordingCapture{}
	tr.SetCapture(rec, "conn-1")

	tr.HandleEvent(testEvent(t,
		"Event: Newchannel",
		"Channel: SIP/1001-00000001",
		"Uniqueid: 100.1",
		"Context: from-internal",
	))
	tr.HandleEvent(testEvent(t,
		"Event: Hangup",
		"Uniqueid: 100.1",
		"Cause: 16",
		"Cause-txt: Normal Clearing",
	))
	tr.HandleEvent(testEvent(t,
		"Event: DeviceStateChange",
		"Device: SIP/1001",
		"State: INUSE",
	))
	// Same state again: no record.
	tr.HandleEvent(testEvent(t,
		"Event: DeviceStateChange",
		"Device: SIP/1001",
		"State: INUSE",
	))

	records := rec.all()
	if len(records) != 3 {
		t.Fatalf("len(records) = %d, want 3", len(records))
	}

	first := records[0]
	if first.ConnectionID != "conn-1" || first.Category != capture.CategoryState {
		t.Errorf("record = %+v", first)
	}
	if first.StateChange == nil || first.StateChange.Entity != "call" {
		t.Fatalf("StateChange = %+v", first.StateChange)
	}
	if first.StateChange.EntityID != "100.1" || first.StateChange.NewState != StateRinging {
		t.Errorf("StateChange = %+v", first.StateChange)
	}

	hangup := records[1]
	if hangup.StateChange.NewState != StateEnded || hangup.StateChange.Reason != "Normal Clearing" {
		t.Errorf("hangup StateChange = %+v", hangup.StateChange)
	}

	device := records[2]
	if device.StateChange.Entity != "device" || device.StateChange.EntityID != "SIP/1001" {
		t.Errorf("device StateChange = %+v", device.StateChange)
	}
}
