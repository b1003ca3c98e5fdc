package capture

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestZerologAdapterWritesFields(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf).Level(zerolog.DebugLevel)
	adapter := NewZerologAdapter(logger)

	adapter.Log(Record{
		Timestamp:    time.Now(),
		ConnectionID: "conn-1",
		Direction:    DirectionIn,
		Layer:        LayerWire,
		Category:     CategoryMessage,
		RemoteAddr:   "10.0.0.5:5038",
		Message: &MessageRecord{
			Kind:     "event",
			Name:     "DeviceStateChange",
			ActionID: "",
			Headers:  3,
		},
	})

	out := buf.String()
	for _, want := range []string{
		`"conn_id":"conn-1"`,
		`"direction":"IN"`,
		`"layer":"WIRE"`,
		`"category":"MESSAGE"`,
		`"remote":"10.0.0.5:5038"`,
		`"kind":"event"`,
		`"name":"DeviceStateChange"`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %s: %s", want, out)
		}
	}
}

func TestZerologAdapterStateChange(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf).Level(zerolog.DebugLevel)
	adapter := NewZerologAdapter(logger)

	adapter.Log(Record{
		Timestamp:    time.Now(),
		ConnectionID: "conn-1",
		Direction:    DirectionIn,
		Layer:        LayerService,
		Category:     CategoryState,
		StateChange: &StateChangeRecord{
			Entity:   "connection",
			OldState: "connecting",
			NewState: "connected",
		},
	})

	out := buf.String()
	if !strings.Contains(out, `"old_state":"connecting"`) || !strings.Contains(out, `"new_state":"connected"`) {
		t.Errorf("output missing state fields: %s", out)
	}
}
