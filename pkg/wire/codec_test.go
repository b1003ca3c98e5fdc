package wire

import (
	"errors"
	"strings"
	"testing"
)

func TestParseBlockClassification(t *testing.T) {
	tests := []struct {
		name  string
		lines []string
		kind  Kind
	}{
		{
			name:  "Event",
			lines: []string{"Event: Newchannel", "Uniqueid: 1700000000.1"},
			kind:  KindEvent,
		},
		{
			name:  "Response",
			lines: []string{"Response: Success", "Message: Authentication accepted"},
			kind:  KindResponse,
		},
		{
			name:  "EventWinsOverResponse",
			lines: []string{"Event: QueueParams", "Response: Success"},
			kind:  KindEvent,
		},
		{
			name:  "Unknown",
			lines: []string{"Message: something odd"},
			kind:  KindUnknown,
		},
		{
			name:  "CaseInsensitiveEventKey",
			lines: []string{"event: Hangup"},
			kind:  KindEvent,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := ParseBlock(tt.lines)
			if err != nil {
				t.Fatalf("ParseBlock: %v", err)
			}
			if msg.Kind() != tt.kind {
				t.Errorf("kind = %v, want %v", msg.Kind(), tt.kind)
			}
		})
	}
}

func TestParseBlockLookup(t *testing.T) {
	msg, err := ParseBlock([]string{
		"Event: Newchannel",
		"Uniqueid: 1700000000.1",
		"Channel: SIP/1001-00000001",
		"CHANNEL: duplicate-should-not-win",
		"Variable: A=1",
		"Variable: B=2",
	})
	if err != nil {
		t.Fatalf("ParseBlock: %v", err)
	}

	t.Run("FirstOccurrenceWins", func(t *testing.T) {
		if got := msg.Get("Channel"); got != "SIP/1001-00000001" {
			t.Errorf("Get(Channel) = %q, want first occurrence", got)
		}
	})

	t.Run("CaseInsensitive", func(t *testing.T) {
		if got := msg.Get("uniqueid"); got != "1700000000.1" {
			t.Errorf("Get(uniqueid) = %q", got)
		}
		if got := msg.Get("UNIQUEID"); got != "1700000000.1" {
			t.Errorf("Get(UNIQUEID) = %q", got)
		}
	})

	t.Run("AllOccurrencesPreserved", func(t *testing.T) {
		vals := msg.Values("Variable")
		if len(vals) != 2 || vals[0] != "A=1" || vals[1] != "B=2" {
			t.Errorf("Values(Variable) = %v", vals)
		}
		if got := len(msg.Values("Channel")); got != 2 {
			t.Errorf("Values(Channel) count = %d, want 2", got)
		}
	})

	t.Run("MissingKey", func(t *testing.T) {
		if msg.Has("Context") {
			t.Error("Has(Context) = true for absent key")
		}
		if got := msg.Get("Context"); got != "" {
			t.Errorf("Get(Context) = %q, want empty", got)
		}
		if _, ok := msg.Lookup("Context"); ok {
			t.Error("Lookup(Context) reported present")
		}
	})
}

func TestParseBlockMalformed(t *testing.T) {
	t.Run("Empty", func(t *testing.T) {
		if _, err := ParseBlock(nil); !errors.Is(err, ErrEmptyBlock) {
			t.Errorf("expected ErrEmptyBlock, got %v", err)
		}
	})

	t.Run("MissingSeparator", func(t *testing.T) {
		_, err := ParseBlock([]string{"Event: Newchannel", "this line has no separator"})
		var decErr *DecodeError
		if !errors.As(err, &decErr) {
			t.Fatalf("expected DecodeError, got %v", err)
		}
		if decErr.Line != "this line has no separator" {
			t.Errorf("DecodeError.Line = %q", decErr.Line)
		}
	})

	t.Run("EmptyKey", func(t *testing.T) {
		_, err := ParseBlock([]string{": no key"})
		var decErr *DecodeError
		if !errors.As(err, &decErr) {
			t.Fatalf("expected DecodeError, got %v", err)
		}
	})
}

func TestMessageImmutability(t *testing.T) {
	msg, err := ParseBlock([]string{"Event: Hangup", "Uniqueid: 1"})
	if err != nil {
		t.Fatalf("ParseBlock: %v", err)
	}

	headers := msg.Headers()
	headers[0].Value = "mutated"

	if got := msg.Get("Event"); got != "Hangup" {
		t.Errorf("mutating the Headers copy changed the message: %q", got)
	}
}

func TestResponseHelpers(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		msg, _ := ParseBlock([]string{"Response: Success", "ActionID: abc"})
		if !msg.Success() {
			t.Error("Success() = false")
		}
		if msg.ActionID() != "abc" {
			t.Errorf("ActionID() = %q", msg.ActionID())
		}
	})

	t.Run("Error", func(t *testing.T) {
		msg, _ := ParseBlock([]string{"Response: Error", "Message: Authentication failed"})
		if msg.Success() {
			t.Error("Success() = true for error response")
		}
	})

	t.Run("EventNeverSucceeds", func(t *testing.T) {
		msg, _ := ParseBlock([]string{"Event: Newchannel", "Response: Success"})
		if msg.Success() {
			t.Error("Success() = true for event")
		}
	})

	t.Run("ListMarkers", func(t *testing.T) {
		start, _ := ParseBlock([]string{"Response: Success", "EventList: start"})
		if !start.ListStart() {
			t.Error("ListStart() = false")
		}
		done, _ := ParseBlock([]string{"Event: QueueStatusComplete", "EventList: Complete"})
		if !done.ListComplete() {
			t.Error("ListComplete() = false")
		}
	})
}

func TestActionEncode(t *testing.T) {
	t.Run("Basic", func(t *testing.T) {
		a := NewAction("Login")
		a.SetActionID("token-1")
		a.Set("Username", "dashboard")
		a.Set("Secret", "secret")

		data, err := a.Encode()
		if err != nil {
			t.Fatalf("Encode: %v", err)
		}

		want := "Action: Login\r\nActionID: token-1\r\nUsername: dashboard\r\nSecret: secret\r\n\r\n"
		if string(data) != want {
			t.Errorf("Encode =\n%q\nwant\n%q", data, want)
		}
	})

	t.Run("NoActionID", func(t *testing.T) {
		data, err := NewAction("Ping").Encode()
		if err != nil {
			t.Fatalf("Encode: %v", err)
		}
		if string(data) != "Action: Ping\r\n\r\n" {
			t.Errorf("Encode = %q", data)
		}
	})

	t.Run("FieldOrderPreserved", func(t *testing.T) {
		a := NewAction("Originate")
		a.Set("Channel", "SIP/1001")
		a.Set("Variable", "A=1")
		a.Set("Variable", "B=2")

		data, err := a.Encode()
		if err != nil {
			t.Fatalf("Encode: %v", err)
		}
		text := string(data)
		if strings.Index(text, "A=1") > strings.Index(text, "B=2") {
			t.Errorf("field order not preserved: %q", text)
		}
	})

	t.Run("RejectsInjection", func(t *testing.T) {
		a := NewAction("Login")
		a.Set("Username", "evil\r\nAction: Logoff")
		if _, err := a.Encode(); err == nil {
			t.Error("expected error for CRLF in value")
		}

		if _, err := NewAction("").Encode(); err == nil {
			t.Error("expected error for empty name")
		}
	})
}
