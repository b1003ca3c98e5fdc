package wire

import (
	"fmt"
	"strings"
)

// Header keys with protocol-level meaning.
const (
	KeyEvent     = "Event"
	KeyResponse  = "Response"
	KeyActionID  = "ActionID"
	KeyMessage   = "Message"
	KeyEventList = "EventList"
)

// ResponseSuccess is the Response header value indicating a successful action.
const ResponseSuccess = "Success"

// Kind classifies a parsed protocol block.
type Kind uint8

const (
	// KindUnknown is a block carrying neither an Event nor a Response key.
	KindUnknown Kind = iota
	// KindEvent is an unsolicited event from the switch.
	KindEvent
	// KindResponse answers a previously sent action.
	KindResponse
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindEvent:
		return "event"
	case KindResponse:
		return "response"
	default:
		return "unknown"
	}
}

// Header is a single "Key: Value" pair from a message block.
type Header struct {
	Key   string
	Value string
}

// Message is one parsed protocol block. It is immutable once parsed:
// accessors return copies, never internal references.
//
// Lookup semantics follow the protocol: keys are case-insensitive and the
// first occurrence wins. All occurrences are preserved in wire order and
// available through Values and Headers.
type Message struct {
	kind    Kind
	headers []Header
	index   map[string]string
}

// Kind returns the message classification.
func (m *Message) Kind() Kind {
	return m.kind
}

// Get returns the value of the first header matching key (case-insensitive),
// or "" if the key is absent.
func (m *Message) Get(key string) string {
	return m.index[strings.ToLower(key)]
}

// Lookup returns the value of the first header matching key and whether the
// key is present at all.
func (m *Message) Lookup(key string) (string, bool) {
	v, ok := m.index[strings.ToLower(key)]
	return v, ok
}

// Has reports whether at least one header matches key.
func (m *Message) Has(key string) bool {
	_, ok := m.index[strings.ToLower(key)]
	return ok
}

// Values returns every value for key in wire order. Repeated keys are how
// the protocol transmits lists (channel variables, queue members).
func (m *Message) Values(key string) []string {
	var vals []string
	for _, h := range m.headers {
		if strings.EqualFold(h.Key, key) {
			vals = append(vals, h.Value)
		}
	}
	return vals
}

// Headers returns a copy of all headers in wire order.
func (m *Message) Headers() []Header {
	out := make([]Header, len(m.headers))
	copy(out, m.headers)
	return out
}

// Len returns the number of headers in the block.
func (m *Message) Len() int {
	return len(m.headers)
}

// Name returns the event name for events, the Response status for
// responses, and "" for unknown blocks.
func (m *Message) Name() string {
	switch m.kind {
	case KindEvent:
		return m.Get(KeyEvent)
	case KindResponse:
		return m.Get(KeyResponse)
	default:
		return ""
	}
}

// ActionID returns the correlation token carried by the block, if any.
func (m *Message) ActionID() string {
	return m.Get(KeyActionID)
}

// Success reports whether a response block indicates success. Always false
// for non-responses.
func (m *Message) Success() bool {
	return m.kind == KindResponse && m.Get(KeyResponse) == ResponseSuccess
}

// ListStart reports whether a response opens a multi-part event list
// (EventList: start). The list items arrive as events and the final one
// carries "EventList: Complete".
func (m *Message) ListStart() bool {
	return m.kind == KindResponse && strings.EqualFold(m.Get(KeyEventList), "start")
}

// ListComplete reports whether an event closes a multi-part list.
func (m *Message) ListComplete() bool {
	return m.kind == KindEvent && strings.EqualFold(m.Get(KeyEventList), "Complete")
}

// String returns a short description for logs.
func (m *Message) String() string {
	return fmt.Sprintf("%s %q (%d headers)", m.kind, m.Name(), len(m.headers))
}
