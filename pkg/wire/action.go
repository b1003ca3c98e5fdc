package wire

import (
	"fmt"
	"strings"
)

// KeyAction is the header that opens every outbound request.
const KeyAction = "Action"

// Action is an outbound manager request. Fields keep their insertion order
// when encoded; the Action line always comes first and the ActionID, when
// set, immediately after it.
type Action struct {
	name     string
	actionID string
	fields   []Header
}

// NewAction creates an action with the given name (Login, QueueStatus, …).
func NewAction(name string) *Action {
	return &Action{name: name}
}

// Name returns the action name.
func (a *Action) Name() string {
	return a.name
}

// Set appends a field. Repeated keys are allowed; the protocol uses them
// for list-valued parameters (Variable, and friends).
func (a *Action) Set(key, value string) *Action {
	a.fields = append(a.fields, Header{Key: key, Value: value})
	return a
}

// SetActionID sets the correlation token attached to the encoded action.
func (a *Action) SetActionID(id string) {
	a.actionID = id
}

// ActionID returns the correlation token, or "" if none was assigned yet.
func (a *Action) ActionID() string {
	return a.actionID
}

// Fields returns a copy of the fields in insertion order, excluding the
// Action and ActionID lines.
func (a *Action) Fields() []Header {
	out := make([]Header, len(a.fields))
	copy(out, a.fields)
	return out
}

// Encode serializes the action as a wire block:
//
//	Action: <name>\r\n
//	ActionID: <token>\r\n
//	<Key>: <Value>\r\n …
//	\r\n
//
// Names, keys, and values must not contain CR or LF; a value that did
// would split the frame and corrupt the stream.
func (a *Action) Encode() ([]byte, error) {
	if a.name == "" {
		return nil, fmt.Errorf("wire: action name is empty")
	}
	if err := checkField(KeyAction, a.name); err != nil {
		return nil, err
	}

	var b strings.Builder
	b.WriteString(KeyAction)
	b.WriteString(": ")
	b.WriteString(a.name)
	b.WriteString("\r\n")

	if a.actionID != "" {
		if err := checkField(KeyActionID, a.actionID); err != nil {
			return nil, err
		}
		b.WriteString(KeyActionID)
		b.WriteString(": ")
		b.WriteString(a.actionID)
		b.WriteString("\r\n")
	}

	for _, f := range a.fields {
		if err := checkField(f.Key, f.Value); err != nil {
			return nil, err
		}
		b.WriteString(f.Key)
		b.WriteString(": ")
		b.WriteString(f.Value)
		b.WriteString("\r\n")
	}

	b.WriteString("\r\n")
	return []byte(b.String()), nil
}

// checkField rejects keys and values that would break framing.
func checkField(key, value string) error {
	if key == "" {
		return fmt.Errorf("wire: empty field key")
	}
	if strings.ContainsAny(key, "\r\n:") {
		return fmt.Errorf("wire: invalid field key %q", key)
	}
	if strings.ContainsAny(value, "\r\n") {
		return fmt.Errorf("wire: invalid value for field %q", key)
	}
	return nil
}
