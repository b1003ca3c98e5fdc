package capture

import (
	"time"
)

// Record represents a capture record taken at any layer.
// CBOR encoding uses integer keys for compactness.
type Record struct {
	// Timestamp when the record was captured (nanosecond precision).
	Timestamp time.Time `cbor:"1,keyasint"`

	// ConnectionID uniquely identifies the manager connection (UUID).
	ConnectionID string `cbor:"2,keyasint"`

	// Direction indicates traffic flow.
	Direction Direction `cbor:"3,keyasint"`

	// Layer where the record was captured.
	Layer Layer `cbor:"4,keyasint"`

	// Category classifies the record.
	Category Category `cbor:"5,keyasint"`

	// RemoteAddr is the switch address (IP:port).
	RemoteAddr string `cbor:"6,keyasint,omitempty"`

	// Type-specific payload (one of these will be set).
	Frame       *FrameRecord       `cbor:"7,keyasint,omitempty"`  // Transport layer
	Message     *MessageRecord     `cbor:"8,keyasint,omitempty"`  // Wire layer (classified)
	StateChange *StateChangeRecord `cbor:"9,keyasint,omitempty"`  // Connection/call state
	Error       *ErrorRecord       `cbor:"10,keyasint,omitempty"` // Errors at any layer
}

// Direction indicates the direction of traffic flow.
type Direction uint8

const (
	// DirectionIn indicates traffic from the switch.
	DirectionIn Direction = 0
	// DirectionOut indicates traffic to the switch.
	DirectionOut Direction = 1
)

// String returns the direction name.
func (d Direction) String() string {
	switch d {
	case DirectionIn:
		return "IN"
	case DirectionOut:
		return "OUT"
	default:
		return "UNKNOWN"
	}
}

// Layer indicates which layer captured the record.
type Layer uint8

const (
	// LayerTransport is the framing layer (raw bytes).
	LayerTransport Layer = 0
	// LayerWire is the block classification layer (parsed key/value blocks).
	LayerWire Layer = 1
	// LayerService is the client/session layer.
	LayerService Layer = 2
)

// String returns the layer name.
func (l Layer) String() string {
	switch l {
	case LayerTransport:
		return "TRANSPORT"
	case LayerWire:
		return "WIRE"
	case LayerService:
		return "SERVICE"
	default:
		return "UNKNOWN"
	}
}

// Category classifies the record type.
type Category uint8

const (
	// CategoryMessage indicates manager traffic (action/event/response).
	CategoryMessage Category = 0
	// CategoryState indicates a state change.
	CategoryState Category = 1
	// CategoryError indicates an error record.
	CategoryError Category = 2
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategoryMessage:
		return "MESSAGE"
	case CategoryState:
		return "STATE"
	case CategoryError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// FrameRecord captures raw frame data at the transport layer.
type FrameRecord struct {
	// Size is the frame size in bytes.
	Size int `cbor:"1,keyasint"`

	// Data is the raw frame bytes (may be truncated for large frames).
	Data []byte `cbor:"2,keyasint,omitempty"`

	// Truncated indicates if Data was truncated.
	Truncated bool `cbor:"3,keyasint,omitempty"`
}

// MessageRecord captures a classified block at the wire layer.
type MessageRecord struct {
	// Kind is the classified kind ("action", "event", "response", "unknown").
	Kind string `cbor:"1,keyasint"`

	// Name is the event or action name, or the response verdict.
	Name string `cbor:"2,keyasint,omitempty"`

	// ActionID correlates actions with their responses.
	ActionID string `cbor:"3,keyasint,omitempty"`

	// Headers is the number of header lines in the block.
	Headers int `cbor:"4,keyasint,omitempty"`
}

// StateChangeRecord captures connection and call lifecycle changes.
type StateChangeRecord struct {
	// Entity that changed ("connection", "call", "device").
	Entity string `cbor:"1,keyasint,omitempty"`

	// OldState is the previous state (may be empty).
	OldState string `cbor:"2,keyasint,omitempty"`

	// NewState is the new state.
	NewState string `cbor:"3,keyasint"`

	// Reason for the change (if available).
	Reason string `cbor:"4,keyasint,omitempty"`

	// EntityID identifies the instance: the call's unique ID or the
	// device name. Empty for connection records.
	EntityID string `cbor:"5,keyasint,omitempty"`
}

// ErrorRecord captures errors at any layer.
type ErrorRecord struct {
	// Layer where the error occurred.
	Layer Layer `cbor:"1,keyasint"`

	// Message is the error message.
	Message string `cbor:"2,keyasint"`

	// Context describes what operation was being performed.
	Context string `cbor:"3,keyasint,omitempty"`
}
