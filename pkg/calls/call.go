package calls

import (
	"regexp"
	"strings"
	"time"
)

// Direction classifies a call relative to the PBX.
type Direction string

const (
	// DirectionInbound is a call arriving from outside (PSTN/trunk).
	DirectionInbound Direction = "inbound"

	// DirectionOutbound is a call placed by a local extension.
	DirectionOutbound Direction = "outbound"

	// DirectionInternal is a call between local extensions.
	DirectionInternal Direction = "internal"
)

// Call lifecycle states. The switch reports free-form state descriptions;
// these are the ones the tracker assigns itself.
const (
	// StateRinging is the state of a freshly created channel.
	StateRinging = "ringing"

	// StateBridged is set when the channel enters a bridge.
	StateBridged = "bridged"

	// StateEnded is the terminal state. Ended calls are removed from the
	// tracker, so consumers only ever observe it through callbacks.
	StateEnded = "ended"
)

// Call is one live call leg, keyed by the switch-assigned unique ID.
// Values handed to consumers are copies; mutating them has no effect on
// the tracker.
type Call struct {
	// UniqueID identifies the call for its lifetime.
	UniqueID string

	// Channel is the channel name, e.g. "SIP/1001-00000001".
	Channel string

	// CallerID is the calling party number.
	CallerID string

	// Destination is the dialed extension.
	Destination string

	// Context is the dialplan context the call entered through.
	Context string

	// Extension is the local extension derived from the channel name,
	// empty when the channel belongs to no known technology.
	Extension string

	// State is the current lifecycle state.
	State string

	// Direction classifies the call.
	Direction Direction

	// StartedAt is when the tracker first saw the channel.
	StartedAt time.Time
}

// Duration returns how long the call has been tracked.
func (c Call) Duration(now time.Time) time.Duration {
	return now.Sub(c.StartedAt)
}

// Device is the last known state of an extension or trunk device.
// Entries are upserted on every state event and never removed while the
// connection lives; a stale entry simply keeps its last report.
type Device struct {
	// Name identifies the device, e.g. "SIP/1001".
	Name string

	// State is the raw state string as reported, e.g. "INUSE".
	State string

	// UpdatedAt is when the last report arrived.
	UpdatedAt time.Time
}

// extensionPattern matches the technology prefix and extension digits at
// the start of a channel name.
var extensionPattern = regexp.MustCompile(`^(?:PJSIP|SIP)/(\d+)`)

// ExtractExtension derives the local extension from a channel name:
// "SIP/1001-00000001" and "PJSIP/1001-00000001" both yield "1001".
// Channels of other technologies (Local, DAHDI, IAX2) yield "".
func ExtractExtension(channel string) string {
	m := extensionPattern.FindStringSubmatch(channel)
	if m == nil {
		return ""
	}
	return m[1]
}

// DeriveDirection classifies a call from its dialplan context. Contexts
// reached from a trunk carry an external marker, locally originated calls
// an internal one; anything else is treated as extension-to-extension.
func DeriveDirection(context string) Direction {
	ctx := strings.ToLower(context)
	switch {
	case strings.Contains(ctx, "from-external") || strings.Contains(ctx, "from-pstn"):
		return DirectionInbound
	case strings.Contains(ctx, "from-internal"):
		return DirectionOutbound
	default:
		return DirectionInternal
	}
}
