package capture

import (
	"github.com/rs/zerolog"
)

// ZerologAdapter writes capture records to a zerolog.Logger.
// Useful for development when you want to see manager traffic in console.
type ZerologAdapter struct {
	logger zerolog.Logger
}

// NewZerologAdapter creates a new ZerologAdapter that writes to the given
// logger.
func NewZerologAdapter(logger zerolog.Logger) *ZerologAdapter {
	return &ZerologAdapter{logger: logger}
}

// Log writes the record to the logger at debug level.
func (a *ZerologAdapter) Log(record Record) {
	ev := a.logger.Debug().
		Str("conn_id", record.ConnectionID).
		Str("direction", record.Direction.String()).
		Str("layer", record.Layer.String()).
		Str("category", record.Category.String())

	if record.RemoteAddr != "" {
		ev = ev.Str("remote", record.RemoteAddr)
	}

	// Add type-specific fields
	switch {
	case record.Frame != nil:
		ev = ev.
			Int("frame_size", record.Frame.Size).
			Bool("truncated", record.Frame.Truncated)
	case record.Message != nil:
		ev = ev.Str("kind", record.Message.Kind)
		if record.Message.Name != "" {
			ev = ev.Str("name", record.Message.Name)
		}
		if record.Message.ActionID != "" {
			ev = ev.Str("action_id", record.Message.ActionID)
		}
		if record.Message.Headers > 0 {
			ev = ev.Int("headers", record.Message.Headers)
		}
	case record.StateChange != nil:
		if record.StateChange.Entity != "" {
			ev = ev.Str("entity", record.StateChange.Entity)
		}
		if record.StateChange.OldState != "" {
			ev = ev.Str("old_state", record.StateChange.OldState)
		}
		ev = ev.Str("new_state", record.StateChange.NewState)
		if record.StateChange.Reason != "" {
			ev = ev.Str("reason", record.StateChange.Reason)
		}
	case record.Error != nil:
		ev = ev.
			Str("error_layer", record.Error.Layer.String()).
			Str("error_msg", record.Error.Message)
		if record.Error.Context != "" {
			ev = ev.Str("error_context", record.Error.Context)
		}
	}

	ev.Msg("capture")
}

// Compile-time interface satisfaction check.
var _ Logger = (*ZerologAdapter)(nil)
