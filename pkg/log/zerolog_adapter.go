package log

import (
	"github.com/rs/zerolog"
)

// ZerologAdapter writes protocol events to a zerolog.Logger.
// Suited to interactive CLIs that use zerolog's console writer.
type ZerologAdapter struct {
	logger zerolog.Logger
}

// NewZerologAdapter creates a new ZerologAdapter that writes to the given logger.
func NewZerologAdapter(logger zerolog.Logger) *ZerologAdapter {
	return &ZerologAdapter{logger: logger}
}

// Log writes the event at Debug level; errors and anomalies at Warn level.
func (a *ZerologAdapter) Log(event Event) {
	var e *zerolog.Event
	switch event.Category {
	case CategoryError, CategoryAnomaly:
		e = a.logger.Warn()
	default:
		e = a.logger.Debug()
	}

	e = e.Str("conn_id", event.ConnectionID).
		Str("direction", event.Direction.String()).
		Str("layer", event.Layer.String()).
		Str("category", event.Category.String())

	switch {
	case event.Line != nil:
		e = e.Str("line", string(event.Line.Data))
	case event.Message != nil:
		e = e.Int("code", event.Message.Code).
			Str("kind", event.Message.Kind).
			Str("text", event.Message.Text)
	case event.StateChange != nil:
		e = e.Str("old_state", event.StateChange.OldState).
			Str("new_state", event.StateChange.NewState)
		if event.StateChange.Reason != "" {
			e = e.Str("reason", event.StateChange.Reason)
		}
	case event.Error != nil:
		e = e.Str("error_msg", event.Error.Message).
			Str("error_context", event.Error.Context)
	}

	e.Msg("protocol")
}

// Compile-time interface satisfaction check.
var _ Logger = (*ZerologAdapter)(nil)
