package commands

import (
	"fmt"
	"io"
	"strings"

	"github.com/deckcontrol/hyperdeck-go/pkg/log"
)

// ViewFilter narrows the events shown by the view command.
type ViewFilter struct {
	Layer     *log.Layer
	Direction *log.Direction
	Category  *log.Category
}

// ParseLayerFlag parses a layer name from the command line.
func ParseLayerFlag(s string) (log.Layer, error) {
	return parseLayer(s)
}

// ParseDirectionFlag parses a direction name from the command line.
func ParseDirectionFlag(s string) (log.Direction, error) {
	return parseDirection(s)
}

// ParseCategoryFlag parses a category name from the command line.
func ParseCategoryFlag(s string) (log.Category, error) {
	return parseCategory(s)
}

func parseLayer(s string) (log.Layer, error) {
	switch strings.ToLower(s) {
	case "transport":
		return log.LayerTransport, nil
	case "wire":
		return log.LayerWire, nil
	case "session":
		return log.LayerSession, nil
	default:
		return 0, fmt.Errorf("unknown layer %q (transport, wire, session)", s)
	}
}

func parseDirection(s string) (log.Direction, error) {
	switch strings.ToLower(s) {
	case "in":
		return log.DirectionIn, nil
	case "out":
		return log.DirectionOut, nil
	default:
		return 0, fmt.Errorf("unknown direction %q (in, out)", s)
	}
}

func parseCategory(s string) (log.Category, error) {
	switch strings.ToLower(s) {
	case "message":
		return log.CategoryMessage, nil
	case "state":
		return log.CategoryState, nil
	case "error":
		return log.CategoryError, nil
	case "anomaly":
		return log.CategoryAnomaly, nil
	default:
		return 0, fmt.Errorf("unknown category %q (message, state, error, anomaly)", s)
	}
}

// RunView prints the log file in a human-readable line-per-event format.
func RunView(path string, filter ViewFilter, w io.Writer) error {
	lf := log.Filter{
		Layer:     filter.Layer,
		Direction: filter.Direction,
		Category:  filter.Category,
	}
	reader, err := log.NewFilteredReader(path, lf)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer reader.Close()

	count := 0
	for {
		event, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read event: %w", err)
		}

		fmt.Fprintln(w, FormatEvent(event))
		count++
	}

	fmt.Fprintf(w, "\n%d events\n", count)
	return nil
}

// FormatEvent renders one event as a single line.
func FormatEvent(event log.Event) string {
	var b strings.Builder

	fmt.Fprintf(&b, "%s %-3s %-9s %-7s",
		event.Timestamp.UTC().Format("15:04:05.000000"),
		event.Direction, event.Layer, event.Category)

	if event.ConnectionID != "" {
		fmt.Fprintf(&b, " [%s]", shortID(event.ConnectionID))
	}

	switch {
	case event.Line != nil:
		fmt.Fprintf(&b, " %q", previewLine(event.Line))
	case event.Message != nil:
		fmt.Fprintf(&b, " %d %s (%s)", event.Message.Code, event.Message.Text, event.Message.Kind)
		if event.Message.BodyLines > 0 {
			fmt.Fprintf(&b, " +%d lines", event.Message.BodyLines)
		}
	case event.StateChange != nil:
		fmt.Fprintf(&b, " %s -> %s", event.StateChange.OldState, event.StateChange.NewState)
		if event.StateChange.Reason != "" {
			fmt.Fprintf(&b, " (%s)", event.StateChange.Reason)
		}
	case event.Error != nil:
		fmt.Fprintf(&b, " %s: %s", event.Error.Context, event.Error.Message)
	}

	return b.String()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func previewLine(line *log.LineEvent) string {
	s := strings.TrimRight(string(line.Data), "\r\n")
	if line.Truncated {
		s += "..."
	}
	return s
}
