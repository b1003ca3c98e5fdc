// Package commands implements the connector-log CLI commands.
package commands

import (
	"encoding/hex"
	"fmt"
	"io"
	"strings"

	"github.com/grothdavid/ccdashboard-freepbx2/pkg/capture"
)

// ViewFilter specifies criteria for filtering records in the view command.
type ViewFilter struct {
	Layer     *capture.Layer
	Direction *capture.Direction
	Category  *capture.Category

	// Name matches the event or action name of wire-layer records.
	Name string
}

// formatRecord writes a human-readable representation of the record to w.
func formatRecord(w io.Writer, record capture.Record) {
	// Header line: timestamp [conn:id] DIRECTION LAYER Type
	ts := record.Timestamp.UTC().Format("2006-01-02T15:04:05.000000Z")
	connID := shortenConnID(record.ConnectionID)
	dir := record.Direction.String()

	// Determine record type label
	var typeLabel string
	switch {
	case record.Frame != nil:
		typeLabel = "Frame"
	case record.Message != nil:
		typeLabel = kindLabel(record.Message.Kind)
	case record.StateChange != nil:
		typeLabel = "State"
	case record.Error != nil:
		typeLabel = "Error"
	default:
		typeLabel = "Unknown"
	}

	fmt.Fprintf(w, "%s [conn:%s] %-3s %s %s\n", ts, connID, dir, record.Layer.String(), typeLabel)

	// Type-specific details
	switch {
	case record.Frame != nil:
		formatFrameDetails(w, record.Frame)
	case record.Message != nil:
		formatMessageDetails(w, record.Message)
	case record.StateChange != nil:
		formatStateChangeDetails(w, record.StateChange)
	case record.Error != nil:
		formatErrorDetails(w, record.Error)
	}

	fmt.Fprintln(w) // Blank line between records
}

// kindLabel returns the header label for a classified message kind.
func kindLabel(kind string) string {
	if kind == "" {
		return "Message"
	}
	return strings.ToUpper(kind)
}

// shortenConnID returns the first 8 characters of the connection ID.
func shortenConnID(id string) string {
	if len(id) >= 8 {
		return id[:8]
	}
	return id
}

// formatFrameDetails writes frame-specific details.
func formatFrameDetails(w io.Writer, frame *capture.FrameRecord) {
	fmt.Fprintf(w, "  Size: %d bytes\n", frame.Size)
	if len(frame.Data) > 0 {
		fmt.Fprintf(w, "  Data: %s", hex.EncodeToString(frame.Data))
		if frame.Truncated {
			fmt.Fprintf(w, " (truncated)")
		}
		fmt.Fprintln(w)
	}
}

// formatMessageDetails writes details for a classified manager block.
func formatMessageDetails(w io.Writer, msg *capture.MessageRecord) {
	if msg.Name != "" {
		switch msg.Kind {
		case "action":
			fmt.Fprintf(w, "  Action: %s\n", msg.Name)
		case "event":
			fmt.Fprintf(w, "  Event: %s\n", msg.Name)
		case "response":
			fmt.Fprintf(w, "  Response: %s\n", msg.Name)
		default:
			fmt.Fprintf(w, "  Name: %s\n", msg.Name)
		}
	}
	if msg.ActionID != "" {
		fmt.Fprintf(w, "  ActionID: %s\n", msg.ActionID)
	}
	if msg.Headers > 0 {
		fmt.Fprintf(w, "  Headers: %d\n", msg.Headers)
	}
}

// formatStateChangeDetails writes state change details.
func formatStateChangeDetails(w io.Writer, sc *capture.StateChangeRecord) {
	fmt.Fprintf(w, "  Entity: %s\n", sc.Entity)
	if sc.EntityID != "" {
		fmt.Fprintf(w, "  ID: %s\n", sc.EntityID)
	}
	if sc.OldState != "" {
		fmt.Fprintf(w, "  %s -> %s\n", sc.OldState, sc.NewState)
	} else {
		fmt.Fprintf(w, "  -> %s\n", sc.NewState)
	}
	if sc.Reason != "" {
		fmt.Fprintf(w, "  Reason: %s\n", sc.Reason)
	}
}

// formatErrorDetails writes error details.
func formatErrorDetails(w io.Writer, rec *capture.ErrorRecord) {
	fmt.Fprintf(w, "  Layer: %s\n", rec.Layer.String())
	fmt.Fprintf(w, "  Message: %s\n", rec.Message)
	if rec.Context != "" {
		fmt.Fprintf(w, "  Context: %s\n", rec.Context)
	}
}

// filterRecords returns records matching the filter criteria.
func filterRecords(records []capture.Record, filter ViewFilter) []capture.Record {
	var result []capture.Record
	for _, r := range records {
		if filter.Layer != nil && r.Layer != *filter.Layer {
			continue
		}
		if filter.Direction != nil && r.Direction != *filter.Direction {
			continue
		}
		if filter.Category != nil && r.Category != *filter.Category {
			continue
		}
		if filter.Name != "" && (r.Message == nil || r.Message.Name != filter.Name) {
			continue
		}
		result = append(result, r)
	}
	return result
}

// ParseLayerFlag parses a layer string from command-line flag (case-insensitive).
func ParseLayerFlag(s string) (capture.Layer, error) {
	return parseLayer(s)
}

// parseLayer parses a layer string (case-insensitive).
func parseLayer(s string) (capture.Layer, error) {
	switch strings.ToLower(s) {
	case "transport":
		return capture.LayerTransport, nil
	case "wire":
		return capture.LayerWire, nil
	case "service":
		return capture.LayerService, nil
	default:
		return 0, fmt.Errorf("invalid layer: %s (must be transport, wire, or service)", s)
	}
}

// ParseDirectionFlag parses a direction string from command-line flag (case-insensitive).
func ParseDirectionFlag(s string) (capture.Direction, error) {
	return parseDirection(s)
}

// parseDirection parses a direction string (case-insensitive).
func parseDirection(s string) (capture.Direction, error) {
	switch strings.ToLower(s) {
	case "in":
		return capture.DirectionIn, nil
	case "out":
		return capture.DirectionOut, nil
	default:
		return 0, fmt.Errorf("invalid direction: %s (must be in or out)", s)
	}
}

// ParseCategoryFlag parses a category string from command-line flag (case-insensitive).
func ParseCategoryFlag(s string) (capture.Category, error) {
	return parseCategory(s)
}

// parseCategory parses a category string (case-insensitive).
func parseCategory(s string) (capture.Category, error) {
	switch strings.ToLower(s) {
	case "message":
		return capture.CategoryMessage, nil
	case "state":
		return capture.CategoryState, nil
	case "error":
		return capture.CategoryError, nil
	default:
		return 0, fmt.Errorf("invalid category: %s (must be message, state, or error)", s)
	}
}

// RunView executes the view command.
func RunView(path string, filter ViewFilter, output io.Writer) error {
	reader, err := capture.NewReader(path)
	if err != nil {
		return fmt.Errorf("failed to open capture file: %w", err)
	}
	defer reader.Close()

	for {
		record, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read record: %w", err)
		}

		// Apply filter
		if filter.Layer != nil && record.Layer != *filter.Layer {
			continue
		}
		if filter.Direction != nil && record.Direction != *filter.Direction {
			continue
		}
		if filter.Category != nil && record.Category != *filter.Category {
			continue
		}
		if filter.Name != "" && (record.Message == nil || record.Message.Name != filter.Name) {
			continue
		}

		formatRecord(output, record)
	}

	return nil
}
