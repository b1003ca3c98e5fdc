package commands

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/grothdavid/ccdashboard-freepbx2/pkg/capture"
)

// RunExport exports the capture file to the specified format.
func RunExport(path, format, output string) error {
	reader, err := capture.NewReader(path)
	if err != nil {
		return fmt.Errorf("failed to open capture file: %w", err)
	}
	defer reader.Close()

	// Determine output writer
	var w io.Writer = os.Stdout
	if output != "" {
		f, err := os.Create(output)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		w = f
	}

	switch format {
	case "jsonl":
		return exportJSONL(reader, w)
	case "csv":
		return exportCSV(reader, w)
	default:
		return fmt.Errorf("unknown format: %s (supported: jsonl, csv)", format)
	}
}

func exportJSONL(reader *capture.Reader, w io.Writer) error {
	encoder := json.NewEncoder(w)
	for {
		record, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read record: %w", err)
		}
		if err := encoder.Encode(record); err != nil {
			return fmt.Errorf("failed to encode record: %w", err)
		}
	}
	return nil
}

func exportCSV(reader *capture.Reader, w io.Writer) error {
	cw := csv.NewWriter(w)
	defer cw.Flush()

	// Write header
	header := []string{"timestamp", "connection_id", "direction", "layer", "category", "remote_addr", "type", "name", "action_id"}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	for {
		record, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read record: %w", err)
		}

		// Determine record type
		recordType := "unknown"
		name := ""
		actionID := ""
		switch {
		case record.Frame != nil:
			recordType = "frame"
		case record.Message != nil:
			recordType = record.Message.Kind
			name = record.Message.Name
			actionID = record.Message.ActionID
		case record.StateChange != nil:
			recordType = "state"
			name = record.StateChange.NewState
		case record.Error != nil:
			recordType = "error"
		}

		row := []string{
			record.Timestamp.UTC().Format("2006-01-02T15:04:05.000000Z"),
			record.ConnectionID,
			record.Direction.String(),
			record.Layer.String(),
			record.Category.String(),
			record.RemoteAddr,
			recordType,
			name,
			actionID,
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("failed to write row: %w", err)
		}
	}
	return nil
}
