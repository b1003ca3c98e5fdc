package commands

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/grothdavid/ccdashboard-freepbx2/pkg/capture"
)

// Stats holds aggregate statistics about a capture file.
type Stats struct {
	TotalRecords       int
	RecordsByLayer     map[capture.Layer]int
	RecordsByCategory  map[capture.Category]int
	RecordsByDirection map[capture.Direction]int
	EventsByName       map[string]int
	Connections        map[string]*ConnectionStats
	Errors             int
	TimeRange          struct {
		Start time.Time
		End   time.Time
	}
}

// ConnectionStats holds statistics for a single connection.
type ConnectionStats struct {
	FirstSeen  time.Time
	LastSeen   time.Time
	Records    int
	RemoteAddr string
	Actions    int
	Responses  int
	Events     int
}

// RunStats analyzes the capture file and prints statistics.
func RunStats(path string, w io.Writer) error {
	reader, err := capture.NewReader(path)
	if err != nil {
		return fmt.Errorf("failed to open capture file: %w", err)
	}
	defer reader.Close()

	stats := &Stats{
		RecordsByLayer:     make(map[capture.Layer]int),
		RecordsByCategory:  make(map[capture.Category]int),
		RecordsByDirection: make(map[capture.Direction]int),
		EventsByName:       make(map[string]int),
		Connections:        make(map[string]*ConnectionStats),
	}

	for {
		record, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read record: %w", err)
		}

		stats.TotalRecords++
		stats.RecordsByLayer[record.Layer]++
		stats.RecordsByCategory[record.Category]++
		stats.RecordsByDirection[record.Direction]++

		// Track time range
		if stats.TimeRange.Start.IsZero() || record.Timestamp.Before(stats.TimeRange.Start) {
			stats.TimeRange.Start = record.Timestamp
		}
		if record.Timestamp.After(stats.TimeRange.End) {
			stats.TimeRange.End = record.Timestamp
		}

		// Track connection stats
		conn, ok := stats.Connections[record.ConnectionID]
		if !ok {
			conn = &ConnectionStats{
				FirstSeen: record.Timestamp,
				LastSeen:  record.Timestamp,
			}
			stats.Connections[record.ConnectionID] = conn
		}
		conn.Records++
		if record.Timestamp.After(conn.LastSeen) {
			conn.LastSeen = record.Timestamp
		}
		if record.RemoteAddr != "" && conn.RemoteAddr == "" {
			conn.RemoteAddr = record.RemoteAddr
		}

		// Count classified traffic per connection
		if record.Message != nil {
			switch record.Message.Kind {
			case "action":
				conn.Actions++
			case "response":
				conn.Responses++
			case "event":
				conn.Events++
				if record.Message.Name != "" {
					stats.EventsByName[record.Message.Name]++
				}
			}
		}

		// Count errors
		if record.Error != nil {
			stats.Errors++
		}
	}

	printStats(w, stats)
	return nil
}

func printStats(w io.Writer, stats *Stats) {
	fmt.Fprintln(w, "=== Manager Capture Statistics ===")
	fmt.Fprintln(w)

	// Time range
	if stats.TotalRecords > 0 {
		fmt.Fprintf(w, "Time Range: %s to %s\n",
			stats.TimeRange.Start.Format(time.RFC3339),
			stats.TimeRange.End.Format(time.RFC3339))
		fmt.Fprintf(w, "Duration:   %s\n", stats.TimeRange.End.Sub(stats.TimeRange.Start).Round(time.Second))
		fmt.Fprintln(w)
	}

	// Total records
	fmt.Fprintf(w, "Total Records: %d\n", stats.TotalRecords)
	fmt.Fprintln(w)

	// Records by layer
	fmt.Fprintln(w, "Records by Layer:")
	for _, layer := range []capture.Layer{capture.LayerTransport, capture.LayerWire, capture.LayerService} {
		if count := stats.RecordsByLayer[layer]; count > 0 {
			fmt.Fprintf(w, "  %-12s %d\n", layer.String()+":", count)
		}
	}
	fmt.Fprintln(w)

	// Records by category
	fmt.Fprintln(w, "Records by Category:")
	for _, cat := range []capture.Category{capture.CategoryMessage, capture.CategoryState, capture.CategoryError} {
		if count := stats.RecordsByCategory[cat]; count > 0 {
			fmt.Fprintf(w, "  %-12s %d\n", cat.String()+":", count)
		}
	}
	fmt.Fprintln(w)

	// Records by direction
	fmt.Fprintln(w, "Records by Direction:")
	for _, dir := range []capture.Direction{capture.DirectionIn, capture.DirectionOut} {
		if count := stats.RecordsByDirection[dir]; count > 0 {
			fmt.Fprintf(w, "  %-12s %d\n", dir.String()+":", count)
		}
	}
	fmt.Fprintln(w)

	// Top event names
	if len(stats.EventsByName) > 0 {
		fmt.Fprintln(w, "Top Events:")
		type nameCount struct {
			name  string
			count int
		}
		names := make([]nameCount, 0, len(stats.EventsByName))
		for name, count := range stats.EventsByName {
			names = append(names, nameCount{name, count})
		}
		sort.Slice(names, func(i, j int) bool {
			if names[i].count != names[j].count {
				return names[i].count > names[j].count
			}
			return names[i].name < names[j].name
		})
		if len(names) > 10 {
			names = names[:10]
		}
		for _, nc := range names {
			fmt.Fprintf(w, "  %-20s %d\n", nc.name+":", nc.count)
		}
		fmt.Fprintln(w)
	}

	// Connections
	fmt.Fprintf(w, "Connections: %d\n", len(stats.Connections))
	if len(stats.Connections) > 0 {
		// Sort by first seen time
		type connInfo struct {
			id    string
			stats *ConnectionStats
		}
		conns := make([]connInfo, 0, len(stats.Connections))
		for id, cs := range stats.Connections {
			conns = append(conns, connInfo{id, cs})
		}
		sort.Slice(conns, func(i, j int) bool {
			return conns[i].stats.FirstSeen.Before(conns[j].stats.FirstSeen)
		})

		fmt.Fprintln(w, "")
		for _, c := range conns {
			duration := c.stats.LastSeen.Sub(c.stats.FirstSeen).Round(time.Millisecond)
			shortID := c.id
			if len(shortID) > 8 {
				shortID = shortID[:8]
			}
			fmt.Fprintf(w, "  [%s] %d records, duration %s\n", shortID, c.stats.Records, duration)
			if c.stats.RemoteAddr != "" {
				fmt.Fprintf(w, "           Remote: %s\n", c.stats.RemoteAddr)
			}
			if c.stats.Actions > 0 || c.stats.Responses > 0 || c.stats.Events > 0 {
				fmt.Fprintf(w, "           Traffic: %d actions, %d responses, %d events\n",
					c.stats.Actions, c.stats.Responses, c.stats.Events)
			}
		}
	}

	// Errors
	if stats.Errors > 0 {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "Errors: %d\n", stats.Errors)
	}
}
