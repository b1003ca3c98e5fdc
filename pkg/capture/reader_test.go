package capture

import (
	"io"
	"path/filepath"
	"testing"
	"time"
)

func createTestCaptureFile(t *testing.T, records []Record) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.alog")

	logger, err := NewFileLogger(path)
	if err != nil {
		t.Fatalf("failed to create test capture file: %v", err)
	}
	for _, r := range records {
		logger.Log(r)
	}
	logger.Close()

	return path
}

func readAll(t *testing.T, reader *Reader) []Record {
	t.Helper()
	var records []Record
	for {
		record, err := reader.Next()
		if err == io.EOF {
			return records
		}
		if err != nil {
			t.Fatalf("Next failed: %v", err)
		}
		records = append(records, record)
	}
}

func TestReaderIteratesRecords(t *testing.T) {
	records := []Record{
		{Timestamp: time.Now(), ConnectionID: "conn-1", Direction: DirectionIn, Layer: LayerTransport, Category: CategoryMessage},
		{Timestamp: time.Now(), ConnectionID: "conn-2", Direction: DirectionOut, Layer: LayerWire, Category: CategoryMessage},
		{Timestamp: time.Now(), ConnectionID: "conn-3", Direction: DirectionIn, Layer: LayerService, Category: CategoryState},
	}
	path := createTestCaptureFile(t, records)

	reader, err := NewReader(path)
	if err != nil {
		t.Fatalf("NewReader failed: %v", err)
	}
	defer reader.Close()

	read := readAll(t, reader)
	if len(read) != 3 {
		t.Fatalf("got %d records, want 3", len(read))
	}
	if read[0].ConnectionID != "conn-1" {
		t.Errorf("first record ConnectionID = %q, want %q", read[0].ConnectionID, "conn-1")
	}
	if read[2].ConnectionID != "conn-3" {
		t.Errorf("last record ConnectionID = %q, want %q", read[2].ConnectionID, "conn-3")
	}
}

func TestReaderHandlesEmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.alog")
	logger, _ := NewFileLogger(path)
	logger.Close()

	reader, err := NewReader(path)
	if err != nil {
		t.Fatalf("NewReader failed: %v", err)
	}
	defer reader.Close()

	record, err := reader.Next()
	if err != io.EOF {
		t.Errorf("expected io.EOF, got err=%v, record=%+v", err, record)
	}
}

func TestReaderFilterByConnectionID(t *testing.T) {
	records := []Record{
		{Timestamp: time.Now(), ConnectionID: "conn-A", Direction: DirectionIn, Layer: LayerTransport, Category: CategoryMessage},
		{Timestamp: time.Now(), ConnectionID: "conn-B", Direction: DirectionOut, Layer: LayerWire, Category: CategoryMessage},
		{Timestamp: time.Now(), ConnectionID: "conn-A", Direction: DirectionIn, Layer: LayerService, Category: CategoryState},
	}
	path := createTestCaptureFile(t, records)

	reader, err := NewFilteredReader(path, Filter{ConnectionID: "conn-A"})
	if err != nil {
		t.Fatalf("NewFilteredReader failed: %v", err)
	}
	defer reader.Close()

	read := readAll(t, reader)
	if len(read) != 2 {
		t.Fatalf("got %d records, want 2", len(read))
	}
	for _, r := range read {
		if r.ConnectionID != "conn-A" {
			t.Errorf("record has ConnectionID=%q, want %q", r.ConnectionID, "conn-A")
		}
	}
}

func TestReaderFilterByName(t *testing.T) {
	records := []Record{
		{Timestamp: time.Now(), ConnectionID: "c", Direction: DirectionIn, Layer: LayerWire, Category: CategoryMessage,
			Message: &MessageRecord{Kind: "event", Name: "Newchannel"}},
		{Timestamp: time.Now(), ConnectionID: "c", Direction: DirectionIn, Layer: LayerWire, Category: CategoryMessage,
			Message: &MessageRecord{Kind: "event", Name: "Hangup"}},
		{Timestamp: time.Now(), ConnectionID: "c", Direction: DirectionIn, Layer: LayerTransport, Category: CategoryMessage,
			Frame: &FrameRecord{Size: 10}},
		{Timestamp: time.Now(), ConnectionID: "c", Direction: DirectionIn, Layer: LayerWire, Category: CategoryMessage,
			Message: &MessageRecord{Kind: "event", Name: "Newchannel"}},
	}
	path := createTestCaptureFile(t, records)

	reader, err := NewFilteredReader(path, Filter{Name: "Newchannel"})
	if err != nil {
		t.Fatalf("NewFilteredReader failed: %v", err)
	}
	defer reader.Close()

	read := readAll(t, reader)
	if len(read) != 2 {
		t.Fatalf("got %d records, want 2", len(read))
	}
	for _, r := range read {
		if r.Message == nil || r.Message.Name != "Newchannel" {
			t.Errorf("record message = %+v", r.Message)
		}
	}
}

func TestReaderFilterByTimeRange(t *testing.T) {
	baseTime := time.Date(2026, 5, 12, 10, 0, 0, 0, time.UTC)
	records := []Record{
		{Timestamp: baseTime.Add(-1 * time.Hour), ConnectionID: "conn-1", Direction: DirectionIn, Layer: LayerTransport, Category: CategoryMessage},
		{Timestamp: baseTime, ConnectionID: "conn-2", Direction: DirectionOut, Layer: LayerWire, Category: CategoryMessage},
		{Timestamp: baseTime.Add(30 * time.Minute), ConnectionID: "conn-3", Direction: DirectionIn, Layer: LayerService, Category: CategoryState},
		{Timestamp: baseTime.Add(2 * time.Hour), ConnectionID: "conn-4", Direction: DirectionOut, Layer: LayerTransport, Category: CategoryMessage},
	}
	path := createTestCaptureFile(t, records)

	start := baseTime.Add(-5 * time.Minute)
	end := baseTime.Add(1 * time.Hour)
	reader, err := NewFilteredReader(path, Filter{TimeStart: &start, TimeEnd: &end})
	if err != nil {
		t.Fatalf("NewFilteredReader failed: %v", err)
	}
	defer reader.Close()

	read := readAll(t, reader)
	if len(read) != 2 {
		t.Fatalf("got %d records, want 2 (records within time range)", len(read))
	}
	if read[0].ConnectionID != "conn-2" || read[1].ConnectionID != "conn-3" {
		t.Errorf("read wrong records: %q, %q", read[0].ConnectionID, read[1].ConnectionID)
	}
}

func TestReaderCombinedFilters(t *testing.T) {
	records := []Record{
		{Timestamp: time.Now(), ConnectionID: "conn-A", Direction: DirectionIn, Layer: LayerTransport, Category: CategoryMessage},
		{Timestamp: time.Now(), ConnectionID: "conn-A", Direction: DirectionOut, Layer: LayerWire, Category: CategoryMessage},
		{Timestamp: time.Now(), ConnectionID: "conn-B", Direction: DirectionIn, Layer: LayerWire, Category: CategoryMessage},
		{Timestamp: time.Now(), ConnectionID: "conn-A", Direction: DirectionIn, Layer: LayerWire, Category: CategoryMessage},
	}
	path := createTestCaptureFile(t, records)

	layer := LayerWire
	dir := DirectionIn
	reader, err := NewFilteredReader(path, Filter{
		ConnectionID: "conn-A",
		Layer:        &layer,
		Direction:    &dir,
	})
	if err != nil {
		t.Fatalf("NewFilteredReader failed: %v", err)
	}
	defer reader.Close()

	read := readAll(t, reader)
	// Only the last record matches all criteria
	if len(read) != 1 {
		t.Fatalf("got %d records, want 1", len(read))
	}
	if read[0].ConnectionID != "conn-A" || read[0].Layer != LayerWire || read[0].Direction != DirectionIn {
		t.Error("record doesn't match all filter criteria")
	}
}
