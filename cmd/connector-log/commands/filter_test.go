package commands

import (
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/grothdavid/ccdashboard-freepbx2/pkg/capture"
)

func TestFilterByConnectionID(t *testing.T) {
	ts := time.Date(2026, 1, 28, 10, 15, 32, 0, time.UTC)
	records := []capture.Record{
		{Timestamp: ts, ConnectionID: "conn-1", Category: capture.CategoryMessage},
		{Timestamp: ts, ConnectionID: "conn-2", Category: capture.CategoryMessage},
		{Timestamp: ts, ConnectionID: "conn-1", Category: capture.CategoryMessage},
	}

	path := createTestCaptureFile(t, records)
	outPath := filepath.Join(t.TempDir(), "filtered.alog")

	err := RunFilter(path, FilterOptions{
		Output: outPath,
		ConnID: "conn-1",
	})
	if err != nil {
		t.Fatalf("RunFilter failed: %v", err)
	}

	// Verify output
	reader, err := capture.NewReader(outPath)
	if err != nil {
		t.Fatalf("failed to open output: %v", err)
	}
	defer reader.Close()

	count := 0
	for {
		record, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("failed to read record: %v", err)
		}
		if record.ConnectionID != "conn-1" {
			t.Errorf("expected conn-1, got %s", record.ConnectionID)
		}
		count++
	}

	if count != 2 {
		t.Errorf("expected 2 records, got %d", count)
	}
}

func TestFilterByTimeRange(t *testing.T) {
	base := time.Date(2026, 1, 28, 10, 0, 0, 0, time.UTC)
	records := []capture.Record{
		{Timestamp: base, ConnectionID: "conn-1", Category: capture.CategoryMessage},
		{Timestamp: base.Add(time.Hour), ConnectionID: "conn-1", Category: capture.CategoryMessage},
		{Timestamp: base.Add(2 * time.Hour), ConnectionID: "conn-1", Category: capture.CategoryMessage},
	}

	path := createTestCaptureFile(t, records)
	outPath := filepath.Join(t.TempDir(), "filtered.alog")

	err := RunFilter(path, FilterOptions{
		Output:    outPath,
		TimeStart: base.Add(30 * time.Minute).Format(time.RFC3339),
		TimeEnd:   base.Add(90 * time.Minute).Format(time.RFC3339),
	})
	if err != nil {
		t.Fatalf("RunFilter failed: %v", err)
	}

	// Only the middle record falls inside the window
	reader, err := capture.NewReader(outPath)
	if err != nil {
		t.Fatalf("failed to open output: %v", err)
	}
	defer reader.Close()

	count := 0
	for {
		_, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("failed to read record: %v", err)
		}
		count++
	}

	if count != 1 {
		t.Errorf("expected 1 record, got %d", count)
	}
}

func TestFilterCommandByLayer(t *testing.T) {
	ts := time.Date(2026, 1, 28, 10, 0, 0, 0, time.UTC)
	records := []capture.Record{
		{Timestamp: ts, Layer: capture.LayerTransport, Category: capture.CategoryMessage},
		{Timestamp: ts, Layer: capture.LayerWire, Category: capture.CategoryMessage},
		{Timestamp: ts, Layer: capture.LayerService, Category: capture.CategoryMessage},
	}

	path := createTestCaptureFile(t, records)
	outPath := filepath.Join(t.TempDir(), "filtered.alog")

	err := RunFilter(path, FilterOptions{
		Output: outPath,
		Layer:  "wire",
	})
	if err != nil {
		t.Fatalf("RunFilter failed: %v", err)
	}

	reader, err := capture.NewReader(outPath)
	if err != nil {
		t.Fatalf("failed to open output: %v", err)
	}
	defer reader.Close()

	count := 0
	for {
		record, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("failed to read record: %v", err)
		}
		if record.Layer != capture.LayerWire {
			t.Errorf("expected wire layer, got %v", record.Layer)
		}
		count++
	}

	if count != 1 {
		t.Errorf("expected 1 record, got %d", count)
	}
}

func TestFilterByEventName(t *testing.T) {
	ts := time.Date(2026, 1, 28, 10, 0, 0, 0, time.UTC)
	records := []capture.Record{
		{Timestamp: ts, Message: &capture.MessageRecord{Kind: "event", Name: "Newchannel"}},
		{Timestamp: ts, Message: &capture.MessageRecord{Kind: "event", Name: "Hangup"}},
		{Timestamp: ts, Message: &capture.MessageRecord{Kind: "event", Name: "Newchannel"}},
	}

	path := createTestCaptureFile(t, records)
	outPath := filepath.Join(t.TempDir(), "filtered.alog")

	err := RunFilter(path, FilterOptions{
		Output: outPath,
		Name:   "Newchannel",
	})
	if err != nil {
		t.Fatalf("RunFilter failed: %v", err)
	}

	reader, err := capture.NewReader(outPath)
	if err != nil {
		t.Fatalf("failed to open output: %v", err)
	}
	defer reader.Close()

	count := 0
	for {
		record, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("failed to read record: %v", err)
		}
		if record.Message == nil || record.Message.Name != "Newchannel" {
			t.Errorf("expected Newchannel record, got %+v", record)
		}
		count++
	}

	if count != 2 {
		t.Errorf("expected 2 records, got %d", count)
	}
}

func TestFilterWritesCBOR(t *testing.T) {
	ts := time.Date(2026, 1, 28, 10, 0, 0, 0, time.UTC)
	records := []capture.Record{
		{Timestamp: ts, ConnectionID: "conn-1", Category: capture.CategoryMessage},
	}

	path := createTestCaptureFile(t, records)
	outPath := filepath.Join(t.TempDir(), "filtered.alog")

	err := RunFilter(path, FilterOptions{
		Output: outPath,
	})
	if err != nil {
		t.Fatalf("RunFilter failed: %v", err)
	}

	// Verify it's readable as CBOR
	reader, err := capture.NewReader(outPath)
	if err != nil {
		t.Fatalf("failed to open output as CBOR: %v", err)
	}
	defer reader.Close()

	record, err := reader.Next()
	if err != nil {
		t.Fatalf("failed to read record: %v", err)
	}

	if record.ConnectionID != "conn-1" {
		t.Errorf("expected conn-1, got %s", record.ConnectionID)
	}
}
