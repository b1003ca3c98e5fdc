package transport

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/grothdavid/ccdashboard-freepbx2/pkg/capture"
)

type recordingLogger struct {
	records []capture.Record
}

func (r *recordingLogger) Log(rec capture.Record) {
	r.records = append(r.records, rec)
}

func TestFrameReaderReadBlock(t *testing.T) {
	t.Run("TwoBlocks", func(t *testing.T) {
		input := "Event: Newchannel\r\nChannel: SIP/1001-00000001\r\n\r\nEvent: Hangup\r\n\r\n"
		fr := NewFrameReader(strings.NewReader(input))

		first, err := fr.ReadBlock()
		if err != nil {
			t.Fatalf("first block: %v", err)
		}
		want := []string{"Event: Newchannel", "Channel: SIP/1001-00000001"}
		if len(first) != len(want) {
			t.Fatalf("first block has %d lines, want %d", len(first), len(want))
		}
		for i := range want {
			if first[i] != want[i] {
				t.Errorf("line %d = %q, want %q", i, first[i], want[i])
			}
		}

		second, err := fr.ReadBlock()
		if err != nil {
			t.Fatalf("second block: %v", err)
		}
		if len(second) != 1 || second[0] != "Event: Hangup" {
			t.Errorf("second block = %v", second)
		}

		if _, err := fr.ReadBlock(); !errors.Is(err, io.EOF) {
			t.Errorf("after last block err = %v, want io.EOF", err)
		}
	})

	t.Run("BareLFTolerated", func(t *testing.T) {
		fr := NewFrameReader(strings.NewReader("Response: Success\n\n"))
		lines, err := fr.ReadBlock()
		if err != nil {
			t.Fatalf("ReadBlock: %v", err)
		}
		if len(lines) != 1 || lines[0] != "Response: Success" {
			t.Errorf("lines = %v", lines)
		}
	})

	t.Run("EmptyBlocksSkipped", func(t *testing.T) {
		fr := NewFrameReader(strings.NewReader("\r\n\r\nEvent: Ping\r\n\r\n"))
		lines, err := fr.ReadBlock()
		if err != nil {
			t.Fatalf("ReadBlock: %v", err)
		}
		if len(lines) != 1 || lines[0] != "Event: Ping" {
			t.Errorf("lines = %v", lines)
		}
	})

	t.Run("PartialFinalBlockDiscarded", func(t *testing.T) {
		input := "Event: Newchannel\r\n\r\nEvent: Hangup\r\nChannel: SIP"
		fr := NewFrameReader(strings.NewReader(input))

		if _, err := fr.ReadBlock(); err != nil {
			t.Fatalf("complete block: %v", err)
		}

		lines, err := fr.ReadBlock()
		if !errors.Is(err, io.EOF) {
			t.Errorf("err = %v, want io.EOF", err)
		}
		if lines != nil {
			t.Errorf("partial block surfaced lines %v", lines)
		}
	})
}

func TestFrameReaderBanner(t *testing.T) {
	input := "Asterisk Call Manager/5.0.2\r\nEvent: FullyBooted\r\n\r\n"
	fr := NewFrameReader(strings.NewReader(input))

	banner, err := fr.ReadBanner()
	if err != nil {
		t.Fatalf("ReadBanner: %v", err)
	}
	if banner != "Asterisk Call Manager/5.0.2" {
		t.Errorf("banner = %q", banner)
	}

	lines, err := fr.ReadBlock()
	if err != nil {
		t.Fatalf("ReadBlock after banner: %v", err)
	}
	if len(lines) != 1 || lines[0] != "Event: FullyBooted" {
		t.Errorf("lines = %v", lines)
	}
}

func TestFrameReaderLimits(t *testing.T) {
	t.Run("LineTooLong", func(t *testing.T) {
		fr := NewFrameReader(strings.NewReader("Key: " + strings.Repeat("x", 64) + "\r\n\r\n"))
		fr.SetLimits(16, 0)
		if _, err := fr.ReadBlock(); !errors.Is(err, ErrLineTooLong) {
			t.Errorf("err = %v, want ErrLineTooLong", err)
		}
	})

	t.Run("BlockTooLarge", func(t *testing.T) {
		fr := NewFrameReader(strings.NewReader("A: 1\r\nB: 2\r\nC: 3\r\n\r\n"))
		fr.SetLimits(0, 2)
		if _, err := fr.ReadBlock(); !errors.Is(err, ErrBlockTooLarge) {
			t.Errorf("err = %v, want ErrBlockTooLarge", err)
		}
	})
}

func TestFrameWriterWriteFrame(t *testing.T) {
	t.Run("WritesData", func(t *testing.T) {
		var buf bytes.Buffer
		fw := NewFrameWriter(&buf)
		frame := []byte("Action: Ping\r\nActionID: 1\r\n\r\n")
		if err := fw.WriteFrame(frame); err != nil {
			t.Fatalf("WriteFrame: %v", err)
		}
		if buf.String() != string(frame) {
			t.Errorf("wrote %q, want %q", buf.String(), frame)
		}
	})

	t.Run("RejectsEmpty", func(t *testing.T) {
		fw := NewFrameWriter(&bytes.Buffer{})
		if err := fw.WriteFrame(nil); !errors.Is(err, ErrFrameEmpty) {
			t.Errorf("err = %v, want ErrFrameEmpty", err)
		}
	})

	t.Run("RejectsOversize", func(t *testing.T) {
		fw := NewFrameWriter(&bytes.Buffer{})
		frame := bytes.Repeat([]byte("x"), DefaultMaxFrameBytes+1)
		if err := fw.WriteFrame(frame); !errors.Is(err, ErrFrameTooLarge) {
			t.Errorf("err = %v, want ErrFrameTooLarge", err)
		}
	})
}

type readWriter struct {
	io.Reader
	io.Writer
}

func TestFramerCapture(t *testing.T) {
	logger := &recordingLogger{}
	var out bytes.Buffer
	f := NewFramer(readWriter{
		Reader: strings.NewReader("Event: Hangup\r\nChannel: SIP/1001-00000001\r\n\r\n"),
		Writer: &out,
	})
	f.SetCapture(logger, "conn-1", "127.0.0.1:5038")

	if err := f.WriteFrame([]byte("Action: Ping\r\n\r\n")); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	if _, err := f.ReadBlock(); err != nil {
		t.Fatalf("ReadBlock: %v", err)
	}

	if len(logger.records) != 2 {
		t.Fatalf("captured %d records, want 2", len(logger.records))
	}

	sent := logger.records[0]
	if sent.Direction != capture.DirectionOut || sent.Layer != capture.LayerTransport {
		t.Errorf("sent record direction=%v layer=%v", sent.Direction, sent.Layer)
	}
	if sent.ConnectionID != "conn-1" || sent.RemoteAddr != "127.0.0.1:5038" {
		t.Errorf("sent record conn=%q remote=%q", sent.ConnectionID, sent.RemoteAddr)
	}
	if sent.Frame == nil || sent.Frame.Size != len("Action: Ping\r\n\r\n") {
		t.Errorf("sent record frame = %+v", sent.Frame)
	}

	received := logger.records[1]
	if received.Direction != capture.DirectionIn {
		t.Errorf("received record direction = %v", received.Direction)
	}
	if received.Frame == nil || received.Frame.Truncated {
		t.Errorf("received record frame = %+v", received.Frame)
	}
}

func TestFramerCaptureTruncation(t *testing.T) {
	logger := &recordingLogger{}
	fw := NewFrameWriter(io.Discard)
	fw.SetCapture(logger, "conn-1", "")

	frame := bytes.Repeat([]byte("x"), frameLogDataLimit+100)
	if err := fw.WriteFrame(frame); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}

	if len(logger.records) != 1 {
		t.Fatalf("captured %d records, want 1", len(logger.records))
	}
	rec := logger.records[0].Frame
	if rec == nil {
		t.Fatal("record has no frame")
	}
	if !rec.Truncated {
		t.Error("frame not marked truncated")
	}
	if len(rec.Data) != frameLogDataLimit {
		t.Errorf("captured %d bytes, want %d", len(rec.Data), frameLogDataLimit)
	}
	if rec.Size != len(frame) {
		t.Errorf("recorded size %d, want %d", rec.Size, len(frame))
	}
}
