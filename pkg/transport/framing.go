package transport

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/grothdavid/ccdashboard-freepbx2/pkg/capture"
)

const (
	// DefaultMaxLineBytes bounds a single line.
	DefaultMaxLineBytes = 16 * 1024

	// DefaultMaxBlockLines bounds the number of lines in one block.
	DefaultMaxBlockLines = 1024

	// DefaultMaxFrameBytes bounds one outbound frame.
	DefaultMaxFrameBytes = 64 * 1024

	// frameLogDataLimit caps how much payload is copied into capture
	// records.
	frameLogDataLimit = 4096
)

var (
	// ErrLineTooLong indicates a line exceeded the line limit.
	ErrLineTooLong = errors.New("transport: line too long")

	// ErrBlockTooLarge indicates a block exceeded the line-count limit.
	ErrBlockTooLarge = errors.New("transport: block too large")

	// ErrFrameEmpty indicates an attempt to send an empty frame.
	ErrFrameEmpty = errors.New("transport: frame empty")

	// ErrFrameTooLarge indicates an outbound frame exceeded the frame limit.
	ErrFrameTooLarge = errors.New("transport: frame too large")
)

// FrameReader reads CRLF-framed blocks from an underlying reader.
type FrameReader struct {
	r             *bufio.Reader
	maxLineBytes  int
	maxBlockLines int

	logger capture.Logger
	connID string
	remote string
}

// NewFrameReader returns a FrameReader with default limits.
func NewFrameReader(r io.Reader) *FrameReader {
	return &FrameReader{
		r:             bufio.NewReader(r),
		maxLineBytes:  DefaultMaxLineBytes,
		maxBlockLines: DefaultMaxBlockLines,
	}
}

// SetLimits overrides the line and block limits. A zero value keeps the
// current limit.
func (fr *FrameReader) SetLimits(maxLineBytes, maxBlockLines int) {
	if maxLineBytes > 0 {
		fr.maxLineBytes = maxLineBytes
	}
	if maxBlockLines > 0 {
		fr.maxBlockLines = maxBlockLines
	}
}

// SetCapture attaches a capture logger recording inbound frames.
func (fr *FrameReader) SetCapture(logger capture.Logger, connID, remoteAddr string) {
	fr.logger = logger
	fr.connID = connID
	fr.remote = remoteAddr
}

// ReadBanner reads the greeting line the peer sends before the first block.
func (fr *FrameReader) ReadBanner() (string, error) {
	line, err := fr.readLine()
	if err != nil {
		return "", err
	}
	if fr.logger != nil {
		fr.logger.Log(makeFrameRecord(capture.DirectionIn, fr.connID, fr.remote, line))
	}
	return string(line), nil
}

// ReadBlock reads lines until a blank line and returns them without line
// terminators. Blocks with no lines are skipped, so a successful return
// always carries at least one line. If the stream ends mid-block the partial
// lines are discarded and only the read error is returned.
func (fr *FrameReader) ReadBlock() ([]string, error) {
	for {
		lines, err := fr.readBlockOnce()
		if err != nil {
			return nil, err
		}
		if len(lines) > 0 {
			return lines, nil
		}
	}
}

func (fr *FrameReader) readBlockOnce() ([]string, error) {
	var lines []string
	for {
		raw, err := fr.readLine()
		if err != nil {
			return nil, err
		}
		if len(raw) == 0 {
			fr.captureBlock(lines)
			return lines, nil
		}
		if len(lines) >= fr.maxBlockLines {
			return nil, fmt.Errorf("%w: more than %d lines", ErrBlockTooLarge, fr.maxBlockLines)
		}
		lines = append(lines, string(raw))
	}
}

// readLine returns one line with its CRLF or LF terminator stripped.
func (fr *FrameReader) readLine() ([]byte, error) {
	var line []byte
	for {
		part, isPrefix, err := fr.r.ReadLine()
		if err != nil {
			return nil, err
		}
		if len(line)+len(part) > fr.maxLineBytes {
			return nil, fmt.Errorf("%w: more than %d bytes", ErrLineTooLong, fr.maxLineBytes)
		}
		line = append(line, part...)
		if !isPrefix {
			return line, nil
		}
	}
}

func (fr *FrameReader) captureBlock(lines []string) {
	if fr.logger == nil || len(lines) == 0 {
		return
	}
	var buf bytes.Buffer
	for _, line := range lines {
		buf.WriteString(line)
		buf.WriteString("\r\n")
	}
	buf.WriteString("\r\n")
	fr.logger.Log(makeFrameRecord(capture.DirectionIn, fr.connID, fr.remote, buf.Bytes()))
}

// FrameWriter writes frames to an underlying writer. Writes are serialized
// so concurrent callers never interleave frames.
type FrameWriter struct {
	w            io.Writer
	maxFrameSize int
	mu           sync.Mutex

	logger capture.Logger
	connID string
	remote string
}

// NewFrameWriter returns a FrameWriter with the default frame limit.
func NewFrameWriter(w io.Writer) *FrameWriter {
	return &FrameWriter{
		w:            w,
		maxFrameSize: DefaultMaxFrameBytes,
	}
}

// SetCapture attaches a capture logger recording outbound frames.
func (fw *FrameWriter) SetCapture(logger capture.Logger, connID, remoteAddr string) {
	fw.logger = logger
	fw.connID = connID
	fw.remote = remoteAddr
}

// WriteFrame writes one encoded block. The data must already carry its
// terminating blank line.
func (fw *FrameWriter) WriteFrame(data []byte) error {
	if len(data) == 0 {
		return ErrFrameEmpty
	}
	if len(data) > fw.maxFrameSize {
		return fmt.Errorf("%w: %d bytes (max %d)", ErrFrameTooLarge, len(data), fw.maxFrameSize)
	}

	fw.mu.Lock()
	defer fw.mu.Unlock()

	if _, err := fw.w.Write(data); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	if fw.logger != nil {
		fw.logger.Log(makeFrameRecord(capture.DirectionOut, fw.connID, fw.remote, data))
	}
	return nil
}

// Framer combines a FrameReader and FrameWriter over one connection.
type Framer struct {
	*FrameReader
	*FrameWriter
}

// NewFramer returns a Framer over rw.
func NewFramer(rw io.ReadWriter) *Framer {
	return &Framer{
		FrameReader: NewFrameReader(rw),
		FrameWriter: NewFrameWriter(rw),
	}
}

// SetCapture attaches a capture logger to both directions.
func (f *Framer) SetCapture(logger capture.Logger, connID, remoteAddr string) {
	f.FrameReader.SetCapture(logger, connID, remoteAddr)
	f.FrameWriter.SetCapture(logger, connID, remoteAddr)
}

// makeFrameRecord builds a capture record for raw frame data, copying at
// most frameLogDataLimit bytes.
func makeFrameRecord(direction capture.Direction, connID, remoteAddr string, data []byte) capture.Record {
	size := len(data)
	truncated := false
	if len(data) > frameLogDataLimit {
		data = data[:frameLogDataLimit]
		truncated = true
	}
	copied := make([]byte, len(data))
	copy(copied, data)

	return capture.Record{
		Timestamp:    time.Now(),
		ConnectionID: connID,
		Direction:    direction,
		Layer:        capture.LayerTransport,
		Category:     capture.CategoryMessage,
		RemoteAddr:   remoteAddr,
		Frame: &capture.FrameRecord{
			Size:      size,
			Data:      copied,
			Truncated: truncated,
		},
	}
}
