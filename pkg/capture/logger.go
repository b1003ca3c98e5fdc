package capture

// Logger is the interface applications implement to receive capture records.
// Pass nil or NoopLogger to disable capture.
type Logger interface {
	// Log records a capture record. Implementations must be thread-safe.
	// The record should be processed quickly or queued; blocking affects
	// the connection's read loop.
	Log(record Record)
}

// NoopLogger discards all records. Use when capture is disabled.
// NoopLogger is safe for concurrent use and usable as a zero value.
type NoopLogger struct{}

// Log discards the record.
func (NoopLogger) Log(Record) {}

// Compile-time interface satisfaction check.
var _ Logger = NoopLogger{}
