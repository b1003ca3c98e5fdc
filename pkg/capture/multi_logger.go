package capture

// MultiLogger sends records to multiple loggers.
// Useful when you want both console output (via ZerologAdapter)
// and file output (via FileLogger) simultaneously.
type MultiLogger struct {
	loggers []Logger
}

// NewMultiLogger creates a MultiLogger that sends records to all provided
// loggers.
func NewMultiLogger(loggers ...Logger) *MultiLogger {
	return &MultiLogger{loggers: loggers}
}

// Log sends the record to all configured loggers.
func (m *MultiLogger) Log(record Record) {
	for _, l := range m.loggers {
		l.Log(record)
	}
}

// Compile-time interface satisfaction check.
var _ Logger = (*MultiLogger)(nil)
