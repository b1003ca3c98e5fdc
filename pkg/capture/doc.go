// Package capture provides structured traffic capture for manager
// connections.
//
// This package defines the Logger interface and Record types for capturing
// connection activity at multiple layers (transport, wire, service).
// It is separate from operational logging (zerolog) - traffic capture
// provides a complete machine-readable trace for debugging and analysis.
//
// # Basic Usage
//
// Applications configure capture by providing a Logger implementation:
//
//	// For development: log to console via zerolog
//	cfg.Capture = capture.NewZerologAdapter(logger)
//
//	// For production: write to binary file
//	cfg.Capture, _ = capture.NewFileLogger("/var/log/connector/traffic.alog")
//
//	// Both: use MultiLogger
//	cfg.Capture = capture.NewMultiLogger(
//	    capture.NewZerologAdapter(logger),
//	    fileLogger,
//	)
//
// # Record Types
//
// Records are captured at multiple layers:
//   - Transport: raw frame bytes (FrameRecord)
//   - Wire: classified blocks (MessageRecord)
//   - Service: state changes (StateChangeRecord)
//
// Errors have a dedicated record type.
//
// # File Format
//
// Capture files use CBOR encoding with .alog extension. The connector-log
// CLI tool provides viewing, filtering, and export capabilities.
package capture
