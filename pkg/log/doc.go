// Package log provides structured protocol logging for the deck client.
//
// This package defines the Logger interface and Event types for capturing
// protocol-level events at multiple layers (transport, wire, session). It is
// separate from operational logging - protocol capture provides a complete
// machine-readable event trace for debugging and analysis.
//
// # Basic Usage
//
// Applications configure logging by providing a Logger implementation:
//
//	// For development: log to console via slog
//	cfg.Logger = log.NewSlogAdapter(slog.Default())
//
//	// For production: write to binary file
//	cfg.Logger, _ = log.NewFileLogger("/var/log/deck/capture.dlog")
//
//	// Both: use MultiLogger
//	cfg.Logger = log.NewMultiLogger(
//	    log.NewSlogAdapter(slog.Default()),
//	    fileLogger,
//	)
//
// # Event Types
//
// Events are captured at multiple layers:
//   - Transport: raw wire lines (LineEvent)
//   - Wire: classified messages (MessageEvent)
//   - Session: connection state changes (StateChangeEvent)
//
// Errors and protocol anomalies (late responses, unknown notification
// kinds) have dedicated categories.
//
// # File Format
//
// Log files use CBOR encoding with .dlog extension. The hyperdeck-log CLI
// tool provides viewing, filtering, and export capabilities.
package log
