// Package logging provides a minimal logging interface and adapters for
// agentcomm.
//
// The Logger interface defines the standard logging methods (Debug, Info,
// Warn, Error) that the protocol and agents use for observability:
//
//   - Logger interface for dependency injection
//   - SlogAdapter wrapping Go's structured logging
//   - NoOpLogger for silent operation (testing, minimal setups)
//
// The design intentionally keeps the interface minimal so callers can plug
// any structured logger without vendor lock-in.
package logging
