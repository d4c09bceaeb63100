// Package api implements the HTTP status API for the bridge.
//
// This package provides:
//   - Health endpoint for container and supervisor probes
//   - Read-only visibility into tag sync state and counters
//   - Access to the recent event journal
//   - Middleware stack (request ID, logging, recovery)
//
// # Architecture
//
// The API is strictly observational. Commands are accepted over MQTT
// command topics only; the HTTP surface never writes to the PLC. This
// keeps the bridge's single command path intact and the API safe to
// expose to dashboards.
//
// # Graceful Degradation
//
// The server runs even when the journal is disabled; the journal
// endpoint then returns 404 and everything else works.
package api
