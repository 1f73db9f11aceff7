// Package timeouts defines shared timeout constants used across services.
// Centralizing these values prevents drift between service boundaries and
// makes the durations discoverable.
package timeouts

import "time"

// ToolCall caps the time allowed for a single MCP tool invocation.
const ToolCall = 10 * time.Second

// QueryFetch caps the time allowed for one cache fetch against storage.
const QueryFetch = 5 * time.Second

// Shutdown limits how long the service waits for in-flight work during
// graceful shutdown.
const Shutdown = 5 * time.Second
