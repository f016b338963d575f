// Package timeouts defines shared timeout constants used across the identity
// service. Centralizing these values prevents drift between the gatekeeper,
// resolver, and server wiring, and makes the durations discoverable.
package timeouts

import "time"

// DirectoryLookup caps a single directory read during session resolution.
// Lookups that exceed it resolve to an anonymous session (fail closed).
const DirectoryLookup = 2 * time.Second

// ReadHeader limits how long the HTTP server waits for request headers.
const ReadHeader = 5 * time.Second

// Shutdown limits how long the HTTP server waits for in-flight requests
// during graceful shutdown.
const Shutdown = 5 * time.Second
