// Package timeouts defines shared timeout constants used across the ledger
// binaries.
package timeouts

import "time"

// JournalWrite caps a single journal append. The registry append path has no
// caller context, so the journal applies this bound itself.
const JournalWrite = 5 * time.Second

// JournalReplay caps loading a registry's journal rows at startup.
const JournalReplay = 30 * time.Second

// ReadHeader limits how long the metrics server waits for request headers.
const ReadHeader = 5 * time.Second

// Shutdown limits how long the metrics server waits for in-flight requests
// during graceful shutdown.
const Shutdown = 5 * time.Second

// TelemetryShutdown bounds flushing spans when a binary exits.
const TelemetryShutdown = 5 * time.Second
