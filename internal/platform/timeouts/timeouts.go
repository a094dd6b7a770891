// Package timeouts defines shared timeout constants used across the daemon
// and the admin CLI. Centralizing these values prevents drift between the
// two and makes the durations discoverable.
package timeouts

import "time"

// StorageInit caps connecting to and migrating the storage backend.
const StorageInit = 15 * time.Second

// Persist caps a single save or delete of one cutscene.
const Persist = 10 * time.Second

// ReadHeader limits how long the health server waits for request headers.
const ReadHeader = 5 * time.Second

// Shutdown limits how long servers wait for in-flight requests during
// graceful shutdown.
const Shutdown = 5 * time.Second
