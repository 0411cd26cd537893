// Package daemon coordinates the long-running ingest process.
//
// It wires configuration, the record store, the source-type registry and
// metrics into a single lifecycle with flock-based locking to prevent multiple
// instances. The daemon serves the HTTP API (chi router, bearer-token guard,
// request ids, Prometheus metrics) and runs the stale-claim reaper that returns
// abandoned QUEUED/PROCESSING records to READY.
//
// Keep orchestration here: lifecycle rules belong to the records package and
// payload shaping to the api package.
package daemon
