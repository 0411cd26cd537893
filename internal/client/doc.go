// Package client talks to a running ingestd over its HTTP API.
//
// Workers use Poll and Transact to claim records and report outcomes; the
// CLI uses Status to describe the daemon. API failures come back as *Error,
// which unwraps to the records sentinels so callers can test them with
// errors.Is.
package client
