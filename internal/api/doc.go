// Package api defines wire-format types and the service layer behind the HTTP
// API. It translates records models into transport-friendly DTOs and maps store
// errors onto status codes, so handlers stay thin.
//
// # Key Types
//
// Record: transport representation of a record with its metadata, attachment
// summaries and a logs URL when logs exist.
//
// PollRequest/PollResponse and TransactionRequest/TransactionResponse: the
// worker protocol payloads.
//
// DaemonStatus: daemon running state, store diagnostics, per-status counts and
// source-type health.
//
// # Design Notes
//
// DTOs use camelCase JSON tags. Statuses are exposed as the upper-case enum
// names. Timestamps use RFC3339 with milliseconds. Raw log text and content
// bytes are never embedded in record payloads; clients follow the URLs.
package api
