// Package records persists uploaded records in a transactional store and
// exposes the lifecycle and queue-claim protocol built on top of them.
//
// A Record is the immutable upload envelope (project, user, source type and
// source id). Its Metadata carries the mutable status, message and revision;
// Contents and Logs hang off the record and are removed with it. Workers claim
// READY records with Poll, then report progress with StartProcessing and
// FinalizeProcessing. Every worker mutation presents the revision it last saw
// and is rejected with ErrRevisionConflict when the stored revision or status
// has moved on.
//
// All coordination happens inside store transactions. SQLite runs every
// transaction as BEGIN IMMEDIATE so writers are serialized; PostgreSQL relies
// on row locks (FOR UPDATE, SKIP LOCKED for polling). Status updates are also
// written as compare-and-swap statements on the revision column, so a lost race
// surfaces as a conflict rather than a merged write.
//
// Treat this package as the single source of truth for lifecycle semantics;
// when you add statuses or columns, add a migration for both dialects.
package records
