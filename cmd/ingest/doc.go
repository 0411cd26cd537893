// Command ingest is the administrative CLI for the record store.
//
// It opens the configured store directly (SQLite and PostgreSQL both tolerate
// concurrent processes) so it works whether or not ingestd is running. The
// status command asks the running daemon over HTTP instead.
//
// Subcommands:
//
//	records list|show|reset|delete
//	queue poll|health|reap
//	config init|show
//	status
//
// Every command accepts --json for machine-readable output.
package main
