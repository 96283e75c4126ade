// Package journal records connection lifecycle events in PostgreSQL.
//
// Events are taken from a connection.Subscription, batched, and written
// to the link_events table with pgx.Batch. Writes are append-only.
package journal
