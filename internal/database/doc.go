// Package database provides the PostgreSQL connection pool used by the
// connection event journal.
package database
