// Package repository holds the History Store implementations. Every store keeps
// an append-only turn log and serves the most recent turns newest-first.
package repository

const (
	// DatabaseName is the database (or SQLite file stem) holding the turn log.
	DatabaseName = "chat_history"
	// CollectionName is the collection, table, or partition of the turn log.
	CollectionName = "history"
)
