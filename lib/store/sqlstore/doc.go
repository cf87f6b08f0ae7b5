// Package sqlstore implements store.IStore on a single SQLite file using
// github.com/mattn/go-sqlite3.
//
// The schema is embedded from schema.sql and upgraded on Open through
// PRAGMA user_version. Garbage collection tags live in the gc_marks side
// table, so the tasks table itself stays append-only.
package sqlstore
