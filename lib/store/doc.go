// Package store defines the storage interface of the hash equivalence server.
//
// The package focuses on:
//   - A unified interface (IStore) for the equivalence records and the users
//   - Pluggable storage backends through the Factory pattern
//
// Key Components:
//
//   - ITaskStore: Lookup, equivalence reporting, removal and the mark and sweep
//     garbage collection over the append-only record table. Report is where the
//     dedup algorithm lives: a new (method, outhash) pair that was already seen
//     under another taskhash inherits the unihash of the earliest such record.
//
//   - IUserStore: Users with their permissions and the hash of their token.
//
//   - Error System: A structured error reporting mechanism using typed error codes
//     and descriptive messages. The server forwards these errors to the client as
//     input errors, so a failed store operation never tears down a connection.
//
// Implementations:
//
//	- SQLite Store (sqlstore): A single file database accessed through one
//	  connection. It is written to by exactly one goroutine, the dispatcher
//	  worker of the server.
//	  Available in the "github.com/ValentinKolb/hashserv/lib/store/sqlstore" package.
package store
