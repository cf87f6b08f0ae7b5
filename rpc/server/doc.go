// Package server implements the hash equivalence server. It owns the store,
// the statistics and the dispatcher that executes every request, and it
// plugs into any transport of the rpc/transport package.
//
// The package focuses on:
//   - The single writer discipline: connections are accepted and read
//     concurrently, but every request runs on the one dispatcher worker
//   - The session protocol: hello, normal mode and the two stream modes
//   - Adapters that translate requests into store.IStore calls
//   - Access control with per-user permissions and anonymous defaults
//
// Key Components:
//
//   - IRPCServerAdapter: Interface of the request adapters. Every adapter
//     handles a group of message types: NewIStoreServerAdapter (lookups,
//     reports, streams and statistics), NewAdminServerAdapter (remove and
//     garbage collection) and NewUserServerAdapter (auth and users).
//
//   - NewRPCServer: Factory function creating a server with the given store
//     factory, transport and serializer.
//
// Usage Example:
//
//	config := common.ServerConfig{
//	  Transport:  "tcp",
//	  Endpoint:   "0.0.0.0:8686",
//	  Serializer: "json",
//	  DBPath:     "hashserv.db",
//	  LogLevel:   "info",
//	}
//
//	s := server.NewRPCServer(
//	  config,
//	  sqlstore.NewFactory(config.DBPath),
//	  tcp.NewTCPServerTransport(),
//	  serializer.NewJSONSerializer(),
//	)
//
//	// Blocks until SIGINT or SIGTERM
//	if err := s.Serve(); err != nil {
//	  log.Fatalf("Server error: %v", err)
//	}
//
// Framed connections start with the hello line "OEHASHEQUIV 1.1", which the
// server answers with "ok". Afterwards every frame is a serialized
// common.Message, until a get-stream or exists-stream request switches the
// connection to a stream. In a stream every frame is one query line and gets
// exactly one answer line, "END" returns to normal mode.
//
// Thread Safety:
//
//	The server handles any number of connections concurrently. Sessions, the
//	store and the adapters are only used by the dispatcher worker, the
//	statistics are guarded by their own locks. Start and Serve must be called
//	only once, Shutdown may be called any number of times.
package server
