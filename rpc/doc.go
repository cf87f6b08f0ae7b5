// Package rpc provides the network layer of the hash equivalence service.
//
// The package is organized into several subpackages:
//
//   - common: Core data structures used across the RPC system, including the
//     Message protocol, configuration structures, errors and logging.
//
//   - transport: Network communication abstractions with pluggable implementations
//     (TCP, Unix sockets, HTTP).
//
//   - serializer: Message serialization with multiple format options (JSON, GOB, CBOR)
//     for converting between Message objects and byte arrays.
//
//   - server: The request dispatcher and the protocol handler that answers
//     requests from the store.
//
//   - client: The streaming client with batching and a connection pool.
package rpc
