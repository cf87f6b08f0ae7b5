// Package serializer provides message serialization for the normal mode of
// the hash equivalence protocol. It defines a common interface and multiple
// implementations for converting between Message values and frame payloads.
//
// Key Components:
//
//   - IRPCSerializer: Core interface that all serializer implementations must satisfy.
//
//   - jsonSerializerImpl: JSON encoding. Message types and error kinds are
//     written by name, which keeps the wire readable while debugging.
//
//   - gobSerializerImpl: Go's gob encoding. Only usable between Go peers.
//
//   - cborSerializerImpl: CBOR with core deterministic encoding. The most
//     compact of the three; field names follow the json tags.
//
// Client and server must be configured with the same serializer. The stream
// modes exchange raw lines and never go through a serializer.
//
// Thread Safety:
//
//	All serializer implementations are stateless and safe for concurrent use
//	across multiple goroutines without additional synchronization.
package serializer
