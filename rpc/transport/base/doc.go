// Package base provides the framed transport shared by the tcp and unix
// transports. It is independent of the specific network protocol and extended
// with protocol-specific connectors.
//
// Frame format: a 4 byte big endian payload length followed by the payload.
// The payload is either a serialized message (normal mode) or a raw line
// (stream modes); this package does not look into it.
//
// Key Components:
//
//   - IServerConnector: Interface for protocol-specific listen operations.
//
//   - serverTransport: Accepts connections, reads their frames and passes each
//     frame to the registered handler. Open connections are tracked so Close
//     can tear all of them down and wait for their goroutines.
//
//   - Conn: Client side framed connection with optional deadlines.
//
// Performance Optimizations:
//
//   - Buffer Pooling: The server uses a sync.Pool for the per connection read
//     buffers, reducing GC pressure and memory allocations.
//
//   - Frame Batching: Frames are written with net.Buffers, combining header and
//     payload into a single write operation.
package base
