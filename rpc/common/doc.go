// Package common provides core data structures and utilities shared across
// the hash equivalence server and its client. It defines the protocol
// elements, configuration structures and the error model used by the other
// rpc packages.
//
// Key Components:
//
//   - Message: Core data structure of normal mode requests and responses,
//     with a flexible structure that adapts to the operation type.
//     Includes factory methods for creating the common messages.
//
//   - MessageType: Enumeration of all supported operations. The wire names
//     (get, report, get-stream, gc-mark, ...) are used by the json encoding.
//
//   - Error: Errors exchanged between server and client, classified by kind.
//     Input and permission errors leave a connection usable, protocol errors
//     require the client to drop it.
//
//   - ServerConfig, ClientConfig: Configuration filled from the cli flags.
//
//   - Logger: Custom formatting for the dragonboat logger facade used by all
//     packages of the module.
package common
