// Package transport defines the interfaces between the network and the rest
// of the hash equivalence service. It provides a common contract that all
// transport implementations must fulfill.
//
// Key Components:
//
//   - IRPCServerTransport: Accepts connections and hands their requests to an
//     IServerHandler. Framed transports (tcp, unix) are built on the base
//     package, the http transport serves the legacy json api.
//
//   - IServerHandler: Callbacks implemented by the server. Framed transports
//     call HandleFrame once per frame and wait for it, which keeps the
//     requests of one connection strictly ordered.
//
//   - IClientConnector: Opens a raw connection for the client, which then
//     speaks the framed protocol through base.Conn.
package transport
