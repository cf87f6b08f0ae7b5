// Package unix implements the framed transport over Unix domain sockets,
// for servers and clients on the same host. The server removes a stale socket
// file before listening.
package unix
