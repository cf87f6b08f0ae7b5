// Package tcp implements the framed transport over TCP sockets. It provides
// concrete implementations of the base package's connector interfaces.
//
// Both sides disable Nagle's algorithm and enable keep-alive.
package tcp
