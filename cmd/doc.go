// Package cmd implements the command-line interface of hashserv. It provides
// a hierarchical command structure with operations for running the server
// and interacting with it as a client.
//
// The package is organized into several subpackages:
//
//   - serve: Starts and configures the server
//   - equiv: Equivalence queries, reports, statistics, database administration and the perf tool (hashserv client ...)
//   - user: User management (hashserv user ...)
//   - util: Shared utilities for command-line processing and configuration (internal use)
//
// Every flag can also be set as HASHSERV_<FLAG> environment variable or in
// a .env / .env.local file. See hashserv -help for a list of all commands.
package cmd
