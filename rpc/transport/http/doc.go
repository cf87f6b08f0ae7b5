// Package http serves the legacy json api of the hash equivalence server.
//
// Routes (the prefix is configurable):
//
//	GET    {prefix}/v1/equivalent?method=&taskhash=  lookup, the record or null
//	POST   {prefix}/v1/equivalent                    report a task result
//	GET    {prefix}/v1/stats                         server statistics
//	DELETE {prefix}/v1/stats                         reset, returns the previous statistics
//	GET    /metrics                                  prometheus metrics
//
// Every http connection is one anonymous session of the server, so these
// requests go through the same dispatcher and permission checks as the
// framed transports.
package http
