// Package client implements the client of the hash equivalence server.
//
// The package focuses on:
//   - Pipelined stream lookups that keep many queries in flight on one connection
//   - The mode state machine that moves a connection between normal mode and
//     the two stream modes
//   - Transparent reconnects that restore the mode, the identity and any
//     unanswered stream lines
//   - A pool that spreads large query sets over several connections
//
// Key Components:
//
//   - Client: A single connection. Stream operations (GetUnihashBatch,
//     UnihashExistsBatch) switch the connection into the matching stream mode,
//     structured operations (Report, GetTaskhash, GCMark, NewUser, ...) switch
//     it back to normal mode first.
//
//   - Pool: Runs GetUnihashes and UnihashesExist with one worker per client.
//     Workers claim keys lazily, every key gets a Result with either a value
//     or the error of the worker that claimed it.
//
// Usage Example:
//
//	config := common.ClientConfig{
//	  Transport:     "tcp",
//	  Endpoint:      "localhost:8686",
//	  Serializer:    "json",
//	  TimeoutSecond: 5,
//	  RetryCount:    3,
//	  PoolSize:      4,
//	}
//
//	c, _ := client.NewClientFromConfig(config)
//	defer c.Close()
//
//	rec, _ := c.Report(store.TaskRecord{Method: m, Taskhash: th, Outhash: oh, Unihash: uh})
//	unihashes, _ := c.GetUnihashBatch([]client.UnihashQuery{{Method: m, Taskhash: th}})
//
//	pool := client.NewPoolFromConfig(config)
//	defer pool.Close()
//	results := client.GetUnihashes(pool, map[string]client.UnihashQuery{"a": {Method: m, Taskhash: th}})
//
// Error Handling:
//
//	Errors returned by the server (common.Error of kind input, permission or
//	internal) leave the connection usable. Transport failures are retried
//	RetryCount times on new connections with exponential backoff. Protocol
//	errors (unexpected replies) close the connection and are returned at once.
//
// Thread Safety:
//
//	A Client is safe for concurrent use, but executes one operation at a time.
//	Use a Pool for parallel throughput.
package client
