package client

import (
	"fmt"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ValentinKolb/hashserv/rpc/common"
	"github.com/ValentinKolb/hashserv/rpc/transport/base"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPool(t *testing.T, size int, factory func() (*Client, error)) *Pool {
	t.Helper()
	p := NewPool(size, factory)
	t.Cleanup(func() { p.Close() })
	return p
}

func TestPoolGetUnihashes(t *testing.T) {
	addr := startServer(t, nil)
	c := newTestClient(t, testConfig(addr))
	for i := 0; i < 100; i++ {
		mustReport(t, c, "m", fmt.Sprintf("t%d", i), fmt.Sprintf("o%d", i), fmt.Sprintf("u%d", i))
	}

	p := NewPoolFromConfig(testConfig(addr))
	t.Cleanup(func() { p.Close() })

	queries := make(map[int]UnihashQuery)
	for i := 0; i < 500; i++ {
		queries[i] = UnihashQuery{Method: "m", Taskhash: fmt.Sprintf("t%d", i)}
	}

	results := GetUnihashes(p, queries)
	require.Len(t, results, len(queries))
	for i, r := range results {
		require.NoError(t, r.Err, i)
		if i < 100 {
			assert.Equal(t, fmt.Sprintf("u%d", i), r.Value)
		} else {
			assert.Empty(t, r.Value)
		}
	}

	// Clients are reused
	again := GetUnihashes(p, map[string]UnihashQuery{"a": {Method: "m", Taskhash: "t1"}})
	assert.Equal(t, Result[string]{Value: "u1"}, again["a"])
}

func TestPoolUnihashesExist(t *testing.T) {
	addr := startServer(t, nil)
	c := newTestClient(t, testConfig(addr))
	mustReport(t, c, "m", "t1", "o1", "u1")
	mustReport(t, c, "m", "t2", "o2", "u2")

	p := NewPoolFromConfig(testConfig(addr))
	t.Cleanup(func() { p.Close() })

	results := UnihashesExist(p, map[string]string{"a": "u1", "b": "u2", "c": "u3"})
	assert.Equal(t, map[string]Result[bool]{
		"a": {Value: true},
		"b": {Value: true},
		"c": {Value: false},
	}, results)
}

func TestPoolEmpty(t *testing.T) {
	p := newTestPool(t, 4, func() (*Client, error) {
		t.Fatal("no client needed")
		return nil, nil
	})
	assert.Empty(t, GetUnihashes(p, map[int]UnihashQuery{}))
}

func TestPoolWithoutClients(t *testing.T) {
	p := newTestPool(t, 2, func() (*Client, error) {
		return nil, fmt.Errorf("no client today")
	})

	results := UnihashesExist(p, map[int]string{1: "u1", 2: "u2", 3: "u3"})
	require.Len(t, results, 3)
	for _, r := range results {
		assert.ErrorIs(t, r.Err, errNotQueried)
		assert.ErrorContains(t, r.Err, "no client today")
	}
}

func TestPoolSkipsUnreachableWorkers(t *testing.T) {
	addr := startServer(t, nil)
	c := newTestClient(t, testConfig(addr))
	mustReport(t, c, "m", "t1", "o1", "u1")

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	dead := ln.Addr().String()
	require.NoError(t, ln.Close())

	// Every other client points to a dead endpoint and fails before claiming queries
	var n atomic.Int32
	p := newTestPool(t, 4, func() (*Client, error) {
		config := testConfig(addr)
		if n.Add(1)%2 == 0 {
			config.Endpoint = dead
			config.RetryCount = 1
		}
		return NewClientFromConfig(config)
	})

	queries := make(map[int]UnihashQuery)
	for i := 0; i < 200; i++ {
		queries[i] = UnihashQuery{Method: "m", Taskhash: fmt.Sprintf("t%d", i%3)}
	}

	results := GetUnihashes(p, queries)
	require.Len(t, results, len(queries))
	for i, r := range results {
		require.NoError(t, r.Err, i)
		if i%3 == 1 {
			assert.Equal(t, "u1", r.Value)
		} else {
			assert.Empty(t, r.Value)
		}
	}
}

func TestPoolWorkerFailure(t *testing.T) {
	f := startFakeServer(t, func(f *fakeServer, conn *base.Conn, index int) {
		if !f.hello(conn, index) {
			return
		}
		if _, ok := f.request(conn, index); !ok {
			return
		}
		if !f.respond(conn, common.NewAckResponse(common.MsgTGetStream)) {
			return
		}
		// Breaks after two answers
		f.streamAnswers(conn, index, 2)
	})

	config := testConfig(f.addr())
	config.RetryCount = 1
	p := newTestPool(t, 1, func() (*Client, error) {
		return NewClientFromConfig(config)
	})

	queries := make(map[int]UnihashQuery)
	for i := 0; i < 50; i++ {
		queries[i] = UnihashQuery{Method: "m", Taskhash: fmt.Sprintf("t%d", i)}
	}

	results := GetUnihashes(p, queries)
	require.Len(t, results, len(queries))
	for i, r := range results {
		assert.Error(t, r.Err, i)
		assert.Empty(t, r.Value)
	}
}

func TestPoolFailedWorkerKeepsOthers(t *testing.T) {
	addr := startServer(t, nil)
	c := newTestClient(t, testConfig(addr))
	mustReport(t, c, "m", "t1", "o1", "u1")

	// Closes every connection right after entering the stream
	f := startFakeServer(t, func(f *fakeServer, conn *base.Conn, index int) {
		if !f.hello(conn, index) {
			return
		}
		if _, ok := f.request(conn, index); !ok {
			return
		}
		f.respond(conn, common.NewAckResponse(common.MsgTGetStream))
	})

	// The first client fails, the others start late enough to find keys left
	var n atomic.Int32
	p := newTestPool(t, 4, func() (*Client, error) {
		config := testConfig(addr)
		if n.Add(1) == 1 {
			config.Endpoint = f.addr()
			config.RetryCount = 1
		} else {
			time.Sleep(50 * time.Millisecond)
		}
		return NewClientFromConfig(config)
	})

	queries := make(map[int]UnihashQuery)
	for i := 0; i < 2000; i++ {
		queries[i] = UnihashQuery{Method: "m", Taskhash: fmt.Sprintf("t%d", i%3)}
	}

	results := GetUnihashes(p, queries)
	require.Len(t, results, len(queries))

	failed := 0
	for i, r := range results {
		if r.Err != nil {
			failed++
			assert.NotErrorIs(t, r.Err, errNotQueried, i)
			continue
		}
		if i%3 == 1 {
			assert.Equal(t, "u1", r.Value, i)
		} else {
			assert.Empty(t, r.Value, i)
		}
	}
	assert.Positive(t, failed, "the failing worker claimed at least one key")
	assert.Less(t, failed, len(queries), "the healthy workers answered the rest")
}
