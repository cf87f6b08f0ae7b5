package client

import (
	"fmt"
	"testing"

	"github.com/ValentinKolb/hashserv/rpc/common"
	"github.com/ValentinKolb/hashserv/rpc/transport/base"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBatchSizes(t *testing.T) {
	addr := startServer(t, nil)
	c := newTestClient(t, testConfig(addr))

	// Every even task is known
	for i := 0; i < 1000; i += 2 {
		mustReport(t, c, "m", fmt.Sprintf("t%d", i), fmt.Sprintf("o%d", i), fmt.Sprintf("u%d", i))
	}

	for _, n := range []int{0, 1, 1000} {
		t.Run(fmt.Sprintf("n=%d", n), func(t *testing.T) {
			queries := make([]UnihashQuery, n)
			unihashes := make([]string, n)
			for i := range queries {
				queries[i] = UnihashQuery{Method: "m", Taskhash: fmt.Sprintf("t%d", i)}
				unihashes[i] = fmt.Sprintf("u%d", i)
			}

			got, err := c.GetUnihashBatch(queries)
			require.NoError(t, err)
			require.Len(t, got, n)
			for i, unihash := range got {
				if i%2 == 0 {
					assert.Equal(t, fmt.Sprintf("u%d", i), unihash)
				} else {
					assert.Empty(t, unihash)
				}
			}

			exists, err := c.UnihashExistsBatch(unihashes)
			require.NoError(t, err)
			require.Len(t, exists, n)
			for i, ok := range exists {
				assert.Equal(t, i%2 == 0, ok, unihashes[i])
			}
		})
	}
}

func TestBatchFromProducer(t *testing.T) {
	addr := startServer(t, nil)
	c := newTestClient(t, testConfig(addr))
	mustReport(t, c, "m", "t0", "o0", "u0")

	i := 0
	got, err := c.GetUnihashesFrom(func() (UnihashQuery, bool) {
		if i == 3 {
			return UnihashQuery{}, false
		}
		i++
		return UnihashQuery{Method: "m", Taskhash: fmt.Sprintf("t%d", i-1)}, true
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"u0", "", ""}, got)
}

func TestBatchResendsPendingLines(t *testing.T) {
	const n = 10
	f := startFakeServer(t, func(f *fakeServer, conn *base.Conn, index int) {
		if !f.hello(conn, index) {
			return
		}
		req, ok := f.request(conn, index)
		if !ok || req.MsgType != common.MsgTGetStream {
			return
		}
		if !f.respond(conn, common.NewAckResponse(common.MsgTGetStream)) {
			return
		}
		if index == 0 {
			// The first connection breaks after three answers
			f.streamAnswers(conn, index, 3)
			return
		}
		f.streamAnswers(conn, index, -1)
	})

	c := newTestClient(t, testConfig(f.addr()))

	// The producer can only be consumed once
	produced := 0
	got, err := c.GetUnihashesFrom(func() (UnihashQuery, bool) {
		if produced == n {
			return UnihashQuery{}, false
		}
		produced++
		return UnihashQuery{Method: "m", Taskhash: fmt.Sprintf("t%d", produced-1)}, true
	})
	require.NoError(t, err)
	require.Len(t, got, n)
	for i, unihash := range got {
		assert.Equal(t, fmt.Sprintf("u%d", i), unihash)
	}
	assert.Equal(t, n, produced)
	assert.Equal(t, 2, f.connections())

	// The second connection got every unanswered line once, in order
	lines := f.received(1)[2:]
	require.NotEmpty(t, lines)
	for i, line := range lines {
		assert.Equal(t, fmt.Sprintf("m t%d", n-len(lines)+i), line)
	}
}

func TestBatchGivesUpAfterRetries(t *testing.T) {
	f := startFakeServer(t, func(f *fakeServer, conn *base.Conn, index int) {
		if !f.hello(conn, index) {
			return
		}
		if _, ok := f.request(conn, index); !ok {
			return
		}
		if !f.respond(conn, common.NewAckResponse(common.MsgTExistsStream)) {
			return
		}
		// Every connection breaks before the first answer
		f.recv(conn, index)
	})

	config := testConfig(f.addr())
	config.RetryCount = 2
	c := newTestClient(t, config)

	_, err := c.UnihashExistsBatch([]string{"u1", "u2"})
	require.Error(t, err)
	assert.False(t, common.IsRemoteError(err))
	assert.Equal(t, 2, f.connections())
	assert.Equal(t, ModeNormal, c.Mode())
}
