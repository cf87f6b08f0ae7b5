package client

import (
	"testing"

	"github.com/ValentinKolb/hashserv/rpc/common"
	"github.com/ValentinKolb/hashserv/rpc/transport/base"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestModeString(t *testing.T) {
	assert.Equal(t, "normal", ModeNormal.String())
	assert.Equal(t, "get-stream", ModeGetStream.String())
	assert.Equal(t, "exists-stream", ModeExistStream.String())
	assert.Equal(t, "mode(7)", Mode(7).String())
}

func TestModeTransitions(t *testing.T) {
	addr := startServer(t, nil)
	c := newTestClient(t, testConfig(addr))

	assert.Equal(t, ModeNormal, c.Mode())
	mustReport(t, c, "m", "t1", "o1", "u1")

	_, err := c.GetUnihash("m", "t1")
	require.NoError(t, err)
	assert.Equal(t, ModeGetStream, c.Mode())

	// Stays in the stream
	_, err = c.GetUnihash("m", "t2")
	require.NoError(t, err)
	assert.Equal(t, ModeGetStream, c.Mode())

	ok, err := c.UnihashExists("u1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, ModeExistStream, c.Mode())

	_, err = c.GetStats()
	require.NoError(t, err)
	assert.Equal(t, ModeNormal, c.Mode())
}

// streamScript plays a server that records the frames and supports both streams
func streamScript(f *fakeServer, conn *base.Conn, index int) {
	if !f.hello(conn, index) {
		return
	}
	for {
		req, ok := f.request(conn, index)
		if !ok {
			return
		}
		switch req.MsgType {
		case common.MsgTGetStream, common.MsgTExistsStream:
			if !f.respond(conn, common.NewAckResponse(req.MsgType)) {
				return
			}
			if !f.streamAnswers(conn, index, -1) {
				return
			}
		default:
			if !f.respond(conn, &common.Message{MsgType: req.MsgType}) {
				return
			}
		}
	}
}

func TestStreamSwitchGoesThroughNormal(t *testing.T) {
	f := startFakeServer(t, streamScript)
	c := newTestClient(t, testConfig(f.addr()))

	got, err := c.GetUnihash("m", "t1")
	require.NoError(t, err)
	assert.Equal(t, "u1", got)

	_, err = c.UnihashExistsBatch([]string{"t2"})
	require.NoError(t, err)

	_, err = c.GCStatus()
	require.NoError(t, err)

	assert.Equal(t, []string{
		common.Hello(),
		`{"msg_type":"get-stream"}`,
		"m t1",
		common.StreamEnd,
		`{"msg_type":"exists-stream"}`,
		"t2",
		common.StreamEnd,
		`{"msg_type":"gc-status"}`,
	}, f.received(0))
}

func TestBadStreamAck(t *testing.T) {
	f := startFakeServer(t, func(f *fakeServer, conn *base.Conn, index int) {
		if index > 0 {
			streamScript(f, conn, index)
			return
		}
		if !f.hello(conn, index) {
			return
		}
		if _, ok := f.request(conn, index); !ok {
			return
		}
		f.respond(conn, &common.Message{MsgType: common.MsgTGetStream, Ack: "nope"})
		f.recv(conn, index)
	})
	c := newTestClient(t, testConfig(f.addr()))

	_, err := c.GetUnihash("m", "t1")
	require.Error(t, err)
	assert.True(t, common.IsProtocolError(err))
	assert.Equal(t, ModeNormal, c.Mode())
	assert.Equal(t, 1, f.connections(), "protocol errors are not retried")

	// The next operation starts over on a new connection
	got, err := c.GetUnihash("m", "t7")
	require.NoError(t, err)
	assert.Equal(t, "u7", got)
	assert.Equal(t, 2, f.connections())
}

func TestBadEndReply(t *testing.T) {
	f := startFakeServer(t, func(f *fakeServer, conn *base.Conn, index int) {
		if index > 0 {
			streamScript(f, conn, index)
			return
		}
		if !f.hello(conn, index) {
			return
		}
		if _, ok := f.request(conn, index); !ok {
			return
		}
		if !f.respond(conn, common.NewAckResponse(common.MsgTGetStream)) {
			return
		}
		line, ok := f.recv(conn, index)
		if !ok {
			return
		}
		conn.SendString(answerFor(line))
		// END is answered with garbage
		if _, ok := f.recv(conn, index); ok {
			conn.SendString("what")
		}
		f.recv(conn, index)
	})
	c := newTestClient(t, testConfig(f.addr()))

	_, err := c.GetUnihash("m", "t1")
	require.NoError(t, err)

	_, err = c.GCStatus()
	require.Error(t, err)
	assert.True(t, common.IsProtocolError(err))
	assert.Equal(t, ModeNormal, c.Mode())

	_, err = c.GCStatus()
	require.NoError(t, err)
	assert.Equal(t, 2, f.connections())
}

func TestRejectedStreamKeepsNormalMode(t *testing.T) {
	addr := startServer(t, func(config *common.ServerConfig) {
		config.AnonPerms = []string{"@report"}
	})
	c := newTestClient(t, testConfig(addr))

	_, err := c.GetUnihash("m", "t1")
	require.Error(t, err)
	assert.Equal(t, common.ErrKindPermission, common.KindOf(err))
	assert.Equal(t, ModeNormal, c.Mode())

	// The connection is still usable
	mustReport(t, c, "m", "t1", "o1", "u1")
}
