package base

import (
	"io"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ValentinKolb/hashserv/rpc/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// tcpConnector is a minimal connector for tests of the base package
type tcpConnector struct{}

func (tcpConnector) Listen(endpoint string) (net.Listener, error) { return net.Listen("tcp", endpoint) }
func (tcpConnector) GetName() string                              { return "tcp" }
func (tcpConnector) UpgradeConnection(net.Conn) error             { return nil }
func (tcpConnector) Connect(endpoint string) (net.Conn, error)    { return net.Dial("tcp", endpoint) }

// upperHandler answers every frame with its upper case version and drops
// connections that send "quit"
type upperHandler struct {
	mu           sync.Mutex
	connected    map[uint64]bool
	disconnected chan uint64
}

func newUpperHandler() *upperHandler {
	return &upperHandler{connected: map[uint64]bool{}, disconnected: make(chan uint64, 16)}
}

func (h *upperHandler) OnConnect(connID uint64, _ time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.connected[connID] = true
}

func (h *upperHandler) OnDisconnect(connID uint64) {
	h.disconnected <- connID
}

func (h *upperHandler) HandleFrame(_ uint64, frame []byte, _ time.Time, reply func([]byte) error) error {
	if string(frame) == "quit" {
		return io.EOF
	}
	return reply([]byte(strings.ToUpper(string(frame))))
}

func (h *upperHandler) HandleMessage(uint64, *common.Message, time.Time) *common.Message { return nil }
func (h *upperHandler) WriteMetrics(io.Writer)                                          {}

func startServer(t *testing.T, h *upperHandler) (*serverTransport, string) {
	t.Helper()
	srv := NewBaseServerTransport(tcpConnector{}, 16).(*serverTransport)
	srv.RegisterHandler(h)
	require.NoError(t, srv.Listen(common.ServerConfig{Endpoint: "127.0.0.1:0"}))

	done := make(chan error, 1)
	go func() { done <- srv.Serve() }()
	t.Cleanup(func() {
		_ = srv.Close()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Error("Serve did not return after Close")
		}
	})
	return srv, srv.Addr()
}

func TestServerEcho(t *testing.T) {
	h := newUpperHandler()
	_, addr := startServer(t, h)

	conn, err := Dial(tcpConnector{}, addr, 5*time.Second)
	require.NoError(t, err)
	defer conn.Close()

	for _, msg := range []string{"a", "hello", strings.Repeat("x", 1000)} {
		require.NoError(t, conn.SendString(msg))
		got, err := conn.RecvString()
		require.NoError(t, err)
		assert.Equal(t, strings.ToUpper(msg), got)
	}
}

func TestServerDropsConnectionOnHandlerError(t *testing.T) {
	h := newUpperHandler()
	_, addr := startServer(t, h)

	conn, err := Dial(tcpConnector{}, addr, 5*time.Second)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.SendString("quit"))
	_, err = conn.Recv()
	assert.Error(t, err)

	select {
	case <-h.disconnected:
	case <-time.After(5 * time.Second):
		t.Fatal("OnDisconnect was not called")
	}
}

func TestServerCloseDropsOpenConnections(t *testing.T) {
	h := newUpperHandler()
	srv, addr := startServer(t, h)

	conn, err := Dial(tcpConnector{}, addr, 5*time.Second)
	require.NoError(t, err)
	defer conn.Close()

	// make sure the connection is registered
	require.NoError(t, conn.SendString("ping"))
	_, err = conn.Recv()
	require.NoError(t, err)

	require.NoError(t, srv.Close())

	_, err = conn.Recv()
	assert.Error(t, err)
	assert.Zero(t, srv.conns.Size())
}
