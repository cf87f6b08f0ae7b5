package base

import (
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ValentinKolb/hashserv/rpc/common"
	"github.com/ValentinKolb/hashserv/rpc/transport"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
)

var Logger = logger.GetLogger("transport")

// writeTimeout bounds writing a single response frame
const writeTimeout = 30 * time.Second

// -----------------------------------------------------------
// Interface Definitions for dependency injection
// -----------------------------------------------------------

// IServerConnector defines the interface for transport-specific server operations
type IServerConnector interface {
	// Listen creates a listener and returns it
	Listen(endpoint string) (net.Listener, error)

	// GetName returns the name of the transport type (e.g., "unix", "tcp")
	GetName() string

	// UpgradeConnection applies protocol-specific settings to an accepted connection
	UpgradeConnection(conn net.Conn) error
}

// -----------------------------------------------------------
// Helper Types
// -----------------------------------------------------------

// serverTransport implements the core server transport functionality
type serverTransport struct {
	connector  IServerConnector
	handler    transport.IServerHandler
	listener   net.Listener
	bufferPool *sync.Pool

	conns      *xsync.MapOf[uint64, net.Conn]
	nextConnID atomic.Uint64
	closed     atomic.Bool
	closeMu    sync.Mutex // orders wg.Add in Serve against wg.Wait in Close
	wg         sync.WaitGroup
}

// -----------------------------------------------------------
// Transport Factory Method (used for tcp, unix, etc.)
// -----------------------------------------------------------

// NewBaseServerTransport creates a new base server transport. bufferSize is the
// initial read buffer of every connection.
func NewBaseServerTransport(connector IServerConnector, bufferSize int) transport.IRPCServerTransport {
	return &serverTransport{
		connector: connector,
		conns:     xsync.NewMapOf[uint64, net.Conn](),
		bufferPool: &sync.Pool{
			New: func() interface{} {
				return make([]byte, bufferSize)
			},
		},
	}
}

// --------------------------------------------------------------------------
// Interface Methods (docu see transport.IRPCServerTransport)
// --------------------------------------------------------------------------

func (t *serverTransport) RegisterHandler(handler transport.IServerHandler) {
	t.handler = handler
}

func (t *serverTransport) Listen(config common.ServerConfig) error {
	listener, err := t.connector.Listen(config.Endpoint)
	if err != nil {
		return fmt.Errorf("failed to create listener: %w", err)
	}
	t.listener = listener

	Logger.Infof("Listening with %s transport on %s", t.connector.GetName(), listener.Addr())
	return nil
}

func (t *serverTransport) Serve() error {
	if t.listener == nil {
		return errors.New("serve called before listen")
	}
	if t.handler == nil {
		return errors.New("no handler registered")
	}

	for {
		conn, err := t.listener.Accept()
		if err != nil {
			if t.closed.Load() {
				return nil
			}
			Logger.Errorf("Accept error: %v", err)
			time.Sleep(10 * time.Millisecond)
			continue
		}

		if err := t.connector.UpgradeConnection(conn); err != nil {
			Logger.Warningf("Failed to upgrade connection from %s: %v", conn.RemoteAddr(), err)
		}

		t.closeMu.Lock()
		if t.closed.Load() {
			t.closeMu.Unlock()
			conn.Close()
			return nil
		}
		connID := t.nextConnID.Add(1)
		t.conns.Store(connID, conn)
		t.wg.Add(1)
		t.closeMu.Unlock()

		go t.handleConnection(connID, conn)
	}
}

func (t *serverTransport) Addr() string {
	if t.listener == nil {
		return ""
	}
	return t.listener.Addr().String()
}

func (t *serverTransport) Close() error {
	t.closeMu.Lock()
	if t.closed.Swap(true) {
		t.closeMu.Unlock()
		return nil
	}
	t.closeMu.Unlock()

	var err error
	if t.listener != nil {
		err = t.listener.Close()
	}

	t.conns.Range(func(_ uint64, conn net.Conn) bool {
		conn.Close()
		return true
	})

	t.wg.Wait()
	return err
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// handleConnection reads frames of one connection and passes them to the handler.
// The handler blocks until the response is written, so a connection never has
// more than one request in flight.
func (t *serverTransport) handleConnection(connID uint64, conn net.Conn) {
	defer t.wg.Done()
	defer t.conns.Delete(connID)
	defer conn.Close()

	t.handler.OnConnect(connID, time.Now())
	defer t.handler.OnDisconnect(connID)

	buf := t.bufferPool.Get().([]byte)
	defer t.bufferPool.Put(buf)

	reply := func(data []byte) error {
		if err := conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
			return err
		}
		return WriteFrame(conn, data)
	}

	for {
		frame, err := ReadFrame(conn, buf)

		// Case EOF: Connection closed by client
		if err == io.EOF {
			Logger.Debugf("Connection %d closed by client", connID)
			return
		}

		// Case error: log and close connection
		if err != nil {
			if !t.closed.Load() {
				Logger.Warningf("Error reading from connection %d: %v", connID, err)
			}
			return
		}

		if err := t.handler.HandleFrame(connID, frame, time.Now(), reply); err != nil {
			Logger.Infof("Dropping connection %d: %v", connID, err)
			return
		}
	}
}
