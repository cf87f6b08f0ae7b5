package base

import (
	"bufio"
	"fmt"
	"net"
	"time"

	"github.com/ValentinKolb/hashserv/rpc/transport"
)

// Conn is a client side framed connection. It is not safe for concurrent use,
// except that one goroutine may Send while another one Receives.
type Conn struct {
	conn    net.Conn
	r       *bufio.Reader
	timeout time.Duration
}

// Dial opens a framed connection using the connector. A timeout of zero disables deadlines.
func Dial(connector transport.IClientConnector, endpoint string, timeout time.Duration) (*Conn, error) {
	conn, err := connector.Connect(endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s via %s: %w", endpoint, connector.GetName(), err)
	}
	return NewConn(conn, timeout), nil
}

// NewConn wraps an established connection
func NewConn(conn net.Conn, timeout time.Duration) *Conn {
	return &Conn{
		conn:    conn,
		r:       bufio.NewReaderSize(conn, 64*1024),
		timeout: timeout,
	}
}

// Send writes one frame
func (c *Conn) Send(data []byte) error {
	if c.timeout > 0 {
		if err := c.conn.SetWriteDeadline(time.Now().Add(c.timeout)); err != nil {
			return err
		}
	}
	return WriteFrame(c.conn, data)
}

// SendString writes one frame holding s
func (c *Conn) SendString(s string) error {
	return c.Send([]byte(s))
}

// Recv reads one frame. The returned slice is owned by the caller.
func (c *Conn) Recv() ([]byte, error) {
	if c.timeout > 0 {
		if err := c.conn.SetReadDeadline(time.Now().Add(c.timeout)); err != nil {
			return nil, err
		}
	}
	return ReadFrame(c.r, nil)
}

// RecvString reads one frame as string
func (c *Conn) RecvString() (string, error) {
	data, err := c.Recv()
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Close closes the underlying connection. A blocked Send or Recv returns an error.
func (c *Conn) Close() error {
	return c.conn.Close()
}

// RemoteAddr returns the address of the server
func (c *Conn) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}
