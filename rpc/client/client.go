package client

import (
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/ValentinKolb/hashserv/rpc/common"
	"github.com/ValentinKolb/hashserv/rpc/serializer"
	"github.com/ValentinKolb/hashserv/rpc/transport"
	"github.com/ValentinKolb/hashserv/rpc/transport/base"
	"github.com/ValentinKolb/hashserv/rpc/transport/tcp"
	"github.com/ValentinKolb/hashserv/rpc/transport/unix"
	"github.com/lni/dragonboat/v4/logger"
)

var Logger = logger.GetLogger("client")

// ErrClosed is returned by every operation of a closed client
var ErrClosed = errors.New("client is closed")

// NewClient creates a client for the server at config.Endpoint.
// The connection is opened lazily by the first operation.
//
// Usage:
//
//	c := client.NewClient(
//		config,
//		tcp.NewTCPClientConnector(),
//		serializer.NewJSONSerializer(),
//	)
//	defer c.Close()
//
//	unihash, err := c.GetUnihash("do_compile", taskhash)
func NewClient(
	config common.ClientConfig,
	connector transport.IClientConnector,
	serializer serializer.IRPCSerializer,
) *Client {
	return &Client{
		config:     config,
		connector:  connector,
		serializer: serializer,
		username:   config.Username,
		token:      config.Token,
		become:     config.Become,
	}
}

// NewClientFromConfig creates a client with the connector and serializer named in the config
func NewClientFromConfig(config common.ClientConfig) (*Client, error) {
	connector, err := ConnectorByName(config.Transport)
	if err != nil {
		return nil, err
	}
	ser, err := serializer.ByName(config.Serializer)
	if err != nil {
		return nil, err
	}
	return NewClient(config, connector, ser), nil
}

// ConnectorByName returns the client connector of a framed transport
func ConnectorByName(name string) (transport.IClientConnector, error) {
	switch strings.ToLower(name) {
	case "tcp", "":
		return tcp.NewTCPClientConnector(), nil
	case "unix":
		return unix.NewUnixClientConnector(), nil
	default:
		return nil, fmt.Errorf("unsupported client transport %q, must be tcp or unix", name)
	}
}

// Client is a connection to a hash equivalence server.
// It is safe for concurrent use, operations are executed one at a time.
type Client struct {
	config     common.ClientConfig
	connector  transport.IClientConnector
	serializer serializer.IRPCSerializer

	mu     sync.Mutex
	conn   *base.Conn
	mode   Mode
	closed bool

	// Identity, restored on every new connection
	username string
	token    string
	become   string
}

// Close closes the connection. The client can't be used afterwards.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closed = true
	return c.closeConn()
}

// Mode returns the protocol mode of the current connection
func (c *Client) Mode() Mode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode
}

// Identity returns the user the client authenticates as and the user it impersonates
func (c *Client) Identity() (username, become string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.username, c.become
}

// --------------------------------------------------------------------------
// Connection handling (callers hold c.mu)
// --------------------------------------------------------------------------

func (c *Client) timeout() time.Duration {
	return time.Duration(c.config.TimeoutSecond) * time.Second
}

// connect opens a connection, performs the hello and restores the identity
func (c *Client) connect() error {
	conn, err := base.Dial(c.connector, c.config.Endpoint, c.timeout())
	if err != nil {
		return err
	}

	if err := c.setupConnection(conn); err != nil {
		conn.Close()
		return err
	}

	c.conn = conn
	c.mode = ModeNormal
	Logger.Debugf("Connected to %s", c.config.Endpoint)
	return nil
}

func (c *Client) setupConnection(conn *base.Conn) error {
	if err := hello(conn); err != nil {
		return err
	}

	if c.username != "" {
		if _, err := roundTrip(conn, c.serializer, common.NewAuthRequest(c.username, c.token)); err != nil {
			return fmt.Errorf("failed to authenticate as %s: %w", c.username, err)
		}
	}
	if c.become != "" {
		if _, err := roundTrip(conn, c.serializer, common.NewUserRequest(common.MsgTBecomeUser, c.become, nil)); err != nil {
			return fmt.Errorf("failed to become %s: %w", c.become, err)
		}
	}
	return nil
}

func (c *Client) closeConn() error {
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	c.mode = ModeNormal
	return err
}

// withConnection runs fn on a connected connection. Transport failures close
// the connection and fn is retried on a new one with exponential backoff.
// Remote errors leave the connection open and are returned at once, protocol
// errors close it and are returned at once.
func (c *Client) withConnection(fn func(conn *base.Conn) error) error {
	if c.closed {
		return ErrClosed
	}

	// We always try at least once
	attempts := max(1, c.config.RetryCount)

	// Initial backoff duration in milliseconds
	backoffMs := 50

	var lastErr error
	for i := 0; i < attempts; i++ {
		err := c.attempt(fn)
		if err == nil {
			return nil
		}
		if common.IsRemoteError(err) {
			return err
		}
		c.closeConn()
		if common.IsProtocolError(err) {
			return err
		}

		lastErr = err
		Logger.Debugf("Attempt %d/%d failed: %v", i+1, attempts, err)

		if i < attempts-1 {
			// Exponential backoff with a small random jitter (+-10%)
			jitter := float64(backoffMs) * (0.9 + 0.2*rand.Float64())
			time.Sleep(time.Duration(jitter) * time.Millisecond)
			backoffMs *= 2
		}
	}

	return fmt.Errorf("request failed after %d attempts: %w", attempts, lastErr)
}

func (c *Client) attempt(fn func(conn *base.Conn) error) error {
	if c.conn == nil {
		if err := c.connect(); err != nil {
			return err
		}
	}
	return fn(c.conn)
}

// invoke sends a structured request in normal mode
func (c *Client) invoke(req *common.Message) (*common.Message, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var resp *common.Message
	err := c.withConnection(func(conn *base.Conn) error {
		if err := c.setMode(conn, ModeNormal); err != nil {
			return err
		}
		var err error
		resp, err = roundTrip(conn, c.serializer, req)
		return err
	})
	return resp, err
}
