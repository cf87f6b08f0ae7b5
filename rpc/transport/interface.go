package transport

import (
	"io"
	"net"
	"time"

	"github.com/ValentinKolb/hashserv/rpc/common"
)

// --------------------------------------------------------------------------
// Server Transport
// --------------------------------------------------------------------------

// IServerHandler is implemented by the server and called by the server transports.
// Every accepted connection gets a unique connection id.
type IServerHandler interface {
	// OnConnect is called once per accepted connection before its first request
	OnConnect(connID uint64, acceptedAt time.Time)
	// OnDisconnect is called once after the connection was closed
	OnDisconnect(connID uint64)
	// HandleFrame processes one frame of a framed connection and blocks until the
	// response was written with reply. The frame is only valid during the call.
	// A returned error makes the transport drop the connection.
	HandleFrame(connID uint64, frame []byte, received time.Time, reply func([]byte) error) error
	// HandleMessage processes one already decoded request of a message based
	// transport (http) and returns the response.
	HandleMessage(connID uint64, req *common.Message, received time.Time) *common.Message
	// WriteMetrics writes the server metrics in the prometheus text format
	WriteMetrics(w io.Writer)
}

// IRPCServerTransport is the interface for the server side of a transport
type IRPCServerTransport interface {
	// RegisterHandler registers the handler called for every connection and request
	RegisterHandler(handler IServerHandler)
	// Listen binds the endpoint of the configuration. It does not accept connections yet.
	Listen(config common.ServerConfig) error
	// Serve accepts connections until Close is called. It returns nil after Close.
	Serve() error
	// Addr returns the bound address, useful when listening on port 0
	Addr() string
	// Close stops accepting, closes all open connections and waits for their goroutines
	Close() error
}

// --------------------------------------------------------------------------
// Client Transport
// --------------------------------------------------------------------------

// IClientConnector opens connections for the client
type IClientConnector interface {
	// Connect establishes a single connection to the endpoint
	Connect(endpoint string) (net.Conn, error)
	// GetName returns the name of the transport type (e.g., "unix", "tcp")
	GetName() string
}
