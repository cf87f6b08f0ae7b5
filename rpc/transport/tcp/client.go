package tcp

import (
	"net"

	"github.com/ValentinKolb/hashserv/rpc/transport"
)

// clientConnector implements the IClientConnector interface for TCP sockets
type clientConnector struct{}

// --------------------------------------------------------------------------
// Interface Methods (docu see transport.IClientConnector)
// --------------------------------------------------------------------------

func (c *clientConnector) GetName() string {
	return "tcp"
}

func (c *clientConnector) Connect(endpoint string) (net.Conn, error) {
	conn, err := net.Dial("tcp", endpoint)
	if err != nil {
		return nil, err
	}
	if err := upgrade(conn); err != nil {
		conn.Close()
		return nil, err
	}
	return conn, nil
}

// --------------------------------------------------------------------------
// Client Connector Factory Method
// --------------------------------------------------------------------------

// NewTCPClientConnector creates a new TCP client connector
func NewTCPClientConnector() transport.IClientConnector {
	return &clientConnector{}
}
