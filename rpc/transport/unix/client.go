package unix

import (
	"net"

	"github.com/ValentinKolb/hashserv/rpc/transport"
)

// clientConnector implements the IClientConnector interface for Unix sockets
type clientConnector struct{}

// --------------------------------------------------------------------------
// Interface Methods (docu see transport.IClientConnector)
// --------------------------------------------------------------------------

func (c *clientConnector) GetName() string {
	return "unix"
}

func (c *clientConnector) Connect(endpoint string) (net.Conn, error) {
	return net.Dial("unix", endpoint)
}

// --------------------------------------------------------------------------
// Client Connector Factory Method
// --------------------------------------------------------------------------

// NewUnixClientConnector creates a new Unix client connector
func NewUnixClientConnector() transport.IClientConnector {
	return &clientConnector{}
}
