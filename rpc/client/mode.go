package client

import (
	"fmt"

	"github.com/ValentinKolb/hashserv/rpc/common"
	"github.com/ValentinKolb/hashserv/rpc/transport/base"
)

// Mode is the protocol mode of a connection
type Mode uint8

const (
	ModeNormal      Mode = iota // One structured request, one structured response
	ModeGetStream               // Every line "<method> <taskhash>" is answered with a unihash or ""
	ModeExistStream             // Every line "<unihash>" is answered with "true" or "false"
)

func (m Mode) String() string {
	switch m {
	case ModeNormal:
		return "normal"
	case ModeGetStream:
		return "get-stream"
	case ModeExistStream:
		return "exists-stream"
	default:
		return fmt.Sprintf("mode(%d)", m)
	}
}

// streamRequest returns the request entering a stream mode
func (m Mode) streamRequest() common.MessageType {
	if m == ModeExistStream {
		return common.MsgTExistsStream
	}
	return common.MsgTGetStream
}

// setMode moves the connection to mode. A stream is always left through
// normal mode, so switching between the two streams takes two transitions.
// The caller holds c.mu.
func (c *Client) setMode(conn *base.Conn, mode Mode) error {
	if c.mode == mode {
		return nil
	}

	Logger.Debugf("Transitioning mode %s -> %s", c.mode, mode)

	if c.mode != ModeNormal {
		if err := conn.SendString(common.StreamEnd); err != nil {
			return fmt.Errorf("failed to end %s: %w", c.mode, err)
		}
		reply, err := conn.RecvString()
		if err != nil {
			return fmt.Errorf("failed to end %s: %w", c.mode, err)
		}
		if reply != common.AckOK {
			return common.NewProtocolError("unable to transition to normal mode: bad response from server %q", reply)
		}
		c.mode = ModeNormal
		Logger.Debugf("Mode is now %s", c.mode)
	}

	if mode == ModeNormal {
		return nil
	}

	resp, err := roundTrip(conn, c.serializer, common.NewStreamRequest(mode.streamRequest()))
	if err != nil {
		return err
	}
	if resp.Ack != common.AckOK {
		return common.NewProtocolError("unable to transition to %s: bad response from server %q", mode, resp.Ack)
	}

	c.mode = mode
	Logger.Debugf("Mode is now %s", c.mode)
	return nil
}
