package client

import (
	"fmt"

	"github.com/ValentinKolb/hashserv/rpc/common"
	"github.com/ValentinKolb/hashserv/rpc/serializer"
	"github.com/ValentinKolb/hashserv/rpc/transport/base"
)

// roundTrip sends one normal mode request and reads its response.
// It returns a remote error for error responses and a protocol error if the
// response can't be decoded or has the wrong type.
func roundTrip(conn *base.Conn, ser serializer.IRPCSerializer, req *common.Message) (*common.Message, error) {
	// Serialize the request
	reqBytes, err := ser.Serialize(*req)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize %s request: %w", req.MsgType, err)
	}

	// Send the request and wait for the response
	if err := conn.Send(reqBytes); err != nil {
		return nil, fmt.Errorf("failed to send %s request: %w", req.MsgType, err)
	}
	respBytes, err := conn.Recv()
	if err != nil {
		return nil, fmt.Errorf("failed to receive %s response: %w", req.MsgType, err)
	}

	// Deserialize the response
	resp := &common.Message{}
	if err := ser.Deserialize(respBytes, resp); err != nil {
		return nil, common.NewProtocolError("undecodable %s response: %v", req.MsgType, err)
	}

	// Check if the response is an error response
	if err := resp.AsError(); err != nil {
		return nil, err
	}

	// Check if the type of the response is the expected type
	if resp.MsgType != req.MsgType {
		return nil, common.NewProtocolError("unexpected message type %s, expected %s", resp.MsgType, req.MsgType)
	}

	return resp, nil
}

// hello performs the handshake of a new connection
func hello(conn *base.Conn) error {
	if err := conn.SendString(common.Hello()); err != nil {
		return fmt.Errorf("failed to send hello: %w", err)
	}
	reply, err := conn.RecvString()
	if err != nil {
		return fmt.Errorf("failed to receive hello reply: %w", err)
	}
	if reply != common.AckOK {
		return common.NewProtocolError("bad hello reply %q", reply)
	}
	return nil
}
