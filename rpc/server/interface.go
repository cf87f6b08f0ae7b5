package server

import (
	"context"

	"github.com/ValentinKolb/hashserv/lib/store"
	"github.com/ValentinKolb/hashserv/rpc/common"
)

// IRPCServerAdapter handles the normal mode requests of one group of message types.
// Adapters run on the dispatcher worker only.
type IRPCServerAdapter interface {
	// Types returns the message types the adapter handles
	Types() []common.MessageType
	// Handle handles a request on behalf of a session and returns the response.
	// A returned error is converted into an error response by the caller.
	Handle(env *requestEnv, req *common.Message) (*common.Message, error)
}

// requestEnv is everything an adapter may use while handling one request
type requestEnv struct {
	ctx     context.Context
	store   store.IStore
	session *session
	server  *RPCServer
}
