package server

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/ValentinKolb/hashserv/lib/auth"
	"github.com/ValentinKolb/hashserv/lib/store"
	"github.com/ValentinKolb/hashserv/rpc/common"
)

// requiredPerms maps every message type to the permission a session needs.
// Types missing here only need the checks of their adapter.
var requiredPerms = map[common.MessageType]auth.Permission{
	common.MsgTGet:               auth.PermRead,
	common.MsgTGetOuthash:        auth.PermRead,
	common.MsgTGetStream:         auth.PermRead,
	common.MsgTExistsStream:      auth.PermRead,
	common.MsgTGetStats:          auth.PermRead,
	common.MsgTReport:            auth.PermReport,
	common.MsgTResetStats:        auth.PermDBAdmin,
	common.MsgTRemove:            auth.PermDBAdmin,
	common.MsgTGCMark:            auth.PermDBAdmin,
	common.MsgTGCSweep:           auth.PermDBAdmin,
	common.MsgTGCStatus:          auth.PermDBAdmin,
	common.MsgTGetDBUsage:        auth.PermDBAdmin,
	common.MsgTGetDBQueryColumns: auth.PermDBAdmin,
	common.MsgTBecomeUser:        auth.PermUserAdmin,
	common.MsgTNewUser:           auth.PermUserAdmin,
	common.MsgTGetAllUsers:       auth.PermUserAdmin,
	common.MsgTSetUserPerms:      auth.PermUserAdmin,
	common.MsgTDeleteUser:        auth.PermUserAdmin,
}

// writeTypes are rejected by a read-only server. Report is answered without a write.
var writeTypes = map[common.MessageType]bool{
	common.MsgTRemove:       true,
	common.MsgTGCMark:       true,
	common.MsgTGCSweep:      true,
	common.MsgTRefreshToken: true,
	common.MsgTNewUser:      true,
	common.MsgTSetUserPerms: true,
	common.MsgTDeleteUser:   true,
}

// serverHandler connects the transports to the server (implements transport.IServerHandler)
type serverHandler struct {
	s *RPCServer
}

func (h serverHandler) OnConnect(connID uint64, acceptedAt time.Time) {
	h.s.sessions.Store(connID, newSession(connID, acceptedAt))
	Logger.Debugf("Connection %d opened", connID)
}

func (h serverHandler) OnDisconnect(connID uint64) {
	h.s.sessions.Delete(connID)
	Logger.Debugf("Connection %d closed", connID)
}

func (h serverHandler) WriteMetrics(w io.Writer) {
	h.s.metrics.write(w)
}

func (h serverHandler) HandleFrame(connID uint64, frame []byte, received time.Time, reply func([]byte) error) error {
	sess, ok := h.s.sessions.Load(connID)
	if !ok {
		return fmt.Errorf("unknown connection %d", connID)
	}

	err := h.s.dispatcher.Do(
		func() error {
			resp, err := h.s.processFrame(sess, frame, received)
			if err != nil {
				return err
			}
			return reply(resp)
		},
		func() error {
			h.s.metrics.error(common.ErrKindInternal)
			return reply(h.s.fallbackFrame(sess))
		},
	)
	if err != nil {
		return err
	}

	h.s.recordRequest(received)
	return nil
}

func (h serverHandler) HandleMessage(connID uint64, req *common.Message, received time.Time) *common.Message {
	sess, ok := h.s.sessions.Load(connID)
	if !ok {
		sess = newSession(connID, received)
	}

	var resp *common.Message
	err := h.s.dispatcher.Do(
		func() error {
			h.s.recordConnection(sess, received)
			resp = h.s.handle(sess, req)
			return nil
		},
		func() error {
			h.s.metrics.error(common.ErrKindInternal)
			resp = common.NewErrorResponse(common.NewInternalError())
			return nil
		},
	)
	if err != nil {
		return common.NewErrorResponse(common.NewInternalError())
	}

	h.s.recordRequest(received)
	return resp
}

// --------------------------------------------------------------------------
// Request processing (dispatcher worker only)
// --------------------------------------------------------------------------

// processFrame handles one frame of a framed connection and returns the
// response frame. An error closes the connection.
func (s *RPCServer) processFrame(sess *session, frame []byte, received time.Time) ([]byte, error) {
	s.recordConnection(sess, received)

	if !sess.greeted {
		if err := checkHello(string(frame)); err != nil {
			s.metrics.error(common.ErrKindProtocol)
			return nil, err
		}
		sess.greeted = true
		sess.framed = true
		return []byte(common.AckOK), nil
	}

	if sess.mode != modeNormal {
		answer, err := s.handleStreamLine(sess, string(frame))
		if err != nil {
			return nil, err
		}
		return []byte(answer), nil
	}

	var req common.Message
	if err := s.serializer.Deserialize(frame, &req); err != nil {
		Logger.Debugf("Failed to deserialize request on connection %d: %v", sess.connID, err)
		return s.encode(common.NewErrorResponse(common.NewInputError("failed to deserialize request: %v", err))), nil
	}

	return s.encode(s.handle(sess, &req)), nil
}

// checkHello validates the first line of a connection
func checkHello(line string) error {
	name, version, ok := strings.Cut(line, " ")
	if !ok || name != common.ProtocolName {
		return fmt.Errorf("bad hello %q", line)
	}
	if version != common.ProtocolVersion {
		return fmt.Errorf("unsupported protocol version %q", version)
	}
	return nil
}

// handleStreamLine answers one line of a stream. Malformed lines are answered
// like misses so that every line gets exactly one reply. A failing store
// closes the connection, a miss would claim the task was never seen.
func (s *RPCServer) handleStreamLine(sess *session, line string) (string, error) {
	if line == common.StreamEnd {
		Logger.Debugf("Connection %d left %s", sess.connID, sess.mode)
		sess.mode = modeNormal
		return common.AckOK, nil
	}

	switch sess.mode {
	case modeGetStream:
		method, taskhash, ok := strings.Cut(line, " ")
		if !ok || method == "" || taskhash == "" {
			s.metrics.error(common.ErrKindInput)
			return "", nil
		}
		rec, err := s.store.Lookup(s.ctx, method, taskhash)
		if err != nil {
			s.metrics.error(common.ErrKindInput)
			Logger.Errorf("Stream lookup of %s %s failed: %v", method, taskhash, err)
			return "", fmt.Errorf("stream lookup failed: %w", err)
		}
		s.metrics.streamQuery(modeGetStream, rec != nil)
		if rec == nil {
			return "", nil
		}
		return rec.Unihash, nil

	case modeExistsStream:
		exists, err := s.store.UnihashExists(s.ctx, line)
		if err != nil {
			s.metrics.error(common.ErrKindInput)
			Logger.Errorf("Stream exists check of %s failed: %v", line, err)
			return "", fmt.Errorf("stream exists check failed: %w", err)
		}
		s.metrics.streamQuery(modeExistsStream, exists)
		if exists {
			return common.ExistsTrue, nil
		}
		return common.ExistsFalse, nil
	}
	return "", nil
}

// handle routes a normal mode request to its adapter
func (s *RPCServer) handle(sess *session, req *common.Message) *common.Message {
	s.metrics.request(req.MsgType)

	adapter, ok := s.adapters[req.MsgType]
	if !ok {
		return s.errorResponse(common.NewInputError("unsupported message type: %s", req.MsgType))
	}

	if perm, ok := requiredPerms[req.MsgType]; ok && !sess.permissions(s.anonPerms).Has(perm) {
		Logger.Debugf("%s lacks %s for %s", describe(sess), perm, req.MsgType)
		return s.errorResponse(common.NewPermissionError("%s requires %s", req.MsgType, perm))
	}
	if s.config.ReadOnly && writeTypes[req.MsgType] {
		return s.errorResponse(common.NewPermissionError("%s is not allowed on a read-only server", req.MsgType))
	}

	resp, err := adapter.Handle(&requestEnv{
		ctx:     s.ctx,
		store:   s.store,
		session: sess,
		server:  s,
	}, req)
	if err != nil {
		return s.errorResponse(err)
	}
	return resp
}

// errorResponse converts an error into an error response. Store errors,
// I/O faults included, are input errors. Everything else is reported
// without details.
func (s *RPCServer) errorResponse(err error) *common.Message {
	var rpcErr *common.Error
	var storeErr *store.Error

	switch {
	case errors.As(err, &rpcErr):
	case errors.As(err, &storeErr):
		if storeErr.Code == store.RetCInternalError {
			Logger.Errorf("Store failed: %v", err)
		} else {
			Logger.Warningf("Store rejected request: %v", err)
		}
		rpcErr = common.NewInputError("%s", storeErr.Msg)
	default:
		Logger.Errorf("Request failed: %v", err)
		rpcErr = common.NewInternalError()
	}

	s.metrics.error(rpcErr.Kind)
	return common.NewErrorResponse(rpcErr)
}

// encode serializes a response, falling back to an internal error
func (s *RPCServer) encode(resp *common.Message) []byte {
	data, err := s.serializer.Serialize(*resp)
	if err == nil {
		return data
	}
	Logger.Errorf("Failed to serialize %s response: %v", resp.MsgType, err)
	data, err = s.serializer.Serialize(*common.NewErrorResponse(common.NewInternalError()))
	if err != nil {
		Logger.Errorf("Failed to serialize error response: %v", err)
	}
	return data
}

// fallbackFrame is the response to a request whose handling panicked
func (s *RPCServer) fallbackFrame(sess *session) []byte {
	switch sess.mode {
	case modeGetStream:
		return []byte("")
	case modeExistsStream:
		return []byte(common.ExistsFalse)
	}
	if !sess.greeted {
		return []byte(common.InternalErrorMsg)
	}
	return s.encode(common.NewErrorResponse(common.NewInternalError()))
}

// --------------------------------------------------------------------------
// Statistics
// --------------------------------------------------------------------------

// recordConnection records the setup time of a connection on its first request
func (s *RPCServer) recordConnection(sess *session, received time.Time) {
	if sess.counted {
		return
	}
	sess.counted = true
	s.stats.Connections.Add(received.Sub(sess.acceptedAt))
}

// recordRequest records a request once its response was written
func (s *RPCServer) recordRequest(received time.Time) {
	s.stats.Requests.Add(time.Since(received))
	s.metrics.observe(received)
}
