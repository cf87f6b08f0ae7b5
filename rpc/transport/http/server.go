package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ValentinKolb/hashserv/lib/store"
	"github.com/ValentinKolb/hashserv/rpc/common"
	"github.com/ValentinKolb/hashserv/rpc/transport"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
)

var Logger = logger.GetLogger("transport")

// NewHttpServerTransport creates the transport serving the legacy json api
func NewHttpServerTransport() transport.IRPCServerTransport {
	return &httpServerTransport{
		connIDs: xsync.NewMapOf[string, uint64](),
	}
}

type httpServerTransport struct {
	handler  transport.IServerHandler
	config   common.ServerConfig
	listener net.Listener
	server   *http.Server

	// http keep-alive connections (by remote address) map to server sessions
	connIDs    *xsync.MapOf[string, uint64]
	nextConnID atomic.Uint64
	closeOnce  sync.Once
}

// --------------------------------------------------------------------------
// Interface Methods (docu see transport.IRPCServerTransport)
// --------------------------------------------------------------------------

func (t *httpServerTransport) RegisterHandler(handler transport.IServerHandler) {
	t.handler = handler
}

func (t *httpServerTransport) Listen(config common.ServerConfig) error {
	t.config = config

	listener, err := net.Listen("tcp", config.Endpoint)
	if err != nil {
		return fmt.Errorf("failed to create listener: %w", err)
	}
	t.listener = listener

	t.server = &http.Server{
		Handler:           t.routes(),
		ReadHeaderTimeout: 10 * time.Second,
		ConnState:         t.trackConn,
		ConnContext: func(ctx context.Context, c net.Conn) context.Context {
			return context.WithValue(ctx, connKey{}, c.RemoteAddr().String())
		},
	}

	Logger.Infof("Listening with http transport on %s (prefix %q)", listener.Addr(), t.prefix())
	return nil
}

func (t *httpServerTransport) Serve() error {
	if t.server == nil {
		return errors.New("serve called before listen")
	}
	if t.handler == nil {
		return errors.New("no handler registered")
	}

	err := t.server.Serve(t.listener)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (t *httpServerTransport) Addr() string {
	if t.listener == nil {
		return ""
	}
	return t.listener.Addr().String()
}

func (t *httpServerTransport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		if t.server == nil {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err = t.server.Shutdown(ctx); err != nil {
			err = t.server.Close()
		}
	})
	return err
}

// --------------------------------------------------------------------------
// Routes
// --------------------------------------------------------------------------

// prefix returns the configured prefix without a trailing slash
func (t *httpServerTransport) prefix() string {
	return strings.TrimRight(t.config.HTTPPrefix, "/")
}

func (t *httpServerTransport) routes() http.Handler {
	mux := http.NewServeMux()
	p := t.prefix()

	mux.HandleFunc("GET "+p+"/v1/equivalent", t.handleGetEquivalent)
	mux.HandleFunc("POST "+p+"/v1/equivalent", t.handlePostEquivalent)
	mux.HandleFunc("GET "+p+"/v1/stats", t.handleGetStats)
	mux.HandleFunc("DELETE "+p+"/v1/stats", t.handleResetStats)
	mux.HandleFunc("GET /metrics", func(w http.ResponseWriter, r *http.Request) {
		t.handler.WriteMetrics(w)
	})

	if t.config.LogLevel == "debug" {
		return loggerMiddleware(mux)
	}
	return mux
}

func (t *httpServerTransport) handleGetEquivalent(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	method, taskhash := q.Get("method"), q.Get("taskhash")
	if method == "" || taskhash == "" {
		http.Error(w, "method and taskhash are required", http.StatusBadRequest)
		return
	}

	resp := t.dispatch(r, common.NewGetRequest(method, taskhash, false))
	if writeError(w, resp) {
		return
	}
	writeJSON(w, resp.Record)
}

func (t *httpServerTransport) handlePostEquivalent(w http.ResponseWriter, r *http.Request) {
	var rec store.TaskRecord
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	if err := dec.Decode(&rec); err != nil {
		http.Error(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
		return
	}
	rec.ID = 0
	rec.Created = time.Time{}

	resp := t.dispatch(r, common.NewReportRequest(rec))
	if writeError(w, resp) {
		return
	}
	writeJSON(w, resp.Record)
}

func (t *httpServerTransport) handleGetStats(w http.ResponseWriter, r *http.Request) {
	resp := t.dispatch(r, &common.Message{MsgType: common.MsgTGetStats})
	if writeError(w, resp) {
		return
	}
	writeJSON(w, resp.Stats)
}

// handleResetStats answers with the statistics as they were before the reset
func (t *httpServerTransport) handleResetStats(w http.ResponseWriter, r *http.Request) {
	resp := t.dispatch(r, &common.Message{MsgType: common.MsgTResetStats})
	if writeError(w, resp) {
		return
	}
	writeJSON(w, resp.Stats)
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

type connKey struct{}

// trackConn assigns every http connection a session on the handler
func (t *httpServerTransport) trackConn(conn net.Conn, state http.ConnState) {
	switch state {
	case http.StateNew:
		id := t.nextConnID.Add(1)
		t.connIDs.Store(conn.RemoteAddr().String(), id)
		t.handler.OnConnect(id, time.Now())
	case http.StateClosed, http.StateHijacked:
		if id, ok := t.connIDs.LoadAndDelete(conn.RemoteAddr().String()); ok {
			t.handler.OnDisconnect(id)
		}
	}
}

// dispatch passes a request to the handler on the session of its connection
func (t *httpServerTransport) dispatch(r *http.Request, req *common.Message) *common.Message {
	received := time.Now()

	var connID uint64
	if addr, ok := r.Context().Value(connKey{}).(string); ok {
		connID, _ = t.connIDs.Load(addr)
	}

	return t.handler.HandleMessage(connID, req, received)
}

// writeError writes an error response and reports whether resp was one
func writeError(w http.ResponseWriter, resp *common.Message) bool {
	err := resp.AsError()
	if err == nil {
		return false
	}

	status := http.StatusInternalServerError
	switch common.KindOf(err) {
	case common.ErrKindInput:
		status = http.StatusBadRequest
	case common.ErrKindPermission:
		status = http.StatusForbidden
	}
	http.Error(w, resp.Err, status)
	return true
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		Logger.Warningf("Failed to write response: %v", err)
	}
}

// --------------------------------------------------------------------------
// Middleware (logging)
// --------------------------------------------------------------------------

// responseWriter is a custom ResponseWriter that captures status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

// WriteHeader captures the status code before writing it
func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// loggerMiddleware is a middleware that logs HTTP requests
func loggerMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		rw := &responseWriter{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		next.ServeHTTP(rw, r)

		Logger.Debugf("%s %s => %d took %s", r.Method, r.URL.Path, rw.statusCode, time.Since(start))
	})
}
