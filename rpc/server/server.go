package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"sync"
	"syscall"
	"time"

	"github.com/ValentinKolb/hashserv/lib/auth"
	"github.com/ValentinKolb/hashserv/lib/stats"
	"github.com/ValentinKolb/hashserv/lib/store"
	"github.com/ValentinKolb/hashserv/rpc/common"
	"github.com/ValentinKolb/hashserv/rpc/serializer"
	"github.com/ValentinKolb/hashserv/rpc/transport"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
)

var Logger = logger.GetLogger("server")

// NewRPCServer creates a new RPC server
// It takes a config, the factory of its store, a transport and a serializer as parameters
//
// Usage:
//
//	s := server.NewRPCServer(
//		*config,
//		sqlstore.NewFactory(config.DBPath),
//		tcp.NewTCPServerTransport(),
//		serializer.NewJSONSerializer(),
//	)
//
//	if err := s.Serve(); err != nil {
//		panic(err)
//	}
func NewRPCServer(
	config common.ServerConfig,
	storeFactory store.Factory,
	transport transport.IRPCServerTransport,
	serializer serializer.IRPCSerializer,
) *RPCServer {
	// https://github.com/golang/go/issues/17393
	if runtime.GOOS == "darwin" {
		signal.Ignore(syscall.Signal(0xd))
	}

	if config.AnonPerms == nil {
		config.AnonPerms = common.DefaultAnonPerms
	}

	s := &RPCServer{
		config:       config,
		storeFactory: storeFactory,
		transport:    transport,
		serializer:   serializer,
		stats:        stats.NewPair(),
		sessions:     xsync.NewMapOf[uint64, *session](),
		adapters:     make(map[common.MessageType]IRPCServerAdapter),
		ctx:          context.Background(),
		serveErr:     make(chan error, 1),
	}

	for _, adapter := range []IRPCServerAdapter{
		NewIStoreServerAdapter(),
		NewAdminServerAdapter(),
		NewUserServerAdapter(),
	} {
		for _, t := range adapter.Types() {
			s.adapters[t] = adapter
		}
	}

	return s
}

// RPCServer is the hash equivalence server. All requests of all transports
// are executed one after another by its dispatcher.
type RPCServer struct {
	config       common.ServerConfig
	storeFactory store.Factory
	transport    transport.IRPCServerTransport
	serializer   serializer.IRPCSerializer

	stats     *stats.Pair
	sessions  *xsync.MapOf[uint64, *session]
	adapters  map[common.MessageType]IRPCServerAdapter
	anonPerms auth.Permissions

	// set up by Start
	store         store.IStore
	dispatcher    *dispatcher
	metrics       *serverMetrics
	metricsServer *http.Server
	metricsAddr   string

	ctx          context.Context
	serveErr     chan error
	started      bool
	shutdownOnce sync.Once
	shutdownErr  error
}

// init opens the store, creates the admin user and starts the dispatcher
func (s *RPCServer) init() error {
	perms, err := auth.ParsePermissions(s.config.AnonPerms)
	if err != nil {
		return fmt.Errorf("invalid anonymous permissions: %w", err)
	}
	s.anonPerms = perms

	st, err := s.storeFactory()
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	s.store = st

	if err := s.ensureAdmin(); err != nil {
		st.Close()
		return err
	}

	s.dispatcher = newDispatcher(func(any) { s.metrics.panics.Inc() })
	s.metrics = newServerMetrics(s.dispatcher.Len, s.sessions.Size)
	s.transport.RegisterHandler(serverHandler{s: s})

	return nil
}

// ensureAdmin creates the configured admin user or resets its token and permissions
func (s *RPCServer) ensureAdmin() error {
	if s.config.AdminUser == "" {
		return nil
	}
	if s.config.AdminToken == "" {
		return errors.New("an admin user needs an admin token")
	}

	hash, err := auth.HashToken(s.config.AdminToken)
	if err != nil {
		return fmt.Errorf("failed to hash admin token: %w", err)
	}

	existing, err := s.store.GetUser(s.ctx, s.config.AdminUser)
	if err != nil {
		return fmt.Errorf("failed to read admin user: %w", err)
	}

	all := []string{string(auth.PermAll)}
	if existing == nil {
		err = s.store.NewUser(s.ctx, store.User{
			Username:    s.config.AdminUser,
			TokenHash:   hash,
			Permissions: all,
		})
	} else {
		err = s.store.SetUserPerms(s.ctx, s.config.AdminUser, all)
		if err == nil {
			err = s.store.SetUserToken(s.ctx, s.config.AdminUser, hash)
		}
	}
	if err != nil {
		return fmt.Errorf("failed to set up admin user: %w", err)
	}

	Logger.Infof("Admin user %s is ready", s.config.AdminUser)
	return nil
}

// Start initializes the server, binds the endpoints and accepts connections
// in the background. It returns once the server is reachable.
func (s *RPCServer) Start() error {
	if s.started {
		return errors.New("server already started")
	}

	Logger.Infof("Starting hash equivalence server")
	Logger.Infof("%s", s.config.String())

	if err := s.init(); err != nil {
		return err
	}

	if err := s.transport.Listen(s.config); err != nil {
		s.dispatcher.Close()
		s.store.Close()
		return err
	}

	if err := s.startMetricsServer(); err != nil {
		s.transport.Close()
		s.dispatcher.Close()
		s.store.Close()
		return err
	}

	s.started = true
	go func() {
		s.serveErr <- s.transport.Serve()
	}()

	return nil
}

// Serve starts the server and blocks until it fails or the process receives
// SIGINT or SIGTERM. By default queued requests are finished before it
// returns, with FastExit the process exits at once.
func (s *RPCServer) Serve() error {
	if err := s.Start(); err != nil {
		return err
	}

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigs)

	select {
	case sig := <-sigs:
		if s.config.FastExit {
			Logger.Warningf("Received %s, exiting without finishing %d queued requests", sig, s.dispatcher.Len())
			os.Exit(0)
		}
		Logger.Infof("Received %s, shutting down", sig)
		return s.Shutdown()

	case err := <-s.serveErr:
		shutdownErr := s.Shutdown()
		if err != nil {
			return err
		}
		return shutdownErr
	}
}

// Addr returns the address the transport is bound to
func (s *RPCServer) Addr() string {
	return s.transport.Addr()
}

// Shutdown stops accepting connections, closes the open ones, finishes all
// queued requests and closes the store. It is safe to call more than once.
func (s *RPCServer) Shutdown() error {
	s.shutdownOnce.Do(func() {
		if !s.started {
			return
		}

		var errs []error
		if err := s.transport.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close transport: %w", err))
		}

		s.dispatcher.Close()

		if s.metricsServer != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := s.metricsServer.Shutdown(ctx); err != nil {
				errs = append(errs, fmt.Errorf("failed to close metrics endpoint: %w", err))
			}
			cancel()
		}

		if err := s.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close store: %w", err))
		}

		s.shutdownErr = errors.Join(errs...)
		Logger.Infof("Server stopped")
	})
	return s.shutdownErr
}

// Stats returns the current request and connection statistics
func (s *RPCServer) Stats() stats.PairReport {
	return s.stats.Snapshot()
}

// startMetricsServer serves /metrics on the separate metrics endpoint, if one is configured
func (s *RPCServer) startMetricsServer() error {
	if s.config.MetricsEndpoint == "" {
		return nil
	}

	listener, err := net.Listen("tcp", s.config.MetricsEndpoint)
	if err != nil {
		return fmt.Errorf("failed to listen on metrics endpoint: %w", err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /metrics", func(w http.ResponseWriter, r *http.Request) {
		s.metrics.write(w)
	})
	s.metricsServer = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := s.metricsServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			Logger.Errorf("Metrics endpoint failed: %v", err)
		}
	}()

	s.metricsAddr = listener.Addr().String()
	Logger.Infof("Serving metrics on http://%s/metrics", s.metricsAddr)
	return nil
}
