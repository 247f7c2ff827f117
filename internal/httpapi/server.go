// Package httpapi implements the JSON/HTTP control plane described in
// spec.md §6: task and template CRUD, manual runs, batch actions, and
// a server-local filesystem browse endpoint.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/jholhewres/opstaskd/internal/account"
	"github.com/jholhewres/opstaskd/internal/engine"
	"github.com/jholhewres/opstaskd/internal/taskstore"
)

// Config controls transport binding and the optional basic-auth guard.
type Config struct {
	// Addr is a TCP listen address. Mutually exclusive with
	// UnixSocket.
	Addr string
	// UnixSocket is a filesystem path for a Unix domain socket.
	// Mutually exclusive with Addr. Any pre-existing file at this
	// path is unlinked before binding.
	UnixSocket string
	// BasePath is stripped from incoming request paths before
	// routing.
	BasePath string
	// EnableIPv6 clears IPV6_V6ONLY on an IPv6 TCP listener so it
	// also accepts IPv4 connections.
	EnableIPv6 bool
	// FSAuthHash, when non-empty, is a bcrypt hash guarding the
	// /api/fs/* endpoints with HTTP basic auth.
	FSAuthHash string
}

// Server is the control-plane HTTP server.
type Server struct {
	store     *taskstore.Store
	validator *taskstore.Validator
	accounts  account.Directory
	engine    *engine.Engine
	logger    *slog.Logger
	cfg       Config

	httpServer *http.Server
	listener   net.Listener
}

// New constructs a Server. logger must not be nil.
func New(store *taskstore.Store, validator *taskstore.Validator, accounts account.Directory, eng *engine.Engine, logger *slog.Logger, cfg Config) *Server {
	return &Server{
		store:     store,
		validator: validator,
		accounts:  accounts,
		engine:    eng,
		logger:    logger,
		cfg:       cfg,
	}
}

// Start builds the route table, binds the configured transport, and
// begins serving in a background goroutine.
func (s *Server) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	s.registerRoutes(mux)

	handler := s.withMiddleware(mux)
	if s.cfg.BasePath != "" {
		handler = stripBasePath(s.cfg.BasePath, handler)
	}

	s.httpServer = &http.Server{
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // unbounded: task runs can legitimately outlive 15s
		IdleTimeout:  120 * time.Second,
	}

	listener, err := s.bind()
	if err != nil {
		return fmt.Errorf("binding control-plane listener: %w", err)
	}
	s.listener = listener

	go func() {
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("http server stopped unexpectedly", "error", err)
		}
	}()

	s.logger.Info("control plane listening", "addr", listener.Addr().String())
	return nil
}

// Stop gracefully shuts the server down within a bounded context.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(shutdownCtx)
}

func (s *Server) bind() (net.Listener, error) {
	if s.cfg.UnixSocket != "" && s.cfg.Addr != "" {
		return nil, fmt.Errorf("addr and unix_socket are mutually exclusive")
	}

	if s.cfg.UnixSocket != "" {
		if _, err := os.Stat(s.cfg.UnixSocket); err == nil {
			if err := os.Remove(s.cfg.UnixSocket); err != nil {
				return nil, fmt.Errorf("removing stale unix socket: %w", err)
			}
		}
		return net.Listen("unix", s.cfg.UnixSocket)
	}

	addr := s.cfg.Addr
	if addr == "" {
		addr = "127.0.0.1:8090"
	}

	lc := net.ListenConfig{}
	if s.cfg.EnableIPv6 {
		lc.Control = func(network, address string, c syscall.RawConn) error {
			return clearIPv6Only(network, c)
		}
	}
	return lc.Listen(context.Background(), "tcp", addr)
}

func stripBasePath(basePath string, next http.Handler) http.Handler {
	basePath = "/" + strings.Trim(basePath, "/")
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, basePath) {
			r.URL.Path = strings.TrimPrefix(r.URL.Path, basePath)
			if r.URL.Path == "" {
				r.URL.Path = "/"
			}
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) withMiddleware(next http.Handler) http.Handler {
	return corsMiddleware(requestIDMiddleware(next))
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type requestIDKey struct{}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := uuid.New().String()
		w.Header().Set("X-Request-Id", id)
		ctx := context.WithValue(r.Context(), requestIDKey{}, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
