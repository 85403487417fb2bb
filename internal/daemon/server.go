package daemon

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/relayhub/relay/internal/config"
	"github.com/relayhub/relay/internal/gql"
	"github.com/relayhub/relay/internal/httpapi"
	"go.uber.org/zap"
)

// Server manages the HTTP server carrying the REST and GraphQL surfaces.
type Server struct {
	httpServer *http.Server
	listener   net.Listener
	logger     *zap.Logger
}

// NewServer binds the listen address and mounts the REST routes and the
// GraphQL endpoint. Binding happens here, not in Start, so a taken port
// fails startup instead of a background goroutine.
func NewServer(cfg *config.Config, logger *zap.Logger, api *httpapi.Handler, resolver *gql.Resolver) (*Server, error) {
	gqlHandler, err := resolver.NewHandler()
	if err != nil {
		return nil, fmt.Errorf("build graphql schema: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/api/v1/", api.Routes())
	mux.Handle("/graphql", gqlHandler)

	listener, err := net.Listen("tcp", cfg.Listen)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", cfg.Listen, err)
	}

	return &Server{
		httpServer: &http.Server{Handler: mux},
		listener:   listener,
		logger:     logger,
	}, nil
}

// Addr returns the bound listen address.
func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

// Start begins serving requests. Blocks until stopped.
func (s *Server) Start() error {
	s.logger.Info("http server starting", zap.String("addr", s.Addr()))
	if err := s.httpServer.Serve(s.listener); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop performs a graceful shutdown.
func (s *Server) Stop(ctx context.Context) {
	s.logger.Info("http server stopping")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		_ = s.httpServer.Close()
	}
}
