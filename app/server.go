// app/server.go

package app

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"

	logger "github.com/dev-mohitbeniwal/archive-gateway/logging"
)

// Server is the gateway HTTP server.
type Server struct {
	srv  *http.Server
	addr net.Addr
}

func NewServer(addr string, handler http.Handler) *Server {
	return &Server{srv: &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}}
}

// Start listens synchronously, so a port conflict fails startup, and serves in the background.
func (s *Server) Start(_ context.Context) error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return err
	}
	s.addr = ln.Addr()
	go func() {
		logger.Info("Starting server", zap.String("addr", s.addr.String()))
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server stopped unexpectedly", zap.Error(err))
		}
	}()
	return nil
}

// Stop waits for in-flight requests until ctx is done.
func (s *Server) Stop(ctx context.Context) error {
	logger.Info("Shutting down server...")
	return s.srv.Shutdown(ctx)
}

// Addr is the bound listen address, nil before Start.
func (s *Server) Addr() net.Addr {
	return s.addr
}
